package gitops

import (
	"strings"

	"github.com/gitcollab/core/internal/classerr"
)

// ValidateRefName checks a reference name against the git-check-ref-format
// rules: no empty or whitespace names, no leading/trailing slash or dot, no
// empty path components, no ".." sequences, no control or special characters,
// no component ending in ".lock", no leading dash, and no "@{" sequence.
func ValidateRefName(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return refError(name, "empty name")
	}
	if strings.ContainsAny(name, " \t\n") {
		return refError(name, "contains whitespace")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return refError(name, "leading or trailing slash")
	}
	if strings.Contains(name, "//") {
		return refError(name, "empty path component")
	}
	if strings.HasPrefix(name, "-") {
		return refError(name, "leading dash")
	}
	if strings.HasSuffix(name, ".") {
		return refError(name, "trailing dot")
	}
	if strings.Contains(name, "..") {
		return refError(name, "contains '..'")
	}
	if strings.Contains(name, "@{") {
		return refError(name, "contains '@{'")
	}
	if strings.ContainsAny(name, ":?*[~^\\\x7f") {
		return refError(name, "contains a forbidden character")
	}
	for _, c := range name {
		if c < 0x20 {
			return refError(name, "contains a control character")
		}
	}
	for _, comp := range strings.Split(name, "/") {
		if comp == "" {
			return refError(name, "empty path component")
		}
		if strings.HasSuffix(comp, ".lock") {
			return refError(name, "component ends in .lock")
		}
		if strings.HasPrefix(comp, ".") {
			return refError(name, "component starts with dot")
		}
	}
	return nil
}

// ValidateBranchName applies the same rules as ValidateRefName; branch names
// carry no extra restrictions beyond the shared reference grammar.
func ValidateBranchName(name string) error {
	return ValidateRefName(name)
}

// ValidateTagName applies the same rules as ValidateRefName.
func ValidateTagName(name string) error {
	return ValidateRefName(name)
}

func refError(name, reason string) error {
	return classerr.NewError(classerr.CategoryProtocol, "invalid reference name").
		WithContext("name", name).
		WithContext("reason", reason).
		Build()
}
