package gitops

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/gitcollab/core/internal/classerr"
)

// errInterrupted is returned from the progress writer when the interrupt
// flag is observed; Classify maps it (and context cancellation) to
// CategoryCancel.
var errInterrupted = errors.New("operation interrupted by user")

// Classify translates go-git and transport errors into a categorized
// TaskError. Errors already classified pass through unchanged.
func Classify(err error, op, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := classerr.AsClassified(err); ok {
		return err
	}

	cat := classerr.CategoryInternal
	switch {
	case errors.Is(err, errInterrupted), errors.Is(err, context.Canceled):
		cat = classerr.CategoryCancel
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		cat = classerr.CategoryAuth
	case errors.Is(err, git.ErrRepositoryNotExists),
		errors.Is(err, git.ErrRepositoryAlreadyExists),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		cat = classerr.CategoryProtocol
	default:
		cat = classifyByMessage(err)
	}

	return classerr.WrapError(err, cat, "git "+op+" failed").
		WithContext("op", op).
		WithContext("url", url).
		Build()
}

func classifyByMessage(err error) classerr.TaskCategory {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return classerr.CategoryNetwork
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "user canceled") || strings.Contains(l, "operation was canceled"):
		return classerr.CategoryCancel
	case strings.Contains(l, "certificate") || strings.Contains(l, "x509") || strings.Contains(l, "pin mismatch"):
		return classerr.CategoryVerify
	case strings.Contains(l, "tls") || strings.Contains(l, "handshake"):
		return classerr.CategoryTls
	case strings.Contains(l, "401") || strings.Contains(l, "403") ||
		strings.Contains(l, "authentication") || strings.Contains(l, "not authorized") ||
		strings.Contains(l, "could not read username") || strings.Contains(l, "invalid credentials"):
		return classerr.CategoryAuth
	case strings.Contains(l, "timeout") || strings.Contains(l, "i/o timeout") ||
		strings.Contains(l, "connection reset") || strings.Contains(l, "connection refused") ||
		strings.Contains(l, "remote hung up") || strings.Contains(l, "no route to host") ||
		strings.Contains(l, "unexpected eof") || strings.Contains(l, "broken pipe"):
		return classerr.CategoryNetwork
	case strings.Contains(l, "unexpected client error") || strings.Contains(l, "http") ||
		strings.Contains(l, "invalid response") || strings.Contains(l, "unsupported protocol"):
		return classerr.CategoryProtocol
	}
	return classerr.CategoryInternal
}
