package gitops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitcollab/core/internal/classerr"
)

// WorktreeInfo describes one linked (or the main) working tree.
type WorktreeInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Branch string `json:"branch,omitempty"`
	Main   bool   `json:"main"`
}

// WorktreeList enumerates the main working tree plus every linked worktree
// registered under .git/worktrees.
func WorktreeList(repoPath string) ([]WorktreeInfo, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, Classify(err, "worktree-list", repoPath)
	}
	var branch string
	if head, herr := repo.Head(); herr == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	abs, _ := filepath.Abs(repoPath)
	out := []WorktreeInfo{{Name: filepath.Base(abs), Path: abs, Branch: branch, Main: true}}

	wtDir := filepath.Join(repoPath, ".git", "worktrees")
	entries, err := os.ReadDir(wtDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, Classify(err, "worktree-list", repoPath)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		admin := filepath.Join(wtDir, e.Name())
		info := WorktreeInfo{Name: e.Name()}
		if gd, rerr := os.ReadFile(filepath.Join(admin, "gitdir")); rerr == nil {
			info.Path = filepath.Dir(strings.TrimSpace(string(gd)))
		}
		if hd, rerr := os.ReadFile(filepath.Join(admin, "HEAD")); rerr == nil {
			head := strings.TrimSpace(string(hd))
			if strings.HasPrefix(head, "ref: refs/heads/") {
				info.Branch = strings.TrimPrefix(head, "ref: refs/heads/")
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// WorktreeAdd creates a linked worktree at destPath checked out to branch.
// The admin directory layout matches what command-line git writes, so the
// result is usable by both this engine and external git tooling.
func WorktreeAdd(repoPath, destPath, branch string) error {
	if err := ValidateBranchName(branch); err != nil {
		return err
	}
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Classify(err, "worktree-add", repoPath)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return classerr.NewError(classerr.CategoryProtocol, "branch not found").
			WithContext("branch", branch).Build()
	}

	name := filepath.Base(destPath)
	gitDirAbs, err := filepath.Abs(filepath.Join(repoPath, ".git"))
	if err != nil {
		return Classify(err, "worktree-add", repoPath)
	}
	admin := filepath.Join(gitDirAbs, "worktrees", name)
	if _, serr := os.Stat(admin); serr == nil {
		return classerr.NewError(classerr.CategoryProtocol, "worktree already exists").
			WithContext("name", name).Build()
	}
	destAbs, err := filepath.Abs(destPath)
	if err != nil {
		return Classify(err, "worktree-add", destPath)
	}
	if err := os.MkdirAll(admin, 0o755); err != nil {
		return Classify(err, "worktree-add", admin)
	}
	if err := os.MkdirAll(destAbs, 0o755); err != nil {
		return Classify(err, "worktree-add", destAbs)
	}

	files := map[string]string{
		filepath.Join(admin, "HEAD"):      "ref: refs/heads/" + branch + "\n",
		filepath.Join(admin, "commondir"): "../..\n",
		filepath.Join(admin, "gitdir"):    filepath.Join(destAbs, ".git") + "\n",
		filepath.Join(destAbs, ".git"):    "gitdir: " + admin + "\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return Classify(err, "worktree-add", path)
		}
	}

	// Materialize the tree through the linked checkout.
	linked, err := git.PlainOpen(destAbs)
	if err != nil {
		return Classify(err, "worktree-add", destAbs)
	}
	wt, err := linked.Worktree()
	if err != nil {
		return Classify(err, "worktree-add", destAbs)
	}
	err = wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset})
	return Classify(err, "worktree-add", destAbs)
}

// WorktreeRemove unregisters a linked worktree and deletes its directory.
// The main working tree cannot be removed.
func WorktreeRemove(repoPath, name string) error {
	if name == "" {
		return classerr.NewError(classerr.CategoryProtocol, "worktree name required").Build()
	}
	admin := filepath.Join(repoPath, ".git", "worktrees", name)
	gd, err := os.ReadFile(filepath.Join(admin, "gitdir"))
	if err != nil {
		if os.IsNotExist(err) {
			return classerr.NewError(classerr.CategoryProtocol, "worktree not found").
				WithContext("name", name).Build()
		}
		return Classify(err, "worktree-remove", admin)
	}
	dest := filepath.Dir(strings.TrimSpace(string(gd)))
	if err := os.RemoveAll(admin); err != nil {
		return Classify(err, "worktree-remove", admin)
	}
	if err := os.RemoveAll(dest); err != nil {
		return Classify(fmt.Errorf("remove worktree dir: %w", err), "worktree-remove", dest)
	}
	return nil
}
