package gitops

import (
	"context"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/gitcollab/core/internal/classerr"
)

// RemoteAdd registers a new remote. Adding a name that already exists is a
// protocol error, matching command-line git.
func RemoteAdd(repoPath, name, url string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Classify(err, "remote-add", repoPath)
	}
	_, err = repo.CreateRemote(&gitcfg.RemoteConfig{Name: name, URLs: []string{url}})
	if err == git.ErrRemoteExists {
		return classerr.NewError(classerr.CategoryProtocol, "remote already exists").
			WithContext("name", name).Build()
	}
	return Classify(err, "remote-add", repoPath)
}

// RemoteSet replaces the URL list of an existing remote.
func RemoteSet(repoPath, name, url string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Classify(err, "remote-set", repoPath)
	}
	cfg, err := repo.Config()
	if err != nil {
		return Classify(err, "remote-set", repoPath)
	}
	rc, ok := cfg.Remotes[name]
	if !ok {
		return classerr.NewError(classerr.CategoryProtocol, "remote not found").
			WithContext("name", name).Build()
	}
	rc.URLs = []string{url}
	return Classify(repo.SetConfig(cfg), "remote-set", repoPath)
}

// RemoteRemove deletes a remote and its configuration.
func RemoteRemove(repoPath, name string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Classify(err, "remote-remove", repoPath)
	}
	err = repo.DeleteRemote(name)
	if err == git.ErrRemoteNotFound {
		return classerr.NewError(classerr.CategoryProtocol, "remote not found").
			WithContext("name", name).Build()
	}
	return Classify(err, "remote-remove", repoPath)
}

// ListBranches returns the local branch names, sorted.
func ListBranches(repoPath string) ([]string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, Classify(err, "list-branches", repoPath)
	}
	iter, err := repo.Branches()
	if err != nil {
		return nil, Classify(err, "list-branches", repoPath)
	}
	var names []string
	_ = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	sort.Strings(names)
	return names, nil
}

// RemoteBranches lists branch names advertised by the named remote without
// fetching objects.
func RemoteBranches(ctx context.Context, repoPath, remoteName string, auth transport.AuthMethod) ([]string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, Classify(err, "remote-branches", repoPath)
	}
	if remoteName == "" {
		remoteName = "origin"
	}
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return nil, Classify(err, "remote-branches", repoPath)
	}
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return nil, Classify(err, "remote-branches", remoteName)
	}
	var names []string
	for _, ref := range refs {
		if ref.Name().IsBranch() {
			names = append(names, ref.Name().Short())
		}
	}
	sort.Strings(names)
	return names, nil
}

// FileStatus is one working-tree entry of RepoStatus.
type FileStatus struct {
	Path     string `json:"path"`
	Staging  string `json:"staging"`
	Worktree string `json:"worktree"`
}

// RepoStatus describes the repository's current branch and dirty files.
type RepoStatus struct {
	Branch string       `json:"branch"`
	Clean  bool         `json:"clean"`
	Files  []FileStatus `json:"files"`
}

// Status reports the current branch and per-file staging/worktree state.
func Status(repoPath string) (RepoStatus, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return RepoStatus{}, Classify(err, "status", repoPath)
	}
	var branch string
	if head, herr := repo.Head(); herr == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	wt, err := repo.Worktree()
	if err != nil {
		return RepoStatus{}, Classify(err, "status", repoPath)
	}
	st, err := wt.Status()
	if err != nil {
		return RepoStatus{}, Classify(err, "status", repoPath)
	}
	out := RepoStatus{Branch: branch, Clean: st.IsClean()}
	for path, fs := range st {
		out.Files = append(out.Files, FileStatus{
			Path:     path,
			Staging:  statusCode(fs.Staging),
			Worktree: statusCode(fs.Worktree),
		})
	}
	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })
	return out, nil
}

func statusCode(c git.StatusCode) string {
	s := strings.TrimSpace(string(rune(c)))
	if s == "" {
		return "unmodified"
	}
	return s
}
