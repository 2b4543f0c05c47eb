package gitops

import (
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Init creates a new repository at path with a working tree.
func Init(path string) error {
	_, err := git.PlainInit(path, false)
	return Classify(err, "init", path)
}

// Add stages the named paths; a single "." stages everything.
func Add(repoPath string, paths []string) error {
	wt, err := openWorktree(repoPath)
	if err != nil {
		return Classify(err, "add", repoPath)
	}
	for _, p := range paths {
		if p == "." {
			if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
				return Classify(err, "add", repoPath)
			}
			continue
		}
		if _, err := wt.Add(p); err != nil {
			return Classify(err, "add", repoPath)
		}
	}
	return nil
}

// CommitOptions controls Commit; an empty author falls back to repository
// configuration the way command-line git does.
type CommitOptions struct {
	Message     string
	AuthorName  string
	AuthorEmail string
	AllowEmpty  bool
	AmendLast   bool
}

// Commit records the staged changes and returns the new commit hash.
func Commit(repoPath string, opts CommitOptions) (string, error) {
	wt, err := openWorktree(repoPath)
	if err != nil {
		return "", Classify(err, "commit", repoPath)
	}
	co := &git.CommitOptions{
		AllowEmptyCommits: opts.AllowEmpty,
		Amend:             opts.AmendLast,
	}
	if opts.AuthorName != "" || opts.AuthorEmail != "" {
		co.Author = &object.Signature{
			Name:  opts.AuthorName,
			Email: opts.AuthorEmail,
			When:  time.Now(),
		}
	}
	hash, err := wt.Commit(opts.Message, co)
	if err != nil {
		return "", Classify(err, "commit", repoPath)
	}
	return hash.String(), nil
}

// Branch creates a branch named name pointing at the current HEAD.
func Branch(repoPath, name string) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Classify(err, "branch", repoPath)
	}
	head, err := repo.Head()
	if err != nil {
		return Classify(err, "branch", repoPath)
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), head.Hash())
	if err := repo.Storer.SetReference(ref); err != nil {
		return Classify(err, "branch", repoPath)
	}
	return nil
}

// Checkout switches the working tree to the named branch, optionally
// creating it first.
func Checkout(repoPath, name string, create bool) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	wt, err := openWorktree(repoPath)
	if err != nil {
		return Classify(err, "checkout", repoPath)
	}
	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: create,
	})
	return Classify(err, "checkout", repoPath)
}

// TagOptions selects between a lightweight tag (empty Message) and an
// annotated one.
type TagOptions struct {
	Message     string
	TaggerName  string
	TaggerEmail string
}

// Tag creates a tag named name at the current HEAD.
func Tag(repoPath, name string, opts TagOptions) error {
	if err := ValidateTagName(name); err != nil {
		return err
	}
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Classify(err, "tag", repoPath)
	}
	head, err := repo.Head()
	if err != nil {
		return Classify(err, "tag", repoPath)
	}
	var cto *git.CreateTagOptions
	if opts.Message != "" {
		cto = &git.CreateTagOptions{
			Message: opts.Message,
			Tagger: &object.Signature{
				Name:  opts.TaggerName,
				Email: opts.TaggerEmail,
				When:  time.Now(),
			},
		}
	}
	_, err = repo.CreateTag(name, head.Hash(), cto)
	return Classify(err, "tag", repoPath)
}

func openWorktree(repoPath string) (*git.Worktree, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, err
	}
	return repo.Worktree()
}
