package gitops

import (
	"context"
	"errors"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Options carries the shared knobs for blocking network operations.
type Options struct {
	Auth      transport.AuthMethod
	Depth     int
	Interrupt func() bool
	OnProgress func(Progress)
}

// interruptContext derives a context canceled when the interrupt flag is
// observed, so blocked transport calls unwind even between sideband
// messages. The poll loop stops when the returned cancel runs.
func interruptContext(ctx context.Context, interrupt func() bool) (context.Context, context.CancelFunc) {
	if interrupt == nil {
		return context.WithCancel(ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if interrupt() {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel
}

// CloneBlocking clones url into dest, reporting normalized progress and
// honoring the interrupt flag between transfer chunks.
func CloneBlocking(ctx context.Context, url, dest string, opts Options) error {
	ctx, cancel := interruptContext(ctx, opts.Interrupt)
	defer cancel()

	pw := newProgressWriter(opts.OnProgress, opts.Interrupt)
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:      url,
		Depth:    opts.Depth,
		Auth:     opts.Auth,
		Progress: pw,
	})
	if pw.canceledObserved() {
		err = errInterrupted
	}
	return Classify(err, "clone", url)
}

// FetchBlocking fetches from the "origin" remote (or from url when the
// repository has no origin remote) into the repository at dest.
func FetchBlocking(ctx context.Context, url, dest string, opts Options) error {
	ctx, cancel := interruptContext(ctx, opts.Interrupt)
	defer cancel()

	repo, err := git.PlainOpen(dest)
	if err != nil {
		return Classify(err, "fetch", url)
	}

	pw := newProgressWriter(opts.OnProgress, opts.Interrupt)
	fo := &git.FetchOptions{
		RemoteName: "origin",
		Depth:      opts.Depth,
		Auth:       opts.Auth,
		Progress:   pw,
	}
	if url != "" {
		if _, rerr := repo.Remote("origin"); rerr != nil {
			fo.RemoteName = ""
			fo.RemoteURL = url
		}
	}
	err = repo.FetchContext(ctx, fo)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		err = nil
	}
	if pw.canceledObserved() {
		err = errInterrupted
	}
	return Classify(err, "fetch", url)
}

// PushResult reports whether object upload had begun when the push ended;
// once upload starts, a failed push must not be replayed automatically.
type PushResult struct {
	UploadStarted bool
}

// PushBlocking pushes refspecs from the repository at dest to remote
// (default "origin").
func PushBlocking(ctx context.Context, dest, remote string, refspecs []string, opts Options) (PushResult, error) {
	ctx, cancel := interruptContext(ctx, opts.Interrupt)
	defer cancel()

	repo, err := git.PlainOpen(dest)
	if err != nil {
		return PushResult{}, Classify(err, "push", dest)
	}
	if remote == "" {
		remote = "origin"
	}

	specs := make([]gitcfg.RefSpec, 0, len(refspecs))
	for _, rs := range refspecs {
		specs = append(specs, gitcfg.RefSpec(rs))
	}

	pw := newProgressWriter(opts.OnProgress, opts.Interrupt)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   specs,
		Auth:       opts.Auth,
		Progress:   pw,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		err = nil
	}
	if pw.canceledObserved() {
		err = errInterrupted
	}
	return PushResult{UploadStarted: pw.uploadStarted()}, Classify(err, "push", dest)
}
