package taskregistry

import (
	"context"
	"time"

	"github.com/gitcollab/core/internal/gitops"
	"github.com/gitcollab/core/internal/strategy"
)

// CloneRequest is the caller-facing request for SpawnClone.
type CloneRequest struct {
	URL          string
	Dest         string
	Depth        *int32
	Filter       string
	OverrideJSON []byte
}

// SpawnClone creates and starts a GitClone task, returning it immediately;
// the clone runs on a dedicated worker.
func (r *Registry) SpawnClone(req CloneRequest) *Task {
	return r.spawnCloneChild(req, "")
}

func (r *Registry) spawnCloneChild(req CloneRequest, parentID string) *Task {
	task := r.Create(KindGitClone, parentID)
	spec := gitSpec{URL: req.URL, Dest: req.Dest, Depth: req.Depth, Filter: req.Filter, OverrideJSON: req.OverrideJSON}
	r.spawn(func() {
		r.runGit(task, spec, func(ctx context.Context, eff strategy.Effective, opts gitops.Options) attemptResult {
			return attemptResult{err: gitops.CloneBlocking(ctx, spec.URL, spec.Dest, opts)}
		})
	})
	return task
}

// FetchRequest is the caller-facing request for SpawnFetch.
type FetchRequest struct {
	URL          string
	Dest         string
	Depth        *int32
	OverrideJSON []byte
}

// SpawnFetch creates and starts a GitFetch task.
func (r *Registry) SpawnFetch(req FetchRequest) *Task {
	task := r.Create(KindGitFetch, "")
	spec := gitSpec{URL: req.URL, Dest: req.Dest, Depth: req.Depth, OverrideJSON: req.OverrideJSON}
	r.spawn(func() {
		r.runGit(task, spec, func(ctx context.Context, eff strategy.Effective, opts gitops.Options) attemptResult {
			return attemptResult{err: gitops.FetchBlocking(ctx, spec.URL, spec.Dest, opts)}
		})
	})
	return task
}

// PushRequest is the caller-facing request for SpawnPush.
type PushRequest struct {
	Dest         string
	Remote       string
	RefSpecs     []string
	OverrideJSON []byte
}

// SpawnPush creates and starts a GitPush task. Once object upload has begun
// a failed attempt is not replayed, regardless of its error category.
func (r *Registry) SpawnPush(req PushRequest) *Task {
	task := r.Create(KindGitPush, "")
	spec := gitSpec{Dest: req.Dest, Remote: req.Remote, RefSpecs: req.RefSpecs, OverrideJSON: req.OverrideJSON}
	r.spawn(func() {
		r.runGit(task, spec, func(ctx context.Context, eff strategy.Effective, opts gitops.Options) attemptResult {
			res, err := gitops.PushBlocking(ctx, spec.Dest, spec.Remote, spec.RefSpecs, opts)
			return attemptResult{uploadStarted: res.UploadStarted, err: err}
		})
	})
	return task
}

// SpawnInit creates and starts a GitInit task.
func (r *Registry) SpawnInit(path string) *Task {
	task := r.Create(KindGitInit, "")
	r.spawn(func() { r.runLocal(task, func() error { return gitops.Init(path) }) })
	return task
}

// SpawnAdd creates and starts a GitAdd task staging the given paths.
func (r *Registry) SpawnAdd(repoPath string, paths []string) *Task {
	task := r.Create(KindGitAdd, "")
	r.spawn(func() { r.runLocal(task, func() error { return gitops.Add(repoPath, paths) }) })
	return task
}

// SpawnCommit creates and starts a GitCommit task.
func (r *Registry) SpawnCommit(repoPath string, opts gitops.CommitOptions) *Task {
	task := r.Create(KindGitCommit, "")
	r.spawn(func() {
		r.runLocal(task, func() error {
			_, err := gitops.Commit(repoPath, opts)
			return err
		})
	})
	return task
}

// SpawnBranch creates and starts a GitBranch task.
func (r *Registry) SpawnBranch(repoPath, name string) *Task {
	task := r.Create(KindGitBranch, "")
	r.spawn(func() { r.runLocal(task, func() error { return gitops.Branch(repoPath, name) }) })
	return task
}

// SpawnCheckout creates and starts a GitCheckout task.
func (r *Registry) SpawnCheckout(repoPath, name string, create bool) *Task {
	task := r.Create(KindGitCheckout, "")
	r.spawn(func() { r.runLocal(task, func() error { return gitops.Checkout(repoPath, name, create) }) })
	return task
}

// SpawnTag creates and starts a GitTag task.
func (r *Registry) SpawnTag(repoPath, name string, opts gitops.TagOptions) *Task {
	task := r.Create(KindGitTag, "")
	r.spawn(func() { r.runLocal(task, func() error { return gitops.Tag(repoPath, name, opts) }) })
	return task
}

// SpawnRemoteAdd creates and starts a GitRemoteAdd task.
func (r *Registry) SpawnRemoteAdd(repoPath, name, url string) *Task {
	task := r.Create(KindGitRemoteAdd, "")
	r.spawn(func() { r.runLocal(task, func() error { return gitops.RemoteAdd(repoPath, name, url) }) })
	return task
}

// SpawnRemoteSet creates and starts a GitRemoteSet task.
func (r *Registry) SpawnRemoteSet(repoPath, name, url string) *Task {
	task := r.Create(KindGitRemoteSet, "")
	r.spawn(func() { r.runLocal(task, func() error { return gitops.RemoteSet(repoPath, name, url) }) })
	return task
}

// SpawnRemoteRemove creates and starts a GitRemoteRemove task.
func (r *Registry) SpawnRemoteRemove(repoPath, name string) *Task {
	task := r.Create(KindGitRemoteRemove, "")
	r.spawn(func() { r.runLocal(task, func() error { return gitops.RemoteRemove(repoPath, name) }) })
	return task
}

// SpawnSleep creates a task that waits for d, checking cancellation along
// the way. Used by soak runs to pace operation batches.
func (r *Registry) SpawnSleep(d time.Duration) *Task {
	task := r.Create(KindSleep, "")
	r.spawn(func() {
		r.runLocal(task, func() error {
			if !sleepInterruptible(d, task.Interrupted) {
				return canceledErr()
			}
			return nil
		})
	})
	return task
}
