package taskregistry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/gitops"
)

func canceledErr() error {
	return classerr.CancelError("task canceled").Build()
}

// BatchRequest describes a workspace batch: N repositories cloned under a
// bounded concurrency cap.
type BatchRequest struct {
	Clones         []CloneRequest
	MaxConcurrency int
}

// batchState aggregates child progress under one mutex; the parent task's
// percent is the mean of its children's.
type batchState struct {
	mu       sync.Mutex
	percents []uint32
	success  int
	failure  int
	failed   []string
}

func (b *batchState) setPercent(i int, pct uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.percents[i] = pct
	var sum uint64
	for _, p := range b.percents {
		sum += uint64(p)
	}
	return uint32(sum / uint64(len(b.percents)))
}

func (b *batchState) recordOutcome(name string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.success++
		return
	}
	b.failure++
	b.failed = append(b.failed, name)
}

// failSummary names up to three failing repositories plus a "+N more"
// suffix for the rest.
func (b *batchState) failSummary() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	shown := b.failed
	extra := 0
	if len(shown) > 3 {
		extra = len(shown) - 3
		shown = shown[:3]
	}
	return fmt.Sprintf("%d repo(s) failed: %s +%d more", b.failure, strings.Join(shown, ", "), extra)
}

// SpawnWorkspaceBatch creates a parent WorkspaceBatch task dispatching one
// clone child per request. Children run under a semaphore bounded by
// min(MaxConcurrency, len(Clones)); canceling the parent cascades.
func (r *Registry) SpawnWorkspaceBatch(req BatchRequest) *Task {
	parent := r.Create(KindWorkspaceBatch, "")
	total := len(req.Clones)
	sink := r.opts.Sink

	r.spawn(func() {
		if !parent.markRunning() {
			return
		}
		sink.Publish(events.TaskStarted{TaskID: parent.ID, Kind: string(parent.Kind), At: time.Now()})
		r.publishProgress(parent, gitops.Progress{Phase: gitops.PhaseStarting, Percent: 0})

		if total == 0 {
			r.publishProgress(parent, gitops.Progress{Phase: "Completed", Percent: 100})
			parent.finish(StateCompleted, "")
			sink.Publish(events.TaskCompleted{TaskID: parent.ID, Kind: string(parent.Kind), At: time.Now()})
			return
		}

		maxConc := req.MaxConcurrency
		if maxConc <= 0 {
			maxConc = r.opts.MaxBatchConcurrency
		}
		if maxConc > total {
			maxConc = total
		}

		st := &batchState{percents: make([]uint32, total)}
		sem := semaphore.NewWeighted(int64(maxConc))
		var wg sync.WaitGroup

		for i, clone := range req.Clones {
			if parent.Interrupted() {
				break
			}
			if err := sem.Acquire(context.Background(), 1); err != nil {
				break
			}
			wg.Add(1)
			go func(i int, clone CloneRequest) {
				defer wg.Done()
				defer sem.Release(1)

				child := r.spawnCloneChild(clone, parent.ID)
				go superviseChild(parent, child)

				state := child.Wait()
				pct := st.setPercent(i, 100)
				st.recordOutcome(repoName(clone.URL), state == StateCompleted)
				r.publishProgress(parent, gitops.Progress{Phase: "Cloning", Percent: pct})
			}(i, clone)
		}
		wg.Wait()

		r.publishProgress(parent, gitops.Progress{Phase: "Completed", Percent: 100})

		switch {
		case parent.Interrupted():
			r.finishCanceled(parent)
		case st.failure > 0:
			reason := st.failSummary()
			if parent.finish(StateFailed, reason) {
				sink.Publish(events.TaskFailed{
					TaskID: parent.ID, Kind: string(parent.Kind),
					Category: string(classerr.CategoryInternal), Message: reason,
				})
			}
		default:
			parent.finish(StateCompleted, "")
			sink.Publish(events.TaskCompleted{TaskID: parent.ID, Kind: string(parent.Kind), At: time.Now()})
		}
	})
	return parent
}

// superviseChild propagates a parent cancel to a running child; the
// registry-level Cancel cascade covers explicit API cancels, this covers a
// parent interrupted mid-dispatch.
func superviseChild(parent, child *Task) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-child.Done():
			return
		case <-ticker.C:
			if parent.Interrupted() {
				child.Cancel()
			}
		}
	}
}

func repoName(url string) string {
	trimmed := strings.TrimSuffix(url, ".git")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
