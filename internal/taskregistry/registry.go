package taskregistry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gitcollab/core/internal/adaptivetransport"
	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/credstore"
	"github.com/gitcollab/core/internal/events"
)

// Options wires the registry's collaborators. BaseConfig is read per task
// start so a hot-reloaded configuration applies to subsequently spawned
// tasks without affecting ones already running.
type Options struct {
	BaseConfig func() *config.Config
	Sink       events.Sink
	Transport  *adaptivetransport.Transport
	Creds      credstore.Store
	// Retention bounds how long terminal tasks stay queryable; zero keeps
	// them until the host exits.
	Retention time.Duration
	// MaxBatchConcurrency caps how many children of one workspace batch run
	// at once (further capped by the batch size).
	MaxBatchConcurrency int
}

// Registry is the C8 task lifecycle manager: it allocates identities and
// cancellation tokens, spawns blocking workers, and tracks parent/child
// relationships for workspace batches.
type Registry struct {
	opts Options

	mu       sync.RWMutex
	tasks    map[string]*Task
	children map[string][]string

	wg sync.WaitGroup
}

// New builds a Registry. Sink may be nil to discard events.
func New(opts Options) *Registry {
	if opts.Sink == nil {
		opts.Sink = events.NopSink{}
	}
	if opts.BaseConfig == nil {
		base := config.DefaultConfig()
		opts.BaseConfig = func() *config.Config { return base }
	}
	if opts.MaxBatchConcurrency <= 0 {
		opts.MaxBatchConcurrency = 4
	}
	return &Registry{
		opts:     opts,
		tasks:    make(map[string]*Task),
		children: make(map[string][]string),
	}
}

// Create allocates a task in state Pending. parentID is empty for top-level
// tasks.
func (r *Registry) Create(kind Kind, parentID string) *Task {
	task := newTask(uuid.NewString(), kind, parentID)
	r.mu.Lock()
	r.tasks[task.ID] = task
	if parentID != "" {
		r.children[parentID] = append(r.children[parentID], task.ID)
	}
	r.mu.Unlock()
	return task
}

// Get returns a live task by id.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// List returns snapshots of every retained task.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// Cancel requests cancellation of a task and, for batch parents, cascades
// to every child. Returns false for an unknown id.
func (r *Registry) Cancel(id string) bool {
	r.mu.RLock()
	task, ok := r.tasks[id]
	childIDs := append([]string(nil), r.children[id]...)
	r.mu.RUnlock()
	if !ok {
		return false
	}
	task.Cancel()
	for _, cid := range childIDs {
		r.Cancel(cid)
	}
	return true
}

// SweepExpired drops terminal tasks older than the retention window. Called
// from the maintenance scheduler; a zero retention disables sweeping.
func (r *Registry) SweepExpired(now time.Time) int {
	if r.opts.Retention <= 0 {
		return 0
	}
	cutoff := now.Add(-r.opts.Retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, t := range r.tasks {
		if t.finishedBefore(cutoff) {
			delete(r.tasks, id)
			delete(r.children, id)
			removed++
		}
	}
	return removed
}

// Wait blocks until every spawned worker has finished. Intended for
// shutdown and tests.
func (r *Registry) Wait() { r.wg.Wait() }

// spawn runs fn on a dedicated goroutine tracked by the registry's
// wait group; blocking git work stays off the caller's goroutine.
func (r *Registry) spawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}
