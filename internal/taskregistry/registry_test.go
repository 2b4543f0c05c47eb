package taskregistry

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/gitops"
)

// captureSink records every published event in order.
type captureSink struct {
	mu   sync.Mutex
	evts []any
}

func (s *captureSink) Publish(evt any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evts = append(s.evts, evt)
}

func (s *captureSink) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.evts...)
}

// terminalEventsFor counts terminal events published for one task id.
func (s *captureSink) terminalEventsFor(taskID string) int {
	n := 0
	for _, e := range s.all() {
		switch ev := e.(type) {
		case events.TaskCompleted:
			if ev.TaskID == taskID {
				n++
			}
		case events.TaskFailed:
			if ev.TaskID == taskID {
				n++
			}
		case events.TaskCanceled:
			if ev.TaskID == taskID {
				n++
			}
		}
	}
	return n
}

func seedSourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, gitops.Init(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("content\n"), 0o600))
	require.NoError(t, gitops.Add(dir, []string{"."}))
	_, err := gitops.Commit(dir, gitops.CommitOptions{
		Message: "seed", AuthorName: "t", AuthorEmail: "t@example.com",
	})
	require.NoError(t, err)
	return dir
}

func newTestRegistry(sink events.Sink) *Registry {
	return New(Options{Sink: sink, MaxBatchConcurrency: 3})
}

func TestCloneTaskLifecycle(t *testing.T) {
	sink := &captureSink{}
	reg := newTestRegistry(sink)
	src := seedSourceRepo(t)

	task := reg.SpawnClone(CloneRequest{URL: src, Dest: filepath.Join(t.TempDir(), "dst")})
	assert.Equal(t, StateCompleted, task.Wait())
	reg.Wait()

	assert.Equal(t, 1, sink.terminalEventsFor(task.ID))

	var sawStarted, sawStarting bool
	for _, e := range sink.all() {
		switch ev := e.(type) {
		case events.TaskStarted:
			sawStarted = ev.TaskID == task.ID
		case events.TaskProgress:
			if ev.TaskID == task.ID && ev.Phase == gitops.PhaseStarting {
				sawStarting = true
			}
		}
	}
	assert.True(t, sawStarted)
	assert.True(t, sawStarting)
}

func TestBadOverrideFailsProtocol(t *testing.T) {
	sink := &captureSink{}
	reg := newTestRegistry(sink)

	task := reg.SpawnClone(CloneRequest{
		URL: "https://example.com/r.git", Dest: t.TempDir(),
		OverrideJSON: []byte(`{"retry":{"max":99}}`),
	})
	assert.Equal(t, StateFailed, task.Wait())
	reg.Wait()

	var failed *events.TaskFailed
	for _, e := range sink.all() {
		if ev, ok := e.(events.TaskFailed); ok && ev.TaskID == task.ID {
			failed = &ev
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, string(classerr.CategoryProtocol), failed.Category)
}

func TestInvalidDepthFailsProtocol(t *testing.T) {
	reg := newTestRegistry(&captureSink{})
	depth := int32(0)
	task := reg.SpawnClone(CloneRequest{URL: "https://example.com/r.git", Dest: t.TempDir(), Depth: &depth})
	assert.Equal(t, StateFailed, task.Wait())
	assert.Contains(t, task.FailReason(), "depth")
}

func TestSleepCancel(t *testing.T) {
	sink := &captureSink{}
	reg := newTestRegistry(sink)

	task := reg.SpawnSleep(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	require.True(t, reg.Cancel(task.ID))
	assert.Equal(t, StateCanceled, task.Wait())
	assert.Equal(t, 1, sink.terminalEventsFor(task.ID))
}

func TestCancelAfterTerminalIsNoop(t *testing.T) {
	sink := &captureSink{}
	reg := newTestRegistry(sink)
	src := seedSourceRepo(t)

	task := reg.SpawnClone(CloneRequest{URL: src, Dest: filepath.Join(t.TempDir(), "dst")})
	require.Equal(t, StateCompleted, task.Wait())
	reg.Cancel(task.ID)
	assert.Equal(t, StateCompleted, task.State())
	assert.Equal(t, 1, sink.terminalEventsFor(task.ID))
}

func TestLocalOpsRunThroughRegistry(t *testing.T) {
	reg := newTestRegistry(&captureSink{})
	dir := t.TempDir()

	require.Equal(t, StateCompleted, reg.SpawnInit(dir).Wait())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o600))
	require.Equal(t, StateCompleted, reg.SpawnAdd(dir, []string{"."}).Wait())
	require.Equal(t, StateCompleted, reg.SpawnCommit(dir, gitops.CommitOptions{
		Message: "c1", AuthorName: "t", AuthorEmail: "t@example.com",
	}).Wait())
	require.Equal(t, StateCompleted, reg.SpawnBranch(dir, "feature/x").Wait())
	require.Equal(t, StateCompleted, reg.SpawnCheckout(dir, "feature/x", false).Wait())
	require.Equal(t, StateCompleted, reg.SpawnTag(dir, "v1", gitops.TagOptions{}).Wait())
	require.Equal(t, StateCompleted, reg.SpawnRemoteAdd(dir, "origin", "https://example.com/r.git").Wait())
	require.Equal(t, StateCompleted, reg.SpawnRemoteSet(dir, "origin", "https://example.com/r2.git").Wait())
	require.Equal(t, StateCompleted, reg.SpawnRemoteRemove(dir, "origin").Wait())

	bad := reg.SpawnBranch(dir, "x..y")
	assert.Equal(t, StateFailed, bad.Wait())
}

func TestWorkspaceBatchFailureSummary(t *testing.T) {
	sink := &captureSink{}
	reg := newTestRegistry(sink)
	src := seedSourceRepo(t)
	base := t.TempDir()

	missing := t.TempDir()
	clones := []CloneRequest{
		{URL: src, Dest: filepath.Join(base, "ok1")},
		{URL: filepath.Join(missing, "broken-one"), Dest: filepath.Join(base, "f1")},
		{URL: src, Dest: filepath.Join(base, "ok2")},
		{URL: filepath.Join(missing, "broken-two"), Dest: filepath.Join(base, "f2")},
		{URL: src, Dest: filepath.Join(base, "ok3")},
	}

	parent := reg.SpawnWorkspaceBatch(BatchRequest{Clones: clones, MaxConcurrency: 2})
	assert.Equal(t, StateFailed, parent.Wait())
	reg.Wait()

	reason := parent.FailReason()
	assert.Contains(t, reason, "broken-one")
	assert.Contains(t, reason, "broken-two")
	assert.Contains(t, reason, "+0 more")
	assert.True(t, strings.HasPrefix(reason, "2 repo(s) failed"))

	// Parent reports 100 percent on termination.
	var finalPct uint32
	for _, e := range sink.all() {
		if ev, ok := e.(events.TaskProgress); ok && ev.TaskID == parent.ID {
			finalPct = ev.Percent
		}
	}
	assert.Equal(t, uint32(100), finalPct)
}

func TestBatchCancelCascades(t *testing.T) {
	reg := newTestRegistry(&captureSink{})
	src := seedSourceRepo(t)
	base := t.TempDir()

	var clones []CloneRequest
	for i := 0; i < 4; i++ {
		clones = append(clones, CloneRequest{URL: src, Dest: filepath.Join(base, "d", string(rune('a'+i)))})
	}
	parent := reg.SpawnWorkspaceBatch(BatchRequest{Clones: clones, MaxConcurrency: 1})
	reg.Cancel(parent.ID)
	state := parent.Wait()
	assert.Contains(t, []State{StateCanceled, StateCompleted}, state)
	reg.Wait()
}

func TestRetryableCategoryTable(t *testing.T) {
	assert.True(t, retryableCategory(classerr.CategoryNetwork))
	assert.True(t, retryableCategory(classerr.CategoryTls))
	assert.True(t, retryableCategory(classerr.CategoryVerify))
	assert.True(t, retryableCategory(classerr.CategoryAuth))
	assert.False(t, retryableCategory(classerr.CategoryProtocol))
	assert.False(t, retryableCategory(classerr.CategoryCancel))
	assert.False(t, retryableCategory(classerr.CategoryInternal))
}

func TestSweepExpired(t *testing.T) {
	reg := New(Options{Retention: time.Millisecond})
	task := reg.SpawnSleep(0)
	require.Equal(t, StateCompleted, task.Wait())
	reg.Wait()

	time.Sleep(5 * time.Millisecond)
	removed := reg.SweepExpired(time.Now())
	assert.Equal(t, 1, removed)
	_, ok := reg.Get(task.ID)
	assert.False(t, ok)
}

func TestTaskReachesAtMostOneTerminalState(t *testing.T) {
	task := newTask("id", KindSleep, "")
	require.True(t, task.markRunning())
	require.True(t, task.finish(StateCompleted, ""))
	assert.False(t, task.finish(StateFailed, "late"))
	assert.Equal(t, StateCompleted, task.State())
	assert.Empty(t, task.FailReason())
}
