package taskregistry

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/gitcollab/core/internal/adaptivetransport"
	"github.com/gitcollab/core/internal/auth"
	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/gitops"
	"github.com/gitcollab/core/internal/logfields"
	"github.com/gitcollab/core/internal/strategy"
)

// gitSpec is the parsed request for one network git task.
type gitSpec struct {
	URL          string
	Dest         string
	Depth        *int32
	Filter       string
	OverrideJSON []byte
	Remote       string
	RefSpecs     []string
}

// attemptResult is what one operation attempt reports back to the retry
// loop.
type attemptResult struct {
	uploadStarted bool
	err           error
}

// opFunc runs one attempt of the underlying git operation.
type opFunc func(ctx context.Context, eff strategy.Effective, opts gitops.Options) attemptResult

// runGit executes the standard lifecycle for a network git task: prologue
// (strategy parse/apply, rollout decision), bounded retry loop, terminal
// event emission.
func (r *Registry) runGit(task *Task, spec gitSpec, op opFunc) {
	sink := r.opts.Sink
	if !task.markRunning() {
		return
	}
	sink.Publish(events.TaskStarted{TaskID: task.ID, Kind: string(task.Kind), At: time.Now()})
	r.publishProgress(task, gitops.Progress{Phase: gitops.PhaseStarting, Percent: 0})

	if task.Interrupted() {
		r.finishCanceled(task)
		return
	}

	eff, ok := r.prologue(task, spec)
	if !ok {
		return
	}

	host := hostOf(spec.URL)
	if host != "" && r.opts.Transport != nil {
		spec.URL = adaptivetransport.RewriteURL(spec.URL, host, r.opts.BaseConfig().AdaptiveTransport, sink)
	}

	auth := r.resolveAuth(host)
	interrupt := task.Interrupted

	var lastErr error
	for attempt := 0; ; attempt++ {
		if task.Interrupted() {
			r.finishCanceled(task)
			return
		}

		res := op(context.Background(), eff, gitops.Options{
			Auth:      auth,
			Depth:     int(depthOf(spec.Depth)),
			Interrupt: interrupt,
			OnProgress: func(p gitops.Progress) {
				r.publishProgress(task, p)
			},
		})
		if res.err == nil {
			task.finish(StateCompleted, "")
			sink.Publish(events.TaskCompleted{TaskID: task.ID, Kind: string(task.Kind), At: time.Now()})
			return
		}
		lastErr = res.err

		cat := classerr.GetCategory(res.err)
		if cat == classerr.CategoryCancel || task.Interrupted() {
			r.finishCanceled(task)
			return
		}

		retryable := retryableCategory(cat) && !res.uploadStarted
		if !retryable || !eff.Retry.Retryable(attempt+1) {
			break
		}

		delay := eff.Retry.Delay(attempt + 1)
		retried := task.bumpRetried()
		slog.Warn("retrying git task",
			logfields.TaskID(task.ID),
			slog.String("category", string(cat)),
			slog.Int("attempt", retried),
			slog.Duration("delay", delay))
		rt := retried
		sink.Publish(events.TaskProgress{
			TaskID: task.ID, Kind: string(task.Kind), Phase: gitops.PhaseRetrying,
			Percent: 0, RetriedTimes: &rt,
		})
		if !sleepInterruptible(delay, task.Interrupted) {
			r.finishCanceled(task)
			return
		}
	}

	r.emitObsSnapshot(task, host)
	r.finishFailed(task, lastErr)
}

// prologue parses and applies the strategy override and the depth/filter
// options. A parse or range failure terminates the task with Protocol.
func (r *Registry) prologue(task *Task, spec gitSpec) (strategy.Effective, bool) {
	sink := r.opts.Sink

	ovr, err := strategy.ParseOverride(spec.OverrideJSON)
	if err != nil {
		r.finishFailed(task, err)
		return strategy.Effective{}, false
	}
	df, err := strategy.ParseDepthFilter(spec.Depth, spec.Filter)
	if err != nil {
		r.finishFailed(task, err)
		return strategy.Effective{}, false
	}
	strategy.ResolvePartialFilter(df.Filter, sink)

	eff, err := strategy.ApplyOverride(task.ID, r.opts.BaseConfig(), ovr, sink)
	if err != nil {
		r.finishFailed(task, classerr.WrapError(err, classerr.CategoryProtocol, "invalid strategy override").Build())
		return strategy.Effective{}, false
	}
	sink.Publish(events.StrategySummary{
		TaskID:        task.ID,
		AppliedCodes:  eff.Changed,
		IgnoredFields: ovr.Ignored,
	})
	return eff, true
}

// emitObsSnapshot publishes the last transport observability recorded for
// this task; successful dials already emitted their timing inline, so this
// fires only on terminal failure.
func (r *Registry) emitObsSnapshot(task *Task, host string) {
	if r.opts.Transport == nil {
		return
	}
	obs := r.opts.Transport.TakeObs(task.ID)
	if obs == nil {
		return
	}
	r.opts.Sink.Publish(events.AdaptiveTLSTiming{
		TaskID: task.ID, Host: host,
		ConnectMs: obs.Timing.ConnectMs, TLSMs: obs.Timing.TLSMs,
		FirstByteMs: obs.Timing.FirstByteMs, TotalMs: obs.Timing.TotalMs,
		UsedFake: obs.UsedFake,
	})
	for _, ev := range obs.Events {
		switch ev.Kind {
		case "Transition":
			r.opts.Sink.Publish(events.AdaptiveTLSFallback{
				TaskID: task.ID, Host: host, From: ev.From, To: ev.To, Reason: ev.Reason,
			})
		case "AutoDisable":
			r.opts.Sink.Publish(events.AdaptiveTLSAutoDisable{Host: host, Enabled: ev.To == "disabled"})
		}
	}
}

// runLocal executes a non-network git task: single attempt, no strategy
// override, same lifecycle events.
func (r *Registry) runLocal(task *Task, fn func() error) {
	sink := r.opts.Sink
	if !task.markRunning() {
		return
	}
	sink.Publish(events.TaskStarted{TaskID: task.ID, Kind: string(task.Kind), At: time.Now()})
	r.publishProgress(task, gitops.Progress{Phase: gitops.PhaseStarting, Percent: 0})

	if task.Interrupted() {
		r.finishCanceled(task)
		return
	}
	if err := fn(); err != nil {
		if classerr.HasCategory(err, classerr.CategoryCancel) {
			r.finishCanceled(task)
			return
		}
		r.finishFailed(task, err)
		return
	}
	task.finish(StateCompleted, "")
	sink.Publish(events.TaskCompleted{TaskID: task.ID, Kind: string(task.Kind), At: time.Now()})
}

func (r *Registry) publishProgress(task *Task, p gitops.Progress) {
	r.opts.Sink.Publish(events.TaskProgress{
		TaskID: task.ID, Kind: string(task.Kind),
		Phase: p.Phase, Percent: p.Percent,
		Objects: p.Objects, Bytes: p.Bytes, TotalHint: p.TotalHint,
	})
}

func (r *Registry) finishCanceled(task *Task) {
	if task.finish(StateCanceled, "") {
		r.opts.Sink.Publish(events.TaskCanceled{TaskID: task.ID, Kind: string(task.Kind), At: time.Now()})
	}
}

func (r *Registry) finishFailed(task *Task, err error) {
	cat := classerr.GetCategory(err)
	msg := "task failed"
	if err != nil {
		msg = err.Error()
	}
	if task.finish(StateFailed, msg) {
		r.opts.Sink.Publish(events.TaskFailed{
			TaskID: task.ID, Kind: string(task.Kind),
			Category: string(cat), Message: msg, RetriedTimes: task.RetriedTimes(),
		})
	}
}

// resolveAuth looks up stored credentials for host and adapts them to a
// go-git auth method. Missing credentials mean anonymous access.
func (r *Registry) resolveAuth(host string) transport.AuthMethod {
	method, err := auth.ForHost(r.opts.Creds, host)
	if err != nil {
		slog.Debug("resolve credential", logfields.Host(host), logfields.Error(err))
		return nil
	}
	if method != nil && r.opts.Creds != nil {
		if cred, ok, gerr := r.opts.Creds.Get(host, ""); gerr == nil && ok {
			if terr := r.opts.Creds.UpdateLastUsed(cred.Host, cred.Username); terr != nil {
				slog.Debug("touch credential", logfields.Host(host), logfields.Error(terr))
			}
		}
	}
	return method
}

// retryableCategory is the single policy table deciding which terminal
// categories the retry loop may replay.
func retryableCategory(cat classerr.TaskCategory) bool {
	switch cat {
	case classerr.CategoryNetwork, classerr.CategoryTls, classerr.CategoryVerify, classerr.CategoryAuth:
		return true
	}
	return false
}

// sleepInterruptible waits for d, polling the interrupt flag; false means
// the wait was interrupted.
func sleepInterruptible(d time.Duration, interrupted func() bool) bool {
	const step = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if interrupted() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining > step {
			remaining = step
		}
		time.Sleep(remaining)
	}
	return !interrupted()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func depthOf(d *int32) int32 {
	if d == nil {
		return 0
	}
	return *d
}
