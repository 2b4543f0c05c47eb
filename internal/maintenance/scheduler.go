// Package maintenance runs the engine's periodic housekeeping on a gocron
// scheduler: IP-pool cache pruning, proxy recovery probing, and task
// retention sweeps.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/credstore"
	"github.com/gitcollab/core/internal/ippool"
	"github.com/gitcollab/core/internal/logfields"
	"github.com/gitcollab/core/internal/proxymgr"
	"github.com/gitcollab/core/internal/taskregistry"
)

// Scheduler owns the background jobs. Stop is idempotent.
type Scheduler struct {
	sched gocron.Scheduler
}

// Options selects which collaborators receive ticks; nil fields are
// skipped.
type Options struct {
	Config   *config.Config
	Pool     *ippool.Pool
	Proxy    *proxymgr.Manager
	Registry *taskregistry.Registry
	Creds    *credstore.EncryptedFileStore
	// TaskSweepInterval defaults to one minute.
	TaskSweepInterval time.Duration
}

// New builds and starts the scheduler.
func New(opts Options) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	s := &Scheduler{sched: sched}

	if opts.Pool != nil && opts.Config != nil {
		interval := time.Duration(opts.Config.IPPool.CachePruneIntervalSecs) * time.Second
		if interval <= 0 {
			interval = 60 * time.Second
		}
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				opts.Pool.MaintenanceTick()
			}),
			gocron.WithName("ippool-prune"),
		)
		if err != nil {
			return nil, err
		}
	}

	if opts.Proxy != nil && opts.Config != nil {
		interval := time.Duration(opts.Config.Proxy.HealthCheckIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				st := opts.Proxy.State()
				if st.State != proxymgr.StateFallback && st.State != proxymgr.StateRecovering {
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := opts.Proxy.Recover(ctx); err != nil {
					slog.Debug("proxy recovery probe", logfields.Error(err))
				}
			}),
			gocron.WithName("proxy-health"),
		)
		if err != nil {
			return nil, err
		}
	}

	if opts.Registry != nil {
		interval := opts.TaskSweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				if n := opts.Registry.SweepExpired(time.Now()); n > 0 {
					slog.Debug("swept expired tasks", slog.Int("count", n))
				}
			}),
			gocron.WithName("task-retention"),
		)
		if err != nil {
			return nil, err
		}
	}

	if opts.Creds != nil && opts.Config != nil {
		interval := time.Duration(opts.Config.Credential.KeyCacheTTLSeconds) * time.Second
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				opts.Creds.SweepKeyCache(time.Now())
			}),
			gocron.WithName("credential-keycache"),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	return s, nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() {
	if err := s.sched.Shutdown(); err != nil {
		slog.Debug("scheduler shutdown", logfields.Error(err))
	}
}
