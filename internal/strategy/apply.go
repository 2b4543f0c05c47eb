package strategy

import (
	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/retry"
)

// Effective is the merged, per-task result of applying an Override onto the
// base configuration: the three overlaid sections plus a diff of which
// fields actually changed.
type Effective struct {
	HTTP    config.HTTPConfig
	TLS     config.TLSConfig
	Retry   retry.Plan
	Changed []string
}

// ApplyOverride merges an Override onto the base Config, returning the
// effective per-task settings plus the list of dotted field paths that
// differ from the base. Conflicting combinations (insecureSkipVerify=true
// together with a non-empty spkiPins list inherited from base) are rejected.
func ApplyOverride(taskID string, base *config.Config, o Override, sink events.Sink) (Effective, error) {
	if sink == nil {
		sink = events.NopSink{}
	}
	eff := Effective{
		HTTP:  base.HTTP,
		TLS:   base.TLS,
		Retry: retry.FromConfig(base.Retry),
	}

	if len(o.Ignored) > 0 {
		sink.Publish(events.StrategyIgnoredFields{TaskID: taskID, Fields: o.Ignored})
	}

	if o.HTTP != nil {
		if o.HTTP.FollowRedirects != nil && *o.HTTP.FollowRedirects != eff.HTTP.FollowRedirects {
			eff.HTTP.FollowRedirects = *o.HTTP.FollowRedirects
			eff.Changed = append(eff.Changed, "http.followRedirects")
		}
		if o.HTTP.MaxRedirects != nil && *o.HTTP.MaxRedirects != eff.HTTP.MaxRedirects {
			eff.HTTP.MaxRedirects = *o.HTTP.MaxRedirects
			eff.Changed = append(eff.Changed, "http.maxRedirects")
		}
		sink.Publish(events.StrategyHTTPApplied{TaskID: taskID, FollowRedirects: eff.HTTP.FollowRedirects, MaxRedirects: eff.HTTP.MaxRedirects})
	}

	if o.TLS != nil {
		if o.TLS.InsecureSkipVerify != nil && *o.TLS.InsecureSkipVerify != eff.TLS.InsecureSkipVerify {
			eff.TLS.InsecureSkipVerify = *o.TLS.InsecureSkipVerify
			eff.Changed = append(eff.Changed, "tls.insecureSkipVerify")
		}
		if o.TLS.SkipSANWhitelist != nil && *o.TLS.SkipSANWhitelist != eff.TLS.SkipSANWhitelist {
			eff.TLS.SkipSANWhitelist = *o.TLS.SkipSANWhitelist
			eff.Changed = append(eff.Changed, "tls.skipSanWhitelist")
		}
		sink.Publish(events.StrategyTLSApplied{TaskID: taskID, InsecureSkip: eff.TLS.InsecureSkipVerify, SkipSANWhitelist: eff.TLS.SkipSANWhitelist})
	}

	if eff.TLS.InsecureSkipVerify && eff.TLS.SkipSANWhitelist {
		sink.Publish(events.StrategyConflict{TaskID: taskID, Detail: "insecureSkipVerify and skipSanWhitelist both disable verification"})
	}
	if eff.TLS.InsecureSkipVerify && len(eff.TLS.SPKIPins) > 0 {
		return Effective{}, conflictError("tls.insecureSkipVerify", "tls.spkiPins")
	}

	if o.Retry != nil {
		if o.Retry.Max != nil && *o.Retry.Max != eff.Retry.Max {
			eff.Retry.Max = *o.Retry.Max
			eff.Changed = append(eff.Changed, "retry.max")
		}
		if o.Retry.BaseMs != nil && *o.Retry.BaseMs != eff.Retry.BaseMs {
			eff.Retry.BaseMs = *o.Retry.BaseMs
			eff.Changed = append(eff.Changed, "retry.baseMs")
		}
		if o.Retry.Factor != nil && *o.Retry.Factor != eff.Retry.Factor {
			eff.Retry.Factor = *o.Retry.Factor
			eff.Changed = append(eff.Changed, "retry.factor")
		}
		if o.Retry.Jitter != nil && *o.Retry.Jitter != eff.Retry.Jitter {
			eff.Retry.Jitter = *o.Retry.Jitter
			eff.Changed = append(eff.Changed, "retry.jitter")
		}
		sink.Publish(events.StrategyRetryApplied{
			TaskID: taskID, Max: eff.Retry.Max, BaseMs: eff.Retry.BaseMs, Factor: eff.Retry.Factor, Jitter: eff.Retry.Jitter,
			ChangedFields: eff.Changed,
		})
	}

	if err := eff.Retry.Validate(); err != nil {
		return Effective{}, err
	}

	return eff, nil
}

func conflictError(a, b string) error {
	return &ConflictError{FieldA: a, FieldB: b}
}

// ConflictError reports two override fields whose combination is invalid.
type ConflictError struct {
	FieldA, FieldB string
}

func (e *ConflictError) Error() string {
	return "strategy override: " + e.FieldA + " conflicts with " + e.FieldB
}
