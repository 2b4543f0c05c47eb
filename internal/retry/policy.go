// Package retry implements the backoff primitive behind C7's retry plan:
// attempt n waits base_ms*factor^n milliseconds, optionally jittered +-25%,
// capped at a fixed ceiling.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/gitcollab/core/internal/config"
)

// maxDelay caps runaway backoff growth regardless of factor/attempt.
const maxDelay = 5 * time.Minute

// Plan is an immutable retry/backoff plan: either the base config.RetryConfig
// or a per-task effective plan after a strategy override has been merged in
// (see internal/strategy.ApplyOverride).
type Plan struct {
	Max    int
	BaseMs int
	Factor float64
	Jitter bool
}

// FromConfig builds a Plan from the base configuration's retry section.
func FromConfig(c config.RetryConfig) Plan {
	return Plan{Max: c.Max, BaseMs: c.BaseMs, Factor: c.Factor, Jitter: c.Jitter}
}

// Delay returns the backoff duration before attempt n (1-based: the wait
// after the first failure, before the second attempt, is Delay(1)). n<=0
// returns zero.
func (p Plan) Delay(n int) time.Duration {
	return p.delay(n, rand.Float64)
}

// delay takes an injectable [0,1) source so tests can pin the jitter term.
func (p Plan) delay(n int, randFloat func() float64) time.Duration {
	if n <= 0 {
		return 0
	}
	base := float64(p.BaseMs) * math.Pow(p.Factor, float64(n))
	d := time.Duration(base) * time.Millisecond
	if p.Jitter {
		spread := base * 0.25
		offset := (randFloat()*2 - 1) * spread
		biased := base + offset
		if biased < 0 {
			biased = 0
		}
		d = time.Duration(biased) * time.Millisecond
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// Retryable reports whether another attempt remains after attemptsUsed have
// already been made (attemptsUsed is 1 right after the first try fails).
func (p Plan) Retryable(attemptsUsed int) bool {
	return attemptsUsed < p.Max
}

// Validate enforces the ranges accepted for a strategy override's
// retry fields; the base config.RetryConfig is validated the same way by
// config.Config.Validate.
func (p Plan) Validate() error {
	if p.Max < 1 || p.Max > 20 {
		return rangeError("retry.max", p.Max)
	}
	if p.BaseMs < 10 || p.BaseMs > 60000 {
		return rangeError("retry.baseMs", p.BaseMs)
	}
	if p.Factor < 0.5 || p.Factor > 10.0 {
		return rangeError("retry.factor", p.Factor)
	}
	return nil
}

func rangeError(field string, got any) error {
	return &ValidationError{Field: field, Got: got}
}

// ValidationError reports that a retry field fell outside its allowed range.
type ValidationError struct {
	Field string
	Got   any
}

func (e *ValidationError) Error() string {
	return "retry: " + e.Field + " out of range"
}
