package metrics

import "time"

// OutcomeLabel is the terminal-state dimension for task outcome counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines the observability hooks the transport, pool, proxy, and
// task registry call into. Implementations may forward to Prometheus or
// other backends; NoopRecorder is the default when metrics are not
// configured.
type Recorder interface {
	ObserveTaskDuration(kind string, d time.Duration)
	IncTaskOutcome(kind string, outcome OutcomeLabel)
	IncTaskRetry(kind string)

	ObserveConnectDuration(host string, d time.Duration)
	ObserveTLSHandshakeDuration(host string, d time.Duration)
	IncFallbackTransition(from, to string)
	IncAutoDisable(enabled bool)

	IncIPPoolSelection(strategy string, source string)
	IncIPPoolRefresh(success bool)
	IncCircuitBreakerTrip()

	IncProxyStateChange(from, to string)
	IncProxyHealthCheck(success bool)

	IncMemoryPressure()
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration)         {}
func (NoopRecorder) IncTaskOutcome(string, OutcomeLabel)               {}
func (NoopRecorder) IncTaskRetry(string)                               {}
func (NoopRecorder) ObserveConnectDuration(string, time.Duration)      {}
func (NoopRecorder) ObserveTLSHandshakeDuration(string, time.Duration) {}
func (NoopRecorder) IncFallbackTransition(string, string)              {}
func (NoopRecorder) IncAutoDisable(bool)                               {}
func (NoopRecorder) IncIPPoolSelection(string, string)                 {}
func (NoopRecorder) IncIPPoolRefresh(bool)                             {}
func (NoopRecorder) IncCircuitBreakerTrip()                            {}
func (NoopRecorder) IncProxyStateChange(string, string)                {}
func (NoopRecorder) IncProxyHealthCheck(bool)                          {}
func (NoopRecorder) IncMemoryPressure()                                {}
