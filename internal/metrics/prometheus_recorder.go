package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once sync.Once

	taskDuration  *prom.HistogramVec
	taskOutcomes  *prom.CounterVec
	taskRetries   *prom.CounterVec
	connectTiming *prom.HistogramVec
	tlsTiming     *prom.HistogramVec
	fallbacks     *prom.CounterVec
	autoDisable   *prom.CounterVec
	poolSelection *prom.CounterVec
	poolRefresh   *prom.CounterVec
	breakerTrips  prom.Counter
	proxyState    *prom.CounterVec
	proxyHealth   *prom.CounterVec
	memPressure   prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics. Each
// call registers a new set of collectors, so calling it twice with the same
// registry panics in MustRegister.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "gitcollab",
			Name:      "task_duration_seconds",
			Help:      "Duration of git tasks by kind",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"})
		pr.taskOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "task_outcomes_total",
			Help:      "Task terminal states by kind",
		}, []string{"kind", "outcome"})
		pr.taskRetries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "task_retries_total",
			Help:      "Retry attempts by task kind",
		}, []string{"kind"})
		pr.connectTiming = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "gitcollab",
			Name:      "connect_duration_seconds",
			Help:      "TCP connect duration per host",
			Buckets:   prom.DefBuckets,
		}, []string{"host"})
		pr.tlsTiming = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "gitcollab",
			Name:      "tls_handshake_duration_seconds",
			Help:      "TLS handshake duration per host (sampled)",
			Buckets:   prom.DefBuckets,
		}, []string{"host"})
		pr.fallbacks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "fallback_transitions_total",
			Help:      "Adaptive-TLS stage transitions",
		}, []string{"from", "to"})
		pr.autoDisable = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "fake_sni_auto_disable_total",
			Help:      "Fake-SNI auto-disable toggles",
		}, []string{"enabled"})
		pr.poolSelection = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "ip_pool_selections_total",
			Help:      "IP-pool selections by strategy and source",
		}, []string{"strategy", "source"})
		pr.poolRefresh = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "ip_pool_refresh_total",
			Help:      "IP-pool sampling refreshes by result",
		}, []string{"success"})
		pr.breakerTrips = prom.NewCounter(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "ip_pool_breaker_trips_total",
			Help:      "Circuit-breaker trips",
		})
		pr.proxyState = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "proxy_state_changes_total",
			Help:      "Proxy state-machine transitions",
		}, []string{"from", "to"})
		pr.proxyHealth = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "proxy_health_checks_total",
			Help:      "Proxy health probes by result",
		}, []string{"success"})
		pr.memPressure = prom.NewCounter(prom.CounterOpts{
			Namespace: "gitcollab",
			Name:      "metrics_memory_pressure_total",
			Help:      "Times the aggregate downgraded under memory pressure",
		})

		reg.MustRegister(
			pr.taskDuration, pr.taskOutcomes, pr.taskRetries,
			pr.connectTiming, pr.tlsTiming, pr.fallbacks, pr.autoDisable,
			pr.poolSelection, pr.poolRefresh, pr.breakerTrips,
			pr.proxyState, pr.proxyHealth, pr.memPressure,
		)
	})
	return pr
}

func (pr *PrometheusRecorder) ObserveTaskDuration(kind string, d time.Duration) {
	pr.taskDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncTaskOutcome(kind string, outcome OutcomeLabel) {
	pr.taskOutcomes.WithLabelValues(kind, string(outcome)).Inc()
}

func (pr *PrometheusRecorder) IncTaskRetry(kind string) {
	pr.taskRetries.WithLabelValues(kind).Inc()
}

func (pr *PrometheusRecorder) ObserveConnectDuration(host string, d time.Duration) {
	pr.connectTiming.WithLabelValues(host).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) ObserveTLSHandshakeDuration(host string, d time.Duration) {
	pr.tlsTiming.WithLabelValues(host).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncFallbackTransition(from, to string) {
	pr.fallbacks.WithLabelValues(from, to).Inc()
}

func (pr *PrometheusRecorder) IncAutoDisable(enabled bool) {
	pr.autoDisable.WithLabelValues(strconv.FormatBool(enabled)).Inc()
}

func (pr *PrometheusRecorder) IncIPPoolSelection(strategy, source string) {
	pr.poolSelection.WithLabelValues(strategy, source).Inc()
}

func (pr *PrometheusRecorder) IncIPPoolRefresh(success bool) {
	pr.poolRefresh.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (pr *PrometheusRecorder) IncCircuitBreakerTrip() { pr.breakerTrips.Inc() }

func (pr *PrometheusRecorder) IncProxyStateChange(from, to string) {
	pr.proxyState.WithLabelValues(from, to).Inc()
}

func (pr *PrometheusRecorder) IncProxyHealthCheck(success bool) {
	pr.proxyHealth.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (pr *PrometheusRecorder) IncMemoryPressure() { pr.memPressure.Inc() }
