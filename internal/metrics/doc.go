// Package metrics implements the engine's metrics runtime: a Recorder
// interface with a no-op default, a Prometheus adapter, and a batching
// pipeline that moves observations from worker goroutines to a shared
// aggregate.
//
// # Design
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be disabled with zero overhead and enabled by
// swapping in NewPrometheusRecorder.
//
// Workers do not touch the shared registry directly. Each owns a Buffer
// whose operations are flushed in batches (on capacity, on an interval, or
// on Close) to the Runtime's drain goroutine, which applies label redaction,
// handshake sampling, and memory-pressure accounting before recording.
//
// # Redaction
//
// Label values are redacted before leaving the process: labels whose name
// contains "repo" are replaced by a salted hash, labels whose name contains
// "ip" are masked, classified, or passed through per configuration. Debug
// mode disables redaction entirely.
//
// # Memory pressure
//
// The aggregate keeps raw histogram samples until its estimated footprint
// exceeds the configured budget, then permanently (until reconfiguration)
// downgrades to fixed bucket counts and publishes a MetricMemoryPressure
// event.
package metrics
