package metrics

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
)

type opKind uint8

const (
	opCounterInc opKind = iota
	opHistogramObserve
)

// op is one buffered metric operation.
type op struct {
	kind   opKind
	name   string
	labels map[string]string
	value  float64
}

// descriptorKey flattens (name, sorted labels) into a map key.
func descriptorKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := name
	for _, k := range keys {
		out += "|" + k + "=" + labels[k]
	}
	return out
}

// histogramBuckets are the fixed upper bounds (ms) used after the aggregate
// downgrades under memory pressure.
var histogramBuckets = []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000}

// histogram keeps raw samples until the runtime downgrades, then only
// bucket counts.
type histogram struct {
	raw     []float64
	buckets []uint64
	count   uint64
	sum     float64
}

func (h *histogram) observe(v float64, degraded bool) {
	h.count++
	h.sum += v
	if degraded {
		if h.buckets == nil {
			h.buckets = make([]uint64, len(histogramBuckets)+1)
			h.raw = nil
		}
		idx := len(histogramBuckets)
		for i, ub := range histogramBuckets {
			if v <= ub {
				idx = i
				break
			}
		}
		h.buckets[idx]++
		return
	}
	h.raw = append(h.raw, v)
}

// Runtime owns the shared aggregate and the drain worker. Buffers created
// by NewBuffer feed it batches of operations.
type Runtime struct {
	cfg      config.MetricsConfig
	redactor *Redactor
	sink     events.Sink
	rec      Recorder

	batchCh chan []op
	closeCh chan struct{}
	wg      sync.WaitGroup

	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string]*histogram

	degraded     atomic.Bool
	estBytes     atomic.Int64
	tlsSampleCtr atomic.Uint64
}

// NewRuntime starts the drain worker. rec may be nil (NoopRecorder); sink
// may be nil to discard pressure events.
func NewRuntime(cfg config.MetricsConfig, rec Recorder, sink events.Sink) *Runtime {
	if rec == nil {
		rec = NoopRecorder{}
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if cfg.BatchCapacity <= 0 {
		cfg.BatchCapacity = 256
	}
	if cfg.BatchFlushMs <= 0 {
		cfg.BatchFlushMs = 2000
	}
	if cfg.TLSSampleRate <= 0 {
		cfg.TLSSampleRate = 1
	}
	rt := &Runtime{
		cfg:        cfg,
		redactor:   NewRedactor(IPMaskMode(cfg.IPMaskMode), cfg.Debug),
		sink:       sink,
		rec:        rec,
		batchCh:    make(chan []op, 64),
		closeCh:    make(chan struct{}),
		counters:   make(map[string]float64),
		histograms: make(map[string]*histogram),
	}
	rt.wg.Add(1)
	go rt.drain()
	return rt
}

// Recorder returns the backing recorder for direct (unbuffered) use by
// components that emit rarely.
func (rt *Runtime) Recorder() Recorder { return rt.rec }

// Degraded reports whether the aggregate has downgraded to bucketed
// histograms.
func (rt *Runtime) Degraded() bool { return rt.degraded.Load() }

// Close flushes nothing further; callers flush their Buffers first. The
// drain worker exits after the channel empties.
func (rt *Runtime) Close() {
	close(rt.closeCh)
	rt.wg.Wait()
}

// CounterValue reads an aggregate counter for tests and the soak harness.
func (rt *Runtime) CounterValue(name string, labels map[string]string) float64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.counters[descriptorKey(name, rt.redactor.Apply(labels))]
}

// HistogramCount reads an aggregate histogram's observation count.
func (rt *Runtime) HistogramCount(name string, labels map[string]string) uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	h := rt.histograms[descriptorKey(name, rt.redactor.Apply(labels))]
	if h == nil {
		return 0
	}
	return h.count
}

func (rt *Runtime) drain() {
	defer rt.wg.Done()
	for {
		select {
		case batch := <-rt.batchCh:
			rt.apply(batch)
		case <-rt.closeCh:
			for {
				select {
				case batch := <-rt.batchCh:
					rt.apply(batch)
				default:
					return
				}
			}
		}
	}
}

// TLSHandshakeMetric is the histogram name subject to deterministic 1/N
// sampling.
const TLSHandshakeMetric = "tls_handshake_ms"

func (rt *Runtime) apply(batch []op) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, o := range batch {
		labels := rt.redactor.Apply(o.labels)
		key := descriptorKey(o.name, labels)
		switch o.kind {
		case opCounterInc:
			rt.counters[key] += o.value
		case opHistogramObserve:
			if o.name == TLSHandshakeMetric {
				n := rt.tlsSampleCtr.Add(1)
				if rt.cfg.TLSSampleRate > 1 && n%uint64(rt.cfg.TLSSampleRate) != 0 {
					continue
				}
			}
			h := rt.histograms[key]
			if h == nil {
				h = &histogram{}
				rt.histograms[key] = h
				rt.estBytes.Add(int64(len(key)) + 64)
			}
			wasRaw := !rt.degraded.Load()
			h.observe(o.value, rt.degraded.Load())
			if wasRaw {
				rt.estBytes.Add(8)
			}
			rt.checkPressureLocked()
		}
	}
}

// checkPressureLocked performs the one-way downgrade when the estimated
// footprint exceeds the configured budget.
func (rt *Runtime) checkPressureLocked() {
	if rt.degraded.Load() || rt.cfg.MaxMemoryBytes <= 0 {
		return
	}
	est := rt.estBytes.Load()
	if est <= rt.cfg.MaxMemoryBytes {
		return
	}
	rt.degraded.Store(true)
	for _, h := range rt.histograms {
		if h.buckets == nil {
			h.buckets = make([]uint64, len(histogramBuckets)+1)
			for _, v := range h.raw {
				idx := len(histogramBuckets)
				for i, ub := range histogramBuckets {
					if v <= ub {
						idx = i
						break
					}
				}
				h.buckets[idx]++
			}
			h.raw = nil
		}
	}
	rt.rec.IncMemoryPressure()
	rt.sink.Publish(events.MetricMemoryPressure{
		EstimatedBytes: est,
		LimitBytes:     rt.cfg.MaxMemoryBytes,
	})
	slog.Warn("metrics aggregate degraded under memory pressure",
		slog.Int64("estimated_bytes", est),
		slog.Int64("limit_bytes", rt.cfg.MaxMemoryBytes))
}

// Buffer batches metric operations for one worker goroutine. Not safe for
// concurrent use; each worker owns its Buffer and calls Close on exit.
type Buffer struct {
	rt        *Runtime
	ops       []op
	lastFlush time.Time
}

// NewBuffer creates a worker-owned buffer.
func (rt *Runtime) NewBuffer() *Buffer {
	return &Buffer{rt: rt, ops: make([]op, 0, rt.cfg.BatchCapacity), lastFlush: time.Now()}
}

// IncCounter buffers a counter increment.
func (b *Buffer) IncCounter(name string, labels map[string]string) {
	b.push(op{kind: opCounterInc, name: name, labels: labels, value: 1})
}

// ObserveHistogram buffers a histogram observation.
func (b *Buffer) ObserveHistogram(name string, labels map[string]string, value float64) {
	b.push(op{kind: opHistogramObserve, name: name, labels: labels, value: value})
}

func (b *Buffer) push(o op) {
	b.ops = append(b.ops, o)
	if len(b.ops) >= b.rt.cfg.BatchCapacity ||
		time.Since(b.lastFlush) >= time.Duration(b.rt.cfg.BatchFlushMs)*time.Millisecond {
		b.Flush()
	}
}

// Flush hands the pending batch to the drain worker.
func (b *Buffer) Flush() {
	if len(b.ops) == 0 {
		return
	}
	batch := b.ops
	b.ops = make([]op, 0, b.rt.cfg.BatchCapacity)
	b.lastFlush = time.Now()
	select {
	case b.rt.batchCh <- batch:
	case <-b.rt.closeCh:
	}
}

// Close flushes any pending operations; call on worker exit.
func (b *Buffer) Close() { b.Flush() }
