package ippool

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/util/sets"
	"golang.org/x/sync/singleflight"
)

// Pool is the C2 entry point: PickBest, ReportOutcome, and MaintenanceTick.
type Pool struct {
	cfg     config.IPPoolConfig
	cache   *Cache
	metrics *OutcomeMetrics
	breaker *CircuitBreaker
	history *History
	sources []CandidateSource
	prober  Prober
	group   singleflight.Group
	sink    events.Sink

	preheat sets.Set[string]
}

// New builds a Pool from configuration, wiring up the enabled sources.
func New(cfg config.IPPoolConfig, sink events.Sink) *Pool {
	p := &Pool{
		cfg:     cfg,
		cache:   NewCache(),
		metrics: NewOutcomeMetrics(),
		breaker: NewCircuitBreaker(cfg.CircuitBreakerEnabled, cfg.FailureThreshold, cfg.FailureRateThreshold, cfg.FailureWindowSeconds, cfg.MinSamplesInWindow, cfg.CooldownSeconds),
		history: NewHistory(cfg.HistoryPath),
		prober:  NewProber(cfg.ProbeMethod, cfg.ProbePath),
		sink:    sink,
		preheat: sets.New[string](),
	}
	if sink == nil {
		p.sink = events.NopSink{}
	}
	for _, d := range cfg.PreheatDomains {
		p.preheat.Add(d.Host)
	}

	if cfg.Sources.Builtin {
		p.sources = append(p.sources, BuiltinSource{})
	}
	if cfg.Sources.DNS {
		p.sources = append(p.sources, DNSSource{Cfg: cfg.DNS})
	}
	if cfg.Sources.History {
		p.sources = append(p.sources, HistorySource{History: p.history})
	}
	if cfg.Sources.UserStatic {
		p.sources = append(p.sources, UserStaticSource{Entries: cfg.UserStatic})
	}
	if cfg.Sources.Fallback {
		p.sources = append(p.sources, FallbackSource{})
	}
	return p
}

// PickBest returns the ranked candidate selection for (host, port):
// a cached best when one is fresh, a newly sampled one otherwise, or the
// system-default marker when the pool is disabled or sampling comes up dry.
func (p *Pool) PickBest(ctx context.Context, host string, port uint16) Selection {
	now := time.Now()

	if !p.cfg.Enabled {
		return Selection{Strategy: StrategySystemDefault}
	}

	if best, ok := p.cache.Get(host, port, now); ok && !p.breaker.Tripped(addrString(best.Candidate.IP, best.Candidate.Port), now) {
		p.sink.Publish(events.IPPoolSelection{Host: host, Port: port, Strategy: string(StrategyCached), LatencyMs: best.LatencyMs})
		return Selection{Strategy: StrategyCached, Best: &best, Alternatives: p.cache.Alternatives(host, port)}
	}

	ranked := p.sample(ctx, host, port, now)
	if len(ranked) == 0 {
		p.sink.Publish(events.IPPoolSelection{Host: host, Port: port, Strategy: string(StrategySystemDefault)})
		return Selection{Strategy: StrategySystemDefault}
	}

	p.cache.Put(host, port, ranked, now)
	_ = p.history.Upsert(host, port, ranked)

	best := ranked[0]
	alts := ranked[1:]
	p.sink.Publish(events.IPPoolSelection{Host: host, Port: port, Strategy: string(StrategyCached), LatencyMs: best.LatencyMs})
	return Selection{Strategy: StrategyCached, Best: &best, Alternatives: alts}
}

// sample deduplicates concurrent callers for the same (host,port) via
// single-flight, then probes every merged candidate and returns them
// ascending by latency.
func (p *Pool) sample(ctx context.Context, host string, port uint16, now time.Time) []Stat {
	sfKey := host + "|" + strconv.Itoa(int(port))
	v, err, _ := p.group.Do(sfKey, func() (any, error) {
		sctx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.SingleflightTimeoutMs)*time.Millisecond)
		defer cancel()
		return p.probeAll(sctx, host, port, now), nil
	})
	if err != nil || v == nil {
		p.sink.Publish(events.IPPoolRefresh{Host: host, Port: port, Success: false, Reason: "sample_failed"})
		return nil
	}
	ranked := v.([]Stat)
	p.sink.Publish(events.IPPoolRefresh{Host: host, Port: port, Success: len(ranked) > 0})
	return ranked
}

func (p *Pool) probeAll(ctx context.Context, host string, port uint16, now time.Time) []Stat {
	var groups [][]Candidate
	for _, src := range p.sources {
		cands, err := src.Resolve(ctx, host, port)
		if err != nil {
			continue
		}
		groups = append(groups, cands)
	}
	merged := mergeCandidates(groups...)

	timeout := time.Duration(p.cfg.ProbeTimeoutMs) * time.Millisecond
	sem := make(chan struct{}, max(1, p.cfg.MaxParallelProbes))
	type result struct {
		stat Stat
		ok   bool
	}
	results := make(chan result, len(merged))

	var wg sync.WaitGroup
	for _, c := range merged {
		if p.breaker.Tripped(addrString(c.IP, c.Port), now) {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(c Candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			latency, ok := p.prober.Probe(ctx, c, timeout)
			outcome := OutcomeFailure
			if ok {
				outcome = OutcomeSuccess
			}
			p.metrics.RecordCandidate(host, port, addrString(c.IP, c.Port), outcome, latency)
			results <- result{Stat{
				Candidate:  c,
				LatencyMs:  latency,
				MeasuredAt: now,
				ExpiresAt:  now.Add(time.Duration(p.cfg.ScoreTTLSeconds) * time.Second),
			}, ok}
		}(c)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var ranked []Stat
	for r := range results {
		if r.ok {
			ranked = append(ranked, r.stat)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].LatencyMs < ranked[j].LatencyMs })
	return ranked
}

// ReportCandidateOutcome records one candidate attempt ("ip:port") without
// moving the (host,port) aggregate; for Cached selections the candidate
// also feeds the circuit breaker.
func (p *Pool) ReportCandidateOutcome(host string, port uint16, sel Selection, addr string, outcome Outcome) {
	if addr == "" {
		return
	}
	p.metrics.RecordCandidate(host, port, addr, outcome, 0)
	if sel.Strategy == StrategyCached {
		p.breaker.Record(addr, outcome, time.Now())
	}
}

// ReportOutcome records a connection's final outcome against the
// (host,port) aggregate. Call once per connection, after the fallback
// ladder settles.
func (p *Pool) ReportOutcome(host string, port uint16, sel Selection, outcome Outcome) {
	p.metrics.Record(host, port, "", outcome, 0)
}

// MaintenanceTick prunes expired and over-capacity slots; call periodically and
// opportunistically on writes.
func (p *Pool) MaintenanceTick() {
	p.cache.Prune(time.Now(), p.preheat, p.cfg.MaxCacheEntries)
}

func (p *Pool) Cache() *Cache               { return p.cache }
func (p *Pool) Metrics() *OutcomeMetrics     { return p.metrics }
func (p *Pool) History() *History           { return p.history }
func (p *Pool) RebindHistory(path string) { p.history.Rebind(path) }

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
