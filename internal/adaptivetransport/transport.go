package adaptivetransport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/ippool"
	"github.com/gitcollab/core/internal/proxyconn"
	"github.com/gitcollab/core/internal/tlsverify"
)

// Dialer opens a TCP connection to an address, used so Transport can be
// routed either directly (net.Dialer) or through a C4 proxy connector.
type Dialer interface {
	DialContext(ctx context.Context, host string, port uint16, timeout time.Duration) (net.Conn, error)
}

type directDialer struct{}

func (directDialer) DialContext(ctx context.Context, host string, port uint16, timeout time.Duration) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	return d.DialContext(dctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
}

// proxyDialer adapts a proxyconn.Connector (whose target is dialed by the
// proxy itself) to the Dialer interface.
type proxyDialer struct{ c proxyconn.Connector }

func (p proxyDialer) DialContext(ctx context.Context, host string, port uint16, timeout time.Duration) (net.Conn, error) {
	return p.c.Connect(ctx, host, port)
}

// Transport implements the C3 connection lifecycle: it consults the IP pool
// for candidates, walks Fake->Real->Default stages, performs TLS with the
// C1 verifier, and records per-connection observability.
type Transport struct {
	cfg     config.AdaptiveTransportConfig
	tlsCfg  config.TLSConfig
	pool    *ippool.Pool
	dialer  Dialer
	sink    events.Sink
	autoDis *AutoDisable

	mu          sync.Mutex
	lastCertFP  map[string]string
	obsByTask   map[string]*ConnectionObservability
}

// NewTransport builds a Transport that dials directly; call WithProxy
// afterwards to route TCP connects through C4.
func NewTransport(cfg config.AdaptiveTransportConfig, tlsCfg config.TLSConfig, pool *ippool.Pool, sink events.Sink) *Transport {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Transport{
		cfg: cfg, tlsCfg: tlsCfg, pool: pool, dialer: directDialer{}, sink: sink,
		autoDis:    NewAutoDisable(cfg, sink),
		lastCertFP: make(map[string]string),
		obsByTask:  make(map[string]*ConnectionObservability),
	}
}

// WithProxy routes subsequent Dial calls' TCP connects through the given C4
// connector instead of dialing directly.
func (t *Transport) WithProxy(connector proxyconn.Connector) {
	if connector == nil {
		t.dialer = directDialer{}
		return
	}
	t.dialer = proxyDialer{c: connector}
}

// Result is the outcome of a successful Dial: the established TLS
// connection, plus the connection's observability snapshot.
type Result struct {
	Conn  *tls.Conn
	Obs   *ConnectionObservability
}

// Dial establishes a verified TLS connection to host:port, walking the
// candidate list and the stage ladder. taskID correlates emitted events;
// cancel is polled between candidates and stages.
func (t *Transport) Dial(ctx context.Context, taskID, host string, port uint16, cancel func() bool) (Result, error) {
	obs := newObservability()
	if taskID != "" {
		defer t.retainObs(taskID, obs)
	}

	if len(t.cfg.SANWhitelist) > 0 && !tlsverify.MatchAny(t.cfg.SANWhitelist, host) {
		return Result{}, classerr.VerifyError("host not in SAN whitelist").WithContext("host", host).Build()
	}

	stage := StageReal
	if t.cfg.FakeSNIEnabled && !t.autoDis.IsFakeDisabled(host) {
		stage = StageFake
	}

	sel := t.pool.PickBest(ctx, host, port)
	obs.IPStrategy = string(sel.Strategy)
	if sel.Best != nil {
		obs.IPLatencyMs = sel.Best.LatencyMs
		if len(sel.Best.Candidate.Sources) > 0 {
			obs.IPSource = string(sel.Best.Candidate.Sources[0])
		}
	}

	var lastErr error
	for {
		if cancel != nil && cancel() {
			return Result{}, classerr.CancelError("dial canceled").Build()
		}
		obs.FallbackStage = stage

		conn, fakeHandshakeErr, err := t.attemptStage(ctx, taskID, host, port, stage, sel, obs, cancel)
		if err == nil {
			obs.Timing.TotalMs = time.Since(obs.start).Milliseconds()
			t.pool.ReportOutcome(host, port, sel, ippool.OutcomeSuccess)
			t.checkCertFPChanged(host, conn, obs)
			t.sink.Publish(events.AdaptiveTLSTiming{
				TaskID: taskID, Host: host, ConnectMs: obs.Timing.ConnectMs, TLSMs: obs.Timing.TLSMs,
				FirstByteMs: obs.Timing.FirstByteMs, TotalMs: obs.Timing.TotalMs, UsedFake: obs.UsedFake,
			})
			return Result{Conn: conn, Obs: obs}, nil
		}
		lastErr = err

		if stage == StageFake {
			t.autoDis.RecordFakeAttempt(host, false)
		}

		next, ok := stage.next()
		if !ok {
			break
		}
		obs.recordTransition(stage, next, transitionReason(fakeHandshakeErr))
		t.sink.Publish(events.AdaptiveTLSFallback{TaskID: taskID, Host: host, From: string(stage), To: string(next), Reason: transitionReason(fakeHandshakeErr)})
		stage = next
	}
	t.pool.ReportOutcome(host, port, sel, ippool.OutcomeFailure)
	return Result{}, lastErr
}

func transitionReason(fakeHandshakeErr bool) string {
	if fakeHandshakeErr {
		return "FakeHandshakeError"
	}
	return "ConnectError"
}

// attemptStage iterates the stage's candidates (falling back to
// SystemDefault DNS when all cached candidates fail), returning a live TLS
// connection on success.
func (t *Transport) attemptStage(ctx context.Context, taskID, host string, port uint16, stage Stage, sel ippool.Selection, obs *ConnectionObservability, cancel func() bool) (*tls.Conn, bool, error) {
	candidates := candidateAddrs(sel, host)
	timeout := time.Duration(t.cfg.TCPConnectTimeoutMs) * time.Millisecond
	if sel.IsSystemDefault() {
		timeout = time.Duration(t.cfg.SystemResolverTimeoutMs) * time.Millisecond
	}

	var lastErr error
	fakeHandshake := false
	for _, addr := range candidates {
		if cancel != nil && cancel() {
			return nil, false, classerr.CancelError("dial canceled").Build()
		}
		connStart := time.Now()
		raw, err := t.dialer.DialContext(ctx, addr, port, timeout)
		if err != nil {
			t.pool.ReportCandidateOutcome(host, port, sel, attemptAddr(addr, port), ippool.OutcomeFailure)
			lastErr = classerr.NetworkError("tcp connect failed").WithContext("addr", addr).Build()
			continue
		}
		obs.Timing.ConnectMs = time.Since(connStart).Milliseconds()

		presented, override := stage.sni(t.cfg.FakeSNIHost, host)
		tlsStart := time.Now()
		tlsConn, err := t.handshake(ctx, raw, taskID, presented, override)
		obs.Timing.TLSMs = time.Since(tlsStart).Milliseconds()
		if err != nil {
			raw.Close()
			t.pool.ReportCandidateOutcome(host, port, sel, attemptAddr(addr, port), ippool.OutcomeFailure)
			lastErr = err
			if stage == StageFake {
				fakeHandshake = true
			}
			continue
		}

		t.pool.ReportCandidateOutcome(host, port, sel, attemptAddr(addr, port), ippool.OutcomeSuccess)
		if stage == StageFake {
			t.autoDis.RecordFakeAttempt(host, true)
			obs.UsedFake = true
		}
		return tlsConn, false, nil
	}

	if !sel.IsSystemDefault() {
		sysSel := ippool.Selection{Strategy: ippool.StrategySystemDefault}
		conn, fake, err := t.attemptStage(ctx, taskID, host, port, stage, sysSel, obs, cancel)
		if err == nil {
			return conn, fake, nil
		}
		lastErr = err
		fakeHandshake = fakeHandshake || fake
	}
	if lastErr == nil {
		lastErr = classerr.NetworkError("no candidates available").WithContext("host", host).Build()
	}
	return nil, fakeHandshake, lastErr
}

func (t *Transport) handshake(ctx context.Context, raw net.Conn, taskID, presentedSNI, overrideHost string) (*tls.Conn, error) {
	opts := tlsverify.Options{TLS: t.tlsCfg, PresentedName: presentedSNI, OverrideHost: overrideHost, TaskID: taskID, Sink: t.sink}
	tlsCfg := tlsverify.NewClientTLSConfig(presentedSNI, opts)

	tlsConn := tls.Client(raw, tlsCfg)
	done := make(chan error, 1)
	go func() { done <- tlsConn.HandshakeContext(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			return nil, classerr.TlsError("tls handshake failed").WithContext("sni", presentedSNI).Build()
		}
		return tlsConn, nil
	case <-ctx.Done():
		tlsConn.Close()
		return nil, classerr.CancelError("tls handshake canceled").Build()
	}
}

// attemptAddr formats the candidate actually attempted for outcome
// attribution, matching the pool's "ip:port" metric key format.
func attemptAddr(addr string, port uint16) string {
	return addr + ":" + strconv.Itoa(int(port))
}

func candidateAddrs(sel ippool.Selection, host string) []string {
	if sel.IsSystemDefault() || sel.Best == nil {
		return []string{host}
	}
	addrs := []string{sel.Best.Candidate.IP.String()}
	for _, alt := range sel.Alternatives {
		addrs = append(addrs, alt.Candidate.IP.String())
	}
	return addrs
}

func (t *Transport) checkCertFPChanged(host string, conn *tls.Conn, obs *ConnectionObservability) {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return
	}
	digest := sha256.Sum256(state.PeerCertificates[0].Raw)
	fp := hex.EncodeToString(digest[:])

	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.lastCertFP[host]
	t.lastCertFP[host] = fp
	if seen && prev != fp {
		obs.CertFPChanged = true
		t.sink.Publish(events.CertFpChanged{Host: host, OldFp: prev, NewFp: fp})
	}
}
