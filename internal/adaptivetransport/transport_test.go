package adaptivetransport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/ippool"
)

type captureSink struct {
	mu   sync.Mutex
	evts []any
}

func (s *captureSink) Publish(evt any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evts = append(s.evts, evt)
}

func (s *captureSink) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.evts...)
}

// startTLSServer binds a self-signed TLS listener on 127.0.0.1 and serves
// handshakes until the test ends. Returns the bound port.
func startTLSServer(t *testing.T) uint16 {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, aerr := ln.Accept()
			if aerr != nil {
				return
			}
			go func(c net.Conn) {
				if tc, ok := c.(*tls.Conn); ok {
					_ = tc.Handshake()
				}
				time.Sleep(200 * time.Millisecond)
				_ = c.Close()
			}(conn)
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)
	return uint16(port)
}

func testTransportConfig() (config.AdaptiveTransportConfig, config.TLSConfig) {
	atCfg := config.DefaultAdaptiveTransportConfig()
	atCfg.FakeSNIEnabled = false
	atCfg.TCPConnectTimeoutMs = 500
	atCfg.SystemResolverTimeoutMs = 500
	tlsCfg := config.TLSConfig{InsecureSkipVerify: true, SkipSANWhitelist: true}
	return atCfg, tlsCfg
}

// poolWithCachedCandidates primes a pool whose cached best is a dead
// address and whose alternative is the live server.
func poolWithCachedCandidates(port uint16, sink events.Sink) *ippool.Pool {
	cfg := config.DefaultIPPoolConfig()
	cfg.Sources = config.IPPoolSourceToggle{}
	cfg.CircuitBreakerEnabled = false
	pool := ippool.New(cfg, sink)

	now := time.Now()
	mk := func(ip string, latency int64) ippool.Stat {
		return ippool.Stat{
			Candidate: ippool.Candidate{
				IP: net.ParseIP(ip), Port: port, Sources: []ippool.Source{ippool.SourceUserStatic},
			},
			LatencyMs:  latency,
			MeasuredAt: now,
			ExpiresAt:  now.Add(time.Hour),
		}
	}
	pool.Cache().Put("localhost", port, []ippool.Stat{mk("127.0.0.2", 1), mk("127.0.0.1", 5)}, now)
	return pool
}

func TestDialRecoversViaAlternativeCandidate(t *testing.T) {
	port := startTLSServer(t)
	sink := &captureSink{}
	atCfg, tlsCfg := testTransportConfig()
	pool := poolWithCachedCandidates(port, sink)
	tr := NewTransport(atCfg, tlsCfg, pool, sink)

	res, err := tr.Dial(t.Context(), "task-1", "localhost", port, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Conn)
	defer res.Conn.Close()

	assert.Equal(t, "Cached", res.Obs.IPStrategy)
	assert.Equal(t, "UserStatic", res.Obs.IPSource)
	assert.False(t, res.Obs.UsedFake)

	agg := pool.Metrics().Aggregate("localhost", port)
	assert.Equal(t, int64(1), agg.Success)
	assert.Equal(t, int64(0), agg.Failure)

	dead := pool.Metrics().Candidate("localhost", port, "127.0.0.2:"+strconv.Itoa(int(port)))
	assert.GreaterOrEqual(t, dead.Failure, int64(1))
	live := pool.Metrics().Candidate("localhost", port, "127.0.0.1:"+strconv.Itoa(int(port)))
	assert.Equal(t, int64(1), live.Success)

	// Successful dials publish one timing event and a task-scoped snapshot.
	var timings int
	for _, e := range sink.all() {
		if _, ok := e.(events.AdaptiveTLSTiming); ok {
			timings++
		}
	}
	assert.Equal(t, 1, timings)
	assert.NotNil(t, tr.TakeObs("task-1"))
	assert.Nil(t, tr.TakeObs("task-1"), "TakeObs releases the entry")
}

func TestDialFailsThroughStageLadder(t *testing.T) {
	sink := &captureSink{}
	atCfg, tlsCfg := testTransportConfig()
	atCfg.FakeSNIEnabled = true
	atCfg.FakeSNIHost = "camouflage.example"

	cfg := config.DefaultIPPoolConfig()
	cfg.Enabled = false
	pool := ippool.New(cfg, sink)
	tr := NewTransport(atCfg, tlsCfg, pool, sink)

	// 192.0.2.1 (TEST-NET) never answers; every stage exhausts and falls
	// through Fake -> Real -> Default.
	_, err := tr.Dial(t.Context(), "task-2", "192.0.2.1", 9, nil)
	require.Error(t, err)

	var transitions []events.AdaptiveTLSFallback
	for _, e := range sink.all() {
		if ev, ok := e.(events.AdaptiveTLSFallback); ok {
			transitions = append(transitions, ev)
		}
	}
	require.Len(t, transitions, 2)
	assert.Equal(t, "Fake", transitions[0].From)
	assert.Equal(t, "Real", transitions[0].To)
	assert.Equal(t, "Real", transitions[1].From)
	assert.Equal(t, "Default", transitions[1].To)
	for _, ev := range transitions {
		assert.NotEqual(t, ev.From, ev.To)
	}

	agg := pool.Metrics().Aggregate("192.0.2.1", 9)
	assert.Equal(t, int64(1), agg.Failure)
}

func TestAutoDisableTripsAndCoolsDown(t *testing.T) {
	sink := &captureSink{}
	cfg := config.DefaultAdaptiveTransportConfig()
	cfg.AutoDisableWindowSize = 5
	cfg.AutoDisableThresholdPct = 60
	cfg.AutoDisableCooldownSec = 60

	ad := NewAutoDisable(cfg, sink)
	for i := 0; i < 4; i++ {
		ad.RecordFakeAttempt("github.com", false)
	}
	assert.True(t, ad.IsFakeDisabled("github.com"))

	var toggles []events.AdaptiveTLSAutoDisable
	for _, e := range sink.all() {
		if ev, ok := e.(events.AdaptiveTLSAutoDisable); ok {
			toggles = append(toggles, ev)
		}
	}
	require.NotEmpty(t, toggles)
	assert.True(t, toggles[0].Enabled)
	assert.Equal(t, 60, toggles[0].ThresholdPct)

	// Other hosts are unaffected.
	assert.False(t, ad.IsFakeDisabled("gitlab.com"))
}

func TestRolloutIsDeterministicPerHost(t *testing.T) {
	cfg := config.DefaultAdaptiveTransportConfig()
	cfg.RolloutPercent = 50

	first := ShouldRewrite(cfg, "github.com", nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ShouldRewrite(cfg, "github.com", nil))
	}

	cfg.RolloutPercent = 100
	assert.True(t, ShouldRewrite(cfg, "github.com", nil))
	cfg.RolloutPercent = 0
	assert.False(t, ShouldRewrite(cfg, "github.com", nil))
}

func TestRewriteURLUsesCustomScheme(t *testing.T) {
	cfg := config.DefaultAdaptiveTransportConfig()
	cfg.RolloutPercent = 100
	cfg.CustomScheme = "gitcollab+https"

	out := RewriteURL("https://github.com/acme/repo.git", "github.com", cfg, nil)
	assert.Equal(t, "gitcollab+https://github.com/acme/repo.git", out)

	// Non-https URLs pass through untouched.
	ssh := RewriteURL("ssh://git@github.com/acme/repo.git", "github.com", cfg, nil)
	assert.Equal(t, "ssh://git@github.com/acme/repo.git", ssh)
}

func TestDialRejectsHostOutsideSANWhitelist(t *testing.T) {
	sink := &captureSink{}
	atCfg, tlsCfg := testTransportConfig()
	atCfg.SANWhitelist = []string{"github.com", "*.github.com"}

	cfg := config.DefaultIPPoolConfig()
	cfg.Enabled = false
	pool := ippool.New(cfg, sink)
	tr := NewTransport(atCfg, tlsCfg, pool, sink)

	_, err := tr.Dial(t.Context(), "", "evil.example.com", 443, nil)
	require.Error(t, err)
}
