package ippool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gitcollab/core/internal/config"
)

// Prober measures the latency of connecting to one Candidate.
type Prober interface {
	Probe(ctx context.Context, c Candidate, timeout time.Duration) (latencyMs int64, ok bool)
}

// TCPProber measures raw TCP handshake latency.
type TCPProber struct{}

func (TCPProber) Probe(ctx context.Context, c Candidate, timeout time.Duration) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", c.IP.String(), c.Port))
	if err != nil {
		return 0, false
	}
	_ = conn.Close()
	return time.Since(start).Milliseconds(), true
}

// HTTPProber measures time-to-first-byte of an HTTP HEAD request against
// the candidate address using the configured probe path.
type HTTPProber struct {
	Path string
}

func (p HTTPProber) Probe(ctx context.Context, c Candidate, timeout time.Duration) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path := p.Path
	if path == "" {
		path = "/"
	}
	addr := fmt.Sprintf("%s:%d", c.IP.String(), c.Port)
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "tcp", addr)
			},
		},
		Timeout: timeout,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "http://"+addr+path, nil)
	if err != nil {
		return 0, false
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, false
	}
	_ = resp.Body.Close()
	return time.Since(start).Milliseconds(), true
}

// NewProber selects the Prober implied by a probe method config value.
func NewProber(method config.ProbeMethod, probePath string) Prober {
	if method == config.ProbeMethodHTTP {
		return HTTPProber{Path: probePath}
	}
	return TCPProber{}
}
