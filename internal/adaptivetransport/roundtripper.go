package adaptivetransport

import (
	"context"
	"net"
	"net/http"

	gitclient "github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// NewHTTPTransport builds an *http.Transport whose TLS connections are
// established through Dial, so go-git's smart-HTTP client exercises the
// full C3 lifecycle (IP pool, staged fallback, C1 verification) for every
// request. taskID correlates emitted events to the owning task; cancel is
// polled between stages/candidates.
func (t *Transport) NewHTTPTransport(taskID string, cancel func() bool) *http.Transport {
	return &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, portStr, err := net.SplitHostPort(addr)
			if err != nil {
				host, portStr = addr, "443"
			}
			port := uint16(443)
			if p, perr := net.LookupPort(network, portStr); perr == nil {
				port = uint16(p)
			}
			res, err := t.Dial(ctx, taskID, host, port, cancel)
			if err != nil {
				return nil, err
			}
			return res.Conn, nil
		},
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
}

// RegisterScheme installs a smart-HTTP go-git transport for the custom
// adaptive-TLS scheme used by the URL-rewrite rollout (cfg.CustomScheme).
// go-git then resolves rewritten URLs through the supplied round tripper,
// which routes every connection through Dial.
func RegisterScheme(scheme string, rt http.RoundTripper) {
	httpClient := &http.Client{Transport: rt}
	gitclient.InstallProtocol(scheme, githttp.NewClient(httpClient))
}
