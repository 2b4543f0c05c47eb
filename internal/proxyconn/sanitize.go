// Package proxyconn implements C4: the HTTP CONNECT and SOCKS5 client
// connectors used when the proxy manager (C5) is in the Enabled state.
package proxyconn

import (
	"context"
	"net"
	"net/url"
	"strings"
)

// Connector establishes a tunneled connection to host:port through a proxy.
// HTTPConnectConnector and Socks5Connector both implement it.
type Connector interface {
	Connect(ctx context.Context, host string, port uint16) (net.Conn, error)
}

// Sanitize redacts userinfo from a proxy URL for logging/events:
// credentials are replaced with ***:*** so logs never carry secrets.
func Sanitize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.User != nil {
		// url.UserPassword would escape '*' as %2A, so splice the literal
		// placeholder in after the scheme instead.
		u.User = nil
		s := u.String()
		if i := strings.Index(s, "://"); i >= 0 {
			return s[:i+3] + "***:***@" + s[i+3:]
		}
		return "***:***@" + s
	}
	return u.String()
}
