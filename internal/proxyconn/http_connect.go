package proxyconn

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gitcollab/core/internal/classerr"
)

// HTTPConnectConnector opens a tunnel through an HTTP proxy via CONNECT.
type HTTPConnectConnector struct {
	ProxyAddr string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Connect dials the proxy, issues CONNECT host:port, and returns the
// resulting tunneled net.Conn once the proxy replies with any 2xx status.
func (c HTTPConnectConnector) Connect(ctx context.Context, host string, port uint16) (net.Conn, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", c.ProxyAddr)
	if err != nil {
		return nil, classerr.NetworkError("failed to dial HTTP proxy").WithContext("proxy", c.ProxyAddr).Build()
	}

	target := fmt.Sprintf("%s:%d", host, port)
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: target},
		Host:   target,
		Header: make(http.Header),
	}
	if c.Username != "" || c.Password != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
		req.Header.Set("Proxy-Authorization", "Basic "+auth)
	}

	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target); err != nil {
		conn.Close()
		return nil, classerr.NetworkError("failed to write CONNECT request").Build()
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			fmt.Fprintf(conn, "%s: %s\r\n", k, v)
		}
	}
	fmt.Fprint(conn, "\r\n")

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, classerr.ProtocolError("failed to parse CONNECT response").Build()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusProxyAuthRequired:
		conn.Close()
		return nil, classerr.AuthError("proxy authentication required").Build()
	case resp.StatusCode/100 != 2:
		conn.Close()
		return nil, classerr.ProtocolError(fmt.Sprintf("proxy CONNECT failed: %s", resp.Status)).Build()
	}
	return conn, nil
}
