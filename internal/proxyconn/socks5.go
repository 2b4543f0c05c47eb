package proxyconn

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gitcollab/core/internal/classerr"
)

const (
	socks5Version    = 0x05
	socks5MethodNone = 0x00
	socks5MethodUser = 0x02
	socks5MethodFail = 0xff

	socks5CmdConnect = 0x01

	socks5AtypIPv4   = 0x01
	socks5AtypDomain = 0x03
	socks5AtypIPv6   = 0x04

	socks5AuthVersion = 0x01
	socks5AuthSuccess = 0x00
)

// socks5ReplyNames maps RFC 1928 REP codes to human-readable reasons.
var socks5ReplyNames = map[byte]string{
	0x00: "succeeded",
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

// Socks5Connector opens a tunnel through a SOCKS5 proxy per RFC 1928, with
// RFC 1929 username/password sub-negotiation when credentials are set.
type Socks5Connector struct {
	ProxyAddr string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Connect dials the proxy, negotiates a method, optionally authenticates,
// and issues a CONNECT request for host:port.
func (c Socks5Connector) Connect(ctx context.Context, host string, port uint16) (net.Conn, error) {
	if len(c.Username) > 255 || len(c.Password) > 255 {
		return nil, classerr.ProtocolError("SOCKS5 username/password must each be at most 255 bytes").Build()
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", c.ProxyAddr)
	if err != nil {
		return nil, classerr.NetworkError("failed to dial SOCKS5 proxy").WithContext("proxy", c.ProxyAddr).Build()
	}
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	br := bufio.NewReader(conn)

	if err := c.negotiateMethod(conn, br); err != nil {
		conn.Close()
		return nil, err
	}

	if err := c.connectRequest(conn, br, host, port); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func (c Socks5Connector) negotiateMethod(conn net.Conn, br *bufio.Reader) error {
	useAuth := c.Username != "" || c.Password != ""
	methods := []byte{socks5MethodNone}
	if useAuth {
		methods = append(methods, socks5MethodUser)
	}

	greeting := make([]byte, 0, 2+len(methods))
	greeting = append(greeting, socks5Version, byte(len(methods)))
	greeting = append(greeting, methods...)
	if _, err := conn.Write(greeting); err != nil {
		return classerr.NetworkError("failed to write SOCKS5 greeting").Build()
	}

	reply := make([]byte, 2)
	if _, err := readFull(br, reply); err != nil {
		return classerr.ProtocolError("failed to read SOCKS5 greeting reply").Build()
	}
	if reply[0] != socks5Version {
		return classerr.ProtocolError("SOCKS5 server replied with unsupported version").Build()
	}

	switch reply[1] {
	case socks5MethodNone:
		return nil
	case socks5MethodUser:
		if !useAuth {
			return classerr.ProtocolError("SOCKS5 server demanded auth but no credentials configured").Build()
		}
		return c.authenticate(conn, br)
	case socks5MethodFail:
		return classerr.AuthError("SOCKS5 server rejected all offered auth methods").Build()
	default:
		return classerr.ProtocolError(fmt.Sprintf("SOCKS5 server selected unsupported method 0x%02x", reply[1])).Build()
	}
}

func (c Socks5Connector) authenticate(conn net.Conn, br *bufio.Reader) error {
	req := make([]byte, 0, 3+len(c.Username)+len(c.Password))
	req = append(req, socks5AuthVersion, byte(len(c.Username)))
	req = append(req, []byte(c.Username)...)
	req = append(req, byte(len(c.Password)))
	req = append(req, []byte(c.Password)...)
	if _, err := conn.Write(req); err != nil {
		return classerr.NetworkError("failed to write SOCKS5 auth sub-negotiation").Build()
	}

	reply := make([]byte, 2)
	if _, err := readFull(br, reply); err != nil {
		return classerr.ProtocolError("failed to read SOCKS5 auth reply").Build()
	}
	if reply[1] != socks5AuthSuccess {
		return classerr.AuthError("SOCKS5 username/password authentication failed").Build()
	}
	return nil
}

func (c Socks5Connector) connectRequest(conn net.Conn, br *bufio.Reader, host string, port uint16) error {
	req := []byte{socks5Version, socks5CmdConnect, 0x00}

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			req = append(req, socks5AtypIPv4)
			req = append(req, v4...)
		} else {
			req = append(req, socks5AtypIPv6)
			req = append(req, ip.To16()...)
		}
	} else {
		if len(host) > 255 {
			return classerr.ProtocolError("SOCKS5 domain name exceeds 255 bytes").Build()
		}
		req = append(req, socks5AtypDomain, byte(len(host)))
		req = append(req, []byte(host)...)
	}
	req = append(req, byte(port>>8), byte(port))

	if _, err := conn.Write(req); err != nil {
		return classerr.NetworkError("failed to write SOCKS5 connect request").Build()
	}

	header := make([]byte, 4)
	if _, err := readFull(br, header); err != nil {
		return classerr.ProtocolError("failed to read SOCKS5 connect reply header").Build()
	}
	if header[0] != socks5Version {
		return classerr.ProtocolError("SOCKS5 connect reply has unsupported version").Build()
	}

	rep := header[1]
	atyp := header[3]

	// Bind address must still be consumed off the wire even though we
	// discard it; its length depends on ATYP.
	switch atyp {
	case socks5AtypIPv4:
		if _, err := readFull(br, make([]byte, 4+2)); err != nil {
			return classerr.ProtocolError("failed to read SOCKS5 bind address").Build()
		}
	case socks5AtypIPv6:
		if _, err := readFull(br, make([]byte, 16+2)); err != nil {
			return classerr.ProtocolError("failed to read SOCKS5 bind address").Build()
		}
	case socks5AtypDomain:
		lenBuf := make([]byte, 1)
		if _, err := readFull(br, lenBuf); err != nil {
			return classerr.ProtocolError("failed to read SOCKS5 bind address length").Build()
		}
		if _, err := readFull(br, make([]byte, int(lenBuf[0])+2)); err != nil {
			return classerr.ProtocolError("failed to read SOCKS5 bind address").Build()
		}
	default:
		return classerr.ProtocolError("SOCKS5 reply used unsupported address type").Build()
	}

	if rep != 0x00 {
		name, ok := socks5ReplyNames[rep]
		if !ok {
			name = fmt.Sprintf("unknown reply code 0x%02x", rep)
		}
		return classerr.ProtocolError("SOCKS5 connect failed: " + name).WithContext("repCode", fmt.Sprintf("0x%02x", rep)).Build()
	}

	return nil
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
