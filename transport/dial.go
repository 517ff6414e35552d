package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Default ports for targets that omit one.
const (
	DefaultPort    = "6667"
	DefaultTLSPort = "6697"
)

// Target is a parsed connection target.
type Target struct {
	Scheme string
	Host   string
	// Addr is host:port for irc/ircs targets.
	Addr string
	// URL is the full URL for ws/wss targets.
	URL string
}

// ParseTarget parses irc://, ircs://, ws:// and wss:// URLs. A bare
// host:port is treated as irc://.
func ParseTarget(target string) (*Target, error) {
	if !strings.Contains(target, "://") {
		target = "irc://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parse target %q: missing host", target)
	}

	t := &Target{Scheme: strings.ToLower(u.Scheme), Host: u.Hostname()}
	switch t.Scheme {
	case "irc", "ircs":
		port := u.Port()
		if port == "" {
			port = DefaultPort
			if t.Scheme == "ircs" {
				port = DefaultTLSPort
			}
		}
		t.Addr = net.JoinHostPort(t.Host, port)
	case "ws", "wss":
		u.Scheme = t.Scheme
		t.URL = u.String()
		t.Addr = u.Host
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return t, nil
}

// Dial connects to target and returns a ready Transport. A nil config uses
// DefaultConfig.
func Dial(ctx context.Context, target string, config *Config) (Transport, error) {
	if config == nil {
		config = DefaultConfig()
	}
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	if config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.DialTimeout)
		defer cancel()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"scheme":   t.Scheme,
		"addr":     t.Addr,
		"proxied":  config.Proxy != nil,
	}).Debug("Dialing target")

	switch t.Scheme {
	case "ws":
		return dialWebSocket(ctx, t.URL, t.Host, false, config)
	case "wss":
		return dialWebSocket(ctx, t.URL, t.Host, true, config)
	}

	conn, err := dialStream(ctx, t.Addr, config)
	if err != nil {
		return nil, err
	}

	if t.Scheme == "ircs" {
		tlsConn := tls.Client(conn, config.tlsConfig(t.Host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &Error{Op: "tls handshake", Addr: t.Addr, Err: err}
		}
		conn = tlsConn
	}

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"scheme":   t.Scheme,
		"remote":   conn.RemoteAddr().String(),
	}).Info("Connection established")

	return NewTCPTransport(conn, config), nil
}

func dialStream(ctx context.Context, addr string, config *Config) (net.Conn, error) {
	dial := (&net.Dialer{}).DialContext
	if config.Proxy != nil {
		proxyDial, err := config.Proxy.dialContext()
		if err != nil {
			return nil, err
		}
		dial = proxyDial
	}
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Op: "dial", Addr: addr, Err: err}
	}
	return conn, nil
}
