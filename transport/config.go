package transport

import (
	"crypto/tls"
	"time"

	"github.com/opd-ai/ircconform/limits"
)

// WebSocketSubprotocol is the IRCv3 text subprotocol offered by default.
const WebSocketSubprotocol = "text.ircv3.net"

// Config holds dialing and framing options shared by all transports.
type Config struct {
	// TLSConfig is cloned for ircs:// and wss:// targets. Nil uses a
	// TLS 1.2+ config with ServerName taken from the target.
	TLSConfig *tls.Config

	// InsecureSkipVerify disables certificate verification, for test servers
	// with self-signed certificates.
	InsecureSkipVerify bool

	// DialTimeout bounds connection setup, including TLS and the WebSocket
	// handshake.
	DialTimeout time.Duration

	// WriteTimeout bounds each Send. Zero disables the deadline.
	WriteTimeout time.Duration

	// Proxy routes the connection through a SOCKS5 or HTTP CONNECT proxy.
	Proxy *ProxyConfig

	// Subprotocols offered during the WebSocket handshake.
	Subprotocols []string

	// Origin is sent as the WebSocket Origin header when set.
	Origin string

	// MaxLineLength bounds inbound lines, delimiter excluded. Zero falls back
	// to limits.MaxReadBuffer.
	MaxLineLength int
}

// DefaultConfig returns a Config with conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Second,
		Subprotocols:  []string{WebSocketSubprotocol},
		MaxLineLength: limits.MaxReadBuffer,
	}
}

func (c *Config) tlsConfig(serverName string) *tls.Config {
	var cfg *tls.Config
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	if c.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
