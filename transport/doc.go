// Package transport provides the line-oriented connections an IRC
// conformance client speaks over.
//
// # Transports
//
// All implementations satisfy the Transport interface:
//
//	type Transport interface {
//	    Send(line string) error
//	    ReadLines(handler LineHandler) error
//	    Close() error
//	    RemoteAddr() net.Addr
//	}
//
// TCPTransport frames lines with "\r\n" and serves plain TCP, TLS and
// proxied connections. WebSocketTransport sends one line per text message
// using the text.ircv3.net subprotocol.
//
// Dial picks the implementation from the target URL:
//
//	t, err := transport.Dial(ctx, "ircs://irc.example.org", nil)
//	t, err := transport.Dial(ctx, "wss://irc.example.org/webirc", nil)
//	t, err := transport.Dial(ctx, "localhost:6667", nil) // irc:// implied
//
// # Framing
//
// Stream transports read through ircreader from irc-go, which accepts both
// "\r\n" and bare "\n" and reassembles lines split across TCP segments. An
// unterminated fragment is never delivered, not even at end of stream.
// WebSocket messages are split on embedded delimiters the same way. Lines
// longer than Config.MaxLineLength terminate the connection with
// ErrLineTooLong.
//
// # Proxies
//
// Config.Proxy routes any target through SOCKS5 (golang.org/x/net/proxy) or
// an HTTP CONNECT proxy:
//
//	config := transport.DefaultConfig()
//	config.Proxy = &transport.ProxyConfig{Type: "socks5", Host: "127.0.0.1", Port: 9050}
package transport
