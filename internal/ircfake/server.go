package ircfake

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/ircconform/transport"
	"github.com/sirupsen/logrus"
)

// Config controls the fake server's behaviour.
type Config struct {
	// ServerName is the prefix on server replies.
	ServerName string

	// Caps is the advertised capability list.
	Caps []string

	// RefuseCaps are advertised but NAKed whenever a REQ names them.
	RefuseCaps []string

	// CapsPerLine splits CAP LS replies into continuation lines. Zero sends
	// one line.
	CapsPerLine int

	// Accounts holds SASL PLAIN credentials, user to password.
	Accounts map[string]string

	// PingCookie, when set, makes the server send PING with this token
	// before RPL_WELCOME and withhold the welcome until PONG arrives.
	PingCookie string

	// Silent accepts connections but never replies.
	Silent bool
}

// DefaultConfig returns a server advertising a typical IRCv3 capability set.
func DefaultConfig() *Config {
	return &Config{
		ServerName: "irc.fake",
		Caps:       []string{"echo-message", "message-tags", "multi-prefix", "sasl=PLAIN", "server-time"},
		Accounts:   map[string]string{},
	}
}

// Server is an in-process IRC server speaking plain TCP and WebSocket.
type Server struct {
	config *Config
	ln     net.Listener
	web    *httptest.Server

	mu       sync.Mutex
	conns    map[*conn]struct{}
	nicks    map[string]*conn
	channels map[string]*channel
	received []string
	closed   bool

	wg sync.WaitGroup
}

type channel struct {
	name    string
	topic   string
	members map[*conn]struct{}
}

// Start listens on loopback for TCP and WebSocket clients.
func Start(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ServerName == "" {
		config.ServerName = "irc.fake"
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		ln:       ln,
		conns:    make(map[*conn]struct{}),
		nicks:    make(map[string]*conn),
		channels: make(map[string]*channel),
	}
	s.web = httptest.NewServer(http.HandlerFunc(s.serveWebSocket))

	s.wg.Add(1)
	go s.acceptLoop()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"tcp":      s.Addr(),
		"ws":       s.WebSocketURL(),
	}).Debug("Fake IRC server started")
	return s, nil
}

// Addr returns the TCP listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL returns the irc:// URL of the TCP listener.
func (s *Server) URL() string {
	return "irc://" + s.Addr()
}

// WebSocketURL returns the ws:// URL of the WebSocket endpoint.
func (s *Server) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.web.URL, "http") + "/webirc"
}

// Received returns every line received from any client, in arrival order.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// ConnCount returns the number of connected clients.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client and stops both listeners.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.ln.Close()
	for _, c := range conns {
		c.close()
	}
	s.web.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "acceptLoop",
					"error":    err.Error(),
				}).Warn("Accept failed")
			}
			return
		}
		c := newTCPConn(s, nc)
		if !s.track(c) {
			nc.Close()
			return
		}
		go func() {
			defer s.wg.Done()
			c.serveTCP(nc)
		}()
	}
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{transport.WebSocketSubprotocol},
	CheckOrigin:  func(*http.Request) bool { return true },
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := newWebSocketConn(s, ws)
	if !s.track(c) {
		ws.Close()
		return
	}
	defer s.wg.Done()
	c.serveWebSocket(ws)
}

// track registers c and its serving goroutine unless the server is closing.
func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

// forget removes c from all server state and tells channel peers it quit.
func (s *Server) forget(c *conn, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
	if c.nick != "" && s.nicks[fold(c.nick)] == c {
		delete(s.nicks, fold(c.nick))
	}
	peers := make(map[*conn]struct{})
	for name, ch := range s.channels {
		if _, ok := ch.members[c]; !ok {
			continue
		}
		delete(ch.members, c)
		for p := range ch.members {
			peers[p] = struct{}{}
		}
		if len(ch.members) == 0 {
			delete(s.channels, name)
		}
	}
	if c.registered {
		for p := range peers {
			p.sendFrom(c.mask(), "QUIT", reason)
		}
	}
}

func (s *Server) record(line string) {
	s.mu.Lock()
	s.received = append(s.received, line)
	s.mu.Unlock()
}

func fold(name string) string {
	return strings.ToLower(name)
}
