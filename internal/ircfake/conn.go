package ircfake

import (
	"bytes"
	"encoding/base64"
	"net"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/ergochat/irc-go/ircreader"
	"github.com/gorilla/websocket"
	"github.com/opd-ai/ircconform/limits"
	"github.com/opd-ai/ircconform/message"
	"github.com/sirupsen/logrus"
)

// conn is one client connection. Fields below wmu are guarded by the
// server mutex.
type conn struct {
	srv     *Server
	write   func(line string) error
	closeFn func() error

	wmu       sync.Mutex
	closeOnce sync.Once

	nick         string
	user         string
	registered   bool
	negotiating  bool
	pingSent     bool
	awaitingPong bool
	caps         map[string]bool
	saslMech     string
	account      string
	quitReason   string
}

func newTCPConn(s *Server, nc net.Conn) *conn {
	c := &conn{srv: s, caps: make(map[string]bool), closeFn: nc.Close}
	c.write = func(line string) error {
		_, err := nc.Write([]byte(line + "\r\n"))
		return err
	}
	return c
}

func newWebSocketConn(s *Server, ws *websocket.Conn) *conn {
	c := &conn{srv: s, caps: make(map[string]bool), closeFn: ws.Close}
	c.write = func(line string) error {
		return ws.WriteMessage(websocket.TextMessage, []byte(line))
	}
	return c
}

func (c *conn) serveTCP(nc net.Conn) {
	var reader ircreader.Reader
	reader.Initialize(nc, 512, limits.MaxReadBuffer)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			break
		}
		c.handle(string(line))
	}
	c.close()
	c.srv.forget(c, c.exitReason())
}

func (c *conn) serveWebSocket(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		c.handle(limits.TrimDelimiter(string(data)))
	}
	c.close()
	c.srv.forget(c, c.exitReason())
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		if err := c.closeFn(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "conn.close",
				"error":    err.Error(),
			}).Debug("Close failed")
		}
	})
}

func (c *conn) exitReason() string {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.quitReason != "" {
		return "Quit: " + c.quitReason
	}
	return "Connection closed"
}

// send writes one line built from its parts.
func (c *conn) send(tags map[string]string, source, command string, params ...string) {
	msg := ircmsg.MakeMessage(tags, source, command, params...)
	line, err := msg.Line()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "conn.send",
			"command":  command,
			"error":    err.Error(),
		}).Warn("Cannot serialise reply")
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.write(strings.TrimSuffix(line, "\r\n")); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "conn.send",
			"command":  command,
			"error":    err.Error(),
		}).Debug("Write failed")
	}
}

// sendFrom relays a message from source, adding server-time when enabled.
func (c *conn) sendFrom(source, command string, params ...string) {
	c.send(c.timeTag(nil), source, command, params...)
}

func (c *conn) timeTag(tags map[string]string) map[string]string {
	if !c.caps["server-time"] {
		return tags
	}
	if tags == nil {
		tags = make(map[string]string, 1)
	}
	tags["time"] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	return tags
}

// numeric sends a reply from the server addressed to this client.
func (c *conn) numeric(code string, params ...string) {
	c.send(nil, c.srv.config.ServerName, code, append([]string{c.target()}, params...)...)
}

func (c *conn) target() string {
	if c.nick == "" {
		return "*"
	}
	return c.nick
}

func (c *conn) mask() string {
	return c.nick + "!" + c.user + "@127.0.0.1"
}

func (c *conn) handle(line string) {
	c.srv.record(line)
	if c.srv.config.Silent {
		return
	}
	msg, ok := message.Parse(line)
	if !ok {
		return
	}

	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	switch msg.Command {
	case "CAP":
		c.handleCap(msg)
	case "NICK":
		c.handleNick(msg)
	case "USER":
		if c.registered {
			c.numeric("462", "You may not reregister")
			return
		}
		c.user = msg.Param(0)
		c.tryWelcome()
	case "PASS":
	case "PING":
		c.send(nil, c.srv.config.ServerName, "PONG", c.srv.config.ServerName, msg.Param(0))
	case "PONG":
		if c.awaitingPong && contains(msg.Params, c.srv.config.PingCookie) {
			c.awaitingPong = false
			c.tryWelcome()
		}
	case "AUTHENTICATE":
		c.handleAuthenticate(msg)
	case "QUIT":
		c.quitReason = msg.Param(0)
		c.send(nil, "", "ERROR", "Closing Link: 127.0.0.1 (Quit: "+c.quitReason+")")
		c.close()
	default:
		if !c.registered {
			c.numeric("451", "You have not registered")
			return
		}
		c.handleRegistered(msg)
	}
}

func (c *conn) handleRegistered(msg *message.Message) {
	switch msg.Command {
	case "JOIN":
		c.handleJoin(msg)
	case "PART":
		c.handlePart(msg)
	case "PRIVMSG", "NOTICE":
		c.handleMessage(msg)
	case "TOPIC":
		c.handleTopic(msg)
	default:
		c.numeric("421", msg.Command, "Unknown command")
	}
}

func (c *conn) handleCap(msg *message.Message) {
	switch strings.ToUpper(msg.Param(0)) {
	case "LS":
		if !c.registered {
			c.negotiating = true
		}
		caps := c.srv.config.Caps
		per := c.srv.config.CapsPerLine
		if per <= 0 || per > len(caps) {
			per = len(caps)
		}
		if len(caps) == 0 {
			c.send(nil, c.srv.config.ServerName, "CAP", c.target(), "LS", "")
			return
		}
		for i := 0; i < len(caps); i += per {
			end := i + per
			if end >= len(caps) {
				c.send(nil, c.srv.config.ServerName, "CAP", c.target(), "LS", strings.Join(caps[i:], " "))
				break
			}
			c.send(nil, c.srv.config.ServerName, "CAP", c.target(), "LS", "*", strings.Join(caps[i:end], " "))
		}
	case "REQ":
		if !c.registered {
			c.negotiating = true
		}
		requested := strings.Fields(msg.Param(1))
		for _, r := range requested {
			name := strings.TrimPrefix(r, "-")
			if !c.knownCap(name) || slices.Contains(c.srv.config.RefuseCaps, name) {
				c.send(nil, c.srv.config.ServerName, "CAP", c.target(), "NAK", msg.Param(1))
				return
			}
		}
		for _, r := range requested {
			if name, ok := strings.CutPrefix(r, "-"); ok {
				delete(c.caps, name)
			} else {
				c.caps[r] = true
			}
		}
		c.send(nil, c.srv.config.ServerName, "CAP", c.target(), "ACK", msg.Param(1))
	case "LIST":
		names := make([]string, 0, len(c.caps))
		for name := range c.caps {
			names = append(names, name)
		}
		sort.Strings(names)
		c.send(nil, c.srv.config.ServerName, "CAP", c.target(), "LIST", strings.Join(names, " "))
	case "END":
		c.negotiating = false
		c.tryWelcome()
	default:
		c.numeric("410", msg.Param(0), "Invalid CAP command")
	}
}

func (c *conn) knownCap(name string) bool {
	for _, advertised := range c.srv.config.Caps {
		if n, _, _ := strings.Cut(advertised, "="); n == name {
			return true
		}
	}
	return false
}

func (c *conn) handleNick(msg *message.Message) {
	nick := msg.Param(0)
	switch {
	case nick == "":
		c.numeric("431", "No nickname given")
		return
	case !validNick(nick):
		c.numeric("432", nick, "Erroneous nickname")
		return
	}
	if other := c.srv.nicks[fold(nick)]; other != nil && other != c {
		c.numeric("433", nick, "Nickname is already in use")
		return
	}

	oldMask := c.mask()
	if c.nick != "" {
		delete(c.srv.nicks, fold(c.nick))
	}
	c.srv.nicks[fold(nick)] = c

	if c.registered {
		c.sendFrom(oldMask, "NICK", nick)
		for p := range c.peers() {
			p.sendFrom(oldMask, "NICK", nick)
		}
	}
	c.nick = nick
	c.tryWelcome()
}

func (c *conn) tryWelcome() {
	if c.registered || c.nick == "" || c.user == "" || c.negotiating {
		return
	}
	if cookie := c.srv.config.PingCookie; cookie != "" {
		if !c.pingSent {
			c.pingSent = true
			c.awaitingPong = true
			c.send(nil, "", "PING", cookie)
			return
		}
		if c.awaitingPong {
			return
		}
	}

	c.registered = true
	name := c.srv.config.ServerName
	c.numeric("001", "Welcome to the Fake IRC Network "+c.mask())
	c.numeric("002", "Your host is "+name+", running version ircfake-1")
	c.numeric("004", name, "ircfake-1", "io", "t")
	c.numeric("005", "CHANTYPES=#", "NICKLEN=30", "CASEMAPPING=ascii", "are supported by this server")
	c.numeric("422", "MOTD File is missing")
}

func (c *conn) handleAuthenticate(msg *message.Message) {
	param := msg.Param(0)
	if c.saslMech == "" {
		if strings.ToUpper(param) != "PLAIN" {
			c.numeric("908", "PLAIN", "are available SASL mechanisms")
			c.numeric("904", "SASL authentication failed")
			return
		}
		c.saslMech = "PLAIN"
		c.send(nil, "", "AUTHENTICATE", "+")
		return
	}

	c.saslMech = ""
	if param == "*" {
		c.numeric("906", "SASL authentication aborted")
		return
	}
	var payload []byte
	if param != "+" {
		var err error
		if payload, err = base64.StdEncoding.DecodeString(param); err != nil {
			c.numeric("904", "SASL authentication failed")
			return
		}
	}
	parts := bytes.Split(payload, []byte{0})
	if len(parts) != 3 {
		c.numeric("904", "SASL authentication failed")
		return
	}
	user, pass := string(parts[1]), string(parts[2])
	if want, ok := c.srv.config.Accounts[user]; !ok || want != pass {
		c.numeric("904", "SASL authentication failed")
		return
	}
	c.account = user
	c.numeric("900", c.mask(), user, "You are now logged in as "+user)
	c.numeric("903", "SASL authentication successful")
}

func (c *conn) handleJoin(msg *message.Message) {
	for _, name := range strings.Split(msg.Param(0), ",") {
		if !strings.HasPrefix(name, "#") {
			c.numeric("403", name, "No such channel")
			continue
		}
		ch := c.srv.channels[fold(name)]
		if ch == nil {
			ch = &channel{name: name, members: make(map[*conn]struct{})}
			c.srv.channels[fold(name)] = ch
		}
		if _, ok := ch.members[c]; ok {
			continue
		}
		ch.members[c] = struct{}{}
		for m := range ch.members {
			m.sendFrom(c.mask(), "JOIN", ch.name)
		}
		if ch.topic != "" {
			c.numeric("332", ch.name, ch.topic)
		}
		names := make([]string, 0, len(ch.members))
		for m := range ch.members {
			names = append(names, m.nick)
		}
		sort.Strings(names)
		c.numeric("353", "=", ch.name, strings.Join(names, " "))
		c.numeric("366", ch.name, "End of /NAMES list")
	}
}

func (c *conn) handlePart(msg *message.Message) {
	name := msg.Param(0)
	ch := c.srv.channels[fold(name)]
	if ch == nil {
		c.numeric("403", name, "No such channel")
		return
	}
	if _, ok := ch.members[c]; !ok {
		c.numeric("442", ch.name, "You're not on that channel")
		return
	}
	params := []string{ch.name}
	if reason := msg.Param(1); reason != "" {
		params = append(params, reason)
	}
	for m := range ch.members {
		m.sendFrom(c.mask(), "PART", params...)
	}
	delete(ch.members, c)
	if len(ch.members) == 0 {
		delete(c.srv.channels, fold(name))
	}
}

func (c *conn) handleMessage(msg *message.Message) {
	target, text := msg.Param(0), msg.Param(1)
	if target == "" {
		c.numeric("411", "No recipient given ("+msg.Command+")")
		return
	}
	if text == "" {
		c.numeric("412", "No text to send")
		return
	}

	var recipients []*conn
	if strings.HasPrefix(target, "#") {
		ch := c.srv.channels[fold(target)]
		if ch == nil {
			c.numeric("403", target, "No such channel")
			return
		}
		if _, ok := ch.members[c]; !ok {
			c.numeric("404", ch.name, "Cannot send to channel")
			return
		}
		for m := range ch.members {
			if m != c {
				recipients = append(recipients, m)
			}
		}
	} else {
		r := c.srv.nicks[fold(target)]
		if r == nil || !r.registered {
			c.numeric("401", target, "No such nick/channel")
			return
		}
		if r != c {
			recipients = append(recipients, r)
		}
	}
	if c.caps["echo-message"] {
		recipients = append(recipients, c)
	}

	for _, r := range recipients {
		var tags map[string]string
		if r.caps["message-tags"] {
			for k, v := range msg.Tags {
				if strings.HasPrefix(k, "+") {
					if tags == nil {
						tags = make(map[string]string)
					}
					tags[k] = v
				}
			}
		}
		r.send(r.timeTag(tags), c.mask(), msg.Command, target, text)
	}
}

func (c *conn) handleTopic(msg *message.Message) {
	name := msg.Param(0)
	ch := c.srv.channels[fold(name)]
	if ch == nil {
		c.numeric("403", name, "No such channel")
		return
	}
	if len(msg.Params) < 2 {
		if ch.topic == "" {
			c.numeric("331", ch.name, "No topic is set")
		} else {
			c.numeric("332", ch.name, ch.topic)
		}
		return
	}
	if _, ok := ch.members[c]; !ok {
		c.numeric("442", ch.name, "You're not on that channel")
		return
	}
	ch.topic = msg.Param(1)
	for m := range ch.members {
		m.sendFrom(c.mask(), "TOPIC", ch.name, ch.topic)
	}
}

// peers returns every client sharing a channel with c.
func (c *conn) peers() map[*conn]struct{} {
	peers := make(map[*conn]struct{})
	for _, ch := range c.srv.channels {
		if _, ok := ch.members[c]; !ok {
			continue
		}
		for m := range ch.members {
			if m != c {
				peers[m] = struct{}{}
			}
		}
	}
	return peers
}

func validNick(nick string) bool {
	if len(nick) == 0 || len(nick) > 30 {
		return false
	}
	for i := 0; i < len(nick); i++ {
		ch := nick[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case strings.IndexByte("[]\\`_^{|}", ch) >= 0:
		case i > 0 && (ch >= '0' && ch <= '9' || ch == '-'):
		default:
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
