package ircfake

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type lineConn struct {
	t  *testing.T
	nc net.Conn
	r  *bufio.Reader
}

func dial(t *testing.T, s *Server) *lineConn {
	t.Helper()
	nc, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	return &lineConn{t: t, nc: nc, r: bufio.NewReader(nc)}
}

func (c *lineConn) send(line string) {
	c.t.Helper()
	_, err := c.nc.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

// expect reads lines until one contains want.
func (c *lineConn) expect(want string) string {
	c.t.Helper()
	require.NoError(c.t, c.nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		line, err := c.r.ReadString('\n')
		require.NoError(c.t, err, "waiting for %q", want)
		line = strings.TrimRight(line, "\r\n")
		if strings.Contains(line, want) {
			return line
		}
	}
}

func (c *lineConn) register(nick string) {
	c.t.Helper()
	c.send("NICK " + nick)
	c.send("USER " + nick + " 0 * :" + nick)
	c.expect(" 001 " + nick + " ")
}

func startServer(t *testing.T, config *Config) *Server {
	t.Helper()
	s, err := Start(config)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRegistrationWelcome(t *testing.T) {
	s := startServer(t, nil)
	c := dial(t, s)

	c.send("NICK alice")
	c.send("USER alice 0 * :Alice")
	line := c.expect(" 001 ")
	assert.Equal(t, ":irc.fake 001 alice :Welcome to the Fake IRC Network alice!alice@127.0.0.1", line)
	c.expect(" 422 alice ")
}

func TestCapNegotiationHoldsWelcome(t *testing.T) {
	config := DefaultConfig()
	config.CapsPerLine = 2
	s := startServer(t, config)
	c := dial(t, s)

	c.send("CAP LS 302")
	c.send("NICK bob")
	c.send("USER bob 0 * :Bob")
	assert.Equal(t, ":irc.fake CAP * LS * :echo-message message-tags", c.expect("CAP * LS * :echo"))
	assert.Equal(t, ":irc.fake CAP * LS server-time", c.expect("LS server-time"))

	c.send("CAP REQ :server-time bogus")
	c.expect("CAP bob NAK :server-time bogus")
	c.send("CAP REQ :server-time")
	c.expect("CAP bob ACK server-time")
	c.send("CAP END")
	c.expect(" 001 bob ")
}

func TestNickInUse(t *testing.T) {
	s := startServer(t, nil)
	a := dial(t, s)
	a.register("carol")

	b := dial(t, s)
	b.send("NICK Carol")
	assert.Equal(t, ":irc.fake 433 * Carol :Nickname is already in use", b.expect(" 433 "))
	b.send("NICK 1bad")
	b.expect(" 432 * 1bad ")
}

func TestPingCookie(t *testing.T) {
	config := DefaultConfig()
	config.PingCookie = "cookie123"
	s := startServer(t, config)
	c := dial(t, s)

	c.send("NICK dave")
	c.send("USER dave 0 * :Dave")
	assert.Equal(t, "PING cookie123", c.expect("PING"))
	c.send("PONG cookie123")
	c.expect(" 001 dave ")
}

func TestSASLPlain(t *testing.T) {
	config := DefaultConfig()
	config.Accounts["erin"] = "hunter2"
	s := startServer(t, config)
	c := dial(t, s)

	c.send("CAP REQ sasl")
	c.expect("ACK")
	c.send("AUTHENTICATE SCRAM-SHA-256")
	c.expect(" 908 * PLAIN ")
	c.send("AUTHENTICATE PLAIN")
	c.expect("AUTHENTICATE +")
	c.send("AUTHENTICATE ZXJpbgBlcmluAGh1bnRlcjI=") // erin\x00erin\x00hunter2
	c.expect(" 900 * ")
	c.expect(" 903 * ")

	c.send("AUTHENTICATE PLAIN")
	c.expect("AUTHENTICATE +")
	c.send("AUTHENTICATE *")
	c.expect(" 906 ")
}

func TestChannelTraffic(t *testing.T) {
	s := startServer(t, nil)
	a := dial(t, s)
	a.register("frank")
	b := dial(t, s)
	b.register("grace")

	a.send("JOIN #test")
	a.expect(":frank!frank@127.0.0.1 JOIN #test")
	a.expect(" 366 frank #test ")
	b.send("JOIN #test")
	a.expect(":grace!grace@127.0.0.1 JOIN #test")
	assert.Equal(t, ":irc.fake 353 grace = #test :frank grace", b.expect(" 353 "))

	b.send("PRIVMSG #test :hello there")
	assert.Equal(t, ":grace!grace@127.0.0.1 PRIVMSG #test :hello there", a.expect("PRIVMSG"))

	a.send("TOPIC #test :new topic")
	b.expect("TOPIC #test :new topic")
	b.send("TOPIC #test")
	b.expect(" 332 grace #test :new topic")

	b.send("PART #test :see you")
	a.expect(":grace!grace@127.0.0.1 PART #test :see you")
	b.send("PART #test")
	b.expect(" 442 grace #test ")

	b.send("QUIT :done")
	b.expect("ERROR :Closing Link")
}

func TestQuitBroadcast(t *testing.T) {
	s := startServer(t, nil)
	a := dial(t, s)
	a.register("heidi")
	b := dial(t, s)
	b.register("ivan")
	a.send("JOIN #q")
	a.expect(" 366 ")
	b.send("JOIN #q")
	b.expect(" 366 ")

	b.send("QUIT :gone")
	assert.Equal(t, ":ivan!ivan@127.0.0.1 QUIT :Quit: gone", a.expect("QUIT"))
}

func TestUnregisteredAndUnknownCommands(t *testing.T) {
	s := startServer(t, nil)
	c := dial(t, s)

	c.send("JOIN #x")
	c.expect(" 451 * ")
	c.register("judy")
	c.send("FROBNICATE")
	c.expect(" 421 judy FROBNICATE ")
	c.send("PING :abc")
	assert.Equal(t, ":irc.fake PONG irc.fake abc", c.expect("PONG"))
}

func TestEchoMessageAndClientTags(t *testing.T) {
	s := startServer(t, nil)
	a := dial(t, s)
	a.send("CAP LS 302")
	a.send("CAP REQ :echo-message message-tags")
	a.expect("ACK")
	a.send("CAP END")
	a.register("kate")

	a.send("@+draft/react=x PRIVMSG kate :hi there")
	line := a.expect("PRIVMSG")
	assert.True(t, strings.HasPrefix(line, "@+draft/react=x :kate!kate@127.0.0.1 PRIVMSG kate :hi there"), line)
}

func TestSilentAndReceived(t *testing.T) {
	config := DefaultConfig()
	config.Silent = true
	s := startServer(t, config)
	c := dial(t, s)
	c.send("NICK quiet")

	assert.Eventually(t, func() bool {
		return len(s.Received()) == 1 && s.ConnCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"NICK quiet"}, s.Received())
}
