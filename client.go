package ircconform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/ircconform/capability"
	"github.com/opd-ai/ircconform/limits"
	"github.com/opd-ai/ircconform/matcher"
	"github.com/opd-ai/ircconform/message"
	"github.com/opd-ai/ircconform/registration"
	"github.com/opd-ai/ircconform/sasl"
	"github.com/opd-ai/ircconform/transport"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Client.
type State uint8

const (
	// StateOpen means the transport is connected and being read.
	StateOpen State = iota
	// StateClosing means Quit or Close has started.
	StateClosing
	// StateClosed means the reader has stopped.
	StateClosed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one live connection under test: a transport, the matcher fed by
// its reader goroutine, and the negotiation helpers that run over it.
type Client struct {
	id        string
	options   *Options
	transport transport.Transport
	matcher   *matcher.Matcher
	caps      *capability.Negotiator

	mu         sync.Mutex
	state      State
	nick       string
	registered bool
	readErr    error

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to options.Target and starts reading.
func Dial(ctx context.Context, options *Options) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}
	tr, err := transport.Dial(ctx, options.Target, options.Transport)
	if err != nil {
		return nil, err
	}
	return NewClient(tr, options), nil
}

// NewClient wraps an established transport and starts its reader goroutine.
func NewClient(tr transport.Transport, options *Options) *Client {
	if options == nil {
		options = NewOptions()
	}
	id := uuid.NewString()
	c := &Client{
		id:        id,
		options:   options,
		transport: tr,
		matcher: matcher.New(&matcher.Config{
			BacklogLimit: options.BacklogLimit,
			TimeProvider: options.TimeProvider,
			Name:         id[:8],
		}),
		done: make(chan struct{}),
	}
	c.caps = capability.New(c, &capability.Config{
		Timeout:    options.AwaitTimeout,
		IdleWindow: options.IdleWindow,
		Version:    302,
	})

	logrus.WithFields(logrus.Fields{
		"function": "NewClient",
		"client":   c.shortID(),
		"remote":   addrString(tr.RemoteAddr()),
	}).Info("Client connected")

	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	err := c.transport.ReadLines(c.handleLine)

	c.mu.Lock()
	c.readErr = err
	c.state = StateClosed
	c.mu.Unlock()

	c.matcher.Close(err)

	level := logrus.InfoLevel
	if !errors.Is(err, transport.ErrClosed) && !errors.Is(err, net.ErrClosed) {
		level = logrus.WarnLevel
	}
	logrus.WithFields(logrus.Fields{
		"function": "readLoop",
		"client":   c.shortID(),
		"cause":    err,
	}).Log(level, "Client reader stopped")
	close(c.done)
}

func (c *Client) handleLine(line string) {
	logrus.WithFields(logrus.Fields{
		"function": "handleLine",
		"client":   c.shortID(),
		"line":     line,
	}).Debug("RX")

	if msg, ok := message.Parse(line); ok {
		c.observe(msg)
	}
	c.matcher.Feed(line)
}

// observe updates client state from a message before it reaches the matcher.
func (c *Client) observe(msg *message.Message) {
	switch msg.Command {
	case "PING":
		if c.options.AutoPong {
			if err := c.SendMessage("PONG", msg.Params...); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "observe",
					"client":   c.shortID(),
					"error":    err.Error(),
				}).Debug("Automatic PONG failed")
			}
		}
	case "NICK":
		c.mu.Lock()
		if c.nick != "" && msg.Nick() == c.nick {
			c.nick = msg.Param(0)
		}
		c.mu.Unlock()
	case "CAP":
		if sub := msg.Param(1); sub == "NEW" || sub == "DEL" {
			c.caps.Apply(msg)
		}
	}
}

// ID returns the client's unique id.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) shortID() string {
	return c.id[:8]
}

// Nick returns the nickname confirmed at registration, following later
// NICK changes.
func (c *Client) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

// Registered reports whether RPL_WELCOME was received.
func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.transport.RemoteAddr()
}

// Capabilities returns the capabilities enabled on this connection.
func (c *Client) Capabilities() capability.Set {
	return c.caps.Active()
}

// Negotiator returns the capability negotiator bound to this client.
func (c *Client) Negotiator() *capability.Negotiator {
	return c.caps
}

// Send writes one raw line. The line must not contain CR, LF or NUL except
// for an optional trailing delimiter.
func (c *Client) Send(line string) error {
	if err := limits.ValidateOutboundLine(line); err != nil {
		return &ClientError{Op: "send", ID: c.shortID(), Err: err}
	}
	if c.State() == StateClosed {
		return &ClientError{Op: "send", ID: c.shortID(), Err: ErrClientClosed}
	}
	if err := c.transport.Send(line); err != nil {
		return &ClientError{Op: "send", ID: c.shortID(), Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"client":   c.shortID(),
		"line":     limits.TrimDelimiter(line),
	}).Debug("TX")
	return nil
}

// Sendf formats and sends one raw line.
func (c *Client) Sendf(format string, args ...any) error {
	return c.Send(fmt.Sprintf(format, args...))
}

// SendMessage serialises command and params and sends the result.
func (c *Client) SendMessage(command string, params ...string) error {
	line, err := message.Build(command, params...)
	if err != nil {
		return &ClientError{Op: "send", ID: c.shortID(), Err: err}
	}
	return c.Send(line)
}

func (c *Client) timeout(d time.Duration) time.Duration {
	if d <= 0 {
		return c.options.AwaitTimeout
	}
	return d
}

// AwaitRaw waits for a raw line matching p. A zero timeout uses
// Options.AwaitTimeout.
func (c *Client) AwaitRaw(ctx context.Context, p matcher.RawPredicate, timeout time.Duration) (matcher.RawLine, error) {
	return c.matcher.AwaitRaw(ctx, p, c.timeout(timeout))
}

// AwaitMessage waits for a parsed message matching p. A zero timeout uses
// Options.AwaitTimeout.
func (c *Client) AwaitMessage(ctx context.Context, p matcher.MessagePredicate, timeout time.Duration) (*message.Message, error) {
	return c.matcher.AwaitMessage(ctx, p, c.timeout(timeout))
}

// ExpectNoRaw asserts no raw line matching p arrives within window.
func (c *Client) ExpectNoRaw(ctx context.Context, p matcher.RawPredicate, window time.Duration) error {
	return c.matcher.ExpectNoRaw(ctx, p, c.timeout(window))
}

// ExpectNoMessage asserts no parsed message matching p arrives within window.
func (c *Client) ExpectNoMessage(ctx context.Context, p matcher.MessagePredicate, window time.Duration) error {
	return c.matcher.ExpectNoMessage(ctx, p, c.timeout(window))
}

// ClearBacklog discards every unclaimed line.
func (c *Client) ClearBacklog() {
	c.matcher.ClearBacklog()
}

// Backlog returns the unclaimed raw lines and messages in arrival order.
func (c *Client) Backlog() ([]matcher.RawLine, []*message.Message) {
	return c.matcher.Backlog()
}

// Pending returns the number of live raw and parsed waits.
func (c *Client) Pending() (raw, parsed int) {
	return c.matcher.Pending()
}

// Negotiate runs CAP LS, requests the available subset of wanted, and sends
// CAP END.
func (c *Client) Negotiate(ctx context.Context, wanted ...string) (*capability.Result, error) {
	return c.caps.Negotiate(ctx, wanted...)
}

// RegisterOptions selects what happens during registration besides
// NICK/USER.
type RegisterOptions struct {
	// Caps are requested if the server advertises them.
	Caps []string

	// SASL authenticates before CAP END. The sasl capability is requested
	// automatically.
	SASL sasl.Mechanism
}

// Register performs connection registration as id. With caps or SASL it
// runs CAP LS, NICK/USER, CAP REQ, AUTHENTICATE and CAP END before waiting
// for RPL_WELCOME.
func (c *Client) Register(ctx context.Context, id registration.Identity, opts *RegisterOptions) (*registration.Result, error) {
	if opts == nil {
		opts = &RegisterOptions{}
	}
	negotiate := len(opts.Caps) > 0 || opts.SASL != nil

	var available capability.Set
	if negotiate {
		var err error
		if available, err = c.caps.List(ctx); err != nil {
			return nil, &ClientError{Op: "register", ID: c.shortID(), Err: err}
		}
	}

	if err := registration.Begin(c, id); err != nil {
		return nil, &ClientError{Op: "register", ID: c.shortID(), Err: err}
	}

	if negotiate {
		if err := c.negotiateDuringRegistration(ctx, available, opts); err != nil {
			return nil, &ClientError{Op: "register", ID: c.shortID(), Err: err}
		}
	}

	result, err := registration.AwaitWelcome(ctx, c, &registration.Config{
		Timeout:    c.options.RegistrationTimeout,
		AnswerPing: !c.options.AutoPong,
	})
	if err != nil {
		return nil, &ClientError{Op: "register", ID: c.shortID(), Err: err}
	}

	c.mu.Lock()
	c.nick = result.Nick
	c.registered = true
	c.mu.Unlock()
	return result, nil
}

func (c *Client) negotiateDuringRegistration(ctx context.Context, available capability.Set, opts *RegisterOptions) error {
	wanted := append([]string(nil), opts.Caps...)
	if opts.SASL != nil && !available.Has("sasl") {
		c.endNegotiation()
		return fmt.Errorf("%w: not offered", ErrSASLNotAcked)
	}
	if opts.SASL != nil {
		wanted = append(wanted, "sasl")
	}

	if req := available.Intersect(dedupe(wanted)...); len(req) > 0 {
		result, err := c.caps.Request(ctx, req...)
		if err != nil {
			return err
		}
		if opts.SASL != nil && !c.caps.Active().Has("sasl") {
			c.endNegotiation()
			return fmt.Errorf("%w: naked %v", ErrSASLNotAcked, result.Naked)
		}
	}

	if opts.SASL != nil {
		if _, err := sasl.Authenticate(ctx, c, opts.SASL, &sasl.Config{Timeout: c.options.AwaitTimeout}); err != nil {
			return err
		}
	}
	return c.caps.End()
}

// endNegotiation sends CAP END after a failed negotiation so the server does
// not hold registration open.
func (c *Client) endNegotiation() {
	if err := c.caps.End(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "negotiateDuringRegistration",
			"client":   c.shortID(),
			"error":    err.Error(),
		}).Debug("CAP END failed")
	}
}

// Quit sends QUIT and marks the client as closing. The server is expected
// to close the connection.
func (c *Client) Quit(reason string) error {
	c.mu.Lock()
	if c.state == StateOpen {
		c.state = StateClosing
	}
	c.mu.Unlock()

	params := []string{}
	if reason != "" {
		params = append(params, reason)
	}
	return c.SendMessage("QUIT", params...)
}

// Close closes the transport and waits for the reader to stop. Pending waits
// fail with matcher.ErrConnectionClosed. Close is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.state == StateOpen {
			c.state = StateClosing
		}
		c.mu.Unlock()

		err = c.transport.Close()
		<-c.done
	})
	return err
}

// Done is closed when the reader goroutine has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reader's terminal error once Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
