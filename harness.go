package ircconform

import (
	"context"
	"sync"
	"testing"

	"github.com/opd-ai/ircconform/registration"
	"github.com/sirupsen/logrus"
)

// Harness owns every client a test opens and tears them down together.
// Each test creates its own Harness; nothing is shared between harnesses.
type Harness struct {
	options *Options
	ids     *registration.Generator

	mu      sync.Mutex
	clients []*Client
	closed  bool
}

// NewHarness creates a Harness. A nil options uses NewOptions.
func NewHarness(options *Options) *Harness {
	if options == nil {
		options = NewOptions()
	}
	return &Harness{
		options: options,
		ids:     registration.NewGenerator(options.NickPrefix),
	}
}

// NewTestHarness creates a Harness that is closed when tb finishes.
func NewTestHarness(tb testing.TB, options *Options) *Harness {
	tb.Helper()
	h := NewHarness(options)
	tb.Cleanup(h.Close)
	return h
}

// Options returns the options clients are created with.
func (h *Harness) Options() *Options {
	return h.options
}

// Identities returns the generator used for nicknames and channels.
func (h *Harness) Identities() *registration.Generator {
	return h.ids
}

// Connect opens a new client to the configured target.
func (h *Harness) Connect(ctx context.Context) (*Client, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHarnessClosed
	}
	h.mu.Unlock()

	c, err := Dial(ctx, h.options)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		c.Close()
		return nil, ErrHarnessClosed
	}
	h.clients = append(h.clients, c)
	return c, nil
}

// ConnectAndRegister opens a client and registers it with a fresh identity
// derived from tag. On registration failure the client is still returned,
// still owned by the harness, so the test can inspect what arrived.
func (h *Harness) ConnectAndRegister(ctx context.Context, tag string, opts *RegisterOptions) (*Client, error) {
	c, err := h.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.Register(ctx, h.ids.Identity(tag), opts); err != nil {
		return c, err
	}
	return c, nil
}

// Clients returns the clients opened so far, in creation order.
func (h *Harness) Clients() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Client(nil), h.clients...)
}

// Close sends QUIT on every open client and closes each transport, in
// creation order. Teardown errors are logged and otherwise ignored. Close is
// idempotent.
func (h *Harness) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.mu.Unlock()

	for _, c := range clients {
		if c.State() == StateOpen {
			if err := c.Quit(h.options.QuitMessage); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Harness.Close",
					"client":   c.shortID(),
					"error":    err.Error(),
				}).Debug("QUIT failed during teardown")
			}
		}
		if err := c.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Harness.Close",
				"client":   c.shortID(),
				"error":    err.Error(),
			}).Debug("Close failed during teardown")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Harness.Close",
		"clients":  len(clients),
	}).Debug("Harness closed")
}
