package ircconform

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/ircconform/capability"
	"github.com/opd-ai/ircconform/limits"
	"github.com/opd-ai/ircconform/matcher"
	"github.com/opd-ai/ircconform/transport"
)

// Environment variables read by LoadOptionsFromEnv.
const (
	EnvTarget       = "IRCCONFORM_TARGET"
	EnvAwaitTimeout = "IRCCONFORM_AWAIT_TIMEOUT_MS"
	EnvIdleWindow   = "IRCCONFORM_IDLE_WINDOW_MS"
	EnvInsecure     = "IRCCONFORM_INSECURE"
	EnvProxy        = "IRCCONFORM_PROXY"
	EnvNickPrefix   = "IRCCONFORM_NICK_PREFIX"
)

// Options configures clients created directly or through a Harness.
type Options struct {
	// Target is the server URL: irc://, ircs://, ws://, wss:// or host:port.
	Target string

	// Transport holds TLS, proxy, WebSocket and framing settings.
	Transport *transport.Config

	// AwaitTimeout is used by waits that pass a zero timeout.
	AwaitTimeout time.Duration

	// RegistrationTimeout bounds the wait for RPL_WELCOME.
	RegistrationTimeout time.Duration

	// IdleWindow bounds each wait for a further CAP continuation line.
	IdleWindow time.Duration

	// BacklogLimit bounds each per-connection backlog. Zero is unbounded.
	BacklogLimit int

	// NickPrefix starts every generated nickname and channel.
	NickPrefix string

	// AutoPong answers server PINGs from the reader goroutine.
	AutoPong bool

	// QuitMessage is sent with QUIT during teardown.
	QuitMessage string

	// TimeProvider measures wait durations. Nil uses the system clock.
	TimeProvider matcher.TimeProvider
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Target:              "localhost:6667",
		Transport:           transport.DefaultConfig(),
		AwaitTimeout:        5 * time.Second,
		RegistrationTimeout: 10 * time.Second,
		IdleWindow:          capability.DefaultIdleWindow,
		BacklogLimit:        limits.DefaultBacklogLimit,
		NickPrefix:          "cf",
		QuitMessage:         "ircconform teardown",
	}
}

// NewOptionsForTesting creates Options with short timeouts suited to an
// in-process server.
func NewOptionsForTesting() *Options {
	options := NewOptions()
	options.Target = "127.0.0.1:6667"
	options.Transport.DialTimeout = 2 * time.Second
	options.AwaitTimeout = time.Second
	options.RegistrationTimeout = 2 * time.Second
	options.IdleWindow = 50 * time.Millisecond
	return options
}

// Clone returns a copy of o with its own transport config.
func (o *Options) Clone() *Options {
	cp := *o
	if o.Transport != nil {
		tc := *o.Transport
		tc.Subprotocols = append([]string(nil), o.Transport.Subprotocols...)
		cp.Transport = &tc
	} else {
		cp.Transport = transport.DefaultConfig()
	}
	return &cp
}

// Validate reports option values that cannot work.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Target) == "" {
		return fmt.Errorf("options: target is required")
	}
	if _, err := transport.ParseTarget(o.Target); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	if o.AwaitTimeout <= 0 {
		return fmt.Errorf("options: await timeout must be positive, got %v", o.AwaitTimeout)
	}
	if o.RegistrationTimeout <= 0 {
		return fmt.Errorf("options: registration timeout must be positive, got %v", o.RegistrationTimeout)
	}
	if o.IdleWindow <= 0 {
		return fmt.Errorf("options: idle window must be positive, got %v", o.IdleWindow)
	}
	if o.BacklogLimit < 0 {
		return fmt.Errorf("options: backlog limit cannot be negative")
	}
	return nil
}

// LoadOptionsFromEnv returns a copy of base with IRCCONFORM_* environment
// variables applied. A nil base starts from NewOptions.
func LoadOptionsFromEnv(base *Options) (*Options, error) {
	if base == nil {
		base = NewOptions()
	}
	options := base.Clone()

	options.Target = envOrString(EnvTarget, options.Target)
	options.NickPrefix = envOrString(EnvNickPrefix, options.NickPrefix)
	options.AwaitTimeout = envOrMillis(EnvAwaitTimeout, options.AwaitTimeout)
	options.IdleWindow = envOrMillis(EnvIdleWindow, options.IdleWindow)
	options.Transport.InsecureSkipVerify = envOrBool(EnvInsecure, options.Transport.InsecureSkipVerify)

	if raw := os.Getenv(EnvProxy); raw != "" {
		proxy, err := transport.ParseProxyURL(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvProxy, err)
		}
		options.Transport.Proxy = proxy
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// envOrString returns the environment variable value or def if unset.
func envOrString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envOrMillis returns the environment variable parsed as milliseconds, or
// def if it is unset or not a positive integer.
func envOrMillis(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// envOrBool recognizes 1/yes/true and 0/no/false; anything else keeps def.
func envOrBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "yes", "true":
		return true
	case "0", "no", "false":
		return false
	default:
		return def
	}
}
