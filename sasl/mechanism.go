package sasl

import (
	"errors"
	"fmt"
)

// Mechanism is one SASL mechanism's client side. Next is called with each
// decoded server challenge, starting with the empty challenge that follows
// "AUTHENTICATE <name>", and returns the response to send.
type Mechanism interface {
	Name() string
	Next(challenge []byte) ([]byte, error)
}

// ErrUnexpectedChallenge is returned when a server sends more challenges
// than the mechanism defines.
var ErrUnexpectedChallenge = errors.New("unexpected sasl challenge")

type plain struct {
	authzid, user, pass string
	done                bool
}

// Plain returns the PLAIN mechanism with an empty authorization identity.
func Plain(user, pass string) Mechanism {
	return &plain{user: user, pass: pass}
}

// PlainAs returns the PLAIN mechanism authorizing as authzid.
func PlainAs(authzid, user, pass string) Mechanism {
	return &plain{authzid: authzid, user: user, pass: pass}
}

func (p *plain) Name() string { return "PLAIN" }

func (p *plain) Next(challenge []byte) ([]byte, error) {
	if p.done {
		return nil, fmt.Errorf("PLAIN: %w", ErrUnexpectedChallenge)
	}
	p.done = true
	return []byte(p.authzid + "\x00" + p.user + "\x00" + p.pass), nil
}

type external struct {
	authzid string
	done    bool
}

// External returns the EXTERNAL mechanism, which relies on the TLS client
// certificate presented during the handshake.
func External() Mechanism {
	return &external{}
}

func (e *external) Name() string { return "EXTERNAL" }

func (e *external) Next(challenge []byte) ([]byte, error) {
	if e.done {
		return nil, fmt.Errorf("EXTERNAL: %w", ErrUnexpectedChallenge)
	}
	e.done = true
	return []byte(e.authzid), nil
}
