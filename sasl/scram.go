package sasl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xdg-go/scram"
)

// Errors specific to SCRAM exchanges
var (
	// ErrServerSignature indicates the server failed to prove it knows the password
	ErrServerSignature = errors.New("scram: server signature mismatch")

	// ErrNonceMismatch indicates the server nonce does not extend the client nonce
	ErrNonceMismatch = errors.New("scram: server nonce does not extend client nonce")
)

type scramStep uint8

const (
	scramClientFirst scramStep = iota
	scramClientFinal
	scramVerify
	scramDone
)

// scramMechanism drives an xdg-go/scram client conversation. The library
// does the key derivation and proofs; this type adds typed errors for the
// failures a conformance test asserts on.
type scramMechanism struct {
	conv  *scram.ClientConversation
	err   error
	step  scramStep
	nonce string
}

// ScramSHA256 returns the SCRAM-SHA-256 mechanism (RFC 7677) without
// channel binding.
func ScramSHA256(user, pass string) Mechanism {
	return newScram(user, pass, nil)
}

// newScram builds the mechanism. A nil nonceGen keeps the library's random
// nonce.
func newScram(user, pass string, nonceGen scram.NonceGeneratorFcn) *scramMechanism {
	client, err := scram.SHA256.NewClient(user, pass, "")
	if err != nil {
		return &scramMechanism{err: fmt.Errorf("scram: prepare credentials: %w", err)}
	}
	if nonceGen != nil {
		client = client.WithNonceGenerator(nonceGen)
	}
	return &scramMechanism{conv: client.NewConversation()}
}

func (s *scramMechanism) Name() string { return "SCRAM-SHA-256" }

func (s *scramMechanism) Next(challenge []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	switch s.step {
	case scramClientFirst:
		s.step = scramClientFinal
		first, err := s.conv.Step("")
		if err != nil {
			return nil, fmt.Errorf("scram: %w", err)
		}
		s.nonce = first[strings.LastIndex(first, ",r=")+len(",r="):]
		return []byte(first), nil
	case scramClientFinal:
		s.step = scramVerify
		return s.clientFinal(string(challenge))
	case scramVerify:
		s.step = scramDone
		return []byte{}, s.verify(string(challenge))
	default:
		return nil, fmt.Errorf("SCRAM-SHA-256: %w", ErrUnexpectedChallenge)
	}
}

func (s *scramMechanism) clientFinal(serverFirst string) ([]byte, error) {
	if msg, ok := strings.CutPrefix(serverFirst, "e="); ok {
		return nil, fmt.Errorf("scram: server error: %s", msg)
	}
	nonce := scramAttr(serverFirst, "r")
	if !strings.HasPrefix(nonce, s.nonce) || len(nonce) == len(s.nonce) {
		return nil, ErrNonceMismatch
	}
	final, err := s.conv.Step(serverFirst)
	if err != nil {
		return nil, fmt.Errorf("scram: %w", err)
	}
	return []byte(final), nil
}

func (s *scramMechanism) verify(serverFinal string) error {
	if msg, ok := strings.CutPrefix(serverFinal, "e="); ok {
		return fmt.Errorf("scram: server error: %s", msg)
	}
	if _, err := s.conv.Step(serverFinal); err != nil {
		return fmt.Errorf("%w: %v", ErrServerSignature, err)
	}
	if !s.conv.Valid() {
		return ErrServerSignature
	}
	return nil
}

// scramAttr returns the value of attribute key in a comma-separated SCRAM
// message.
func scramAttr(msg, key string) string {
	for _, part := range strings.Split(msg, ",") {
		if v, ok := strings.CutPrefix(part, key+"="); ok {
			return v
		}
	}
	return ""
}
