package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/ircconform/matcher"
	"github.com/opd-ai/ircconform/message"
	"github.com/sirupsen/logrus"
)

// ErrRegistrationTimeout indicates the server never sent RPL_WELCOME.
var ErrRegistrationTimeout = errors.New("registration timed out")

// rejectionNumerics are the replies that end a registration attempt.
var rejectionNumerics = []string{
	"432", // ERR_ERRONEUSNICKNAME
	"433", // ERR_NICKNAMEINUSE
	"436", // ERR_NICKCOLLISION
	"437", // ERR_UNAVAILRESOURCE
	"464", // ERR_PASSWDMISMATCH
	"465", // ERR_YOUREBANNEDCREEP
}

// Error reports a server rejection during registration.
type Error struct {
	// Code is the numeric, or "ERROR" when the server closed the link.
	Code    string
	Message string
	Line    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("registration rejected: %s %s", e.Code, e.Message)
}

// Conn is the part of a client connection registration needs.
type Conn interface {
	Send(line string) error
	AwaitMessage(ctx context.Context, p matcher.MessagePredicate, timeout time.Duration) (*message.Message, error)
}

// Config controls the registration wait.
type Config struct {
	// Timeout bounds the whole wait for RPL_WELCOME.
	Timeout time.Duration

	// AnswerPing replies to PING while waiting. Disable it when the
	// connection already answers PINGs on its own.
	AnswerPing bool
}

// DefaultConfig returns the default registration settings.
func DefaultConfig() *Config {
	return &Config{Timeout: 10 * time.Second, AnswerPing: true}
}

// Result describes a completed registration.
type Result struct {
	// Nick is the nickname the server confirmed in RPL_WELCOME.
	Nick string
	// Server is the source of RPL_WELCOME.
	Server  string
	Welcome *message.Message
}

// Register sends PASS (if set), NICK and USER, then waits for RPL_WELCOME.
func Register(ctx context.Context, conn Conn, id Identity, config *Config) (*Result, error) {
	if err := Begin(conn, id); err != nil {
		return nil, err
	}
	return AwaitWelcome(ctx, conn, config)
}

// Begin sends the registration commands without waiting for a reply, so
// that capability negotiation or SASL can run before AwaitWelcome.
func Begin(conn Conn, id Identity) error {
	var lines [][]string
	if id.Password != "" {
		lines = append(lines, []string{"PASS", id.Password})
	}
	lines = append(lines,
		[]string{"NICK", id.Nick},
		[]string{"USER", id.User, "0", "*", id.RealName},
	)

	for _, l := range lines {
		line, err := message.Build(l[0], l[1:]...)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		if err := conn.Send(line); err != nil {
			return fmt.Errorf("register: send %s: %w", l[0], err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Begin",
		"nick":     id.Nick,
		"user":     id.User,
	}).Debug("Registration commands sent")
	return nil
}

// AwaitWelcome waits for RPL_WELCOME, answering PING on the way when
// configured. It fails with *Error on a rejection numeric or ERROR, and with
// ErrRegistrationTimeout when the deadline passes first.
func AwaitWelcome(ctx context.Context, conn Conn, config *Config) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}

	codes := append([]string{"001"}, rejectionNumerics...)
	preds := []matcher.MessagePredicate{matcher.Numeric(codes...), matcher.Command("ERROR")}
	if config.AnswerPing {
		preds = append(preds, matcher.Command("PING"))
	}
	pred := matcher.Describe("registration outcome", matcher.Or(preds...))

	deadline := time.Now().Add(config.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %w", ErrRegistrationTimeout, matcher.ErrTimeout)
		}

		msg, err := conn.AwaitMessage(ctx, pred, remaining)
		if err != nil {
			if errors.Is(err, matcher.ErrTimeout) {
				return nil, fmt.Errorf("%w: %w", ErrRegistrationTimeout, err)
			}
			return nil, fmt.Errorf("register: %w", err)
		}

		switch msg.Command {
		case "PING":
			if err := pong(conn, msg); err != nil {
				return nil, err
			}
		case "001":
			logrus.WithFields(logrus.Fields{
				"function": "AwaitWelcome",
				"nick":     msg.Param(0),
				"server":   msg.Prefix,
			}).Info("Registered")
			return &Result{Nick: msg.Param(0), Server: msg.Prefix, Welcome: msg}, nil
		case "ERROR":
			return nil, &Error{Code: "ERROR", Message: msg.Trailing(), Line: msg.Raw}
		default:
			return nil, &Error{Code: msg.Command, Message: msg.Trailing(), Line: msg.Raw}
		}
	}
}

func pong(conn Conn, ping *message.Message) error {
	line, err := message.Build("PONG", ping.Params...)
	if err != nil {
		line = "PONG"
	}
	if err := conn.Send(line); err != nil {
		return fmt.Errorf("register: answer ping: %w", err)
	}
	return nil
}
