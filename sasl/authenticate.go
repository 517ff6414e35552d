package sasl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opd-ai/ircconform/limits"
	"github.com/opd-ai/ircconform/matcher"
	"github.com/opd-ai/ircconform/message"
	"github.com/sirupsen/logrus"
)

// ErrAborted indicates the client aborted the exchange after a mechanism
// failure.
var ErrAborted = errors.New("sasl exchange aborted")

// Error reports a SASL failure numeric from the server.
type Error struct {
	Code    string
	Message string
	// Mechanisms lists the server's mechanisms when it sent RPL_SASLMECHS.
	Mechanisms []string
}

func (e *Error) Error() string {
	if len(e.Mechanisms) > 0 {
		return fmt.Sprintf("sasl failed: %s %s (server offers %s)", e.Code, e.Message, strings.Join(e.Mechanisms, ","))
	}
	return fmt.Sprintf("sasl failed: %s %s", e.Code, e.Message)
}

// Conn is the part of a client connection SASL needs.
type Conn interface {
	Send(line string) error
	AwaitMessage(ctx context.Context, p matcher.MessagePredicate, timeout time.Duration) (*message.Message, error)
}

// Config controls the exchange.
type Config struct {
	// Timeout bounds each wait for a server reply.
	Timeout time.Duration
}

// DefaultConfig returns the default SASL settings.
func DefaultConfig() *Config {
	return &Config{Timeout: 10 * time.Second}
}

// Result describes a successful authentication.
type Result struct {
	// Account is the account name from RPL_LOGGEDIN, when the server sent it.
	Account string
}

var (
	failureNumerics = []string{
		"902", // ERR_NICKLOCKED
		"904", // ERR_SASLFAIL
		"905", // ERR_SASLTOOLONG
		"906", // ERR_SASLABORTED
		"907", // ERR_SASLALREADY
	}
	saslReplies = matcher.Describe("sasl reply", matcher.Or(
		matcher.Command("AUTHENTICATE"),
		matcher.Numeric(append([]string{"900", "903", "908"}, failureNumerics...)...),
	))
)

// Authenticate runs mech over AUTHENTICATE until RPL_SASLSUCCESS (903) or a
// failure numeric.
func Authenticate(ctx context.Context, conn Conn, mech Mechanism, config *Config) (*Result, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := conn.Send("AUTHENTICATE " + mech.Name()); err != nil {
		return nil, fmt.Errorf("sasl: %w", err)
	}

	result := &Result{}
	var mechanisms []string
	var pending strings.Builder

	for {
		msg, err := conn.AwaitMessage(ctx, saslReplies, config.Timeout)
		if err != nil {
			return nil, fmt.Errorf("sasl %s: %w", mech.Name(), err)
		}

		switch msg.Command {
		case "AUTHENTICATE":
			chunk := msg.Param(0)
			if chunk != "+" {
				pending.WriteString(chunk)
			}
			if len(chunk) == limits.SASLChunkSize {
				continue
			}
			challenge, err := base64.StdEncoding.DecodeString(pending.String())
			pending.Reset()
			if err != nil {
				abort(conn)
				return nil, fmt.Errorf("sasl %s: decode challenge: %w", mech.Name(), err)
			}
			response, err := mech.Next(challenge)
			if err != nil {
				abort(conn)
				return nil, fmt.Errorf("%w: %w", ErrAborted, err)
			}
			if err := sendResponse(conn, response); err != nil {
				return nil, err
			}
		case "900":
			if len(msg.Params) >= 3 {
				result.Account = msg.Params[2]
			}
		case "908":
			mechanisms = strings.Split(msg.Param(1), ",")
		case "903":
			logrus.WithFields(logrus.Fields{
				"function":  "Authenticate",
				"mechanism": mech.Name(),
				"account":   result.Account,
			}).Info("SASL authentication succeeded")
			return result, nil
		default:
			return nil, &Error{Code: msg.Command, Message: msg.Trailing(), Mechanisms: mechanisms}
		}
	}
}

// sendResponse sends payload base64-encoded in 400-byte AUTHENTICATE
// chunks. An empty payload, or one whose last chunk is exactly 400 bytes,
// is terminated with "AUTHENTICATE +".
func sendResponse(conn Conn, payload []byte) error {
	encoded := base64.StdEncoding.EncodeToString(payload)
	for len(encoded) >= limits.SASLChunkSize {
		if err := conn.Send("AUTHENTICATE " + encoded[:limits.SASLChunkSize]); err != nil {
			return fmt.Errorf("sasl: %w", err)
		}
		encoded = encoded[limits.SASLChunkSize:]
	}
	if encoded == "" {
		encoded = "+"
	}
	if err := conn.Send("AUTHENTICATE " + encoded); err != nil {
		return fmt.Errorf("sasl: %w", err)
	}
	return nil
}

func abort(conn Conn) {
	if err := conn.Send("AUTHENTICATE *"); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "abort",
			"error":    err.Error(),
		}).Debug("Failed to send SASL abort")
	}
}
