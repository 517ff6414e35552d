// Package ircconform is a conformance-test harness for IRC servers and the
// IRCv3 WebSocket transport.
//
// # Overview
//
// A Harness opens Clients against a live server. Each Client owns one
// transport and a matcher.Matcher fed by a reader goroutine, so a test can
// register any number of concurrent predicate waits, including waits for
// lines that already arrived:
//
//	func TestPrivmsg(t *testing.T) {
//	    h := ircconform.NewTestHarness(t, ircconform.NewOptionsForTesting())
//	    ctx := context.Background()
//
//	    alice, err := h.ConnectAndRegister(ctx, "alice", nil)
//	    require.NoError(t, err)
//	    bob, err := h.ConnectAndRegister(ctx, "bob", nil)
//	    require.NoError(t, err)
//
//	    require.NoError(t, alice.SendMessage("PRIVMSG", bob.Nick(), "hi"))
//	    msg, err := bob.AwaitMessage(ctx, matcher.And(
//	        matcher.Command("PRIVMSG", bob.Nick()),
//	        matcher.FromNick(alice.Nick()),
//	    ), 0)
//	    require.NoError(t, err)
//	    assert.Equal(t, "hi", msg.Trailing())
//	}
//
// # Negative Assertions
//
// ExpectNoMessage and ExpectNoRaw succeed when the window passes without a
// match. They fail with matcher.ErrUnexpectedMatch otherwise:
//
//	err := alice.ExpectNoMessage(ctx, matcher.Command("PRIVMSG", channel), 500*time.Millisecond)
//
// # Registration
//
// Client.Register performs NICK/USER and waits for RPL_WELCOME. With
// RegisterOptions it also negotiates capabilities and authenticates with
// SASL before CAP END.
//
// # Teardown
//
// Harness.Close sends QUIT and closes every client in creation order. Errors
// during teardown are logged at debug level and otherwise ignored.
//
// # Configuration
//
// NewOptions returns production defaults, NewOptionsForTesting short
// timeouts, and LoadOptionsFromEnv applies IRCCONFORM_* environment
// variables on top of either.
package ircconform
