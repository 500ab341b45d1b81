package command

import (
	"context"
	"fmt"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// Handler executes one command verb. cmd is the event that carried the
// command and args are its parsed arguments. The returned events are
// injected back into the bus as results.
type Handler interface {
	Handle(ctx context.Context, cmd event.Event, args []string) ([]event.Event, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, cmd event.Event, args []string) ([]event.Event, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd event.Event, args []string) ([]event.Event, error) {
	return f(ctx, cmd, args)
}

// Reply derives a command-result event answering cmd on the same channel.
// The processor stamps the origin when it emits the reply.
func Reply(cmd event.Event, text string) event.Event {
	return cmd.Derive("", event.KindCommandResult, event.Payload{
		Text:       text,
		Channel:    cmd.Channel(),
		Attributes: map[string]string{AttrReplyTo: cmd.Sender()},
	})
}

// Say derives a plain message from cmd on the same channel. Unlike a Reply
// it can itself be read as a command if it is relayed back in, which the
// hop limit bounds.
func Say(cmd event.Event, text string) event.Event {
	return cmd.Derive("", event.KindMessage, event.Payload{
		Text:       text,
		Channel:    cmd.Channel(),
		Attributes: map[string]string{AttrReplyTo: cmd.Sender()},
	})
}

// AttrReplyTo names the sender a command result answers.
const AttrReplyTo = "reply_to"

// HandlerError is a failed or panicked handler execution.
type HandlerError struct {
	Verb string
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("command %s: %v", e.Verb, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
