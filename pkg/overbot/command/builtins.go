package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// RegisterBuiltins registers echo, ping and help on p.
func RegisterBuiltins(p *Processor) error {
	return errors.Join(
		p.Register("echo", HandlerFunc(echo), "echo <text>: repeat text"),
		p.Register("ping", HandlerFunc(ping), "ping: check the bot is alive"),
		p.Register("help", help(p), "help [command]: list commands or describe one"),
	)
}

func echo(_ context.Context, cmd event.Event, args []string) ([]event.Event, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: echo <text>")
	}
	return []event.Event{Say(cmd, strings.Join(args, " "))}, nil
}

func ping(_ context.Context, cmd event.Event, _ []string) ([]event.Event, error) {
	return []event.Event{Reply(cmd, "pong")}, nil
}

func help(p *Processor) Handler {
	return HandlerFunc(func(_ context.Context, cmd event.Event, args []string) ([]event.Event, error) {
		if len(args) > 0 {
			verb := strings.TrimPrefix(strings.ToLower(args[0]), p.Prefix())
			text, ok := p.Help(verb)
			if !ok {
				return nil, fmt.Errorf("no such command: %s", verb)
			}
			return []event.Event{Reply(cmd, p.Prefix()+text)}, nil
		}
		verbs := p.Verbs()
		for i, v := range verbs {
			verbs[i] = p.Prefix() + v
		}
		return []event.Event{Reply(cmd, "commands: "+strings.Join(verbs, ", "))}, nil
	})
}
