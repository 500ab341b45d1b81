package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonats "github.com/nats-io/nats.go"

	oberrors "github.com/randalmurphal/overbot/pkg/overbot/errors"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
)

// Conn is the subset of a NATS connection the bridge uses.
type Conn interface {
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// Subscription is an active subject subscription.
type Subscription interface {
	Unsubscribe() error
}

// Dialer opens a connection. onClosed is called once when the connection is
// permanently closed, with the last connection error if any.
type Dialer func(ctx context.Context, url string, onClosed func(error)) (Conn, error)

// DialOptions tunes the nats.go client.
type DialOptions struct {
	ClientName    string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	Logger        *slog.Logger
}

// NewDialer returns a Dialer backed by github.com/nats-io/nats.go.
func NewDialer(opts DialOptions) Dialer {
	if opts.ClientName == "" {
		opts.ClientName = "overbot"
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	logger := observability.Component(opts.Logger, "nats")

	return func(ctx context.Context, url string, onClosed func(error)) (Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nc, err := gonats.Connect(url,
			gonats.Name(opts.ClientName),
			gonats.MaxReconnects(opts.MaxReconnects),
			gonats.ReconnectWait(opts.ReconnectWait),
			gonats.Timeout(opts.Timeout),
			gonats.DisconnectErrHandler(func(_ *gonats.Conn, err error) {
				if err != nil {
					logger.Warn("disconnected", slog.String("url", url), slog.String(observability.FieldError, err.Error()))
				}
			}),
			gonats.ReconnectHandler(func(c *gonats.Conn) {
				logger.Info("reconnected", slog.String("url", c.ConnectedUrl()))
			}),
			gonats.ClosedHandler(func(c *gonats.Conn) {
				if onClosed != nil {
					onClosed(c.LastError())
				}
			}),
		)
		if err != nil {
			return nil, &oberrors.ConnectionError{Endpoint: url, Err: fmt.Errorf("connect: %w", err)}
		}
		return &natsConn{nc: nc}, nil
	}
}

// natsConn adapts *nats.Conn to Conn.
type natsConn struct {
	nc  *gonats.Conn
	url string
}

func (c *natsConn) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *gonats.Msg) {
		handler(msg.Data)
	})
}

func (c *natsConn) Publish(subject string, data []byte) error {
	err := c.nc.Publish(subject, data)
	if err == nil {
		return nil
	}
	return &oberrors.ConnectionError{Endpoint: c.url, Closed: errors.Is(err, gonats.ErrConnectionClosed), Err: err}
}

func (c *natsConn) Close() {
	c.nc.Close()
}
