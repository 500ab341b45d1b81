// Package deadletter records sink delivery failures.
//
// A Failure identifies the event and the sink but never holds the payload,
// so nothing a user said is persisted.
package deadletter

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("deadletter: store closed")

// Failure describes one failed delivery.
type Failure struct {
	EventID       string
	EventKind     event.Kind
	Origin        string
	CorrelationID string
	Sink          string
	Error         string
	FailedAt      time.Time
}

// NewFailure builds a Failure for evt that sink could not accept.
func NewFailure(evt event.Event, sink string, err error) Failure {
	f := Failure{
		EventID:       evt.ID(),
		EventKind:     evt.Kind(),
		Origin:        evt.Origin(),
		CorrelationID: evt.CorrelationID(),
		Sink:          sink,
		FailedAt:      time.Now().UTC(),
	}
	if err != nil {
		f.Error = err.Error()
	}
	return f
}

// Store persists delivery failures. Listing returns newest first.
type Store interface {
	Record(ctx context.Context, f Failure) error
	List(ctx context.Context, limit int) ([]Failure, error)
	ListBySink(ctx context.Context, sink string, limit int) ([]Failure, error)
	Count(ctx context.Context) (int, error)
	CountBySink(ctx context.Context) (map[string]int, error)
	// Purge removes failures recorded before olderThan and returns how many
	// were removed.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
	Close() error
}
