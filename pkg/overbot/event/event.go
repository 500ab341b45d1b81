// Package event defines the immutable Event value that flows through the
// overbot router.
//
// Events carry a correlation ID and a hop count so that events re-injected by
// bridges or the command processor can be traced back to their root and
// bounded:
//
//	root := event.New(event.KindMessage, "irc", event.Payload{Text: "!echo hi"})
//	// root.CorrelationID() == root.ID(), root.Hops() == 0
//
//	reply := root.Derive("commands", event.KindMessage, event.Payload{Text: "hi"})
//	// reply.CorrelationID() == root.ID()
//	// reply.CausationID() == root.ID()
//	// reply.Hops() == 1
package event

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Kind tags what an event represents.
type Kind string

// Well-known event kinds. Sources may define their own.
const (
	KindMessage       Kind = "message"
	KindJoin          Kind = "join"
	KindPart          Kind = "part"
	KindNotice        Kind = "notice"
	KindCommandResult Kind = "command-result"
)

// Payload is the protocol-agnostic content of an event.
type Payload struct {
	// Text is the message body.
	Text string `json:"text,omitempty"`

	// Sender identifies who produced the activity on the remote network.
	Sender string `json:"sender,omitempty"`

	// Channel is the target channel or room.
	Channel string `json:"channel,omitempty"`

	// Attributes holds protocol-specific extras (message IDs, display names).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attr returns a single attribute value.
func (p Payload) Attr(key string) string {
	return p.Attributes[key]
}

// clone returns a copy that shares no mutable state with p.
func (p Payload) clone() Payload {
	if p.Attributes != nil {
		p.Attributes = maps.Clone(p.Attributes)
	}
	return p
}

// Event is an immutable unit of information flowing through the bus.
// All methods return copies; transformations produce new values.
type Event struct {
	id            string
	kind          Kind
	origin        string
	payload       Payload
	timestamp     time.Time
	correlationID string
	causationID   string
	hops          int
}

// ID returns the unique event identifier.
func (e Event) ID() string { return e.id }

// Kind returns the event kind.
func (e Event) Kind() Kind { return e.kind }

// Origin returns the name of the Source that emitted the event.
func (e Event) Origin() string { return e.origin }

// Payload returns a copy of the event payload.
func (e Event) Payload() Payload { return e.payload.clone() }

// Text is shorthand for Payload().Text.
func (e Event) Text() string { return e.payload.Text }

// Sender is shorthand for Payload().Sender.
func (e Event) Sender() string { return e.payload.Sender }

// Channel is shorthand for Payload().Channel.
func (e Event) Channel() string { return e.payload.Channel }

// Timestamp returns when the event was created.
func (e Event) Timestamp() time.Time { return e.timestamp }

// CorrelationID groups an event with everything derived from it.
func (e Event) CorrelationID() string { return e.correlationID }

// CausationID returns the ID of the event this one was derived from.
// Empty for root events.
func (e Event) CausationID() string { return e.causationID }

// Hops returns how many times this event's lineage re-entered the bus.
func (e Event) Hops() int { return e.hops }

// IsZero reports whether e is the zero Event.
func (e Event) IsZero() bool { return e.id == "" }

// IsDerived reports whether e was produced from another event.
func (e Event) IsDerived() bool { return e.causationID != "" }

// String implements fmt.Stringer for log output.
func (e Event) String() string {
	return fmt.Sprintf("%s[%s from %s hops=%d]", e.kind, e.id, e.origin, e.hops)
}

// Option configures event creation.
type Option func(*Event)

// WithEventID sets a specific event ID (default: random UUID).
func WithEventID(id string) Option {
	return func(e *Event) {
		e.id = id
	}
}

// WithCorrelationID sets the correlation ID (default: the event ID).
func WithCorrelationID(id string) Option {
	return func(e *Event) {
		e.correlationID = id
	}
}

// WithCausationID sets the ID of the causing event.
func WithCausationID(id string) Option {
	return func(e *Event) {
		e.causationID = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) {
		e.timestamp = t
	}
}

// WithHops sets the hop count. Negative values are clamped to zero.
func WithHops(n int) Option {
	return func(e *Event) {
		e.hops = max(n, 0)
	}
}

// New creates a root event.
func New(kind Kind, origin string, payload Payload, opts ...Option) Event {
	e := Event{
		id:        uuid.NewString(),
		kind:      kind,
		origin:    origin,
		payload:   payload.clone(),
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.correlationID == "" {
		e.correlationID = e.id
	}
	return e
}

// Derive creates a new event caused by e. The result inherits e's
// correlation ID and carries one more hop.
func (e Event) Derive(origin string, kind Kind, payload Payload) Event {
	return New(kind, origin, payload,
		WithCorrelationID(e.correlationID),
		WithCausationID(e.id),
		WithHops(e.hops+1),
	)
}

// WithPayload returns a replacement event with the same identity and lineage
// but a different payload.
func (e Event) WithPayload(payload Payload) Event {
	e.payload = payload.clone()
	return e
}

// WithText returns a replacement event with only the text changed.
func (e Event) WithText(text string) Event {
	p := e.payload.clone()
	p.Text = text
	e.payload = p
	return e
}

// WithOrigin returns a copy of e stamped with a different origin.
func (e Event) WithOrigin(origin string) Event {
	e.origin = origin
	e.payload = e.payload.clone()
	return e
}

// wire is the serialized form used by network bridges.
type wire struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Origin        string    `json:"origin"`
	Payload       Payload   `json:"payload"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Hops          int       `json:"hops"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{
		ID:            e.id,
		Kind:          e.kind,
		Origin:        e.origin,
		Payload:       e.payload,
		Timestamp:     e.timestamp,
		CorrelationID: e.correlationID,
		CausationID:   e.causationID,
		Hops:          e.hops,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Missing IDs are generated and a
// missing correlation ID defaults to the event ID, as with New.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CorrelationID == "" {
		w.CorrelationID = w.ID
	}
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now()
	}
	*e = Event{
		id:            w.ID,
		kind:          w.Kind,
		origin:        w.Origin,
		payload:       w.Payload,
		timestamp:     w.Timestamp,
		correlationID: w.CorrelationID,
		causationID:   w.CausationID,
		hops:          max(w.Hops, 0),
	}
	return nil
}
