package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

func TestNew(t *testing.T) {
	evt := event.New(event.KindMessage, "irc", event.Payload{
		Text:    "hello",
		Sender:  "alice",
		Channel: "#general",
	})

	if evt.ID() == "" {
		t.Error("expected non-empty ID")
	}
	if evt.Kind() != event.KindMessage {
		t.Errorf("expected kind message, got %s", evt.Kind())
	}
	if evt.Origin() != "irc" {
		t.Errorf("expected origin irc, got %s", evt.Origin())
	}
	if evt.CorrelationID() != evt.ID() {
		t.Error("expected correlation ID to equal event ID for root event")
	}
	if evt.CausationID() != "" {
		t.Errorf("expected empty causation ID, got %s", evt.CausationID())
	}
	if evt.Hops() != 0 {
		t.Errorf("expected 0 hops, got %d", evt.Hops())
	}
	if evt.Timestamp().IsZero() {
		t.Error("expected non-zero timestamp")
	}
	if evt.Text() != "hello" || evt.Sender() != "alice" || evt.Channel() != "#general" {
		t.Errorf("unexpected payload: %+v", evt.Payload())
	}
	if evt.IsZero() {
		t.Error("expected constructed event not to be zero")
	}
	if (event.Event{}).IsZero() != true {
		t.Error("expected zero value to report IsZero")
	}
}

func TestNewWithOptions(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	evt := event.New(event.KindJoin, "discord", event.Payload{},
		event.WithEventID("evt-1"),
		event.WithCorrelationID("corr-1"),
		event.WithCausationID("cause-1"),
		event.WithTimestamp(ts),
		event.WithHops(2),
	)

	if evt.ID() != "evt-1" {
		t.Errorf("expected evt-1, got %s", evt.ID())
	}
	if evt.CorrelationID() != "corr-1" {
		t.Errorf("expected corr-1, got %s", evt.CorrelationID())
	}
	if evt.CausationID() != "cause-1" {
		t.Errorf("expected cause-1, got %s", evt.CausationID())
	}
	if !evt.Timestamp().Equal(ts) {
		t.Errorf("expected %v, got %v", ts, evt.Timestamp())
	}
	if evt.Hops() != 2 {
		t.Errorf("expected 2 hops, got %d", evt.Hops())
	}

	clamped := event.New(event.KindJoin, "discord", event.Payload{}, event.WithHops(-3))
	if clamped.Hops() != 0 {
		t.Errorf("expected negative hops to clamp to 0, got %d", clamped.Hops())
	}
}

func TestDerive(t *testing.T) {
	parent := event.New(event.KindMessage, "irc", event.Payload{Text: "!echo hi"})
	child := parent.Derive("commands", event.KindMessage, event.Payload{Text: "hi"})

	if child.ID() == parent.ID() {
		t.Error("expected derived event to have its own ID")
	}
	if child.CorrelationID() != parent.ID() {
		t.Errorf("expected correlation %s, got %s", parent.ID(), child.CorrelationID())
	}
	if child.CausationID() != parent.ID() {
		t.Errorf("expected causation %s, got %s", parent.ID(), child.CausationID())
	}
	if child.Hops() != 1 {
		t.Errorf("expected 1 hop, got %d", child.Hops())
	}
	if child.Origin() != "commands" {
		t.Errorf("expected origin commands, got %s", child.Origin())
	}
	if !child.IsDerived() || parent.IsDerived() {
		t.Error("IsDerived mismatch")
	}

	grandchild := child.Derive("irc", event.KindMessage, event.Payload{Text: "hi"})
	if grandchild.CorrelationID() != parent.ID() {
		t.Error("expected correlation to survive multiple derivations")
	}
	if grandchild.Hops() != 2 {
		t.Errorf("expected 2 hops, got %d", grandchild.Hops())
	}
}

func TestImmutability(t *testing.T) {
	attrs := map[string]string{"msgid": "1"}
	evt := event.New(event.KindMessage, "irc", event.Payload{Text: "a", Attributes: attrs})

	// Mutating the caller's map must not leak into the event.
	attrs["msgid"] = "2"
	if evt.Payload().Attr("msgid") != "1" {
		t.Error("event shares attribute map with caller")
	}

	// Mutating a returned payload must not leak either.
	p := evt.Payload()
	p.Attributes["msgid"] = "3"
	p.Text = "changed"
	if evt.Payload().Attr("msgid") != "1" || evt.Text() != "a" {
		t.Error("event shares state with returned payload")
	}

	replaced := evt.WithText("b")
	if evt.Text() != "a" {
		t.Error("WithText mutated the receiver")
	}
	if replaced.Text() != "b" {
		t.Errorf("expected replaced text b, got %s", replaced.Text())
	}
	if replaced.ID() != evt.ID() || replaced.CorrelationID() != evt.CorrelationID() {
		t.Error("replacement should keep identity")
	}

	restamped := evt.WithOrigin("discord")
	if evt.Origin() != "irc" || restamped.Origin() != "discord" {
		t.Error("WithOrigin mutated the receiver")
	}
}

func TestJSONRoundTripPreservesLineage(t *testing.T) {
	parent := event.New(event.KindMessage, "irc", event.Payload{Text: "x", Sender: "bob"})
	child := parent.Derive("nats", event.KindMessage, event.Payload{Text: "x", Sender: "bob"})

	data, err := json.Marshal(child)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded event.Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.ID() != child.ID() {
		t.Errorf("expected ID %s, got %s", child.ID(), decoded.ID())
	}
	if decoded.CorrelationID() != parent.ID() {
		t.Error("correlation lost in transit")
	}
	if decoded.Hops() != 1 {
		t.Errorf("expected 1 hop, got %d", decoded.Hops())
	}
	if decoded.Sender() != "bob" {
		t.Errorf("expected sender bob, got %s", decoded.Sender())
	}
}

func TestUnmarshalFillsDefaults(t *testing.T) {
	var evt event.Event
	if err := json.Unmarshal([]byte(`{"kind":"message","payload":{"text":"hi"}}`), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.ID() == "" {
		t.Error("expected generated ID")
	}
	if evt.CorrelationID() != evt.ID() {
		t.Error("expected correlation to default to ID")
	}
	if evt.Timestamp().IsZero() {
		t.Error("expected timestamp to default to now")
	}
}
