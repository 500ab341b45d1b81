package console

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// DefaultFormat is the line layout used when Config.Format is empty.
const DefaultFormat = "[${origin}] <${sender}> ${text}"

// placeholder matches ${name} and ${attr.key}.
var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z0-9_-]+)?)\}`)

var fields = map[string]func(event.Event) string{
	"id":             event.Event.ID,
	"origin":         event.Event.Origin,
	"sender":         event.Event.Sender,
	"channel":        event.Event.Channel,
	"text":           event.Event.Text,
	"kind":           func(e event.Event) string { return string(e.Kind()) },
	"hops":           func(e event.Event) string { return strconv.Itoa(e.Hops()) },
	"correlation_id": event.Event.CorrelationID,
	"time":           func(e event.Event) string { return e.Timestamp().Format("15:04:05") },
}

// UndefinedFieldError reports placeholders that name no event field.
type UndefinedFieldError struct {
	Names []string
}

func (e *UndefinedFieldError) Error() string {
	return fmt.Sprintf("undefined format fields: %s", strings.Join(e.Names, ", "))
}

// segment is a literal run or one event field.
type segment struct {
	literal string
	field   func(event.Event) string
}

// Layout renders events into lines. Placeholders are ${id}, ${origin},
// ${sender}, ${channel}, ${text}, ${kind}, ${hops}, ${correlation_id},
// ${time} and ${attr.<key>} for a payload attribute.
type Layout struct {
	segments []segment
}

// ParseLayout compiles s. An empty s uses DefaultFormat.
func ParseLayout(s string) (*Layout, error) {
	if s == "" {
		s = DefaultFormat
	}
	var (
		l       Layout
		missing []string
		last    int
	)
	for _, m := range placeholder.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			l.segments = append(l.segments, segment{literal: s[last:m[0]]})
		}
		last = m[1]

		name := s[m[2]:m[3]]
		if key, ok := strings.CutPrefix(name, "attr."); ok {
			l.segments = append(l.segments, segment{field: func(e event.Event) string {
				return e.Payload().Attr(key)
			}})
			continue
		}
		fn, ok := fields[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		l.segments = append(l.segments, segment{field: fn})
	}
	if last < len(s) {
		l.segments = append(l.segments, segment{literal: s[last:]})
	}
	if len(missing) > 0 {
		return nil, &UndefinedFieldError{Names: missing}
	}
	return &l, nil
}

// Render returns the line for evt, without a trailing newline.
func (l *Layout) Render(evt event.Event) string {
	var b strings.Builder
	for _, seg := range l.segments {
		if seg.field != nil {
			b.WriteString(seg.field(evt))
		} else {
			b.WriteString(seg.literal)
		}
	}
	return b.String()
}

var defaultLayout, _ = ParseLayout(DefaultFormat)

// Format renders evt with DefaultFormat.
func Format(evt event.Event) string {
	return defaultLayout.Render(evt)
}
