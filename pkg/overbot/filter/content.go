package filter

import (
	"context"
	"fmt"
	"regexp"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/event"
)

// Content matches event text against regular expressions. In drop mode a
// match discards the event; in replace mode every match is rewritten to
// Replacement.
type Content struct {
	name        string
	patterns    []*regexp.Regexp
	replace     bool
	replacement string
}

// NewContentDrop drops events whose text matches any pattern.
func NewContentDrop(name string, patterns ...string) (*Content, error) {
	return newContent(name, false, "", patterns)
}

// NewContentReplace rewrites matches of any pattern to replacement.
func NewContentReplace(name, replacement string, patterns ...string) (*Content, error) {
	return newContent(name, true, replacement, patterns)
}

func newContent(name string, replace bool, replacement string, patterns []string) (*Content, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: content %s needs at least one pattern", ErrInvalidOptions, name)
	}
	c := &Content{name: name, replace: replace, replacement: replacement}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: content %s: %v", ErrInvalidOptions, name, err)
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

// Name returns the filter name.
func (c *Content) Name() string { return c.name }

// Evaluate applies the patterns to the event text.
func (c *Content) Evaluate(_ context.Context, evt event.Event) (Verdict, error) {
	text := evt.Text()
	if !c.replace {
		for _, re := range c.patterns {
			if re.MatchString(text) {
				return DropVerdict("matched " + re.String()), nil
			}
		}
		return PassVerdict(), nil
	}

	out := text
	for _, re := range c.patterns {
		out = re.ReplaceAllString(out, c.replacement)
	}
	if out == text {
		return PassVerdict(), nil
	}
	return ReplaceVerdict(evt.WithText(out), "rewrote content"), nil
}

func buildContent(name string, opts config.Config) (Filter, error) {
	patterns := opts.StringSlice("patterns", nil)
	switch action := opts.String("action", "drop"); action {
	case "drop":
		return NewContentDrop(name, patterns...)
	case "replace":
		return NewContentReplace(name, opts.String("replacement", "***"), patterns...)
	default:
		return nil, fmt.Errorf("%w: content %s: unknown action %q", ErrInvalidOptions, name, action)
	}
}
