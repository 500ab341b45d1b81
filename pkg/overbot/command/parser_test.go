package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		text   string
		ok     bool
		verb   string
		args   []string
		raw    string
	}{
		{"verb only", "!", "!ping", true, "ping", nil, ""},
		{"verb and args", "!", "!echo hi there", true, "echo", []string{"hi", "there"}, "hi there"},
		{"case insensitive", "!", "!ECHO Hi", true, "echo", []string{"Hi"}, "Hi"},
		{"quoted args", "!", `!say "hello world" now`, true, "say", []string{"hello world", "now"}, `"hello world" now`},
		{"empty quotes", "!", `!say ""`, true, "say", []string{""}, `""`},
		{"unterminated quote", "!", `!say "a b`, true, "say", []string{"a b"}, `"a b`},
		{"extra spaces", "!", "!echo   a    b  ", true, "echo", []string{"a", "b"}, "a    b"},
		{"multichar prefix", "bot:", "bot:ping", true, "ping", nil, ""},
		{"no prefix", "!", "echo hi", false, "", nil, ""},
		{"prefix alone", "!", "!", false, "", nil, ""},
		{"space after prefix", "!", "! echo", false, "", nil, ""},
		{"prefix not at start", "!", "say !echo", false, "", nil, ""},
		{"empty prefix", "", "echo", false, "", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, ok := Parse(tt.prefix, tt.text)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.verb, inv.Verb)
			assert.Equal(t, tt.args, inv.Args)
			assert.Equal(t, tt.raw, inv.Raw)
		})
	}
}
