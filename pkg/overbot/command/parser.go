package command

import (
	"strings"
	"unicode"
)

// Invocation is a parsed command.
type Invocation struct {
	// Verb is the lowercased command name.
	Verb string

	// Args are the whitespace-separated arguments. Double quotes group words.
	Args []string

	// Raw is the unparsed text after the verb.
	Raw string
}

// Parse recognizes prefix+verb+args in text. It reports false when text does
// not start with prefix immediately followed by a verb.
func Parse(prefix, text string) (Invocation, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Invocation{}, false
	}
	rest := text[len(prefix):]
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		end = len(rest)
	}
	verb := rest[:end]
	if verb == "" {
		return Invocation{}, false
	}
	raw := strings.TrimSpace(rest[end:])
	return Invocation{
		Verb: strings.ToLower(verb),
		Args: splitArgs(raw),
		Raw:  raw,
	}, true
}

// splitArgs splits s on whitespace outside double quotes. An unterminated
// quote runs to the end of s.
func splitArgs(s string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case unicode.IsSpace(r) && !quoted:
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, cur.String())
	}
	return args
}
