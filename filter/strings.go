package filter

import (
	"strings"
)

const (
	embeddedBegin   = '('
	embeddedEnd     = ')'
	collectionBegin = '['
	collectionEnd   = ']'
	parameterNamed  = ':'
	parameterPos    = '?'
	ridMarker       = '#'
)

// embeddedText captures the text enclosed by a balanced parenthesis group
// starting at begin (which must point at the opening parenthesis). It returns
// the enclosed text and the index just past the closing parenthesis.
// Quoted runs are opaque to the balance count. Running out of text with the
// group still open is an error.
func embeddedText(text string, begin int) (string, int, error) {
	if begin >= len(text) || text[begin] != embeddedBegin {
		return "", 0, &UnterminatedGroupingError{Position: begin}
	}

	depth := 0
	var quote byte
	escaping := false

	for i := begin; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if escaping {
				escaping = false
			} else if c == '\\' {
				escaping = true
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case embeddedBegin:
			depth++
		case embeddedEnd:
			depth--
			if depth == 0 {
				return text[begin+1 : i], i + 1, nil
			}
		}
	}
	return "", 0, &UnterminatedGroupingError{Position: begin}
}

// splitGrouped captures a balanced open/close group starting at begin and
// splits its content on commas at nesting depth zero. Items are returned
// trimmed, in order. It is the shared primitive behind collections and
// operator parameter lists.
func splitGrouped(text string, begin int, openCh, closeCh byte) ([]string, int, error) {
	if begin >= len(text) || text[begin] != openCh {
		return nil, 0, &UnterminatedGroupingError{Position: begin}
	}

	var items []string
	var quote byte
	escaping := false
	depth := 0
	itemStart := begin + 1

	for i := begin; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if escaping {
				escaping = false
			} else if c == '\\' {
				escaping = true
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				if last := strings.TrimSpace(text[itemStart:i]); last != "" || len(items) > 0 {
					items = append(items, last)
				}
				return items, i + 1, nil
			}
		case embeddedBegin:
			// Parenthesized runs inside a bracket group stay whole.
			if openCh != embeddedBegin {
				depth++
			}
		case embeddedEnd:
			if openCh != embeddedBegin && depth > 1 {
				depth--
			}
		case ',':
			if depth == 1 {
				items = append(items, strings.TrimSpace(text[itemStart:i]))
				itemStart = i + 1
			}
		}
	}
	return nil, 0, &UnterminatedGroupingError{Position: begin}
}

// splitCollection splits a bracketed collection ("[a, b, c]") into its items.
func splitCollection(text string, begin int) ([]string, int, error) {
	return splitGrouped(text, begin, collectionBegin, collectionEnd)
}

// operatorParams splits the parenthesized parameter list attached to an
// operator occurrence ("CONTAINSTEXT(false)").
func operatorParams(text string, begin int) ([]string, int, error) {
	return splitGrouped(text, begin, embeddedBegin, embeddedEnd)
}

// decodeString resolves backslash escapes in a scanned word.
func decodeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaping := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaping {
			switch c {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(c)
			}
			escaping = false
			continue
		}
		if c == '\\' {
			escaping = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// encodeString escapes quotes and backslashes for rendering a literal back to
// query text.
func encodeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// isAlphanumeric reports whether s is non-empty and made of letters and
// digits only. Parameter names must satisfy this.
func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) && !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// isQuoted reports whether s is wrapped in matching single or double quotes.
func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"')
}
