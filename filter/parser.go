package filter

// parserState is the shared cursor every parsing function mutates. The query
// text is kept twice: the original casing for literals and an uppercased
// shadow for case-insensitive keyword matching. A single parserState is owned
// by exactly one Predicate; it is never shared across goroutines.
type parserState struct {
	text  string
	upper string
	pos   int

	// wordBegin is where the word most recently returned by nextValue
	// started; the operand resolver rewinds to it when it needs to re-scan
	// a grouped run character by character.
	wordBegin int
}

func (p *parserState) ended() bool {
	return p.pos >= len(p.text)
}

func (p *parserState) currentChar() byte {
	return p.text[p.pos]
}

// skipWhiteSpaces advances past spaces, tabs and newlines. It reports whether
// any text remains.
func (p *parserState) skipWhiteSpaces() bool {
	for !p.ended() && isWhitespace(p.text[p.pos]) {
		p.pos++
	}
	return !p.ended()
}

// nextValue scans the next lexical word starting at the cursor. It returns the
// word in uppercased and original form. Scanning honors single/double quoting
// with backslash escapes, counts parenthesis and bracket nesting so grouped
// runs stay one word, and treats '#' as ordinary only at the word start (the
// record identifier marker).
//
// An unquoted space at zero nesting ends the word without being consumed. Any
// other character outside the word alphabet (letters, digits and ". $ : - _ +
// @") also ends the word; when advance is set that terminator is consumed and
// included, which is how leading operator punctuation gets split off.
//
// Unterminated quotes are not an error here: they simply consume to the end of
// the text, as the grammar has always done.
func (p *parserState) nextValue(advance bool) (string, string, bool) {
	if !p.skipWhiteSpaces() {
		return "", "", false
	}

	begin := p.pos
	p.wordBegin = begin
	var quote byte
	openParens := 0
	openBrackets := 0
	escaping := false

	for !p.ended() {
		c := p.text[p.pos]

		if quote == 0 && (c == '"' || c == '\'') {
			// Quoted run: scan until the matching delimiter.
			quote = c
		} else if quote != 0 {
			if c == '\\' && !escaping {
				escaping = true
			} else {
				if c == quote && !escaping {
					quote = 0
					if openParens == 0 && openBrackets == 0 {
						if advance {
							p.pos++
						}
						break
					}
				}
				escaping = false
			}
		} else if c == '#' && p.pos == begin {
			// Record identifier marker.
		} else if c == '(' {
			openParens++
		} else if c == ')' && openParens > 0 {
			openParens--
		} else if c == collectionBegin {
			openBrackets++
		} else if c == collectionEnd && openBrackets > 0 {
			openBrackets--
		} else if c == ' ' && openParens == 0 && openBrackets == 0 {
			break
		} else if !isWordChar(c) && openParens == 0 && openBrackets == 0 {
			if advance {
				p.pos++
			}
			break
		}

		p.pos++
	}

	end := p.pos
	if end > len(p.text) {
		end = len(p.text)
	}

	// Escapes inside quoted runs stay raw here; the value parser decodes
	// them, so grouped runs can be re-scanned without double decoding.
	return p.upper[begin:end], p.text[begin:end], true
}

// nextOperatorWord reads a word for operator matching. Operator words stop at
// whitespace, digits and quotes so that a value glued to the operator (">5",
// "='x'") does not swallow it; a parenthesized parameter list stays attached.
func (p *parserState) nextOperatorWord() (string, bool) {
	if !p.skipWhiteSpaces() {
		return "", false
	}
	begin := p.pos
	for !p.ended() {
		c := p.text[p.pos]
		if isWhitespace(c) || isDigit(c) || c == '\'' || c == '"' {
			break
		}
		p.pos++
	}
	if p.pos == begin {
		return "", false
	}
	return p.upper[begin:p.pos], true
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordChar(c byte) bool {
	if isLetter(c) || isDigit(c) {
		return true
	}
	switch c {
	case '.', '$', ':', '-', '_', '+', '@':
		return true
	}
	return false
}
