package filter

import (
	"errors"
	"fmt"
)

// ParseError is the error surfaced by the parsing entry points. It always
// carries the query text and the cursor position where parsing stopped, so
// the caller can point at the offending spot. Lower-level errors are wrapped
// exactly once; an error that already carries its context propagates as-is.
type ParseError struct {
	Message  string
	Text     string
	Position int
	Cause    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s in query %q at position %d", e.Message, e.Text, e.Position)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// wrapParseError attaches text/position context to err unless it already is a
// ParseError. This keeps the single-wrap policy: errors are never nested twice.
func wrapParseError(err error, text string, pos int) error {
	if err == nil {
		return nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{Message: "error on parsing query", Text: text, Position: pos, Cause: err}
}

// UnknownOperatorError is raised when the operator registry has no prototype
// whose keyword prefixes the scanned word.
type UnknownOperatorError struct {
	Word     string
	Position int
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown operator %q at position %d", e.Word, e.Position)
}

// MalformedOperatorError is raised when an operator keyword matched but its
// usage (typically the embedded parameter list) does not follow its syntax.
type MalformedOperatorError struct {
	Operator string
	Syntax   string
}

func (e *MalformedOperatorError) Error() string {
	return fmt.Sprintf("malformed usage of operator %q, syntax is: %s", e.Operator, e.Syntax)
}

// ClassNotFoundError is raised during target extraction when a name does not
// resolve against the schema.
type ClassNotFoundError struct {
	Name string
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class %q was not found in the schema", e.Name)
}

// UnterminatedGroupingError is raised when text ends while a parenthesis or
// bracket group is still open. The original parser silently tolerated this;
// here unbalanced nesting is an error.
type UnterminatedGroupingError struct {
	Position int
}

func (e *UnterminatedGroupingError) Error() string {
	return fmt.Sprintf("unterminated grouping opened at position %d", e.Position)
}

// InvalidParameterNameError is raised for named parameters whose name is not
// purely alphanumeric.
type InvalidParameterNameError struct {
	Name string
}

func (e *InvalidParameterNameError) Error() string {
	return fmt.Sprintf("parameter name %q is invalid, only alphanumeric characters are allowed", e.Name)
}
