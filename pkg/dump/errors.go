package dump

import (
	"errors"
	"fmt"
)

// ErrUndecodableInput is reported when the first line of a dump is not valid
// text. It is always wrapped in a *ParseError.
var ErrUndecodableInput = errors.New("undecodable input")

// ParseError describes a line that does not match either record shape.
// Line is 1-based. Fields is the tab-separated field count that was seen.
type ParseError struct {
	Line   int
	Fields int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Fields > 0 {
		return fmt.Sprintf("line %d: %s (%d fields)", e.Line, e.Reason, e.Fields)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FieldDecodeError describes a single field that could not be decoded. The
// line carrying it is dropped from the snapshot.
type FieldDecodeError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("line %d: field %s: cannot decode %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *FieldDecodeError) Unwrap() error { return e.Err }
