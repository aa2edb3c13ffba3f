package parser

import "fmt"

// ParseError is a line-scoped decode failure. Other lines of the same file
// are unaffected.
type ParseError struct {
	DataType string
	Line     int
	Field    string
	Offset   int
	Value    string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s line %d: %v", e.DataType, e.Line, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: field %s at offset %d: invalid value %q: %v", e.DataType, e.Line, e.Field, e.Offset, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: field %s at offset %d: invalid value %q: %v", e.DataType, e.Field, e.Offset, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
