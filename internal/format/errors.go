package format

import "fmt"

// SchemaMismatchError is returned for a data-type code that has no layout.
type SchemaMismatchError struct {
	Code string
	Path string
}

func (e *SchemaMismatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("no layout registered for data type %q (%s)", e.Code, e.Path)
	}
	return fmt.Sprintf("no layout registered for data type %q", e.Code)
}
