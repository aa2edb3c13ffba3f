// Package format holds the fixed-width layouts of the supported JRDB feed
// files and the registry that resolves a data-type code to its layout.
package format

import (
	"fmt"
	"strings"
)

// FieldType is the closed set of decode rules a field can use.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInteger
	TypeDecimal
	TypeDate
	TypeEnum
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeDate:
		return "date"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Family tags which layout variant a schema belongs to.
type Family string

const (
	FamilyProgram Family = "program"
	FamilyHorse   Family = "horse"
	FamilyResult  Family = "result"
	FamilyMeeting Family = "meeting"
)

// Date layouts understood by TypeDate fields.
const (
	DateLayoutLong  = "20060102"
	DateLayoutShort = "060102"
)

// Field describes one fixed-width column. Offsets and widths are in bytes.
type Field struct {
	Name     string
	Offset   int
	Width    int
	Type     FieldType
	Scale    int    // implied decimal places for TypeDecimal
	Layout   string // time layout for TypeDate
	Nullable bool
	Key      bool
	// Component fields re-read bytes already covered by an earlier field,
	// e.g. the venue code inside a race key.
	Component bool
	Codes     map[string]string // TypeEnum code table
}

// End is the first byte after the field.
func (f Field) End() int { return f.Offset + f.Width }

// Label returns the description of an enum code.
func (f Field) Label(code string) (string, bool) {
	l, ok := f.Codes[code]
	return l, ok
}

// Schema is the layout of one data-type code.
type Schema struct {
	Code        string
	Family      Family
	Dataset     string
	Table       string
	Description string
	Fields      []Field
}

// Width is the byte length of a complete record line.
func (s *Schema) Width() int {
	w := 0
	for _, f := range s.Fields {
		if f.End() > w {
			w = f.End()
		}
	}
	return w
}

// KeyFields returns the primary-key fields in layout order.
func (s *Schema) KeyFields() []Field {
	var keys []Field
	for _, f := range s.Fields {
		if f.Key {
			keys = append(keys, f)
		}
	}
	return keys
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// TableRef is "<dataset>.<table>".
func (s *Schema) TableRef() string {
	return s.Dataset + "." + s.Table
}

func (s *Schema) validate() error {
	if s.Code == "" {
		return fmt.Errorf("schema code is required")
	}
	if s.Table == "" || s.Dataset == "" {
		return fmt.Errorf("schema %s: dataset and table are required", s.Code)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s: no fields", s.Code)
	}
	seen := make(map[string]bool, len(s.Fields))
	prevEnd := 0
	hasKey := false
	for _, f := range s.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("schema %s: unnamed field at offset %d", s.Code, f.Offset)
		}
		if seen[name] {
			return fmt.Errorf("schema %s: duplicate field %s", s.Code, name)
		}
		seen[name] = true
		if f.Width <= 0 || f.Offset < 0 {
			return fmt.Errorf("schema %s: field %s has invalid span %d+%d", s.Code, name, f.Offset, f.Width)
		}
		if f.Component {
			if f.End() > prevEnd {
				return fmt.Errorf("schema %s: component field %s extends past its parent", s.Code, name)
			}
		} else {
			if f.Offset < prevEnd {
				return fmt.Errorf("schema %s: field %s overlaps the previous field", s.Code, name)
			}
			prevEnd = f.End()
		}
		if f.Type == TypeEnum && len(f.Codes) == 0 {
			return fmt.Errorf("schema %s: enum field %s has no codes", s.Code, name)
		}
		if f.Type == TypeDate && f.Layout == "" {
			return fmt.Errorf("schema %s: date field %s has no layout", s.Code, name)
		}
		if f.Key {
			if f.Nullable {
				return fmt.Errorf("schema %s: key field %s cannot be nullable", s.Code, name)
			}
			hasKey = true
		}
	}
	if !hasKey {
		return fmt.Errorf("schema %s: no key fields", s.Code)
	}
	return nil
}
