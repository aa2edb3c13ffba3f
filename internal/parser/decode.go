// Package parser decodes fixed-width feed lines into typed records using the
// layouts in package format.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/japanese"

	"github.com/maruyamamtk/keiba-prediction/internal/format"
)

// WarningKind classifies non-fatal decode findings.
type WarningKind string

const (
	WarnTruncated       WarningKind = "truncated"
	WarnNullKey         WarningKind = "null-key"
	WarnUnknownCode     WarningKind = "unknown-code"
	WarnMissingRequired WarningKind = "missing-required"
)

// Warning is attached to a record that decoded with gaps.
type Warning struct {
	Field   string      `json:"field"`
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s [%s]: %s", w.Field, w.Kind, w.Message)
}

// Record is one decoded line.
type Record struct {
	DataType string         `json:"data_type"`
	Line     int            `json:"line,omitempty"`
	Key      []any          `json:"key"`
	Values   map[string]any `json:"values"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

// Get returns the decoded value of a field, nil when null.
func (r *Record) Get(name string) any {
	return r.Values[name]
}

// Decode turns one raw line into a Record. Text is read as CP932. A line
// shorter than the layout never fails: the missing fields are null and a
// warning is attached. Only malformed numeric or date content is an error.
func Decode(raw []byte, schema *format.Schema) (*Record, error) {
	line := bytes.TrimRight(raw, "\r\n")
	rec := &Record{
		DataType: schema.Code,
		Values:   make(map[string]any, len(schema.Fields)),
	}

	for _, f := range schema.Fields {
		v, warns, err := decodeField(line, f)
		if err != nil {
			err.DataType = schema.Code
			return nil, err
		}
		rec.Values[f.Name] = v
		rec.Warnings = append(rec.Warnings, warns...)
	}

	for _, f := range schema.KeyFields() {
		v := rec.Values[f.Name]
		if v == nil {
			rec.Warnings = append(rec.Warnings, Warning{
				Field:   f.Name,
				Kind:    WarnNullKey,
				Message: "primary key field is null",
			})
		}
		rec.Key = append(rec.Key, v)
	}
	return rec, nil
}

func decodeField(line []byte, f format.Field) (any, []Warning, *ParseError) {
	if f.Offset >= len(line) {
		return nil, []Warning{{
			Field:   f.Name,
			Kind:    WarnTruncated,
			Message: fmt.Sprintf("line ends at byte %d, field starts at %d", len(line), f.Offset),
		}}, nil
	}

	var warns []Warning
	end := f.End()
	if end > len(line) {
		end = len(line)
		warns = append(warns, Warning{
			Field:   f.Name,
			Kind:    WarnTruncated,
			Message: fmt.Sprintf("only %d of %d bytes present", end-f.Offset, f.Width),
		})
	}
	chunk := line[f.Offset:end]

	switch f.Type {
	case format.TypeString:
		s := decodeText(chunk)
		if s == "" && (f.Nullable || f.Key) {
			return nil, warns, nil
		}
		return s, warns, nil

	case format.TypeInteger:
		s := numericText(chunk)
		if s == "" {
			return blankNumeric(f, int64(0)), warns, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, nil, fieldError(f, s, err)
		}
		return n, warns, nil

	case format.TypeDecimal:
		s := numericText(chunk)
		if s == "" {
			return blankNumeric(f, Decimal{Scale: f.Scale}), warns, nil
		}
		d, err := ParseDecimal(s, f.Scale)
		if err != nil {
			return nil, nil, fieldError(f, s, err)
		}
		return d, warns, nil

	case format.TypeDate:
		s := strings.TrimSpace(string(chunk))
		if s == "" || strings.Trim(s, "0") == "" {
			return nil, append(warns, missingRequired(f)...), nil
		}
		t, err := time.Parse(f.Layout, s)
		if err != nil {
			return nil, nil, fieldError(f, s, err)
		}
		return t, warns, nil

	case format.TypeEnum:
		s := decodeText(chunk)
		if s == "" {
			return nil, append(warns, missingRequired(f)...), nil
		}
		if _, ok := f.Codes[s]; !ok {
			warns = append(warns, Warning{
				Field:   f.Name,
				Kind:    WarnUnknownCode,
				Message: fmt.Sprintf("code %q is not in the code table", s),
			})
		}
		return s, warns, nil
	}
	return nil, nil, fieldError(f, string(chunk), fmt.Errorf("unsupported field type %s", f.Type))
}

// numericText trims padding, including blanks between a sign and its
// digits ("+ 4", "-  2").
func numericText(chunk []byte) string {
	s := strings.TrimSpace(string(chunk))
	if len(s) > 1 && (s[0] == '+' || s[0] == '-') {
		s = s[:1] + strings.TrimLeft(s[1:], " ")
	}
	return s
}

// blankNumeric is null for optional fields and zero for required counters.
// Key fields stay null so the record gets a null-key warning.
func blankNumeric(f format.Field, zero any) any {
	if f.Nullable || f.Key {
		return nil
	}
	return zero
}

func missingRequired(f format.Field) []Warning {
	if f.Nullable || f.Key {
		return nil
	}
	return []Warning{{Field: f.Name, Kind: WarnMissingRequired, Message: "required field is blank"}}
}

func fieldError(f format.Field, value string, err error) *ParseError {
	return &ParseError{Field: f.Name, Offset: f.Offset, Value: value, Err: err}
}

// decodeText converts CP932 bytes and trims ASCII and full-width padding.
func decodeText(b []byte) string {
	if isASCII(b) {
		return strings.TrimSpace(string(b))
	}
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(b)
	if err != nil {
		return strings.TrimSpace(string(b))
	}
	return strings.TrimSpace(string(out))
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
