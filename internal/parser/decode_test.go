package parser

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/japanese"

	"github.com/maruyamamtk/keiba-prediction/internal/format"
)

// buildLine lays out raw field values at their offsets, space padded.
func buildLine(t *testing.T, schema *format.Schema, values map[string]string) []byte {
	t.Helper()
	line := []byte(strings.Repeat(" ", schema.Width()))
	for name, v := range values {
		f, ok := schema.Field(name)
		if !ok {
			t.Fatalf("unknown field %s", name)
		}
		if len(v) > f.Width {
			t.Fatalf("value %q too wide for %s", v, name)
		}
		copy(line[f.Offset:], v)
	}
	return line
}

func sjis(t *testing.T, s string) string {
	t.Helper()
	out, err := japanese.ShiftJIS.NewEncoder().String(s)
	if err != nil {
		t.Fatalf("encode %q: %v", s, err)
	}
	return out
}

func mustSchema(t *testing.T, code string) *format.Schema {
	t.Helper()
	s, err := format.Default().Lookup(code)
	if err != nil {
		t.Fatalf("lookup %s: %v", code, err)
	}
	return s
}

func programLine(t *testing.T) []byte {
	schema := mustSchema(t, "BAA")
	return buildLine(t, schema, map[string]string{
		"race_id":          "06261101",
		"race_date":        "20260104",
		"start_time":       "1005",
		"distance":         "1200",
		"course_type":      "2",
		"course_direction": "1",
		"grade":            "1",
		"race_name":        sjis(t, "中山金杯　　"),
		"num_horses":       "16",
		"prize_1st":        "04300",
	})
}

func hasWarning(rec *Record, field string, kind WarningKind) bool {
	for _, w := range rec.Warnings {
		if w.Field == field && w.Kind == kind {
			return true
		}
	}
	return false
}

func TestDecodeProgramLine(t *testing.T) {
	rec, err := Decode(programLine(t), mustSchema(t, "BAA"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	checks := map[string]any{
		"race_id":       "06261101",
		"venue_code":    "06",
		"meeting_round": int64(1),
		"meeting_day":   "1",
		"race_number":   int64(1),
		"race_date":     time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC),
		"distance":      int64(1200),
		"course_type":   "2",
		"race_name":     "中山金杯",
		"num_horses":    int64(16),
		"prize_1st":     int64(4300),
		"prize_2nd":     nil,
		"grade":         "1",
	}
	for name, want := range checks {
		if got := rec.Get(name); !reflect.DeepEqual(got, want) {
			t.Errorf("%s = %#v, want %#v", name, got, want)
		}
	}
	if len(rec.Key) != 1 || rec.Key[0] != "06261101" {
		t.Fatalf("key = %v", rec.Key)
	}
	if len(rec.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", rec.Warnings)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	line := programLine(t)
	schema := mustSchema(t, "BAA")
	a, err := Decode(line, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := Decode(line, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("decode is not deterministic:\n%#v\n%#v", a, b)
	}
}

func TestDecodeShortLineNullsFinalOptionalField(t *testing.T) {
	schema := mustSchema(t, "KAA")
	full := buildLine(t, schema, map[string]string{
		"meeting_id":   "052611",
		"meeting_date": "20260104",
		"weather":      "1",
		"turf_cushion": " 9.5",
	})
	short := full[:len(full)-4]

	rec, err := Decode(short, schema)
	if err != nil {
		t.Fatalf("short line must not fail: %v", err)
	}
	if v := rec.Get("turf_cushion"); v != nil {
		t.Fatalf("turf_cushion = %v, want nil", v)
	}
	if !hasWarning(rec, "turf_cushion", WarnTruncated) {
		t.Fatalf("expected truncation warning, got %v", rec.Warnings)
	}
	if len(rec.Warnings) != 1 {
		t.Fatalf("only the final field should be flagged, got %v", rec.Warnings)
	}
	if got := rec.Get("weather"); got != "1" {
		t.Fatalf("weather = %v", got)
	}

	whole, err := Decode(full, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d, ok := whole.Get("turf_cushion").(Decimal); !ok || d.String() != "9.5" {
		t.Fatalf("turf_cushion = %#v", whole.Get("turf_cushion"))
	}
}

func TestDecodePartialField(t *testing.T) {
	schema := &format.Schema{Code: "TST", Dataset: "raw", Table: "t", Fields: []format.Field{
		{Name: "id", Offset: 0, Width: 4, Type: format.TypeString, Key: true},
		{Name: "note", Offset: 4, Width: 6, Type: format.TypeString, Nullable: true},
	}}
	rec, err := Decode([]byte("0001abc"), schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Get("note") != "abc" || !hasWarning(rec, "note", WarnTruncated) {
		t.Fatalf("unexpected partial decode %v %v", rec.Get("note"), rec.Warnings)
	}
}

func TestDecodeNullKeyStillReturnsRecord(t *testing.T) {
	schema := mustSchema(t, "KYF")
	line := buildLine(t, schema, map[string]string{
		"race_id":      "06261101",
		"horse_number": "03",
		"horse_name":   sjis(t, "テストホース"),
	})
	rec, err := Decode(line, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Key[0] != "06261101" || rec.Key[1] != nil {
		t.Fatalf("key = %v", rec.Key)
	}
	if !hasWarning(rec, "horse_id", WarnNullKey) {
		t.Fatalf("expected null-key warning, got %v", rec.Warnings)
	}
	if rec.Get("horse_name") != "テストホース" {
		t.Fatalf("horse_name = %v", rec.Get("horse_name"))
	}
}

func TestDecodeBlankNumerics(t *testing.T) {
	schema := mustSchema(t, "BAA")
	line := buildLine(t, schema, map[string]string{
		"race_id":     "06261101",
		"race_date":   "20260104",
		"distance":    "1200",
		"course_type": "1",
	})
	rec, err := Decode(line, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := rec.Get("num_horses"); got != int64(0) {
		t.Fatalf("required counter num_horses = %#v, want 0", got)
	}
	if got := rec.Get("prize_1st"); got != nil {
		t.Fatalf("optional prize_1st = %#v, want nil", got)
	}
}

func TestDecodeDecimals(t *testing.T) {
	schema := mustSchema(t, "KYF")
	cases := map[string]string{"  035": "3.5", " 12.5": "12.5", "01234": "123.4"}
	for raw, want := range cases {
		line := buildLine(t, schema, map[string]string{
			"race_id": "06261101", "horse_number": "01", "horse_id": "20103456", "odds": raw,
		})
		rec, err := Decode(line, schema)
		if err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		d, ok := rec.Get("odds").(Decimal)
		if !ok || d.String() != want {
			t.Fatalf("odds(%q) = %#v, want %s", raw, rec.Get("odds"), want)
		}
	}
}

func TestDecodeSignedIntegers(t *testing.T) {
	schema := mustSchema(t, "SEC")
	cases := map[string]int64{"+ 4": 4, "- 2": -2, "-12": -12, "+12": 12, "  0": 0}
	for raw, want := range cases {
		line := buildLine(t, schema, map[string]string{
			"race_id":           "06261101",
			"horse_number":      "01",
			"horse_id":          "20103456",
			"race_date":         "20260104",
			"distance":          "1200",
			"num_horses":        "16",
			"horse_weight":      "486",
			"horse_weight_diff": raw,
		})
		rec, err := Decode(line, schema)
		if err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if got := rec.Get("horse_weight_diff"); got != want {
			t.Fatalf("horse_weight_diff(%q) = %#v, want %d", raw, got, want)
		}
	}
}

func TestDecodeUnknownEnumCode(t *testing.T) {
	schema := mustSchema(t, "BAA")
	line := buildLine(t, schema, map[string]string{
		"race_id": "06261101", "race_date": "20260104", "distance": "1200", "course_type": "7",
	})
	rec, err := Decode(line, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Get("course_type") != "7" || !hasWarning(rec, "course_type", WarnUnknownCode) {
		t.Fatalf("unexpected enum handling %v %v", rec.Get("course_type"), rec.Warnings)
	}
}

func TestDecodeMalformedNumber(t *testing.T) {
	schema := mustSchema(t, "BAA")
	line := buildLine(t, schema, map[string]string{
		"race_id": "06261101", "race_date": "20260104", "distance": "12a0", "course_type": "1",
	})
	_, err := Decode(line, schema)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Field != "distance" || pe.Offset != 20 || pe.Value != "12a0" {
		t.Fatalf("unexpected parse error %+v", pe)
	}
}

func TestDecodeMalformedDate(t *testing.T) {
	schema := mustSchema(t, "BAA")
	line := buildLine(t, schema, map[string]string{
		"race_id": "06261101", "race_date": "20261341", "distance": "1200", "course_type": "1",
	})
	if _, err := Decode(line, schema); err == nil {
		t.Fatalf("expected date parse error")
	}
}

func TestDecodeFileRestartableAndContinues(t *testing.T) {
	schema := mustSchema(t, "BAA")
	good := programLine(t)
	bad := buildLine(t, schema, map[string]string{
		"race_id": "06261102", "race_date": "2026XX04", "distance": "1200", "course_type": "1",
	})
	content := string(good) + "\r\n" + string(bad) + "\r\n\r\n" + string(good) + "\r\n"
	path := filepath.Join(t.TempDir(), "BAA260104.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	collect := func() []Result {
		it := DecodeFile(path, schema)
		defer it.Close()
		var out []Result
		for it.Next() {
			out = append(out, it.Value())
		}
		if err := it.Err(); err != nil {
			t.Fatalf("iterate: %v", err)
		}
		return out
	}

	first := collect()
	if len(first) != 3 {
		t.Fatalf("expected 3 results, got %d", len(first))
	}
	if first[0].Record == nil || first[2].Record == nil {
		t.Fatalf("good lines must decode: %+v", first)
	}
	if first[1].Err == nil || first[1].Err.Line != 2 || first[1].Err.Field != "race_date" {
		t.Fatalf("expected line 2 race_date error, got %+v", first[1])
	}
	if first[2].Line != 4 {
		t.Fatalf("blank line must still count, got line %d", first[2].Line)
	}

	second := collect()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("DecodeFile is not restartable")
	}
}

func TestDecodeOversizeLineContinues(t *testing.T) {
	schema := mustSchema(t, "BAA")
	good := string(programLine(t))
	huge := strings.Repeat("9", maxLineBytes+10)
	content := good + "\r\n" + huge + "\r\n" + good

	it := DecodeBytes([]byte(content), schema)
	defer it.Close()
	var out []Result
	for it.Next() {
		out = append(out, it.Value())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	if out[1].Err == nil || out[1].Err.Line != 2 || !errors.Is(out[1].Err, errLineTooLong) {
		t.Fatalf("expected line 2 length error, got %+v", out[1])
	}
	if out[2].Record == nil || out[2].Line != 3 {
		t.Fatalf("line after the oversize one must decode: %+v", out[2])
	}
	if !reflect.DeepEqual(out[0].Record.Values, out[2].Record.Values) {
		t.Fatalf("final unterminated line decoded differently")
	}
}

func TestDecodeFileMissing(t *testing.T) {
	it := DecodeFile(filepath.Join(t.TempDir(), "nope.txt"), mustSchema(t, "BAA"))
	if it.Next() {
		t.Fatalf("expected no results")
	}
	if !errors.Is(it.Err(), os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", it.Err())
	}
}

func TestDecimalString(t *testing.T) {
	cases := []struct {
		d    Decimal
		want string
	}{
		{Decimal{Unscaled: 35, Scale: 1}, "3.5"},
		{Decimal{Unscaled: 5, Scale: 2}, "0.05"},
		{Decimal{Unscaled: -5, Scale: 1}, "-0.5"},
		{Decimal{Unscaled: 1200, Scale: 0}, "1200"},
	}
	for _, tc := range cases {
		if got := tc.d.String(); got != tc.want {
			t.Errorf("%#v.String() = %s, want %s", tc.d, got, tc.want)
		}
	}
}
