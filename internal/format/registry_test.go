package format

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultRegistryCodes(t *testing.T) {
	reg := Default()
	want := []string{"BAA", "BAB", "BAC", "KAA", "KAB", "KYF", "KYG", "KYH", "SEC"}
	got := reg.Codes()
	if len(got) != len(want) {
		t.Fatalf("codes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("codes = %v, want %v", got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	reg := Default()
	s, err := reg.Lookup("baa")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if s.TableRef() != "raw.race_info" || s.Family != FamilyProgram {
		t.Fatalf("unexpected schema %s/%s", s.TableRef(), s.Family)
	}
	if s.Width() != 169 {
		t.Fatalf("BAA width = %d", s.Width())
	}
	keys := s.KeyFields()
	if len(keys) != 1 || keys[0].Name != "race_id" {
		t.Fatalf("unexpected keys %+v", keys)
	}

	_, err = reg.Lookup("ZZZ")
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) || mismatch.Code != "ZZZ" {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestVariantsShareLayout(t *testing.T) {
	reg := Default()
	kyf, _ := reg.Get("KYF")
	kyh, _ := reg.Get("KYH")
	if kyf.Width() != kyh.Width() || len(kyf.Fields) != len(kyh.Fields) {
		t.Fatalf("variants diverge: %d/%d", kyf.Width(), kyh.Width())
	}
	if kyh.Code != "KYH" || kyh.Family != FamilyHorse {
		t.Fatalf("unexpected variant tag %s/%s", kyh.Code, kyh.Family)
	}
	keys := kyf.KeyFields()
	if len(keys) != 2 || keys[0].Name != "race_id" || keys[1].Name != "horse_id" {
		t.Fatalf("unexpected keys %+v", keys)
	}
}

func TestSchemaForTable(t *testing.T) {
	s, ok := Default().SchemaForTable("raw.horse_results")
	if !ok || s.Code != "KYF" {
		t.Fatalf("SchemaForTable returned %v %v", s, ok)
	}
	if _, ok := Default().SchemaForTable("raw.pedigree"); ok {
		t.Fatalf("raw.pedigree has no layout")
	}
}

func TestNewRegistryRejectsInvalidLayouts(t *testing.T) {
	cases := []struct {
		name   string
		schema *Schema
	}{
		{"overlap", &Schema{Code: "X1", Dataset: "raw", Table: "x", Fields: []Field{
			text("a", 0, 4).key(), text("b", 2, 4),
		}}},
		{"no key", &Schema{Code: "X2", Dataset: "raw", Table: "x", Fields: []Field{
			text("a", 0, 4),
		}}},
		{"nullable key", &Schema{Code: "X3", Dataset: "raw", Table: "x", Fields: []Field{
			{Name: "a", Width: 4, Type: TypeString, Key: true, Nullable: true},
		}}},
		{"enum without codes", &Schema{Code: "X4", Dataset: "raw", Table: "x", Fields: []Field{
			text("a", 0, 4).key(), enum("b", 4, 1, nil),
		}}},
		{"component past parent", &Schema{Code: "X5", Dataset: "raw", Table: "x", Fields: []Field{
			text("a", 0, 4).key(), text("b", 2, 4).component(),
		}}},
		{"duplicate name", &Schema{Code: "X6", Dataset: "raw", Table: "x", Fields: []Field{
			text("a", 0, 4).key(), text("a", 4, 4),
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(tc.schema); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	dup := &Schema{Code: "X7", Dataset: "raw", Table: "x", Fields: []Field{text("a", 0, 4).key()}}
	if _, err := NewRegistry(dup, dup); err == nil {
		t.Fatalf("expected duplicate code error")
	}
}

func TestParseFileName(t *testing.T) {
	cases := []struct {
		name string
		code string
		date time.Time
		ok   bool
	}{
		{"BAA260104.txt", "BAA", time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC), true},
		{"kyf251228.csv", "KYF", time.Date(2025, 12, 28, 0, 0, 0, 0, time.UTC), true},
		{"SEC160105.lzh", "SEC", time.Date(2016, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"BAA260104.zip", "", time.Time{}, false},
		{"README.txt", "", time.Time{}, false},
		{"BAA261399.txt", "", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, date, ok := ParseFileName(tc.name)
			if ok != tc.ok || code != tc.code || !date.Equal(tc.date) {
				t.Fatalf("ParseFileName(%q) = %q %v %v", tc.name, code, date, ok)
			}
		})
	}
}

func TestEnumLabel(t *testing.T) {
	s, _ := Default().Get("BAA")
	f, ok := s.Field("course_type")
	if !ok {
		t.Fatalf("course_type missing")
	}
	if l, ok := f.Label("2"); !ok || l != "dirt" {
		t.Fatalf("label = %q %v", l, ok)
	}
}
