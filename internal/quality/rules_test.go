package quality

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRules(t *testing.T) {
	r := DefaultRules()
	if len(r.Tables) != 4 {
		t.Fatalf("got %d tables", len(r.Tables))
	}
	if r.MaxFutureDays != 7 || r.DateMin.Format("2006-01-02") != "2016-01-01" {
		t.Fatalf("date range = %v +%d days", r.DateMin, r.MaxFutureDays)
	}
	race := r.Tables[0]
	if race.Table.String() != "raw.race_info" || !race.IsKey("race_id") || race.IsKey("venue_code") {
		t.Fatalf("race_info rule = %+v", race)
	}
	var cols []string
	for _, n := range race.Numeric {
		cols = append(cols, n.Column)
	}
	if strings.Join(cols, ",") != "distance,num_horses,race_number" {
		t.Fatalf("numeric columns = %v", cols)
	}
	if race.RowCountSeverity != SeverityWarning {
		t.Fatalf("row count severity = %s", race.RowCountSeverity)
	}
}

func TestParseRulesErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"bad yaml", "tables: [", "yaml"},
		{"bad date", "date_range: {min: 2016/01/01}\n", "date_range.min"},
		{"bad table", "tables:\n  - table: race_info\n", "race_info"},
		{"duplicate table", "tables:\n  - table: raw.a\n  - table: raw.a\n", "configured twice"},
		{"bad severity", "tables:\n  - table: raw.a\n    row_count_severity: fatal\n", "unknown severity"},
		{"inverted range", "tables:\n  - table: raw.a\n    numeric:\n      odds: {min: 10, max: 1}\n", "exceeds max"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := "tables:\n  - table: raw.horse_results\n    primary_key: [race_id, horse_id]\n    row_count_severity: error\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(r.Tables) != 1 || r.Tables[0].RowCountSeverity != SeverityError {
		t.Fatalf("rules = %+v", r.Tables)
	}

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	var re *RulesError
	if !errors.As(err, &re) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want RulesError wrapping ErrNotExist", err)
	}

	if def, err := LoadRules(""); err != nil || len(def.Tables) != 4 {
		t.Fatalf("empty path should load defaults: %v", err)
	}
}

func TestOnly(t *testing.T) {
	r, err := DefaultRules().Only(" raw.meeting_info ")
	if err != nil || len(r.Tables) != 1 || r.Tables[0].Table.Name != "meeting_info" {
		t.Fatalf("only = %+v, %v", r, err)
	}
	if _, err := DefaultRules().Only("raw.nope"); err == nil {
		t.Fatalf("expected error for unknown table")
	}
}
