package quality

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
)

func sampleReport(status Status) *Report {
	checks := []CheckOutcome{
		{ID: "raw.race_info:existence", Table: "raw.race_info", Check: CheckExistence, Severity: SeverityError, Passed: true, Detail: "table exists"},
		{ID: "raw.race_info:null_check:race_id", Table: "raw.race_info", Check: CheckNull, Column: "race_id", Severity: SeverityError, Detail: "race_id: 5/10000 (0.05%)"},
		{ID: "raw.race_info:null_check:venue_code", Table: "raw.race_info", Check: CheckNull, Column: "venue_code", Severity: SeverityWarning, Detail: "venue_code: 1/10000 (0.01%)"},
	}
	return &Report{
		ID:          "20261019_093000-abcd1234",
		GeneratedAt: fixedNow,
		Project:     "test-project",
		Checks:      checks,
		Status:      status,
	}
}

func TestArtifactJSON(t *testing.T) {
	data, err := json.Marshal(sampleReport(StatusFailed))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		ReportID    string  `json:"report_id"`
		GeneratedAt string  `json:"generated_at"`
		Status      Status  `json:"status"`
		Summary     Summary `json:"summary"`
		Failures    []struct {
			Severity Severity `json:"severity"`
			Column   string   `json:"column"`
			Detail   string   `json:"detail"`
		} `json:"failures"`
		Checks []CheckOutcome `json:"checks"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ReportID != "20261019_093000-abcd1234" || got.GeneratedAt != "2026-10-19T09:30:00Z" || got.Status != StatusFailed {
		t.Fatalf("header = %+v", got)
	}
	want := Summary{Total: 3, Passed: 1, FailedError: 1, FailedWarning: 1}
	if got.Summary != want {
		t.Fatalf("summary = %+v", got.Summary)
	}
	if len(got.Failures) != 2 || got.Failures[0].Column != "race_id" || got.Failures[0].Severity != SeverityError {
		t.Fatalf("failures = %+v", got.Failures)
	}
	if len(got.Checks) != 3 {
		t.Fatalf("checks = %d", len(got.Checks))
	}
}

func TestReportText(t *testing.T) {
	text := sampleReport(StatusFailed).Text()
	for _, want := range []string{"FAILED", "errors: 1", "[ERROR] raw.race_info null_check: race_id: 5/10000 (0.05%)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text missing %q:\n%s", want, text)
		}
	}
}

func TestAlertOnlyOnFailed(t *testing.T) {
	cases := []struct {
		name     string
		status   Status
		suppress bool
		want     int
	}{
		{"failed", StatusFailed, false, 1},
		{"failed but suppressed", StatusFailed, true, 0},
		{"warnings", StatusPassedWithWarnings, false, 0},
		{"passed", StatusPassed, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			n := NotifierFunc(func(_ context.Context, sev Severity, summary string) error {
				calls++
				if sev != SeverityError || !strings.Contains(summary, "FAILED") {
					t.Errorf("notify(%s, %q)", sev, summary)
				}
				return nil
			})
			if err := <-Alert(context.Background(), n, sampleReport(tc.status), tc.suppress); err != nil {
				t.Fatalf("alert: %v", err)
			}
			if calls != tc.want {
				t.Fatalf("notified %d times, want %d", calls, tc.want)
			}
		})
	}
}

func TestAlertReportsDeliveryError(t *testing.T) {
	boom := errors.New("webhook down")
	n := NotifierFunc(func(context.Context, Severity, string) error { return boom })
	if err := <-Alert(context.Background(), n, sampleReport(StatusFailed), false); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport(StatusFailed)

	path, err := WriteFile(r, "", dir)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if path != filepath.Join(dir, "quality_report_20261019_093000-abcd1234.json") {
		t.Fatalf("path = %s", path)
	}
	explicit := filepath.Join(dir, "out", "report.json")
	if got, err := WriteFile(r, explicit, dir); err != nil || got != explicit {
		t.Fatalf("explicit write = %s, %v", got, err)
	}
	b, err := os.ReadFile(explicit)
	if err != nil || !strings.Contains(string(b), `"report_id": "20261019_093000-abcd1234"`) {
		t.Fatalf("artifact = %s, %v", b, err)
	}
}

func TestReportStoreWriteSnapshot(t *testing.T) {
	store := objectstore.NewLocalStore(t.TempDir(), "keiba")
	rs := NewReportStore(store, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	loc, err := rs.WriteSnapshot(ctx, sampleReport(StatusPassed))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if loc != "minio://keiba/reports/quality_report_20261019_093000-abcd1234.json" {
		t.Fatalf("location = %s", loc)
	}
	b, err := store.Get(ctx, "reports/quality_report_20261019_093000-abcd1234.json")
	if err != nil || !strings.Contains(string(b), `"status": "PASSED"`) {
		t.Fatalf("stored = %s, %v", b, err)
	}
}
