package quality

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Severity ranks a failed check.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// ParseSeverity accepts ERROR, WARNING or INFO in any case.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToUpper(strings.TrimSpace(s))); sev {
	case SeverityError, SeverityWarning, SeverityInfo:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Status is the overall result of a report.
type Status string

const (
	StatusPassed             Status = "PASSED"
	StatusPassedWithWarnings Status = "PASSED_WITH_WARNINGS"
	StatusFailed             Status = "FAILED"
)

// CheckKind names a check.
type CheckKind string

const (
	CheckExistence    CheckKind = "existence"
	CheckRowCount     CheckKind = "row_count"
	CheckNull         CheckKind = "null_check"
	CheckDuplicate    CheckKind = "duplicate_check"
	CheckDateRange    CheckKind = "date_range_check"
	CheckNumericRange CheckKind = "numeric_range_check"
)

// CheckOutcome is the result of one check. A failed outcome is a
// validation failure: it is reported, never raised.
type CheckOutcome struct {
	ID       string         `json:"id"`
	Table    string         `json:"table"`
	Check    CheckKind      `json:"check"`
	Column   string         `json:"column,omitempty"`
	Severity Severity       `json:"severity"`
	Passed   bool           `json:"passed"`
	Detail   string         `json:"detail"`
	Metrics  map[string]any `json:"metrics,omitempty"`
}

// Report is the immutable result of a quality run.
type Report struct {
	ID          string
	GeneratedAt time.Time
	Project     string
	Checks      []CheckOutcome
	Status      Status
}

// Summary counts outcomes.
type Summary struct {
	Total         int `json:"total"`
	Passed        int `json:"passed"`
	FailedError   int `json:"failed_error"`
	FailedWarning int `json:"failed_warning"`
	FailedInfo    int `json:"failed_info"`
}

// Summarize counts passed and failed checks by severity.
func Summarize(checks []CheckOutcome) Summary {
	s := Summary{Total: len(checks)}
	for _, c := range checks {
		switch {
		case c.Passed:
			s.Passed++
		case c.Severity == SeverityError:
			s.FailedError++
		case c.Severity == SeverityWarning:
			s.FailedWarning++
		default:
			s.FailedInfo++
		}
	}
	return s
}

// StatusOf is FAILED iff an ERROR check failed, PASSED_WITH_WARNINGS iff a
// WARNING check failed, else PASSED. INFO failures never change the status.
func StatusOf(checks []CheckOutcome) Status {
	s := Summarize(checks)
	switch {
	case s.FailedError > 0:
		return StatusFailed
	case s.FailedWarning > 0:
		return StatusPassedWithWarnings
	default:
		return StatusPassed
	}
}

// Summary returns the outcome counts of r.
func (r *Report) Summary() Summary { return Summarize(r.Checks) }

// Failures returns the failed checks of the given severities, in report order.
func (r *Report) Failures(sev ...Severity) []CheckOutcome {
	var out []CheckOutcome
	for _, c := range r.Checks {
		if c.Passed {
			continue
		}
		if len(sev) == 0 {
			out = append(out, c)
			continue
		}
		for _, s := range sev {
			if c.Severity == s {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

type failureJSON struct {
	Severity Severity  `json:"severity"`
	Table    string    `json:"table"`
	Check    CheckKind `json:"check"`
	Column   string    `json:"column,omitempty"`
	Detail   string    `json:"detail"`
}

type artifactJSON struct {
	ReportID    string         `json:"report_id"`
	GeneratedAt string         `json:"generated_at"`
	Project     string         `json:"project"`
	Status      Status         `json:"status"`
	Summary     Summary        `json:"summary"`
	Failures    []failureJSON  `json:"failures"`
	Checks      []CheckOutcome `json:"checks"`
}

// MarshalJSON renders the report artifact.
func (r *Report) MarshalJSON() ([]byte, error) {
	a := artifactJSON{
		ReportID:    r.ID,
		GeneratedAt: r.GeneratedAt.UTC().Format(time.RFC3339),
		Project:     r.Project,
		Status:      r.Status,
		Summary:     r.Summary(),
		Failures:    []failureJSON{},
		Checks:      r.Checks,
	}
	for _, c := range r.Failures() {
		a.Failures = append(a.Failures, failureJSON{
			Severity: c.Severity, Table: c.Table, Check: c.Check, Column: c.Column, Detail: c.Detail,
		})
	}
	return json.Marshal(a)
}

// Text renders a short human summary, used for alerts and console output.
func (r *Report) Text() string {
	s := r.Summary()
	var b strings.Builder
	fmt.Fprintf(&b, "data quality report %s (%s): %s\n", r.ID, r.Project, r.Status)
	fmt.Fprintf(&b, "checks: %d, passed: %d, errors: %d, warnings: %d\n", s.Total, s.Passed, s.FailedError, s.FailedWarning)
	for _, c := range r.Failures(SeverityError, SeverityWarning) {
		fmt.Fprintf(&b, "  [%s] %s %s: %s\n", c.Severity, c.Table, c.Check, c.Detail)
	}
	return b.String()
}
