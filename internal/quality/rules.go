package quality

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maruyamamtk/keiba-prediction/internal/warehouse"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Rules are the checks to run, per table.
type Rules struct {
	DateMin       time.Time
	MaxFutureDays int
	Tables        []TableRule
}

// TableRule configures the checks for one table.
type TableRule struct {
	Table            warehouse.Table
	Description      string
	PrimaryKey       []string
	Required         []string
	Dates            []string
	Numeric          []NumericRange
	MinRows          int64
	RowCountSeverity Severity
}

// IsKey reports whether column is part of the primary key.
func (t TableRule) IsKey(column string) bool {
	for _, k := range t.PrimaryKey {
		if k == column {
			return true
		}
	}
	return false
}

// NumericRange is the accepted range of a column. Values outside
// [Min, Max] are a warning; values outside [HardMin, HardMax] an error.
type NumericRange struct {
	Column  string
	Min     *float64
	Max     *float64
	HardMin *float64
	HardMax *float64
}

// RulesError reports an unreadable or invalid rules file.
type RulesError struct {
	Op   string
	Path string
	Err  error
}

func (e *RulesError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (path=%s): %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RulesError) Unwrap() error { return e.Err }

type rulesFile struct {
	DateRange struct {
		Min           string `yaml:"min"`
		MaxFutureDays int    `yaml:"max_future_days"`
	} `yaml:"date_range"`
	Tables []tableDTO `yaml:"tables"`
}

type tableDTO struct {
	Table            string              `yaml:"table"`
	Description      string              `yaml:"description"`
	PrimaryKey       []string            `yaml:"primary_key"`
	Required         []string            `yaml:"required"`
	Dates            []string            `yaml:"dates"`
	Numeric          map[string]rangeDTO `yaml:"numeric"`
	MinRows          int64               `yaml:"min_rows"`
	RowCountSeverity string              `yaml:"row_count_severity"`
}

type rangeDTO struct {
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	HardMin *float64 `yaml:"hard_min"`
	HardMax *float64 `yaml:"hard_max"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("built-in quality rules are invalid: %v", err))
	}
	return r
}

// LoadRules reads rules from path, or the built-in rules when path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &RulesError{Op: "quality.load_rules", Path: path, Err: err}
	}
	r, err := ParseRules(b)
	if err != nil {
		return nil, &RulesError{Op: "quality.load_rules", Path: path, Err: err}
	}
	return r, nil
}

// ParseRules decodes and validates a YAML rules document.
func ParseRules(data []byte) (*Rules, error) {
	var dto rulesFile
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	rules := &Rules{MaxFutureDays: dto.DateRange.MaxFutureDays}
	if dto.DateRange.Min != "" {
		t, err := time.Parse("2006-01-02", dto.DateRange.Min)
		if err != nil {
			return nil, fmt.Errorf("date_range.min: %w", err)
		}
		rules.DateMin = t
	}

	seen := make(map[string]bool)
	for _, td := range dto.Tables {
		tbl, err := warehouse.ParseTable(td.Table)
		if err != nil {
			return nil, err
		}
		if seen[tbl.String()] {
			return nil, fmt.Errorf("table %s configured twice", tbl)
		}
		seen[tbl.String()] = true

		sev := SeverityWarning
		if td.RowCountSeverity != "" {
			sev, err = ParseSeverity(td.RowCountSeverity)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", tbl, err)
			}
		}
		tr := TableRule{
			Table:            tbl,
			Description:      td.Description,
			PrimaryKey:       td.PrimaryKey,
			Required:         td.Required,
			Dates:            td.Dates,
			MinRows:          td.MinRows,
			RowCountSeverity: sev,
		}

		cols := make([]string, 0, len(td.Numeric))
		for c := range td.Numeric {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			rd := td.Numeric[c]
			if rd.Min != nil && rd.Max != nil && *rd.Min > *rd.Max {
				return nil, fmt.Errorf("%s.%s: min %v exceeds max %v", tbl, c, *rd.Min, *rd.Max)
			}
			tr.Numeric = append(tr.Numeric, NumericRange{
				Column: c, Min: rd.Min, Max: rd.Max, HardMin: rd.HardMin, HardMax: rd.HardMax,
			})
		}
		rules.Tables = append(rules.Tables, tr)
	}
	return rules, nil
}

// Only returns the rules restricted to one "dataset.table".
func (r *Rules) Only(table string) (*Rules, error) {
	table = strings.TrimSpace(table)
	for _, t := range r.Tables {
		if t.Table.String() == table {
			out := *r
			out.Tables = []TableRule{t}
			return &out, nil
		}
	}
	return nil, fmt.Errorf("no quality rules configured for table %q", table)
}
