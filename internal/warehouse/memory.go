package warehouse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Warehouse. It backs tests and checks run against
// a freshly parsed file without a database.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

type memTable struct {
	columns map[string]ColumnType
	rows    []map[string]any
}

// NewMemory creates an empty in-memory warehouse.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memTable)}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Exists(ctx context.Context, t Table) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[t.String()]
	return ok, nil
}

func (m *Memory) Count(ctx context.Context, t Table, preds ...Predicate) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tbl, err := m.table(t)
	if err != nil {
		return 0, err
	}
	for _, p := range preds {
		if _, ok := tbl.columns[p.column()]; !ok {
			return 0, fmt.Errorf("count %s: column %q does not exist", t, p.column())
		}
	}

	var n int64
	for _, row := range tbl.rows {
		if matchAll(row, preds) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountDistinct(ctx context.Context, t Table, columns ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("count distinct on %s: no columns", t)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tbl, err := m.table(t)
	if err != nil {
		return 0, err
	}
	for _, c := range columns {
		if _, ok := tbl.columns[c]; !ok {
			return 0, fmt.Errorf("count distinct %s: column %q does not exist", t, c)
		}
	}

	seen := make(map[string]struct{}, len(tbl.rows))
	var sb strings.Builder
	for _, row := range tbl.rows {
		sb.Reset()
		for _, c := range columns {
			fmt.Fprintf(&sb, "%T:%v\x00", row[c], row[c])
		}
		seen[sb.String()] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (m *Memory) Load(ctx context.Context, t Table, columns []Column, rows [][]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl, ok := m.tables[t.String()]
	if !ok {
		tbl = &memTable{columns: make(map[string]ColumnType, len(columns))}
		m.tables[t.String()] = tbl
	}
	for _, c := range columns {
		if _, exists := tbl.columns[c.Name]; !exists {
			tbl.columns[c.Name] = c.Type
		}
	}
	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("load into %s: row has %d values, want %d", t, len(row), len(columns))
		}
	}
	for _, row := range rows {
		r := make(map[string]any, len(columns))
		for i, c := range columns {
			r[c.Name] = row[i]
		}
		tbl.rows = append(tbl.rows, r)
	}
	return int64(len(rows)), nil
}

func (m *Memory) table(t Table) (*memTable, error) {
	tbl, ok := m.tables[t.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, t)
	}
	return tbl, nil
}

func matchAll(row map[string]any, preds []Predicate) bool {
	for _, p := range preds {
		v := row[p.column()]
		switch p := p.(type) {
		case IsNull:
			if v != nil {
				return false
			}
		case NotNull:
			if v == nil {
				return false
			}
		case Less:
			if c, ok := compare(v, p.Value); !ok || c >= 0 {
				return false
			}
		case Greater:
			if c, ok := compare(v, p.Value); !ok || c <= 0 {
				return false
			}
		}
	}
	return true
}

// compare orders a and b. NULLs and mismatched kinds are incomparable, as in SQL.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	return strings.Compare(as, bs), true
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case interface{ Float64() float64 }:
		return v.Float64(), true
	}
	return 0, false
}
