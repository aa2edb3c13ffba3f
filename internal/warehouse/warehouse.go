// Package warehouse is the tabular store that parsed records are loaded into
// and that quality checks query.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maruyamamtk/keiba-prediction/internal/format"
)

// ErrTableNotFound is returned when a queried table does not exist.
var ErrTableNotFound = errors.New("table not found")

// Table names a table as dataset.table.
type Table struct {
	Dataset string
	Name    string
}

// ParseTable parses "dataset.table".
func ParseTable(s string) (Table, error) {
	ds, name, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || ds == "" || name == "" || strings.Contains(name, ".") {
		return Table{}, fmt.Errorf("invalid table %q, expected dataset.table", s)
	}
	return Table{Dataset: ds, Name: name}, nil
}

func (t Table) String() string { return t.Dataset + "." + t.Name }

// ColumnType is the storage type of a column.
type ColumnType int

const (
	ColText ColumnType = iota
	ColInteger
	ColNumeric
	ColDate
	ColTimestamp
)

// Column describes one table column.
type Column struct {
	Name string
	Type ColumnType
}

// Warehouse loads rows and answers the aggregate queries quality checks need.
type Warehouse interface {
	Exists(ctx context.Context, t Table) (bool, error)
	// Count returns the number of rows matching every predicate.
	Count(ctx context.Context, t Table, preds ...Predicate) (int64, error)
	// CountDistinct returns the number of distinct value tuples over columns.
	CountDistinct(ctx context.Context, t Table, columns ...string) (int64, error)
	// Load creates the table when missing and appends rows.
	Load(ctx context.Context, t Table, columns []Column, rows [][]any) (int64, error)
	Close() error
}

// Predicate is the closed set of row filters.
type Predicate interface {
	column() string
}

// IsNull matches rows where Column is NULL.
type IsNull struct{ Column string }

// NotNull matches rows where Column is not NULL.
type NotNull struct{ Column string }

// Less matches rows where Column < Value.
type Less struct {
	Column string
	Value  any
}

// Greater matches rows where Column > Value.
type Greater struct {
	Column string
	Value  any
}

func (p IsNull) column() string  { return p.Column }
func (p NotNull) column() string { return p.Column }
func (p Less) column() string    { return p.Column }
func (p Greater) column() string { return p.Column }

// Metadata columns appended to every loaded table.
const (
	ColumnSourceFile = "source_file"
	ColumnLoadedAt   = "loaded_at"
)

// ColumnsForSchema maps a feed layout to table columns, followed by the
// load metadata columns.
func ColumnsForSchema(s *format.Schema) []Column {
	cols := make([]Column, 0, len(s.Fields)+2)
	for _, f := range s.Fields {
		cols = append(cols, Column{Name: f.Name, Type: columnType(f.Type)})
	}
	return append(cols,
		Column{Name: ColumnSourceFile, Type: ColText},
		Column{Name: ColumnLoadedAt, Type: ColTimestamp},
	)
}

func columnType(t format.FieldType) ColumnType {
	switch t {
	case format.TypeInteger:
		return ColInteger
	case format.TypeDecimal:
		return ColNumeric
	case format.TypeDate:
		return ColDate
	default:
		return ColText
	}
}
