package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Dialect selects SQL flavour differences.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// SQL implements Warehouse over database/sql. Postgres is reached through
// the pgx stdlib driver ("pgx") or lib/pq ("postgres"); SQLite through
// ncruces/go-sqlite3 ("sqlite3") for local runs.
type SQL struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open connects using driver and dsn.
func Open(driver, dsn string) (*SQL, error) {
	var dialect Dialect
	switch driver {
	case "pgx", "postgres":
		dialect = DialectPostgres
	case "sqlite3", "sqlite":
		driver = "sqlite3"
		dialect = DialectSQLite
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("warehouse dsn is required for driver %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return &SQL{DB: db, Dialect: dialect}, nil
}

// Ping checks connectivity.
func (w *SQL) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return w.DB.PingContext(ctx)
}

func (w *SQL) Close() error {
	if w.DB != nil {
		return w.DB.Close()
	}
	return nil
}

func (w *SQL) Exists(ctx context.Context, t Table) (bool, error) {
	var (
		query string
		args  []any
	)
	switch w.Dialect {
	case DialectSQLite:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
		args = []any{t.Dataset + "_" + t.Name}
	default:
		query = `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		`
		args = []any{t.Dataset, t.Name}
	}

	var n int64
	if err := w.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to probe table %s: %w", t, err)
	}
	return n > 0, nil
}

func (w *SQL) Count(ctx context.Context, t Table, preds ...Predicate) (int64, error) {
	where, args, err := w.where(preds)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", w.tableName(t), where)

	var n int64
	if err := w.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t, err)
	}
	return n, nil
}

func (w *SQL) CountDistinct(ctx context.Context, t Table, columns ...string) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("count distinct on %s: no columns", t)
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT DISTINCT %s FROM %s) AS d",
		strings.Join(quoted, ", "), w.tableName(t))

	var n int64
	if err := w.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count distinct %s: %w", t, err)
	}
	return n, nil
}

func (w *SQL) Load(ctx context.Context, t Table, columns []Column, rows [][]any) (int64, error) {
	if err := w.ensureTable(ctx, t, columns); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		names[i] = pq.QuoteIdentifier(c.Name)
		marks[i] = w.placeholder(i + 1)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.tableName(t), strings.Join(names, ", "), strings.Join(marks, ", "))

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load into %s: %w", t, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare load into %s: %w", t, err)
	}
	defer stmt.Close()

	var loaded int64
	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("load into %s: row has %d values, want %d", t, len(row), len(columns))
		}
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = w.bind(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", t, err)
		}
		loaded++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load into %s: %w", t, err)
	}
	return loaded, nil
}

func (w *SQL) ensureTable(ctx context.Context, t Table, columns []Column) error {
	if w.Dialect == DialectPostgres {
		if _, err := w.DB.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(t.Dataset)); err != nil {
			return fmt.Errorf("failed to create dataset %s: %w", t.Dataset, err)
		}
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pq.QuoteIdentifier(c.Name) + " " + w.columnType(c.Type)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", w.tableName(t), strings.Join(defs, ", "))
	if _, err := w.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t, err)
	}
	return nil
}

func (w *SQL) where(preds []Predicate) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		col := pq.QuoteIdentifier(p.column())
		switch p := p.(type) {
		case IsNull:
			clauses = append(clauses, col+" IS NULL")
		case NotNull:
			clauses = append(clauses, col+" IS NOT NULL")
		case Less:
			args = append(args, w.bind(p.Value))
			clauses = append(clauses, col+" < "+w.placeholder(len(args)))
		case Greater:
			args = append(args, w.bind(p.Value))
			clauses = append(clauses, col+" > "+w.placeholder(len(args)))
		default:
			return "", nil, fmt.Errorf("unsupported predicate %T", p)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (w *SQL) tableName(t Table) string {
	if w.Dialect == DialectSQLite {
		return pq.QuoteIdentifier(t.Dataset + "_" + t.Name)
	}
	return pq.QuoteIdentifier(t.Dataset) + "." + pq.QuoteIdentifier(t.Name)
}

func (w *SQL) placeholder(n int) string {
	if w.Dialect == DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

func (w *SQL) columnType(t ColumnType) string {
	switch {
	case t == ColInteger && w.Dialect == DialectSQLite:
		return "INTEGER"
	case t == ColInteger:
		return "BIGINT"
	case t == ColNumeric:
		return "NUMERIC"
	case t == ColDate && w.Dialect == DialectPostgres:
		return "DATE"
	case t == ColTimestamp && w.Dialect == DialectPostgres:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// bind normalises values for the dialect. SQLite keeps dates as ISO text so
// range predicates compare lexically.
func (w *SQL) bind(v any) any {
	if w.Dialect != DialectSQLite {
		return v
	}
	switch v := v.(type) {
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.UTC().Format("2006-01-02")
		}
		return v.UTC().Format(time.RFC3339Nano)
	case interface{ Float64() float64 }:
		return v.Float64()
	}
	return v
}
