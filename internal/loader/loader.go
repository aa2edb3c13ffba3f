// Package loader moves synced feed files from the object store into the
// warehouse, optionally exporting a curated Parquet copy.
package loader

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/maruyamamtk/keiba-prediction/internal/format"
	"github.com/maruyamamtk/keiba-prediction/internal/logging"
	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
	"github.com/maruyamamtk/keiba-prediction/internal/parser"
	"github.com/maruyamamtk/keiba-prediction/internal/warehouse"
)

const (
	defaultWorkers = 4
	CuratedPrefix  = "curated"
)

// Options tunes a Loader.
type Options struct {
	Workers int
	// Parquet also writes each loaded file to the curated zone.
	Parquet bool
	Now     func() time.Time
}

// Result describes one loaded object.
type Result struct {
	Key         string `json:"key"`
	DataType    string `json:"data_type,omitempty"`
	Table       string `json:"table,omitempty"`
	Rows        int64  `json:"rows"`
	ParseErrors int    `json:"parse_errors"`
	Warnings    int    `json:"warnings"`
	Parquet     string `json:"parquet,omitempty"`
	Err         error  `json:"-"`
}

// Loader loads raw objects into warehouse tables.
type Loader struct {
	store    objectstore.Store
	registry *format.Registry
	wh       warehouse.Warehouse
	log      logrus.FieldLogger
	opts     Options
}

func New(store objectstore.Store, registry *format.Registry, wh warehouse.Warehouse, log logrus.FieldLogger, opts Options) *Loader {
	if log == nil {
		log = logging.Discard()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loader{store: store, registry: registry, wh: wh, log: log, opts: opts}
}

// LoadObject decodes the object at key with the layout named by its file
// name and appends the records to that layout's table. Lines that fail to
// decode are counted and skipped.
func (l *Loader) LoadObject(ctx context.Context, key string) (*Result, error) {
	res := &Result{Key: key}
	schema, date, err := l.resolve(res, key)
	if err != nil {
		return res, err
	}
	data, err := l.store.Get(ctx, key)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return res, l.load(ctx, res, schema, date, data, l.opts.Parquet)
}

// LoadFile loads a local feed file. Parquet export is never done for local files.
func (l *Loader) LoadFile(ctx context.Context, filePath string) (*Result, error) {
	res := &Result{Key: filePath}
	schema, date, err := l.resolve(res, filepath.Base(filePath))
	if err != nil {
		return res, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return res, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return res, l.load(ctx, res, schema, date, data, false)
}

func (l *Loader) resolve(res *Result, name string) (*format.Schema, time.Time, error) {
	base := path.Base(name)
	code, date, ok := format.ParseFileName(base)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%s is not a feed file", res.Key)
	}
	res.DataType = code
	if path.Ext(base) == ".lzh" {
		return nil, time.Time{}, fmt.Errorf("%s is an archive; extract it before loading", res.Key)
	}
	schema, err := l.registry.Lookup(code)
	if err != nil {
		return nil, time.Time{}, &format.SchemaMismatchError{Code: code, Path: res.Key}
	}
	res.Table = schema.TableRef()
	return schema, date, nil
}

func (l *Loader) load(ctx context.Context, res *Result, schema *format.Schema, date time.Time, data []byte, parquet bool) error {
	table := warehouse.Table{Dataset: schema.Dataset, Name: schema.Table}
	base := path.Base(filepath.ToSlash(res.Key))
	log := l.log.WithFields(logrus.Fields{"key": res.Key, "data_type": res.DataType, "table": res.Table})

	loadedAt := l.opts.Now().UTC()
	columns := warehouse.ColumnsForSchema(schema)
	var rows [][]any
	it := parser.DecodeBytes(data, schema)
	defer it.Close()
	for it.Next() {
		r := it.Value()
		if r.Err != nil {
			res.ParseErrors++
			log.WithField("line", r.Line).Debug(r.Err.Error())
			continue
		}
		res.Warnings += len(r.Record.Warnings)
		rows = append(rows, recordRow(schema, r.Record, base, loadedAt))
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("failed to decode %s: %w", res.Key, err)
	}

	n, err := l.wh.Load(ctx, table, columns, rows)
	if err != nil {
		return err
	}
	res.Rows = n

	if parquet && len(rows) > 0 {
		parquetKey := CuratedKey(schema, date, base)
		if err := l.exportParquet(ctx, parquetKey, columns, rows); err != nil {
			return err
		}
		res.Parquet = fmt.Sprintf("minio://%s/%s", l.store.Bucket(), parquetKey)
	}

	log.WithFields(logrus.Fields{
		"rows":         res.Rows,
		"parse_errors": res.ParseErrors,
		"warnings":     res.Warnings,
	}).Info("feed file loaded")
	return nil
}

// LoadPrefix loads every feed object under prefix. filter, when set, limits
// the load to one data-type code. Failures are reported per object.
func (l *Loader) LoadPrefix(ctx context.Context, prefix, filter string) ([]*Result, error) {
	if filter != "" {
		if _, err := l.registry.Lookup(filter); err != nil {
			return nil, err
		}
	}
	objects, err := l.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	var keys []string
	for _, o := range objects {
		code, _, ok := format.ParseFileName(path.Base(o.Key))
		if !ok || path.Ext(o.Key) == ".lzh" {
			continue
		}
		if filter != "" && !strings.EqualFold(code, filter) {
			continue
		}
		keys = append(keys, o.Key)
	}
	return l.LoadKeys(ctx, keys), nil
}

// LoadKeys loads the given objects concurrently. Results keep the order of keys.
func (l *Loader) LoadKeys(ctx context.Context, keys []string) []*Result {
	results := make([]*Result, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, key := range keys {
		g.Go(func() error {
			res, err := l.LoadObject(gctx, key)
			if err != nil {
				res.Err = err
				logging.LogError(l.log.WithField("key", key), "load failed", err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CuratedKey is curated/<dataset>/<table>/dt=<yyyy-mm-dd>/<name>.parquet.
func CuratedKey(schema *format.Schema, date time.Time, fileName string) string {
	name := strings.TrimSuffix(fileName, path.Ext(fileName)) + ".parquet"
	return objectstore.JoinKey(CuratedPrefix, schema.Dataset, schema.Table,
		"dt="+date.Format("2006-01-02"), name)
}

func recordRow(schema *format.Schema, rec *parser.Record, source string, loadedAt time.Time) []any {
	row := make([]any, 0, len(schema.Fields)+2)
	for _, f := range schema.Fields {
		row = append(row, rec.Values[f.Name])
	}
	return append(row, source, loadedAt)
}
