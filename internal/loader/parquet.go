package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/maruyamamtk/keiba-prediction/internal/warehouse"
)

func (l *Loader) exportParquet(ctx context.Context, key string, columns []warehouse.Column, rows [][]any) error {
	data, err := EncodeParquet(columns, rows)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if _, err := l.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ""); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// EncodeParquet renders rows as a snappy-compressed Parquet file. Every
// column is optional; dates and timestamps are written as ISO strings.
func EncodeParquet(columns []warehouse.Column, rows [][]any) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(parquetSchema(columns), pfw, 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		line, err := json.Marshal(parquetRow(columns, row))
		if err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

func parquetSchema(columns []warehouse.Column) string {
	fields := make([]map[string]string, 0, len(columns))
	for _, c := range columns {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, parquetType(c.Type)),
		})
	}
	b, _ := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
	return string(b)
}

func parquetType(t warehouse.ColumnType) string {
	switch t {
	case warehouse.ColInteger:
		return "type=INT64"
	case warehouse.ColNumeric:
		return "type=DOUBLE"
	default:
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	}
}

func parquetRow(columns []warehouse.Column, row []any) map[string]any {
	out := make(map[string]any, len(columns))
	for i, c := range columns {
		v := row[i]
		switch tv := v.(type) {
		case time.Time:
			if c.Type == warehouse.ColDate {
				v = tv.Format("2006-01-02")
			} else {
				v = tv.UTC().Format(time.RFC3339)
			}
		case interface{ Float64() float64 }:
			v = tv.Float64()
		}
		out[c.Name] = v
	}
	return out
}
