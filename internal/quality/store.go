package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
)

// ReportFileName is the artifact name of a report.
func ReportFileName(id string) string {
	return fmt.Sprintf("quality_report_%s.json", id)
}

// ReportStore persists report artifacts under a prefix of an object store.
type ReportStore struct {
	store  objectstore.Store
	prefix string
}

func NewReportStore(store objectstore.Store, prefix string) *ReportStore {
	if prefix == "" {
		prefix = "reports"
	}
	return &ReportStore{store: store, prefix: prefix}
}

// WriteSnapshot uploads r and returns its location as minio://bucket/key.
func (s *ReportStore) WriteSnapshot(ctx context.Context, r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	key := objectstore.JoinKey(s.prefix, ReportFileName(r.ID))
	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ""); err != nil {
		return "", err
	}
	return fmt.Sprintf("minio://%s/%s", s.store.Bucket(), key), nil
}

// WriteFile writes r to path, or to dir/quality_report_<id>.json when path
// is empty. It returns the written path.
func WriteFile(r *Report, path, dir string) (string, error) {
	if path == "" {
		path = filepath.Join(dir, ReportFileName(r.ID))
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
