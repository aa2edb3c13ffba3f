package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KEIBA_PROJECT", "keiba-dev")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ObjectStore.Bucket != "keiba-dev-keiba-raw-data" {
		t.Fatalf("bucket = %q", cfg.ObjectStore.Bucket)
	}
	if cfg.LocalRoot != "downloaded_files" || cfg.SyncWorkers != 4 || cfg.SyncMaxRetries != 3 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SyncBackoff != time.Second || cfg.WarehouseDriver != "sqlite3" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(NeedProject, NeedLocalRoot, NeedWarehouse); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KEIBA_PROJECT", "keiba-prod")
	t.Setenv("KEIBA_BUCKET", "custom-bucket")
	t.Setenv("KEIBA_SYNC_WORKERS", "8")
	t.Setenv("KEIBA_SYNC_BACKOFF", "250ms")
	t.Setenv("KEIBA_REMOTE_PREFIX", "/jrdb/")
	t.Setenv("MINIO_ENDPOINT", "http://localhost:9000")
	t.Setenv("MINIO_ACCESS_KEY", "minio")
	t.Setenv("MINIO_SECRET_KEY", "minio123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ObjectStore.Bucket != "custom-bucket" || cfg.SyncWorkers != 8 || cfg.RemotePrefix != "jrdb" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.SyncBackoff != 250*time.Millisecond {
		t.Fatalf("backoff = %v", cfg.SyncBackoff)
	}
	if !cfg.ObjectStore.Configured() {
		t.Fatalf("object store should be configured")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("KEIBA_PROJECT", "keiba-dev")
	t.Setenv("KEIBA_SYNC_WORKERS", "")

	path := filepath.Join(t.TempDir(), "keiba.yaml")
	content := strings.Join([]string{
		"local_root: /data/jrdb",
		"warehouse:",
		"  driver: pgx",
		"  dsn: postgres://keiba@localhost/keiba",
		"sync:",
		"  workers: 2",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LocalRoot != "/data/jrdb" || cfg.WarehouseDriver != "pgx" || cfg.SyncWorkers != 2 {
		t.Fatalf("config file not applied: %+v", cfg)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	t.Setenv("KEIBA_REPORT_DIR", "")
	os.Unsetenv("KEIBA_REPORT_DIR")
	t.Setenv("KEIBA_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("KEIBA_REPORT_DIR=/tmp/reports\nKEIBA_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("KEIBA_REPORT_DIR"); got != "/tmp/reports" {
		t.Fatalf("KEIBA_REPORT_DIR = %q", got)
	}
	if got := os.Getenv("KEIBA_LOG_LEVEL"); got != "warn" {
		t.Fatalf("existing variable overridden: %q", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	cfg := &Config{SyncWorkers: 0, SyncMaxRetries: -1}
	err := cfg.Validate(NeedProject)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"KEIBA_PROJECT", "KEIBA_BUCKET", "KEIBA_SYNC_WORKERS", "KEIBA_SYNC_MAX_RETRIES"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
