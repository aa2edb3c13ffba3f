// Package config loads keiba-ingest settings from defaults, an optional
// config file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
)

// Config holds every setting the CLI needs.
type Config struct {
	Project      string
	LocalRoot    string
	RemotePrefix string

	ObjectStore objectstore.Config
	// ObjectRoot is where the local object store lives when MinIO is not configured.
	ObjectRoot string

	WarehouseDriver string
	WarehouseDSN    string

	SyncWorkers    int
	SyncRate       float64
	SyncMaxRetries int
	SyncBackoff    time.Duration

	QualityRules       string
	QualityParallelism int
	ReportDir          string

	LogLevel  string
	LogFormat string
}

// envBindings maps config keys to their environment variable names.
var envBindings = map[string]string{
	"project":             "KEIBA_PROJECT",
	"local_root":          "KEIBA_LOCAL_ROOT",
	"remote_prefix":       "KEIBA_REMOTE_PREFIX",
	"bucket":              "KEIBA_BUCKET",
	"object_root":         "KEIBA_OBJECT_ROOT",
	"minio.endpoint":      "MINIO_ENDPOINT",
	"minio.access_key":    "MINIO_ACCESS_KEY",
	"minio.secret_key":    "MINIO_SECRET_KEY",
	"minio.use_ssl":       "MINIO_USE_SSL",
	"minio.region":        "MINIO_REGION",
	"warehouse.driver":    "KEIBA_WAREHOUSE_DRIVER",
	"warehouse.dsn":       "KEIBA_WAREHOUSE_DSN",
	"sync.workers":        "KEIBA_SYNC_WORKERS",
	"sync.rate":           "KEIBA_SYNC_RATE",
	"sync.max_retries":    "KEIBA_SYNC_MAX_RETRIES",
	"sync.backoff":        "KEIBA_SYNC_BACKOFF",
	"quality.rules":       "KEIBA_QUALITY_RULES",
	"quality.parallelism": "KEIBA_QUALITY_PARALLELISM",
	"report_dir":          "KEIBA_REPORT_DIR",
	"log.level":           "KEIBA_LOG_LEVEL",
	"log.format":          "KEIBA_LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("local_root", "downloaded_files")
	v.SetDefault("remote_prefix", "")
	v.SetDefault("object_root", ".keiba/objects")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("warehouse.driver", "sqlite3")
	v.SetDefault("warehouse.dsn", ".keiba/warehouse.db")
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.rate", 0.0)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.backoff", time.Second)
	v.SetDefault("quality.parallelism", 4)
	v.SetDefault("report_dir", "reports")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. configFile may be empty. A .env file in the
// working directory is applied without overriding variables already set.
func Load(configFile string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Project:      v.GetString("project"),
		LocalRoot:    v.GetString("local_root"),
		RemotePrefix: strings.Trim(v.GetString("remote_prefix"), "/"),
		ObjectStore: objectstore.Config{
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			UseSSL:    v.GetBool("minio.use_ssl"),
			Region:    v.GetString("minio.region"),
			Bucket:    v.GetString("bucket"),
		},
		ObjectRoot:         v.GetString("object_root"),
		WarehouseDriver:    v.GetString("warehouse.driver"),
		WarehouseDSN:       v.GetString("warehouse.dsn"),
		SyncWorkers:        v.GetInt("sync.workers"),
		SyncRate:           v.GetFloat64("sync.rate"),
		SyncMaxRetries:     v.GetInt("sync.max_retries"),
		SyncBackoff:        v.GetDuration("sync.backoff"),
		QualityRules:       v.GetString("quality.rules"),
		QualityParallelism: v.GetInt("quality.parallelism"),
		ReportDir:          v.GetString("report_dir"),
		LogLevel:           v.GetString("log.level"),
		LogFormat:          v.GetString("log.format"),
	}
	if cfg.ObjectStore.Bucket == "" && cfg.Project != "" {
		cfg.ObjectStore.Bucket = cfg.Project + "-keiba-raw-data"
	}
	return cfg, nil
}

// LoadDotEnv copies KEY=VALUE pairs from path into the process environment
// for keys that are not already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	for _, key := range dv.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, dv.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// Requirement names what a command needs from the configuration.
type Requirement int

const (
	NeedProject Requirement = iota
	NeedLocalRoot
	NeedWarehouse
)

// Validate checks the settings a command depends on. Config errors abort a
// run before any work starts.
func (c *Config) Validate(needs ...Requirement) error {
	var problems []string
	for _, n := range needs {
		switch n {
		case NeedProject:
			if c.Project == "" {
				problems = append(problems, "KEIBA_PROJECT is not set")
			}
		case NeedLocalRoot:
			if c.LocalRoot == "" {
				problems = append(problems, "KEIBA_LOCAL_ROOT is not set")
			}
		case NeedWarehouse:
			if c.WarehouseDriver == "" || c.WarehouseDSN == "" {
				problems = append(problems, "KEIBA_WAREHOUSE_DRIVER and KEIBA_WAREHOUSE_DSN are required")
			}
		}
	}
	if c.ObjectStore.Bucket == "" {
		problems = append(problems, "KEIBA_BUCKET is not set and cannot be derived without KEIBA_PROJECT")
	}
	if c.SyncWorkers < 1 {
		problems = append(problems, "KEIBA_SYNC_WORKERS must be at least 1")
	}
	if c.SyncMaxRetries < 0 {
		problems = append(problems, "KEIBA_SYNC_MAX_RETRIES must not be negative")
	}
	if c.ObjectStore.Endpoint != "" {
		if err := c.ObjectStore.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
