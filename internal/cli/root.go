// Package cli wires the keiba-ingest commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maruyamamtk/keiba-prediction/internal/config"
	"github.com/maruyamamtk/keiba-prediction/internal/logging"
	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
	"github.com/maruyamamtk/keiba-prediction/internal/warehouse"
)

// ExitError carries a process exit code. A nil Err means the command has
// already reported the failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func failed() error { return &ExitError{Code: 1} }

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, NewRootCmd(), os.Args[1:])
}

func run(ctx context.Context, cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", exit.Err)
		}
		return exit.Code
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	return 1
}

// app holds what every subcommand shares once flags are parsed.
type app struct {
	configFile string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *logrus.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "keiba-ingest",
		Short:         "Sync, load and check JRDB horse-racing feed files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (default from KEIBA_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text|json (default from KEIBA_LOG_FORMAT)")

	cmd.AddCommand(
		syncCmd(a),
		qualityCmd(a),
		loadCmd(a),
		parseCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) objectStore() (objectstore.Store, error) {
	store, err := objectstore.Open(a.cfg.ObjectStore, a.cfg.ObjectRoot)
	if err != nil {
		return nil, err
	}
	if !a.cfg.ObjectStore.Configured() {
		a.log.WithField("root", a.cfg.ObjectRoot).Debug("MinIO is not configured, using the local object store")
	}
	return store, nil
}

func (a *app) warehouse(ctx context.Context) (*warehouse.SQL, error) {
	if a.cfg.WarehouseDriver == "sqlite3" && a.cfg.WarehouseDSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.WarehouseDSN), 0o755); err != nil {
			return nil, err
		}
	}
	wh, err := warehouse.Open(a.cfg.WarehouseDriver, a.cfg.WarehouseDSN)
	if err != nil {
		return nil, err
	}
	if err := wh.Ping(ctx); err != nil {
		_ = wh.Close()
		return nil, fmt.Errorf("warehouse is unreachable: %w", err)
	}
	return wh, nil
}
