package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maruyamamtk/keiba-prediction/internal/config"
	"github.com/maruyamamtk/keiba-prediction/internal/fingerprint"
	"github.com/maruyamamtk/keiba-prediction/internal/format"
	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
	"github.com/maruyamamtk/keiba-prediction/internal/retry"
	"github.com/maruyamamtk/keiba-prediction/internal/syncer"
)

func syncCmd(a *app) *cobra.Command {
	var (
		dataType     string
		force        bool
		dryRun       bool
		watch        bool
		localRoot    string
		remotePrefix string
		workers      int
		outFormat    string
	)

	c := &cobra.Command{
		Use:   "sync",
		Short: "Upload new and changed feed files to the object store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if localRoot != "" {
				cfg.LocalRoot = localRoot
			}
			if cmd.Flags().Changed("remote-prefix") {
				cfg.RemotePrefix = remotePrefix
			}
			if workers > 0 {
				cfg.SyncWorkers = workers
			}
			if err := cfg.Validate(config.NeedLocalRoot); err != nil {
				return err
			}
			registry := format.Default()
			if dataType != "" {
				if _, err := registry.Lookup(dataType); err != nil {
					return fmt.Errorf("%w (known: %v)", err, registry.Codes())
				}
			}

			ctx := cmd.Context()
			store, err := a.objectStore()
			if err != nil {
				return err
			}
			if !dryRun {
				if err := store.EnsureBucket(ctx); err != nil {
					return err
				}
			}

			pass := &syncPass{
				store:    store,
				registry: registry,
				cfg:      cfg,
				log:      a.log,
				dataType: dataType,
				opts:     syncer.UploadOptions{DryRun: dryRun, Force: force},
				out:      cmd.OutOrStdout(),
				format:   outFormat,
			}

			if !watch {
				return pass.Do(ctx)
			}
			if err := pass.Do(ctx); err != nil {
				a.log.WithError(err).Warn("initial sync pass did not complete cleanly")
			}
			w := &syncer.Watcher{Root: cfg.LocalRoot, Debounce: 2 * time.Second, Log: a.log}
			return w.Run(ctx, pass.Do)
		},
	}

	c.Flags().StringVar(&dataType, "data-type", "", "only sync files of this data-type code (e.g. BAA)")
	c.Flags().BoolVar(&force, "force", false, "upload even when the remote object is unchanged")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be uploaded without writing")
	c.Flags().BoolVar(&watch, "watch", false, "keep running and sync on file changes")
	c.Flags().StringVar(&localRoot, "local-root", "", "local feed directory (default from KEIBA_LOCAL_ROOT)")
	c.Flags().StringVar(&remotePrefix, "remote-prefix", "", "object key prefix (default from KEIBA_REMOTE_PREFIX)")
	c.Flags().IntVar(&workers, "workers", 0, "concurrent transfers (default from KEIBA_SYNC_WORKERS)")
	c.Flags().StringVar(&outFormat, "format", "text", "output format: text|json")
	return c
}

// syncPass is one compare-and-upload pass. Each run builds its own
// fingerprint index and engine, so a watch loop never reuses hashes from an
// earlier pass.
type syncPass struct {
	store    objectstore.Store
	registry *format.Registry
	cfg      *config.Config
	log      logrus.FieldLogger
	dataType string
	opts     syncer.UploadOptions
	out      io.Writer
	format   string
}

func (p *syncPass) Run(ctx context.Context) (*syncer.SyncReport, error) {
	index := fingerprint.NewIndex()
	defer index.Close()

	policy := retry.DefaultPolicy()
	policy.MaxRetries = p.cfg.SyncMaxRetries
	if p.cfg.SyncBackoff > 0 {
		policy.InitialBackoff = p.cfg.SyncBackoff
	}
	engine := syncer.NewEngine(p.store, p.registry, index, p.log, syncer.Options{
		Workers: p.cfg.SyncWorkers,
		Rate:    p.cfg.SyncRate,
		Retry:   policy,
	})
	return engine.Run(ctx, p.cfg.LocalRoot, p.cfg.RemotePrefix, p.dataType, p.opts)
}

// Do runs a pass and prints its report. A report with failures exits 1.
func (p *syncPass) Do(ctx context.Context) error {
	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if err := printSyncReport(p.out, report, p.format); err != nil {
		return err
	}
	if !report.OK() {
		return failed()
	}
	return nil
}

func printSyncReport(w io.Writer, r *syncer.SyncReport, outFormat string) error {
	switch outFormat {
	case "json":
		return printJSON(w, r)
	case "text", "":
	default:
		return fmt.Errorf("unsupported format %q (expected text|json)", outFormat)
	}

	mode := "sync"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "%s %s: %d uploaded, %d skipped, %d failed, %d cancelled (%d bytes) in %s\n",
		mode, r.RunID, r.Uploaded, r.Skipped, r.Failed, r.Cancelled, r.Bytes,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, f := range r.Files {
		switch f.Status {
		case syncer.StatusSkipped:
			continue
		case syncer.StatusFailed, syncer.StatusCancelled:
			fmt.Fprintf(w, "- [%s] %s: %s\n", f.Status, f.Key, f.Error)
		default:
			fmt.Fprintf(w, "- [%s] %s (%s)\n", f.Status, f.Key, f.Reason)
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
