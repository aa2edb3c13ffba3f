package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maruyamamtk/keiba-prediction/internal/config"
	"github.com/maruyamamtk/keiba-prediction/internal/format"
	"github.com/maruyamamtk/keiba-prediction/internal/loader"
)

func loadCmd(a *app) *cobra.Command {
	var (
		dataType string
		prefix   string
		parquet  bool
	)

	c := &cobra.Command{
		Use:   "load [keys...]",
		Short: "Load synced feed objects into the warehouse",
		RunE: func(cmd *cobra.Command, keys []string) error {
			if err := a.cfg.Validate(config.NeedWarehouse); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := a.objectStore()
			if err != nil {
				return err
			}
			wh, err := a.warehouse(ctx)
			if err != nil {
				return err
			}
			defer wh.Close()

			ldr := loader.New(store, format.Default(), wh, a.log, loader.Options{
				Workers: a.cfg.SyncWorkers,
				Parquet: parquet,
			})
			var results []*loader.Result
			if len(keys) > 0 {
				results = ldr.LoadKeys(ctx, keys)
			} else {
				if !cmd.Flags().Changed("prefix") {
					prefix = a.cfg.RemotePrefix
				}
				if results, err = ldr.LoadPrefix(ctx, prefix, dataType); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			var rows int64
			bad := 0
			for _, r := range results {
				if r.Err != nil {
					bad++
					fmt.Fprintf(out, "- [failed] %s: %s\n", r.Key, r.Err)
					continue
				}
				rows += r.Rows
				fmt.Fprintf(out, "- [loaded] %s -> %s: %d rows, %d parse errors, %d warnings\n",
					r.Key, r.Table, r.Rows, r.ParseErrors, r.Warnings)
				if r.Parquet != "" {
					fmt.Fprintf(out, "  parquet: %s\n", r.Parquet)
				}
			}
			fmt.Fprintf(out, "loaded %d objects (%d rows), %d failed\n", len(results)-bad, rows, bad)
			if bad > 0 {
				return failed()
			}
			return nil
		},
	}

	c.Flags().StringVar(&dataType, "data-type", "", "only load objects of this data-type code")
	c.Flags().StringVar(&prefix, "prefix", "", "object key prefix to scan (default from KEIBA_REMOTE_PREFIX)")
	c.Flags().BoolVar(&parquet, "parquet", false, "also export each file as Parquet under curated/")
	return c
}
