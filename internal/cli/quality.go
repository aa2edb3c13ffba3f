package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maruyamamtk/keiba-prediction/internal/config"
	"github.com/maruyamamtk/keiba-prediction/internal/format"
	"github.com/maruyamamtk/keiba-prediction/internal/loader"
	"github.com/maruyamamtk/keiba-prediction/internal/quality"
	"github.com/maruyamamtk/keiba-prediction/internal/warehouse"
)

func qualityCmd(a *app) *cobra.Command {
	var (
		table    string
		output   string
		noAlert  bool
		rules    string
		fromFile string
	)

	c := &cobra.Command{
		Use:   "quality-check",
		Short: "Run data quality checks and write a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			needs := []config.Requirement{config.NeedProject}
			if fromFile == "" {
				needs = append(needs, config.NeedWarehouse)
			}
			if err := a.cfg.Validate(needs...); err != nil {
				return err
			}

			ctx := cmd.Context()
			if rules == "" {
				rules = a.cfg.QualityRules
			}
			rs, err := quality.LoadRules(rules)
			if err != nil {
				return err
			}

			var wh warehouse.Warehouse
			if fromFile != "" {
				mem := warehouse.NewMemory()
				res, err := loader.New(nil, format.Default(), mem, a.log, loader.Options{}).LoadFile(ctx, fromFile)
				if err != nil {
					return err
				}
				if table == "" {
					table = res.Table
				}
				wh = mem
			} else {
				sqlWH, err := a.warehouse(ctx)
				if err != nil {
					return err
				}
				defer sqlWH.Close()
				wh = sqlWH
			}
			if table != "" {
				if rs, err = rs.Only(table); err != nil {
					return err
				}
			}

			engine := quality.NewEngine(wh, rs, a.log, quality.Options{
				Project:     a.cfg.Project,
				Parallelism: a.cfg.QualityParallelism,
			})
			report, err := engine.Run(ctx)
			if err != nil {
				return err
			}

			path, err := quality.WriteFile(report, output, a.cfg.ReportDir)
			if err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			a.log.WithField("path", path).Info("quality report written")

			if a.cfg.ObjectStore.Configured() {
				store, err := a.objectStore()
				if err == nil {
					var loc string
					loc, err = quality.NewReportStore(store, "reports").WriteSnapshot(ctx, report)
					if err == nil {
						a.log.WithField("location", loc).Info("quality report uploaded")
					}
				}
				if err != nil {
					a.log.WithError(err).Warn("failed to upload quality report")
				}
			}

			fmt.Fprint(cmd.OutOrStdout(), report.Text())

			if err := <-quality.Alert(ctx, quality.LogNotifier{Log: a.log}, report, noAlert); err != nil {
				a.log.WithError(err).Warn("failed to send alert")
			}
			if report.Status == quality.StatusFailed {
				return failed()
			}
			return nil
		},
	}

	c.Flags().StringVar(&table, "table", "", "check only this table (dataset.table)")
	c.Flags().StringVar(&output, "output", "", "report path (default <report dir>/quality_report_<id>.json)")
	c.Flags().BoolVar(&noAlert, "no-alert", false, "do not send an alert when the report fails")
	c.Flags().StringVar(&rules, "rules", "", "rules file (default built-in rules)")
	c.Flags().StringVar(&fromFile, "from-file", "", "check a local feed file instead of the warehouse")
	return c
}
