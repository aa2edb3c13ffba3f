package quality

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/maruyamamtk/keiba-prediction/internal/logging"
	"github.com/maruyamamtk/keiba-prediction/internal/warehouse"
)

const defaultParallelism = 4

// Options tunes an Engine.
type Options struct {
	Project     string
	Parallelism int
	Now         func() time.Time
}

// Engine evaluates Rules against a warehouse and aggregates a Report.
type Engine struct {
	wh    warehouse.Warehouse
	rules *Rules
	log   logrus.FieldLogger
	opts  Options
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(wh warehouse.Warehouse, rules *Rules, log logrus.FieldLogger, opts Options) *Engine {
	if log == nil {
		log = logging.Discard()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{wh: wh, rules: rules, log: log, opts: opts}
}

type slot struct {
	table int
	run   func(context.Context) CheckOutcome
}

// Run evaluates every configured table. Checks that cannot be evaluated are
// reported as failed outcomes; the only error returned is ctx's.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	now := e.opts.Now()
	report := &Report{
		ID:          NewReportID(now),
		GeneratedAt: now,
		Project:     e.opts.Project,
	}
	log := e.log.WithField("report_id", report.ID)

	// Existence gates every other check of a table.
	existence := make([]CheckOutcome, len(e.rules.Tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, rule := range e.rules.Tables {
		g.Go(func() error {
			existence[i] = checkExistence(gctx, e.wh, rule.Table)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var slots []slot
	for i, rule := range e.rules.Tables {
		if !existence[i].Passed {
			log.WithField("table", rule.Table.String()).Warn(existence[i].Detail)
			continue
		}
		slots = append(slots, e.tableChecks(i, rule, now)...)
	}

	results := make([]CheckOutcome, len(slots))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, s := range slots {
		g.Go(func() error {
			results[i] = s.run(gctx)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := 0
	for i := range e.rules.Tables {
		report.Checks = append(report.Checks, existence[i])
		for next < len(slots) && slots[next].table == i {
			report.Checks = append(report.Checks, results[next])
			next++
		}
	}
	report.Status = StatusOf(report.Checks)

	s := report.Summary()
	log.WithFields(logrus.Fields{
		"status":   report.Status,
		"checks":   s.Total,
		"errors":   s.FailedError,
		"warnings": s.FailedWarning,
	}).Info("quality checks complete")
	return report, nil
}

func (e *Engine) tableChecks(i int, rule TableRule, now time.Time) []slot {
	var out []slot
	add := func(run func(context.Context) CheckOutcome) {
		out = append(out, slot{table: i, run: run})
	}

	if rule.MinRows > 0 {
		add(func(ctx context.Context) CheckOutcome { return checkRowCount(ctx, e.wh, rule) })
	}
	for _, col := range rule.Required {
		add(func(ctx context.Context) CheckOutcome { return checkNulls(ctx, e.wh, rule, col) })
	}
	if len(rule.PrimaryKey) > 0 {
		add(func(ctx context.Context) CheckOutcome { return checkDuplicates(ctx, e.wh, rule) })
	}
	maxDate := now.AddDate(0, 0, e.rules.MaxFutureDays)
	for _, col := range rule.Dates {
		add(func(ctx context.Context) CheckOutcome {
			return checkDateRange(ctx, e.wh, rule, col, e.rules.DateMin, maxDate)
		})
	}
	for _, r := range rule.Numeric {
		add(func(ctx context.Context) CheckOutcome { return checkNumericRange(ctx, e.wh, rule, r) })
	}
	return out
}

// NewReportID returns "YYYYMMDD_HHMMSS-xxxxxxxx".
func NewReportID(now time.Time) string {
	return now.UTC().Format("20060102_150405") + "-" + uuid.NewString()[:8]
}
