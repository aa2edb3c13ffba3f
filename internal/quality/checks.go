package quality

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maruyamamtk/keiba-prediction/internal/warehouse"
)

func outcomeID(t warehouse.Table, kind CheckKind, column string) string {
	if column == "" {
		return fmt.Sprintf("%s:%s", t, kind)
	}
	return fmt.Sprintf("%s:%s:%s", t, kind, column)
}

func newOutcome(t warehouse.Table, kind CheckKind, column string, sev Severity) CheckOutcome {
	return CheckOutcome{
		ID:       outcomeID(t, kind, column),
		Table:    t.String(),
		Check:    kind,
		Column:   column,
		Severity: sev,
	}
}

// queryFailed turns a warehouse error into a failed outcome of the check's severity.
func queryFailed(o CheckOutcome, err error) CheckOutcome {
	o.Passed = false
	o.Detail = fmt.Sprintf("query failed: %v", err)
	return o
}

func checkExistence(ctx context.Context, wh warehouse.Warehouse, t warehouse.Table) CheckOutcome {
	o := newOutcome(t, CheckExistence, "", SeverityError)
	ok, err := wh.Exists(ctx, t)
	if err != nil {
		return queryFailed(o, err)
	}
	o.Passed = ok
	if ok {
		o.Detail = "table exists"
	} else {
		o.Detail = fmt.Sprintf("table %s does not exist", t)
	}
	return o
}

func checkRowCount(ctx context.Context, wh warehouse.Warehouse, rule TableRule) CheckOutcome {
	o := newOutcome(rule.Table, CheckRowCount, "", rule.RowCountSeverity)
	n, err := wh.Count(ctx, rule.Table)
	if err != nil {
		return queryFailed(o, err)
	}
	o.Passed = n >= rule.MinRows
	o.Detail = fmt.Sprintf("rows: %d (minimum %d)", n, rule.MinRows)
	o.Metrics = map[string]any{"rows": n, "min_rows": rule.MinRows}
	return o
}

// NullDetail formats a null count as "column: nulls/total (pct%)".
func NullDetail(column string, nulls, total int64) string {
	pct := 0.0
	if total > 0 {
		pct = float64(nulls) / float64(total) * 100
	}
	return fmt.Sprintf("%s: %d/%d (%.2f%%)", column, nulls, total, pct)
}

func checkNulls(ctx context.Context, wh warehouse.Warehouse, rule TableRule, column string) CheckOutcome {
	sev := SeverityWarning
	if rule.IsKey(column) {
		sev = SeverityError
	}
	o := newOutcome(rule.Table, CheckNull, column, sev)
	total, err := wh.Count(ctx, rule.Table)
	if err != nil {
		return queryFailed(o, err)
	}
	nulls, err := wh.Count(ctx, rule.Table, warehouse.IsNull{Column: column})
	if err != nil {
		return queryFailed(o, err)
	}
	o.Passed = nulls == 0
	o.Detail = NullDetail(column, nulls, total)
	o.Metrics = map[string]any{"nulls": nulls, "rows": total}
	return o
}

func checkDuplicates(ctx context.Context, wh warehouse.Warehouse, rule TableRule) CheckOutcome {
	keyName := strings.Join(rule.PrimaryKey, "+")
	o := newOutcome(rule.Table, CheckDuplicate, keyName, SeverityError)
	total, err := wh.Count(ctx, rule.Table)
	if err != nil {
		return queryFailed(o, err)
	}
	distinct, err := wh.CountDistinct(ctx, rule.Table, rule.PrimaryKey...)
	if err != nil {
		return queryFailed(o, err)
	}
	dups := total - distinct
	o.Passed = dups == 0
	o.Detail = fmt.Sprintf("%s: %d duplicate rows out of %d", keyName, dups, total)
	o.Metrics = map[string]any{"duplicates": dups, "rows": total}
	return o
}

func checkDateRange(ctx context.Context, wh warehouse.Warehouse, rule TableRule, column string, from, to time.Time) CheckOutcome {
	o := newOutcome(rule.Table, CheckDateRange, column, SeverityWarning)
	var below int64
	if !from.IsZero() {
		n, err := wh.Count(ctx, rule.Table, warehouse.Less{Column: column, Value: from})
		if err != nil {
			return queryFailed(o, err)
		}
		below = n
	}
	above, err := wh.Count(ctx, rule.Table, warehouse.Greater{Column: column, Value: to})
	if err != nil {
		return queryFailed(o, err)
	}
	o.Passed = below == 0 && above == 0
	o.Detail = fmt.Sprintf("%s: %d before %s, %d after %s",
		column, below, from.Format("2006-01-02"), above, to.Format("2006-01-02"))
	o.Metrics = map[string]any{"before_min": below, "after_max": above}
	return o
}

func checkNumericRange(ctx context.Context, wh warehouse.Warehouse, rule TableRule, r NumericRange) CheckOutcome {
	o := newOutcome(rule.Table, CheckNumericRange, r.Column, SeverityWarning)
	count := func(pred warehouse.Predicate) (int64, error) {
		return wh.Count(ctx, rule.Table, pred)
	}

	var soft, hard int64
	var parts []string
	bounds := []struct {
		limit *float64
		hard  bool
		below bool
	}{
		{r.Min, false, true}, {r.Max, false, false}, {r.HardMin, true, true}, {r.HardMax, true, false},
	}
	for _, b := range bounds {
		if b.limit == nil {
			continue
		}
		var pred warehouse.Predicate = warehouse.Greater{Column: r.Column, Value: *b.limit}
		word := "above"
		if b.below {
			pred = warehouse.Less{Column: r.Column, Value: *b.limit}
			word = "below"
		}
		n, err := count(pred)
		if err != nil {
			return queryFailed(o, err)
		}
		label := ""
		if b.hard {
			hard += n
			label = "hard "
		} else {
			soft += n
		}
		parts = append(parts, fmt.Sprintf("%d %s %s%s", n, word, label, formatBound(*b.limit)))
	}

	if hard > 0 {
		o.Severity = SeverityError
	}
	o.Passed = soft == 0 && hard == 0
	o.Detail = fmt.Sprintf("%s: %s", r.Column, strings.Join(parts, ", "))
	o.Metrics = map[string]any{"out_of_range": soft, "out_of_hard_range": hard}
	return o
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
