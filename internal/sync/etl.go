package sync

import (
	"context"
	"fmt"
)

// WarehouseMaintainer maintains the downstream warehouse objects derived from
// pool_trades: materialized views, time-bucketed aggregation tables,
// continuous aggregates and scheduled rollup jobs.
type WarehouseMaintainer interface {
	EnsureMaterializedViews(ctx context.Context) error
	RefreshMaterializedViews(ctx context.Context) (int, error)
	EnsureAggregationTables(ctx context.Context) error
	RefreshContinuousAggregates(ctx context.Context) (int, error)
	RunRollupJobs(ctx context.Context) (int, error)
	Health(ctx context.Context) (DependencyHealth, error)
}

// PhaseResult is the per-phase outcome of an etl-orchestration run.
type PhaseResult struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// runETL executes the five-phase warehouse rebuild. Phase errors are
// collected, not fatal: later phases still run against best-effort state, and
// each failure produces an actionable recommendation.
func (o *Orchestrator) runETL(ctx context.Context, opts Options, result *Result) error {
	if o.Warehouse == nil {
		return fmt.Errorf("etl-orchestration requires a warehouse maintainer")
	}

	phase := func(name string, run func() (int, error)) {
		pr := PhaseResult{Name: name}
		processed, err := run()
		pr.Processed = processed
		if err != nil {
			pr.Error = err.Error()
			result.Errors++
		}
		result.Phases = append(result.Phases, pr)
	}

	phase("raw-data-catchup", func() (int, error) {
		sub := Result{}
		if err := o.runStandard(ctx, opts, &sub); err != nil {
			return 0, err
		}
		result.Processed += sub.Processed
		result.Errors += sub.Errors
		result.Total += sub.Total
		return sub.Processed, nil
	})
	phase("materialized-views", func() (int, error) {
		if err := o.Warehouse.EnsureMaterializedViews(ctx); err != nil {
			return 0, err
		}
		return o.Warehouse.RefreshMaterializedViews(ctx)
	})
	phase("aggregation-tables", func() (int, error) {
		return 0, o.Warehouse.EnsureAggregationTables(ctx)
	})
	phase("continuous-aggregates", func() (int, error) {
		return o.Warehouse.RefreshContinuousAggregates(ctx)
	})
	phase("scheduled-jobs", func() (int, error) {
		return o.Warehouse.RunRollupJobs(ctx)
	})

	for _, pr := range result.Phases {
		if pr.Error == "" {
			continue
		}
		switch pr.Name {
		case "raw-data-catchup":
			result.Recommendations = append(result.Recommendations,
				"raw data catch-up failed - check source log connectivity")
		case "materialized-views":
			result.Recommendations = append(result.Recommendations,
				"materialized views failed - check view definitions")
		case "aggregation-tables":
			result.Recommendations = append(result.Recommendations,
				"aggregation tables failed - check table schemas")
		case "continuous-aggregates":
			result.Recommendations = append(result.Recommendations,
				"continuous aggregates failed - check aggregate watermarks")
		case "scheduled-jobs":
			result.Recommendations = append(result.Recommendations,
				"scheduled rollup jobs failed - check job definitions")
		}
	}
	result.Message = fmt.Sprintf("etl orchestration: %d phases, %d processed, %d errors",
		len(result.Phases), result.Processed, result.Errors)
	return ctx.Err()
}
