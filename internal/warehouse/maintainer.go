package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dexmon/internal/models"
	"dexmon/internal/repository"
	"dexmon/internal/sync"
)

// StateScope is the sync_state scope warehouse maintenance reports under.
const StateScope = "warehouse"

// staleAfter is how far warehouse objects may trail pool_trades before the
// health check flags them.
const staleAfter = 2 * time.Hour

var materializedViews = []struct {
	name string
	ddl  string
}{
	{
		name: "pool_volume_daily",
		ddl: `CREATE MATERIALIZED VIEW IF NOT EXISTS pool_volume_daily AS
			SELECT date_trunc('day', trade_time) AS day,
			       pool_id,
			       symbol,
			       SUM(volume)   AS volume,
			       SUM(quantity) AS quantity,
			       COUNT(*)      AS trade_count
			FROM pool_trades
			GROUP BY 1, 2, 3`,
	},
	{
		name: "symbol_volume_daily",
		ddl: `CREATE MATERIALIZED VIEW IF NOT EXISTS symbol_volume_daily AS
			SELECT date_trunc('day', trade_time) AS day,
			       symbol,
			       SUM(volume) AS volume,
			       COUNT(*)    AS trade_count
			FROM pool_trades
			GROUP BY 1, 2`,
	},
}

// Maintainer owns the warehouse objects derived from pool_trades and
// depth_aggregates. All statements are fixed DDL/DML with bound parameters.
type Maintainer struct {
	DB     *gorm.DB
	States repository.SyncStateStore
	Logger *zap.Logger
}

func (m *Maintainer) EnsureMaterializedViews(ctx context.Context) error {
	for _, view := range materializedViews {
		if err := m.DB.WithContext(ctx).Exec(view.ddl).Error; err != nil {
			return fmt.Errorf("create view %s: %w", view.name, err)
		}
	}
	return nil
}

func (m *Maintainer) RefreshMaterializedViews(ctx context.Context) (int, error) {
	refreshed := 0
	for _, view := range materializedViews {
		if err := m.DB.WithContext(ctx).Exec("REFRESH MATERIALIZED VIEW " + view.name).Error; err != nil {
			return refreshed, fmt.Errorf("refresh view %s: %w", view.name, err)
		}
		refreshed++
	}
	return refreshed, nil
}

func (m *Maintainer) EnsureAggregationTables(ctx context.Context) error {
	return m.DB.WithContext(ctx).Exec(
		`CREATE TABLE IF NOT EXISTS pool_volume_hourly (
			bucket      timestamptz NOT NULL,
			pool_id     text        NOT NULL,
			symbol      text        NOT NULL,
			volume      numeric(30,12) NOT NULL,
			quantity    numeric(30,12) NOT NULL,
			trade_count bigint      NOT NULL,
			PRIMARY KEY (bucket, pool_id)
		)`).Error
}

// RefreshContinuousAggregates incrementally upserts hourly buckets from
// pool_trades, starting one bucket before the newest one already present so
// the open hour converges on repeat runs.
func (m *Maintainer) RefreshContinuousAggregates(ctx context.Context) (int, error) {
	var row struct{ Max *time.Time }
	if err := m.DB.WithContext(ctx).
		Raw("SELECT MAX(bucket) AS max FROM pool_volume_hourly").
		Scan(&row).Error; err != nil {
		return 0, fmt.Errorf("aggregate watermark: %w", err)
	}
	watermark := time.Time{}
	if row.Max != nil {
		watermark = row.Max.Add(-time.Hour)
	}

	res := m.DB.WithContext(ctx).Exec(
		`INSERT INTO pool_volume_hourly (bucket, pool_id, symbol, volume, quantity, trade_count)
		 SELECT date_trunc('hour', trade_time), pool_id, symbol,
		        SUM(volume), SUM(quantity), COUNT(*)
		 FROM pool_trades
		 WHERE trade_time >= ?
		 GROUP BY 1, 2, 3
		 ON CONFLICT (bucket, pool_id) DO UPDATE SET
		        symbol      = EXCLUDED.symbol,
		        volume      = EXCLUDED.volume,
		        quantity    = EXCLUDED.quantity,
		        trade_count = EXCLUDED.trade_count`,
		watermark)
	return int(res.RowsAffected), res.Error
}

// RunRollupJobs executes the scheduled transformation jobs: daily flow
// (buy/sell imbalance) and daily liquidity rollups.
func (m *Maintainer) RunRollupJobs(ctx context.Context) (int, error) {
	jobs := []struct {
		name string
		run  func(context.Context) error
	}{
		{"pool_flow_daily", m.rollupFlow},
		{"pool_liquidity_daily", m.rollupLiquidity},
	}
	ran := 0
	for _, job := range jobs {
		if err := job.run(ctx); err != nil {
			m.recordState(ctx, ran, err)
			return ran, fmt.Errorf("rollup job %s: %w", job.name, err)
		}
		ran++
	}
	m.recordState(ctx, ran, nil)
	return ran, nil
}

func (m *Maintainer) rollupFlow(ctx context.Context) error {
	if err := m.DB.WithContext(ctx).Exec(
		`CREATE TABLE IF NOT EXISTS pool_flow_daily (
			day         timestamptz NOT NULL,
			pool_id     text        NOT NULL,
			buy_volume  numeric(30,12) NOT NULL,
			sell_volume numeric(30,12) NOT NULL,
			net_flow    numeric(30,12) NOT NULL,
			PRIMARY KEY (day, pool_id)
		)`).Error; err != nil {
		return err
	}
	return m.DB.WithContext(ctx).Exec(
		`INSERT INTO pool_flow_daily (day, pool_id, buy_volume, sell_volume, net_flow)
		 SELECT date_trunc('day', trade_time), pool_id,
		        SUM(volume) FILTER (WHERE side = ?),
		        SUM(volume) FILTER (WHERE side = ?),
		        COALESCE(SUM(volume) FILTER (WHERE side = ?), 0) - COALESCE(SUM(volume) FILTER (WHERE side = ?), 0)
		 FROM pool_trades
		 GROUP BY 1, 2
		 ON CONFLICT (day, pool_id) DO UPDATE SET
		        buy_volume  = EXCLUDED.buy_volume,
		        sell_volume = EXCLUDED.sell_volume,
		        net_flow    = EXCLUDED.net_flow`,
		models.SideBuy, models.SideSell, models.SideBuy, models.SideSell).Error
}

func (m *Maintainer) rollupLiquidity(ctx context.Context) error {
	if err := m.DB.WithContext(ctx).Exec(
		`CREATE TABLE IF NOT EXISTS pool_liquidity_daily (
			day            timestamptz NOT NULL,
			pool_id        text        NOT NULL,
			avg_liquidity  numeric(30,12) NOT NULL,
			peak_liquidity numeric(30,12) NOT NULL,
			PRIMARY KEY (day, pool_id)
		)`).Error; err != nil {
		return err
	}
	return m.DB.WithContext(ctx).Exec(
		`INSERT INTO pool_liquidity_daily (day, pool_id, avg_liquidity, peak_liquidity)
		 SELECT date_trunc('day', snapshot_time), pool_id,
		        AVG(total_liquidity), MAX(total_liquidity)
		 FROM depth_aggregates
		 WHERE interval_type = ?
		 GROUP BY 1, 2
		 ON CONFLICT (day, pool_id) DO UPDATE SET
		        avg_liquidity  = EXCLUDED.avg_liquidity,
		        peak_liquidity = EXCLUDED.peak_liquidity`,
		models.IntervalHourly).Error
}

// Health reports whether the warehouse objects are trailing the raw data.
func (m *Maintainer) Health(ctx context.Context) (sync.DependencyHealth, error) {
	var health sync.DependencyHealth

	var viewCount int64
	if err := m.DB.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM pg_matviews WHERE matviewname IN (?, ?)",
			materializedViews[0].name, materializedViews[1].name).
		Scan(&viewCount).Error; err != nil {
		return health, fmt.Errorf("check materialized views: %w", err)
	}
	health.ViewsStale = viewCount < int64(len(materializedViews))

	var row struct {
		LatestTrade  *time.Time
		LatestBucket *time.Time
	}
	err := m.DB.WithContext(ctx).
		Raw(`SELECT
		       (SELECT MAX(trade_time) FROM pool_trades) AS latest_trade,
		       (SELECT MAX(bucket) FROM pool_volume_hourly) AS latest_bucket`).
		Scan(&row).Error
	if err != nil {
		// The aggregation table may simply not exist yet.
		health.AggregatesStale = true
	} else if row.LatestTrade != nil {
		if row.LatestBucket == nil || row.LatestTrade.Sub(*row.LatestBucket) > staleAfter {
			health.AggregatesStale = true
		}
	}

	if m.States != nil {
		state, err := m.States.GetSyncState(ctx, StateScope)
		if err != nil {
			return health, fmt.Errorf("warehouse sync state: %w", err)
		}
		if state != nil && state.LastError != nil && *state.LastError != "" {
			health.JobsFailing = true
		}
	}
	return health, nil
}

func (m *Maintainer) recordState(ctx context.Context, jobsRan int, runErr error) {
	if m.States == nil {
		return
	}
	now := time.Now().UTC()
	state := &models.SyncState{Scope: StateScope, LastAttemptAt: &now}
	if runErr == nil {
		state.LastSuccessAt = &now
		state.WatermarkTS = &now
	} else {
		msg := runErr.Error()
		state.LastError = &msg
	}
	if stats, err := json.Marshal(map[string]int{"jobs_ran": jobsRan}); err == nil {
		state.StatsJSON = datatypes.JSON(stats)
	}
	if err := m.States.SaveSyncState(ctx, state); err != nil && m.Logger != nil {
		m.Logger.Warn("save warehouse state failed", zap.Error(err))
	}
}

var _ sync.WarehouseMaintainer = (*Maintainer)(nil)
