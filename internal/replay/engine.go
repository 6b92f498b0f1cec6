package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"dexmon/internal/config"
	"dexmon/internal/models"
	"dexmon/internal/repository"
)

// StateScopeReplay is the sync_state scope the engine reports under.
const StateScopeReplay = "depth_replay"

const hourSeconds = 3600

// Store is what the engine needs from the database: the indexer's log, the
// snapshot tables, and run bookkeeping.
type Store interface {
	repository.SourceLogReader
	repository.SnapshotSink
	repository.SyncStateStore
}

// Engine reconstructs historical order-book depth by replaying order
// lifecycle events and persisting hourly checkpoints.
type Engine struct {
	Store  Store
	Logger *zap.Logger
	Config config.ReplayConfig

	// now is swappable in tests.
	now func() time.Time
}

// Result summarizes one reconstruction run.
type Result struct {
	Success        bool          `json:"success"`
	HoursProcessed int           `json:"hours_processed"`
	Snapshots      int           `json:"snapshots"`
	Anomalies      int           `json:"anomalies"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	Message        string        `json:"message"`
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now().UTC()
	}
	return time.Now().UTC()
}

// Reconstruct replays order lifecycle events from `from` (default: the source
// log's earliest event) to now, persisting one depth checkpoint per hour
// boundary plus a final authoritative snapshot of the live book.
//
// Data anomalies (unknown order, non-positive price) are logged and skipped;
// a snapshot write failure aborts the run. Already-written checkpoints stay
// valid because snapshot upserts converge.
func (e *Engine) Reconstruct(ctx context.Context, from *time.Time) (Result, error) {
	started := e.clock()
	result := Result{StartTime: started}

	details, err := e.Store.ListOrderDetails(ctx)
	if err != nil {
		return e.fail(result, fmt.Errorf("load order details: %w", err))
	}
	lookup := make(map[string]*models.OrderDetail, len(details))
	for i := range details {
		d := &details[i]
		if d.Price <= 0 {
			result.Anomalies++
			e.logWarn("skipping order with non-positive price",
				zap.String("order_id", d.OrderID), zap.Int64("price", d.Price))
			continue
		}
		lookup[d.OrderID] = d
	}

	if from == nil || from.IsZero() {
		earliest, err := e.Store.EarliestOrderEventTime(ctx)
		if err != nil {
			return e.fail(result, fmt.Errorf("earliest event time: %w", err))
		}
		if earliest == nil {
			result.Success = true
			result.EndTime = e.clock()
			result.Duration = result.EndTime.Sub(started)
			result.Message = "source log is empty, nothing to replay"
			return result, nil
		}
		from = earliest
	}

	book := NewBook()

	// Seed orders that were already open before the replay window; their OPEN
	// events predate `from` and will not be replayed.
	for _, d := range lookup {
		if d.Status == models.OrderStatusOpen && d.CreatedAt.Before(*from) {
			book.Apply(d, models.OrderStatusOpen, 0)
		}
	}

	now := e.clock()
	var poolFilter *string
	if e.Config.PoolID != "" {
		pool := e.Config.PoolID
		poolFilter = &pool
	}

	bucketStart := from.Unix() / hourSeconds * hourSeconds
	for ; bucketStart < now.Unix(); bucketStart += hourSeconds {
		if err := ctx.Err(); err != nil {
			return e.fail(result, err)
		}
		bucketEnd := bucketStart + hourSeconds

		events, err := e.Store.ListOrderEvents(ctx, poolFilter,
			time.Unix(bucketStart, 0).UTC(), time.Unix(bucketEnd, 0).UTC())
		if err != nil {
			return e.fail(result, fmt.Errorf("list events for bucket %d: %w", bucketStart, err))
		}
		for i := range events {
			ev := &events[i]
			detail, ok := lookup[ev.OrderID]
			if !ok {
				result.Anomalies++
				e.logWarn("skipping event for unknown order",
					zap.String("order_id", ev.OrderID), zap.String("status", ev.Status))
				continue
			}
			book.Apply(detail, ev.Status, ev.FilledAmount)
		}

		snapshots, aggs := book.Snapshot(time.Unix(bucketEnd, 0).UTC(), models.IntervalHourly)
		if err := e.persist(ctx, snapshots, aggs); err != nil {
			return e.fail(result, fmt.Errorf("persist bucket %d: %w", bucketEnd, err))
		}
		result.Snapshots += len(snapshots)
		result.HoursProcessed++
	}

	// Final authoritative snapshot: rebuild from currently-open orders and
	// compare against the replayed book so divergence is visible.
	live := NewBook()
	for _, d := range lookup {
		if d.Status == models.OrderStatusOpen {
			live.Apply(d, models.OrderStatusOpen, 0)
		}
	}
	if missing, extra, mismatched := book.Diff(live); missing+extra+mismatched > 0 {
		e.logWarn("replayed book diverges from live order table",
			zap.Int("levels_missing", missing),
			zap.Int("levels_extra", extra),
			zap.Int("levels_mismatched", mismatched))
	}
	snapshots, aggs := live.Snapshot(now.Truncate(time.Second), models.IntervalLatest)
	if err := e.persist(ctx, snapshots, aggs); err != nil {
		return e.fail(result, fmt.Errorf("persist live snapshot: %w", err))
	}
	result.Snapshots += len(snapshots)

	result.Success = true
	result.EndTime = e.clock()
	result.Duration = result.EndTime.Sub(started)
	result.Message = fmt.Sprintf("replayed %d hour(s), %d snapshot rows", result.HoursProcessed, result.Snapshots)
	e.recordState(ctx, result, nil)
	if e.Logger != nil {
		e.Logger.Info("depth reconstruction finished",
			zap.Int("hours", result.HoursProcessed),
			zap.Int("snapshots", result.Snapshots),
			zap.Int("anomalies", result.Anomalies),
			zap.Duration("duration", result.Duration))
	}
	return result, nil
}

// Resume continues reconstruction from the last persisted hourly checkpoint.
// It is a no-op when the newest checkpoint is younger than the configured
// threshold, so tight schedules do not redo fresh work.
func (e *Engine) Resume(ctx context.Context) (Result, error) {
	last, err := e.Store.MaxSnapshotTime(ctx, models.IntervalHourly)
	if err != nil {
		return e.fail(Result{StartTime: e.clock()}, fmt.Errorf("last snapshot time: %w", err))
	}
	if last == nil {
		return e.Reconstruct(ctx, nil)
	}
	threshold := e.Config.ResumeThreshold
	if threshold <= 0 {
		threshold = 5 * time.Minute
	}
	if e.clock().Sub(*last) < threshold {
		now := e.clock()
		return Result{
			Success:   true,
			StartTime: now,
			EndTime:   now,
			Message:   "last checkpoint is fresh, skipping",
		}, nil
	}
	return e.Reconstruct(ctx, last)
}

// ForceComplete replays the full history from the source log's first event.
func (e *Engine) ForceComplete(ctx context.Context) (Result, error) {
	earliest, err := e.Store.EarliestOrderEventTime(ctx)
	if err != nil {
		return e.fail(Result{StartTime: e.clock()}, fmt.Errorf("earliest event time: %w", err))
	}
	return e.Reconstruct(ctx, earliest)
}

// persist writes one checkpoint's rows, chunking the level rows by the
// configured snapshot batch so a wide book does not turn into one oversized
// statement.
func (e *Engine) persist(ctx context.Context, snapshots []models.DepthSnapshot, aggs []models.DepthAggregate) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := e.Config.SnapshotBatch
	if batch <= 0 {
		batch = 500
	}
	for start := 0; start < len(snapshots); start += batch {
		end := start + batch
		if end > len(snapshots) {
			end = len(snapshots)
		}
		if err := e.Store.UpsertDepthSnapshots(ctx, snapshots[start:end]); err != nil {
			return err
		}
	}
	return e.Store.UpsertDepthAggregates(ctx, aggs)
}

func (e *Engine) fail(result Result, err error) (Result, error) {
	result.Success = false
	result.EndTime = e.clock()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Message = err.Error()
	e.recordState(context.Background(), result, err)
	return result, err
}

func (e *Engine) recordState(ctx context.Context, result Result, runErr error) {
	now := e.clock()
	state := &models.SyncState{
		Scope:         StateScopeReplay,
		LastAttemptAt: &now,
	}
	if runErr == nil {
		state.LastSuccessAt = &now
		watermark := result.EndTime
		state.WatermarkTS = &watermark
	} else {
		msg := runErr.Error()
		state.LastError = &msg
	}
	if stats, err := json.Marshal(result); err == nil {
		state.StatsJSON = datatypes.JSON(stats)
	}
	if err := e.Store.SaveSyncState(ctx, state); err != nil {
		e.logWarn("save replay sync state failed", zap.Error(err))
	}
}

func (e *Engine) logWarn(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Warn(msg, fields...)
	}
}
