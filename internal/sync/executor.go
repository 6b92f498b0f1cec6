package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"dexmon/internal/config"
	"dexmon/internal/lock"
	"dexmon/internal/models"
)

// Orchestrator selects and executes sync strategies against the source log
// and the marker store. One logical worker per invocation: batches and the
// records inside them run sequentially to bound load on the shared tables.
type Orchestrator struct {
	Store     Store
	Warehouse WarehouseMaintainer
	Locker    lock.Locker
	Logger    *zap.Logger
	Config    config.SyncConfig

	// now is swappable in tests.
	now func() time.Time
}

// Options configures one sync invocation. Zero values fall back to the
// orchestrator's config, then to built-in defaults.
type Options struct {
	Strategy            string     `json:"strategy"`
	ColdStartStrategy   string     `json:"cold_start_strategy"`
	RecentDays          int        `json:"recent_days"`
	BatchSize           int        `json:"batch_size"`
	MaxHistoricalTrades int64      `json:"max_historical_trades"`
	FromTimestamp       *time.Time `json:"from_timestamp"`
}

// Result is the structured outcome every top-level sync operation returns.
type Result struct {
	RunID           string        `json:"run_id"`
	Strategy        Strategy      `json:"strategy"`
	Success         bool          `json:"success"`
	Processed       int           `json:"processed"`
	Skipped         int64         `json:"skipped"`
	Errors          int           `json:"errors"`
	Total           int           `json:"total"`
	Duration        time.Duration `json:"duration"`
	Message         string        `json:"message"`
	Recommendations []string      `json:"recommendations,omitempty"`
	Phases          []PhaseResult `json:"phases,omitempty"`
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) service() string {
	if o.Config.Service != "" {
		return o.Config.Service
	}
	return "trade_sync"
}

func (o *Orchestrator) fetchLimit() int {
	if o.Config.FetchLimit > 0 {
		return o.Config.FetchLimit
	}
	return 10000
}

func (o *Orchestrator) withDefaults(opts Options) Options {
	if opts.RecentDays <= 0 {
		if o.Config.RecentDays > 0 {
			opts.RecentDays = o.Config.RecentDays
		} else {
			opts.RecentDays = 7
		}
	}
	if opts.BatchSize <= 0 {
		if o.Config.BatchSize > 0 {
			opts.BatchSize = o.Config.BatchSize
		} else {
			opts.BatchSize = 100
		}
	}
	if opts.MaxHistoricalTrades <= 0 {
		if o.Config.MaxHistoricalTrades > 0 {
			opts.MaxHistoricalTrades = o.Config.MaxHistoricalTrades
		} else {
			opts.MaxHistoricalTrades = 1_000_000
		}
	}
	return opts
}

// Sync runs one sync pass. The strategy is taken from opts, or chosen by a
// health check when "auto". An unknown strategy name fails before any I/O.
func (o *Orchestrator) Sync(ctx context.Context, opts Options) (Result, error) {
	started := o.clock()
	result := Result{RunID: uuid.New().String()}

	strategy, err := ParseStrategy(opts.Strategy)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}
	opts = o.withDefaults(opts)

	if o.Locker != nil {
		unlock, err := o.Locker.Acquire(ctx, "sync:"+o.service())
		if errors.Is(err, lock.ErrHeld) {
			result.Success = true
			result.Duration = o.clock().Sub(started)
			result.Message = "another sync run holds the lock, skipping"
			return result, nil
		}
		if err != nil {
			return o.fail(result, started, fmt.Errorf("acquire sync lock: %w", err))
		}
		defer unlock()
	}

	if strategy == StrategyAuto {
		checker := &HealthChecker{Store: o.Store, Warehouse: o.Warehouse, Logger: o.Logger, Config: o.Config}
		health, err := checker.CheckHealth(ctx)
		if err != nil {
			return o.fail(result, started, fmt.Errorf("health check: %w", err))
		}
		decision := SelectStrategy(health, o.Config)
		if decision.SkipSync {
			result.Success = true
			result.Strategy = decision.Strategy
			result.Duration = o.clock().Sub(started)
			result.Message = decision.Reason
			return result, nil
		}
		strategy = decision.Strategy
		if o.Logger != nil {
			o.Logger.Info("sync strategy selected",
				zap.String("strategy", string(strategy)),
				zap.Bool("urgent", decision.Urgent),
				zap.String("reason", decision.Reason))
		}
	}
	result.Strategy = strategy

	switch strategy {
	case StrategyStandard:
		err = o.runStandard(ctx, opts, &result)
	case StrategyComprehensive:
		err = o.runComprehensive(ctx, opts, &result)
	case StrategyColdStart:
		err = o.runColdStart(ctx, opts, &result)
	case StrategyETL:
		err = o.runETL(ctx, opts, &result)
	}
	if err != nil {
		return o.fail(result, started, err)
	}

	result.Success = true
	result.Duration = o.clock().Sub(started)
	if result.Message == "" {
		result.Message = fmt.Sprintf("%s sync: %d processed, %d errors of %d",
			strategy, result.Processed, result.Errors, result.Total)
	}
	o.recordState(ctx, result, nil)
	if o.Logger != nil {
		o.Logger.Info("sync finished",
			zap.String("run_id", result.RunID),
			zap.String("strategy", string(result.Strategy)),
			zap.Int("processed", result.Processed),
			zap.Int("errors", result.Errors),
			zap.Duration("duration", result.Duration))
	}
	return result, nil
}

// --- strategies -------------------------------------------------------------

func (o *Orchestrator) runStandard(ctx context.Context, opts Options, result *Result) error {
	service := o.service()
	var after time.Time
	if opts.FromTimestamp != nil && !opts.FromTimestamp.IsZero() {
		after = *opts.FromTimestamp
	} else {
		last, err := o.Store.MaxMarkerTradeTime(ctx, service, coveredStatuses)
		if err != nil {
			return fmt.Errorf("last covered time: %w", err)
		}
		if last != nil {
			after = *last
		}
	}

	trades, err := o.Store.ListTradesAfter(ctx, after, service, o.fetchLimit())
	if err != nil {
		return fmt.Errorf("fetch trades after %s: %w", after, err)
	}
	result.Total = len(trades)
	result.Processed, result.Errors = o.processBatches(ctx, trades, opts.BatchSize)
	return ctx.Err()
}

func (o *Orchestrator) runComprehensive(ctx context.Context, opts Options, result *Result) error {
	service := o.service()
	coveredIDs, err := o.Store.ListMarkerTradeIDs(ctx, service, coveredStatuses)
	if err != nil {
		return fmt.Errorf("list covered markers: %w", err)
	}
	covered := make(map[string]struct{}, len(coveredIDs))
	for _, id := range coveredIDs {
		covered[id] = struct{}{}
	}
	cursors, err := o.Store.ListTradeCursors(ctx)
	if err != nil {
		return fmt.Errorf("list trade cursors: %w", err)
	}
	gaps, err := DetectGaps(ctx, o.Store, cursors, covered)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	var trades []models.Trade
	for _, gap := range gaps {
		batch, err := o.Store.ListUnprocessedTrades(ctx, gap.From, gap.To, service, o.fetchLimit())
		if err != nil {
			return fmt.Errorf("fetch gap [%s, %s]: %w", gap.From, gap.To, err)
		}
		for _, t := range batch {
			if _, ok := seen[t.TradeID]; ok {
				continue
			}
			seen[t.TradeID] = struct{}{}
			trades = append(trades, t)
		}
	}
	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].TradeTime.Equal(trades[j].TradeTime) {
			return trades[i].TradeTime.Before(trades[j].TradeTime)
		}
		return trades[i].TradeID < trades[j].TradeID
	})

	// Gap-filling touches historical partitions: smaller batches, correctness
	// over throughput.
	batchSize := o.Config.GapBatchSize
	if batchSize <= 0 {
		batchSize = opts.BatchSize / 2
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	result.Total = len(trades)
	result.Processed, result.Errors = o.processBatches(ctx, trades, batchSize)
	if result.Message == "" {
		result.Message = fmt.Sprintf("comprehensive sync: filled %d gap(s), %d processed, %d errors",
			len(gaps), result.Processed, result.Errors)
	}
	return ctx.Err()
}

func (o *Orchestrator) runColdStart(ctx context.Context, opts Options, result *Result) error {
	service := o.service()
	analysis, err := o.AnalyzeColdStart(ctx)
	if err != nil {
		return err
	}
	strategy := opts.ColdStartStrategy
	if strategy == "" {
		strategy = analysis.Recommended
	}

	now := o.clock()
	switch strategy {
	case ColdStartFull:
		earliest, err := o.Store.EarliestTradeTime(ctx)
		if err != nil {
			return fmt.Errorf("earliest source time: %w", err)
		}
		if earliest == nil {
			result.Message = "cold start: source log is empty"
			return nil
		}
		limit := int(opts.MaxHistoricalTrades)
		trades, err := o.Store.ListUnprocessedTrades(ctx, *earliest, now, service, limit)
		if err != nil {
			return fmt.Errorf("fetch full history: %w", err)
		}
		result.Total = len(trades)
		result.Processed, result.Errors = o.processBatches(ctx, trades, opts.BatchSize)
		result.Message = fmt.Sprintf("cold start (full): %d processed, %d errors", result.Processed, result.Errors)

	case ColdStartRecent:
		cutoff := now.Add(-time.Duration(opts.RecentDays) * 24 * time.Hour)
		skipped, err := o.Store.BulkMarkSkipped(ctx, service, cutoff)
		if err != nil {
			return fmt.Errorf("skip history before %s: %w", cutoff, err)
		}
		result.Skipped = skipped
		limit := int(opts.MaxHistoricalTrades)
		trades, err := o.Store.ListUnprocessedTrades(ctx, cutoff, now, service, limit)
		if err != nil {
			return fmt.Errorf("fetch recent window: %w", err)
		}
		result.Total = len(trades)
		result.Processed, result.Errors = o.processBatches(ctx, trades, opts.BatchSize)
		result.Message = fmt.Sprintf("cold start (recent %dd): %d processed, %d errors, %d skipped",
			opts.RecentDays, result.Processed, result.Errors, skipped)

	case ColdStartSkipHistorical:
		skipped, err := o.Store.BulkMarkSkipped(ctx, service, now)
		if err != nil {
			return fmt.Errorf("skip history: %w", err)
		}
		result.Skipped = skipped
		result.Message = fmt.Sprintf("cold start (skip-historical): %d trades marked skipped, starting clean", skipped)

	default:
		return fmt.Errorf("unknown cold-start strategy: %q", strategy)
	}
	return ctx.Err()
}

// --- batch processing -------------------------------------------------------

// processBatches partitions trades into fixed-size batches and applies them
// sequentially. A record failure marks that record `error`, abandons the rest
// of its batch, and moves on to the next batch; other batches are unaffected.
// Returned errors count every unresolved record, attempted or not.
func (o *Orchestrator) processBatches(ctx context.Context, trades []models.Trade, batchSize int) (processed, errored int) {
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(trades); start += batchSize {
		end := start + batchSize
		if end > len(trades) {
			end = len(trades)
		}
		batch := trades[start:end]
		for i := range batch {
			if ctx.Err() != nil {
				errored += len(batch) - i
				return processed, errored + len(trades) - end
			}
			if err := o.applyTrade(ctx, &batch[i]); err != nil {
				o.markError(ctx, &batch[i], err)
				// Fail fast within this batch; later batches still run.
				errored += len(batch) - i
				if o.Logger != nil {
					o.Logger.Warn("trade apply failed, abandoning rest of batch",
						zap.String("trade_id", batch[i].TradeID),
						zap.Int("batch_remaining", len(batch)-i-1),
						zap.Error(err))
				}
				break
			}
			processed++
		}
	}
	return processed, errored
}

// applyTrade transforms one raw trade into its analytics row, writes it, and
// marks it processed. Marker upserts are last-write-wins, so reapplying an
// already-processed trade converges.
func (o *Orchestrator) applyTrade(ctx context.Context, trade *models.Trade) error {
	row := transformTrade(trade)
	if err := o.Store.UpsertPoolTrade(ctx, row); err != nil {
		return fmt.Errorf("upsert pool trade: %w", err)
	}
	marker := &models.TradeMarker{
		TradeID:     trade.TradeID,
		Service:     o.service(),
		Status:      models.MarkerProcessed,
		TradeTime:   trade.TradeTime,
		ProcessedAt: o.clock(),
	}
	if err := o.Store.UpsertMarker(ctx, marker); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (o *Orchestrator) markError(ctx context.Context, trade *models.Trade, cause error) {
	msg := cause.Error()
	marker := &models.TradeMarker{
		TradeID:      trade.TradeID,
		Service:      o.service(),
		Status:       models.MarkerError,
		TradeTime:    trade.TradeTime,
		ProcessedAt:  o.clock(),
		ErrorMessage: &msg,
	}
	if err := o.Store.UpsertMarker(ctx, marker); err != nil && o.Logger != nil {
		o.Logger.Warn("mark error failed", zap.String("trade_id", trade.TradeID), zap.Error(err))
	}
}

// --- bookkeeping ------------------------------------------------------------

func (o *Orchestrator) fail(result Result, started time.Time, err error) (Result, error) {
	result.Success = false
	result.Duration = o.clock().Sub(started)
	result.Message = err.Error()
	o.recordState(context.Background(), result, err)
	return result, err
}

func (o *Orchestrator) recordState(c context.Context, result Result, runErr error) {
	now := o.clock()
	state := &models.SyncState{
		Scope:         o.service(),
		LastAttemptAt: &now,
	}
	if runErr == nil {
		state.LastSuccessAt = &now
		state.WatermarkTS = &now
	} else {
		msg := runErr.Error()
		state.LastError = &msg
	}
	if stats, err := json.Marshal(result); err == nil {
		state.StatsJSON = datatypes.JSON(stats)
	}
	if err := o.Store.SaveSyncState(c, state); err != nil && o.Logger != nil {
		o.Logger.Warn("save sync state failed", zap.Error(err))
	}
}
