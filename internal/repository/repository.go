package repository

import (
	"context"
	"time"

	"dexmon/internal/models"
)

// TradeCursor is the (id, timestamp) projection of a source trade used by gap
// detection. The full list is globally sorted by (trade_time, trade_id).
type TradeCursor struct {
	TradeID   string
	TradeTime time.Time
}

// SourceLogReader reads the indexer's append-only tables. All range queries
// are inclusive of from and exclusive of to unless stated otherwise.
type SourceLogReader interface {
	// ListOrderDetails returns every order creation record. Rows with a
	// non-positive price are still returned; the replay engine decides how to
	// treat them.
	ListOrderDetails(ctx context.Context) ([]models.OrderDetail, error)
	// ListOrderEvents returns lifecycle events in [from, to) ordered by
	// (event_time, order_id). poolID narrows to one pool's orders when set.
	ListOrderEvents(ctx context.Context, poolID *string, from, to time.Time) ([]models.OrderEvent, error)
	EarliestOrderEventTime(ctx context.Context) (*time.Time, error)

	CountTrades(ctx context.Context, from, to *time.Time) (int64, error)
	EarliestTradeTime(ctx context.Context) (*time.Time, error)
	LatestTradeTime(ctx context.Context) (*time.Time, error)
	ListTradeCursors(ctx context.Context) ([]TradeCursor, error)
	// ListTradesAfter returns trades with trade_time > after that have no
	// marker row for service, ordered by (trade_time, trade_id), capped at
	// limit.
	ListTradesAfter(ctx context.Context, after time.Time, service string, limit int) ([]models.Trade, error)
	// ListUnprocessedTrades returns trades in [from, to] that have no marker
	// row for service, ordered by (trade_time, trade_id), capped at limit.
	ListUnprocessedTrades(ctx context.Context, from, to time.Time, service string, limit int) ([]models.Trade, error)
}

// MarkerStore is the durable (trade_id, service) -> status record set; the
// single source of truth for what has been applied downstream.
type MarkerStore interface {
	UpsertMarker(ctx context.Context, item *models.TradeMarker) error
	CountMarkersByStatus(ctx context.Context, service string, statuses []string) (int64, error)
	MaxMarkerTradeTime(ctx context.Context, service string, statuses []string) (*time.Time, error)
	ListMarkerTradeIDs(ctx context.Context, service string, statuses []string) ([]string, error)
	// BulkMarkSkipped inserts a skipped marker for every source trade at or
	// before cutoff that has no marker yet, and returns how many it wrote.
	BulkMarkSkipped(ctx context.Context, service string, cutoff time.Time) (int64, error)
}

// SnapshotSink persists depth checkpoints emitted by the replay engine.
type SnapshotSink interface {
	UpsertDepthSnapshots(ctx context.Context, items []models.DepthSnapshot) error
	UpsertDepthAggregates(ctx context.Context, items []models.DepthAggregate) error
	MaxSnapshotTime(ctx context.Context, intervalType string) (*time.Time, error)
}

// AnalyticsSink receives transformed trades.
type AnalyticsSink interface {
	UpsertPoolTrade(ctx context.Context, item *models.PoolTrade) error
}

// SyncStateStore keeps per-scope run bookkeeping.
type SyncStateStore interface {
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)
}

// Repository is the unified store handed to services at wiring time.
type Repository interface {
	SourceLogReader
	MarkerStore
	SnapshotSink
	AnalyticsSink
	SyncStateStore
}
