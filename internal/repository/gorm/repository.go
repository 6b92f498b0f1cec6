package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dexmon/internal/models"
	"dexmon/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- source log -------------------------------------------------------------

func (s *Store) ListOrderDetails(ctx context.Context) ([]models.OrderDetail, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.OrderDetail
	if err := s.db.WithContext(ctx).
		Model(&models.OrderDetail{}).
		Order("order_id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOrderEvents(ctx context.Context, poolID *string, from, to time.Time) ([]models.OrderEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.OrderEvent{}).
		Where("event_time >= ?", from).
		Where("event_time < ?", to)
	if poolID != nil && strings.TrimSpace(*poolID) != "" {
		query = query.Where(
			"order_id IN (?)",
			s.db.Model(&models.OrderDetail{}).Select("order_id").Where("pool_id = ?", strings.TrimSpace(*poolID)),
		)
	}
	var items []models.OrderEvent
	if err := query.Order("event_time asc, order_id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) EarliestOrderEventTime(ctx context.Context) (*time.Time, error) {
	return s.minTime(ctx, &models.OrderEvent{}, "event_time")
}

func (s *Store) CountTrades(ctx context.Context, from, to *time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Trade{})
	if from != nil && !from.IsZero() {
		query = query.Where("trade_time >= ?", *from)
	}
	if to != nil && !to.IsZero() {
		query = query.Where("trade_time <= ?", *to)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) EarliestTradeTime(ctx context.Context) (*time.Time, error) {
	return s.minTime(ctx, &models.Trade{}, "trade_time")
}

func (s *Store) LatestTradeTime(ctx context.Context) (*time.Time, error) {
	return s.maxTime(ctx, &models.Trade{}, "trade_time", "")
}

func (s *Store) ListTradeCursors(ctx context.Context) ([]repository.TradeCursor, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []repository.TradeCursor
	if err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("trade_id, trade_time").
		Order("trade_time asc, trade_id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTradesAfter(ctx context.Context, after time.Time, service string, limit int) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("trade_time > ?", after).
		Where(
			"NOT EXISTS (SELECT 1 FROM trade_markers m WHERE m.trade_id = trades.trade_id AND m.service = ?)",
			service,
		).
		Order("trade_time asc, trade_id asc").
		Limit(normalizeLimit(limit, 10000)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListUnprocessedTrades(ctx context.Context, from, to time.Time, service string, limit int) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("trade_time >= ?", from).
		Where("trade_time <= ?", to).
		Where(
			"NOT EXISTS (SELECT 1 FROM trade_markers m WHERE m.trade_id = trades.trade_id AND m.service = ?)",
			service,
		).
		Order("trade_time asc, trade_id asc").
		Limit(normalizeLimit(limit, 10000)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- markers ----------------------------------------------------------------

func (s *Store) UpsertMarker(ctx context.Context, item *models.TradeMarker) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.TradeID) == "" || strings.TrimSpace(item.Service) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "trade_id"}, {Name: "service"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"trade_time",
			"processed_at",
			"error_message",
		}),
	}).Create(item).Error
}

func (s *Store) CountMarkersByStatus(ctx context.Context, service string, statuses []string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.TradeMarker{}).
		Where("service = ?", service)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) MaxMarkerTradeTime(ctx context.Context, service string, statuses []string) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.TradeMarker{}).
		Where("service = ?", service)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var row struct{ Max *time.Time }
	if err := query.Select("MAX(trade_time) AS max").Scan(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.Max, nil
}

func (s *Store) ListMarkerTradeIDs(ctx context.Context, service string, statuses []string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.TradeMarker{}).
		Where("service = ?", service)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var ids []string
	if err := query.Pluck("trade_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) BulkMarkSkipped(ctx context.Context, service string, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Exec(
		`INSERT INTO trade_markers (trade_id, service, status, trade_time, processed_at)
		 SELECT t.trade_id, ?, ?, t.trade_time, NOW()
		 FROM trades t
		 WHERE t.trade_time <= ?
		   AND NOT EXISTS (
		     SELECT 1 FROM trade_markers m WHERE m.trade_id = t.trade_id AND m.service = ?
		   )
		 ON CONFLICT (trade_id, service) DO NOTHING`,
		service, models.MarkerSkipped, cutoff, service,
	)
	return res.RowsAffected, res.Error
}

// --- snapshots --------------------------------------------------------------

func (s *Store) UpsertDepthSnapshots(ctx context.Context, items []models.DepthSnapshot) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "snapshot_time"},
			{Name: "pool_id"},
			{Name: "side"},
			{Name: "price"},
			{Name: "interval_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"symbol",
			"quantity",
			"order_count",
			"liquidity_value",
		}),
	}).CreateInBatches(items, 500).Error
}

func (s *Store) UpsertDepthAggregates(ctx context.Context, items []models.DepthAggregate) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "snapshot_time"},
			{Name: "pool_id"},
			{Name: "interval_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"symbol",
			"bid_liquidity",
			"ask_liquidity",
			"total_liquidity",
			"bid_order_count",
			"ask_order_count",
			"best_bid",
			"best_ask",
			"spread",
		}),
	}).CreateInBatches(items, 500).Error
}

func (s *Store) MaxSnapshotTime(ctx context.Context, intervalType string) (*time.Time, error) {
	return s.maxTime(ctx, &models.DepthSnapshot{}, "snapshot_time", intervalType)
}

// --- analytics sink ---------------------------------------------------------

func (s *Store) UpsertPoolTrade(ctx context.Context, item *models.PoolTrade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "trade_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"pool_id",
			"symbol",
			"side",
			"price",
			"quantity",
			"volume",
			"trade_time",
		}),
	}).Create(item).Error
}

// --- sync state -------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).
		Where("scope = ?", scope).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"watermark_ts",
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

func (s *Store) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SyncState
	if err := s.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Order("scope asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func (s *Store) minTime(ctx context.Context, model any, column string) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var row struct{ Min *time.Time }
	err := s.db.WithContext(ctx).
		Model(model).
		Select("MIN(" + column + ") AS min").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return row.Min, nil
}

func (s *Store) maxTime(ctx context.Context, model any, column, intervalType string) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(model)
	if intervalType != "" {
		query = query.Where("interval_type = ?", intervalType)
	}
	var row struct{ Max *time.Time }
	if err := query.Select("MAX(" + column + ") AS max").Scan(&row).Error; err != nil {
		return nil, err
	}
	return row.Max, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

var _ repository.Repository = (*Store)(nil)
