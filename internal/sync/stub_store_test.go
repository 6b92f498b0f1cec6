package sync

import (
	"context"
	"errors"
	"sort"
	"time"

	"dexmon/internal/models"
	"dexmon/internal/repository"
)

var errTradeRejected = errors.New("trade rejected")

// stubStore is a test-only in-memory implementation of Store. Markers are
// keyed by (trade_id, service) like the real table; failTradeIDs injects
// analytics write failures for specific trades.
type stubStore struct {
	trades  []models.Trade
	markers map[string]models.TradeMarker

	poolTrades   map[string]models.PoolTrade
	failTradeIDs map[string]bool
	states       map[string]models.SyncState
}

func newStubStore(trades ...models.Trade) *stubStore {
	return &stubStore{
		trades:     trades,
		markers:    make(map[string]models.TradeMarker),
		poolTrades: make(map[string]models.PoolTrade),
		states:     make(map[string]models.SyncState),
	}
}

func markerKey(tradeID, service string) string { return tradeID + "|" + service }

func (s *stubStore) hasMarker(tradeID, service string) bool {
	_, ok := s.markers[markerKey(tradeID, service)]
	return ok
}

func statusIn(status string, statuses []string) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if st == status {
			return true
		}
	}
	return false
}

func sortTrades(items []models.Trade) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].TradeTime.Equal(items[j].TradeTime) {
			return items[i].TradeTime.Before(items[j].TradeTime)
		}
		return items[i].TradeID < items[j].TradeID
	})
}

// --- source log -------------------------------------------------------------

func (s *stubStore) ListOrderDetails(ctx context.Context) ([]models.OrderDetail, error) {
	return nil, nil
}
func (s *stubStore) ListOrderEvents(ctx context.Context, poolID *string, from, to time.Time) ([]models.OrderEvent, error) {
	return nil, nil
}
func (s *stubStore) EarliestOrderEventTime(ctx context.Context) (*time.Time, error) {
	return nil, nil
}

func (s *stubStore) CountTrades(ctx context.Context, from, to *time.Time) (int64, error) {
	var count int64
	for _, t := range s.trades {
		if from != nil && t.TradeTime.Before(*from) {
			continue
		}
		if to != nil && t.TradeTime.After(*to) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *stubStore) EarliestTradeTime(ctx context.Context) (*time.Time, error) {
	if len(s.trades) == 0 {
		return nil, nil
	}
	earliest := s.trades[0].TradeTime
	for _, t := range s.trades[1:] {
		if t.TradeTime.Before(earliest) {
			earliest = t.TradeTime
		}
	}
	return &earliest, nil
}

func (s *stubStore) LatestTradeTime(ctx context.Context) (*time.Time, error) {
	if len(s.trades) == 0 {
		return nil, nil
	}
	latest := s.trades[0].TradeTime
	for _, t := range s.trades[1:] {
		if t.TradeTime.After(latest) {
			latest = t.TradeTime
		}
	}
	return &latest, nil
}

func (s *stubStore) ListTradeCursors(ctx context.Context) ([]repository.TradeCursor, error) {
	items := make([]models.Trade, len(s.trades))
	copy(items, s.trades)
	sortTrades(items)
	cursors := make([]repository.TradeCursor, 0, len(items))
	for _, t := range items {
		cursors = append(cursors, repository.TradeCursor{TradeID: t.TradeID, TradeTime: t.TradeTime})
	}
	return cursors, nil
}

func (s *stubStore) ListTradesAfter(ctx context.Context, after time.Time, service string, limit int) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.trades {
		if !t.TradeTime.After(after) || s.hasMarker(t.TradeID, service) {
			continue
		}
		out = append(out, t)
	}
	sortTrades(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) ListUnprocessedTrades(ctx context.Context, from, to time.Time, service string, limit int) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.trades {
		if t.TradeTime.Before(from) || t.TradeTime.After(to) || s.hasMarker(t.TradeID, service) {
			continue
		}
		out = append(out, t)
	}
	sortTrades(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- markers ----------------------------------------------------------------

func (s *stubStore) UpsertMarker(ctx context.Context, item *models.TradeMarker) error {
	s.markers[markerKey(item.TradeID, item.Service)] = *item
	return nil
}

func (s *stubStore) CountMarkersByStatus(ctx context.Context, service string, statuses []string) (int64, error) {
	var count int64
	for _, m := range s.markers {
		if m.Service == service && statusIn(m.Status, statuses) {
			count++
		}
	}
	return count, nil
}

func (s *stubStore) MaxMarkerTradeTime(ctx context.Context, service string, statuses []string) (*time.Time, error) {
	var max *time.Time
	for _, m := range s.markers {
		if m.Service != service || !statusIn(m.Status, statuses) {
			continue
		}
		if max == nil || m.TradeTime.After(*max) {
			t := m.TradeTime
			max = &t
		}
	}
	return max, nil
}

func (s *stubStore) ListMarkerTradeIDs(ctx context.Context, service string, statuses []string) ([]string, error) {
	var ids []string
	for _, m := range s.markers {
		if m.Service == service && statusIn(m.Status, statuses) {
			ids = append(ids, m.TradeID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *stubStore) BulkMarkSkipped(ctx context.Context, service string, cutoff time.Time) (int64, error) {
	var count int64
	for _, t := range s.trades {
		if t.TradeTime.After(cutoff) || s.hasMarker(t.TradeID, service) {
			continue
		}
		s.markers[markerKey(t.TradeID, service)] = models.TradeMarker{
			TradeID:     t.TradeID,
			Service:     service,
			Status:      models.MarkerSkipped,
			TradeTime:   t.TradeTime,
			ProcessedAt: time.Now().UTC(),
		}
		count++
	}
	return count, nil
}

// --- analytics --------------------------------------------------------------

func (s *stubStore) UpsertPoolTrade(ctx context.Context, item *models.PoolTrade) error {
	if s.failTradeIDs[item.TradeID] {
		return errTradeRejected
	}
	s.poolTrades[item.TradeID] = *item
	return nil
}

// --- sync state -------------------------------------------------------------

func (s *stubStore) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	state, ok := s.states[scope]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *stubStore) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	s.states[state.Scope] = *state
	return nil
}

func (s *stubStore) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	var out []models.SyncState
	for _, state := range s.states {
		out = append(out, state)
	}
	return out, nil
}

var _ Store = (*stubStore)(nil)

// stubWarehouse is a WarehouseMaintainer with injectable failures.
type stubWarehouse struct {
	health     DependencyHealth
	healthErr  error
	viewsErr   error
	refreshErr error
	tablesErr  error
	aggsErr    error
	jobsErr    error

	refreshed int
}

func (w *stubWarehouse) EnsureMaterializedViews(ctx context.Context) error { return w.viewsErr }
func (w *stubWarehouse) RefreshMaterializedViews(ctx context.Context) (int, error) {
	if w.refreshErr != nil {
		return 0, w.refreshErr
	}
	w.refreshed++
	return 2, nil
}
func (w *stubWarehouse) EnsureAggregationTables(ctx context.Context) error { return w.tablesErr }
func (w *stubWarehouse) RefreshContinuousAggregates(ctx context.Context) (int, error) {
	return 1, w.aggsErr
}
func (w *stubWarehouse) RunRollupJobs(ctx context.Context) (int, error) { return 2, w.jobsErr }
func (w *stubWarehouse) Health(ctx context.Context) (DependencyHealth, error) {
	return w.health, w.healthErr
}

var _ WarehouseMaintainer = (*stubWarehouse)(nil)
