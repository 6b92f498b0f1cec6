package sync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dexmon/internal/lock"
	"dexmon/internal/models"
)

const testService = "trade_sync"

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

type stubLocker struct {
	err      error
	acquired int
}

func (l *stubLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() {}, nil
}

func newOrchestrator(store *stubStore, at time.Time) *Orchestrator {
	return &Orchestrator{
		Store: store,
		now:   func() time.Time { return at },
	}
}

func markProcessed(store *stubStore, trade models.Trade) {
	store.markers[markerKey(trade.TradeID, testService)] = models.TradeMarker{
		TradeID:     trade.TradeID,
		Service:     testService,
		Status:      models.MarkerProcessed,
		TradeTime:   trade.TradeTime,
		ProcessedAt: trade.TradeTime,
	}
}

func TestSyncUnknownStrategyFailsBeforeIO(t *testing.T) {
	o := newOrchestrator(newStubStore(), time.Now().UTC())
	_, err := o.Sync(context.Background(), Options{Strategy: "turbo"})
	if err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestStandardSyncTransformsAndMarks(t *testing.T) {
	trade := models.Trade{
		TradeID:       "t1",
		PoolID:        "pool-1",
		Symbol:        "ABC/USD",
		Side:          models.SideBuy,
		Price:         12345,
		Quantity:      2_000_000,
		BaseDecimals:  6,
		QuoteDecimals: 2,
		TradeTime:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	store := newStubStore(trade)
	o := newOrchestrator(store, trade.TradeTime.Add(time.Minute))

	result, err := o.Sync(context.Background(), Options{Strategy: "standard"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !result.Success || result.Processed != 1 || result.Errors != 0 {
		t.Fatalf("result = %+v, want 1 processed", result)
	}

	row, ok := store.poolTrades["t1"]
	if !ok {
		t.Fatalf("pool trade missing")
	}
	if !row.Price.Equal(decimalFromString(t, "123.45")) {
		t.Fatalf("price = %s, want 123.45", row.Price)
	}
	if !row.Quantity.Equal(decimalFromString(t, "2")) {
		t.Fatalf("quantity = %s, want 2", row.Quantity)
	}
	if !row.Volume.Equal(decimalFromString(t, "246.9")) {
		t.Fatalf("volume = %s, want 246.9", row.Volume)
	}

	marker, ok := store.markers[markerKey("t1", testService)]
	if !ok || marker.Status != models.MarkerProcessed {
		t.Fatalf("marker = %+v, want processed", marker)
	}
}

func TestStandardSyncResumesFromWatermark(t *testing.T) {
	a, b, c := tradeAt("a", 1), tradeAt("b", 2), tradeAt("c", 3)
	store := newStubStore(a, b, c)
	markProcessed(store, a)
	o := newOrchestrator(store, c.TradeTime.Add(time.Minute))

	result, err := o.Sync(context.Background(), Options{Strategy: "standard"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Processed != 2 || result.Total != 2 {
		t.Fatalf("result = %+v, want trades after the watermark only", result)
	}
	if !store.hasMarker("b", testService) || !store.hasMarker("c", testService) {
		t.Fatalf("markers missing for resumed trades")
	}
}

func TestBatchFailureIsolation(t *testing.T) {
	trades := []models.Trade{
		tradeAt("t1", 1), tradeAt("t2", 2), tradeAt("t3", 3),
		tradeAt("t4", 4), tradeAt("t5", 5), tradeAt("t6", 6),
	}
	store := newStubStore(trades...)
	store.failTradeIDs = map[string]bool{"t3": true}
	o := newOrchestrator(store, trades[5].TradeTime.Add(time.Minute))

	result, err := o.Sync(context.Background(), Options{Strategy: "standard", BatchSize: 2})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Batches are [t1 t2] [t3 t4] [t5 t6]. t3 fails, so t4 is abandoned with
	// it; the surrounding batches are unaffected.
	if result.Processed != 4 {
		t.Fatalf("processed = %d, want 4", result.Processed)
	}
	if result.Errors != 2 {
		t.Fatalf("errors = %d, want 2", result.Errors)
	}
	if result.Total != 6 {
		t.Fatalf("total = %d, want 6", result.Total)
	}

	marker, ok := store.markers[markerKey("t3", testService)]
	if !ok || marker.Status != models.MarkerError {
		t.Fatalf("t3 marker = %+v, want error", marker)
	}
	if marker.ErrorMessage == nil || *marker.ErrorMessage == "" {
		t.Fatalf("t3 marker missing error message")
	}
	if store.hasMarker("t4", testService) {
		t.Fatalf("t4 was abandoned, must carry no marker")
	}
	for _, id := range []string{"t1", "t2", "t5", "t6"} {
		m := store.markers[markerKey(id, testService)]
		if m.Status != models.MarkerProcessed {
			t.Fatalf("%s marker = %+v, want processed", id, m)
		}
	}
}

func TestComprehensiveFillsMiddleGap(t *testing.T) {
	a, b, c := tradeAt("a", 1), tradeAt("b", 2), tradeAt("c", 3)
	store := newStubStore(a, b, c)
	markProcessed(store, a)
	markProcessed(store, c)
	o := newOrchestrator(store, c.TradeTime.Add(time.Minute))

	result, err := o.Sync(context.Background(), Options{Strategy: "comprehensive"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Processed != 1 || result.Total != 1 {
		t.Fatalf("result = %+v, want exactly the gap filled", result)
	}
	marker := store.markers[markerKey("b", testService)]
	if marker.Status != models.MarkerProcessed {
		t.Fatalf("b marker = %+v, want processed", marker)
	}
}

func TestColdStartSkipHistorical(t *testing.T) {
	trades := []models.Trade{tradeAt("a", 1), tradeAt("b", 2), tradeAt("c", 3)}
	store := newStubStore(trades...)
	o := newOrchestrator(store, trades[2].TradeTime.Add(time.Hour))

	result, err := o.Sync(context.Background(), Options{
		Strategy:          "cold-start",
		ColdStartStrategy: ColdStartSkipHistorical,
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Skipped != 3 || result.Processed != 0 {
		t.Fatalf("result = %+v, want all 3 skipped", result)
	}
	for _, id := range []string{"a", "b", "c"} {
		m := store.markers[markerKey(id, testService)]
		if m.Status != models.MarkerSkipped {
			t.Fatalf("%s marker = %+v, want skipped", id, m)
		}
	}
}

func TestColdStartRecentWindow(t *testing.T) {
	now := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	old := models.Trade{TradeID: "old", PoolID: "pool-1", TradeTime: now.AddDate(0, 0, -20)}
	recent := models.Trade{TradeID: "recent", PoolID: "pool-1", TradeTime: now.AddDate(0, 0, -1)}
	store := newStubStore(old, recent)
	o := newOrchestrator(store, now)

	result, err := o.Sync(context.Background(), Options{
		Strategy:          "cold-start",
		ColdStartStrategy: ColdStartRecent,
		RecentDays:        7,
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Skipped != 1 || result.Processed != 1 {
		t.Fatalf("result = %+v, want old skipped and recent processed", result)
	}
	if m := store.markers[markerKey("old", testService)]; m.Status != models.MarkerSkipped {
		t.Fatalf("old marker = %+v, want skipped", m)
	}
	if m := store.markers[markerKey("recent", testService)]; m.Status != models.MarkerProcessed {
		t.Fatalf("recent marker = %+v, want processed", m)
	}
}

func TestColdStartDefaultsToRecommendation(t *testing.T) {
	// Three historical trades: small backlog, full replay recommended.
	trades := []models.Trade{tradeAt("a", 1), tradeAt("b", 2), tradeAt("c", 3)}
	store := newStubStore(trades...)
	o := newOrchestrator(store, trades[2].TradeTime.Add(time.Hour))

	result, err := o.Sync(context.Background(), Options{Strategy: "cold-start"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Processed != 3 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want full replay of 3 trades", result)
	}
}

func TestAutoSyncSkipsWhenHealthy(t *testing.T) {
	a, b := tradeAt("a", 1), tradeAt("b", 2)
	store := newStubStore(a, b)
	markProcessed(store, a)
	markProcessed(store, b)
	o := newOrchestrator(store, b.TradeTime.Add(time.Minute))
	o.Warehouse = &stubWarehouse{}

	result, err := o.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !result.Success || result.Processed != 0 {
		t.Fatalf("result = %+v, want healthy skip", result)
	}
	if result.Message == "" {
		t.Fatalf("skip reason missing")
	}
}

func TestAutoSyncSelectsColdStart(t *testing.T) {
	trades := []models.Trade{tradeAt("a", 1), tradeAt("b", 2)}
	store := newStubStore(trades...)
	o := newOrchestrator(store, trades[1].TradeTime.Add(time.Hour))
	o.Warehouse = &stubWarehouse{}

	result, err := o.Sync(context.Background(), Options{Strategy: "auto"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Strategy != StrategyColdStart {
		t.Fatalf("strategy = %q, want cold-start", result.Strategy)
	}
	if result.Processed != 2 {
		t.Fatalf("processed = %d, want 2", result.Processed)
	}
}

func TestSyncSkipsWhenLockHeld(t *testing.T) {
	store := newStubStore(tradeAt("a", 1))
	o := newOrchestrator(store, time.Now().UTC())
	o.Locker = &stubLocker{err: lock.ErrHeld}

	result, err := o.Sync(context.Background(), Options{Strategy: "standard"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !result.Success || result.Processed != 0 {
		t.Fatalf("result = %+v, want lock-held skip", result)
	}
	if store.hasMarker("a", testService) {
		t.Fatalf("no trade should be touched while the lock is held")
	}
}

func TestSyncRecordsState(t *testing.T) {
	store := newStubStore(tradeAt("a", 1))
	o := newOrchestrator(store, tradeAt("a", 1).TradeTime.Add(time.Minute))

	if _, err := o.Sync(context.Background(), Options{Strategy: "standard"}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	state, ok := store.states[testService]
	if !ok {
		t.Fatalf("sync state missing")
	}
	if state.LastSuccessAt == nil || state.LastError != nil {
		t.Fatalf("state = %+v, want success recorded", state)
	}
	if len(state.StatsJSON) == 0 {
		t.Fatalf("stats json missing")
	}
}
