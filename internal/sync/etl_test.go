package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestETLRunsAllPhases(t *testing.T) {
	store := newStubStore(tradeAt("a", 1))
	o := newOrchestrator(store, tradeAt("a", 1).TradeTime.Add(time.Minute))
	o.Warehouse = &stubWarehouse{}

	result, err := o.Sync(context.Background(), Options{Strategy: "etl-orchestration"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(result.Phases) != 5 {
		t.Fatalf("phases = %d, want 5", len(result.Phases))
	}
	wantOrder := []string{
		"raw-data-catchup",
		"materialized-views",
		"aggregation-tables",
		"continuous-aggregates",
		"scheduled-jobs",
	}
	for i, name := range wantOrder {
		if result.Phases[i].Name != name {
			t.Fatalf("phase %d = %q, want %q", i, result.Phases[i].Name, name)
		}
		if result.Phases[i].Error != "" {
			t.Fatalf("phase %q failed: %s", name, result.Phases[i].Error)
		}
	}
	if result.Processed != 1 {
		t.Fatalf("processed = %d, want the raw catch-up trade", result.Processed)
	}
	if len(result.Recommendations) != 0 {
		t.Fatalf("unexpected recommendations: %v", result.Recommendations)
	}
}

func TestETLCollectsPhaseErrors(t *testing.T) {
	store := newStubStore()
	o := newOrchestrator(store, time.Now().UTC())
	o.Warehouse = &stubWarehouse{
		refreshErr: errors.New("refresh blew up"),
		jobsErr:    errors.New("rollup blew up"),
	}

	result, err := o.Sync(context.Background(), Options{Strategy: "etl-orchestration"})
	if err != nil {
		t.Fatalf("phase errors must not fail the run: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected best-effort success, got %q", result.Message)
	}
	if len(result.Phases) != 5 {
		t.Fatalf("phases = %d, want all 5 attempted", len(result.Phases))
	}
	if result.Errors != 2 {
		t.Fatalf("errors = %d, want 2", result.Errors)
	}
	if len(result.Recommendations) != 2 {
		t.Fatalf("recommendations = %v, want one per failed phase", result.Recommendations)
	}
	if !strings.Contains(result.Recommendations[0], "materialized views") {
		t.Fatalf("first recommendation = %q, want materialized views hint", result.Recommendations[0])
	}
	if !strings.Contains(result.Recommendations[1], "rollup") {
		t.Fatalf("second recommendation = %q, want rollup hint", result.Recommendations[1])
	}
}

func TestETLRequiresWarehouse(t *testing.T) {
	o := newOrchestrator(newStubStore(), time.Now().UTC())
	_, err := o.Sync(context.Background(), Options{Strategy: "etl-orchestration"})
	if err == nil {
		t.Fatalf("expected error without a warehouse maintainer")
	}
}
