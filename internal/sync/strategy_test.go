package sync

import (
	"strings"
	"testing"
	"time"

	"dexmon/internal/config"
)

func TestSelectStrategyOrder(t *testing.T) {
	cfg := config.SyncConfig{}

	tests := []struct {
		name     string
		status   HealthStatus
		want     Strategy
		urgent   bool
		skipSync bool
	}{
		{
			name:   "cold start wins over everything",
			status: HealthStatus{IsColdStart: true, Dependencies: DependencyHealth{ViewsStale: true}},
			want:   StrategyColdStart,
		},
		{
			name:   "unhealthy dependencies before gap fill",
			status: HealthStatus{Dependencies: DependencyHealth{JobsFailing: true}, GapAnalysis: GapAnalysis{MiddleGaps: 2}},
			want:   StrategyETL,
		},
		{
			name:   "middle gaps trigger comprehensive",
			status: HealthStatus{GapAnalysis: GapAnalysis{MiddleGaps: 1, DataIntegrityScore: 99}},
			want:   StrategyComprehensive,
		},
		{
			name:   "low integrity triggers comprehensive",
			status: HealthStatus{GapAnalysis: GapAnalysis{DataIntegrityScore: 90}},
			want:   StrategyComprehensive,
		},
		{
			name:   "large lag is urgent standard",
			status: HealthStatus{LagMinutes: 90, GapAnalysis: GapAnalysis{DataIntegrityScore: 100}},
			want:   StrategyStandard,
			urgent: true,
		},
		{
			name:   "moderate lag is routine standard",
			status: HealthStatus{LagMinutes: 10, GapAnalysis: GapAnalysis{DataIntegrityScore: 100}},
			want:   StrategyStandard,
		},
		{
			name:     "healthy and current skips",
			status:   HealthStatus{LagMinutes: 1, GapAnalysis: GapAnalysis{DataIntegrityScore: 100}},
			want:     StrategyStandard,
			skipSync: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := SelectStrategy(tt.status, cfg)
			if decision.Strategy != tt.want {
				t.Fatalf("strategy = %q, want %q", decision.Strategy, tt.want)
			}
			if decision.Urgent != tt.urgent {
				t.Fatalf("urgent = %v, want %v", decision.Urgent, tt.urgent)
			}
			if decision.SkipSync != tt.skipSync {
				t.Fatalf("skip = %v, want %v", decision.SkipSync, tt.skipSync)
			}
			if decision.Reason == "" {
				t.Fatalf("reason missing")
			}
		})
	}
}

func TestSelectStrategyLagThresholdsFromConfig(t *testing.T) {
	cfg := config.SyncConfig{LagRoutine: 30 * time.Minute, LagUrgent: 2 * time.Hour}
	status := HealthStatus{LagMinutes: 90, GapAnalysis: GapAnalysis{DataIntegrityScore: 100}}

	decision := SelectStrategy(status, cfg)
	if decision.Strategy != StrategyStandard || decision.Urgent {
		t.Fatalf("decision = %+v, want routine standard under widened thresholds", decision)
	}
}

func TestParseStrategy(t *testing.T) {
	if got, err := ParseStrategy(""); err != nil || got != StrategyAuto {
		t.Fatalf("empty name = (%q, %v), want auto", got, err)
	}
	if got, err := ParseStrategy("comprehensive"); err != nil || got != StrategyComprehensive {
		t.Fatalf("comprehensive = (%q, %v)", got, err)
	}
	_, err := ParseStrategy("turbo")
	if err == nil || !strings.Contains(err.Error(), "turbo") {
		t.Fatalf("expected unknown-strategy error naming the input, got %v", err)
	}
}
