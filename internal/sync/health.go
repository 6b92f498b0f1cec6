package sync

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"dexmon/internal/config"
	"dexmon/internal/models"
	"dexmon/internal/repository"
)

// Store is the database surface the sync subsystem consumes.
type Store interface {
	repository.SourceLogReader
	repository.MarkerStore
	repository.AnalyticsSink
	repository.SyncStateStore
}

// DependencyHealth reports the state of the downstream warehouse objects the
// etl-orchestration strategy maintains.
type DependencyHealth struct {
	ViewsStale      bool `json:"views_stale"`
	AggregatesStale bool `json:"aggregates_stale"`
	JobsFailing     bool `json:"jobs_failing"`
}

func (d DependencyHealth) Unhealthy() bool {
	return d.ViewsStale || d.AggregatesStale || d.JobsFailing
}

// GapAnalysis summarizes detected gaps plus coverage metrics.
type GapAnalysis struct {
	TotalGaps           int     `json:"total_gaps"`
	HeadGaps            int     `json:"head_gaps"`
	MiddleGaps          int     `json:"middle_gaps"`
	TailGaps            int     `json:"tail_gaps"`
	ContinuousFromStart bool    `json:"continuous_from_start"`
	DataIntegrityScore  float64 `json:"data_integrity_score"`
	Gaps                []Gap   `json:"gaps"`
}

// HealthStatus is the computed (never stored) health picture of the derived
// store relative to the source log.
type HealthStatus struct {
	IsHealthy      bool             `json:"is_healthy"`
	IsColdStart    bool             `json:"is_cold_start"`
	LagMinutes     float64          `json:"lag_minutes"`
	Recommendation string           `json:"recommendation"`
	GapAnalysis    GapAnalysis      `json:"gap_analysis"`
	Dependencies   DependencyHealth `json:"dependencies"`
	TotalSource    int64            `json:"total_source"`
	CoveredCount   int64            `json:"covered_count"`
}

// HealthChecker computes HealthStatus from the marker store and source log.
type HealthChecker struct {
	Store     Store
	Warehouse WarehouseMaintainer
	Logger    *zap.Logger
	Config    config.SyncConfig
}

// coveredStatuses are the marker states that count as "reflected downstream":
// skipped history was excluded on purpose and must not look like a gap.
var coveredStatuses = []string{models.MarkerProcessed, models.MarkerSkipped}

func (h *HealthChecker) service() string {
	if h.Config.Service != "" {
		return h.Config.Service
	}
	return "trade_sync"
}

func (h *HealthChecker) CheckHealth(ctx context.Context) (HealthStatus, error) {
	var status HealthStatus
	service := h.service()

	markerCount, err := h.Store.CountMarkersByStatus(ctx, service, nil)
	if err != nil {
		return status, fmt.Errorf("count markers: %w", err)
	}
	status.IsColdStart = markerCount == 0

	total, err := h.Store.CountTrades(ctx, nil, nil)
	if err != nil {
		return status, fmt.Errorf("count source trades: %w", err)
	}
	status.TotalSource = total

	coveredIDs, err := h.Store.ListMarkerTradeIDs(ctx, service, coveredStatuses)
	if err != nil {
		return status, fmt.Errorf("list covered markers: %w", err)
	}
	covered := make(map[string]struct{}, len(coveredIDs))
	for _, id := range coveredIDs {
		covered[id] = struct{}{}
	}

	cursors, err := h.Store.ListTradeCursors(ctx)
	if err != nil {
		return status, fmt.Errorf("list trade cursors: %w", err)
	}
	for _, c := range cursors {
		if _, ok := covered[c.TradeID]; ok {
			status.CoveredCount++
		}
	}

	gaps, err := DetectGaps(ctx, h.Store, cursors, covered)
	if err != nil {
		return status, err
	}
	status.GapAnalysis = summarizeGaps(cursors, covered, gaps, total, status.CoveredCount)

	if status.LagMinutes, err = h.lagMinutes(ctx, service); err != nil {
		return status, err
	}

	if h.Warehouse != nil {
		deps, err := h.Warehouse.Health(ctx)
		if err != nil {
			// Warehouse introspection failing is itself a dependency problem.
			if h.Logger != nil {
				h.Logger.Warn("warehouse health check failed", zap.Error(err))
			}
			deps.JobsFailing = true
		}
		status.Dependencies = deps
	}

	decision := SelectStrategy(status, h.Config)
	status.IsHealthy = decision.SkipSync
	status.Recommendation = decision.Reason
	return status, nil
}

func (h *HealthChecker) lagMinutes(ctx context.Context, service string) (float64, error) {
	latestSource, err := h.Store.LatestTradeTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest source time: %w", err)
	}
	if latestSource == nil {
		return 0, nil
	}
	latestCovered, err := h.Store.MaxMarkerTradeTime(ctx, service, coveredStatuses)
	if err != nil {
		return 0, fmt.Errorf("latest covered time: %w", err)
	}
	if latestCovered == nil {
		// Nothing covered yet: lag spans the whole source log.
		earliest, err := h.Store.EarliestTradeTime(ctx)
		if err != nil {
			return 0, fmt.Errorf("earliest source time: %w", err)
		}
		if earliest == nil {
			return 0, nil
		}
		return latestSource.Sub(*earliest).Minutes(), nil
	}
	lag := latestSource.Sub(*latestCovered).Minutes()
	if lag < 0 {
		lag = 0
	}
	return lag, nil
}

func summarizeGaps(cursors []repository.TradeCursor, covered map[string]struct{}, gaps []Gap, total, coveredCount int64) GapAnalysis {
	analysis := GapAnalysis{Gaps: gaps, TotalGaps: len(gaps)}
	for _, g := range gaps {
		switch g.Type {
		case GapHead:
			analysis.HeadGaps++
		case GapMiddle:
			analysis.MiddleGaps++
		case GapTail:
			analysis.TailGaps++
		}
	}
	if len(cursors) > 0 {
		_, first := covered[cursors[0].TradeID]
		analysis.ContinuousFromStart = first
	}
	if total == 0 {
		analysis.DataIntegrityScore = 100
	} else {
		analysis.DataIntegrityScore = round2(float64(coveredCount) / float64(total) * 100)
	}
	return analysis
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
