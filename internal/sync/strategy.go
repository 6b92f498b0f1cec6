package sync

import (
	"fmt"
	"time"

	"dexmon/internal/config"
)

type Strategy string

const (
	// StrategyAuto lets the health check pick.
	StrategyAuto          Strategy = "auto"
	StrategyStandard      Strategy = "standard"
	StrategyComprehensive Strategy = "comprehensive"
	StrategyColdStart     Strategy = "cold-start"
	StrategyETL           Strategy = "etl-orchestration"
)

// integrityThreshold is the score below which gap-filling takes priority
// over tail catch-up.
const integrityThreshold = 95.0

// Decision is the outcome of classifying a HealthStatus. It is recomputed on
// every health check; there is no persistent state machine.
type Decision struct {
	Strategy Strategy `json:"strategy"`
	Urgent   bool     `json:"urgent"`
	SkipSync bool     `json:"skip_sync"`
	Reason   string   `json:"reason"`
}

// SelectStrategy maps health signals to a sync strategy. First match wins:
// cold start, unhealthy warehouse dependencies, integrity damage (middle gaps
// or low score), then lag-based standard catch-up.
func SelectStrategy(status HealthStatus, cfg config.SyncConfig) Decision {
	if status.IsColdStart {
		return Decision{
			Strategy: StrategyColdStart,
			Reason:   "no records processed yet, cold start required",
		}
	}
	if status.Dependencies.Unhealthy() {
		return Decision{
			Strategy: StrategyETL,
			Reason:   "warehouse dependencies are stale or failing, full etl orchestration required",
		}
	}
	if status.GapAnalysis.MiddleGaps > 0 || status.GapAnalysis.DataIntegrityScore < integrityThreshold {
		return Decision{
			Strategy: StrategyComprehensive,
			Reason: fmt.Sprintf("%d middle gap(s), integrity %.2f%%, comprehensive gap-fill required",
				status.GapAnalysis.MiddleGaps, status.GapAnalysis.DataIntegrityScore),
		}
	}

	lagRoutine := cfg.LagRoutine
	if lagRoutine <= 0 {
		lagRoutine = 5 * time.Minute
	}
	lagUrgent := cfg.LagUrgent
	if lagUrgent <= 0 {
		lagUrgent = time.Hour
	}
	lag := time.Duration(status.LagMinutes * float64(time.Minute))
	if lag > lagUrgent {
		return Decision{
			Strategy: StrategyStandard,
			Urgent:   true,
			Reason:   fmt.Sprintf("lagging %.1f minutes behind source, urgent catch-up", status.LagMinutes),
		}
	}
	if lag > lagRoutine {
		return Decision{
			Strategy: StrategyStandard,
			Reason:   fmt.Sprintf("lagging %.1f minutes behind source, routine catch-up", status.LagMinutes),
		}
	}
	return Decision{
		Strategy: StrategyStandard,
		SkipSync: true,
		Reason:   "derived store is healthy and current",
	}
}

// ParseStrategy validates a strategy name before any I/O happens. An unknown
// name is a configuration failure.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyStandard, StrategyComprehensive, StrategyColdStart, StrategyETL:
		return Strategy(name), nil
	default:
		return "", fmt.Errorf("unknown sync strategy: %q", name)
	}
}
