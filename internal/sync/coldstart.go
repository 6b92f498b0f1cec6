package sync

import (
	"context"
	"fmt"
)

// Cold-start strategies. Full replay cost scales linearly with the backlog,
// so large histories are bounded or skipped instead of starving real-time
// sync.
const (
	ColdStartFull           = "full"
	ColdStartRecent         = "recent"
	ColdStartSkipHistorical = "skip-historical"
)

const (
	coldStartFullMax   = 1_000
	coldStartRecentMax = 100_000
)

// ColdStartAnalysis is the scale classification for a derived store that has
// never processed anything.
type ColdStartAnalysis struct {
	TotalTrades int64  `json:"total_trades"`
	Recommended string `json:"recommended"`
	Reason      string `json:"reason"`
}

// ClassifyColdStart picks a cold-start strategy from the historical record
// count: small backlogs replay fully, medium ones keep a recent window and
// skip the rest, large ones start clean from now.
func ClassifyColdStart(total int64) ColdStartAnalysis {
	switch {
	case total < coldStartFullMax:
		return ColdStartAnalysis{
			TotalTrades: total,
			Recommended: ColdStartFull,
			Reason:      fmt.Sprintf("%d historical trades, full replay is cheap", total),
		}
	case total < coldStartRecentMax:
		return ColdStartAnalysis{
			TotalTrades: total,
			Recommended: ColdStartRecent,
			Reason:      fmt.Sprintf("%d historical trades, replaying recent window and skipping older history", total),
		}
	default:
		return ColdStartAnalysis{
			TotalTrades: total,
			Recommended: ColdStartSkipHistorical,
			Reason:      fmt.Sprintf("%d historical trades, skipping history and starting clean", total),
		}
	}
}

// AnalyzeColdStart reports what a cold-start run would do without doing it.
func (o *Orchestrator) AnalyzeColdStart(ctx context.Context) (ColdStartAnalysis, error) {
	total, err := o.Store.CountTrades(ctx, nil, nil)
	if err != nil {
		return ColdStartAnalysis{}, fmt.Errorf("count source trades: %w", err)
	}
	return ClassifyColdStart(total), nil
}
