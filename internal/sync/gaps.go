package sync

import (
	"context"
	"fmt"
	"time"

	"dexmon/internal/repository"
)

type GapType string

const (
	GapHead   GapType = "head"
	GapMiddle GapType = "middle"
	GapTail   GapType = "tail"
)

// Gap is a contiguous run of source trades not yet covered by markers.
// Gaps are derived on every health check, never stored.
type Gap struct {
	Type       GapType   `json:"type"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	TradeCount int64     `json:"trade_count"`
}

// DetectGaps scans the globally sorted cursor list once and closes a gap each
// time coverage resumes. A gap anchored at the first record is head, one that
// runs to the last record is tail, everything else is middle. One count query
// is issued per gap, not per record.
func DetectGaps(ctx context.Context, source repository.SourceLogReader, cursors []repository.TradeCursor, covered map[string]struct{}) ([]Gap, error) {
	var gaps []Gap
	gapStart := -1

	closeGap := func(startIdx, endIdx int, reachedEnd bool) error {
		gapType := GapMiddle
		if startIdx == 0 {
			gapType = GapHead
		} else if reachedEnd {
			gapType = GapTail
		}
		from := cursors[startIdx].TradeTime
		to := cursors[endIdx].TradeTime
		count, err := source.CountTrades(ctx, &from, &to)
		if err != nil {
			return fmt.Errorf("count trades in gap [%s, %s]: %w", from, to, err)
		}
		gaps = append(gaps, Gap{Type: gapType, From: from, To: to, TradeCount: count})
		return nil
	}

	for i, cursor := range cursors {
		_, ok := covered[cursor.TradeID]
		if !ok {
			if gapStart < 0 {
				gapStart = i
			}
			continue
		}
		if gapStart >= 0 {
			if err := closeGap(gapStart, i-1, false); err != nil {
				return nil, err
			}
			gapStart = -1
		}
	}
	if gapStart >= 0 {
		if err := closeGap(gapStart, len(cursors)-1, true); err != nil {
			return nil, err
		}
	}
	return gaps, nil
}
