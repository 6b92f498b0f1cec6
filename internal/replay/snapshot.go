package replay

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dexmon/internal/models"
)

// Snapshot materializes the book's live levels as persistable rows, one per
// non-empty level, plus a per-pool aggregate rollup.
func (b *Book) Snapshot(at time.Time, intervalType string) ([]models.DepthSnapshot, []models.DepthAggregate) {
	if len(b.levels) == 0 {
		return nil, nil
	}

	keys := make([]levelKey, 0, len(b.levels))
	for key := range b.levels {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PoolID != keys[j].PoolID {
			return keys[i].PoolID < keys[j].PoolID
		}
		if keys[i].Side != keys[j].Side {
			return keys[i].Side < keys[j].Side
		}
		return keys[i].Price < keys[j].Price
	})

	snapshots := make([]models.DepthSnapshot, 0, len(keys))
	aggs := make(map[string]*models.DepthAggregate)
	quoteDecs := make(map[string]int32)

	for _, key := range keys {
		level := b.levels[key]
		snapshots = append(snapshots, models.DepthSnapshot{
			SnapshotTime:   at,
			PoolID:         key.PoolID,
			Symbol:         level.symbol,
			Side:           key.Side,
			Price:          key.Price,
			Quantity:       level.totalQuantity,
			OrderCount:     len(level.openOrders),
			LiquidityValue: liquidityValue(level.totalQuantity, key.Price, level.baseDecimals, level.quoteDecimals),
			IntervalType:   intervalType,
		})

		agg := aggs[key.PoolID]
		if agg == nil {
			agg = &models.DepthAggregate{
				SnapshotTime: at,
				PoolID:       key.PoolID,
				Symbol:       level.symbol,
				IntervalType: intervalType,
			}
			aggs[key.PoolID] = agg
			quoteDecs[key.PoolID] = level.quoteDecimals
		}
		liq := liquidityValue(level.totalQuantity, key.Price, level.baseDecimals, level.quoteDecimals)
		if key.Side == models.SideBuy {
			agg.BidLiquidity = agg.BidLiquidity.Add(liq)
			agg.BidOrderCount += len(level.openOrders)
			if agg.BestBid == nil || key.Price > *agg.BestBid {
				price := key.Price
				agg.BestBid = &price
			}
		} else {
			agg.AskLiquidity = agg.AskLiquidity.Add(liq)
			agg.AskOrderCount += len(level.openOrders)
			if agg.BestAsk == nil || key.Price < *agg.BestAsk {
				price := key.Price
				agg.BestAsk = &price
			}
		}
	}

	aggregates := make([]models.DepthAggregate, 0, len(aggs))
	poolIDs := make([]string, 0, len(aggs))
	for poolID := range aggs {
		poolIDs = append(poolIDs, poolID)
	}
	sort.Strings(poolIDs)
	for _, poolID := range poolIDs {
		agg := aggs[poolID]
		agg.TotalLiquidity = agg.BidLiquidity.Add(agg.AskLiquidity)
		if agg.BestBid != nil && agg.BestAsk != nil {
			spread := decimal.NewFromInt(*agg.BestAsk - *agg.BestBid).Shift(-quoteDecs[poolID])
			agg.Spread = &spread
		}
		aggregates = append(aggregates, *agg)
	}
	return snapshots, aggregates
}

// Diff counts how the book disagrees with another book: levels present on
// only one side, and shared levels whose quantity or order count differ.
func (b *Book) Diff(other *Book) (missing, extra, mismatched int) {
	for key, level := range b.levels {
		otherLevel, ok := other.levels[key]
		if !ok {
			extra++
			continue
		}
		if otherLevel.totalQuantity != level.totalQuantity || len(otherLevel.openOrders) != len(level.openOrders) {
			mismatched++
		}
	}
	for key := range other.levels {
		if _, ok := b.levels[key]; !ok {
			missing++
		}
	}
	return missing, extra, mismatched
}
