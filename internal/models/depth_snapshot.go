package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot interval types. Hourly rows are append-only checkpoints; the
// "latest" row per level is rewritten on every replay run.
const (
	IntervalHourly = "1h"
	IntervalLatest = "latest"
)

// DepthSnapshot is one non-empty price level at a checkpoint. Upsertable:
// replaying the same window again must converge to identical rows.
type DepthSnapshot struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	SnapshotTime   time.Time       `gorm:"type:timestamptz;not null;uniqueIndex:uq_depth_level,priority:1"`
	PoolID         string          `gorm:"type:text;not null;uniqueIndex:uq_depth_level,priority:2;index"`
	Symbol         string          `gorm:"type:text;not null"`
	Side           string          `gorm:"type:varchar(10);not null;uniqueIndex:uq_depth_level,priority:3"`
	Price          int64           `gorm:"not null;uniqueIndex:uq_depth_level,priority:4"`
	Quantity       int64           `gorm:"not null"`
	OrderCount     int             `gorm:"not null"`
	LiquidityValue decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	IntervalType   string          `gorm:"type:varchar(10);not null;uniqueIndex:uq_depth_level,priority:5"`
}

func (DepthSnapshot) TableName() string {
	return "depth_snapshots"
}

// DepthAggregate is the per-pool rollup of one checkpoint's DepthSnapshot
// rows. Always recomputed from the level rows, never hand-maintained.
type DepthAggregate struct {
	ID             uint64           `gorm:"primaryKey;autoIncrement"`
	SnapshotTime   time.Time        `gorm:"type:timestamptz;not null;uniqueIndex:uq_depth_agg,priority:1"`
	PoolID         string           `gorm:"type:text;not null;uniqueIndex:uq_depth_agg,priority:2;index"`
	Symbol         string           `gorm:"type:text;not null"`
	BidLiquidity   decimal.Decimal  `gorm:"type:numeric(30,12);not null"`
	AskLiquidity   decimal.Decimal  `gorm:"type:numeric(30,12);not null"`
	TotalLiquidity decimal.Decimal  `gorm:"type:numeric(30,12);not null"`
	BidOrderCount  int              `gorm:"not null"`
	AskOrderCount  int              `gorm:"not null"`
	BestBid        *int64           `gorm:""`
	BestAsk        *int64           `gorm:""`
	Spread         *decimal.Decimal `gorm:"type:numeric(30,12)"`
	IntervalType   string           `gorm:"type:varchar(10);not null;uniqueIndex:uq_depth_agg,priority:3"`
}

func (DepthAggregate) TableName() string {
	return "depth_aggregates"
}
