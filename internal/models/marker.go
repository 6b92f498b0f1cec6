package models

import "time"

// Marker statuses. "skipped" marks history a cold-start run intentionally
// excluded; integrity scoring treats it as covered, not missing.
const (
	MarkerProcessed = "processed"
	MarkerSkipped   = "skipped"
	MarkerError     = "error"
)

// TradeMarker records whether a source trade has been applied downstream by a
// given service. It is the sole authority for "applied" state; upserts are
// last-write-wins so reruns are idempotent.
type TradeMarker struct {
	TradeID      string    `gorm:"primaryKey;type:text"`
	Service      string    `gorm:"primaryKey;type:varchar(50)"`
	Status       string    `gorm:"type:varchar(20);not null;index"`
	TradeTime    time.Time `gorm:"type:timestamptz;not null;index"`
	ProcessedAt  time.Time `gorm:"type:timestamptz;not null"`
	ErrorMessage *string   `gorm:"type:text"`
}

func (TradeMarker) TableName() string {
	return "trade_markers"
}
