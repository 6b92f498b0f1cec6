package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState keeps one row per job scope (trade_sync, depth_replay, warehouse)
// with the last run's watermark, outcome and stats blob.
type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:text"`
	WatermarkTS   *time.Time     `gorm:"type:timestamptz"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
