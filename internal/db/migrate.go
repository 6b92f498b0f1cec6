package db

import (
	"dexmon/internal/models"
)

// AutoMigrate creates the tables dexmon owns. The indexer's source tables
// (order_details, order_events, trades) are managed upstream and are only
// read here.
func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.PoolTrade{},
		&models.DepthSnapshot{},
		&models.DepthAggregate{},
		&models.TradeMarker{},
		&models.SyncState{},
	)
}
