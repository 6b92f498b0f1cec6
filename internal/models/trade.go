package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a raw fill from the indexer's append-only log. Price and Quantity
// are raw integer units; decimals live on the pool's order details.
type Trade struct {
	TradeID       string    `gorm:"primaryKey;type:text"`
	PoolID        string    `gorm:"type:text;not null;index"`
	Symbol        string    `gorm:"type:text;not null"`
	Side          string    `gorm:"type:varchar(10);not null"`
	Price         int64     `gorm:"not null"`
	Quantity      int64     `gorm:"not null"`
	BaseDecimals  int32     `gorm:"not null"`
	QuoteDecimals int32     `gorm:"not null"`
	TradeTime     time.Time `gorm:"type:timestamptz;not null;index"`
}

func (Trade) TableName() string {
	return "trades"
}

// PoolTrade is the downstream analytics row derived from a raw Trade, with
// amounts scaled to human units. Rows are upserted by trade_id so reruns
// converge.
type PoolTrade struct {
	TradeID   string          `gorm:"primaryKey;type:text"`
	PoolID    string          `gorm:"type:text;not null;index"`
	Symbol    string          `gorm:"type:text;not null;index"`
	Side      string          `gorm:"type:varchar(10);not null"`
	Price     decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	Quantity  decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	Volume    decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	TradeTime time.Time       `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time       `gorm:"type:timestamptz;autoCreateTime"`
}

func (PoolTrade) TableName() string {
	return "pool_trades"
}
