package models

import "time"

// Order sides as written by the indexer.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order lifecycle statuses as written by the indexer.
const (
	OrderStatusOpen            = "OPEN"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCancelled       = "CANCELLED"
)

// OrderDetail is the immutable creation record of an order, sourced from the
// indexer. Price and Quantity are raw integer units scaled by the pool's
// decimals. Status reflects the order's current (live) state.
type OrderDetail struct {
	OrderID       string    `gorm:"primaryKey;type:text"`
	PoolID        string    `gorm:"type:text;not null;index"`
	Symbol        string    `gorm:"type:text;not null"`
	Side          string    `gorm:"type:varchar(10);not null"`
	Price         int64     `gorm:"not null"`
	Quantity      int64     `gorm:"not null"`
	BaseDecimals  int32     `gorm:"not null"`
	QuoteDecimals int32     `gorm:"not null"`
	Status        string    `gorm:"type:varchar(20);not null"`
	CreatedAt     time.Time `gorm:"type:timestamptz;not null;index"`
}

func (OrderDetail) TableName() string {
	return "order_details"
}

// OrderEvent is one lifecycle transition in the indexer's append-only log.
// Replay consumes these ordered by (event_time, order_id).
type OrderEvent struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	OrderID      string    `gorm:"type:text;not null;index"`
	Status       string    `gorm:"type:varchar(20);not null"`
	FilledAmount int64     `gorm:"not null;default:0"`
	EventTime    time.Time `gorm:"type:timestamptz;not null;index"`
}

func (OrderEvent) TableName() string {
	return "order_events"
}
