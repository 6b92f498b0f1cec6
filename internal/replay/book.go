package replay

import (
	"github.com/shopspring/decimal"

	"dexmon/internal/models"
)

// levelKey addresses one price level. Using a flat composite key keeps the
// book a single map instead of pool->side->price nesting.
type levelKey struct {
	PoolID string
	Side   string
	Price  int64
}

// priceLevel tracks the resting quantity at one level. openOrders maps each
// resting order to the quantity currently counted for it, so partial fills
// can be adjusted incrementally. Invariant: totalQuantity is the sum of the
// openOrders values, and a level with no orders is removed from the book.
type priceLevel struct {
	totalQuantity int64
	openOrders    map[string]int64

	symbol        string
	baseDecimals  int32
	quoteDecimals int32
}

// Book is the transient order-book state rebuilt on every replay pass.
type Book struct {
	levels map[levelKey]*priceLevel
}

func NewBook() *Book {
	return &Book{levels: make(map[levelKey]*priceLevel)}
}

// Apply folds one lifecycle transition into the book. Transitions are
// idempotent: re-applying an event whose precondition no longer holds is a
// no-op. The order detail must be the event's order (price already validated
// by the caller).
func (b *Book) Apply(detail *models.OrderDetail, status string, filledAmount int64) {
	key := levelKey{PoolID: detail.PoolID, Side: detail.Side, Price: detail.Price}

	switch status {
	case models.OrderStatusOpen:
		level := b.levels[key]
		if level == nil {
			level = &priceLevel{
				openOrders:    make(map[string]int64),
				symbol:        detail.Symbol,
				baseDecimals:  detail.BaseDecimals,
				quoteDecimals: detail.QuoteDecimals,
			}
			b.levels[key] = level
		}
		if _, ok := level.openOrders[detail.OrderID]; ok {
			return
		}
		level.openOrders[detail.OrderID] = detail.Quantity
		level.totalQuantity += detail.Quantity

	case models.OrderStatusPartiallyFilled:
		level := b.levels[key]
		if level == nil {
			return
		}
		counted, ok := level.openOrders[detail.OrderID]
		if !ok {
			return
		}
		remaining := detail.Quantity - filledAmount
		if remaining < 0 {
			remaining = 0
		}
		level.totalQuantity += remaining - counted
		if remaining <= 0 {
			delete(level.openOrders, detail.OrderID)
			if len(level.openOrders) == 0 {
				delete(b.levels, key)
			}
			return
		}
		level.openOrders[detail.OrderID] = remaining

	case models.OrderStatusFilled, models.OrderStatusCancelled:
		level := b.levels[key]
		if level == nil {
			return
		}
		counted, ok := level.openOrders[detail.OrderID]
		if !ok {
			return
		}
		level.totalQuantity -= counted
		delete(level.openOrders, detail.OrderID)
		if len(level.openOrders) == 0 {
			delete(b.levels, key)
		}
	}
}

// LevelCount returns the number of live price levels.
func (b *Book) LevelCount() int {
	return len(b.levels)
}

// liquidityValue converts a level's raw quantity*price into human units.
func liquidityValue(quantity, price int64, baseDecimals, quoteDecimals int32) decimal.Decimal {
	qty := decimal.NewFromInt(quantity).Shift(-baseDecimals)
	px := decimal.NewFromInt(price).Shift(-quoteDecimals)
	return qty.Mul(px)
}
