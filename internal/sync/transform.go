package sync

import (
	"github.com/shopspring/decimal"

	"dexmon/internal/models"
)

// transformTrade converts a raw indexer trade (integer units) into its
// analytics row (human units).
func transformTrade(trade *models.Trade) *models.PoolTrade {
	price := decimal.NewFromInt(trade.Price).Shift(-trade.QuoteDecimals)
	quantity := decimal.NewFromInt(trade.Quantity).Shift(-trade.BaseDecimals)
	return &models.PoolTrade{
		TradeID:   trade.TradeID,
		PoolID:    trade.PoolID,
		Symbol:    trade.Symbol,
		Side:      trade.Side,
		Price:     price,
		Quantity:  quantity,
		Volume:    price.Mul(quantity),
		TradeTime: trade.TradeTime,
	}
}
