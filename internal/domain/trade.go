package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable settlement record. IDs are engine-wide and strictly
// increasing in tape-append order; that order is authoritative for market data.
type Trade struct {
	ID          uint64
	Symbol      string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	BuyOrderID  string
	SellOrderID string
	BuyUserID   string
	SellUserID  string
	MakerSide   Side
	Timestamp   time.Time
}

// QuoteQty is the quote-asset value exchanged: price × quantity.
func (t *Trade) QuoteQty() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
