package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// DepthSnapshot aggregates visible quantity per price level, bids best-first
// (descending), asks best-first (ascending). Hidden iceberg quantity is excluded.
type DepthSnapshot struct {
	Symbol      string       `json:"symbol"`
	Bids        []PriceLevel `json:"bids"`
	Asks        []PriceLevel `json:"asks"`
	LastTradeID uint64       `json:"last_trade_id"`
	Timestamp   time.Time    `json:"timestamp"`
}

func (s *DepthSnapshot) DeepCopy() *DepthSnapshot {
	cp := *s
	cp.Bids = append([]PriceLevel(nil), s.Bids...)
	cp.Asks = append([]PriceLevel(nil), s.Asks...)
	return &cp
}
