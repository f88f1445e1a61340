package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderType string
type TimeInForce string
type STPMode string
type OrderStatus string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"

	Limit           OrderType = "LIMIT"
	Market          OrderType = "MARKET"
	StopLoss        OrderType = "STOP_LOSS"
	StopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	TakeProfit      OrderType = "TAKE_PROFIT"
	TakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
	LimitMaker      OrderType = "LIMIT_MAKER"

	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"

	STPNone        STPMode = "NONE"
	STPExpireTaker STPMode = "EXPIRE_TAKER"
	STPExpireMaker STPMode = "EXPIRE_MAKER"
	STPExpireBoth  STPMode = "EXPIRE_BOTH"

	New             OrderStatus = "NEW"
	PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELED"
	Rejected        OrderStatus = "REJECTED"
	Expired         OrderStatus = "EXPIRED"
)

type Order struct {
	ID            string
	ClientOrderID string
	UserID        string
	Symbol        string
	Side          Side
	Type          OrderType
	TimeInForce   TimeInForce
	STP           STPMode

	Price         decimal.Decimal // zero for MARKET
	StopPrice     decimal.Decimal // set for STOP_* / TAKE_PROFIT_* types
	Quantity      decimal.Decimal // base quantity; zero when sized by QuoteOrderQty
	QuoteOrderQty decimal.Decimal // quote-sized market buys
	IcebergQty    decimal.Decimal // visible peak; zero for plain orders

	ExecutedQty decimal.Decimal
	CumQuoteQty decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// VisibleQty is the slice currently shown to depth and matching.
	// Maintained by the order book for iceberg orders; equal to Remaining otherwise.
	VisibleQty decimal.Decimal

	// Funds reserved for this order, maintained by the engine. LockedRemaining
	// shrinks as fills consume it and is released when the order goes terminal.
	LockedAsset     string
	LockedRemaining decimal.Decimal
}

func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.ExecutedQty)
}

func (o *Order) IsIceberg() bool {
	return o.IcebergQty.IsPositive()
}

// MarketKind reports whether t executes unconditionally at the best available
// price. Stop-market types behave as market orders once triggered.
func (t OrderType) MarketKind() bool {
	return t == Market || t == StopLoss || t == TakeProfit
}

// LimitKind reports whether t carries a limit price.
func (t OrderType) LimitKind() bool {
	switch t {
	case Limit, StopLossLimit, TakeProfitLimit, LimitMaker:
		return true
	}
	return false
}

// QuoteSized reports whether the order is a market-kind order sized in the
// quote asset rather than the base asset.
func (o *Order) QuoteSized() bool {
	return o.Type.MarketKind() && o.Quantity.IsZero() && o.QuoteOrderQty.IsPositive()
}

func (o *Order) IsStopKind() bool {
	switch o.Type {
	case StopLoss, StopLossLimit, TakeProfit, TakeProfitLimit:
		return true
	}
	return false
}

// Terminal reports whether the order can no longer change.
func (o *Order) Terminal() bool {
	switch o.Status {
	case Filled, Cancelled, Rejected, Expired:
		return true
	}
	return false
}

func (o *Order) Cancelable() bool {
	return o.Status == New || o.Status == PartiallyFilled
}
