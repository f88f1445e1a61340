package dto

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/spotcore/exchange/internal/domain"
)

// Numeric fields cross the wire as exact decimal strings, matching the
// numeric-string convention of the exchange API this surface is shaped after.

type PlaceOrderRequest struct {
	Symbol           string          `json:"symbol" binding:"required"`
	Side             string          `json:"side" binding:"required"`
	Type             string          `json:"type" binding:"required"`
	TimeInForce      string          `json:"timeInForce,omitempty"`
	Quantity         decimal.Decimal `json:"quantity,omitempty"`
	QuoteOrderQty    decimal.Decimal `json:"quoteOrderQty,omitempty"`
	Price            decimal.Decimal `json:"price,omitempty"`
	StopPrice        decimal.Decimal `json:"stopPrice,omitempty"`
	IcebergQty       decimal.Decimal `json:"icebergQty,omitempty"`
	NewClientOrderID string          `json:"newClientOrderId,omitempty"`
	STPMode          string          `json:"selfTradePreventionMode,omitempty"`
}

type FillResponse struct {
	Price   string `json:"price"`
	Qty     string `json:"qty"`
	TradeID uint64 `json:"tradeId"`
}

type OrderResponse struct {
	Symbol          string         `json:"symbol"`
	OrderID         string         `json:"orderId"`
	ClientOrderID   string         `json:"clientOrderId,omitempty"`
	TransactTime    int64          `json:"transactTime"`
	Price           string         `json:"price"`
	StopPrice       string         `json:"stopPrice,omitempty"`
	OrigQty         string         `json:"origQty"`
	ExecutedQty     string         `json:"executedQty"`
	CumQuoteQty     string         `json:"cummulativeQuoteQty"`
	Status          string         `json:"status"`
	TimeInForce     string         `json:"timeInForce"`
	Type            string         `json:"type"`
	Side            string         `json:"side"`
	IcebergQty      string         `json:"icebergQty,omitempty"`
	Fills           []FillResponse `json:"fills,omitempty"`
}

type CancelOrderResponse struct {
	OrderID   string `json:"orderId"`
	Cancelled bool   `json:"cancelled"`
}

type DepthResponse struct {
	LastUpdateID uint64      `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

type TradeResponse struct {
	ID           uint64 `json:"id"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	QuoteQty     string `json:"quoteQty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

type TickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type BookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

type BalanceResponse struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type AccountResponse struct {
	UserID   string            `json:"userId"`
	Balances []BalanceResponse `json:"balances"`
}

type TransferRequest struct {
	Asset  string          `json:"asset" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// Error is the wire error envelope with the numeric codes the compatible
// exchange API uses.
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

const (
	CodeUnknown           = -1000
	CodeInvalidParameters = -1100
	CodeInvalidSymbol     = -1121
	CodeDuplicateClientID = -2026
	CodeNewOrderRejected  = -2010
	CodeOrderDoesNotExist = -2013
)

// FromError maps engine reject reasons onto wire error codes.
func FromError(err error) Error {
	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		return Error{Code: CodeInvalidSymbol, Msg: "Invalid symbol."}
	case errors.Is(err, domain.ErrInvalidParameters):
		return Error{Code: CodeInvalidParameters, Msg: err.Error()}
	case errors.Is(err, domain.ErrDuplicateClientOrder):
		return Error{Code: CodeDuplicateClientID, Msg: "Duplicate order sent."}
	case errors.Is(err, domain.ErrInsufficientBalance):
		return Error{Code: CodeNewOrderRejected, Msg: "Account has insufficient balance for requested action."}
	case errors.Is(err, domain.ErrUnfillable):
		return Error{Code: CodeNewOrderRejected, Msg: "Order would not fully fill."}
	case errors.Is(err, domain.ErrWouldMatch):
		return Error{Code: CodeNewOrderRejected, Msg: "Order would immediately match and take."}
	case errors.Is(err, domain.ErrWouldTrigger):
		return Error{Code: CodeNewOrderRejected, Msg: "Order would trigger immediately."}
	case errors.Is(err, domain.ErrSymbolHalted):
		return Error{Code: CodeNewOrderRejected, Msg: "Trading is halted for this symbol."}
	case errors.Is(err, domain.ErrOrderNotFound):
		return Error{Code: CodeOrderDoesNotExist, Msg: "Order does not exist."}
	default:
		return Error{Code: CodeUnknown, Msg: err.Error()}
	}
}

func ConvertOrder(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		Symbol:        o.Symbol,
		OrderID:       o.ID,
		ClientOrderID: o.ClientOrderID,
		TransactTime:  o.UpdatedAt.UnixMilli(),
		Price:         o.Price.String(),
		OrigQty:       o.Quantity.String(),
		ExecutedQty:   o.ExecutedQty.String(),
		CumQuoteQty:   o.CumQuoteQty.String(),
		Status:        string(o.Status),
		TimeInForce:   string(o.TimeInForce),
		Type:          string(o.Type),
		Side:          string(o.Side),
	}
	if o.StopPrice.IsPositive() {
		resp.StopPrice = o.StopPrice.String()
	}
	if o.IcebergQty.IsPositive() {
		resp.IcebergQty = o.IcebergQty.String()
	}
	return resp
}

func ConvertDepth(snap *domain.DepthSnapshot) DepthResponse {
	resp := DepthResponse{
		LastUpdateID: snap.LastTradeID,
		Bids:         make([][2]string, 0, len(snap.Bids)),
		Asks:         make([][2]string, 0, len(snap.Asks)),
	}
	for _, lvl := range snap.Bids {
		resp.Bids = append(resp.Bids, [2]string{lvl.Price.String(), lvl.Quantity.String()})
	}
	for _, lvl := range snap.Asks {
		resp.Asks = append(resp.Asks, [2]string{lvl.Price.String(), lvl.Quantity.String()})
	}
	return resp
}

func ConvertTrade(t *domain.Trade) TradeResponse {
	return TradeResponse{
		ID:           t.ID,
		Price:        t.Price.String(),
		Qty:          t.Quantity.String(),
		QuoteQty:     t.QuoteQty().String(),
		Time:         t.Timestamp.UnixMilli(),
		IsBuyerMaker: t.MakerSide == domain.Buy,
	}
}
