package core

import (
	"fmt"

	"github.com/spotcore/exchange/internal/domain"
)

// validateOrder normalizes defaults and rejects unsupported parameter
// combinations before any balance is touched.
func validateOrder(o *domain.Order) error {
	if o.UserID == "" {
		return fmt.Errorf("user id required: %w", domain.ErrInvalidParameters)
	}
	if o.Side != domain.Buy && o.Side != domain.Sell {
		return fmt.Errorf("side %q: %w", o.Side, domain.ErrInvalidParameters)
	}
	switch o.Type {
	case domain.Limit, domain.Market, domain.StopLoss, domain.StopLossLimit,
		domain.TakeProfit, domain.TakeProfitLimit, domain.LimitMaker:
	default:
		return fmt.Errorf("order type %q: %w", o.Type, domain.ErrInvalidParameters)
	}

	switch o.STP {
	case "":
		o.STP = domain.STPNone
	case domain.STPNone, domain.STPExpireTaker, domain.STPExpireMaker, domain.STPExpireBoth:
	default:
		return fmt.Errorf("stp mode %q: %w", o.STP, domain.ErrInvalidParameters)
	}

	switch o.TimeInForce {
	case "":
		o.TimeInForce = domain.GTC
	case domain.GTC:
	case domain.IOC, domain.FOK:
		if !o.Type.LimitKind() || o.Type == domain.LimitMaker {
			return fmt.Errorf("%s with %s: %w", o.TimeInForce, o.Type, domain.ErrInvalidParameters)
		}
	default:
		return fmt.Errorf("time in force %q: %w", o.TimeInForce, domain.ErrInvalidParameters)
	}

	if o.Type.LimitKind() && !o.Price.IsPositive() {
		return fmt.Errorf("price %s for %s: %w", o.Price, o.Type, domain.ErrInvalidParameters)
	}
	if !o.Type.LimitKind() && !o.Price.IsZero() {
		return fmt.Errorf("price not allowed for %s: %w", o.Type, domain.ErrInvalidParameters)
	}
	if o.IsStopKind() && !o.StopPrice.IsPositive() {
		return fmt.Errorf("stop price %s for %s: %w", o.StopPrice, o.Type, domain.ErrInvalidParameters)
	}
	if !o.IsStopKind() && !o.StopPrice.IsZero() {
		return fmt.Errorf("stop price not allowed for %s: %w", o.Type, domain.ErrInvalidParameters)
	}

	if o.QuoteOrderQty.IsNegative() || o.Quantity.IsNegative() {
		return fmt.Errorf("negative size: %w", domain.ErrInvalidParameters)
	}
	if o.QuoteOrderQty.IsPositive() {
		// Quote sizing is the market-buy alternative to a base quantity.
		if !o.Type.MarketKind() || o.Side != domain.Buy || o.Quantity.IsPositive() {
			return fmt.Errorf("quote order qty with %s %s: %w", o.Side, o.Type, domain.ErrInvalidParameters)
		}
	} else if !o.Quantity.IsPositive() {
		return fmt.Errorf("quantity %s: %w", o.Quantity, domain.ErrInvalidParameters)
	}

	if o.IcebergQty.IsNegative() {
		return fmt.Errorf("iceberg qty %s: %w", o.IcebergQty, domain.ErrInvalidParameters)
	}
	if o.IcebergQty.IsPositive() {
		if !o.Type.LimitKind() || o.TimeInForce != domain.GTC {
			return fmt.Errorf("iceberg requires resting limit order: %w", domain.ErrInvalidParameters)
		}
		if o.IcebergQty.GreaterThanOrEqual(o.Quantity) {
			return fmt.Errorf("iceberg qty %s >= quantity %s: %w", o.IcebergQty, o.Quantity, domain.ErrInvalidParameters)
		}
	}
	return nil
}
