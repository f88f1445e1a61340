package port

import (
	"context"

	"github.com/spotcore/exchange/internal/domain"
)

// Repository journals orders and trades. Writes are best-effort from the
// engine's point of view: the in-memory book and ledger stay authoritative,
// and a failed write never blocks matching.
type Repository interface {
	SaveOrder(ctx context.Context, o *domain.Order) error
	SaveTrade(ctx context.Context, t *domain.Trade) error
	LoadOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error)
	LoadTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error)
	Close(ctx context.Context)
}
