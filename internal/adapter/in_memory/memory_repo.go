package in_memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spotcore/exchange/internal/domain"
	"github.com/spotcore/exchange/internal/port"
)

var _ port.Repository = (*MemoryRepo)(nil)

// MemoryRepo is the journal used in tests and when no Postgres DSN is
// configured.
type MemoryRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	trades map[string][]*domain.Trade // orderID -> trades touching it
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orders: make(map[string]*domain.Order),
		trades: make(map[string][]*domain.Trade),
	}
}

func (r *MemoryRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *MemoryRepo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.trades[t.BuyOrderID] = append(r.trades[t.BuyOrderID], &cp)
	if t.SellOrderID != t.BuyOrderID {
		r.trades[t.SellOrderID] = append(r.trades[t.SellOrderID], &cp)
	}
	return nil
}

func (r *MemoryRepo) LoadOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Order
	for _, o := range r.orders {
		if o.Symbol == symbol && o.Cancelable() {
			cp := *o
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (r *MemoryRepo) LoadTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Trade(nil), r.trades[orderID]...), nil
}

func (r *MemoryRepo) Close(ctx context.Context) {}
