package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spotcore/exchange/internal/domain"
	"github.com/spotcore/exchange/internal/port"
)

var _ port.Repository = (*PgRepo)(nil)

// PgRepo journals orders and trades to Postgres. Writes are best-effort;
// reads back the per-order trade history, which outlives the in-memory tape.
type PgRepo struct {
	pool *pgxpool.Pool
}

// NewPgRepo creates the pool; call Close when finished.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO orders(id, client_order_id, user_id, symbol, side, type, time_in_force, stp_mode,
                   price, stop_price, quantity, quote_order_qty, iceberg_qty,
                   executed_qty, cum_quote_qty, status, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  executed_qty = EXCLUDED.executed_qty,
  cum_quote_qty = EXCLUDED.cum_quote_qty,
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at
`, o.ID, o.ClientOrderID, o.UserID, o.Symbol, string(o.Side), string(o.Type),
		string(o.TimeInForce), string(o.STP),
		o.Price, o.StopPrice, o.Quantity, o.QuoteOrderQty, o.IcebergQty,
		o.ExecutedQty, o.CumQuoteQty, string(o.Status), o.CreatedAt, o.UpdatedAt)
	return err
}

func (p *PgRepo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	if t == nil {
		return errors.New("nil trade")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO trades(id, symbol, price, quantity, buy_order_id, sell_order_id,
                   buy_user_id, sell_user_id, maker_side, executed_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, int64(t.ID), t.Symbol, t.Price, t.Quantity, t.BuyOrderID, t.SellOrderID,
		t.BuyUserID, t.SellUserID, string(t.MakerSide), t.Timestamp)
	return err
}

// LoadOpenOrders returns NEW/PARTIALLY_FILLED orders for a symbol in FIFO order.
func (p *PgRepo) LoadOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, client_order_id, user_id, symbol, side, type, time_in_force, stp_mode,
       price, stop_price, quantity, quote_order_qty, iceberg_qty,
       executed_qty, cum_quote_qty, status, created_at, updated_at
FROM orders
WHERE symbol = $1 AND status IN ('NEW','PARTIALLY_FILLED')
ORDER BY created_at ASC
`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (p *PgRepo) LoadTradesForOrder(ctx context.Context, orderID string) ([]*domain.Trade, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, symbol, price, quantity, buy_order_id, sell_order_id,
       buy_user_id, sell_user_id, maker_side, executed_at
FROM trades
WHERE buy_order_id = $1 OR sell_order_id = $1
ORDER BY id ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var id int64
		var makerSide string
		if err := rows.Scan(&id, &t.Symbol, &t.Price, &t.Quantity, &t.BuyOrderID, &t.SellOrderID,
			&t.BuyUserID, &t.SellUserID, &makerSide, &t.Timestamp); err != nil {
			return nil, err
		}
		t.ID = uint64(id)
		t.MakerSide = domain.Side(makerSide)
		res = append(res, &t)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var side, typ, tif, stp, status string
	if err := row.Scan(&o.ID, &o.ClientOrderID, &o.UserID, &o.Symbol, &side, &typ, &tif, &stp,
		&o.Price, &o.StopPrice, &o.Quantity, &o.QuoteOrderQty, &o.IcebergQty,
		&o.ExecutedQty, &o.CumQuoteQty, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.Type = domain.OrderType(typ)
	o.TimeInForce = domain.TimeInForce(tif)
	o.STP = domain.STPMode(stp)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
