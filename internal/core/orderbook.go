package core

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/spotcore/exchange/internal/domain"
)

// baseStep is the smallest base-asset increment used when sizing quote-qty
// market buys. Keeps price×qty from exceeding the remaining quote budget.
var baseStep = decimal.New(1, -8)

// Fill is one match produced while submitting an order. The trade price is
// always the resting (maker) order's price.
type Fill struct {
	Maker *domain.Order
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// SubmitResult reports everything a single Submit did to the book, so the
// engine can settle fills and release funds for expired makers.
type SubmitResult struct {
	Fills         []Fill
	ExpiredMakers []*domain.Order
}

type priceLevel struct {
	price  decimal.Decimal
	orders []*domain.Order // FIFO, oldest first
}

func (l *priceLevel) visibleQty() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.orders {
		total = total.Add(o.VisibleQty)
	}
	return total
}

// OrderBook holds resting liquidity for one symbol. It is not internally
// synchronized; the engine serializes all access per symbol.
type OrderBook struct {
	symbol    string
	bids      []*priceLevel // price descending, best first
	asks      []*priceLevel // price ascending, best first
	index     map[string]*domain.Order
	lastPrice decimal.Decimal
	hasLast   bool
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{symbol: symbol, index: make(map[string]*domain.Order)}
}

// levelIndex locates price within levels sorted best-first.
func levelIndex(levels []*priceLevel, price decimal.Decimal, asc bool) (int, bool) {
	i := sort.Search(len(levels), func(i int) bool {
		if asc {
			return levels[i].price.GreaterThanOrEqual(price)
		}
		return levels[i].price.LessThanOrEqual(price)
	})
	if i < len(levels) && levels[i].price.Equal(price) {
		return i, true
	}
	return i, false
}

func (b *OrderBook) sideLevels(side domain.Side) *[]*priceLevel {
	if side == domain.Buy {
		return &b.bids
	}
	return &b.asks
}

func (b *OrderBook) bestOpposite(side domain.Side) *priceLevel {
	var levels []*priceLevel
	if side == domain.Buy {
		levels = b.asks
	} else {
		levels = b.bids
	}
	if len(levels) == 0 {
		return nil
	}
	return levels[0]
}

// crosses reports whether the incoming order is willing to trade at price.
func crosses(o *domain.Order, price decimal.Decimal) bool {
	if o.Type.MarketKind() {
		return true
	}
	if o.Side == domain.Buy {
		return o.Price.GreaterThanOrEqual(price)
	}
	return o.Price.LessThanOrEqual(price)
}

// Submit matches the incoming order against the opposite side and disposes of
// any remainder according to its type and time-in-force. Fills are reported at
// maker prices; the order's status is final on return unless it rests.
func (b *OrderBook) Submit(o *domain.Order) SubmitResult {
	var res SubmitResult

	if o.Type == domain.LimitMaker {
		if lvl := b.bestOpposite(o.Side); lvl != nil && crosses(o, lvl.price) {
			o.Status = domain.Rejected
			return res
		}
	}
	if o.TimeInForce == domain.FOK {
		if b.CrossableQty(o).LessThan(o.Quantity) {
			o.Status = domain.Expired
			return res
		}
	}

	b.match(o, &res)

	if o.Terminal() {
		return res
	}
	switch {
	case o.QuoteSized():
		if o.ExecutedQty.IsPositive() {
			o.Status = domain.Filled
		} else {
			o.Status = domain.Expired
		}
	case o.Remaining().IsZero():
		o.Status = domain.Filled
	case o.Type.MarketKind() || o.TimeInForce == domain.IOC:
		o.Status = domain.Expired
	default:
		// GTC remainder rests at the back of its price level's queue.
		b.insertResting(o)
	}
	return res
}

func (b *OrderBook) match(taker *domain.Order, res *SubmitResult) {
	for {
		need := b.takerNeed(taker)
		if !need.IsPositive() {
			return
		}
		lvl := b.bestOpposite(taker.Side)
		if lvl == nil || !crosses(taker, lvl.price) {
			return
		}
		maker := lvl.orders[0]

		if maker.UserID == taker.UserID && taker.STP != domain.STPNone && taker.STP != "" {
			switch taker.STP {
			case domain.STPExpireTaker:
				taker.Status = domain.Expired
				return
			case domain.STPExpireMaker:
				b.expireMaker(lvl, res)
				continue
			case domain.STPExpireBoth:
				b.expireMaker(lvl, res)
				taker.Status = domain.Expired
				return
			}
		}

		qty := decimal.Min(need, maker.VisibleQty)
		price := lvl.price
		quote := price.Mul(qty)

		taker.ExecutedQty = taker.ExecutedQty.Add(qty)
		taker.CumQuoteQty = taker.CumQuoteQty.Add(quote)
		maker.ExecutedQty = maker.ExecutedQty.Add(qty)
		maker.CumQuoteQty = maker.CumQuoteQty.Add(quote)
		maker.VisibleQty = maker.VisibleQty.Sub(qty)
		b.lastPrice = price
		b.hasLast = true

		res.Fills = append(res.Fills, Fill{Maker: maker, Price: price, Qty: qty})

		switch {
		case maker.Remaining().IsZero():
			maker.Status = domain.Filled
			b.removeFront(lvl)
		case maker.VisibleQty.IsZero():
			// Iceberg slice exhausted: refill from hidden quantity and
			// requeue at the back of the level (time priority is lost).
			maker.Status = domain.PartiallyFilled
			maker.VisibleQty = decimal.Min(maker.IcebergQty, maker.Remaining())
			lvl.orders = append(lvl.orders[1:], maker)
		default:
			maker.Status = domain.PartiallyFilled
		}
	}
}

// takerNeed is the base quantity the incoming order still wants at the current
// best opposite price. Quote-sized market buys convert their unspent quote
// budget at that price.
func (b *OrderBook) takerNeed(taker *domain.Order) decimal.Decimal {
	if !taker.QuoteSized() {
		return taker.Remaining()
	}
	lvl := b.bestOpposite(taker.Side)
	if lvl == nil {
		return decimal.Zero
	}
	budget := taker.QuoteOrderQty.Sub(taker.CumQuoteQty)
	afford := budget.Div(lvl.price).Truncate(8)
	if afford.Mul(lvl.price).GreaterThan(budget) {
		afford = afford.Sub(baseStep)
	}
	return afford
}

func (b *OrderBook) expireMaker(lvl *priceLevel, res *SubmitResult) {
	maker := lvl.orders[0]
	maker.Status = domain.Expired
	res.ExpiredMakers = append(res.ExpiredMakers, maker)
	b.removeFront(lvl)
}

func (b *OrderBook) removeFront(lvl *priceLevel) {
	o := lvl.orders[0]
	lvl.orders = lvl.orders[1:]
	delete(b.index, o.ID)
	if len(lvl.orders) == 0 {
		b.dropLevel(o.Side, lvl.price)
	}
}

func (b *OrderBook) dropLevel(side domain.Side, price decimal.Decimal) {
	levels := b.sideLevels(side)
	i, ok := levelIndex(*levels, price, side == domain.Sell)
	if !ok {
		return
	}
	*levels = append((*levels)[:i], (*levels)[i+1:]...)
}

func (b *OrderBook) insertResting(o *domain.Order) {
	o.VisibleQty = o.Remaining()
	if o.IsIceberg() {
		o.VisibleQty = decimal.Min(o.IcebergQty, o.Remaining())
	}
	if o.ExecutedQty.IsPositive() {
		o.Status = domain.PartiallyFilled
	} else {
		o.Status = domain.New
	}
	levels := b.sideLevels(o.Side)
	i, ok := levelIndex(*levels, o.Price, o.Side == domain.Sell)
	if !ok {
		lvl := &priceLevel{price: o.Price}
		*levels = append(*levels, nil)
		copy((*levels)[i+1:], (*levels)[i:])
		(*levels)[i] = lvl
	}
	lvl := (*levels)[i]
	lvl.orders = append(lvl.orders, o)
	b.index[o.ID] = o
}

// Cancel removes a resting order. Returns false if the order is not on the
// book (already filled, expired, or never rested); no side effects then.
func (b *OrderBook) Cancel(orderID string) bool {
	o, ok := b.index[orderID]
	if !ok || !o.Cancelable() {
		return false
	}
	levels := b.sideLevels(o.Side)
	i, found := levelIndex(*levels, o.Price, o.Side == domain.Sell)
	if !found {
		return false
	}
	lvl := (*levels)[i]
	for j, resting := range lvl.orders {
		if resting.ID == orderID {
			lvl.orders = append(lvl.orders[:j], lvl.orders[j+1:]...)
			delete(b.index, orderID)
			if len(lvl.orders) == 0 {
				*levels = append((*levels)[:i], (*levels)[i+1:]...)
			}
			o.Status = domain.Cancelled
			return true
		}
	}
	return false
}

// stpWalk mirrors the match loop's self-trade handling for simulations: a
// maker owned by the taker is skipped (EXPIRE_MAKER removes it), and for
// EXPIRE_TAKER/EXPIRE_BOTH it also ends the walk, since matching stops there.
func stpWalk(taker, maker *domain.Order) (skip, stop bool) {
	if maker.UserID != taker.UserID || taker.STP == domain.STPNone || taker.STP == "" {
		return false, false
	}
	if taker.STP == domain.STPExpireMaker {
		return true, false
	}
	return true, true
}

// CrossableQty sums the resting quantity (hidden iceberg depth included) the
// order could trade against, honoring its self-trade prevention mode. Used
// for the FOK all-or-nothing pre-check.
func (b *OrderBook) CrossableQty(o *domain.Order) decimal.Decimal {
	var levels []*priceLevel
	if o.Side == domain.Buy {
		levels = b.asks
	} else {
		levels = b.bids
	}
	total := decimal.Zero
	for _, lvl := range levels {
		if !crosses(o, lvl.price) {
			break
		}
		for _, m := range lvl.orders {
			skip, stop := stpWalk(o, m)
			if stop {
				return total
			}
			if skip {
				continue
			}
			total = total.Add(m.Remaining())
		}
	}
	return total
}

// SimulateBuyCost walks the ask side and returns the quote cost of acquiring
// the order's base quantity, and the quantity actually available. Makers the
// order's STP mode would refuse are excluded, so the cost never understates
// what matching will spend. Exact while the caller holds the symbol lock,
// since the book cannot change before matching runs.
func (b *OrderBook) SimulateBuyCost(o *domain.Order) (cost, fillable decimal.Decimal) {
	remaining := o.Quantity
	for _, lvl := range b.asks {
		if !remaining.IsPositive() {
			break
		}
		for _, m := range lvl.orders {
			skip, stop := stpWalk(o, m)
			if stop {
				return cost, fillable
			}
			if skip {
				continue
			}
			take := decimal.Min(remaining, m.Remaining())
			cost = cost.Add(take.Mul(lvl.price))
			fillable = fillable.Add(take)
			remaining = remaining.Sub(take)
			if !remaining.IsPositive() {
				return cost, fillable
			}
		}
	}
	return cost, fillable
}

// Depth returns the top n visible price levels per side.
func (b *OrderBook) Depth(n int) *domain.DepthSnapshot {
	snap := &domain.DepthSnapshot{Symbol: b.symbol}
	for i, lvl := range b.bids {
		if n > 0 && i >= n {
			break
		}
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: lvl.price, Quantity: lvl.visibleQty()})
	}
	for i, lvl := range b.asks {
		if n > 0 && i >= n {
			break
		}
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: lvl.price, Quantity: lvl.visibleQty()})
	}
	return snap
}

func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	if len(b.bids) == 0 {
		return decimal.Zero, false
	}
	return b.bids[0].price, true
}

func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if len(b.asks) == 0 {
		return decimal.Zero, false
	}
	return b.asks[0].price, true
}

func (b *OrderBook) LastPrice() (decimal.Decimal, bool) {
	return b.lastPrice, b.hasLast
}
