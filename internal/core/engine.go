package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spotcore/exchange/internal/domain"
	"github.com/spotcore/exchange/internal/ledger"
	"github.com/spotcore/exchange/internal/port"
)

const (
	depthCacheLevels = 100
	tapeKeep         = 1000
)

type TradeListener func(*domain.Trade)
type DepthListener func(*domain.DepthSnapshot)

// Engine owns all order books and the trade tape, and is the sole entry point
// for placement, cancellation and lookup. Mutations for one symbol are totally
// ordered by that symbol's lock; different symbols proceed in parallel.
// Account mutations go through the ledger, which orders its own locks, so the
// two lock domains never nest the other way around.
type Engine struct {
	log     *zap.Logger
	repo    port.Repository // optional order/trade journal
	cache   port.Cache      // optional depth snapshot cache
	ledger  *ledger.Ledger
	symbols map[string]domain.Symbol

	mu        sync.RWMutex
	books     map[string]*symbolState
	orders    map[string]*domain.Order
	clientIDs map[string]string              // userID+"|"+clientOrderID -> orderID
	userOpen  map[string]map[string]struct{} // userID -> open order IDs

	tapeMu      sync.Mutex
	lastTradeID uint64
	tape        map[string][]*domain.Trade

	onTrade []TradeListener
	onDepth []DepthListener
}

type symbolState struct {
	mu     sync.Mutex
	book   *OrderBook
	stops  []*domain.Order // pending stop orders, registration order
	halted bool
}

func NewEngine(led *ledger.Ledger, symbols []domain.Symbol, repo port.Repository, cache port.Cache, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		log:       log,
		repo:      repo,
		cache:     cache,
		ledger:    led,
		symbols:   make(map[string]domain.Symbol, len(symbols)),
		books:     make(map[string]*symbolState, len(symbols)),
		orders:    make(map[string]*domain.Order),
		clientIDs: make(map[string]string),
		userOpen:  make(map[string]map[string]struct{}),
		tape:      make(map[string][]*domain.Trade),
	}
	for _, s := range symbols {
		e.symbols[s.Name] = s
		e.books[s.Name] = &symbolState{book: NewOrderBook(s.Name)}
	}
	return e
}

func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// OnTrade registers a listener invoked for every trade appended to the tape,
// in tape order. Listeners must not block.
func (e *Engine) OnTrade(fn TradeListener) { e.onTrade = append(e.onTrade, fn) }

// OnDepth registers a listener invoked after every book mutation.
func (e *Engine) OnDepth(fn DepthListener) { e.onDepth = append(e.onDepth, fn) }

func (e *Engine) state(symbol string) *symbolState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.books[symbol]
}

// PlaceOrder validates, reserves funds, matches and settles one order.
// On success the returned order is a snapshot of its state after matching.
func (e *Engine) PlaceOrder(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	sym, ok := e.symbols[o.Symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", o.Symbol, domain.ErrInvalidSymbol)
	}
	if err := validateOrder(o); err != nil {
		return nil, err
	}
	if err := e.claimClientID(o); err != nil {
		return nil, err
	}

	st := e.state(o.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.halted {
		e.releaseClientID(o)
		return nil, fmt.Errorf("%s: %w", o.Symbol, domain.ErrSymbolHalted)
	}
	if o.IsStopKind() {
		if last, has := st.book.LastPrice(); has && stopTriggered(o, last) {
			e.releaseClientID(o)
			return nil, fmt.Errorf("%s @ %s: %w", o.Type, o.StopPrice, domain.ErrWouldTrigger)
		}
	}

	asset, amount := e.requiredLock(st, sym, o)
	if !e.ledger.Lock(o.UserID, asset, amount) {
		o.Status = domain.Rejected
		e.releaseClientID(o)
		return nil, fmt.Errorf("need %s %s: %w", amount, asset, domain.ErrInsufficientBalance)
	}
	o.LockedAsset = asset
	o.LockedRemaining = amount

	o.ID = uuid.NewString()
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Status = domain.New
	e.register(o)

	if o.IsStopKind() {
		st.stops = append(st.stops, o)
		e.trackOpen(o)
		e.saveOrder(ctx, o)
		return cloneOrder(o), nil
	}

	res := st.book.Submit(o)
	if err := e.applyResult(ctx, st, sym, o, res); err != nil {
		return nil, err
	}
	if err := e.fireStops(ctx, st, sym); err != nil {
		return nil, err
	}
	e.publishDepth(ctx, st, sym.Name)

	if o.Status == domain.Rejected {
		return nil, fmt.Errorf("order %s: %w", o.ID, domain.ErrWouldMatch)
	}
	if o.TimeInForce == domain.FOK && o.Status == domain.Expired && o.ExecutedQty.IsZero() {
		return nil, fmt.Errorf("order %s: %w", o.ID, domain.ErrUnfillable)
	}
	return cloneOrder(o), nil
}

// requiredLock computes the funds to reserve before the book is touched.
// Caller holds the symbol lock, so the buy-cost simulation is exact.
func (e *Engine) requiredLock(st *symbolState, sym domain.Symbol, o *domain.Order) (string, decimal.Decimal) {
	if o.Side == domain.Sell {
		return sym.BaseAsset, o.Quantity
	}
	switch {
	case o.QuoteSized():
		return sym.QuoteAsset, o.QuoteOrderQty
	case o.Type == domain.Market:
		cost, _ := st.book.SimulateBuyCost(o)
		return sym.QuoteAsset, cost
	case o.Type == domain.StopLoss || o.Type == domain.TakeProfit:
		// Estimate at the stop price; any excess is released after execution.
		return sym.QuoteAsset, o.StopPrice.Mul(o.Quantity)
	default:
		return sym.QuoteAsset, o.Price.Mul(o.Quantity)
	}
}

// applyResult settles every fill, releases funds of expired and terminal
// orders, and journals the touched orders. A settlement failure halts the
// symbol: it cannot happen under correct locking, so it is treated as a
// consistency violation, not a recoverable error.
func (e *Engine) applyResult(ctx context.Context, st *symbolState, sym domain.Symbol, taker *domain.Order, res SubmitResult) error {
	now := time.Now()
	for _, f := range res.Fills {
		t := &domain.Trade{
			Symbol:    sym.Name,
			Price:     f.Price,
			Quantity:  f.Qty,
			MakerSide: f.Maker.Side,
			Timestamp: now,
		}
		var buyOrder, sellOrder *domain.Order
		if taker.Side == domain.Buy {
			buyOrder, sellOrder = taker, f.Maker
		} else {
			buyOrder, sellOrder = f.Maker, taker
		}
		t.BuyOrderID, t.BuyUserID = buyOrder.ID, buyOrder.UserID
		t.SellOrderID, t.SellUserID = sellOrder.ID, sellOrder.UserID

		// Settle before the trade becomes public: the tape, journal and
		// listeners must never carry a trade whose transfer did not happen.
		if err := e.settle(t, sym, buyOrder, sellOrder); err != nil {
			st.halted = true
			e.log.Error("settlement failed, halting symbol",
				zap.String("symbol", sym.Name),
				zap.Error(err))
			return fmt.Errorf("%w: %v", domain.ErrSymbolHalted, err)
		}
		e.appendTrade(ctx, t)

		f.Maker.UpdatedAt = now
		if f.Maker.Terminal() {
			e.release(f.Maker)
		}
		e.saveOrder(ctx, f.Maker)
	}
	for _, m := range res.ExpiredMakers {
		m.UpdatedAt = now
		e.release(m)
		e.saveOrder(ctx, m)
	}
	taker.UpdatedAt = now
	if taker.Terminal() {
		e.release(taker)
	} else {
		e.trackOpen(taker)
	}
	e.saveOrder(ctx, taker)
	return nil
}

// settle runs the four-leg transfer and consumes the lock budget both orders
// carry. Buyer locks are consumed at the trade's quote value, which never
// exceeds what was reserved at the (equal or worse) admission price.
func (e *Engine) settle(t *domain.Trade, sym domain.Symbol, buyOrder, sellOrder *domain.Order) error {
	quote := t.QuoteQty()
	if buyOrder.LockedRemaining.LessThan(quote) {
		return fmt.Errorf("buy order %s lock %s < %s: %w",
			buyOrder.ID, buyOrder.LockedRemaining, quote, domain.ErrInsufficientLocked)
	}
	if sellOrder.LockedRemaining.LessThan(t.Quantity) {
		return fmt.Errorf("sell order %s lock %s < %s: %w",
			sellOrder.ID, sellOrder.LockedRemaining, t.Quantity, domain.ErrInsufficientLocked)
	}
	if err := e.ledger.Settle(t, sym.BaseAsset, sym.QuoteAsset); err != nil {
		return err
	}
	buyOrder.LockedRemaining = buyOrder.LockedRemaining.Sub(quote)
	sellOrder.LockedRemaining = sellOrder.LockedRemaining.Sub(t.Quantity)
	return nil
}

// release unlocks whatever an order still has reserved and drops it from the
// user's open set. Terminal orders stay queryable by id.
func (e *Engine) release(o *domain.Order) {
	if o.LockedRemaining.IsPositive() {
		if err := e.ledger.Unlock(o.UserID, o.LockedAsset, o.LockedRemaining); err != nil {
			e.log.Error("unlock failed", zap.String("order_id", o.ID), zap.Error(err))
		}
		o.LockedRemaining = decimal.Zero
	}
	e.mu.Lock()
	if open, ok := e.userOpen[o.UserID]; ok {
		delete(open, o.ID)
	}
	e.mu.Unlock()
}

// fireStops converts every triggered stop order into a market/limit submission
// against the book, in registration order, until no further stop triggers.
func (e *Engine) fireStops(ctx context.Context, st *symbolState, sym domain.Symbol) error {
	for {
		last, has := st.book.LastPrice()
		if !has || st.halted {
			return nil
		}
		var trig *domain.Order
		for i, s := range st.stops {
			if stopTriggered(s, last) {
				trig = s
				st.stops = append(st.stops[:i], st.stops[i+1:]...)
				break
			}
		}
		if trig == nil {
			return nil
		}
		if !e.topUpStopLock(st, sym, trig) {
			continue
		}
		res := st.book.Submit(trig)
		if err := e.applyResult(ctx, st, sym, trig, res); err != nil {
			return err
		}
	}
}

// topUpStopLock re-checks a stop-market buy's quote reserve against the book
// at trigger time; the placement-time estimate may be short if price gapped.
// Returns false after expiring the order when the shortfall cannot be covered.
func (e *Engine) topUpStopLock(st *symbolState, sym domain.Symbol, o *domain.Order) bool {
	if o.Side != domain.Buy || o.Type != domain.StopLoss && o.Type != domain.TakeProfit || o.QuoteSized() {
		return true
	}
	cost, _ := st.book.SimulateBuyCost(o)
	if cost.LessThanOrEqual(o.LockedRemaining) {
		return true
	}
	extra := cost.Sub(o.LockedRemaining)
	if e.ledger.Lock(o.UserID, o.LockedAsset, extra) {
		o.LockedRemaining = o.LockedRemaining.Add(extra)
		return true
	}
	o.Status = domain.Expired
	o.UpdatedAt = time.Now()
	e.release(o)
	e.log.Warn("stop order expired, insufficient funds at trigger",
		zap.String("order_id", o.ID), zap.String("symbol", sym.Name))
	return false
}

func stopTriggered(o *domain.Order, last decimal.Decimal) bool {
	switch o.Type {
	case domain.StopLoss, domain.StopLossLimit:
		if o.Side == domain.Buy {
			return last.GreaterThanOrEqual(o.StopPrice)
		}
		return last.LessThanOrEqual(o.StopPrice)
	case domain.TakeProfit, domain.TakeProfitLimit:
		if o.Side == domain.Buy {
			return last.LessThanOrEqual(o.StopPrice)
		}
		return last.GreaterThanOrEqual(o.StopPrice)
	}
	return false
}

// CancelOrder removes a resting or pending-stop order and releases its
// remaining reserved funds. Returns false if the order is unknown or no
// longer cancelable; a cancel losing the race against a fill is a normal
// outcome, never an error, and funds are released exactly once.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) bool {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	st := e.state(o.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.halted {
		return false
	}

	// Stop orders pending trigger live outside the book; triggered ones may
	// now be resting on it and fall through to the book cancel below.
	for i, s := range st.stops {
		if s.ID == orderID {
			st.stops = append(st.stops[:i], st.stops[i+1:]...)
			o.Status = domain.Cancelled
			o.UpdatedAt = time.Now()
			e.release(o)
			e.saveOrder(ctx, o)
			return true
		}
	}

	if !st.book.Cancel(orderID) {
		return false
	}
	o.UpdatedAt = time.Now()
	e.release(o)
	e.saveOrder(ctx, o)
	e.publishDepth(ctx, st, o.Symbol)
	return true
}

func (e *Engine) GetOrder(orderID string) *domain.Order {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	st := e.state(o.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return cloneOrder(o)
}

func (e *Engine) GetOrderByClientID(userID, clientOrderID string) *domain.Order {
	e.mu.RLock()
	id, ok := e.clientIDs[clientKey(userID, clientOrderID)]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.GetOrder(id)
}

// GetOpenOrders returns the user's NEW and PARTIALLY_FILLED orders, oldest
// first. Empty symbol means all symbols.
func (e *Engine) GetOpenOrders(userID, symbol string) []*domain.Order {
	e.mu.RLock()
	ids := make([]string, 0, len(e.userOpen[userID]))
	for id := range e.userOpen[userID] {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	var res []*domain.Order
	for _, id := range ids {
		o := e.GetOrder(id)
		if o == nil || !o.Cancelable() {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res
}

// GetDepth serves the aggregated book through the snapshot cache when one is
// wired, falling back to the live book.
func (e *Engine) GetDepth(ctx context.Context, symbol string, levels int) (*domain.DepthSnapshot, error) {
	st := e.state(symbol)
	if st == nil {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrInvalidSymbol)
	}
	if levels <= 0 || levels > depthCacheLevels {
		levels = depthCacheLevels
	}
	if e.cache != nil {
		if snap, err := e.cache.GetDepth(ctx, symbol); err == nil && snap != nil {
			return trimDepth(snap, levels), nil
		}
	}
	st.mu.Lock()
	snap := st.book.Depth(depthCacheLevels)
	st.mu.Unlock()
	snap.LastTradeID = e.lastTrade(symbol)
	snap.Timestamp = time.Now()
	if e.cache != nil {
		_ = e.cache.SetDepth(ctx, symbol, snap.DeepCopy())
	}
	return trimDepth(snap, levels), nil
}

func (e *Engine) GetRecentTrades(symbol string, limit int) []*domain.Trade {
	e.tapeMu.Lock()
	defer e.tapeMu.Unlock()
	tape := e.tape[symbol]
	if limit <= 0 || limit > len(tape) {
		limit = len(tape)
	}
	res := make([]*domain.Trade, 0, limit)
	for _, t := range tape[len(tape)-limit:] {
		cp := *t
		res = append(res, &cp)
	}
	return res
}

// GetOrderTrades returns the trades an order participated in, from the
// journal when one is wired, otherwise from the in-memory tape.
func (e *Engine) GetOrderTrades(ctx context.Context, orderID string) []*domain.Trade {
	if e.repo != nil {
		trades, err := e.repo.LoadTradesForOrder(ctx, orderID)
		if err == nil {
			return trades
		}
		e.log.Warn("trade journal read failed", zap.String("order_id", orderID), zap.Error(err))
	}
	o := e.GetOrder(orderID)
	if o == nil {
		return nil
	}
	var res []*domain.Trade
	for _, t := range e.GetRecentTrades(o.Symbol, 0) {
		if t.BuyOrderID == orderID || t.SellOrderID == orderID {
			res = append(res, t)
		}
	}
	return res
}

func (e *Engine) GetMarketPrice(symbol string) (decimal.Decimal, bool) {
	st := e.state(symbol)
	if st == nil {
		return decimal.Zero, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.book.LastPrice()
}

func (e *Engine) GetBestBid(symbol string) (decimal.Decimal, bool) {
	st := e.state(symbol)
	if st == nil {
		return decimal.Zero, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.book.BestBid()
}

func (e *Engine) GetBestAsk(symbol string) (decimal.Decimal, bool) {
	st := e.state(symbol)
	if st == nil {
		return decimal.Zero, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.book.BestAsk()
}

func (e *Engine) HasSymbol(symbol string) bool {
	_, ok := e.symbols[symbol]
	return ok
}

func (e *Engine) Symbols() []domain.Symbol {
	res := make([]domain.Symbol, 0, len(e.symbols))
	for _, s := range e.symbols {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Account boundary, delegated to the ledger.

func (e *Engine) CreateAccount(userID string) { e.ledger.CreateAccount(userID) }

func (e *Engine) GetAccount(userID string) *domain.AccountSnapshot {
	return e.ledger.Snapshot(userID)
}

func (e *Engine) Deposit(userID, asset string, amount decimal.Decimal) error {
	return e.ledger.Deposit(userID, asset, amount)
}

func (e *Engine) Withdraw(userID, asset string, amount decimal.Decimal) bool {
	return e.ledger.Withdraw(userID, asset, amount)
}

// internals

// claimClientID reserves the (user, client id) slot atomically with the
// duplicate check, so two concurrent placements of the same key cannot both
// pass. register later points the slot at the assigned order id.
func (e *Engine) claimClientID(o *domain.Order) error {
	if o.ClientOrderID == "" {
		return nil
	}
	key := clientKey(o.UserID, o.ClientOrderID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.clientIDs[key]; dup {
		return fmt.Errorf("%s: %w", o.ClientOrderID, domain.ErrDuplicateClientOrder)
	}
	e.clientIDs[key] = ""
	return nil
}

// releaseClientID frees a claimed slot when placement fails before register.
func (e *Engine) releaseClientID(o *domain.Order) {
	if o.ClientOrderID == "" {
		return
	}
	e.mu.Lock()
	delete(e.clientIDs, clientKey(o.UserID, o.ClientOrderID))
	e.mu.Unlock()
}

func (e *Engine) register(o *domain.Order) {
	e.mu.Lock()
	e.orders[o.ID] = o
	if o.ClientOrderID != "" {
		e.clientIDs[clientKey(o.UserID, o.ClientOrderID)] = o.ID
	}
	e.mu.Unlock()
}

func (e *Engine) trackOpen(o *domain.Order) {
	e.mu.Lock()
	open, ok := e.userOpen[o.UserID]
	if !ok {
		open = make(map[string]struct{})
		e.userOpen[o.UserID] = open
	}
	open[o.ID] = struct{}{}
	e.mu.Unlock()
}

// appendTrade assigns the engine-wide strictly increasing trade id at the
// moment of tape append; that sequence is authoritative for market data.
func (e *Engine) appendTrade(ctx context.Context, t *domain.Trade) {
	e.tapeMu.Lock()
	e.lastTradeID++
	t.ID = e.lastTradeID
	tape := append(e.tape[t.Symbol], t)
	if len(tape) > tapeKeep {
		tape = tape[len(tape)-tapeKeep:]
	}
	e.tape[t.Symbol] = tape
	e.tapeMu.Unlock()

	if e.repo != nil {
		if err := e.repo.SaveTrade(ctx, t); err != nil {
			e.log.Warn("trade journal write failed", zap.Uint64("trade_id", t.ID), zap.Error(err))
		}
	}
	for _, fn := range e.onTrade {
		fn(t)
	}
}

func (e *Engine) lastTrade(symbol string) uint64 {
	e.tapeMu.Lock()
	defer e.tapeMu.Unlock()
	tape := e.tape[symbol]
	if len(tape) == 0 {
		return 0
	}
	return tape[len(tape)-1].ID
}

func (e *Engine) saveOrder(ctx context.Context, o *domain.Order) {
	if e.repo == nil {
		return
	}
	if err := e.repo.SaveOrder(ctx, o); err != nil {
		e.log.Warn("order journal write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (e *Engine) publishDepth(ctx context.Context, st *symbolState, symbol string) {
	snap := st.book.Depth(depthCacheLevels)
	snap.LastTradeID = e.lastTrade(symbol)
	snap.Timestamp = time.Now()
	if e.cache != nil {
		_ = e.cache.SetDepth(ctx, symbol, snap.DeepCopy())
	}
	for _, fn := range e.onDepth {
		fn(snap)
	}
}

func trimDepth(snap *domain.DepthSnapshot, levels int) *domain.DepthSnapshot {
	cp := snap.DeepCopy()
	if len(cp.Bids) > levels {
		cp.Bids = cp.Bids[:levels]
	}
	if len(cp.Asks) > levels {
		cp.Asks = cp.Asks[:levels]
	}
	return cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	return &cp
}

func clientKey(userID, clientOrderID string) string {
	return userID + "|" + clientOrderID
}
