package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/spotcore/exchange/internal/domain"
)

// Ledger keeps per-user, per-asset balances with free/locked sub-amounts.
// Every mutation preserves free >= 0 and locked >= 0 atomically; Settle spans
// two accounts and acquires their locks in user-id order, so concurrent
// settlements between the same pair cannot deadlock.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

type account struct {
	mu       sync.Mutex
	userID   string
	balances map[string]*domain.Balance
}

func New() *Ledger {
	return &Ledger{accounts: make(map[string]*account)}
}

func (l *Ledger) getOrCreate(userID string) *account {
	l.mu.RLock()
	a, ok := l.accounts[userID]
	l.mu.RUnlock()
	if ok {
		return a
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[userID]; ok {
		return a
	}
	a = &account{userID: userID, balances: make(map[string]*domain.Balance)}
	l.accounts[userID] = a
	return a
}

func (a *account) balance(asset string) *domain.Balance {
	b, ok := a.balances[asset]
	if !ok {
		b = &domain.Balance{}
		a.balances[asset] = b
	}
	return b
}

// CreateAccount makes the account exist eagerly. Accounts are also created
// implicitly on first deposit.
func (l *Ledger) CreateAccount(userID string) {
	l.getOrCreate(userID)
}

func (l *Ledger) Deposit(userID, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit %s %s: %w", asset, amount, domain.ErrInvalidParameters)
	}
	a := l.getOrCreate(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(asset)
	b.Free = b.Free.Add(amount)
	return nil
}

// Withdraw removes from free balance; fails without mutation if free < amount.
func (l *Ledger) Withdraw(userID, asset string, amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	a := l.getOrCreate(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(asset)
	if b.Free.LessThan(amount) {
		return false
	}
	b.Free = b.Free.Sub(amount)
	return true
}

// Lock moves amount from free to locked; fails without mutation if free < amount.
func (l *Ledger) Lock(userID, asset string, amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	if amount.IsZero() {
		return true
	}
	a := l.getOrCreate(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(asset)
	if b.Free.LessThan(amount) {
		return false
	}
	b.Free = b.Free.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return true
}

// Unlock returns locked funds to free. Used on cancel, rejection, and when
// releasing the excess once an order's true execution cost is known.
func (l *Ledger) Unlock(userID, asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("unlock %s %s: %w", asset, amount, domain.ErrInvalidParameters)
	}
	if amount.IsZero() {
		return nil
	}
	a := l.getOrCreate(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(asset)
	if b.Locked.LessThan(amount) {
		return fmt.Errorf("unlock %s %s for %s: %w", asset, amount, userID, domain.ErrInsufficientLocked)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Free = b.Free.Add(amount)
	return nil
}

// Settle applies the four-leg transfer for one trade all-or-nothing:
// buyer locked quote -> seller free quote, seller locked base -> buyer free base.
// It never fails under correct prior locking; an error here is a consistency
// violation the caller must treat as fatal for the symbol.
func (l *Ledger) Settle(t *domain.Trade, baseAsset, quoteAsset string) error {
	quote := t.QuoteQty()
	buyer := l.getOrCreate(t.BuyUserID)
	seller := l.getOrCreate(t.SellUserID)

	if buyer == seller {
		buyer.mu.Lock()
		defer buyer.mu.Unlock()
	} else {
		// Fixed total order on account locks regardless of buy/sell role.
		first, second := buyer, seller
		if second.userID < first.userID {
			first, second = second, first
		}
		first.mu.Lock()
		defer first.mu.Unlock()
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	bq := buyer.balance(quoteAsset)
	sb := seller.balance(baseAsset)
	if bq.Locked.LessThan(quote) {
		return fmt.Errorf("settle: buyer %s locked %s < %s %s: %w",
			t.BuyUserID, bq.Locked, quote, quoteAsset, domain.ErrInsufficientLocked)
	}
	if sb.Locked.LessThan(t.Quantity) {
		return fmt.Errorf("settle: seller %s locked %s < %s %s: %w",
			t.SellUserID, sb.Locked, t.Quantity, baseAsset, domain.ErrInsufficientLocked)
	}

	bq.Locked = bq.Locked.Sub(quote)
	seller.balance(quoteAsset).Free = seller.balance(quoteAsset).Free.Add(quote)
	sb.Locked = sb.Locked.Sub(t.Quantity)
	buyer.balance(baseAsset).Free = buyer.balance(baseAsset).Free.Add(t.Quantity)
	return nil
}

// Snapshot returns a copy of the user's balances, or nil if the account
// was never created.
func (l *Ledger) Snapshot(userID string) *domain.AccountSnapshot {
	l.mu.RLock()
	a, ok := l.accounts[userID]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := &domain.AccountSnapshot{
		UserID:   userID,
		Balances: make(map[string]domain.Balance, len(a.balances)),
	}
	for asset, b := range a.balances {
		snap.Balances[asset] = *b
	}
	return snap
}

// Balance returns a copy of one (user, asset) balance.
func (l *Ledger) Balance(userID, asset string) domain.Balance {
	a := l.getOrCreate(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.balance(asset)
}
