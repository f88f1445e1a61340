package domain

import "github.com/shopspring/decimal"

// Balance is the holding of one asset inside an account. Free is available
// for new orders, Locked is reserved by resting orders. Both stay >= 0.
type Balance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// AccountSnapshot is a point-in-time copy of a user's balances.
type AccountSnapshot struct {
	UserID   string
	Balances map[string]Balance
}
