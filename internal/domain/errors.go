package domain

import "errors"

// Reject reasons surfaced at the engine boundary. Validation and resource
// rejections happen before any book mutation; state misses (unknown order,
// cancel of a terminal order) are reported as empty/false results instead.
var (
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrInvalidParameters    = errors.New("invalid order parameters")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrUnfillable           = errors.New("order could not be fully filled")
	ErrWouldTrigger         = errors.New("stop order would trigger immediately")
	ErrWouldMatch           = errors.New("limit maker order would immediately match")
	ErrDuplicateClientOrder = errors.New("duplicate client order id")
	ErrSymbolHalted         = errors.New("trading halted for symbol")
	ErrOrderNotFound        = errors.New("order not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientLocked   = errors.New("insufficient locked balance")
)
