package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrValidation        = errors.New("invalid parameters")
	ErrStateConflict     = errors.New("operation illegal for current market state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDuplicateVote     = errors.New("already voted on this market")
	ErrPricing           = errors.New("pricing overflow")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)
