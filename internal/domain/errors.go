package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidParams       = errors.New("invalid parameters")
	ErrIdempotencyConflict = errors.New("idempotency key reused with different parameters")
	ErrAlreadyClaimed      = errors.New("request already claimed")
	ErrProviderFailure     = errors.New("provider failure")
)
