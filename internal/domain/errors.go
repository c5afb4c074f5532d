package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrLockHeld          = errors.New("lock already held")
	ErrConfigMissing     = errors.New("configuration missing")
	ErrDataUnavailable   = errors.New("market data unavailable")
	ErrSymbolUnavailable = errors.New("symbol not tradable")
	ErrBridgeUnavailable = errors.New("broker bridge unavailable")
	ErrMarketClosed      = errors.New("market closed")
)
