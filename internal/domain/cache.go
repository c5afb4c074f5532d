package domain

import (
	"context"
	"time"
)

// ResolutionCache shares confirmed symbol resolutions between processes.
type ResolutionCache interface {
	Set(ctx context.Context, res SymbolResolution, ttl time.Duration) error
	Get(ctx context.Context, logical string) (SymbolResolution, error)
	Invalidate(ctx context.Context, logical string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for lifecycle and alert events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channel names.
const (
	ChannelPositions  = "positions"
	ChannelAlerts     = "alerts"
	ChannelRisk       = "risk"
	ChannelExecutions = "executions"
)
