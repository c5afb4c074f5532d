package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// ResolutionCache implements domain.ResolutionCache so resolver instances
// share confirmed broker symbols.
//
// Key schema:
//
//	<ns>:symbol:{LOGICAL} - hash with field "data" containing JSON, expiring
//	                        with the resolver TTL
type ResolutionCache struct {
	c *Client
}

// NewResolutionCache creates a ResolutionCache backed by the given Client.
func NewResolutionCache(c *Client) *ResolutionCache {
	return &ResolutionCache{c: c}
}

// Set stores a HIGH-confidence resolution. Fallbacks are ignored.
func (rc *ResolutionCache) Set(ctx context.Context, res domain.SymbolResolution, ttl time.Duration) error {
	if res.Fallback() {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("redis: marshal resolution %s: %w", res.Logical, err)
	}

	key := rc.c.key("symbol", res.Logical)
	pipe := rc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set resolution %s: %w", res.Logical, err)
	}
	return nil
}

// Get returns the cached resolution or domain.ErrNotFound.
func (rc *ResolutionCache) Get(ctx context.Context, logical string) (domain.SymbolResolution, error) {
	data, err := rc.c.rdb.HGet(ctx, rc.c.key("symbol", logical), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.SymbolResolution{}, domain.ErrNotFound
		}
		return domain.SymbolResolution{}, fmt.Errorf("redis: get resolution %s: %w", logical, err)
	}

	var res domain.SymbolResolution
	if err := json.Unmarshal(data, &res); err != nil {
		return domain.SymbolResolution{}, fmt.Errorf("redis: unmarshal resolution %s: %w", logical, err)
	}
	return res, nil
}

// Invalidate removes the cached resolution.
func (rc *ResolutionCache) Invalidate(ctx context.Context, logical string) error {
	if err := rc.c.rdb.Del(ctx, rc.c.key("symbol", logical)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate resolution %s: %w", logical, err)
	}
	return nil
}

var _ domain.ResolutionCache = (*ResolutionCache)(nil)
