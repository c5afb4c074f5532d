package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerKey(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "a", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := l.Allow(ctx, "a", 3, time.Second)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "b", 3, time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "a", 3, time.Second)
	assert.True(t, ok, "bucket refills")
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(time.Minute)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a", 1, time.Second)
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(context.Background(), "b", 1, time.Second)

	assert.Equal(t, 1, l.Cleanup())
}
