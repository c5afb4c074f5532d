package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	dup, busy := d.Begin("a")
	assert.False(t, dup)
	assert.False(t, busy)

	_, busy = d.Begin("a")
	assert.True(t, busy)

	d.Finish("a", false)
	dup, busy = d.Begin("a")
	assert.False(t, dup)
	assert.False(t, busy)

	d.Finish("a", true)
	dup, _ = d.Begin("a")
	assert.True(t, dup)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, d.Cleanup())
	dup, busy = d.Begin("a")
	assert.False(t, dup)
	assert.False(t, busy)
}
