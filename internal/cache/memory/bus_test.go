package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.Subscribe(ctx, "alerts")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "alerts")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "risk")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "alerts", []byte("hi")))

	assert.Equal(t, []byte("hi"), <-a)
	assert.Equal(t, []byte("hi"), <-b)
	select {
	case msg := <-other:
		t.Fatalf("unexpected message on risk: %s", msg)
	default:
	}
}

func TestBusClosesOnCancel(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "alerts")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	assert.NoError(t, bus.Publish(context.Background(), "alerts", []byte("x")))
}
