package risk_test

import (
	"context"
	"testing"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationTracker_Symmetric(t *testing.T) {
	tr := risk.NewCorrelationTracker(nil, 30, discardLogger())
	tr.Set("EURUSD", "gbpusd", 0.83)
	tr.Set("XAUUSD", "EURUSD", -0.4)
	tr.Set("EURUSD", "EURUSD", 1)

	for _, e := range tr.Pairs() {
		ab, ok := tr.Get(e.SymbolA, e.SymbolB)
		require.True(t, ok)
		ba, ok := tr.Get(e.SymbolB, e.SymbolA)
		require.True(t, ok)
		assert.Equal(t, ab, ba)
	}
	assert.Len(t, tr.Pairs(), 2)

	_, ok := tr.Get("EURUSD", "EURUSD")
	assert.False(t, ok, "self correlation is excluded")
}

func TestCorrelationTracker_Average(t *testing.T) {
	tr := risk.NewCorrelationTracker(nil, 30, discardLogger())
	assert.Zero(t, tr.AverageCorrelation("EURUSD"))

	tr.Set("EURUSD", "GBPUSD", 0.8)
	tr.Set("EURUSD", "USDCHF", -0.2)
	tr.Set("GBPUSD", "USDCHF", 0.1)
	assert.InDelta(t, 0.3, tr.AverageCorrelation("EURUSD"), 1e-12)
	assert.InDelta(t, 0.8, tr.AverageAgainst("EURUSD", []string{"GBPUSD", "AUDUSD"}), 1e-12)

	tr.Forget("EURUSD")
	assert.Zero(t, tr.AverageCorrelation("EURUSD"))
	assert.InDelta(t, 0.1, tr.AverageCorrelation("GBPUSD"), 1e-12)
}

func TestCorrelationTracker_UpdateFromMarketData(t *testing.T) {
	base := wave(60, 1.10, 0.01, 0)
	mirrored := make([]float64, len(base))
	for i, v := range base {
		mirrored[i] = 2.2 - v + 1.0
	}
	market := &fakeMarket{series: map[string]domain.MarketData{
		"EURUSD": dailyBars("EURUSD", base),
		"GBPUSD": dailyBars("GBPUSD", wave(60, 1.30, 0.01, 0)),
		"USDCHF": dailyBars("USDCHF", mirrored),
	}}
	tr := risk.NewCorrelationTracker(market, 30, discardLogger())

	require.NoError(t, tr.Update(context.Background(), "EURUSD", []string{"EURUSD", "GBPUSD", "USDCHF", "NZDUSD"}))

	same, ok := tr.Get("GBPUSD", "EURUSD")
	require.True(t, ok)
	assert.InDelta(t, 1.0, same, 1e-6)

	opposite, ok := tr.Get("EURUSD", "USDCHF")
	require.True(t, ok)
	assert.Less(t, opposite, -0.9)

	missing, ok := tr.Get("EURUSD", "NZDUSD")
	require.True(t, ok)
	assert.Zero(t, missing, "unavailable data is neutral")
}

func TestCorrelationTracker_UpdateHonoursCancellation(t *testing.T) {
	market := &fakeMarket{series: map[string]domain.MarketData{
		"EURUSD": dailyBars("EURUSD", wave(40, 1.1, 0.01, 0)),
	}}
	tr := risk.NewCorrelationTracker(market, 30, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Update(ctx, "EURUSD", []string{"GBPUSD"})
	assert.ErrorIs(t, err, context.Canceled)
}
