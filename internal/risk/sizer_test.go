package risk_test

import (
	"context"
	"math"
	"testing"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sizerFixture struct {
	store   *risk.PositionStore
	tracker *risk.CorrelationTracker
	sizer   *risk.Sizer
}

func newSizerFixture(t *testing.T, market domain.MarketDataProvider, positions ...domain.Position) sizerFixture {
	t.Helper()
	store := risk.NewPositionStore()
	for _, p := range positions {
		_, err := store.Upsert(p)
		require.NoError(t, err)
	}
	tracker := risk.NewCorrelationTracker(market, 30, discardLogger())
	agg := risk.NewAggregator(store, tracker, testParams(), nil, discardLogger())
	return sizerFixture{
		store:   store,
		tracker: tracker,
		sizer:   risk.NewSizer(agg, store, tracker, testParams(), discardLogger()),
	}
}

// calmSeries is a low-volatility daily series (well under the 20% baseline).
func calmSeries(symbol string) *domain.MarketData {
	md := dailyBars(symbol, wave(40, 1.10, 0.0085, 0))
	return &md
}

func TestSizer_ExistingSymbolHalvesSize(t *testing.T) {
	f := newSizerFixture(t, nil,
		domain.Position{Symbol: "EURUSD", Size: 0.1, CurrentPrice: 1.1, RiskPercent: 0.004},
		domain.Position{Symbol: "EURUSD", Size: 0.1, CurrentPrice: 1.1, RiskPercent: 0.004},
	)

	res := f.sizer.Size(context.Background(), domain.SizingRequest{
		Symbol: "EURUSD", Strategy: "trend", BaseSize: 1, EntryPrice: 1.1000, StopLoss: 1.0950,
		PortfolioValue: 10000, Market: calmSeries("EURUSD"),
	})
	require.False(t, res.Fallback, res.Reasoning)
	assert.Equal(t, 0.5, res.Adjustments.Concentration)
	assert.Len(t, res.Reasoning, 5)
}

func TestSizer_StrategyConcentration(t *testing.T) {
	var positions []domain.Position
	for _, sym := range []string{"GBPUSD", "USDJPY", "AUDUSD"} {
		positions = append(positions, domain.Position{Symbol: sym, Strategy: "scalp", RiskPercent: 0.001})
	}
	f := newSizerFixture(t, nil, positions...)

	res := f.sizer.Size(context.Background(), domain.SizingRequest{
		Symbol: "EURUSD", Strategy: "scalp", BaseSize: 1, EntryPrice: 1.1, StopLoss: 1.09,
		PortfolioValue: 1_000_000, Market: calmSeries("EURUSD"),
	})
	assert.Equal(t, 0.7, res.Adjustments.Concentration)
}

func TestSizer_FallbackOnMissingMarketData(t *testing.T) {
	f := newSizerFixture(t, nil)

	res := f.sizer.Size(context.Background(), domain.SizingRequest{
		Symbol: "EURUSD", BaseSize: 0.8, EntryPrice: 1.1, StopLoss: 1.09, PortfolioValue: 10000,
	})
	assert.True(t, res.Fallback)
	assert.Equal(t, 0.4, res.FinalSize)
	assert.Equal(t, domain.NeutralAdjustments(), res.Adjustments)
	assert.Len(t, res.Reasoning, 1)
}

func TestSizer_FallbackOnZeroStopDistance(t *testing.T) {
	f := newSizerFixture(t, nil)

	res := f.sizer.Size(context.Background(), domain.SizingRequest{
		Symbol: "EURUSD", BaseSize: 2, EntryPrice: 1.1, StopLoss: 1.1, Market: calmSeries("EURUSD"),
	})
	assert.True(t, res.Fallback)
	assert.Equal(t, 1.0, res.FinalSize)
	assert.Len(t, res.Reasoning, 1)
}

func TestSizer_HardCap(t *testing.T) {
	f := newSizerFixture(t, nil)

	// 0.05 per unit of stop distance; 10 units risks 5% of 10000 vs a 1% cap.
	res := f.sizer.Size(context.Background(), domain.SizingRequest{
		Symbol: "XAUUSD", BaseSize: 10, EntryPrice: 2000, StopLoss: 1950,
		PortfolioValue: 10000, Market: calmSeries("XAUUSD"),
	})
	require.False(t, res.Fallback, res.Reasoning)
	assert.True(t, res.Capped)
	assert.InDelta(t, 0.01*10000/50, res.FinalSize, 1e-9)
	assert.Len(t, res.Reasoning, 6)
	assert.Contains(t, res.Reasoning[5], "Capped")
}

func TestSizer_HighVolatilityRegime(t *testing.T) {
	f := newSizerFixture(t, nil)
	md := dailyBars("BTCUSD", wave(60, 60000, 0.05, 0))

	res := f.sizer.Size(context.Background(), domain.SizingRequest{
		Symbol: "BTCUSD", BaseSize: 0.01, EntryPrice: 60000, StopLoss: 59000,
		PortfolioValue: 1_000_000, Market: &md,
	})
	require.False(t, res.Fallback, res.Reasoning)
	assert.Equal(t, domain.RegimeHigh, res.Regime)
	assert.Equal(t, 0.6, res.Adjustments.MarketRegime)
	assert.Equal(t, 0.6, res.Adjustments.Volatility)
}

func TestSizer_ShortSeriesUsesDefaultVolatility(t *testing.T) {
	f := newSizerFixture(t, nil)
	md := dailyBars("EURUSD", []float64{1.1, 1.11})

	res := f.sizer.Size(context.Background(), domain.SizingRequest{
		Symbol: "EURUSD", BaseSize: 1, EntryPrice: 1.1, StopLoss: 1.09,
		PortfolioValue: 1_000_000, Market: &md,
	})
	require.False(t, res.Fallback)
	assert.Equal(t, risk.DefaultVolatility, res.Volatility)
	assert.Equal(t, 1.0, res.Adjustments.Volatility)
}

func TestSizer_CorrelatedBookReducesSize(t *testing.T) {
	market := &fakeMarket{series: map[string]domain.MarketData{
		"EURUSD": dailyBars("EURUSD", wave(60, 1.10, 0.0085, 0)),
		"GBPUSD": dailyBars("GBPUSD", wave(60, 1.30, 0.0085, 0)),
	}}
	f := newSizerFixture(t, market, domain.Position{Symbol: "GBPUSD", RiskPercent: 0.002})

	md := market.series["EURUSD"]
	res := f.sizer.Size(context.Background(), domain.SizingRequest{
		Symbol: "EURUSD", BaseSize: 1, EntryPrice: 1.1, StopLoss: 1.09,
		PortfolioValue: 1_000_000, Market: &md,
	})
	require.False(t, res.Fallback, res.Reasoning)
	assert.Equal(t, 0.7, res.Adjustments.Correlation)

	assert.Contains(t, res.Reasoning[2], "1.00")

	// Sizing a symbol that is not held leaves the table untouched.
	_, ok := f.tracker.Get("GBPUSD", "EURUSD")
	assert.False(t, ok)
	assert.Empty(t, f.tracker.Pairs())
}

func TestSizer_NeverNegativeOrNaN(t *testing.T) {
	f := newSizerFixture(t, nil)
	inputs := []domain.SizingRequest{
		{Symbol: "EURUSD", BaseSize: -1, EntryPrice: 1.1, StopLoss: 1.0, Market: calmSeries("EURUSD")},
		{Symbol: "EURUSD", BaseSize: math.NaN(), EntryPrice: 1.1, StopLoss: 1.0, Market: calmSeries("EURUSD")},
		{Symbol: "EURUSD", BaseSize: 1, EntryPrice: math.Inf(1), StopLoss: 1.0, Market: calmSeries("EURUSD")},
		{Symbol: "", BaseSize: 1, EntryPrice: 1.1, StopLoss: 1.0},
		{Symbol: "EURUSD", BaseSize: 1, EntryPrice: 1.1, StopLoss: 1.0, PortfolioValue: -5, Market: calmSeries("EURUSD")},
	}
	for i, in := range inputs {
		res := f.sizer.Size(context.Background(), in)
		assert.False(t, math.IsNaN(res.FinalSize), "input %d", i)
		assert.GreaterOrEqual(t, res.FinalSize, 0.0, "input %d", i)
	}
}
