package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/risk"
)

// suffixMarket serves daily bars only under the broker's ".a" names.
type suffixMarket struct {
	mu     sync.Mutex
	series map[string][]float64
	asked  []string
}

func (m *suffixMarket) Bars(_ context.Context, symbol, timeframe string, count int) (domain.MarketData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, symbol)
	if !strings.HasSuffix(symbol, ".a") {
		return domain.MarketData{}, domain.ErrDataUnavailable
	}
	closes, ok := m.series[strings.TrimSuffix(symbol, ".a")]
	if !ok {
		return domain.MarketData{}, domain.ErrDataUnavailable
	}
	if len(closes) > count {
		closes = closes[len(closes)-count:]
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return domain.MarketData{Symbol: symbol, Timeframe: timeframe, Bars: bars}, nil
}

func (m *suffixMarket) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.asked...)
}

// suffixResolver resolves every symbol to its ".a" variant.
type suffixResolver struct{}

func (suffixResolver) Resolve(_ context.Context, logical string) (domain.SymbolResolution, error) {
	return domain.SymbolResolution{Logical: logical, Resolved: logical + ".a", Confidence: domain.ConfidenceHigh}, nil
}

func oscillating(n int, base, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base * (1 + amp*math.Sin(float64(i)*0.9))
	}
	return out
}

type suffixFixture struct {
	market  *suffixMarket
	book    *risk.PositionStore
	tracker *risk.CorrelationTracker
	svc     *RiskService
}

func newSuffixFixture(t *testing.T) suffixFixture {
	t.Helper()
	market := &suffixMarket{series: map[string][]float64{
		"EURUSD": oscillating(60, 1.10, 0.0085),
		"GBPUSD": oscillating(60, 1.30, 0.0085),
		"USDJPY": oscillating(60, 150, 0.04),
	}}
	book := risk.NewPositionStore()
	mapper := NewBrokerSymbols(book, suffixResolver{})
	tracker := risk.NewCorrelationTracker(market, 30, discardLogger()).WithSymbolMapper(mapper)
	agg := risk.NewAggregator(book, tracker, testParams(), nil, discardLogger())
	sizer := risk.NewSizer(agg, book, tracker, testParams(), discardLogger())
	positions := NewPositionService(book, tracker, nil, nil, nil, nil, nil, nil, discardLogger())
	svc := NewRiskService(RiskDeps{
		Aggregator:  agg,
		Sizer:       sizer,
		Positions:   positions,
		Correlation: tracker,
		Market:      market,
		Symbols:     mapper,
	}, discardLogger())

	for _, p := range []domain.Position{
		{ID: "1", Symbol: "EURUSD", BrokerSymbol: "EURUSD.a", Size: 0.1, CurrentPrice: 1.1, RiskPercent: 0.004},
		{ID: "2", Symbol: "GBPUSD", BrokerSymbol: "GBPUSD.a", Size: 0.1, CurrentPrice: 1.3, RiskPercent: 0.004},
	} {
		_, err := svc.UpdatePosition(context.Background(), p)
		require.NoError(t, err)
	}
	return suffixFixture{market: market, book: book, tracker: tracker, svc: svc}
}

func TestBrokerSymbolsPrefersHeldPosition(t *testing.T) {
	book := risk.NewPositionStore()
	_, err := book.Upsert(domain.Position{Symbol: "XAUUSD", BrokerSymbol: "GOLD.pro"})
	require.NoError(t, err)
	m := NewBrokerSymbols(book, suffixResolver{})

	assert.Equal(t, "GOLD.pro", m.BrokerSymbol(context.Background(), "xauusd"))
	assert.Equal(t, "EURUSD.a", m.BrokerSymbol(context.Background(), "EURUSD"))
	assert.Equal(t, "EURUSD", NewBrokerSymbols(book, nil).BrokerSymbol(context.Background(), "eurusd"))
}

func TestCorrelationUsesBrokerSymbols(t *testing.T) {
	f := newSuffixFixture(t)

	coef, ok := f.tracker.Get("EURUSD", "GBPUSD")
	require.True(t, ok)
	assert.Greater(t, coef, 0.99)
	for _, name := range f.market.names() {
		assert.True(t, strings.HasSuffix(name, ".a"), "bars requested under %q", name)
	}

	snap := f.svc.CalculatePortfolioRisk(context.Background())
	assert.Greater(t, snap.CorrelationRisk, 0.99)
}

func TestSizingFetchesBarsUnderBrokerSymbol(t *testing.T) {
	f := newSuffixFixture(t)

	res := f.svc.CalculateDynamicPositionSize(context.Background(), domain.SizingRequest{
		Symbol: "usdjpy", BaseSize: 1, EntryPrice: 150, StopLoss: 149, PortfolioValue: 1_000_000,
	})
	require.False(t, res.Fallback, res.Reasoning)
	assert.NotEqual(t, risk.DefaultVolatility, res.Volatility)
	assert.NotContains(t, res.Reasoning[1], "default used")
	assert.Contains(t, f.market.names(), "USDJPY.a")

	// The prospective symbol leaves no pairs behind.
	for _, p := range f.tracker.Pairs() {
		assert.NotEqual(t, "USDJPY", p.SymbolA)
		assert.NotEqual(t, "USDJPY", p.SymbolB)
	}
}

func TestPortfolioRiskDropsPairsOfUnheldSymbols(t *testing.T) {
	f := newSuffixFixture(t)
	f.tracker.Set("EURUSD", "AUDUSD", 0.9)
	f.tracker.Set("NZDUSD", "AUDUSD", 0.9)

	f.svc.CalculatePortfolioRisk(context.Background())

	pairs := f.tracker.Pairs()
	require.Len(t, pairs, 1)
	assert.Equal(t, "EURUSD", pairs[0].SymbolA)
	assert.Equal(t, "GBPUSD", pairs[0].SymbolB)
}
