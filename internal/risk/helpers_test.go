package risk_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() domain.RiskParameters {
	return domain.RiskParameters{
		MaxPortfolioRisk:      0.02,
		MaxSinglePositionRisk: 0.01,
		MaxDrawdown:           0.15,
		MaxLeverage:           10,
		LookbackPeriodDays:    30,
		PortfolioValue:        10000,
		LiquidityScale:        10,
	}
}

// fakeMarket serves fixed bar series per symbol.
type fakeMarket struct {
	series map[string]domain.MarketData
	calls  int
}

func (f *fakeMarket) Bars(_ context.Context, symbol, timeframe string, count int) (domain.MarketData, error) {
	f.calls++
	md, ok := f.series[strings.ToUpper(symbol)]
	if !ok {
		return domain.MarketData{}, domain.ErrDataUnavailable
	}
	if len(md.Bars) > count {
		md.Bars = md.Bars[len(md.Bars)-count:]
	}
	md.Timeframe = timeframe
	return md, nil
}

// dailyBars builds a daily series from close prices ending on a fixed date.
func dailyBars(symbol string, closes []float64) domain.MarketData {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return domain.MarketData{Symbol: symbol, Timeframe: "1d", Bars: bars}
}

// wave generates n closes oscillating around base with the given daily amplitude.
func wave(n int, base, amp, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base * (1 + amp*math.Sin(float64(i)*0.9+phase))
	}
	return out
}
