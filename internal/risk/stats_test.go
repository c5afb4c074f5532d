package risk_test

import (
	"math"
	"testing"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxDrawdown(t *testing.T) {
	dd := risk.MaxDrawdown([]float64{0.01, 0.02, 0.015, 0.03, 0.01})
	assert.InDelta(t, (0.03-0.01)/0.03, dd, 1e-9)

	assert.Zero(t, risk.MaxDrawdown(nil))
	assert.Zero(t, risk.MaxDrawdown([]float64{0.5}))
	assert.Zero(t, risk.MaxDrawdown([]float64{0.01, 0.02, 0.03}))
	assert.Zero(t, risk.MaxDrawdown([]float64{0, 0, 0}))
}

func TestPearson(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}

	r, ok := risk.Pearson(xs, []float64{2, 4, 6, 8, 10})
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-12)

	r, ok = risk.Pearson(xs, []float64{5, 4, 3, 2, 1})
	require.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-12)

	_, ok = risk.Pearson(xs, []float64{3, 3, 3, 3, 3})
	assert.False(t, ok, "zero variance has no defined correlation")

	_, ok = risk.Pearson(xs, []float64{1, 2})
	assert.False(t, ok)
}

func TestLogReturns(t *testing.T) {
	rets := risk.LogReturns([]float64{100, 110, 99})
	require.Len(t, rets, 2)
	assert.InDelta(t, math.Log(1.1), rets[0], 1e-12)
	assert.InDelta(t, math.Log(0.9), rets[1], 1e-12)

	assert.Nil(t, risk.LogReturns([]float64{100}))
	assert.Len(t, risk.LogReturns([]float64{100, 0, 100, 101}), 1)
}

func TestAnnualizedVolatility(t *testing.T) {
	_, err := risk.AnnualizedVolatility(dailyBars("EURUSD", []float64{1.1, 1.2}))
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	flat, err := risk.AnnualizedVolatility(dailyBars("EURUSD", []float64{1, 1, 1, 1}))
	require.NoError(t, err)
	assert.Zero(t, flat)

	vol, err := risk.AnnualizedVolatility(dailyBars("XAUUSD", wave(60, 2000, 0.02, 0)))
	require.NoError(t, err)
	assert.Greater(t, vol, 0.2)
}
