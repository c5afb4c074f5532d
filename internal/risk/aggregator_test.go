package risk_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregator(t *testing.T, positions ...domain.Position) (*risk.Aggregator, *risk.PositionStore, *risk.CorrelationTracker) {
	t.Helper()
	store := risk.NewPositionStore()
	for _, p := range positions {
		_, err := store.Upsert(p)
		require.NoError(t, err)
	}
	tracker := risk.NewCorrelationTracker(nil, 30, discardLogger())
	return risk.NewAggregator(store, tracker, testParams(), nil, discardLogger()), store, tracker
}

func TestAggregator_EmptyBookIsAllZero(t *testing.T) {
	agg, _, _ := newAggregator(t)

	snap := agg.Compute(context.Background())
	assert.False(t, snap.Timestamp.IsZero())
	snap.Timestamp = time.Time{}
	assert.Equal(t, domain.PortfolioRiskSnapshot{}, snap)
	assert.Equal(t, 1, agg.History().Len())
}

func TestAggregator_SinglePosition(t *testing.T) {
	agg, _, _ := newAggregator(t, domain.Position{
		Symbol: "EURUSD", Size: 1, CurrentPrice: 1.1, RiskPercent: 0.01, HoursOpen: 84,
	})

	snap := agg.Compute(context.Background())
	assert.InDelta(t, 0.01, snap.TotalRisk, 1e-12)
	assert.InDelta(t, 1.0, snap.ConcentrationRisk, 1e-12, "one position holds all risk")
	assert.Zero(t, snap.CorrelationRisk)
	assert.InDelta(t, 0.5, snap.TimeRisk, 1e-12)
	assert.InDelta(t, 0.1, snap.LiquidityRisk, 1e-12)
	// With one position sigma is the total risk itself.
	assert.InDelta(t, 0.01+1.645*0.01, snap.VaR95, 1e-12)
	assert.InDelta(t, 0.01+2.326*0.01, snap.VaR99, 1e-12)
	assert.InDelta(t, snap.VaR95*1.3, snap.ExpectedShortfall, 1e-12)
}

func TestAggregator_ConcentrationEqualShares(t *testing.T) {
	agg, _, _ := newAggregator(t,
		domain.Position{Symbol: "EURUSD", RiskPercent: 0.005},
		domain.Position{Symbol: "GBPUSD", RiskPercent: 0.005},
	)
	snap := agg.Compute(context.Background())
	// HHI = 0.5, n = 2.
	assert.InDelta(t, 1.0, snap.ConcentrationRisk, 1e-12)
	assert.InDelta(t, 0, snap.VaR95-snap.TotalRisk, 1e-12, "identical risks have zero spread")
}

func TestAggregator_CorrelationRiskUsesAbsolutePairs(t *testing.T) {
	agg, _, tracker := newAggregator(t,
		domain.Position{Symbol: "EURUSD", RiskPercent: 0.004},
		domain.Position{Symbol: "GBPUSD", RiskPercent: 0.004},
		domain.Position{Symbol: "USDCHF", RiskPercent: 0.004},
	)
	tracker.Set("EURUSD", "GBPUSD", 0.9)
	tracker.Set("EURUSD", "USDCHF", -0.6)
	// GBPUSD/USDCHF untracked counts as 0.

	snap := agg.Compute(context.Background())
	assert.InDelta(t, (0.9+0.6+0)/3, snap.CorrelationRisk, 1e-12)
}

func TestAggregator_DrawdownOverHistory(t *testing.T) {
	agg, store, _ := newAggregator(t)
	p, err := store.Upsert(domain.Position{ID: "p", Symbol: "EURUSD"})
	require.NoError(t, err)

	var snap domain.PortfolioRiskSnapshot
	for _, r := range []float64{0.01, 0.02, 0.015, 0.03, 0.01} {
		_, err := store.Mutate(p.ID, func(pos *domain.Position) error {
			pos.RiskPercent = r
			return nil
		})
		require.NoError(t, err)
		snap = agg.Compute(context.Background())
	}
	assert.InDelta(t, 0.6667, snap.MaxDrawdownRisk, 1e-4)
}

func TestRiskScore_TotalRiskTerm(t *testing.T) {
	score := risk.RiskScore(domain.PortfolioRiskSnapshot{TotalRisk: 0.03}, testParams())
	assert.InDelta(t, 37.5, score, 1e-9)

	score = risk.RiskScore(domain.PortfolioRiskSnapshot{TotalRisk: 1}, testParams())
	assert.Equal(t, 100.0, score, "score is clamped")
}

func TestRiskScore_MissingLimitDropsOnlyItsTerm(t *testing.T) {
	snap := domain.PortfolioRiskSnapshot{TotalRisk: 0.01, ConcentrationRisk: 1, MaxDrawdownRisk: 0.075}

	noDrawdownLimit := testParams()
	noDrawdownLimit.MaxDrawdown = 0
	// 0.25*0.5 + 0.15*1, drawdown term dropped.
	assert.InDelta(t, 27.5, risk.RiskScore(snap, noDrawdownLimit), 1e-9)

	noRiskLimit := testParams()
	noRiskLimit.MaxPortfolioRisk = -1
	// 0.15*1 + 0.10*0.5, total-risk term dropped.
	assert.InDelta(t, 20, risk.RiskScore(snap, noRiskLimit), 1e-9)
}

func TestAggregator_DegradedMetricBecomesZero(t *testing.T) {
	store := risk.NewPositionStore()
	_, err := store.Upsert(domain.Position{Symbol: "EURUSD", Size: 2, CurrentPrice: 1.1, RiskPercent: 0.01})
	require.NoError(t, err)
	params := testParams()
	params.MaxLeverage = 0
	agg := risk.NewAggregator(store, nil, params, nil, discardLogger())

	snap := agg.Compute(context.Background())
	assert.Zero(t, snap.LeverageRisk)
	assert.InDelta(t, 0.01, snap.TotalRisk, 1e-12)
}

func TestAggregator_BoundsHoldForRandomBooks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	symbols := []string{"EURUSD", "GBPUSD", "XAUUSD", "USDJPY", "BTCUSD"}

	for round := 0; round < 50; round++ {
		tracker := risk.NewCorrelationTracker(nil, 30, discardLogger())
		store := risk.NewPositionStore()
		n := rng.Intn(8)
		for i := 0; i < n; i++ {
			_, err := store.Upsert(domain.Position{
				Symbol:       symbols[rng.Intn(len(symbols))],
				Size:         (rng.Float64() - 0.5) * 40,
				CurrentPrice: rng.Float64() * 3000,
				RiskPercent:  rng.Float64() * 0.1,
				HoursOpen:    rng.Float64() * 500,
			})
			require.NoError(t, err)
		}
		for i := range symbols {
			for j := i + 1; j < len(symbols); j++ {
				tracker.Set(symbols[i], symbols[j], rng.Float64()*2-1)
			}
		}
		agg := risk.NewAggregator(store, tracker, testParams(), nil, discardLogger())

		for k := 0; k < 3; k++ {
			s := agg.Compute(context.Background())
			assert.GreaterOrEqual(t, s.RiskScore, 0.0)
			assert.LessOrEqual(t, s.RiskScore, 100.0)
			for _, v := range []float64{s.ConcentrationRisk, s.CorrelationRisk, s.LeverageRisk, s.LiquidityRisk, s.TimeRisk, s.MaxDrawdownRisk} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
			assert.GreaterOrEqual(t, s.TotalRisk, 0.0)
			assert.GreaterOrEqual(t, s.VaR95, 0.0)
			assert.GreaterOrEqual(t, s.VaR99, s.VaR95)
		}
	}
}
