package risk_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_KeepsMostRecentInOrder(t *testing.T) {
	h := risk.NewHistory(100)
	for i := 0; i < 250; i++ {
		h.Append(domain.PortfolioRiskSnapshot{Positions: i})
	}

	snaps := h.Snapshots()
	require.Len(t, snaps, 100)
	for i, s := range snaps {
		assert.Equal(t, 150+i, s.Positions)
	}

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 249, latest.Positions)
}

func TestHistory_BoundedUnderConcurrentCompute(t *testing.T) {
	store := risk.NewPositionStore()
	_, err := store.Upsert(domain.Position{Symbol: "EURUSD", RiskPercent: 0.004})
	require.NoError(t, err)
	agg := risk.NewAggregator(store, nil, testParams(), risk.NewHistory(100), discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				agg.Compute(context.Background())
				assert.LessOrEqual(t, agg.History().Len(), 100)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, agg.History().Len())
}
