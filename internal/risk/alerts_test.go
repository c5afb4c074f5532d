package risk_test

import (
	"testing"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAlerts_Order(t *testing.T) {
	snap := domain.PortfolioRiskSnapshot{
		RiskScore:         85,
		ConcentrationRisk: 0.9,
		CorrelationRisk:   0.85,
		MaxDrawdownRisk:   0.13,
	}
	positions := []domain.Position{
		{ID: "a", Symbol: "EURUSD", RiskPercent: 0.02, HoursOpen: 30},
		{ID: "b", Symbol: "XAUUSD", RiskPercent: 0.001, HoursOpen: 2},
		{ID: "c", Symbol: "GBPUSD", RiskPercent: 0.016},
	}

	alerts := risk.GenerateAlerts(snap, positions, testParams(), time.Now())
	require.Len(t, alerts, 7)

	want := []struct {
		level  domain.AlertLevel
		metric string
		symbol string
	}{
		{domain.AlertCritical, "risk_score", ""},
		{domain.AlertWarning, "concentration_risk", ""},
		{domain.AlertWarning, "correlation_risk", ""},
		{domain.AlertWarning, "max_drawdown_risk", ""},
		{domain.AlertWarning, "position_risk", "EURUSD"},
		{domain.AlertInfo, "time_in_position", "EURUSD"},
		{domain.AlertWarning, "position_risk", "GBPUSD"},
	}
	for i, w := range want {
		assert.Equal(t, w.level, alerts[i].Level, "alert %d", i)
		assert.Equal(t, w.metric, alerts[i].Metric, "alert %d", i)
		assert.Equal(t, w.symbol, alerts[i].Symbol, "alert %d", i)
	}
	for _, a := range alerts[:4] {
		assert.Equal(t, domain.AlertPortfolio, a.Type)
	}
	assert.InDelta(t, 0.8*0.15, alerts[3].Threshold, 1e-12)
	assert.InDelta(t, 0.015, alerts[4].Threshold, 1e-12)
}

func TestGenerateAlerts_ScoreBands(t *testing.T) {
	params := testParams()
	now := time.Now()

	alerts := risk.GenerateAlerts(domain.PortfolioRiskSnapshot{RiskScore: 70}, nil, params, now)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertWarning, alerts[0].Level)

	assert.Empty(t, risk.GenerateAlerts(domain.PortfolioRiskSnapshot{RiskScore: 65}, nil, params, now))
	assert.Empty(t, risk.GenerateAlerts(domain.PortfolioRiskSnapshot{ConcentrationRisk: 0.7, CorrelationRisk: 0.8}, nil, params, now))
}

func TestRecommendations(t *testing.T) {
	calm := risk.Recommendations(domain.PortfolioRiskSnapshot{}, testParams())
	assert.Equal(t, []string{"Portfolio risk is within limits"}, calm)

	hot := risk.Recommendations(domain.PortfolioRiskSnapshot{RiskScore: 90, TotalRisk: 0.05, ConcentrationRisk: 1}, testParams())
	assert.Len(t, hot, 3)
}
