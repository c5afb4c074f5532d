package risk

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// Alert thresholds.
const (
	CriticalScore         = 80
	WarningScore          = 65
	ConcentrationLimit    = 0.7
	CorrelationLimit      = 0.8
	DrawdownAlertFraction = 0.8
	PositionRiskMultiple  = 1.5
	StalePositionHours    = 24
)

// GenerateAlerts evaluates thresholds against a snapshot and the positions it
// was computed from. Portfolio alerts come first in a fixed order (score,
// concentration, correlation, drawdown), then position alerts in book order.
func GenerateAlerts(s domain.PortfolioRiskSnapshot, positions []domain.Position, p domain.RiskParameters, now time.Time) []domain.RiskAlert {
	now = now.UTC()
	var alerts []domain.RiskAlert

	switch {
	case s.RiskScore > CriticalScore:
		alerts = append(alerts, domain.RiskAlert{
			Level:             domain.AlertCritical,
			Type:              domain.AlertPortfolio,
			Metric:            "risk_score",
			Message:           fmt.Sprintf("Portfolio risk score %.1f exceeds critical level %d", s.RiskScore, CriticalScore),
			Value:             s.RiskScore,
			Threshold:         CriticalScore,
			Timestamp:         now,
			RecommendedAction: "Stop opening positions and reduce exposure immediately",
		})
	case s.RiskScore > WarningScore:
		alerts = append(alerts, domain.RiskAlert{
			Level:             domain.AlertWarning,
			Type:              domain.AlertPortfolio,
			Metric:            "risk_score",
			Message:           fmt.Sprintf("Portfolio risk score %.1f exceeds warning level %d", s.RiskScore, WarningScore),
			Value:             s.RiskScore,
			Threshold:         WarningScore,
			Timestamp:         now,
			RecommendedAction: "Reduce position sizes on new trades",
		})
	}

	if s.ConcentrationRisk > ConcentrationLimit {
		alerts = append(alerts, domain.RiskAlert{
			Level:             domain.AlertWarning,
			Type:              domain.AlertPortfolio,
			Metric:            "concentration_risk",
			Message:           fmt.Sprintf("Risk is concentrated in few positions (%.2f)", s.ConcentrationRisk),
			Value:             s.ConcentrationRisk,
			Threshold:         ConcentrationLimit,
			Timestamp:         now,
			RecommendedAction: "Diversify across more instruments",
		})
	}

	if s.CorrelationRisk > CorrelationLimit {
		alerts = append(alerts, domain.RiskAlert{
			Level:             domain.AlertWarning,
			Type:              domain.AlertPortfolio,
			Metric:            "correlation_risk",
			Message:           fmt.Sprintf("Open instruments are highly correlated (%.2f)", s.CorrelationRisk),
			Value:             s.CorrelationRisk,
			Threshold:         CorrelationLimit,
			Timestamp:         now,
			RecommendedAction: "Close or hedge correlated positions",
		})
	}

	if limit := DrawdownAlertFraction * p.MaxDrawdown; s.MaxDrawdownRisk > limit {
		alerts = append(alerts, domain.RiskAlert{
			Level:             domain.AlertWarning,
			Type:              domain.AlertPortfolio,
			Metric:            "max_drawdown_risk",
			Message:           fmt.Sprintf("Drawdown %.1f%% is approaching the %.1f%% limit", s.MaxDrawdownRisk*100, p.MaxDrawdown*100),
			Value:             s.MaxDrawdownRisk,
			Threshold:         limit,
			Timestamp:         now,
			RecommendedAction: "Pause trading and review open risk",
		})
	}

	posLimit := PositionRiskMultiple * p.MaxSinglePositionRisk
	for _, pos := range positions {
		if pos.RiskPercent > posLimit {
			alerts = append(alerts, domain.RiskAlert{
				Level:             domain.AlertWarning,
				Type:              domain.AlertPosition,
				Metric:            "position_risk",
				Symbol:            pos.Symbol,
				PositionID:        pos.ID,
				Message:           fmt.Sprintf("%s risks %.2f%% of the portfolio", pos.Symbol, pos.RiskPercent*100),
				Value:             pos.RiskPercent,
				Threshold:         posLimit,
				Timestamp:         now,
				RecommendedAction: "Tighten the stop loss or reduce the position",
			})
		}
		if pos.HoursOpen > StalePositionHours {
			alerts = append(alerts, domain.RiskAlert{
				Level:             domain.AlertInfo,
				Type:              domain.AlertPosition,
				Metric:            "time_in_position",
				Symbol:            pos.Symbol,
				PositionID:        pos.ID,
				Message:           fmt.Sprintf("%s has been open for %.0f hours", pos.Symbol, pos.HoursOpen),
				Value:             pos.HoursOpen,
				Threshold:         StalePositionHours,
				Timestamp:         now,
				RecommendedAction: "Review whether the trade thesis still holds",
			})
		}
	}
	return alerts
}

// Recommendations turns a snapshot into plain-language guidance. An empty
// book or a calm portfolio yields a single all-clear line.
func Recommendations(s domain.PortfolioRiskSnapshot, p domain.RiskParameters) []string {
	var out []string
	if s.RiskScore > CriticalScore {
		out = append(out, "Risk score is critical: halt new entries and cut exposure")
	} else if s.RiskScore > WarningScore {
		out = append(out, "Risk score is elevated: reduce size on new entries")
	}
	if p.MaxPortfolioRisk > 0 && s.TotalRisk > p.MaxPortfolioRisk {
		out = append(out, fmt.Sprintf("Total risk %.2f%% exceeds the %.2f%% limit: close or shrink positions", s.TotalRisk*100, p.MaxPortfolioRisk*100))
	}
	if s.ConcentrationRisk > ConcentrationLimit {
		out = append(out, "Spread risk across more instruments")
	}
	if s.CorrelationRisk > CorrelationLimit {
		out = append(out, "Positions move together: hedge or close correlated exposure")
	}
	if s.LeverageRisk > 0.8 {
		out = append(out, "Leverage is near its limit: reduce notional exposure")
	}
	if s.LiquidityRisk > 0.8 {
		out = append(out, "Average position size is large relative to market depth")
	}
	if s.TimeRisk > 0.5 {
		out = append(out, "Positions are being held long: review stale trades")
	}
	if p.MaxDrawdown > 0 && s.MaxDrawdownRisk > DrawdownAlertFraction*p.MaxDrawdown {
		out = append(out, "Drawdown is near its limit: pause trading")
	}
	if len(out) == 0 {
		out = append(out, "Portfolio risk is within limits")
	}
	return out
}
