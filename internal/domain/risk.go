package domain

import "time"

// RiskParameters are the portfolio limits supplied by configuration. A value
// is treated as immutable for the duration of one computation.
type RiskParameters struct {
	MaxPortfolioRisk      float64
	MaxSinglePositionRisk float64
	MaxDrawdown           float64
	MaxLeverage           float64
	RiskFreeRate          float64
	LookbackPeriodDays    int
	PortfolioValue        float64
	LiquidityScale        float64
}

// PortfolioRiskSnapshot is a point-in-time portfolio risk evaluation.
type PortfolioRiskSnapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	Positions         int       `json:"positions"`
	TotalRisk         float64   `json:"total_risk"`
	ConcentrationRisk float64   `json:"concentration_risk"`
	CorrelationRisk   float64   `json:"correlation_risk"`
	LeverageRisk      float64   `json:"leverage_risk"`
	LiquidityRisk     float64   `json:"liquidity_risk"`
	TimeRisk          float64   `json:"time_risk"`
	VaR95             float64   `json:"var_95"`
	VaR99             float64   `json:"var_99"`
	ExpectedShortfall float64   `json:"expected_shortfall"`
	MaxDrawdownRisk   float64   `json:"max_drawdown_risk"`
	RiskScore         float64   `json:"risk_score"`
}

// AlertLevel is the severity of a RiskAlert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Rank orders levels by severity so callers can filter with >=.
func (l AlertLevel) Rank() int {
	switch l {
	case AlertCritical:
		return 3
	case AlertWarning:
		return 2
	case AlertInfo:
		return 1
	default:
		return 0
	}
}

// AlertType distinguishes portfolio-wide alerts from per-position alerts.
type AlertType string

const (
	AlertPortfolio AlertType = "PORTFOLIO"
	AlertPosition  AlertType = "POSITION"
)

// RiskAlert is a single threshold breach.
type RiskAlert struct {
	Level             AlertLevel `json:"level"`
	Type              AlertType  `json:"type"`
	Metric            string     `json:"metric"`
	Symbol            string     `json:"symbol,omitempty"`
	PositionID        string     `json:"position_id,omitempty"`
	Message           string     `json:"message"`
	Value             float64    `json:"value"`
	Threshold         float64    `json:"threshold"`
	Timestamp         time.Time  `json:"timestamp"`
	RecommendedAction string     `json:"recommended_action"`
}

// MarketRegime is a volatility-derived stress classification.
type MarketRegime string

const (
	RegimeLow      MarketRegime = "LOW"
	RegimeModerate MarketRegime = "MODERATE"
	RegimeHigh     MarketRegime = "HIGH"
)

// CorrelationEntry is one unordered pair of the correlation table.
type CorrelationEntry struct {
	SymbolA     string  `json:"symbol_a"`
	SymbolB     string  `json:"symbol_b"`
	Coefficient float64 `json:"coefficient"`
}
