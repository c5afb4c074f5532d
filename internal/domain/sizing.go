package domain

// SizingRequest carries the inputs of one position sizing decision.
type SizingRequest struct {
	Symbol         string  `json:"symbol"`
	Strategy       string  `json:"strategy"`
	BaseSize       float64 `json:"base_size"`
	EntryPrice     float64 `json:"entry_price"`
	StopLoss       float64 `json:"stop_loss"`
	PortfolioValue float64 `json:"portfolio_value"`
	// Market is the bar series used for volatility. Nil means no market data
	// was supplied at all.
	Market *MarketData `json:"-"`
}

// SizingAdjustments are the multiplicative factors applied to the base size.
type SizingAdjustments struct {
	Risk          float64 `json:"risk_adjustment"`
	Volatility    float64 `json:"volatility_adjustment"`
	Correlation   float64 `json:"correlation_adjustment"`
	MarketRegime  float64 `json:"market_regime_adjustment"`
	Concentration float64 `json:"concentration_limit"`
}

// NeutralAdjustments returns every factor set to 1.
func NeutralAdjustments() SizingAdjustments {
	return SizingAdjustments{Risk: 1, Volatility: 1, Correlation: 1, MarketRegime: 1, Concentration: 1}
}

// Product multiplies all factors together.
func (a SizingAdjustments) Product() float64 {
	return a.Risk * a.Volatility * a.Correlation * a.MarketRegime * a.Concentration
}

// TradeSizingResult is the outcome of a sizing decision with its audit trail.
type TradeSizingResult struct {
	Symbol          string            `json:"symbol"`
	BaseSize        float64           `json:"base_size"`
	RecommendedSize float64           `json:"recommended_size"`
	FinalSize       float64           `json:"final_size"`
	Adjustments     SizingAdjustments `json:"adjustments"`
	Volatility      float64           `json:"volatility"`
	Regime          MarketRegime      `json:"market_regime"`
	RiskScore       float64           `json:"risk_score"`
	Capped          bool              `json:"capped"`
	Fallback        bool              `json:"fallback"`
	Reasoning       []string          `json:"reasoning"`
}
