package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// Sizing thresholds.
const (
	BaselineVolatility = 0.20
	HighRegimeVol      = 0.40
	ModerateRegimeVol  = 0.25
	FallbackFraction   = 0.5
)

// ScoreSource computes a fresh portfolio snapshot.
type ScoreSource interface {
	Compute(ctx context.Context) domain.PortfolioRiskSnapshot
}

// BookReader returns a copy of the open book.
type BookReader interface {
	Snapshot() []domain.Position
}

// CorrelationSource measures a symbol's correlation with the book.
type CorrelationSource interface {
	Measure(ctx context.Context, symbol string, book []string) (float64, error)
}

// Sizer recommends trade sizes by composing bounded adjustments. It never
// fails: any internal error yields half the base size.
type Sizer struct {
	scores ScoreSource
	book   BookReader
	corr   CorrelationSource
	params domain.RiskParameters
	logger *slog.Logger
}

// NewSizer wires a Sizer.
func NewSizer(scores ScoreSource, book BookReader, corr CorrelationSource, params domain.RiskParameters, logger *slog.Logger) *Sizer {
	return &Sizer{
		scores: scores,
		book:   book,
		corr:   corr,
		params: params,
		logger: logger.With(slog.String("component", "position_sizer")),
	}
}

// ClassifyRegime maps annualized volatility to a market regime.
func ClassifyRegime(vol float64) domain.MarketRegime {
	switch {
	case vol > HighRegimeVol:
		return domain.RegimeHigh
	case vol > ModerateRegimeVol:
		return domain.RegimeModerate
	default:
		return domain.RegimeLow
	}
}

// Size returns the sizing decision for req.
func (s *Sizer) Size(ctx context.Context, req domain.SizingRequest) (res domain.TradeSizingResult) {
	defer func() {
		if r := recover(); r != nil {
			res = s.fallback(ctx, req, fmt.Errorf("panic: %v", r))
		}
	}()
	res, err := s.size(ctx, req)
	if err != nil {
		return s.fallback(ctx, req, err)
	}
	return res
}

func (s *Sizer) size(ctx context.Context, req domain.SizingRequest) (domain.TradeSizingResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return domain.TradeSizingResult{}, errors.New("symbol is required")
	}
	if !finite(req.BaseSize) || req.BaseSize <= 0 {
		return domain.TradeSizingResult{}, fmt.Errorf("base size must be positive, got %v", req.BaseSize)
	}
	if req.Market == nil {
		return domain.TradeSizingResult{}, fmt.Errorf("no market data for %s: %w", symbol, domain.ErrDataUnavailable)
	}
	pv := req.PortfolioValue
	if pv <= 0 {
		pv = s.params.PortfolioValue
	}
	if !finite(pv) || pv <= 0 {
		return domain.TradeSizingResult{}, errors.New("portfolio value must be positive")
	}
	dist := math.Abs(req.EntryPrice - req.StopLoss)
	if !finite(dist) || dist == 0 {
		return domain.TradeSizingResult{}, errors.New("stop distance is zero")
	}

	res := domain.TradeSizingResult{
		Symbol:      symbol,
		BaseSize:    req.BaseSize,
		Adjustments: domain.NeutralAdjustments(),
	}
	adj := &res.Adjustments

	// 1. Portfolio risk score.
	snap := s.scores.Compute(ctx)
	res.RiskScore = snap.RiskScore
	switch {
	case snap.RiskScore > 70:
		adj.Risk = 0.5
		res.Reasoning = append(res.Reasoning, fmt.Sprintf("Risk score %.1f above 70: size halved", snap.RiskScore))
	case snap.RiskScore > 50:
		adj.Risk = 0.75
		res.Reasoning = append(res.Reasoning, fmt.Sprintf("Risk score %.1f above 50: size reduced to 75%%", snap.RiskScore))
	default:
		res.Reasoning = append(res.Reasoning, fmt.Sprintf("Risk score %.1f within limits: no risk reduction", snap.RiskScore))
	}

	// 2. Instrument volatility against the baseline.
	vol, err := AnnualizedVolatility(*req.Market)
	volNote := ""
	if err != nil {
		vol = DefaultVolatility
		volNote = " (series too short, default used)"
	}
	res.Volatility = vol
	ratio := vol / BaselineVolatility
	switch {
	case ratio > 1.5:
		adj.Volatility = 0.6
	case ratio > 1.2:
		adj.Volatility = 0.8
	case ratio < 0.7:
		adj.Volatility = 1.2
	}
	res.Reasoning = append(res.Reasoning, fmt.Sprintf("Volatility %.1f%% is %.2fx baseline%s: factor %.2f", vol*100, ratio, volNote, adj.Volatility))

	// 3. Correlation with the rest of the book.
	positions := s.book.Snapshot()
	others := make([]string, 0, len(positions))
	for _, sym := range distinctSymbols(positions) {
		if sym != symbol {
			others = append(others, sym)
		}
	}
	if len(others) == 0 {
		res.Reasoning = append(res.Reasoning, "No other open instruments: no correlation adjustment")
	} else {
		avg, err := s.corr.Measure(ctx, symbol, others)
		if err != nil {
			return domain.TradeSizingResult{}, fmt.Errorf("correlation: %w", err)
		}
		switch {
		case avg > 0.7:
			adj.Correlation = 0.7
		case avg < 0.3:
			adj.Correlation = 1.1
		}
		res.Reasoning = append(res.Reasoning, fmt.Sprintf("Average correlation with book %.2f: factor %.2f", avg, adj.Correlation))
	}

	// 4. Market regime.
	res.Regime = ClassifyRegime(vol)
	switch res.Regime {
	case domain.RegimeHigh:
		adj.MarketRegime = 0.6
	case domain.RegimeModerate:
		adj.MarketRegime = 0.8
	}
	res.Reasoning = append(res.Reasoning, fmt.Sprintf("%s volatility regime: factor %.2f", res.Regime, adj.MarketRegime))

	// 5. Concentration in the same symbol or strategy.
	var sameSymbol, sameStrategy int
	for _, p := range positions {
		if p.Symbol == symbol {
			sameSymbol++
		}
		if req.Strategy != "" && p.Strategy == req.Strategy {
			sameStrategy++
		}
	}
	switch {
	case sameSymbol > 0:
		adj.Concentration = 0.5
		res.Reasoning = append(res.Reasoning, fmt.Sprintf("%d open position(s) already on %s: size halved", sameSymbol, symbol))
	case sameStrategy >= 3:
		adj.Concentration = 0.7
		res.Reasoning = append(res.Reasoning, fmt.Sprintf("%d open positions share strategy %q: factor 0.70", sameStrategy, req.Strategy))
	default:
		res.Reasoning = append(res.Reasoning, "No concentration limit applied")
	}

	res.RecommendedSize = req.BaseSize * adj.Product()
	res.FinalSize = res.RecommendedSize

	// Hard cap on the fraction of the portfolio at risk.
	if maxRisk := s.params.MaxSinglePositionRisk; maxRisk > 0 && dist*res.RecommendedSize/pv > maxRisk {
		res.FinalSize = maxRisk * pv / dist
		res.Capped = true
		res.Reasoning = append(res.Reasoning, fmt.Sprintf("Capped to %.4f so risk stays within %.2f%% of portfolio", res.FinalSize, maxRisk*100))
	}

	if !finite(res.FinalSize) || res.FinalSize < 0 {
		return domain.TradeSizingResult{}, fmt.Errorf("final size %v is not a valid size", res.FinalSize)
	}
	return res, nil
}

func (s *Sizer) fallback(ctx context.Context, req domain.SizingRequest, cause error) domain.TradeSizingResult {
	s.logger.WarnContext(ctx, "position_sizer: sizing failed, using fallback",
		slog.String("symbol", req.Symbol),
		slog.String("error", cause.Error()),
	)
	size := 0.0
	if finite(req.BaseSize) && req.BaseSize > 0 {
		size = req.BaseSize * FallbackFraction
	}
	return domain.TradeSizingResult{
		Symbol:          strings.ToUpper(req.Symbol),
		BaseSize:        req.BaseSize,
		RecommendedSize: size,
		FinalSize:       size,
		Adjustments:     domain.NeutralAdjustments(),
		Regime:          domain.RegimeLow,
		Volatility:      DefaultVolatility,
		Fallback:        true,
		Reasoning:       []string{fmt.Sprintf("Sizing fell back to 50%% of base size: %v", cause)},
	}
}
