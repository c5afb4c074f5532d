package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// Z-scores and the tail multiplier of the parametric VaR estimate.
const (
	z95              = 1.645
	z99              = 2.326
	shortfallFactor  = 1.3
	hoursPerWeek     = 168
	weightTotal      = 0.25
	weightConc       = 0.15
	weightCorr       = 0.15
	weightLeverage   = 0.15
	weightLiquidity  = 0.10
	weightTime       = 0.10
	weightDrawdown   = 0.10
	defaultLiquidity = 10
)

// Aggregator turns the open book into a PortfolioRiskSnapshot and keeps the
// bounded snapshot history.
//
// VaR and expected shortfall are a normal approximation over the spread of
// per-position risk, not a historical simulation: they assume risk shares are
// roughly Gaussian and ignore fat tails and the correlation table.
type Aggregator struct {
	positions   *PositionStore
	correlation *CorrelationTracker
	paramsMu    sync.RWMutex
	params      domain.RiskParameters
	history     *History
	logger      *slog.Logger
	now         func() time.Time
}

// NewAggregator wires an Aggregator. history may be nil for a default ring.
func NewAggregator(positions *PositionStore, correlation *CorrelationTracker, params domain.RiskParameters, history *History, logger *slog.Logger) *Aggregator {
	if history == nil {
		history = NewHistory(DefaultHistoryCapacity)
	}
	return &Aggregator{
		positions:   positions,
		correlation: correlation,
		params:      params,
		history:     history,
		logger:      logger.With(slog.String("component", "risk_aggregator")),
		now:         time.Now,
	}
}

// Params returns the risk parameters in use.
func (a *Aggregator) Params() domain.RiskParameters {
	a.paramsMu.RLock()
	defer a.paramsMu.RUnlock()
	return a.params
}

// SetPortfolioValue replaces the account value used by later computations.
// Non-positive values are ignored.
func (a *Aggregator) SetPortfolioValue(v float64) {
	if !finite(v) || v <= 0 {
		return
	}
	a.paramsMu.Lock()
	a.params.PortfolioValue = v
	a.paramsMu.Unlock()
}

// History returns the snapshot ring.
func (a *Aggregator) History() *History { return a.history }

// Compute evaluates the current book, appends the snapshot to the history and
// returns it. It never fails: a sub-metric that errors, panics, or produces a
// non-finite value contributes 0.
func (a *Aggregator) Compute(ctx context.Context) domain.PortfolioRiskSnapshot {
	positions := a.positions.Snapshot()
	ts := a.now().UTC()

	return a.history.commit(func(series []float64) domain.PortfolioRiskSnapshot {
		if len(positions) == 0 {
			return domain.PortfolioRiskSnapshot{Timestamp: ts}
		}
		return a.evaluate(ctx, positions, series, ts)
	})
}

// Latest returns the last computed snapshot without recomputing.
func (a *Aggregator) Latest() (domain.PortfolioRiskSnapshot, bool) {
	return a.history.Latest()
}

func (a *Aggregator) evaluate(ctx context.Context, positions []domain.Position, series []float64, ts time.Time) domain.PortfolioRiskSnapshot {
	s := domain.PortfolioRiskSnapshot{Timestamp: ts, Positions: len(positions)}
	p := a.Params()

	s.TotalRisk = a.safe(ctx, "total_risk", func() (float64, error) {
		return TotalRisk(positions), nil
	})
	s.ConcentrationRisk = clamp(0, 1, a.safe(ctx, "concentration_risk", func() (float64, error) {
		return ConcentrationRisk(positions)
	}))
	s.CorrelationRisk = clamp(0, 1, a.safe(ctx, "correlation_risk", func() (float64, error) {
		return a.correlationRisk(positions), nil
	}))
	s.LeverageRisk = clamp(0, 1, a.safe(ctx, "leverage_risk", func() (float64, error) {
		return LeverageRisk(positions, p.PortfolioValue, p.MaxLeverage)
	}))
	s.LiquidityRisk = clamp(0, 1, a.safe(ctx, "liquidity_risk", func() (float64, error) {
		return LiquidityRisk(positions, p.LiquidityScale)
	}))
	s.TimeRisk = clamp(0, 1, a.safe(ctx, "time_risk", func() (float64, error) {
		return TimeRisk(positions), nil
	}))

	sigma := a.safe(ctx, "stddev", func() (float64, error) {
		if len(positions) == 1 {
			return s.TotalRisk, nil
		}
		return stdev(riskPercents(positions)), nil
	})
	s.VaR95 = math.Max(0, s.TotalRisk+z95*sigma)
	s.VaR99 = math.Max(0, s.TotalRisk+z99*sigma)
	s.ExpectedShortfall = s.VaR95 * shortfallFactor

	s.MaxDrawdownRisk = clamp(0, 1, a.safe(ctx, "max_drawdown_risk", func() (float64, error) {
		return MaxDrawdown(append(series, s.TotalRisk)), nil
	}))

	s.RiskScore = a.safe(ctx, "risk_score", func() (float64, error) {
		return RiskScore(s, p), nil
	})
	return s
}

// safe runs one sub-computation, substituting 0 on error, panic, or a
// non-finite result.
func (a *Aggregator) safe(ctx context.Context, metric string, fn func() (float64, error)) (v float64) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WarnContext(ctx, "risk_aggregator: metric panicked, using 0",
				slog.String("metric", metric),
				slog.String("panic", fmt.Sprint(r)),
			)
			v = 0
		}
	}()
	v, err := fn()
	if err != nil {
		a.logger.WarnContext(ctx, "risk_aggregator: metric degraded, using 0",
			slog.String("metric", metric),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if !finite(v) || v < 0 {
		return 0
	}
	return v
}

func (a *Aggregator) correlationRisk(positions []domain.Position) float64 {
	if a.correlation == nil {
		return 0
	}
	symbols := distinctSymbols(positions)
	if len(symbols) < 2 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			v, _ := a.correlation.Get(symbols[i], symbols[j])
			sum += math.Abs(v)
			pairs++
		}
	}
	return sum / float64(pairs)
}

// TotalRisk is the sum of riskPercent.
func TotalRisk(positions []domain.Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.RiskPercent
	}
	return total
}

// ConcentrationRisk is min(1, HHI × n) over risk shares. A book carrying no
// risk has no concentration.
func ConcentrationRisk(positions []domain.Position) (float64, error) {
	total := TotalRisk(positions)
	if len(positions) == 0 || total == 0 {
		return 0, nil
	}
	var hhi float64
	for _, p := range positions {
		share := p.RiskPercent / total
		hhi += share * share
	}
	return math.Min(1, hhi*float64(len(positions))), nil
}

// LeverageRisk is min(1, gross notional / portfolioValue / maxLeverage).
func LeverageRisk(positions []domain.Position, portfolioValue, maxLeverage float64) (float64, error) {
	if portfolioValue <= 0 || maxLeverage <= 0 {
		return 0, fmt.Errorf("leverage risk: portfolio value %v and max leverage %v must be positive", portfolioValue, maxLeverage)
	}
	var gross float64
	for _, p := range positions {
		gross += p.Notional()
	}
	return math.Min(1, gross/portfolioValue/maxLeverage), nil
}

// LiquidityRisk is min(1, mean |size| / scale).
func LiquidityRisk(positions []domain.Position, scale float64) (float64, error) {
	if scale <= 0 {
		scale = defaultLiquidity
	}
	if len(positions) == 0 {
		return 0, nil
	}
	sizes := make([]float64, len(positions))
	for i, p := range positions {
		sizes[i] = math.Abs(p.Size)
	}
	return math.Min(1, mean(sizes)/scale), nil
}

// TimeRisk is min(1, mean hours open / one week).
func TimeRisk(positions []domain.Position) float64 {
	if len(positions) == 0 {
		return 0
	}
	hours := make([]float64, len(positions))
	for i, p := range positions {
		hours[i] = p.HoursOpen
	}
	return math.Min(1, mean(hours)/hoursPerWeek)
}

// RiskScore weights the snapshot metrics into [0, 100]. The total-risk and
// drawdown terms are normalized by their configured limits and not clamped
// individually, so a book beyond its limit can dominate the score. A term
// whose limit is not positive contributes 0; the other terms still count.
func RiskScore(s domain.PortfolioRiskSnapshot, p domain.RiskParameters) float64 {
	score := weightTotal*normalized(s.TotalRisk, p.MaxPortfolioRisk) +
		weightConc*term(s.ConcentrationRisk) +
		weightCorr*term(s.CorrelationRisk) +
		weightLeverage*term(s.LeverageRisk) +
		weightLiquidity*term(s.LiquidityRisk) +
		weightTime*term(s.TimeRisk) +
		weightDrawdown*normalized(s.MaxDrawdownRisk, p.MaxDrawdown)
	return clamp(0, 100, score*100)
}

func normalized(v, limit float64) float64 {
	if !finite(limit) || limit <= 0 {
		return 0
	}
	return term(v / limit)
}

func term(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}

func riskPercents(positions []domain.Position) []float64 {
	out := make([]float64, len(positions))
	for i, p := range positions {
		out[i] = p.RiskPercent
	}
	return out
}
