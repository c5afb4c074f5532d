package risk

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// DailyTimeframe is the bar timeframe correlations are sampled on.
const DailyTimeframe = "1d"

type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	x, y = strings.ToUpper(x), strings.ToUpper(y)
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// SymbolMapper maps a logical symbol to the name the market data source
// serves it under.
type SymbolMapper interface {
	BrokerSymbol(ctx context.Context, logical string) string
}

// CorrelationTracker keeps a symmetric table of pairwise correlations of
// daily log-returns. Each pair is stored once under its ordered key, so
// corr(A,B) and corr(B,A) always read the same entry.
type CorrelationTracker struct {
	market   domain.MarketDataProvider
	symbols  SymbolMapper
	lookback int
	logger   *slog.Logger

	mu    sync.RWMutex
	table map[pairKey]float64
}

// NewCorrelationTracker creates a tracker that samples lookbackDays of daily
// returns from market. A nil market leaves the table to be filled with Set.
func NewCorrelationTracker(market domain.MarketDataProvider, lookbackDays int, logger *slog.Logger) *CorrelationTracker {
	if lookbackDays < 2 {
		lookbackDays = 2
	}
	return &CorrelationTracker{
		market:   market,
		lookback: lookbackDays,
		logger:   logger.With(slog.String("component", "correlation")),
		table:    make(map[pairKey]float64),
	}
}

// WithSymbolMapper makes the tracker request bars under broker names. It must
// be called before the tracker is shared.
func (t *CorrelationTracker) WithSymbolMapper(m SymbolMapper) *CorrelationTracker {
	t.symbols = m
	return t
}

type coefficient struct {
	symbol string
	value  float64
}

// Update computes the correlation of symbol against every other symbol in
// book and stores the results. Pairs whose data cannot be fetched or aligned
// are stored as 0. Only cancellation of ctx is returned as an error.
func (t *CorrelationTracker) Update(ctx context.Context, symbol string, book []string) error {
	coefs, err := t.coefficients(ctx, symbol, book)
	if err != nil {
		return err
	}
	for _, c := range coefs {
		t.Set(symbol, c.symbol, c.value)
	}
	return nil
}

// Measure returns the mean correlation of symbol against the other members
// of book without storing anything. It is used for instruments that are not
// held yet.
func (t *CorrelationTracker) Measure(ctx context.Context, symbol string, book []string) (float64, error) {
	coefs, err := t.coefficients(ctx, symbol, book)
	if err != nil || len(coefs) == 0 {
		return 0, err
	}
	var sum float64
	for _, c := range coefs {
		sum += clamp(-1, 1, c.value)
	}
	return sum / float64(len(coefs)), nil
}

func (t *CorrelationTracker) coefficients(ctx context.Context, symbol string, book []string) ([]coefficient, error) {
	symbol = strings.ToUpper(symbol)
	others := make([]string, 0, len(book))
	seen := map[string]bool{symbol: true}
	for _, s := range book {
		s = strings.ToUpper(s)
		if !seen[s] {
			seen[s] = true
			others = append(others, s)
		}
	}
	if len(others) == 0 || t.market == nil {
		return nil, nil
	}

	base, err := t.fetch(ctx, symbol)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out := make([]coefficient, 0, len(others))
	for _, other := range others {
		coef := 0.0
		if err == nil {
			series, ferr := t.fetch(ctx, other)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if ferr == nil {
				coef = t.correlate(base, series)
			} else {
				t.logger.DebugContext(ctx, "correlation: series unavailable",
					slog.String("symbol", other),
					slog.String("error", ferr.Error()),
				)
			}
		}
		if !finite(coef) {
			coef = 0
		}
		out = append(out, coefficient{symbol: other, value: coef})
	}
	if err != nil {
		t.logger.WarnContext(ctx, "correlation: base series unavailable, pairs set neutral",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
	return out, nil
}

func (t *CorrelationTracker) fetch(ctx context.Context, symbol string) (domain.MarketData, error) {
	name := symbol
	if t.symbols != nil {
		if s := t.symbols.BrokerSymbol(ctx, symbol); s != "" {
			name = s
		}
	}
	// Extra bars absorb dates that one instrument trades and the other does not.
	count := t.lookback + 1 + t.lookback/2
	md, err := t.market.Bars(ctx, name, DailyTimeframe, count)
	if err != nil {
		return domain.MarketData{}, err
	}
	if len(md.Bars) < 3 {
		return domain.MarketData{}, domain.ErrDataUnavailable
	}
	return md, nil
}

// correlate aligns two daily series on their common dates and returns the
// Pearson coefficient of the last lookback log-returns, or 0.
func (t *CorrelationTracker) correlate(a, b domain.MarketData) float64 {
	xs, ys := alignCloses(a.Bars, b.Bars)
	rx, ry := LogReturns(xs), LogReturns(ys)
	if len(rx) != len(ry) {
		return 0
	}
	if len(rx) > t.lookback {
		rx = rx[len(rx)-t.lookback:]
		ry = ry[len(ry)-t.lookback:]
	}
	r, ok := Pearson(rx, ry)
	if !ok {
		return 0
	}
	return r
}

func alignCloses(a, b []domain.Bar) ([]float64, []float64) {
	byDay := make(map[time.Time]float64, len(b))
	for _, bar := range b {
		byDay[bar.Time.UTC().Truncate(24*time.Hour)] = bar.Close
	}
	var xs, ys []float64
	for _, bar := range a {
		if c, ok := byDay[bar.Time.UTC().Truncate(24*time.Hour)]; ok {
			xs = append(xs, bar.Close)
			ys = append(ys, c)
		}
	}
	return xs, ys
}

// Set stores a coefficient for the unordered pair. Self pairs are ignored and
// values are clamped to [-1, 1].
func (t *CorrelationTracker) Set(a, b string, coef float64) {
	k := newPairKey(a, b)
	if k.a == k.b {
		return
	}
	if !finite(coef) {
		coef = 0
	}
	t.mu.Lock()
	t.table[k] = clamp(-1, 1, coef)
	t.mu.Unlock()
}

// Get returns the coefficient for the pair and whether it is tracked.
func (t *CorrelationTracker) Get(a, b string) (float64, bool) {
	k := newPairKey(a, b)
	if k.a == k.b {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.table[k]
	return v, ok
}

// AverageCorrelation returns the mean coefficient of every tracked pair that
// includes symbol, or 0 when it has none.
func (t *CorrelationTracker) AverageCorrelation(symbol string) float64 {
	symbol = strings.ToUpper(symbol)
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sum float64
	var n int
	for k, v := range t.table {
		if k.a == symbol || k.b == symbol {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AverageAgainst returns the mean coefficient between symbol and the tracked
// members of book, or 0.
func (t *CorrelationTracker) AverageAgainst(symbol string, book []string) float64 {
	var sum float64
	var n int
	for _, other := range distinctUpper(book) {
		if v, ok := t.Get(symbol, other); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Forget drops every pair that includes symbol.
func (t *CorrelationTracker) Forget(symbol string) {
	symbol = strings.ToUpper(symbol)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.table {
		if k.a == symbol || k.b == symbol {
			delete(t.table, k)
		}
	}
}

// Retain drops every pair that has a symbol outside held and returns the
// number of pairs removed.
func (t *CorrelationTracker) Retain(held []string) int {
	keep := make(map[string]bool, len(held))
	for _, s := range held {
		keep[strings.ToUpper(s)] = true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.table {
		if !keep[k.a] || !keep[k.b] {
			delete(t.table, k)
			n++
		}
	}
	return n
}

// Pairs returns the table sorted by pair.
func (t *CorrelationTracker) Pairs() []domain.CorrelationEntry {
	t.mu.RLock()
	out := make([]domain.CorrelationEntry, 0, len(t.table))
	for k, v := range t.table {
		out = append(out, domain.CorrelationEntry{SymbolA: k.a, SymbolB: k.b, Coefficient: v})
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SymbolA != out[j].SymbolA {
			return out[i].SymbolA < out[j].SymbolA
		}
		return out[i].SymbolB < out[j].SymbolB
	})
	return out
}

func distinctUpper(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
