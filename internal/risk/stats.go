package risk

import (
	"math"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// TradingDaysPerYear annualizes daily return volatility.
const TradingDaysPerYear = 252

// DefaultVolatility is substituted when a series is too short to measure.
const DefaultVolatility = 0.20

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the population standard deviation. Fewer than two points yield 0.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var variance float64
	for _, x := range xs {
		d := x - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(xs)))
}

// LogReturns converts a price series to ln(p[i]/p[i-1]). Non-positive prices
// break the chain and are skipped together with the following return.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// Pearson returns the correlation coefficient of two equally long series.
// It returns ok=false when the series are shorter than two points or either
// has zero variance.
func Pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0, false
	}
	mx, my := mean(xs), mean(ys)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0, false
	}
	r := cov / math.Sqrt(vx*vy)
	// Clamp rounding noise.
	return math.Max(-1, math.Min(1, r)), true
}

// AnnualizedVolatility returns stdev(log-returns) × sqrt(252) for the bar
// series. Series with fewer than three bars return ErrDataUnavailable.
func AnnualizedVolatility(md domain.MarketData) (float64, error) {
	rets := LogReturns(md.Closes())
	if len(rets) < 2 {
		return 0, domain.ErrDataUnavailable
	}
	return stdev(rets) * math.Sqrt(TradingDaysPerYear), nil
}

// MaxDrawdown returns the largest (peak − value)/peak over the series in
// order. It is 0 for fewer than two points or a series that never has a
// positive peak.
func MaxDrawdown(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	peak := series[0]
	var worst float64
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
