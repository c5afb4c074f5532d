package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// RiskParameters converts the risk section to the engine's parameter set.
func (r RiskConfig) RiskParameters() domain.RiskParameters {
	return domain.RiskParameters{
		MaxPortfolioRisk:      r.MaxPortfolioRisk,
		MaxSinglePositionRisk: r.MaxSinglePositionRisk,
		MaxDrawdown:           r.MaxDrawdown,
		MaxLeverage:           r.MaxLeverage,
		RiskFreeRate:          r.RiskFreeRate,
		LookbackPeriodDays:    r.LookbackPeriodDays,
		PortfolioValue:        r.PortfolioValue,
		LiquidityScale:        r.LiquidityScale,
	}
}

// ExecutionSettings converts the execution section to gateway settings.
// AccountBalance is seeded from the configured portfolio value.
func (c *Config) ExecutionSettings() (domain.ExecutionSettings, error) {
	e := c.Execution
	hours, err := tradingHours(e.RestrictedHours, e.ClosedWeekdays)
	if err != nil {
		return domain.ExecutionSettings{}, err
	}
	sizes := make(map[string]float64, len(e.ContractSizes))
	for k, v := range e.ContractSizes {
		sizes[strings.ToUpper(k)] = v
	}
	return domain.ExecutionSettings{
		Timeout:           e.Timeout.Duration,
		RetryAttempts:     e.RetryAttempts,
		SlippageTolerance: e.SlippageTolerance,
		TradingHours:      hours,
		CommissionPerLot:  e.CommissionPerLot,
		ContractSize:      e.ContractSize,
		ContractSizes:     sizes,
		AccountLeverage:   e.AccountLeverage,
		AccountBalance:    c.Risk.PortfolioValue,
	}, nil
}

func tradingHours(ranges []HourRange, closed []string) (domain.TradingHours, error) {
	var h domain.TradingHours
	for _, r := range ranges {
		start, err := parseClock(r.Start)
		if err != nil {
			return h, err
		}
		end, err := parseClock(r.End)
		if err != nil {
			return h, err
		}
		h.Restricted = append(h.Restricted, domain.ClockRange{Start: start, End: end})
	}
	for _, d := range closed {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return h, fmt.Errorf("config: unknown weekday %q", d)
		}
		h.ClosedDays = append(h.ClosedDays, wd)
	}
	return h, nil
}

func parseClock(s string) (int, error) {
	if !clockPattern.MatchString(s) {
		return 0, fmt.Errorf("config: clock %q must use HH:MM", s)
	}
	hh, _ := strconv.Atoi(s[:2])
	mm, _ := strconv.Atoi(s[3:])
	return hh*60 + mm, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
