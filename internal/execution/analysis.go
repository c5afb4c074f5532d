package execution

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// fillCosts holds the derived money figures for one fill.
type fillCosts struct {
	Slippage         float64
	SlippageExceeded bool
	Commission       float64
	Impact           domain.RiskImpact
}

func computeFillCosts(order domain.Order, executed, volume float64, s domain.ExecutionSettings) fillCosts {
	var out fillCosts

	px := decimal.NewFromFloat(executed)
	vol := decimal.NewFromFloat(volume)

	if order.RequestedPrice > 0 {
		req := decimal.NewFromFloat(order.RequestedPrice)
		slip := px.Sub(req).Abs()
		out.Slippage = slip.InexactFloat64()
		if s.SlippageTolerance > 0 {
			out.SlippageExceeded = slip.Div(req).GreaterThan(decimal.NewFromFloat(s.SlippageTolerance))
		}
	}

	out.Commission = decimal.NewFromFloat(s.CommissionPerLot).Mul(vol).Round(2).InexactFloat64()

	contract := order.ContractSize
	if contract <= 0 {
		contract = s.ContractSizeFor(order.Symbol)
	}
	cs := decimal.NewFromFloat(contract)

	risk := decimal.Zero
	if order.StopLoss > 0 {
		risk = px.Sub(decimal.NewFromFloat(order.StopLoss)).Abs().Mul(vol).Mul(cs)
	}
	leverage := decimal.NewFromFloat(s.AccountLeverage)
	if !leverage.IsPositive() {
		leverage = decimal.NewFromInt(1)
	}
	margin := px.Mul(vol).Mul(cs).Div(leverage)

	impact := decimal.Zero
	if s.AccountBalance > 0 {
		impact = risk.Div(decimal.NewFromFloat(s.AccountBalance))
	}

	out.Impact = domain.RiskImpact{
		RiskAmount:      risk.Round(2).InexactFloat64(),
		MarginRequired:  margin.Round(2).InexactFloat64(),
		ImpactOnAccount: impact.Round(6).InexactFloat64(),
	}
	return out
}
