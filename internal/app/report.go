package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// riskReport is what report mode prints.
type riskReport struct {
	Snapshot        domain.PortfolioRiskSnapshot
	Positions       []domain.Position
	Alerts          []domain.RiskAlert
	Recommendations []string
}

// renderReport writes the report as console tables.
func renderReport(w io.Writer, r riskReport) error {
	s := r.Snapshot
	fmt.Fprintf(w, "Portfolio risk at %s (%d positions)\n", s.Timestamp.UTC().Format("2006-01-02 15:04:05Z"), s.Positions)

	metrics := tablewriter.NewWriter(w)
	metrics.Header("Metric", "Value")
	for _, row := range [][2]string{
		{"Risk score", fmt.Sprintf("%.1f", s.RiskScore)},
		{"Total risk", pct(s.TotalRisk)},
		{"Concentration", fmt.Sprintf("%.3f", s.ConcentrationRisk)},
		{"Correlation", fmt.Sprintf("%.3f", s.CorrelationRisk)},
		{"Leverage", fmt.Sprintf("%.2fx", s.LeverageRisk)},
		{"Liquidity", fmt.Sprintf("%.3f", s.LiquidityRisk)},
		{"Time in position", fmt.Sprintf("%.1fh", s.TimeRisk)},
		{"VaR 95%", pct(s.VaR95)},
		{"VaR 99%", pct(s.VaR99)},
		{"Expected shortfall", pct(s.ExpectedShortfall)},
		{"Max drawdown", pct(s.MaxDrawdownRisk)},
	} {
		if err := metrics.Append(row[0], row[1]); err != nil {
			return fmt.Errorf("app: report: %w", err)
		}
	}
	if err := metrics.Render(); err != nil {
		return fmt.Errorf("app: report: %w", err)
	}

	if len(r.Positions) > 0 {
		fmt.Fprintln(w, "\nPositions")
		book := tablewriter.NewWriter(w)
		book.Header("ID", "Symbol", "Strategy", "Size", "Price", "Risk", "Hours")
		for _, p := range r.Positions {
			if err := book.Append(
				p.ID,
				p.Symbol,
				p.Strategy,
				strconv.FormatFloat(p.Size, 'f', -1, 64),
				strconv.FormatFloat(p.CurrentPrice, 'f', -1, 64),
				pct(p.RiskPercent),
				fmt.Sprintf("%.1f", p.HoursOpen),
			); err != nil {
				return fmt.Errorf("app: report: %w", err)
			}
		}
		if err := book.Render(); err != nil {
			return fmt.Errorf("app: report: %w", err)
		}
	}

	fmt.Fprintln(w, "\nAlerts")
	if len(r.Alerts) == 0 {
		fmt.Fprintln(w, "none")
	} else {
		alerts := tablewriter.NewWriter(w)
		alerts.Header("Level", "Metric", "Symbol", "Value", "Threshold", "Action")
		for _, a := range r.Alerts {
			if err := alerts.Append(
				string(a.Level),
				a.Metric,
				a.Symbol,
				fmt.Sprintf("%.4f", a.Value),
				fmt.Sprintf("%.4f", a.Threshold),
				a.RecommendedAction,
			); err != nil {
				return fmt.Errorf("app: report: %w", err)
			}
		}
		if err := alerts.Render(); err != nil {
			return fmt.Errorf("app: report: %w", err)
		}
	}

	fmt.Fprintln(w, "\nRecommendations")
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "- %s\n", rec)
	}
	return nil
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
