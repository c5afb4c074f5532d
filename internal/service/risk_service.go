package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/metrics"
	"github.com/alanyoungcy/riskbridge/internal/notify"
	"github.com/alanyoungcy/riskbridge/internal/risk"
)

// Executor submits orders. *execution.Gateway implements it.
type Executor interface {
	Execute(ctx context.Context, order domain.Order) domain.ExecutionResult
}

// AccountSource reports the broker account state.
type AccountSource interface {
	Status(ctx context.Context) (domain.AccountStatus, error)
}

// RiskDeps are the collaborators of a RiskService. Only Aggregator, Sizer and
// Positions are required.
type RiskDeps struct {
	Aggregator *risk.Aggregator
	Sizer      *risk.Sizer
	Positions  *PositionService
	// Correlation, when set, is pruned to the held symbols before each
	// evaluation.
	Correlation *risk.CorrelationTracker
	Executor    Executor
	Market      domain.MarketDataProvider
	// Symbols maps logical symbols to broker names for market data requests.
	Symbols risk.SymbolMapper
	// Account, when set, supplies the broker balance as portfolio value.
	Account    AccountSource
	Snapshots  domain.RiskSnapshotStore
	Executions domain.ExecutionStore
	Bus        domain.SignalBus
	Audit      domain.AuditStore
	Notifier   *notify.Notifier
}

// RiskService is the orchestration surface of the engine: sizing, portfolio
// evaluation, alerting, recommendations, book maintenance and execution.
type RiskService struct {
	deps   RiskDeps
	logger *slog.Logger
	now    func() time.Time
}

// NewRiskService creates a RiskService.
func NewRiskService(deps RiskDeps, logger *slog.Logger) *RiskService {
	return &RiskService{
		deps:   deps,
		logger: logger.With(slog.String("component", "risk_service")),
		now:    time.Now,
	}
}

// Params returns the active risk parameters.
func (s *RiskService) Params() domain.RiskParameters {
	return s.deps.Aggregator.Params()
}

// Positions returns the position service.
func (s *RiskService) Positions() *PositionService {
	return s.deps.Positions
}

// OpenPositions returns a copy of the open book.
func (s *RiskService) OpenPositions() []domain.Position {
	return s.deps.Positions.Book()
}

// History returns the retained snapshots, oldest first.
func (s *RiskService) History() []domain.PortfolioRiskSnapshot {
	return s.deps.Aggregator.History().Snapshots()
}

// ExecutionEnabled reports whether orders can be submitted.
func (s *RiskService) ExecutionEnabled() bool {
	return s.deps.Executor != nil
}

// CalculateDynamicPositionSize sizes a prospective trade. Bars are fetched
// when the request carries none; an unavailable series falls back to the
// default volatility. It never fails.
func (s *RiskService) CalculateDynamicPositionSize(ctx context.Context, req domain.SizingRequest) domain.TradeSizingResult {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Market == nil && s.deps.Market != nil && req.Symbol != "" {
		name := req.Symbol
		if s.deps.Symbols != nil {
			if n := s.deps.Symbols.BrokerSymbol(ctx, req.Symbol); n != "" {
				name = n
			}
		}
		count := s.Params().LookbackPeriodDays + 1
		md, err := s.deps.Market.Bars(ctx, name, risk.DailyTimeframe, count)
		if err != nil {
			s.logger.WarnContext(ctx, "risk_service: bars unavailable, default volatility applies",
				slog.String("symbol", req.Symbol),
				slog.String("broker_symbol", name),
				slog.String("error", err.Error()),
			)
			md = domain.MarketData{Symbol: req.Symbol, Timeframe: risk.DailyTimeframe}
		}
		req.Market = &md
	}
	if req.PortfolioValue <= 0 {
		req.PortfolioValue = s.portfolioValue(ctx)
	}

	res := s.deps.Sizer.Size(ctx, req)
	outcome := "ok"
	switch {
	case res.Fallback:
		outcome = "fallback"
	case res.Capped:
		outcome = "capped"
	}
	metrics.SizingRequests.WithLabelValues(outcome).Inc()
	return res
}

// CalculatePortfolioRisk evaluates the book, records the snapshot and
// publishes it. It never fails.
func (s *RiskService) CalculatePortfolioRisk(ctx context.Context) domain.PortfolioRiskSnapshot {
	s.portfolioValue(ctx)
	s.deps.Positions.book.RefreshAges(s.now())
	if s.deps.Correlation != nil {
		s.deps.Correlation.Retain(s.deps.Positions.book.Symbols())
	}

	snap := s.deps.Aggregator.Compute(ctx)
	metrics.RiskScore.Set(snap.RiskScore)
	metrics.TotalRisk.Set(snap.TotalRisk)
	metrics.Drawdown.Set(snap.MaxDrawdownRisk)
	metrics.OpenPositions.Set(float64(snap.Positions))

	if s.deps.Snapshots != nil {
		if err := s.deps.Snapshots.Insert(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "risk_service: persist snapshot failed", slog.String("error", err.Error()))
		}
	}
	s.publish(ctx, domain.ChannelRisk, snap)
	s.logger.DebugContext(ctx, "risk_service: portfolio evaluated",
		slog.Int("positions", snap.Positions),
		slog.Float64("risk_score", snap.RiskScore),
		slog.Float64("total_risk", snap.TotalRisk),
	)
	return snap
}

// LatestSnapshot returns the last snapshot, computing one if none exists.
func (s *RiskService) LatestSnapshot(ctx context.Context) domain.PortfolioRiskSnapshot {
	if snap, ok := s.deps.Aggregator.Latest(); ok {
		return snap
	}
	return s.CalculatePortfolioRisk(ctx)
}

// GenerateRiskAlerts evaluates thresholds against snap and the current book.
// Every alert is published; those at or above the notifier's level are sent
// to the chat channels.
func (s *RiskService) GenerateRiskAlerts(ctx context.Context, snap domain.PortfolioRiskSnapshot) []domain.RiskAlert {
	alerts := risk.GenerateAlerts(snap, s.deps.Positions.Book(), s.Params(), s.now())
	for _, a := range alerts {
		metrics.AlertsRaised.WithLabelValues(string(a.Level), a.Metric).Inc()
		s.publish(ctx, domain.ChannelAlerts, a)
		if err := s.deps.Notifier.NotifyAlert(ctx, a); err != nil {
			s.logger.WarnContext(ctx, "risk_service: alert notification failed",
				slog.String("metric", a.Metric),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(alerts) > 0 {
		s.logger.InfoContext(ctx, "risk_service: alerts raised", slog.Int("count", len(alerts)))
	}
	return alerts
}

// CurrentAlerts evaluates thresholds against the latest snapshot without
// publishing anything.
func (s *RiskService) CurrentAlerts(ctx context.Context) []domain.RiskAlert {
	return risk.GenerateAlerts(s.LatestSnapshot(ctx), s.deps.Positions.Book(), s.Params(), s.now())
}

// GetRiskRecommendations returns guidance for the latest snapshot.
func (s *RiskService) GetRiskRecommendations(ctx context.Context) []string {
	return risk.Recommendations(s.LatestSnapshot(ctx), s.Params())
}

// UpdatePosition adds or replaces a position in the book.
func (s *RiskService) UpdatePosition(ctx context.Context, pos domain.Position) (domain.Position, error) {
	return s.deps.Positions.Upsert(ctx, pos)
}

// RemovePosition drops a position from the book.
func (s *RiskService) RemovePosition(ctx context.Context, id string) (domain.Position, error) {
	return s.deps.Positions.Remove(ctx, id)
}

// ClosePosition closes a position at the broker.
func (s *RiskService) ClosePosition(ctx context.Context, id string) (domain.CloseResult, error) {
	return s.deps.Positions.Close(ctx, id)
}

// SyncPositions reconciles the book with the broker.
func (s *RiskService) SyncPositions(ctx context.Context) (domain.SyncResult, error) {
	return s.deps.Positions.Sync(ctx)
}

// ResolveAndExecute submits order through the gateway. A fill opens a
// position. The result is persisted, published and notified either way.
func (s *RiskService) ResolveAndExecute(ctx context.Context, order domain.Order) domain.ExecutionResult {
	if s.deps.Executor == nil {
		return domain.ExecutionResult{
			CorrelationID: order.CorrelationID,
			Symbol:        strings.ToUpper(order.Symbol),
			Action:        order.Action,
			Volume:        order.Volume,
			Timestamp:     s.now().UTC(),
			Error: &domain.ExecutionError{
				Code:    domain.CodeConfigMissing,
				Message: "execution is disabled",
			},
		}
	}

	res := s.deps.Executor.Execute(ctx, order)

	if s.deps.Executions != nil && recordable(res) {
		if err := s.deps.Executions.Insert(ctx, res); err != nil {
			s.logger.WarnContext(ctx, "risk_service: persist execution failed",
				slog.String("correlation_id", res.CorrelationID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.publish(ctx, domain.ChannelExecutions, res)

	if res.Success {
		order.CorrelationID = res.CorrelationID
		if _, err := s.deps.Positions.OpenFromExecution(ctx, order, res); err != nil {
			s.logger.ErrorContext(ctx, "risk_service: filled order not booked",
				slog.String("correlation_id", res.CorrelationID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.deps.Notifier.NotifyExecution(ctx, res); err != nil {
		s.logger.WarnContext(ctx, "risk_service: execution notification failed", slog.String("error", err.Error()))
	}
	if s.deps.Audit != nil {
		detail := map[string]any{
			"correlation_id": res.CorrelationID,
			"symbol":         res.Symbol,
			"broker_symbol":  res.BrokerSymbol,
			"action":         string(res.Action),
			"volume":         res.Volume,
			"success":        res.Success,
			"attempts":       res.Attempts,
		}
		if res.Error != nil {
			detail["error_code"] = res.Error.Code
		}
		if err := s.deps.Audit.Log(ctx, "order.executed", detail); err != nil {
			s.logger.WarnContext(ctx, "risk_service: audit log failed", slog.String("error", err.Error()))
		}
	}
	return res
}

// portfolioValue returns the account value to size against. With an account
// source the broker balance replaces the configured value when available.
func (s *RiskService) portfolioValue(ctx context.Context) float64 {
	if s.deps.Account == nil {
		return s.Params().PortfolioValue
	}
	st, err := s.deps.Account.Status(ctx)
	if err != nil || st.Balance <= 0 {
		if err != nil {
			s.logger.DebugContext(ctx, "risk_service: account status unavailable", slog.String("error", err.Error()))
		}
		return s.Params().PortfolioValue
	}
	s.deps.Aggregator.SetPortfolioValue(st.Balance)
	return st.Balance
}

func (s *RiskService) publish(ctx context.Context, channel string, v any) {
	if s.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.WarnContext(ctx, "risk_service: marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "risk_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// recordable reports whether res describes a submission of its own. Results
// refused because the correlation id was already used must not overwrite the
// stored record of that id.
func recordable(res domain.ExecutionResult) bool {
	if res.Error == nil {
		return true
	}
	return res.Error.Code != domain.CodeDuplicateOrder && res.Error.Code != domain.CodeOrderInFlight
}
