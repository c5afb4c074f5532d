// Package execution submits market orders to the broker bridge with symbol
// resolution, trading-hours gating, deduplication and bounded retries.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/metrics"
	"github.com/alanyoungcy/riskbridge/internal/platform/bridge"
)

// Broker is the order transport. *bridge.Client implements it.
type Broker interface {
	Execute(ctx context.Context, req bridge.ExecuteRequest) (bridge.ExecuteResponse, error)
	Quote(ctx context.Context, symbol string) (bid, ask float64, err error)
}

// Resolver maps logical symbols to broker names.
type Resolver interface {
	Resolve(ctx context.Context, logical string) (domain.SymbolResolution, error)
	Invalidate(ctx context.Context, logical string)
}

// AccountSource reports the broker account state.
type AccountSource interface {
	Status(ctx context.Context) (domain.AccountStatus, error)
}

// DefaultAttemptTimeout bounds a single submission when settings leave it zero.
const DefaultAttemptTimeout = 15 * time.Second

// CommentPrefix tags every order comment so fills can be matched to their
// correlation id.
const CommentPrefix = "rb:"

// maxCommentLen is the MT5 order comment limit.
const maxCommentLen = 31

// OrderComment is the broker comment carrying a correlation id.
func OrderComment(correlationID string) string {
	c := CommentPrefix + correlationID
	if len(c) > maxCommentLen {
		c = c[:maxCommentLen]
	}
	return c
}

// Gateway executes orders. Settings may be swapped at runtime; each
// execution reads them once.
type Gateway struct {
	broker   Broker
	resolver Resolver
	policy   RetryPolicy
	settings atomic.Pointer[domain.ExecutionSettings]
	dedup    *Dedup
	locks    domain.LockManager
	lockTTL  time.Duration
	account  AccountSource
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLocks guards each correlation id with a distributed lock.
func WithLocks(lm domain.LockManager, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.locks = lm
		g.lockTTL = ttl
	}
}

// WithDedup replaces the default ten-minute fill memory.
func WithDedup(d *Dedup) Option {
	return func(g *Gateway) { g.dedup = d }
}

// WithAccount makes fill analysis measure risk against the live broker
// balance instead of the configured one.
func WithAccount(src AccountSource) Option {
	return func(g *Gateway) { g.account = src }
}

// NewGateway creates a Gateway. A nil settings pointer leaves the gateway
// unconfigured; every execution then fails with CONFIG_MISSING.
func NewGateway(broker Broker, resolver Resolver, settings *domain.ExecutionSettings, policy RetryPolicy, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		broker:   broker,
		resolver: resolver,
		policy:   policy,
		dedup:    NewDedup(10 * time.Minute),
		lockTTL:  time.Minute,
		logger:   logger.With(slog.String("component", "execution_gateway")),
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	g.SetSettings(settings)
	return g
}

// SetSettings installs a copy of s. nil clears the configuration.
func (g *Gateway) SetSettings(s *domain.ExecutionSettings) {
	if s == nil {
		g.settings.Store(nil)
		return
	}
	cp := *s
	g.settings.Store(&cp)
}

// Settings returns the active settings, or nil when unconfigured.
func (g *Gateway) Settings() *domain.ExecutionSettings {
	return g.settings.Load()
}

// Dedup exposes the correlation id tracker for periodic cleanup.
func (g *Gateway) Dedup() *Dedup { return g.dedup }

// Execute runs one order through the gateway. It never returns an error;
// failures are reported in the result.
func (g *Gateway) Execute(ctx context.Context, order domain.Order) (res domain.ExecutionResult) {
	start := g.now()
	if order.CorrelationID == "" {
		order.CorrelationID = uuid.NewString()
	}
	order.Symbol = strings.ToUpper(strings.TrimSpace(order.Symbol))

	res = domain.ExecutionResult{
		CorrelationID:  order.CorrelationID,
		Symbol:         order.Symbol,
		Action:         order.Action,
		Volume:         order.Volume,
		RequestedPrice: order.RequestedPrice,
		Timestamp:      start.UTC(),
	}
	log := g.logger.With(
		slog.String("correlation_id", order.CorrelationID),
		slog.String("symbol", order.Symbol),
		slog.String("action", string(order.Action)),
	)
	metrics.OrdersAttempted.Inc()

	defer func() {
		res.ExecutionTime = g.now().Sub(start)
		metrics.ExecutionLatency.Observe(res.ExecutionTime.Seconds())
		if res.Success {
			metrics.OrdersPlaced.Inc()
		} else if res.Error != nil {
			metrics.OrdersFailed.WithLabelValues(res.Error.Code).Inc()
		}
	}()

	settings := g.settings.Load()
	if settings == nil {
		res.Error = &domain.ExecutionError{Code: domain.CodeConfigMissing, Message: "execution settings not configured"}
		log.Error("execution_gateway: refused order", slog.String("error", res.Error.Error()))
		return res
	}
	if !settings.TradingHours.Allows(start) {
		res.Error = &domain.ExecutionError{
			Code:      domain.CodeMarketClosed,
			Message:   fmt.Sprintf("outside trading hours at %s UTC", start.UTC().Format("Mon 15:04")),
			Retryable: true,
		}
		log.Warn("execution_gateway: market closed")
		return res
	}
	if err := validateOrder(order); err != nil {
		res.Error = &domain.ExecutionError{Code: domain.CodeInvalidOrder, Message: err.Error()}
		log.Warn("execution_gateway: invalid order", slog.String("error", err.Error()))
		return res
	}

	dup, busy := g.dedup.Begin(order.CorrelationID)
	switch {
	case dup:
		res.Error = &domain.ExecutionError{Code: domain.CodeDuplicateOrder, Message: "correlation id already filled"}
		log.Warn("execution_gateway: duplicate order suppressed")
		return res
	case busy:
		res.Error = &domain.ExecutionError{Code: domain.CodeOrderInFlight, Message: "correlation id already in flight", Retryable: true}
		return res
	}
	defer func() { g.dedup.Finish(order.CorrelationID, res.Success) }()

	if g.locks != nil {
		unlock, err := g.locks.Acquire(ctx, "order:"+order.CorrelationID, g.lockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			res.Error = &domain.ExecutionError{Code: domain.CodeOrderInFlight, Message: "correlation id locked by another instance", Retryable: true}
			return res
		case err != nil:
			log.Warn("execution_gateway: order lock unavailable, continuing", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	resolution, err := g.resolver.Resolve(ctx, order.Symbol)
	if err != nil {
		res.Error = g.policy.Classify(err)
		log.Error("execution_gateway: symbol resolution failed", slog.String("error", err.Error()))
		return res
	}
	res.BrokerSymbol = resolution.Resolved
	res.SymbolConfidence = resolution.Confidence

	if order.RequestedPrice <= 0 {
		order.RequestedPrice = g.referencePrice(ctx, resolution.Resolved, order.Action, log)
		res.RequestedPrice = order.RequestedPrice
	}

	req := bridge.ExecuteRequest{
		Symbol:  resolution.Resolved,
		Action:  string(order.Action),
		Volume:  order.Volume,
		SL:      order.StopLoss,
		TP:      order.TakeProfit,
		Comment: OrderComment(order.CorrelationID),
	}

	maxAttempts := settings.RetryAttempts
	if maxAttempts < 1 {
		maxAttempts = g.policy.MaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}

	var resp bridge.ExecuteResponse
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		actx, cancel := context.WithTimeout(ctx, timeout)
		resp, err = g.broker.Execute(actx, req)
		cancel()
		if err == nil {
			res.Error = nil
			break
		}

		res.Error = g.policy.Classify(err)
		if ctx.Err() != nil {
			res.Error = g.policy.Classify(ctx.Err())
		}
		log.Warn("execution_gateway: attempt failed",
			slog.Int("attempt", attempt),
			slog.String("code", res.Error.Code),
			slog.Bool("retryable", res.Error.Retryable),
			slog.String("error", err.Error()),
		)

		if res.Error.Code == domain.CodeSymbolUnknown && !resolution.Fallback() {
			g.resolver.Invalidate(ctx, order.Symbol)
		}
		if !res.Error.Retryable || attempt >= maxAttempts || ctx.Err() != nil {
			return res
		}

		metrics.OrderRetries.Inc()
		if err := sleepCtx(ctx, g.policy.Backoff(attempt)); err != nil {
			res.Error = g.policy.Classify(err)
			return res
		}
	}

	res.Success = true
	res.OrderID = resp.Order
	res.DealID = resp.Deal
	res.FillingMode = resp.FillingModeUsed
	res.ExecutedPrice = resp.Price
	if res.ExecutedPrice <= 0 {
		res.ExecutedPrice = order.RequestedPrice
	}
	if resp.Volume > 0 {
		res.Volume = resp.Volume
	}

	costs := computeFillCosts(order, res.ExecutedPrice, res.Volume, g.withBalance(ctx, *settings))
	res.Slippage = costs.Slippage
	res.SlippageExceeded = costs.SlippageExceeded
	res.Commission = costs.Commission
	res.RiskAnalysis = costs.Impact
	metrics.Slippage.Observe(res.Slippage)

	attrs := []any{
		slog.String("broker_symbol", res.BrokerSymbol),
		slog.Int64("order_id", res.OrderID),
		slog.Float64("price", res.ExecutedPrice),
		slog.Float64("slippage", res.Slippage),
		slog.Int("attempts", res.Attempts),
	}
	if res.SlippageExceeded {
		log.Warn("execution_gateway: filled beyond slippage tolerance", attrs...)
	} else {
		log.Info("execution_gateway: order filled", attrs...)
	}
	return res
}

// referencePrice quotes the side the order will cross. Zero when no quote is
// available.
func (g *Gateway) referencePrice(ctx context.Context, symbol string, action domain.OrderAction, log *slog.Logger) float64 {
	bid, ask, err := g.broker.Quote(ctx, symbol)
	if err != nil {
		log.Debug("execution_gateway: quote unavailable", slog.String("error", err.Error()))
		return 0
	}
	if action == domain.ActionSell {
		return bid
	}
	return ask
}

func validateOrder(o domain.Order) error {
	if o.Symbol == "" {
		return errors.New("symbol is required")
	}
	if o.Action != domain.ActionBuy && o.Action != domain.ActionSell {
		return fmt.Errorf("action must be BUY or SELL, got %q", o.Action)
	}
	if !(o.Volume > 0) || math.IsInf(o.Volume, 0) {
		return fmt.Errorf("volume must be positive, got %v", o.Volume)
	}
	if o.StopLoss < 0 || o.TakeProfit < 0 || o.RequestedPrice < 0 {
		return errors.New("prices must not be negative")
	}
	if o.RequestedPrice > 0 && o.StopLoss > 0 {
		if o.Action == domain.ActionBuy && o.StopLoss >= o.RequestedPrice {
			return errors.New("stop loss must be below entry for BUY")
		}
		if o.Action == domain.ActionSell && o.StopLoss <= o.RequestedPrice {
			return errors.New("stop loss must be above entry for SELL")
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// balanceTimeout bounds the account lookup made after a fill.
const balanceTimeout = 2 * time.Second

// withBalance returns s with the broker balance when an account source is
// configured and answers. The configured balance is kept otherwise.
func (g *Gateway) withBalance(ctx context.Context, s domain.ExecutionSettings) domain.ExecutionSettings {
	if g.account == nil {
		return s
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), balanceTimeout)
	defer cancel()
	st, err := g.account.Status(ctx)
	if err != nil || !(st.Balance > 0) || math.IsInf(st.Balance, 0) {
		if err != nil {
			g.logger.DebugContext(ctx, "execution_gateway: account status unavailable, configured balance used",
				slog.String("error", err.Error()),
			)
		}
		return s
	}
	s.AccountBalance = st.Balance
	return s
}
