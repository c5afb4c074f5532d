package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/platform/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedBroker fails with errs[i] on attempt i and fills afterwards.
type scriptedBroker struct {
	mu    sync.Mutex
	errs  []error
	reqs  []bridge.ExecuteRequest
	fill  bridge.ExecuteResponse
	bid   float64
	ask   float64
	block bool
}

func (b *scriptedBroker) Execute(ctx context.Context, req bridge.ExecuteRequest) (bridge.ExecuteResponse, error) {
	b.mu.Lock()
	n := len(b.reqs)
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()

	if b.block {
		<-ctx.Done()
		return bridge.ExecuteResponse{}, ctx.Err()
	}
	if n < len(b.errs) && b.errs[n] != nil {
		return bridge.ExecuteResponse{}, b.errs[n]
	}
	return b.fill, nil
}

func (b *scriptedBroker) Quote(context.Context, string) (float64, float64, error) {
	if b.ask == 0 {
		return 0, 0, errors.New("no quote")
	}
	return b.bid, b.ask, nil
}

func (b *scriptedBroker) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.reqs)
}

type stubResolver struct {
	resolved    string
	confidence  domain.Confidence
	invalidated []string
}

func (r *stubResolver) Resolve(_ context.Context, logical string) (domain.SymbolResolution, error) {
	name := r.resolved
	if name == "" {
		name = logical
	}
	conf := r.confidence
	if conf == "" {
		conf = domain.ConfidenceHigh
	}
	return domain.SymbolResolution{Logical: logical, Resolved: name, Confidence: conf, Probes: 1}, nil
}

func (r *stubResolver) Invalidate(_ context.Context, logical string) {
	r.invalidated = append(r.invalidated, logical)
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

// monday noon UTC, inside trading hours.
var openTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testSettings() *domain.ExecutionSettings {
	return &domain.ExecutionSettings{
		Timeout:           time.Second,
		RetryAttempts:     3,
		SlippageTolerance: 0.0005,
		TradingHours: domain.TradingHours{
			Restricted: []domain.ClockRange{{Start: 21*60 + 55, End: 23*60 + 5}},
			ClosedDays: []time.Weekday{time.Saturday},
		},
		CommissionPerLot: 7,
		ContractSize:     100000,
		AccountLeverage:  100,
		AccountBalance:   10000,
	}
}

func fastPolicy() RetryPolicy {
	return NewRetryPolicy(3, time.Millisecond, 2*time.Millisecond, nil)
}

func newTestGateway(b Broker, r Resolver, s *domain.ExecutionSettings, opts ...Option) *Gateway {
	g := NewGateway(b, r, s, fastPolicy(), discardLogger(), opts...)
	g.now = func() time.Time { return openTime }
	return g
}

func buyOrder() domain.Order {
	return domain.Order{
		CorrelationID:  "sig-1",
		Symbol:         "eurusd",
		Action:         domain.ActionBuy,
		Volume:         0.5,
		RequestedPrice: 1.1000,
		StopLoss:       1.0950,
	}
}

func requote() error {
	return &bridge.Error{Op: "execute", Status: http.StatusBadRequest, Retcode: RetcodeRequote, Message: "10004 - Requote"}
}

func TestExecuteSucceedsAfterRetries(t *testing.T) {
	broker := &scriptedBroker{
		errs: []error{requote(), requote()},
		fill: bridge.ExecuteResponse{Success: true, Order: 77, Deal: 78, Price: 1.1002, Volume: 0.5, FillingModeUsed: 1},
	}
	g := newTestGateway(broker, &stubResolver{resolved: "EURUSD.a"}, testSettings())

	res := g.Execute(context.Background(), buyOrder())

	require.True(t, res.Success, "error: %v", res.Error)
	assert.Nil(t, res.Error)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, broker.calls())
	assert.Equal(t, int64(77), res.OrderID)
	assert.Equal(t, "EURUSD", res.Symbol)
	assert.Equal(t, "EURUSD.a", res.BrokerSymbol)
	assert.Equal(t, 1, res.FillingMode)
	assert.InDelta(t, 0.0002, res.Slippage, 1e-9)
	assert.False(t, res.SlippageExceeded)
	assert.InDelta(t, 3.5, res.Commission, 1e-9)
	// |1.1002 - 1.0950| * 0.5 * 100000
	assert.InDelta(t, 260.0, res.RiskAnalysis.RiskAmount, 1e-6)
	// 1.1002 * 0.5 * 100000 / 100
	assert.InDelta(t, 550.1, res.RiskAnalysis.MarginRequired, 1e-6)
	assert.InDelta(t, 0.026, res.RiskAnalysis.ImpactOnAccount, 1e-9)

	for _, req := range broker.reqs {
		assert.Equal(t, "EURUSD.a", req.Symbol)
		assert.Equal(t, "rb:sig-1", req.Comment)
	}
}

func TestExecuteRetryableFailureBeyondMax(t *testing.T) {
	broker := &scriptedBroker{errs: []error{requote(), requote(), requote(), requote()}}
	g := newTestGateway(broker, &stubResolver{}, testSettings())

	res := g.Execute(context.Background(), buyOrder())

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeRequote, res.Error.Code)
	assert.Equal(t, RetcodeRequote, res.Error.Retcode)
	assert.True(t, res.Retryable())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, broker.calls())
}

func TestExecuteNonRetryableStops(t *testing.T) {
	broker := &scriptedBroker{errs: []error{
		&bridge.Error{Op: "execute", Status: http.StatusOK, Retcode: RetcodeNoMoney, Message: "No money"},
	}}
	g := newTestGateway(broker, &stubResolver{}, testSettings())

	res := g.Execute(context.Background(), buyOrder())

	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeNoMoney, res.Error.Code)
	assert.Equal(t, "No money", res.Error.Message)
	assert.False(t, res.Retryable())
	assert.Equal(t, 1, broker.calls())
}

func TestExecuteConfigMissing(t *testing.T) {
	broker := &scriptedBroker{}
	g := newTestGateway(broker, &stubResolver{}, nil)

	res := g.Execute(context.Background(), buyOrder())

	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeConfigMissing, res.Error.Code)
	assert.False(t, res.Error.Retryable)
	assert.Zero(t, broker.calls())
}

func TestExecuteMarketClosed(t *testing.T) {
	broker := &scriptedBroker{}
	g := newTestGateway(broker, &stubResolver{}, testSettings())

	for _, at := range []time.Time{
		time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC),
	} {
		g.now = func() time.Time { return at }
		res := g.Execute(context.Background(), buyOrder())
		require.NotNil(t, res.Error)
		assert.Equal(t, domain.CodeMarketClosed, res.Error.Code)
		assert.True(t, res.Error.Retryable)
	}
	assert.Zero(t, broker.calls())
}

func TestExecuteInvalidOrder(t *testing.T) {
	g := newTestGateway(&scriptedBroker{}, &stubResolver{}, testSettings())

	cases := map[string]func(o *domain.Order){
		"zero volume":    func(o *domain.Order) { o.Volume = 0 },
		"bad action":     func(o *domain.Order) { o.Action = "HOLD" },
		"no symbol":      func(o *domain.Order) { o.Symbol = " " },
		"stop above buy": func(o *domain.Order) { o.StopLoss = 1.2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := buyOrder()
			o.CorrelationID = name
			mutate(&o)
			res := g.Execute(context.Background(), o)
			require.NotNil(t, res.Error)
			assert.Equal(t, domain.CodeInvalidOrder, res.Error.Code)
			assert.False(t, res.Error.Retryable)
		})
	}
}

func TestExecuteDuplicateCorrelationID(t *testing.T) {
	broker := &scriptedBroker{fill: bridge.ExecuteResponse{Success: true, Order: 1, Price: 1.1}}
	g := newTestGateway(broker, &stubResolver{}, testSettings())

	first := g.Execute(context.Background(), buyOrder())
	require.True(t, first.Success)

	second := g.Execute(context.Background(), buyOrder())
	require.NotNil(t, second.Error)
	assert.Equal(t, domain.CodeDuplicateOrder, second.Error.Code)
	assert.Equal(t, 1, broker.calls())
}

func TestExecuteFailedOrderMayBeResubmitted(t *testing.T) {
	broker := &scriptedBroker{
		errs: []error{requote(), requote(), requote()},
		fill: bridge.ExecuteResponse{Success: true, Order: 9, Price: 1.1},
	}
	g := newTestGateway(broker, &stubResolver{}, testSettings())

	first := g.Execute(context.Background(), buyOrder())
	require.False(t, first.Success)

	second := g.Execute(context.Background(), buyOrder())
	assert.True(t, second.Success)
}

func TestExecuteLockHeld(t *testing.T) {
	broker := &scriptedBroker{}
	g := newTestGateway(broker, &stubResolver{}, testSettings(), WithLocks(heldLocks{}, time.Minute))

	res := g.Execute(context.Background(), buyOrder())
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeOrderInFlight, res.Error.Code)
	assert.True(t, res.Error.Retryable)
	assert.Zero(t, broker.calls())
}

func TestExecuteUnknownSymbolInvalidatesResolution(t *testing.T) {
	broker := &scriptedBroker{errs: []error{
		&bridge.Error{Op: "execute", Status: http.StatusBadRequest, Message: "Cannot get price for XAUUSD.a"},
	}}
	resolver := &stubResolver{resolved: "XAUUSD.a"}
	g := newTestGateway(broker, resolver, testSettings())

	o := buyOrder()
	o.Symbol = "XAUUSD"
	o.RequestedPrice = 0
	o.StopLoss = 0
	res := g.Execute(context.Background(), o)

	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeSymbolUnknown, res.Error.Code)
	assert.False(t, res.Error.Retryable)
	assert.Equal(t, []string{"XAUUSD"}, resolver.invalidated)
}

func TestExecuteAttemptTimeoutIsRetryable(t *testing.T) {
	broker := &scriptedBroker{block: true}
	s := testSettings()
	s.Timeout = 5 * time.Millisecond
	s.RetryAttempts = 2
	g := newTestGateway(broker, &stubResolver{}, s)

	res := g.Execute(context.Background(), buyOrder())

	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeTimeout, res.Error.Code)
	assert.True(t, res.Error.Retryable)
	assert.Equal(t, 2, broker.calls())
}

func TestExecuteCallerDeadlineStopsRetries(t *testing.T) {
	broker := &scriptedBroker{block: true}
	s := testSettings()
	s.Timeout = time.Second
	s.RetryAttempts = 3
	g := newTestGateway(broker, &stubResolver{}, s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	res := g.Execute(ctx, buyOrder())
	elapsed := time.Since(start)

	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeTimeout, res.Error.Code)
	assert.True(t, res.Error.Retryable)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, broker.calls())
	assert.Less(t, elapsed, 500*time.Millisecond, "the caller deadline bounds the attempt timeout")
}

type fixedAccount struct {
	balance float64
	err     error
}

func (a fixedAccount) Status(context.Context) (domain.AccountStatus, error) {
	return domain.AccountStatus{Balance: a.balance}, a.err
}

func TestExecuteImpactUsesBrokerBalance(t *testing.T) {
	fill := bridge.ExecuteResponse{Success: true, Order: 1, Price: 1.1002, Volume: 0.5}

	g := newTestGateway(&scriptedBroker{fill: fill}, &stubResolver{}, testSettings(), WithAccount(fixedAccount{balance: 26000}))
	res := g.Execute(context.Background(), buyOrder())
	require.True(t, res.Success, "error: %v", res.Error)
	// $260 at risk against a $26,000 broker balance.
	assert.InDelta(t, 0.01, res.RiskAnalysis.ImpactOnAccount, 1e-9)

	g = newTestGateway(&scriptedBroker{fill: fill}, &stubResolver{}, testSettings(), WithAccount(fixedAccount{err: errors.New("bridge down")}))
	order := buyOrder()
	order.CorrelationID = "sig-2"
	res = g.Execute(context.Background(), order)
	require.True(t, res.Success, "error: %v", res.Error)
	assert.InDelta(t, 0.026, res.RiskAnalysis.ImpactOnAccount, 1e-9, "configured balance when the account is unavailable")
}

func TestExecuteUsesQuoteWhenNoRequestedPrice(t *testing.T) {
	broker := &scriptedBroker{
		bid:  1.0998,
		ask:  1.1000,
		fill: bridge.ExecuteResponse{Success: true, Order: 5, Price: 1.1001},
	}
	g := newTestGateway(broker, &stubResolver{}, testSettings())

	o := buyOrder()
	o.RequestedPrice = 0
	res := g.Execute(context.Background(), o)

	require.True(t, res.Success)
	assert.InDelta(t, 1.1000, res.RequestedPrice, 1e-12)
	assert.InDelta(t, 0.0001, res.Slippage, 1e-9)
	assert.Equal(t, 0.5, res.Volume)
}

func TestExecuteGeneratesCorrelationID(t *testing.T) {
	broker := &scriptedBroker{fill: bridge.ExecuteResponse{Success: true, Price: 1.1}}
	g := newTestGateway(broker, &stubResolver{}, testSettings())

	o := buyOrder()
	o.CorrelationID = ""
	res := g.Execute(context.Background(), o)

	require.True(t, res.Success)
	assert.Len(t, res.CorrelationID, 36)
	assert.LessOrEqual(t, len(broker.reqs[0].Comment), 31)
}
