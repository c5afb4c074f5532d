package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderAction is the trade direction sent to the broker.
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// ParseOrderAction normalizes an action string.
func ParseOrderAction(s string) (OrderAction, error) {
	switch OrderAction(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	}
	return "", fmt.Errorf("%w: action %q", ErrInvalidOrder, s)
}

// Order is a market order request.
type Order struct {
	// CorrelationID is the caller-assigned tag sent as the broker comment so
	// retried submissions can be deduplicated downstream.
	CorrelationID  string      `json:"correlation_id"`
	Symbol         string      `json:"symbol"`
	Strategy       string      `json:"strategy,omitempty"`
	Action         OrderAction `json:"action"`
	Volume         float64     `json:"volume"`
	RequestedPrice float64     `json:"requested_price,omitempty"`
	StopLoss       float64     `json:"sl,omitempty"`
	TakeProfit     float64     `json:"tp,omitempty"`
	ContractSize   float64     `json:"contract_size,omitempty"`
}

// Execution error codes.
const (
	CodeConfigMissing     = "CONFIG_MISSING"
	CodeMarketClosed      = "MARKET_CLOSED"
	CodeInvalidOrder      = "INVALID_ORDER"
	CodeDuplicateOrder    = "DUPLICATE_ORDER"
	CodeOrderInFlight     = "ORDER_IN_FLIGHT"
	CodeTimeout           = "TIMEOUT"
	CodeBridgeUnavailable = "BRIDGE_UNAVAILABLE"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeRateLimited       = "RATE_LIMITED"
	CodeRejected          = "REJECTED"
	CodeRequote           = "REQUOTE"
	CodePriceChanged      = "PRICE_CHANGED"
	CodePriceOff          = "PRICE_OFF"
	CodeInvalidPrice      = "INVALID_PRICE"
	CodeInvalidStops      = "INVALID_STOPS"
	CodeInvalidVolume     = "INVALID_VOLUME"
	CodeTradeDisabled     = "TRADE_DISABLED"
	CodeNoMoney           = "NO_MONEY"
	CodeSymbolUnknown     = "SYMBOL_UNKNOWN"
	CodeCancelled         = "CANCELLED"
	CodeUnknown           = "UNKNOWN"
)

// ExecutionError is the structured failure attached to an ExecutionResult.
type ExecutionError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retcode   int    `json:"retcode,omitempty"`
	Retryable bool   `json:"retryable"`
}

func (e *ExecutionError) Error() string {
	if e.Retcode != 0 {
		return fmt.Sprintf("%s (retcode %d): %s", e.Code, e.Retcode, e.Message)
	}
	return e.Code + ": " + e.Message
}

// RiskImpact estimates what a filled order does to the account.
type RiskImpact struct {
	RiskAmount      float64 `json:"risk_amount"`
	MarginRequired  float64 `json:"margin_required"`
	ImpactOnAccount float64 `json:"impact_on_account"`
}

// ExecutionResult is the outcome of one gateway execution.
type ExecutionResult struct {
	Success          bool            `json:"success"`
	CorrelationID    string          `json:"correlation_id"`
	Symbol           string          `json:"symbol"`
	BrokerSymbol     string          `json:"broker_symbol"`
	SymbolConfidence Confidence      `json:"symbol_confidence,omitempty"`
	Action           OrderAction     `json:"action"`
	Volume           float64         `json:"volume"`
	OrderID          int64           `json:"order_id,omitempty"`
	DealID           int64           `json:"deal_id,omitempty"`
	RequestedPrice   float64         `json:"requested_price"`
	ExecutedPrice    float64         `json:"executed_price"`
	Slippage         float64         `json:"slippage"`
	SlippageExceeded bool            `json:"slippage_exceeded,omitempty"`
	Commission       float64         `json:"commission"`
	ExecutionTime    time.Duration   `json:"execution_time"`
	Attempts         int             `json:"attempts"`
	FillingMode      int             `json:"filling_mode,omitempty"`
	Error            *ExecutionError `json:"error,omitempty"`
	RiskAnalysis     RiskImpact      `json:"risk_analysis"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Retryable reports whether the failed result may be resubmitted.
func (r ExecutionResult) Retryable() bool {
	return r.Error != nil && r.Error.Retryable
}

// ExecutionSettings control the gateway. A value is treated as immutable for
// one execution.
type ExecutionSettings struct {
	Timeout           time.Duration
	RetryAttempts     int
	SlippageTolerance float64
	TradingHours      TradingHours
	CommissionPerLot  float64
	ContractSize      float64
	ContractSizes     map[string]float64
	AccountLeverage   float64
	AccountBalance    float64
}

// ContractSizeFor returns the per-symbol contract size, falling back to the
// default.
func (s ExecutionSettings) ContractSizeFor(symbol string) float64 {
	if v, ok := s.ContractSizes[strings.ToUpper(symbol)]; ok && v > 0 {
		return v
	}
	return s.ContractSize
}

// ClockRange is a restricted UTC window in minutes after midnight. End before
// Start wraps past midnight.
type ClockRange struct {
	Start int
	End   int
}

// Contains reports whether minute-of-day m falls inside the range.
func (r ClockRange) Contains(m int) bool {
	if r.Start <= r.End {
		return m >= r.Start && m < r.End
	}
	return m >= r.Start || m < r.End
}

// TradingHours lists restricted UTC windows and closed weekdays.
type TradingHours struct {
	Restricted []ClockRange
	ClosedDays []time.Weekday
}

// Allows reports whether t (converted to UTC) is outside every restriction.
func (h TradingHours) Allows(t time.Time) bool {
	t = t.UTC()
	for _, d := range h.ClosedDays {
		if t.Weekday() == d {
			return false
		}
	}
	m := t.Hour()*60 + t.Minute()
	for _, r := range h.Restricted {
		if r.Contains(m) {
			return false
		}
	}
	return true
}
