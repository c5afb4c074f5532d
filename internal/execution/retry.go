package execution

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/platform/bridge"
)

// MT5 trade server return codes.
const (
	RetcodeRequote         = 10004
	RetcodeReject          = 10006
	RetcodeCancel          = 10007
	RetcodeTimeout         = 10012
	RetcodeInvalid         = 10013
	RetcodeInvalidVolume   = 10014
	RetcodeInvalidPrice    = 10015
	RetcodeInvalidStops    = 10016
	RetcodeTradeDisabled   = 10017
	RetcodeMarketClosed    = 10018
	RetcodeNoMoney         = 10019
	RetcodePriceChanged    = 10020
	RetcodePriceOff        = 10021
	RetcodeTooManyRequests = 10024
	RetcodeClientDisabled  = 10027
	RetcodeInvalidFill     = 10030
	RetcodeConnection      = 10031
)

var retcodeNames = map[int]string{
	RetcodeRequote:         domain.CodeRequote,
	RetcodeReject:          domain.CodeRejected,
	RetcodeCancel:          domain.CodeCancelled,
	RetcodeTimeout:         domain.CodeTimeout,
	RetcodeInvalid:         domain.CodeInvalidOrder,
	RetcodeInvalidVolume:   domain.CodeInvalidVolume,
	RetcodeInvalidPrice:    domain.CodeInvalidPrice,
	RetcodeInvalidStops:    domain.CodeInvalidStops,
	RetcodeTradeDisabled:   domain.CodeTradeDisabled,
	RetcodeMarketClosed:    domain.CodeMarketClosed,
	RetcodeNoMoney:         domain.CodeNoMoney,
	RetcodePriceChanged:    domain.CodePriceChanged,
	RetcodePriceOff:        domain.CodePriceOff,
	RetcodeTooManyRequests: domain.CodeRateLimited,
	RetcodeClientDisabled:  domain.CodeTradeDisabled,
	RetcodeInvalidFill:     domain.CodeRejected,
	RetcodeConnection:      domain.CodeBridgeUnavailable,
}

// DefaultRetryableRetcodes are transient broker conditions worth resubmitting.
var DefaultRetryableRetcodes = []int{
	RetcodeRequote,
	RetcodeTimeout,
	RetcodePriceChanged,
	RetcodePriceOff,
	RetcodeTooManyRequests,
	RetcodeConnection,
}

// RetryPolicy decides which failures are resubmitted and how long to wait.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Multiplier  float64
	// RetryableCodes lists broker retcodes treated as transient.
	RetryableCodes map[int]bool
}

// DefaultRetryPolicy returns three attempts with 500ms doubling backoff capped
// at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(3, 500*time.Millisecond, 5*time.Second, DefaultRetryableRetcodes)
}

// NewRetryPolicy builds a policy with a doubling backoff. A nil code list
// selects DefaultRetryableRetcodes.
func NewRetryPolicy(attempts int, base, ceiling time.Duration, codes []int) RetryPolicy {
	if codes == nil {
		codes = DefaultRetryableRetcodes
	}
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return RetryPolicy{
		MaxAttempts:    attempts,
		BaseBackoff:    base,
		MaxBackoff:     ceiling,
		Multiplier:     2,
		RetryableCodes: set,
	}
}

// Backoff returns the wait before attempt n+1, given that attempt n (1-based)
// just failed.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if p.BaseBackoff <= 0 || n < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseBackoff) * math.Pow(mult, float64(n-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Classify converts a submission error into a structured execution error.
func (p RetryPolicy) Classify(err error) *domain.ExecutionError {
	if err == nil {
		return nil
	}
	var ee *domain.ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ExecutionError{Code: domain.CodeTimeout, Message: err.Error(), Retryable: true}
	case errors.Is(err, context.Canceled):
		return &domain.ExecutionError{Code: domain.CodeCancelled, Message: err.Error()}
	}

	be, ok := bridge.AsError(err)
	if !ok {
		return &domain.ExecutionError{Code: domain.CodeBridgeUnavailable, Message: err.Error(), Retryable: true}
	}

	switch {
	case be.Malformed:
		return &domain.ExecutionError{Code: domain.CodeMalformedResponse, Message: be.Message, Retryable: true}
	case symbolUnknown(be):
		return &domain.ExecutionError{Code: domain.CodeSymbolUnknown, Message: be.Message, Retcode: be.Retcode}
	case be.Retcode != 0:
		code, known := retcodeNames[be.Retcode]
		if !known {
			code = domain.CodeRejected
		}
		return &domain.ExecutionError{
			Code:      code,
			Message:   be.Message,
			Retcode:   be.Retcode,
			Retryable: p.RetryableCodes[be.Retcode],
		}
	case be.Status == http.StatusTooManyRequests:
		return &domain.ExecutionError{Code: domain.CodeRateLimited, Message: be.Message, Retryable: true}
	case be.Status == 0:
		return &domain.ExecutionError{Code: domain.CodeBridgeUnavailable, Message: be.Message, Retryable: true}
	case be.Status >= 200 && be.Status < 300:
		// Bridge replied success=false without a retcode.
		return &domain.ExecutionError{Code: domain.CodeRejected, Message: be.Message}
	default:
		return &domain.ExecutionError{Code: domain.CodeBridgeUnavailable, Message: be.Message, Retryable: true}
	}
}

// symbolUnknown matches the bridge's replies for symbols the terminal does
// not carry.
func symbolUnknown(be *bridge.Error) bool {
	msg := strings.ToLower(be.Message)
	if be.Status == http.StatusNotFound {
		return true
	}
	return strings.Contains(msg, "cannot get price for") ||
		(strings.Contains(msg, "symbol") && strings.Contains(msg, "not found"))
}
