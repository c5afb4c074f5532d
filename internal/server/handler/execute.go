package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// ExecutionService defines the methods that the execute handler requires.
type ExecutionService interface {
	ResolveAndExecute(ctx context.Context, order domain.Order) domain.ExecutionResult
}

// ExecuteHandler submits market orders.
type ExecuteHandler struct {
	exec ExecutionService
}

// NewExecuteHandler creates an ExecuteHandler.
func NewExecuteHandler(exec ExecutionService) *ExecuteHandler {
	return &ExecuteHandler{exec: exec}
}

type executeRequest struct {
	CorrelationID  string  `json:"correlation_id"`
	Symbol         string  `json:"symbol"`
	Strategy       string  `json:"strategy"`
	Action         string  `json:"action"`
	Volume         float64 `json:"volume"`
	RequestedPrice float64 `json:"requested_price"`
	StopLoss       float64 `json:"sl"`
	TakeProfit     float64 `json:"tp"`
}

// Execute resolves the symbol and submits the order. The body of the
// response is always the execution result; the status reflects its error
// code.
// POST /api/execute
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var body executeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := domain.ParseOrderAction(body.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.exec.ResolveAndExecute(r.Context(), domain.Order{
		CorrelationID:  body.CorrelationID,
		Symbol:         body.Symbol,
		Strategy:       body.Strategy,
		Action:         action,
		Volume:         body.Volume,
		RequestedPrice: body.RequestedPrice,
		StopLoss:       body.StopLoss,
		TakeProfit:     body.TakeProfit,
	})
	writeJSON(w, executionStatus(res), res)
}

// executionStatus maps a result to an HTTP status.
func executionStatus(res domain.ExecutionResult) int {
	if res.Success {
		return http.StatusOK
	}
	if res.Error == nil {
		return http.StatusInternalServerError
	}
	switch res.Error.Code {
	case domain.CodeInvalidOrder:
		return http.StatusBadRequest
	case domain.CodeDuplicateOrder, domain.CodeOrderInFlight:
		return http.StatusConflict
	case domain.CodeConfigMissing, domain.CodeMarketClosed, domain.CodeBridgeUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}
