package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// RecordsHandler serves the persisted execution and audit history.
type RecordsHandler struct {
	executions domain.ExecutionStore
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewRecordsHandler creates a RecordsHandler over the given stores.
func NewRecordsHandler(executions domain.ExecutionStore, audit domain.AuditStore, logger *slog.Logger) *RecordsHandler {
	return &RecordsHandler{executions: executions, audit: audit, logger: logHandler(logger, "records")}
}

// ListExecutions returns recent execution results, newest first.
// GET /api/executions
func (h *RecordsHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.executions.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if rows == nil {
		rows = []domain.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": rows})
}

// GetExecution returns the stored result for a correlation id.
// GET /api/executions/{id}
func (h *RecordsHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	res, err := h.executions.GetByCorrelationID(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get execution failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListAudit returns audit log entries, newest first.
// GET /api/audit
func (h *RecordsHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	rows, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	if rows == nil {
		rows = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": rows})
}
