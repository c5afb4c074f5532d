package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	OpenPositions() []domain.Position
	UpdatePosition(ctx context.Context, pos domain.Position) (domain.Position, error)
	RemovePosition(ctx context.Context, id string) (domain.Position, error)
	ClosePosition(ctx context.Context, id string) (domain.CloseResult, error)
	SyncPositions(ctx context.Context) (domain.SyncResult, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the open book, optionally filtered by ?symbol=.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.positions.OpenPositions()
	if sym := r.URL.Query().Get("symbol"); sym != "" {
		kept := positions[:0]
		for _, p := range positions {
			if strings.EqualFold(p.Symbol, sym) {
				kept = append(kept, p)
			}
		}
		positions = kept
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// UpsertPosition adds or replaces a position.
// POST /api/positions
func (h *PositionHandler) UpsertPosition(w http.ResponseWriter, r *http.Request) {
	var pos domain.Position
	if err := decodeJSON(w, r, &pos); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := h.positions.UpdatePosition(r.Context(), pos)
	if err != nil {
		h.fail(w, r, "upsert", err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// DeletePosition removes a position from the book without closing it at the
// broker.
// DELETE /api/positions/{id}
func (h *PositionHandler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	pos, err := h.positions.RemovePosition(r.Context(), id)
	if err != nil {
		h.fail(w, r, "remove", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed", "position": pos})
}

// ClosePosition closes a position at the broker by its ticket.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	res, err := h.positions.ClosePosition(r.Context(), id)
	if err != nil {
		h.fail(w, r, "close", err)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncPositions reconciles the book with the broker.
// POST /api/positions/sync
func (h *PositionHandler) SyncPositions(w http.ResponseWriter, r *http.Request) {
	out, err := h.positions.SyncPositions(r.Context())
	if err != nil {
		h.fail(w, r, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PositionHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
	case errors.Is(err, domain.ErrInvalidPosition), errors.Is(err, domain.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBridgeUnavailable):
		writeError(w, http.StatusServiceUnavailable, "broker bridge unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "handler: position "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "position "+op+" failed")
	}
}
