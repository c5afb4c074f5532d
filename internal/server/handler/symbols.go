package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// SymbolResolver defines the methods that the symbol handler requires.
type SymbolResolver interface {
	Resolve(ctx context.Context, logical string) (domain.SymbolResolution, error)
	Invalidate(ctx context.Context, logical string)
	Candidates(logical string) []string
}

// SymbolHandler exposes broker symbol resolution.
type SymbolHandler struct {
	resolver SymbolResolver
}

// NewSymbolHandler creates a SymbolHandler.
func NewSymbolHandler(resolver SymbolResolver) *SymbolHandler {
	return &SymbolHandler{resolver: resolver}
}

// Resolve returns the broker name for a logical symbol along with the
// candidates that were considered. ?refresh=true drops the cached entry
// first.
// GET /api/symbols/{symbol}
func (h *SymbolHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		h.resolver.Invalidate(r.Context(), symbol)
	}
	res, err := h.resolver.Resolve(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resolution": res,
		"fallback":   res.Fallback(),
		"candidates": h.resolver.Candidates(symbol),
	})
}
