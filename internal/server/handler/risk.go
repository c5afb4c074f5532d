package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// RiskService defines the methods that the risk handler requires.
type RiskService interface {
	CalculatePortfolioRisk(ctx context.Context) domain.PortfolioRiskSnapshot
	LatestSnapshot(ctx context.Context) domain.PortfolioRiskSnapshot
	History() []domain.PortfolioRiskSnapshot
	CurrentAlerts(ctx context.Context) []domain.RiskAlert
	GetRiskRecommendations(ctx context.Context) []string
	CalculateDynamicPositionSize(ctx context.Context, req domain.SizingRequest) domain.TradeSizingResult
}

// CorrelationSource lists the correlation table.
type CorrelationSource interface {
	Pairs() []domain.CorrelationEntry
}

// RiskHandler serves portfolio risk endpoints.
type RiskHandler struct {
	risk      RiskService
	corr      CorrelationSource
	snapshots domain.RiskSnapshotStore
	logger    *slog.Logger
}

// NewRiskHandler creates a RiskHandler. corr and snapshots may be nil.
func NewRiskHandler(risk RiskService, corr CorrelationSource, snapshots domain.RiskSnapshotStore, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		risk:      risk,
		corr:      corr,
		snapshots: snapshots,
		logger:    logHandler(logger, "risk"),
	}
}

type riskResponse struct {
	Snapshot     domain.PortfolioRiskSnapshot `json:"snapshot"`
	Correlations []domain.CorrelationEntry    `json:"correlations,omitempty"`
}

// GetRisk evaluates the portfolio now. ?cached=true returns the last
// snapshot instead.
// GET /api/risk
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	var snap domain.PortfolioRiskSnapshot
	if cached, _ := strconv.ParseBool(r.URL.Query().Get("cached")); cached {
		snap = h.risk.LatestSnapshot(r.Context())
	} else {
		snap = h.risk.CalculatePortfolioRisk(r.Context())
	}
	resp := riskResponse{Snapshot: snap}
	if h.corr != nil {
		resp.Correlations = h.corr.Pairs()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory returns retained snapshots, oldest first. With ?source=store the
// persisted history is queried instead, honouring limit, offset, since and
// until.
// GET /api/risk/history
func (h *RiskHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	if strings.EqualFold(r.URL.Query().Get("source"), "store") {
		if h.snapshots == nil {
			writeError(w, http.StatusNotImplemented, "snapshot store not configured")
			return
		}
		snaps, err := h.snapshots.List(r.Context(), opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list snapshots failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list snapshots")
			return
		}
		if snaps == nil {
			snaps = []domain.PortfolioRiskSnapshot{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
		return
	}

	snaps := h.risk.History()
	if r.URL.Query().Has("limit") && opts.Limit < len(snaps) {
		snaps = snaps[len(snaps)-opts.Limit:]
	}
	if snaps == nil {
		snaps = []domain.PortfolioRiskSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

// GetAlerts evaluates thresholds against the latest snapshot. ?level=WARNING
// keeps only alerts at or above that severity.
// GET /api/risk/alerts
func (h *RiskHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.risk.CurrentAlerts(r.Context())
	if lvl := domain.AlertLevel(strings.ToUpper(r.URL.Query().Get("level"))); lvl.Rank() > 0 {
		kept := alerts[:0]
		for _, a := range alerts {
			if a.Level.Rank() >= lvl.Rank() {
				kept = append(kept, a)
			}
		}
		alerts = kept
	}
	if alerts == nil {
		alerts = []domain.RiskAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// GetRecommendations returns guidance for the latest snapshot.
// GET /api/risk/recommendations
func (h *RiskHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": h.risk.GetRiskRecommendations(r.Context())})
}

// sizingRequest is the body of a sizing call. Bars are optional; without
// them the daily series is fetched from the broker.
type sizingRequest struct {
	Symbol         string       `json:"symbol"`
	Strategy       string       `json:"strategy"`
	BaseSize       float64      `json:"base_size"`
	EntryPrice     float64      `json:"entry_price"`
	StopLoss       float64      `json:"stop_loss"`
	PortfolioValue float64      `json:"portfolio_value"`
	Bars           []domain.Bar `json:"bars,omitempty"`
}

// Size recommends a trade size. Sizing never fails; malformed input yields
// the fallback size with its reason.
// POST /api/sizing
func (h *RiskHandler) Size(w http.ResponseWriter, r *http.Request) {
	var body sizingRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	req := domain.SizingRequest{
		Symbol:         body.Symbol,
		Strategy:       body.Strategy,
		BaseSize:       body.BaseSize,
		EntryPrice:     body.EntryPrice,
		StopLoss:       body.StopLoss,
		PortfolioValue: body.PortfolioValue,
	}
	if len(body.Bars) > 0 {
		req.Market = &domain.MarketData{Symbol: strings.ToUpper(body.Symbol), Timeframe: "1d", Bars: body.Bars}
	}
	writeJSON(w, http.StatusOK, h.risk.CalculateDynamicPositionSize(r.Context(), req))
}
