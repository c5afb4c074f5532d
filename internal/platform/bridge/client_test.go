package bridge_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/platform/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *bridge.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return bridge.New(bridge.Config{BaseURL: srv.URL, RatePerSecond: 1000, Burst: 100},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestIsTradable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/symbol_info", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body["symbol"] {
		case "XAUUSD.a":
			writeJSON(w, http.StatusOK, map[string]any{"symbol_info": map[string]any{"name": "XAUUSD.a", "tradable": true, "bid": 2000.1, "ask": 2000.4}})
		case "XAUUSD":
			writeJSON(w, http.StatusOK, map[string]any{"symbol_info": map[string]any{"name": "XAUUSD", "tradable": false}})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Symbol " + body["symbol"] + " not found"})
		}
	})
	ctx := context.Background()

	ok, err := c.IsTradable(ctx, "XAUUSD.a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsTradable(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsTradable(ctx, "GOLD")
	require.NoError(t, err, "unknown symbols are simply not tradable")
	assert.False(t, ok)

	bid, ask, err := c.Quote(ctx, "XAUUSD.a")
	require.NoError(t, err)
	assert.Equal(t, 2000.1, bid)
	assert.Equal(t, 2000.4, ask)
}

func TestExecute(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req bridge.ExecuteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Comment {
		case "ok":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": 7001, "deal": 9001, "price": 1.10012, "volume": req.Volume, "filling_mode_used": 1})
		case "requote":
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "All filling modes failed. Last error: Filling mode 2 failed: 10004 - Requote"})
		case "nomoney":
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "retcode": 10019, "error": "No money"})
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		default:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("<html>"))
		}
	})
	ctx := context.Background()

	res, err := c.Execute(ctx, bridge.ExecuteRequest{Symbol: "EURUSD", Action: "BUY", Volume: 0.1, Comment: "ok"})
	require.NoError(t, err)
	assert.Equal(t, int64(7001), res.Order)
	assert.Equal(t, int64(9001), res.Deal)
	assert.Equal(t, 1, res.FillingModeUsed)

	_, err = c.Execute(ctx, bridge.ExecuteRequest{Comment: "requote"})
	be, ok := bridge.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, be.Status)
	assert.Equal(t, 10004, be.Retcode)

	_, err = c.Execute(ctx, bridge.ExecuteRequest{Comment: "nomoney"})
	be, ok = bridge.AsError(err)
	require.True(t, ok)
	assert.Equal(t, 10019, be.Retcode)

	_, err = c.Execute(ctx, bridge.ExecuteRequest{Comment: "boom"})
	be, ok = bridge.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, be.Status)
	assert.ErrorIs(t, err, domain.ErrBridgeUnavailable)

	_, err = c.Execute(ctx, bridge.ExecuteRequest{Comment: "garbage"})
	be, ok = bridge.AsError(err)
	require.True(t, ok)
	assert.True(t, be.Malformed)
}

func TestPositionsAndBars(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/positions":
			writeJSON(w, http.StatusOK, map[string]any{"positions": []map[string]any{
				{"ticket": 11, "symbol": "EURUSD", "type": 0, "volume": 0.2, "price_open": 1.1, "price_current": 1.105, "profit": 10, "comment": "rb:abc"},
				{"ticket": 12, "symbol": "XAUUSD", "type": "SELL", "volume": 0.1, "price_open": 2000, "price_current": 1990, "time": "2026-03-02T10:00:00"},
			}})
		case "/rates":
			writeJSON(w, http.StatusOK, map[string]any{"symbol": "EURUSD", "timeframe": "1d", "rates": []map[string]any{
				{"time": 1767225600, "open": 1.1, "high": 1.11, "low": 1.09, "close": 1.105, "tick_volume": 1200},
				{"time": 1767312000, "open": 1.105, "high": 1.12, "low": 1.1, "close": 1.115, "tick_volume": 1300},
			}})
		}
	})
	ctx := context.Background()

	positions, err := c.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, domain.ActionBuy, positions[0].Type)
	assert.Equal(t, domain.ActionSell, positions[1].Type)
	assert.Equal(t, 2026, positions[1].OpenedAt.Year())

	md, err := c.Bars(ctx, "EURUSD", "1d", 2)
	require.NoError(t, err)
	require.Len(t, md.Bars, 2)
	assert.Equal(t, 1.115, md.Bars[1].Close)
	assert.Equal(t, 1300.0, md.Bars[1].Volume)
}

func TestBarsNotFoundIsDataUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "No rates available"})
	})
	_, err := c.Bars(context.Background(), "NOPE", "1d", 10)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestStatusAndHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			writeJSON(w, http.StatusOK, map[string]any{"connected": true, "trade_allowed": true, "balance": 25000.5, "equity": 25100})
		case "/health":
			writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "mt5_connected": false})
		}
	})
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25000.5, st.Balance)
	assert.True(t, st.TradeAllowed)

	assert.ErrorIs(t, c.Health(ctx), domain.ErrBridgeUnavailable)
}
