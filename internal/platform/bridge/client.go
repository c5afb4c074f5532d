// Package bridge is the HTTP client for the MT5 bridge process that fronts a
// MetaTrader 5 terminal.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"golang.org/x/time/rate"
)

// Config holds the bridge endpoint parameters.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	RatePerSecond  float64
	Burst          int
}

// Client talks to the bridge over JSON/HTTP. Calls are rate limited locally
// so that probe storms do not starve the terminal.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a bridge client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger.With(slog.String("component", "bridge")),
	}
}

// SymbolInfo fetches instrument details. An unknown symbol returns an error
// wrapping domain.ErrNotFound.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	var out symbolInfoResponse
	status, err := c.do(ctx, "symbol_info", http.MethodPost, "/symbol_info", symbolInfoRequest{Symbol: symbol}, &out)
	if err != nil {
		return SymbolInfo{}, err
	}
	if out.SymbolInfo == nil {
		return SymbolInfo{}, &Error{Op: "symbol_info", Status: status, Message: "missing symbol_info", Malformed: true, Err: domain.ErrBridgeUnavailable}
	}
	return *out.SymbolInfo, nil
}

// IsTradable reports whether the broker accepts orders on symbol. Unknown
// symbols are reported as not tradable rather than as an error.
func (c *Client) IsTradable(ctx context.Context, symbol string) (bool, error) {
	info, err := c.SymbolInfo(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.Tradable, nil
}

// Quote returns the current bid and ask for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (bid, ask float64, err error) {
	info, err := c.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}
	return info.Bid, info.Ask, nil
}

// Execute submits a market order. A reply with success=false is returned as
// a *Error carrying the bridge message and retcode.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	var out ExecuteResponse
	status, err := c.do(ctx, "execute", http.MethodPost, "/execute", req, &out)
	if err != nil {
		return out, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = out.Comment
		}
		rc := out.Retcode
		if rc == 0 {
			rc = retcodeFromMessage(msg)
		}
		return out, &Error{Op: "execute", Status: status, Retcode: rc, Message: msg}
	}
	return out, nil
}

// Positions lists the open positions held by the terminal.
func (c *Client) Positions(ctx context.Context) ([]domain.BrokerPosition, error) {
	var out positionsResponse
	if _, err := c.do(ctx, "positions", http.MethodGet, "/positions", nil, &out); err != nil {
		return nil, err
	}
	positions := make([]domain.BrokerPosition, 0, len(out.Positions))
	for _, p := range out.Positions {
		action := domain.ActionBuy
		if strings.EqualFold(string(p.Type), "SELL") {
			action = domain.ActionSell
		}
		positions = append(positions, domain.BrokerPosition{
			Ticket:       p.Ticket,
			Symbol:       p.Symbol,
			Type:         action,
			Volume:       p.Volume,
			PriceOpen:    p.PriceOpen,
			PriceCurrent: p.PriceCurrent,
			StopLoss:     p.SL,
			TakeProfit:   p.TP,
			Profit:       p.Profit,
			Swap:         p.Swap,
			Comment:      p.Comment,
			OpenedAt:     p.Time.Time,
		})
	}
	return positions, nil
}

// ClosePosition closes a position by ticket.
func (c *Client) ClosePosition(ctx context.Context, ticket int64) (domain.CloseResult, error) {
	var out closeResponse
	status, err := c.do(ctx, "close_position", http.MethodPost, "/close_position", closeRequest{Ticket: ticket}, &out)
	if err != nil {
		return domain.CloseResult{Error: err.Error()}, err
	}
	res := domain.CloseResult{Success: out.Success, Deal: out.Deal, Price: out.Price, Error: out.Error}
	if !out.Success {
		return res, &Error{Op: "close_position", Status: status, Retcode: retcodeFromMessage(out.Error), Message: out.Error}
	}
	return res, nil
}

// Bars fetches OHLCV bars, oldest first. It satisfies
// domain.MarketDataProvider.
func (c *Client) Bars(ctx context.Context, symbol, timeframe string, count int) (domain.MarketData, error) {
	var out ratesResponse
	_, err := c.do(ctx, "rates", http.MethodPost, "/rates", ratesRequest{Symbol: symbol, Timeframe: timeframe, Count: count}, &out)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.MarketData{}, fmt.Errorf("bridge: rates %s: %w", symbol, domain.ErrDataUnavailable)
		}
		return domain.MarketData{}, err
	}
	md := domain.MarketData{Symbol: symbol, Timeframe: timeframe, Bars: make([]domain.Bar, 0, len(out.Rates))}
	for _, r := range out.Rates {
		md.Bars = append(md.Bars, domain.Bar{
			Time:   time.Unix(r.Time, 0).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: float64(r.TickVolume),
		})
	}
	if len(md.Bars) == 0 {
		return md, fmt.Errorf("bridge: rates %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return md, nil
}

// Status returns the terminal connection and account state.
func (c *Client) Status(ctx context.Context) (domain.AccountStatus, error) {
	var out statusResponse
	if _, err := c.do(ctx, "status", http.MethodGet, "/status", nil, &out); err != nil {
		return domain.AccountStatus{}, err
	}
	if !out.Connected && out.Error != "" {
		return domain.AccountStatus{}, &Error{Op: "status", Status: http.StatusOK, Message: out.Error, Err: domain.ErrBridgeUnavailable}
	}
	return domain.AccountStatus{
		Connected:    out.Connected,
		TradeAllowed: out.TradeAllowed,
		Server:       out.Server,
		Login:        out.Login,
		Balance:      out.Balance,
		Equity:       out.Equity,
		Margin:       out.Margin,
		FreeMargin:   out.FreeMargin,
		MarginLevel:  out.MarginLevel,
	}, nil
}

// Health checks that the bridge answers and the terminal is connected.
func (c *Client) Health(ctx context.Context) error {
	var out healthResponse
	if _, err := c.do(ctx, "health", http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if !out.MT5Connected {
		return &Error{Op: "health", Status: http.StatusOK, Message: "terminal not connected", Err: domain.ErrBridgeUnavailable}
	}
	return nil
}

// do performs one JSON round trip and decodes the reply into out. Non-2xx
// replies still decode the body so callers can inspect the bridge error.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &Error{Op: op, Message: err.Error(), Err: err}
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("bridge: %s: marshal request body: %w", op, err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("bridge: %s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, &Error{Op: op, Status: resp.StatusCode, Message: "read response: " + err.Error(), Err: err}
	}

	c.logger.DebugContext(ctx, "bridge: request completed",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	decodeErr := json.Unmarshal(respBody, out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(errorField(respBody))
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		var rc int
		if er, ok := out.(*ExecuteResponse); ok && decodeErr == nil {
			rc = er.Retcode
		}
		if rc == 0 {
			rc = retcodeFromMessage(msg)
		}
		return resp.StatusCode, &Error{Op: op, Status: resp.StatusCode, Retcode: rc, Message: msg, Err: statusSentinel(resp.StatusCode)}
	}
	if decodeErr != nil {
		return resp.StatusCode, &Error{Op: op, Status: resp.StatusCode, Message: decodeErr.Error(), Malformed: true, Err: domain.ErrBridgeUnavailable}
	}
	return resp.StatusCode, nil
}

func errorField(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error
}
