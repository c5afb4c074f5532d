package domain

import "time"

// Position is an open position tracked by the risk engine.
type Position struct {
	ID            string    `json:"id"`
	Ticket        int64     `json:"ticket,omitempty"`
	Symbol        string    `json:"symbol"`
	BrokerSymbol  string    `json:"broker_symbol,omitempty"`
	Strategy      string    `json:"strategy"`
	Size          float64   `json:"size"` // signed: negative for short
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	RiskPercent   float64   `json:"risk_percent"`
	HoursOpen     float64   `json:"time_in_position"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfit    float64   `json:"take_profit,omitempty"`
	Profit        float64   `json:"profit,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OpenedAt      time.Time `json:"opened_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Notional returns |size × currentPrice|.
func (p Position) Notional() float64 {
	n := p.Size * p.CurrentPrice
	if n < 0 {
		return -n
	}
	return n
}

// Age returns the hours elapsed since OpenedAt, or HoursOpen when no open
// time is known.
func (p Position) Age(now time.Time) float64 {
	if p.OpenedAt.IsZero() {
		return p.HoursOpen
	}
	h := now.Sub(p.OpenedAt).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// BrokerPosition is an open position as reported by the broker bridge.
type BrokerPosition struct {
	Ticket       int64
	Symbol       string
	Type         OrderAction
	Volume       float64
	PriceOpen    float64
	PriceCurrent float64
	StopLoss     float64
	TakeProfit   float64
	Profit       float64
	Swap         float64
	Comment      string
	OpenedAt     time.Time
}

// CloseResult is the outcome of closing a position at the broker.
type CloseResult struct {
	Success bool    `json:"success"`
	Deal    int64   `json:"deal,omitempty"`
	Price   float64 `json:"price,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// AccountStatus is the broker terminal connection and account state.
type AccountStatus struct {
	Connected    bool    `json:"connected"`
	TradeAllowed bool    `json:"trade_allowed"`
	Server       string  `json:"server,omitempty"`
	Login        int64   `json:"login,omitempty"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	FreeMargin   float64 `json:"free_margin"`
	MarginLevel  float64 `json:"margin_level"`
}

// SyncResult summarizes one reconciliation of the book against the broker.
type SyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}
