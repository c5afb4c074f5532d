package bridge

import (
	"encoding/json"
	"time"
)

// SymbolInfo is the /symbol_info payload.
type SymbolInfo struct {
	Name        string  `json:"name"`
	Visible     bool    `json:"visible"`
	Tradable    bool    `json:"tradable"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Spread      float64 `json:"spread"`
	Digits      int     `json:"digits"`
	Point       float64 `json:"point"`
	VolumeMin   float64 `json:"volume_min"`
	VolumeMax   float64 `json:"volume_max"`
	VolumeStep  float64 `json:"volume_step"`
	FillingMode int     `json:"filling_mode"`
}

type symbolInfoRequest struct {
	Symbol string `json:"symbol"`
}

type symbolInfoResponse struct {
	SymbolInfo *SymbolInfo `json:"symbol_info"`
	Error      string      `json:"error,omitempty"`
}

// ExecuteRequest is the /execute body.
type ExecuteRequest struct {
	Symbol  string  `json:"symbol"`
	Action  string  `json:"action"`
	Volume  float64 `json:"volume"`
	SL      float64 `json:"sl"`
	TP      float64 `json:"tp"`
	Comment string  `json:"comment"`
}

// ExecuteResponse is the /execute reply.
type ExecuteResponse struct {
	Success         bool    `json:"success"`
	Order           int64   `json:"order"`
	Deal            int64   `json:"deal"`
	Price           float64 `json:"price"`
	Volume          float64 `json:"volume"`
	Retcode         int     `json:"retcode"`
	Comment         string  `json:"comment"`
	FillingModeUsed int     `json:"filling_mode_used"`
	Error           string  `json:"error"`
}

type positionsResponse struct {
	Positions []positionPayload `json:"positions"`
	Error     string            `json:"error,omitempty"`
}

type positionPayload struct {
	Ticket       int64       `json:"ticket"`
	Symbol       string      `json:"symbol"`
	Type         flexType    `json:"type"`
	Volume       float64     `json:"volume"`
	PriceOpen    float64     `json:"price_open"`
	PriceCurrent float64     `json:"price_current"`
	SL           float64     `json:"sl"`
	TP           float64     `json:"tp"`
	Profit       float64     `json:"profit"`
	Swap         float64     `json:"swap"`
	Comment      string      `json:"comment"`
	Time         flexTime    `json:"time"`
}

// flexType accepts both the numeric MT5 position type (0 buy, 1 sell) and
// the string form "BUY"/"SELL" some bridge builds emit.
type flexType string

func (f *flexType) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if n == 1 {
			*f = "SELL"
		} else {
			*f = "BUY"
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = flexType(s)
	return nil
}

type closeRequest struct {
	Ticket int64 `json:"ticket"`
}

type closeResponse struct {
	Success bool    `json:"success"`
	Deal    int64   `json:"deal"`
	Price   float64 `json:"price"`
	Error   string  `json:"error"`
}

type ratesRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Count     int    `json:"count"`
}

type ratesResponse struct {
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Rates     []ratePayload `json:"rates"`
	Error     string        `json:"error,omitempty"`
}

type ratePayload struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume int64   `json:"tick_volume"`
}

type statusResponse struct {
	Connected    bool    `json:"connected"`
	TradeAllowed bool    `json:"trade_allowed"`
	Server       string  `json:"server"`
	Login        int64   `json:"login"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	FreeMargin   float64 `json:"free_margin"`
	MarginLevel  float64 `json:"margin_level"`
	Error        string  `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string `json:"status"`
	MT5Connected bool   `json:"mt5_connected"`
}

// flexTime accepts epoch seconds or an ISO-8601 timestamp.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		if n > 0 {
			f.Time = time.Unix(n, 0).UTC()
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t.UTC()
			return nil
		}
	}
	return nil
}
