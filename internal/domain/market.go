package domain

import (
	"context"
	"time"
)

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// MarketData is a chronological bar series for one symbol and timeframe.
type MarketData struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Bars      []Bar  `json:"bars"`
}

// Closes returns the close prices in order.
func (m MarketData) Closes() []float64 {
	out := make([]float64, len(m.Bars))
	for i, b := range m.Bars {
		out[i] = b.Close
	}
	return out
}

// MarketDataProvider supplies bar series. Implementations return
// ErrDataUnavailable when the series cannot be produced.
type MarketDataProvider interface {
	Bars(ctx context.Context, symbol, timeframe string, count int) (MarketData, error)
}
