package domain

import "time"

// Confidence reports whether a resolution was confirmed by the broker.
type Confidence string

const (
	ConfidenceHigh Confidence = "HIGH"
	ConfidenceLow  Confidence = "LOW"
)

// SymbolResolution maps a logical instrument to a broker-tradable name.
type SymbolResolution struct {
	Logical    string     `json:"logical"`
	Resolved   string     `json:"resolved"`
	Confidence Confidence `json:"confidence"`
	Probes     int        `json:"probes"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// Fallback reports whether the resolution is the unconfirmed original symbol.
func (r SymbolResolution) Fallback() bool {
	return r.Confidence != ConfidenceHigh
}
