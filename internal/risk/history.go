package risk

import (
	"sync"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// DefaultHistoryCapacity is the number of snapshots retained.
const DefaultHistoryCapacity = 100

// History is a fixed-capacity ring of snapshots. The oldest entry is evicted
// by the append that would exceed the capacity.
type History struct {
	mu    sync.RWMutex
	buf   []domain.PortfolioRiskSnapshot
	head  int // index of the oldest entry
	count int
}

// NewHistory creates a ring holding at most capacity snapshots.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{buf: make([]domain.PortfolioRiskSnapshot, capacity)}
}

// Append adds a snapshot, evicting the oldest when full.
func (h *History) Append(s domain.PortfolioRiskSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(s)
}

func (h *History) appendLocked(s domain.PortfolioRiskSnapshot) {
	if h.count < len(h.buf) {
		h.buf[(h.head+h.count)%len(h.buf)] = s
		h.count++
		return
	}
	h.buf[h.head] = s
	h.head = (h.head + 1) % len(h.buf)
}

// commit computes a value from the current totalRisk series and appends the
// snapshot it produced under a single lock, so concurrent computations observe
// a consistent series and the bound is never exceeded.
func (h *History) commit(build func(series []float64) domain.PortfolioRiskSnapshot) domain.PortfolioRiskSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	series := make([]float64, 0, h.count+1)
	for i := 0; i < h.count; i++ {
		series = append(series, h.buf[(h.head+i)%len(h.buf)].TotalRisk)
	}
	s := build(series)
	h.appendLocked(s)
	return s
}

// Snapshots returns the retained snapshots oldest first.
func (h *History) Snapshots() []domain.PortfolioRiskSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.PortfolioRiskSnapshot, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Latest returns the most recent snapshot.
func (h *History) Latest() (domain.PortfolioRiskSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return domain.PortfolioRiskSnapshot{}, false
	}
	return h.buf[(h.head+h.count-1)%len(h.buf)], true
}

// Len returns the number of retained snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the ring capacity.
func (h *History) Cap() int {
	return len(h.buf)
}
