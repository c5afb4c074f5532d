package execution

import (
	"sync"
	"time"
)

// Dedup tracks correlation ids so a filled order is never resubmitted and
// two submissions of the same id never overlap. It is safe for concurrent use.
type Dedup struct {
	mu       sync.Mutex
	filled   map[string]time.Time // correlationID -> fill time
	inFlight map[string]struct{}
	ttl      time.Duration
	now      func() time.Time
}

// NewDedup creates a Dedup that remembers fills for ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		filled:   make(map[string]time.Time),
		inFlight: make(map[string]struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Begin marks id as in flight. It reports duplicate when id was filled
// within the TTL, and busy when another submission of id is running.
func (d *Dedup) Begin(id string) (duplicate, busy bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.filled[id]; ok && d.now().Sub(at) < d.ttl {
		return true, false
	}
	if _, ok := d.inFlight[id]; ok {
		return false, true
	}
	d.inFlight[id] = struct{}{}
	return false, false
}

// Finish releases id. A filled id is remembered for the TTL.
func (d *Dedup) Finish(id string, filled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inFlight, id)
	if filled {
		d.filled[id] = d.now()
	}
}

// Cleanup removes fills older than the TTL. Call it periodically to bound
// memory.
func (d *Dedup) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	n := 0
	for id, ts := range d.filled {
		if now.Sub(ts) >= d.ttl {
			delete(d.filled, id)
			n++
		}
	}
	return n
}
