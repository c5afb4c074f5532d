package risk

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/google/uuid"
)

// ErrInvalidPosition is returned when a position fails basic validation.
var ErrInvalidPosition = domain.ErrInvalidPosition

// PositionStore owns the open book. Writes to one position id are linearized
// by a per-key lock, so concurrent open, close and price events for the same
// position cannot interleave. Snapshots are copies in insertion order.
type PositionStore struct {
	mu      sync.RWMutex
	entries map[string]storedPosition
	seq     uint64
	keys    keyLocks
	now     func() time.Time
}

type storedPosition struct {
	pos domain.Position
	seq uint64
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		entries: make(map[string]storedPosition),
		keys:    keyLocks{m: make(map[string]*keyLock)},
		now:     time.Now,
	}
}

// Upsert inserts or replaces a position and returns the stored copy. An empty
// ID is derived from the broker ticket, or generated.
func (s *PositionStore) Upsert(pos domain.Position) (domain.Position, error) {
	if err := validatePosition(pos); err != nil {
		return domain.Position{}, err
	}
	if pos.ID == "" {
		if pos.Ticket != 0 {
			pos.ID = strconv.FormatInt(pos.Ticket, 10)
		} else {
			pos.ID = uuid.NewString()
		}
	}
	pos.Symbol = strings.ToUpper(pos.Symbol)

	unlock := s.keys.lock(pos.ID)
	defer unlock()

	now := s.now().UTC()
	pos.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entries[pos.ID]
	if pos.OpenedAt.IsZero() {
		// An update without an open time keeps the stored one.
		if ok && !existing.pos.OpenedAt.IsZero() {
			pos.OpenedAt = existing.pos.OpenedAt
			pos.HoursOpen = pos.Age(now)
		} else {
			pos.OpenedAt = now.Add(-time.Duration(pos.HoursOpen * float64(time.Hour)))
		}
	}
	seq := existing.seq
	if !ok {
		s.seq++
		seq = s.seq
	}
	s.entries[pos.ID] = storedPosition{pos: pos, seq: seq}
	return pos, nil
}

// Mutate applies fn to the position with the given id while holding that
// position's write lock. The change is discarded if fn returns an error.
func (s *PositionStore) Mutate(id string, fn func(*domain.Position) error) (domain.Position, error) {
	unlock := s.keys.lock(id)
	defer unlock()

	s.mu.RLock()
	cur, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Position{}, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}

	next := cur.pos
	if err := fn(&next); err != nil {
		return domain.Position{}, err
	}
	next.ID = id
	if err := validatePosition(next); err != nil {
		return domain.Position{}, err
	}
	next.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	s.entries[id] = storedPosition{pos: next, seq: cur.seq}
	s.mu.Unlock()
	return next, nil
}

// Remove deletes a position by id and returns it.
func (s *PositionStore) Remove(id string) (domain.Position, error) {
	unlock := s.keys.lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}
	delete(s.entries, id)
	return cur.pos, nil
}

// RemoveSymbol deletes every position on symbol and returns them.
func (s *PositionStore) RemoveSymbol(symbol string) []domain.Position {
	var removed []domain.Position
	for _, p := range s.BySymbol(symbol) {
		if pos, err := s.Remove(p.ID); err == nil {
			removed = append(removed, pos)
		}
	}
	return removed
}

// RefreshAges recomputes the time-in-position of every open position.
func (s *PositionStore) RefreshAges(now time.Time) {
	for _, p := range s.Snapshot() {
		_, _ = s.Mutate(p.ID, func(pos *domain.Position) error {
			pos.HoursOpen = pos.Age(now)
			return nil
		})
	}
}

// Get returns a copy of one position.
func (s *PositionStore) Get(id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.entries[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}
	return cur.pos, nil
}

// Snapshot returns a copy of the book in insertion order.
func (s *PositionStore) Snapshot() []domain.Position {
	s.mu.RLock()
	list := make([]storedPosition, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]domain.Position, len(list))
	for i, e := range list {
		out[i] = e.pos
	}
	return out
}

// BySymbol returns the positions on symbol in insertion order.
func (s *PositionStore) BySymbol(symbol string) []domain.Position {
	symbol = strings.ToUpper(symbol)
	var out []domain.Position
	for _, p := range s.Snapshot() {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

// Symbols returns the distinct open symbols in first-seen order.
func (s *PositionStore) Symbols() []string {
	return distinctSymbols(s.Snapshot())
}

// Len returns the number of open positions.
func (s *PositionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func distinctSymbols(positions []domain.Position) []string {
	seen := make(map[string]bool, len(positions))
	var out []string
	for _, p := range positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	return out
}

func validatePosition(p domain.Position) error {
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidPosition)
	}
	if p.RiskPercent < 0 || !finite(p.RiskPercent) {
		return fmt.Errorf("%w: risk percent must be a non-negative number, got %v", ErrInvalidPosition, p.RiskPercent)
	}
	if !finite(p.Size) || !finite(p.CurrentPrice) || !finite(p.EntryPrice) {
		return fmt.Errorf("%w: size and prices must be finite", ErrInvalidPosition)
	}
	if p.HoursOpen < 0 || math.IsNaN(p.HoursOpen) {
		return fmt.Errorf("%w: time in position must be >= 0", ErrInvalidPosition)
	}
	return nil
}

// keyLocks hands out one mutex per key and frees it once unused.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
