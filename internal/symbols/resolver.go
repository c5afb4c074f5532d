// Package symbols maps logical instrument names to the names a specific
// broker actually trades.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Prober asks the broker whether a concrete symbol is tradable.
type Prober interface {
	IsTradable(ctx context.Context, symbol string) (bool, error)
}

// Defaults used when Options leaves a field zero.
const (
	DefaultProbeTimeout = 3 * time.Second
	DefaultCacheTTL     = 6 * time.Hour
)

// Options configure a Resolver.
type Options struct {
	ProbeTimeout time.Duration
	CacheTTL     time.Duration
	// Shared, when set, lets several processes reuse confirmed resolutions.
	Shared domain.ResolutionCache
}

// Resolver resolves logical symbols by probing candidate names in order.
// Confirmed resolutions are cached for CacheTTL; fallbacks are never cached.
// Concurrent lookups of the same symbol share one probe sequence.
type Resolver struct {
	prober  Prober
	aliases *AliasTable
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]domain.SymbolResolution
}

// NewResolver creates a Resolver.
func NewResolver(prober Prober, aliases *AliasTable, opts Options, logger *slog.Logger) *Resolver {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if aliases == nil {
		aliases = &AliasTable{}
	}
	return &Resolver{
		prober:  prober,
		aliases: aliases,
		opts:    opts,
		logger:  logger.With(slog.String("component", "symbol_resolver")),
		now:     time.Now,
		cache:   make(map[string]domain.SymbolResolution),
	}
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Candidates returns the probe order for a logical symbol.
func (r *Resolver) Candidates(logical string) []string {
	return r.aliases.Candidates(logical)
}

// Resolve returns the broker name for logical. If no candidate is confirmed,
// the original symbol is returned with LOW confidence and a nil error. An
// error is returned only for an empty symbol or a cancelled context.
func (r *Resolver) Resolve(ctx context.Context, logical string) (domain.SymbolResolution, error) {
	key := normalize(logical)
	if key == "" {
		return domain.SymbolResolution{}, fmt.Errorf("symbols: resolve: %w: empty symbol", domain.ErrInvalidOrder)
	}

	if res, ok := r.cached(key); ok {
		metrics.SymbolLookups.WithLabelValues("cache").Inc()
		return res, nil
	}
	if res, ok := r.fromShared(ctx, key); ok {
		metrics.SymbolLookups.WithLabelValues("shared").Inc()
		return res, nil
	}

	// The probe sequence is shared with other callers, so it must not die
	// with the first caller's context.
	base := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.probe(base, key), nil
	})

	select {
	case <-ctx.Done():
		return r.fallback(key, 0), ctx.Err()
	case out := <-ch:
		res := out.Val.(domain.SymbolResolution)
		if res.Fallback() {
			metrics.SymbolLookups.WithLabelValues("fallback").Inc()
		} else {
			metrics.SymbolLookups.WithLabelValues("probe").Inc()
		}
		return res, nil
	}
}

func (r *Resolver) probe(ctx context.Context, key string) domain.SymbolResolution {
	// A flight that finished just before this one started may have filled
	// the cache.
	if res, ok := r.cached(key); ok {
		return res
	}

	probes := 0
	for _, cand := range r.aliases.Candidates(key) {
		pctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
		ok, err := r.prober.IsTradable(pctx, cand)
		cancel()
		probes++
		metrics.SymbolProbes.Inc()

		if err != nil {
			r.logger.Debug("symbol_resolver: probe failed",
				slog.String("logical", key),
				slog.String("candidate", cand),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}

		res := domain.SymbolResolution{
			Logical:    key,
			Resolved:   cand,
			Confidence: domain.ConfidenceHigh,
			Probes:     probes,
			ResolvedAt: r.now(),
		}
		r.store(ctx, res)
		r.logger.Info("symbol_resolver: resolved",
			slog.String("logical", key),
			slog.String("resolved", cand),
			slog.Int("probes", probes),
		)
		return res
	}

	r.logger.Warn("symbol_resolver: no tradable variant, using original",
		slog.String("logical", key),
		slog.Int("probes", probes),
	)
	return r.fallback(key, probes)
}

func (r *Resolver) fallback(key string, probes int) domain.SymbolResolution {
	return domain.SymbolResolution{
		Logical:    key,
		Resolved:   key,
		Confidence: domain.ConfidenceLow,
		Probes:     probes,
		ResolvedAt: r.now(),
	}
}

func (r *Resolver) cached(key string) (domain.SymbolResolution, bool) {
	r.mu.RLock()
	res, ok := r.cache[key]
	r.mu.RUnlock()
	if !ok || r.expired(res) {
		return domain.SymbolResolution{}, false
	}
	return res, true
}

func (r *Resolver) expired(res domain.SymbolResolution) bool {
	return r.now().Sub(res.ResolvedAt) >= r.opts.CacheTTL
}

func (r *Resolver) fromShared(ctx context.Context, key string) (domain.SymbolResolution, bool) {
	if r.opts.Shared == nil {
		return domain.SymbolResolution{}, false
	}
	res, err := r.opts.Shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("symbol_resolver: shared cache read failed",
				slog.String("logical", key),
				slog.String("error", err.Error()),
			)
		}
		return domain.SymbolResolution{}, false
	}
	if res.Fallback() || res.Resolved == "" || r.expired(res) {
		return domain.SymbolResolution{}, false
	}
	r.mu.Lock()
	r.cache[key] = res
	r.mu.Unlock()
	return res, true
}

func (r *Resolver) store(ctx context.Context, res domain.SymbolResolution) {
	r.mu.Lock()
	r.cache[res.Logical] = res
	r.mu.Unlock()

	if r.opts.Shared == nil {
		return
	}
	if err := r.opts.Shared.Set(ctx, res, r.opts.CacheTTL); err != nil {
		r.logger.Warn("symbol_resolver: shared cache write failed",
			slog.String("logical", res.Logical),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops any cached resolution for logical, locally and in the
// shared cache.
func (r *Resolver) Invalidate(ctx context.Context, logical string) {
	key := normalize(logical)
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()

	if r.opts.Shared != nil {
		if err := r.opts.Shared.Invalidate(ctx, key); err != nil {
			r.logger.Warn("symbol_resolver: shared invalidate failed",
				slog.String("logical", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Cached returns all unexpired resolutions, keyed by logical symbol.
func (r *Resolver) Cached() map[string]domain.SymbolResolution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.SymbolResolution, len(r.cache))
	for k, v := range r.cache {
		if !r.expired(v) {
			out[k] = v
		}
	}
	return out
}

// Sweep removes expired entries and returns how many were dropped.
func (r *Resolver) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, v := range r.cache {
		if r.expired(v) {
			delete(r.cache, k)
			n++
		}
	}
	return n
}

// RunSweeper sweeps the cache every interval until ctx is cancelled.
func (r *Resolver) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("symbol_resolver: swept expired entries", slog.Int("count", n))
			}
		}
	}
}
