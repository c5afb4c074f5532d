package service

import (
	"context"
	"strings"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/risk"
)

// SymbolResolver resolves logical symbols to broker names.
// *symbols.Resolver implements it.
type SymbolResolver interface {
	Resolve(ctx context.Context, logical string) (domain.SymbolResolution, error)
}

// BrokerSymbols maps logical symbols to the names the broker serves market
// data under. The name an open position was filled under wins; otherwise the
// resolver is asked, and the logical symbol is the last resort.
type BrokerSymbols struct {
	book     *risk.PositionStore
	resolver SymbolResolver
}

var _ risk.SymbolMapper = (*BrokerSymbols)(nil)

// NewBrokerSymbols creates a mapper. resolver may be nil.
func NewBrokerSymbols(book *risk.PositionStore, resolver SymbolResolver) *BrokerSymbols {
	return &BrokerSymbols{book: book, resolver: resolver}
}

// BrokerSymbol returns the broker name for logical.
func (b *BrokerSymbols) BrokerSymbol(ctx context.Context, logical string) string {
	logical = strings.ToUpper(strings.TrimSpace(logical))
	if b.book != nil {
		for _, p := range b.book.BySymbol(logical) {
			if p.BrokerSymbol != "" {
				return p.BrokerSymbol
			}
		}
	}
	if b.resolver != nil {
		if res, err := b.resolver.Resolve(ctx, logical); err == nil && res.Resolved != "" {
			return res.Resolved
		}
	}
	return logical
}
