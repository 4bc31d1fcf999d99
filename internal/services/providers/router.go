package providers

import (
	"context"
	"regexp"
	"strings"

	"LagScope/internal/domain/models"
	"LagScope/internal/domain/service"
	applogger "LagScope/pkg/logger"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]{2,10}$`)

// manualTickerName marks a search hit that was not confirmed upstream.
const manualTickerName = "(manual ticker)"

// Router picks the first provider in preference order that supports an
// asset and dispatches searches by asset kind.
type Router struct {
	providers []service.PriceProvider
	crypto    service.AssetSearcher
	equity    service.AssetSearcher
	l         *applogger.Logger
}

var (
	_ service.ProviderResolver = (*Router)(nil)
	_ service.AssetFinder      = (*Router)(nil)
)

// NewRouter takes providers in preference order. Either searcher may be nil.
func NewRouter(providers []service.PriceProvider, crypto, equity service.AssetSearcher, l *applogger.Logger) *Router {
	if l == nil {
		l = applogger.Nop()
	}
	return &Router{providers: providers, crypto: crypto, equity: equity, l: l}
}

func (r *Router) Resolve(a models.Asset) (service.PriceProvider, error) {
	for _, p := range r.providers {
		if p.Supports(a) {
			return p, nil
		}
	}
	return nil, unsupported("router", a)
}

// Search never fails on upstream errors: an equity query that looks like a
// ticker still yields a manual entry.
func (r *Router) Search(ctx context.Context, kind models.AssetKind, query string) ([]models.Asset, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Asset{}, nil
	}
	switch kind {
	case models.AssetCrypto:
		if r.crypto == nil {
			return []models.Asset{}, nil
		}
		return r.crypto.Search(ctx, query)
	case models.AssetEquity:
		if r.equity != nil {
			found, err := r.equity.Search(ctx, query)
			if err != nil {
				r.l.Warn("equity search failed, using ticker fallback",
					applogger.String("query", query), applogger.Error(err))
			} else if len(found) > 0 {
				return found, nil
			}
		}
		return tickerFallback(query), nil
	default:
		return nil, unsupported("router", models.Asset{Kind: kind, Symbol: query})
	}
}

func tickerFallback(query string) []models.Asset {
	sym := strings.ToUpper(query)
	if !tickerPattern.MatchString(sym) {
		return []models.Asset{}
	}
	return []models.Asset{{Kind: models.AssetEquity, Symbol: sym, Name: manualTickerName}}
}
