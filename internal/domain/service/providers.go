package service

import (
	"context"

	"LagScope/internal/domain/models"
	"LagScope/internal/domain/repository"
)

// Selection is the range/interval pair a fetch is made for.
type Selection struct {
	Range    repository.Range
	Interval repository.Interval
}

// PriceProvider fetches the raw historical points of one asset.
type PriceProvider interface {
	Name() string
	Supports(asset models.Asset) bool
	Fetch(ctx context.Context, asset models.Asset, sel Selection) ([]models.RawPoint, error)
}

// AssetSearcher resolves free-text queries into assets.
type AssetSearcher interface {
	Search(ctx context.Context, query string) ([]models.Asset, error)
}

// ProviderResolver picks the provider that serves an asset.
type ProviderResolver interface {
	Resolve(asset models.Asset) (PriceProvider, error)
}

// AssetFinder searches assets of one kind.
type AssetFinder interface {
	Search(ctx context.Context, kind models.AssetKind, query string) ([]models.Asset, error)
}
