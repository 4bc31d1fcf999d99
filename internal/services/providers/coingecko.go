package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"LagScope/internal/domain/models"
	"LagScope/internal/domain/repository"
	"LagScope/internal/domain/service"
)

const coinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGecko serves crypto history by CoinGecko coin ID.
type CoinGecko struct {
	base
}

var (
	_ service.PriceProvider = (*CoinGecko)(nil)
	_ service.AssetSearcher = (*CoinGecko)(nil)
)

func NewCoinGecko(opts ...Option) *CoinGecko {
	return &CoinGecko{base: newBase("coingecko", buildOptions(coinGeckoURL, opts))}
}

func (p *CoinGecko) Supports(a models.Asset) bool {
	return a.Kind == models.AssetCrypto && a.ID != ""
}

// Fetch loads /coins/{id}/market_chart in USD.
func (p *CoinGecko) Fetch(ctx context.Context, a models.Asset, sel service.Selection) ([]models.RawPoint, error) {
	if !p.Supports(a) {
		return nil, unsupported(p.name, a)
	}
	q := map[string][]string{
		"vs_currency": {"usd"},
		"days":        {coinGeckoDays(sel.Range)},
	}
	// minutely is implied by days=1 on the public API and rejected when sent
	if iv := coinGeckoInterval(sel.Range, sel.Interval); iv != "minutely" {
		q["interval"] = []string{iv}
	}
	body, err := p.get(ctx, "/coins/"+url.PathEscape(a.ID)+"/market_chart", q)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Prices [][2]*float64 `json:"prices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("coingecko decode market_chart: %w", err)
	}
	out := make([]models.RawPoint, 0, len(resp.Prices))
	for _, pr := range resp.Prices {
		if pr[0] == nil {
			continue
		}
		pt := models.RawPoint{Timestamp: int64(*pr[0]), Value: models.Null()}
		if pr[1] != nil {
			pt.Value = *pr[1]
		}
		out = append(out, pt)
	}
	return sortPoints(out), nil
}

// Search resolves free text through /search.
func (p *CoinGecko) Search(ctx context.Context, query string) ([]models.Asset, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Asset{}, nil
	}
	body, err := p.get(ctx, "/search", map[string][]string{"query": {query}})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Coins []struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
		} `json:"coins"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("coingecko decode search: %w", err)
	}
	out := make([]models.Asset, 0, len(resp.Coins))
	for _, c := range resp.Coins {
		out = append(out, models.Asset{
			Kind:   models.AssetCrypto,
			ID:     c.ID,
			Symbol: strings.ToUpper(c.Symbol),
			Name:   c.Name,
		})
	}
	return out, nil
}

func coinGeckoDays(r repository.Range) string {
	switch r {
	case repository.Range7d:
		return "7"
	case repository.Range14d:
		return "14"
	case repository.Range30d:
		return "30"
	case repository.RangeMax:
		return "max"
	default:
		return "1"
	}
}

func coinGeckoInterval(r repository.Range, iv repository.Interval) string {
	switch {
	case iv == repository.Interval1d || iv == repository.Interval1w:
		return "daily"
	case r == repository.Range12h || r == repository.Range1d:
		return "minutely"
	case r == repository.Range7d || r == repository.Range14d || r == repository.Range30d:
		return "hourly"
	default:
		return "daily"
	}
}
