package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"LagScope/internal/domain/models"
	"LagScope/internal/domain/service"
	"LagScope/pkg/util"
)

const (
	binanceURL        = "https://api.binance.com"
	binanceKlineLimit = "1500"
)

// Binance serves USDT spot pairs from the klines endpoint, close price per
// candle open time.
type Binance struct {
	base
}

var _ service.PriceProvider = (*Binance)(nil)

func NewBinance(opts ...Option) *Binance {
	return &Binance{base: newBase("binance", buildOptions(binanceURL, opts))}
}

func (p *Binance) Supports(a models.Asset) bool {
	return a.Kind == models.AssetCrypto && strings.HasSuffix(strings.ToUpper(a.Symbol), "USDT")
}

func (p *Binance) Fetch(ctx context.Context, a models.Asset, sel service.Selection) ([]models.RawPoint, error) {
	if !p.Supports(a) {
		return nil, unsupported(p.name, a)
	}
	// selector names match Binance interval codes one to one
	body, err := p.get(ctx, "/api/v3/klines", map[string][]string{
		"symbol":   {strings.ToUpper(a.Symbol)},
		"interval": {string(sel.Interval)},
		"limit":    {binanceKlineLimit},
	})
	if err != nil {
		return nil, err
	}

	var klines [][]json.RawMessage
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("binance decode klines: %w", err)
	}
	out := make([]models.RawPoint, 0, len(klines))
	for _, k := range klines {
		if len(k) < 5 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(k[0], &openTime); err != nil {
			continue
		}
		var closeStr string
		if err := json.Unmarshal(k[4], &closeStr); err != nil {
			continue
		}
		out = append(out, models.RawPoint{Timestamp: openTime, Value: util.ParseFloatOrNaN(closeStr)})
	}
	return sortPoints(out), nil
}
