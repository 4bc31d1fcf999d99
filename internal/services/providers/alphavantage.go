package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"LagScope/internal/domain/models"
	"LagScope/internal/domain/repository"
	"LagScope/internal/domain/service"
	"LagScope/pkg/util"
)

const alphaVantageURL = "https://www.alphavantage.co/query"

// ErrRateLimited is returned when AlphaVantage answers with a throttling note.
var ErrRateLimited = errors.New("alphavantage rate limit")

var alphaVantageIntervals = map[repository.Interval]string{
	repository.Interval1m:  "1min",
	repository.Interval5m:  "5min",
	repository.Interval15m: "15min",
	repository.Interval1h:  "60min",
}

// AlphaVantage serves equities: intraday series for 1m..1h, daily adjusted
// closes otherwise. Requires an API key.
type AlphaVantage struct {
	base
	apiKey  string
	limiter *rate.Limiter
	market  *time.Location
}

var (
	_ service.PriceProvider = (*AlphaVantage)(nil)
	_ service.AssetSearcher = (*AlphaVantage)(nil)
)

func NewAlphaVantage(opts ...Option) *AlphaVantage {
	o := buildOptions(alphaVantageURL, opts)
	// intraday timestamps are US/Eastern
	market, err := time.LoadLocation("America/New_York")
	if err != nil {
		market = time.UTC
	}
	return &AlphaVantage{
		base:    newBase("alphavantage", o),
		apiKey:  o.apiKey,
		limiter: rate.NewLimiter(rate.Limit(o.rps), 1),
		market:  market,
	}
}

// Enabled reports whether an API key is configured.
func (p *AlphaVantage) Enabled() bool { return p.apiKey != "" }

func (p *AlphaVantage) Supports(a models.Asset) bool {
	return p.Enabled() && a.Kind == models.AssetEquity && a.Symbol != ""
}

func (p *AlphaVantage) Fetch(ctx context.Context, a models.Asset, sel service.Selection) ([]models.RawPoint, error) {
	if !p.Supports(a) {
		return nil, unsupported(p.name, a)
	}
	q := map[string][]string{
		"symbol":     {a.Symbol},
		"outputsize": {"full"},
		"datatype":   {"json"},
	}
	loc := time.UTC
	if iv, ok := alphaVantageIntervals[sel.Interval]; ok {
		q["function"] = []string{"TIME_SERIES_INTRADAY"}
		q["interval"] = []string{iv}
		loc = p.market
	} else {
		q["function"] = []string{"TIME_SERIES_DAILY_ADJUSTED"}
	}

	raw, err := p.query(ctx, q)
	if err != nil {
		return nil, err
	}
	var series map[string]map[string]string
	for key, v := range raw {
		if strings.Contains(key, "Time Series") {
			if err := json.Unmarshal(v, &series); err != nil {
				return nil, fmt.Errorf("alphavantage decode %s: %w", key, err)
			}
			break
		}
	}

	out := make([]models.RawPoint, 0, len(series))
	for ts, bar := range series {
		t, ok := util.ParseDateTimeIn(ts, loc)
		if !ok {
			continue
		}
		out = append(out, models.RawPoint{Timestamp: t.UnixMilli(), Value: util.ParseFloatOrNaN(bar["4. close"])})
	}
	return sortPoints(out), nil
}

// Search runs SYMBOL_SEARCH.
func (p *AlphaVantage) Search(ctx context.Context, query string) ([]models.Asset, error) {
	query = strings.TrimSpace(query)
	if query == "" || !p.Enabled() {
		return []models.Asset{}, nil
	}
	raw, err := p.query(ctx, map[string][]string{
		"function": {"SYMBOL_SEARCH"},
		"keywords": {query},
	})
	if err != nil {
		return nil, err
	}
	var matches []map[string]string
	if b, ok := raw["bestMatches"]; ok {
		if err := json.Unmarshal(b, &matches); err != nil {
			return nil, fmt.Errorf("alphavantage decode bestMatches: %w", err)
		}
	}
	out := make([]models.Asset, 0, len(matches))
	for _, m := range matches {
		out = append(out, models.Asset{
			Kind:     models.AssetEquity,
			Symbol:   m["1. symbol"],
			Name:     m["2. name"],
			Region:   m["4. region"],
			Currency: m["8. currency"],
		})
	}
	return out, nil
}

// query waits on the limiter, adds the key and decodes the top-level object.
// AlphaVantage reports throttling and bad symbols with HTTP 200.
func (p *AlphaVantage) query(ctx context.Context, q map[string][]string) (map[string]json.RawMessage, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("alphavantage limiter: %w", err)
	}
	q["apikey"] = []string{p.apiKey}
	body, err := p.get(ctx, "", q)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("alphavantage decode: %w", err)
	}
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := raw[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, unquote(msg))
		}
	}
	if msg, ok := raw["Error Message"]; ok {
		return nil, fmt.Errorf("alphavantage: %s", unquote(msg))
	}
	return raw, nil
}

func unquote(b json.RawMessage) string {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return string(b)
	}
	return s
}
