// Package providers fetches raw price history and asset search results from
// public market data APIs. Every upstream call runs through a per-provider
// circuit breaker.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"LagScope/internal/domain/models"
	xhttp "LagScope/pkg/http"
)

// ErrUnsupportedAsset is returned when no provider can serve an asset.
var ErrUnsupportedAsset = errors.New("unsupported asset")

// Option configures a provider.
type Option func(*options)

type options struct {
	baseURL        string
	client         *xhttp.Client
	breakerTimeout time.Duration
	breakerFails   uint32
	apiKey         string
	rps            float64
}

func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithHTTPClient shares one pkg/http client between providers.
func WithHTTPClient(c *xhttp.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithBreaker sets how long the breaker stays open and how many consecutive
// failures trip it.
func WithBreaker(timeout time.Duration, failures uint32) Option {
	return func(o *options) {
		if timeout > 0 {
			o.breakerTimeout = timeout
		}
		if failures > 0 {
			o.breakerFails = failures
		}
	}
}

func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithRequestsPerSecond caps the call rate (AlphaVantage only).
func WithRequestsPerSecond(rps float64) Option {
	return func(o *options) {
		if rps > 0 {
			o.rps = rps
		}
	}
}

func buildOptions(defaultURL string, opts []Option) *options {
	o := &options{
		baseURL:        defaultURL,
		breakerTimeout: 30 * time.Second,
		breakerFails:   5,
		rps:            5.0 / 60,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		o.client = xhttp.NewClient(xhttp.WithTimeout(15 * time.Second))
	}
	return o
}

// base centralizes the HTTP client and breaker of one provider.
type base struct {
	name    string
	baseURL string
	client  *xhttp.Client
	breaker *gobreaker.CircuitBreaker
}

func newBase(name string, o *options) base {
	fails := o.breakerFails
	return base{
		name:    name,
		baseURL: o.baseURL,
		client:  o.client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: o.breakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= fails
			},
			IsSuccessful: breakerSuccess,
		}),
	}
}

func (b *base) Name() string { return b.name }

// get runs a GET against baseURL+path through the breaker.
func (b *base) get(ctx context.Context, path string, query map[string][]string) ([]byte, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.client.SendAndRead(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         b.baseURL + path,
			QueryParams: query,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", b.name, path, err)
	}
	return out.([]byte), nil
}

// breakerSuccess keeps client errors (unknown symbol, bad request) from
// tripping the breaker; only transport failures, 429 and 5xx count.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return errors.Is(err, context.Canceled)
}

func unsupported(provider string, a models.Asset) error {
	return fmt.Errorf("%s: %w: %s %q", provider, ErrUnsupportedAsset, a.Kind, a.Key())
}

// sortPoints orders points by timestamp; providers return maps or
// descending lists.
func sortPoints(pts []models.RawPoint) []models.RawPoint {
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Timestamp < pts[j].Timestamp })
	return pts
}
