package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"LagScope/internal/domain/models"
	domrepo "LagScope/internal/domain/repository"
	"LagScope/internal/domain/service"
	"LagScope/internal/services/resample"
	"LagScope/pkg/cache"
	applogger "LagScope/pkg/logger"
)

var ErrNoAssets = errors.New("at least one asset is required")

// LoadRequest selects the assets and grid of a dataset.
type LoadRequest struct {
	Assets   []models.Asset
	Range    string
	Interval string
	Align    string
	Now      time.Time
}

// DatasetLoader fetches raw points per asset (cache first, then provider,
// then the point archive) and aligns them onto one grid. A failing asset
// becomes an all-null series; it never fails the dataset.
type DatasetLoader struct {
	resolver   service.ProviderResolver
	cache      cache.Service
	cacheTTL   time.Duration
	prefix     string
	store      domrepo.PointStore
	metrics    domrepo.Metrics
	l          *applogger.Logger
	workers    int
	maxBuckets int64
	now        func() time.Time
}

type LoaderOption func(*DatasetLoader)

// WithCache caches raw provider points under prefix with a max-age.
func WithCache(c cache.Service, prefix string, ttl time.Duration) LoaderOption {
	return func(d *DatasetLoader) {
		d.cache = c
		d.prefix = prefix
		if ttl > 0 {
			d.cacheTTL = ttl
		}
	}
}

// WithPointStore archives fetched points and serves them when a provider
// fails.
func WithPointStore(s domrepo.PointStore) LoaderOption {
	return func(d *DatasetLoader) { d.store = s }
}

func WithLoaderMetrics(m domrepo.Metrics) LoaderOption {
	return func(d *DatasetLoader) {
		if m != nil {
			d.metrics = m
		}
	}
}

func WithLoaderLogger(l *applogger.Logger) LoaderOption {
	return func(d *DatasetLoader) {
		if l != nil {
			d.l = l
		}
	}
}

// WithFetchConcurrency bounds parallel provider fetches.
func WithFetchConcurrency(n int) LoaderOption {
	return func(d *DatasetLoader) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithMaxBuckets rejects requests whose grid would exceed n buckets.
func WithMaxBuckets(n int) LoaderOption {
	return func(d *DatasetLoader) { d.maxBuckets = int64(n) }
}

func WithLoaderClock(now func() time.Time) LoaderOption {
	return func(d *DatasetLoader) { d.now = now }
}

func NewDatasetLoader(resolver service.ProviderResolver, opts ...LoaderOption) *DatasetLoader {
	d := &DatasetLoader{
		resolver: resolver,
		cacheTTL: 5 * time.Minute,
		prefix:   "lagscope",
		metrics:  nopMetrics{},
		l:        applogger.Nop(),
		workers:  4,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.l = d.l.With(applogger.String("component", "dataset_loader"))
	return d
}

func (d *DatasetLoader) Load(ctx context.Context, req LoadRequest) (models.Dataset, error) {
	start := time.Now()
	assets := uniqueAssets(req.Assets)
	if len(assets) == 0 {
		return models.Dataset{}, ErrNoAssets
	}
	policy, err := resample.ParsePolicy(req.Align)
	if err != nil {
		return models.Dataset{}, err
	}
	now := req.Now
	if now.IsZero() {
		now = d.now()
	}
	if d.maxBuckets > 0 {
		if n := resample.CountBuckets(req.Range, req.Interval, now); n > d.maxBuckets {
			return models.Dataset{}, fmt.Errorf("%w: %d buckets, max %d", resample.ErrTooManyBuckets, n, d.maxBuckets)
		}
	}
	grid, err := resample.BuildGrid(req.Range, req.Interval, now)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("build grid: %w", err)
	}
	sel := service.Selection{
		Range:    domrepo.Range(grid.Range),
		Interval: domrepo.Interval(grid.Interval),
	}

	raw := make([]models.PointSeries, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, a := range assets {
		g.Go(func() error {
			raw[i] = models.PointSeries{Label: a.Label(), Asset: a, Points: d.points(gctx, a, sel, grid)}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return models.Dataset{}, fmt.Errorf("load dataset: %w", err)
	}

	aligned, err := resample.Align(grid, raw, policy)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("align: %w", err)
	}
	d.metrics.RecordLatency("dataset_load", time.Since(start).Seconds())
	d.l.Info("dataset loaded",
		applogger.Int("assets", len(assets)),
		applogger.Int("buckets", grid.Len()),
		applogger.String("range", grid.Range),
		applogger.String("interval", grid.Interval),
		applogger.String("align", string(policy)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return models.Dataset{Grid: grid, Series: aligned, Align: string(policy)}, nil
}

type pointsCacheKey struct {
	Kind     models.AssetKind `json:"kind"`
	Key      string           `json:"key"`
	Range    string           `json:"range"`
	Interval string           `json:"interval"`
}

// points never fails: errors degrade to the archive, then to no points.
func (d *DatasetLoader) points(ctx context.Context, a models.Asset, sel service.Selection, grid models.Grid) []models.RawPoint {
	log := d.l.With(applogger.String("asset", a.Key()), applogger.String("kind", string(a.Kind)))

	var key string
	if d.cache != nil {
		k, err := cache.ParamsKey(d.prefix+":points", pointsCacheKey{a.Kind, a.Key(), string(sel.Range), string(sel.Interval)})
		if err == nil {
			key = k
			var cached []models.RawPoint
			if err := d.cache.Get(ctx, key, &cached); err == nil {
				d.metrics.RecordCache("hit")
				return cached
			} else if !errors.Is(err, cache.ErrCacheMiss) {
				log.Warn("cache get failed", applogger.Error(err))
			}
			d.metrics.RecordCache("miss")
		}
	}

	p, err := d.resolver.Resolve(a)
	if err != nil {
		d.metrics.RecordFetch("none", "unsupported")
		log.Warn("no provider for asset", applogger.Error(err))
		return d.archived(ctx, log, a, grid)
	}

	start := time.Now()
	pts, err := p.Fetch(ctx, a, sel)
	d.metrics.RecordLatency("fetch_"+p.Name(), time.Since(start).Seconds())
	if err != nil {
		d.metrics.RecordFetch(p.Name(), "error")
		d.metrics.RecordError("provider_fetch")
		log.Warn("provider fetch failed", applogger.String("provider", p.Name()), applogger.Error(err))
		if ctx.Err() != nil {
			return nil
		}
		return d.archived(ctx, log, a, grid)
	}
	d.metrics.RecordFetch(p.Name(), "ok")

	if key != "" {
		if err := d.cache.Set(ctx, key, pts, d.cacheTTL); err != nil {
			log.Warn("cache set failed", applogger.Error(err))
		}
	}
	if d.store != nil && len(pts) > 0 {
		if err := d.store.StorePoints(ctx, p.Name(), a.Key(), pts); err != nil {
			d.metrics.RecordError("archive_store")
			log.Warn("archive store failed", applogger.String("provider", p.Name()), applogger.Error(err))
		}
	}
	return pts
}

// archived reads the points around the grid window from the archive. One
// interval of slack on each side lets the aligner interpolate the edges.
func (d *DatasetLoader) archived(ctx context.Context, log *applogger.Logger, a models.Asset, grid models.Grid) []models.RawPoint {
	if d.store == nil || grid.Len() == 0 {
		return nil
	}
	from := time.UnixMilli(grid.Timestamps[0] - grid.IntervalMs)
	to := time.UnixMilli(grid.Timestamps[grid.Len()-1] + grid.IntervalMs)
	pts, err := d.store.QueryPoints(ctx, a.Key(), from, to)
	if err != nil {
		d.metrics.RecordError("archive_query")
		log.Warn("archive fallback failed", applogger.Error(err))
		return nil
	}
	if len(pts) > 0 {
		d.metrics.RecordFetch("archive", "fallback")
		log.Info("served from archive", applogger.Int("points", len(pts)))
	}
	return pts
}

// uniqueAssets drops repeated (kind, key) selections, keeping the first.
func uniqueAssets(in []models.Asset) []models.Asset {
	seen := make(map[string]struct{}, len(in))
	out := make([]models.Asset, 0, len(in))
	for _, a := range in {
		k := string(a.Kind) + ":" + a.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}
