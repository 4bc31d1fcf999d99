package usecase

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LagScope/internal/domain/models"
	"LagScope/internal/domain/service"
	"LagScope/internal/services/leadlag"
	"LagScope/internal/services/resample"
	"LagScope/pkg/cache"
	applogger "LagScope/pkg/logger"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	name  string
	err   error
	calls atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Supports(models.Asset) bool { return true }

func (p *fakeProvider) Fetch(_ context.Context, a models.Asset, _ service.Selection) ([]models.RawPoint, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	start := testNow.Add(-12 * time.Hour).UnixMilli()
	pts := make([]models.RawPoint, 13)
	for i := range pts {
		pts[i] = models.RawPoint{Timestamp: start + int64(i)*time.Hour.Milliseconds(), Value: float64(100 + i)}
	}
	return pts, nil
}

type fakeResolver map[string]service.PriceProvider

func (r fakeResolver) Resolve(a models.Asset) (service.PriceProvider, error) {
	if p, ok := r[a.Key()]; ok {
		return p, nil
	}
	return nil, errors.New("unsupported")
}

type fakeStore struct {
	mu      sync.Mutex
	stored  map[string][]models.RawPoint
	archive map[string][]models.RawPoint
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{stored: map[string][]models.RawPoint{}, archive: map[string][]models.RawPoint{}}
}

func (s *fakeStore) Init(context.Context) error { return nil }

func (s *fakeStore) StorePoints(_ context.Context, source, key string, pts []models.RawPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored[source+"/"+key] = append(s.stored[source+"/"+key], pts...)
	return nil
}

func (s *fakeStore) QueryPoints(_ context.Context, key string, _, _ time.Time) ([]models.RawPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archive[key], nil
}

func (s *fakeStore) Health(context.Context) error { return nil }
func (s *fakeStore) Close() error { return nil }

type countingMetrics struct {
	nopMetrics
	mu      sync.Mutex
	fetches map[string]int
	errs    map[string]int
	cache   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{fetches: map[string]int{}, errs: map[string]int{}, cache: map[string]int{}}
}

func (m *countingMetrics) RecordFetch(provider, outcome string) {
	m.mu.Lock()
	m.fetches[provider+":"+outcome]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errs[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordCache(result string) {
	m.mu.Lock()
	m.cache[result]++
	m.mu.Unlock()
}

func TestDatasetLoaderFetchesCachesAndArchives(t *testing.T) {
	prov := &fakeProvider{name: "coingecko"}
	store := newFakeStore()
	metrics := newCountingMetrics()
	loader := NewDatasetLoader(fakeResolver{"bitcoin": prov},
		WithCache(cache.NewMemoryCache(), "test", time.Minute),
		WithPointStore(store),
		WithLoaderMetrics(metrics),
		WithLoaderClock(func() time.Time { return testNow }),
	)

	req := LoadRequest{
		Assets: []models.Asset{
			{Kind: models.AssetCrypto, ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"},
			{Kind: models.AssetCrypto, ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"},
		},
		Range:    "12h",
		Interval: "1h",
	}
	ds, err := loader.Load(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, ds.Series, 1, "duplicate selections collapse")
	assert.Equal(t, "BTC • Bitcoin", ds.Series[0].Label)
	assert.Equal(t, 13, ds.Grid.Len())
	assert.Equal(t, "linear", ds.Align)
	assert.InDelta(t, 100, ds.Series[0].Values[0], 1e-9)
	assert.InDelta(t, 112, ds.Series[0].Values[12], 1e-9)
	assert.Len(t, store.stored["coingecko/bitcoin"], 13)

	_, err = loader.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), prov.calls.Load(), "second load is served from cache")
	assert.Equal(t, 1, metrics.cache["hit"])
	assert.Equal(t, 1, metrics.fetches["coingecko:ok"])
}

func TestDatasetLoaderFallsBackToArchive(t *testing.T) {
	prov := &fakeProvider{name: "binance", err: errors.New("boom")}
	store := newFakeStore()
	start := testNow.Add(-12 * time.Hour).UnixMilli()
	store.archive["ETHUSDT"] = []models.RawPoint{
		{Timestamp: start, Value: 10},
		{Timestamp: start + 12*time.Hour.Milliseconds(), Value: 22},
	}
	metrics := newCountingMetrics()
	loader := NewDatasetLoader(fakeResolver{"ETHUSDT": prov, "FAIL": prov},
		WithPointStore(store), WithLoaderMetrics(metrics))

	ds, err := loader.Load(context.Background(), LoadRequest{
		Assets: []models.Asset{
			{Kind: models.AssetCrypto, Symbol: "ETHUSDT"},
			{Kind: models.AssetCrypto, Symbol: "FAIL"},
			{Kind: models.AssetEquity, Symbol: "NOPE"},
		},
		Range: "12h", Interval: "1h", Now: testNow,
	})
	require.NoError(t, err)
	require.Len(t, ds.Series, 3)

	eth := ds.Series[0].Values
	assert.InDelta(t, 10, eth[0], 1e-9)
	assert.InDelta(t, 16, eth[6], 1e-9, "interior gaps interpolate")
	assert.InDelta(t, 22, eth[12], 1e-9)

	for _, s := range ds.Series[1:] {
		for _, v := range s.Values {
			assert.True(t, math.IsNaN(v), "%s should be all null", s.Label)
		}
	}
	assert.Equal(t, 2, metrics.fetches["binance:error"])
	assert.Equal(t, 1, metrics.fetches["archive:fallback"])
	assert.Equal(t, 1, metrics.fetches["none:unsupported"])
	assert.Empty(t, store.stored)
}

func TestDatasetLoaderLogsArchiveStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("clickhouse down")
	metrics := newCountingMetrics()
	var logs bytes.Buffer
	loader := NewDatasetLoader(fakeResolver{"bitcoin": &fakeProvider{name: "coingecko"}},
		WithPointStore(store),
		WithLoaderMetrics(metrics),
		WithLoaderLogger(applogger.NewWriter(&logs, "warn")),
		WithLoaderClock(func() time.Time { return testNow }),
	)

	ds, err := loader.Load(context.Background(), LoadRequest{
		Assets:   []models.Asset{{Kind: models.AssetCrypto, ID: "bitcoin"}},
		Range:    "12h",
		Interval: "1h",
	})
	require.NoError(t, err, "archive failures never fail the dataset")
	assert.InDelta(t, 100, ds.Series[0].Values[0], 1e-9)
	assert.Equal(t, 1, metrics.errs["archive_store"])
	assert.Contains(t, logs.String(), "archive store failed")
	assert.Contains(t, logs.String(), "clickhouse down")
}

func TestDatasetLoaderValidation(t *testing.T) {
	loader := NewDatasetLoader(fakeResolver{})
	_, err := loader.Load(context.Background(), LoadRequest{})
	assert.ErrorIs(t, err, ErrNoAssets)

	_, err = loader.Load(context.Background(), LoadRequest{
		Assets: []models.Asset{{Kind: models.AssetCrypto, ID: "x"}},
		Align:  "cubic",
	})
	assert.Error(t, err)

	capped := NewDatasetLoader(fakeResolver{}, WithMaxBuckets(1000))
	_, err = capped.Load(context.Background(), LoadRequest{
		Assets:   []models.Asset{{Kind: models.AssetCrypto, ID: "x"}},
		Range:    "max",
		Interval: "1m",
	})
	assert.ErrorIs(t, err, resample.ErrTooManyBuckets)
}

type capturePublisher struct {
	runs []*models.AnalysisRun
	err  error
}

func (p *capturePublisher) PublishRun(_ context.Context, run *models.AnalysisRun) error {
	p.runs = append(p.runs, run)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func leadingDataset(n int) models.Dataset {
	rng := rand.New(rand.NewSource(7))
	a := make(models.Values, n)
	b := make(models.Values, n)
	c := make(models.Values, n)
	pa, pc := 100.0, 50.0
	rets := make([]float64, n)
	for i := range rets {
		rets[i] = rng.NormFloat64() * 0.01
	}
	for i := 0; i < n; i++ {
		pa *= math.Exp(rets[i])
		pc *= math.Exp(rng.NormFloat64() * 0.01)
		a[i], c[i] = pa, pc
	}
	b[0], b[1] = 200, 200
	for i := 2; i < n; i++ {
		b[i] = b[i-1] * math.Exp(rets[i-1])
	}
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = int64(i) * 300_000
	}
	return models.Dataset{
		Grid: models.Grid{Timestamps: ts, IntervalMs: 300_000, Range: "1d", Interval: "5m"},
		Series: []models.AlignedSeries{
			{Label: "A", Values: a}, {Label: "B", Values: b}, {Label: "C", Values: c},
		},
	}
}

func TestAnalysisRunnerStampsAndPublishes(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	pub := &capturePublisher{err: errors.New("broker down")}
	metrics := newCountingMetrics()
	runner := NewAnalysisRunner(
		WithPublisher(pub),
		WithRunnerMetrics(metrics),
		WithRunnerClock(func() time.Time { return testNow }, func() uuid.UUID { return id }),
	)

	run, err := runner.Run(context.Background(), leadingDataset(200), leadlag.Config{Transform: leadlag.TransformPctPrev})
	require.NoError(t, err, "publish failures do not fail the run")
	assert.Equal(t, id, run.ID)
	assert.Equal(t, testNow, run.CreatedAt)
	assert.Equal(t, "5m", run.Report.IntervalLabel)
	require.Len(t, run.Report.Rows, 3)

	top := run.Report.Rows[0]
	assert.Equal(t, "A", top.AssetA)
	assert.Equal(t, "B", top.AssetB)
	assert.Equal(t, 1, top.Lag)

	require.Len(t, pub.runs, 1)
	assert.Equal(t, 1, metrics.errs["publish_report"])
}

func TestAnalysisRunnerSkipsPublishWithoutRows(t *testing.T) {
	pub := &capturePublisher{}
	runner := NewAnalysisRunner(WithPublisher(pub))
	ds := leadingDataset(50)
	ds.Series = ds.Series[:1]

	run, err := runner.Run(context.Background(), ds, leadlag.Config{})
	require.NoError(t, err)
	assert.Empty(t, run.Report.Rows)
	assert.Empty(t, pub.runs)
}

func TestKafkaPointsHandler(t *testing.T) {
	store := newFakeStore()
	h := NewKafkaPointsHandler("lagscope.points", store, nil)
	assert.Equal(t, "lagscope.points", h.Topic())

	err := h.Handle(context.Background(), []byte(`{"asset":" bitcoin ","points":[{"t":1,"v":2.5},{"t":2,"v":null}]}`))
	require.NoError(t, err)
	pts := store.stored["kafka/bitcoin"]
	require.Len(t, pts, 2)
	assert.Equal(t, 2.5, pts[0].Value)
	assert.True(t, math.IsNaN(pts[1].Value))

	assert.Error(t, h.Handle(context.Background(), []byte(`{not json`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"asset":"x","points":[]}`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"asset":"","points":[{"t":1,"v":1}]}`)))

	store.err = errors.New("clickhouse down")
	assert.Error(t, h.Handle(context.Background(), []byte(`{"asset":"x","source":"feed","points":[{"t":1,"v":1}]}`)))
}
