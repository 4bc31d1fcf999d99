package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "LagScope/internal/domain/models"
	"LagScope/internal/services/export"
	"LagScope/internal/services/providers"
	"LagScope/internal/services/resample"
	"LagScope/internal/usecase"
)

var testDefaults = Defaults{
	Range: "1d", Interval: "5m", Align: "linear",
	Transform: "pct_prev", Mode: "global", MaxAssets: 3, MaxBuckets: 5000,
}

type fakeLoader struct {
	got []usecase.LoadRequest
	ds  models.Dataset
	err error
}

func (l *fakeLoader) Load(_ context.Context, req usecase.LoadRequest) (models.Dataset, error) {
	l.got = append(l.got, req)
	return l.ds, l.err
}

type fakeFinder struct {
	assets []models.Asset
	err    error
}

func (f fakeFinder) Search(_ context.Context, _ models.AssetKind, _ string) ([]models.Asset, error) {
	return f.assets, f.err
}

func newTestServer(loader *fakeLoader, finder fakeFinder) *echo.Echo {
	h := NewLeadLagEchoHandler(nil, loader, usecase.NewAnalysisRunner(), finder, testDefaults)
	h.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func threeSeries() models.Dataset {
	n := 60
	ts := make([]int64, n)
	a := make(models.Values, n)
	b := make(models.Values, n)
	c := make(models.Values, n)
	for i := 0; i < n; i++ {
		ts[i] = int64(i) * 300_000
		a[i] = 100 + 5*math.Sin(float64(i)/3)
		c[i] = 50 + 2*math.Cos(float64(i)/7) + float64(i%5)
	}
	b[0] = a[0]
	for i := 1; i < n; i++ {
		b[i] = a[i-1]
	}
	return models.Dataset{
		Grid:   models.Grid{Timestamps: ts, IntervalMs: 300_000, Range: "1d", Interval: "5m"},
		Series: []models.AlignedSeries{{Label: "A", Values: a}, {Label: "B", Values: b}, {Label: "C", Values: c}},
	}
}

func TestOptions(t *testing.T) {
	e := newTestServer(&fakeLoader{}, fakeFinder{})
	rec, env := do(t, e, http.MethodGet, "/api/options", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out optionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Len(t, out.Ranges, 6)
	assert.Len(t, out.Intervals, 7)
	assert.Len(t, out.Modes, 2)
	assert.Equal(t, "pct_prev", out.Defaults.Transform)
	assert.Equal(t, 3, out.Defaults.MaxAssets)
}

func TestGrid(t *testing.T) {
	e := newTestServer(&fakeLoader{}, fakeFinder{})
	rec, env := do(t, e, http.MethodGet, "/api/grid?range=12h&interval=1h&now=2024-01-01T12:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var g models.Grid
	require.NoError(t, json.Unmarshal(env.Data, &g))
	assert.Len(t, g.Timestamps, 13)
	assert.Equal(t, int64(3_600_000), g.IntervalMs)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), g.Timestamps[0])

	// defaults from config
	rec, env = do(t, e, http.MethodGet, "/api/grid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &g))
	assert.Equal(t, "1d", g.Range)
	assert.Equal(t, "5m", g.Interval)
}

func TestSearch(t *testing.T) {
	e := newTestServer(&fakeLoader{}, fakeFinder{assets: []models.Asset{{Kind: models.AssetEquity, Symbol: "AAPL"}}})
	rec, env := do(t, e, http.MethodGet, "/api/search?kind=equity&q=aap", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var assets []models.Asset
	require.NoError(t, json.Unmarshal(env.Data, &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, "AAPL", assets[0].Symbol)

	rec, _ = do(t, e, http.MethodGet, "/api/search?kind=fx&q=eur", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/search?kind=crypto", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e = newTestServer(&fakeLoader{}, fakeFinder{err: errors.New("upstream 503")})
	rec, _ = do(t, e, http.MethodGet, "/api/search?q=btc", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	e = newTestServer(&fakeLoader{}, fakeFinder{err: providers.ErrUnsupportedAsset})
	rec, _ = do(t, e, http.MethodGet, "/api/search?q=btc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatasetAppliesDefaults(t *testing.T) {
	loader := &fakeLoader{ds: threeSeries()}
	e := newTestServer(loader, fakeFinder{})
	rec, env := do(t, e, http.MethodPost, "/api/dataset", `{"assets":[{"kind":"crypto","id":"bitcoin"}],"interval":"1h"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, loader.got, 1)
	got := loader.got[0]
	assert.Equal(t, "1d", got.Range)
	assert.Equal(t, "1h", got.Interval)
	assert.Equal(t, "linear", got.Align)
	assert.Equal(t, 2024, got.Now.Year())

	var ds models.Dataset
	require.NoError(t, json.Unmarshal(env.Data, &ds))
	assert.Len(t, ds.Series, 3)
}

func TestDatasetValidation(t *testing.T) {
	e := newTestServer(&fakeLoader{}, fakeFinder{})
	rec, env := do(t, e, http.MethodPost, "/api/dataset", `{"assets":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "assets")

	rec, _ = do(t, e, http.MethodPost, "/api/dataset", `{"assets":[{"kind":"bond","id":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"assets":[{"kind":"crypto","id":"a"},{"kind":"crypto","id":"b"},{"kind":"crypto","id":"c"},{"kind":"crypto","id":"d"}]}`
	rec, _ = do(t, e, http.MethodPost, "/api/dataset", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "configured max assets applies")
}

func TestBucketLimit(t *testing.T) {
	loader := &fakeLoader{ds: threeSeries()}
	e := newTestServer(loader, fakeFinder{})

	rec, env := do(t, e, http.MethodGet, "/api/grid?range=max&interval=1m", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message+string(env.Data), "5000")

	rec, _ = do(t, e, http.MethodGet, "/api/grid?range=7d&interval=1h", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"assets":[{"kind":"crypto","id":"bitcoin"}],"range":"30d","interval":"1m"}`
	rec, _ = do(t, e, http.MethodPost, "/api/dataset", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/api/analyze", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, loader.got, "oversized grids never reach the loader")

	big := threeSeries()
	big.Series[0].Values = make(models.Values, 6000)
	payload, err := json.Marshal(map[string]interface{}{"dataset": big})
	require.NoError(t, err)
	rec, _ = do(t, e, http.MethodPost, "/api/analyze", string(payload))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	loader.err = fmt.Errorf("%w: 9999 buckets, max 5000", resample.ErrTooManyBuckets)
	rec, _ = do(t, e, http.MethodPost, "/api/dataset", `{"assets":[{"kind":"crypto","id":"bitcoin"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeNeedsTwoSeries(t *testing.T) {
	ds := threeSeries()
	ds.Series = ds.Series[:1]
	e := newTestServer(&fakeLoader{ds: ds}, fakeFinder{})

	rec, env := do(t, e, http.MethodPost, "/api/analyze", `{"assets":[{"kind":"crypto","id":"bitcoin"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Report models.AnalysisReport `json:"report"`
		Notice string                `json:"notice"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, noticeTooFewAssets, out.Notice)
	assert.Empty(t, out.Report.Rows)
	assert.Contains(t, string(env.Data), `"rows":[]`)

	rec, env = do(t, e, http.MethodPost, "/api/analyze", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), noticeTooFewAssets)
}

func TestAnalyzeInlineDataset(t *testing.T) {
	loader := &fakeLoader{}
	e := newTestServer(loader, fakeFinder{})
	payload, err := json.Marshal(map[string]interface{}{"dataset": threeSeries(), "transform": "log"})
	require.NoError(t, err)

	rec, env := do(t, e, http.MethodPost, "/api/analyze", string(payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, loader.got, "inline datasets skip loading")

	var run models.AnalysisRun
	require.NoError(t, json.Unmarshal(env.Data, &run))
	require.Len(t, run.Report.Rows, 3)
	assert.Equal(t, "log", run.Report.Transform)
	assert.Equal(t, "5m", run.Report.IntervalLabel)
	assert.NotEmpty(t, run.ID.String())

	bad := threeSeries()
	bad.Series[1].Values = bad.Series[1].Values[:10]
	payload, err = json.Marshal(map[string]interface{}{"dataset": bad})
	require.NoError(t, err)
	rec, _ = do(t, e, http.MethodPost, "/api/analyze", string(payload))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	e := newTestServer(&fakeLoader{ds: threeSeries()}, fakeFinder{})
	body := `{"assets":[{"kind":"crypto","id":"a"},{"kind":"crypto","id":"b"}]}`

	rec, _ := do(t, e, http.MethodPost, "/api/export", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.CSVContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), export.CSVFilename)
	assert.Contains(t, rec.Body.String(), "Währung A (führt)")

	rec, _ = do(t, e, http.MethodPost, "/api/export?format=xlsx", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.XLSXContentType, rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")

	rec, _ = do(t, e, http.MethodPost, "/api/export?format=pdf", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
