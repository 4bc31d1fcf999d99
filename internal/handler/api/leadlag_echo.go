package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "LagScope/internal/domain/models"
	domrepo "LagScope/internal/domain/repository"
	"LagScope/internal/domain/service"
	"LagScope/internal/services/export"
	"LagScope/internal/services/leadlag"
	"LagScope/internal/services/providers"
	"LagScope/internal/services/resample"
	"LagScope/internal/usecase"
	xhttp "LagScope/pkg/http"
	xlogger "LagScope/pkg/logger"
)

const noticeTooFewAssets = "need at least 2 assets"

type datasetLoader interface {
	Load(ctx context.Context, req usecase.LoadRequest) (models.Dataset, error)
}

type analysisRunner interface {
	Run(ctx context.Context, ds models.Dataset, cfg leadlag.Config) (models.AnalysisRun, error)
}

// Defaults are the configured analysis settings. They seed every request
// before binding, so a client only sends what it wants to change.
type Defaults struct {
	Range       string
	Interval    string
	Align       string
	Transform   string
	Mode        string
	Residualize bool
	MaxAssets   int
	MaxBuckets  int
}

// LeadLagEchoHandler serves grid, search, dataset, analysis and export routes.
type LeadLagEchoHandler struct {
	logger   *xlogger.Logger
	loader   datasetLoader
	runner   analysisRunner
	finder   service.AssetFinder
	defaults Defaults
	now      func() time.Time
}

func NewLeadLagEchoHandler(logger *xlogger.Logger, loader datasetLoader, runner analysisRunner, finder service.AssetFinder, defaults Defaults) *LeadLagEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &LeadLagEchoHandler{logger: logger, loader: loader, runner: runner, finder: finder, defaults: defaults, now: time.Now}
}

func (h *LeadLagEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/options", h.Options)
	g.GET("/grid", h.Grid)
	g.GET("/search", h.Search)
	g.POST("/dataset", h.Dataset)
	g.POST("/analyze", h.Analyze)
	g.POST("/export", h.Export)
}

type optionsResponse struct {
	Ranges     []domrepo.Range        `json:"ranges"`
	Intervals  []domrepo.Interval     `json:"intervals"`
	Policies   []resample.AlignPolicy `json:"alignPolicies"`
	Transforms []leadlag.Transform    `json:"transforms"`
	Modes      []leadlag.Mode         `json:"modes"`
	Defaults   optionsDefaults        `json:"defaults"`
}

type optionsDefaults struct {
	Range       string `json:"range"`
	Interval    string `json:"interval"`
	Align       string `json:"align"`
	Transform   string `json:"transform"`
	Mode        string `json:"mode"`
	Residualize bool   `json:"residualize"`
	MaxAssets   int    `json:"maxAssets,omitempty"`
	MaxBuckets  int    `json:"maxBuckets,omitempty"`
}

func (h *LeadLagEchoHandler) Options(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	d := h.defaults
	return xhttp.SuccessResponse(c, optionsResponse{
		Ranges:     domrepo.Ranges(),
		Intervals:  domrepo.Intervals(),
		Policies:   resample.Policies(),
		Transforms: leadlag.Transforms(),
		Modes:      leadlag.Modes(),
		Defaults: optionsDefaults{
			Range: d.Range, Interval: d.Interval, Align: d.Align,
			Transform: d.Transform, Mode: d.Mode, Residualize: d.Residualize,
			MaxAssets: d.MaxAssets, MaxBuckets: d.MaxBuckets,
		},
	})
}

func (h *LeadLagEchoHandler) Grid(c echo.Context) error {
	req := &models.GridRequest{Range: h.defaults.Range, Interval: h.defaults.Interval}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	now := h.requestTime(req.Now)
	if err := h.checkBucketCount(resample.CountBuckets(req.Range, req.Interval, now)); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	grid, err := resample.BuildGrid(req.Range, req.Interval, now)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	}
	return xhttp.SuccessResponse(c, grid)
}

func (h *LeadLagEchoHandler) Search(c echo.Context) error {
	req := &models.SearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	assets, err := h.finder.Search(c.Request().Context(), models.AssetKind(req.Kind), req.Query)
	if err != nil {
		if errors.Is(err, providers.ErrUnsupportedAsset) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		h.logger.Warn("asset search failed", xlogger.String("kind", req.Kind), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError("asset search failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, assets)
}

func (h *LeadLagEchoHandler) Dataset(c echo.Context) error {
	req := &models.DatasetRequest{Range: h.defaults.Range, Interval: h.defaults.Interval, Align: h.defaults.Align}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.checkAssetCount(len(req.Assets)); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	now := h.requestTime(req.Now)
	if err := h.checkBucketCount(resample.CountBuckets(req.Range, req.Interval, now)); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	ds, err := h.loader.Load(c.Request().Context(), usecase.LoadRequest{
		Assets:   req.Assets,
		Range:    req.Range,
		Interval: req.Interval,
		Align:    req.Align,
		Now:      now,
	})
	if err != nil {
		return h.loadError(c, err)
	}
	return xhttp.SuccessResponse(c, ds)
}

type analyzeResponse struct {
	models.AnalysisRun
	Notice string `json:"notice,omitempty"`
}

func (h *LeadLagEchoHandler) Analyze(c echo.Context) error {
	req := h.newAnalyzeRequest()
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	run, err := h.run(c.Request().Context(), req)
	if err != nil {
		return h.loadError(c, err)
	}
	resp := analyzeResponse{AnalysisRun: run}
	if len(run.Dataset.Series) < 2 {
		resp.Notice = noticeTooFewAssets
	}
	return xhttp.SuccessResponse(c, resp)
}

// Export takes the analyze body and returns the result as a CSV or XLSX
// download.
func (h *LeadLagEchoHandler) Export(c echo.Context) error {
	q := &models.ExportRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req := h.newAnalyzeRequest()
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	run, err := h.run(c.Request().Context(), req)
	if err != nil {
		return h.loadError(c, err)
	}

	var buf bytes.Buffer
	contentType, filename := export.CSVContentType, export.CSVFilename
	if q.Format == "xlsx" {
		contentType, filename = export.XLSXContentType, export.XLSXFilename
		err = export.WriteXLSX(&buf, run.Dataset, run.Report)
	} else {
		err = export.WriteCSV(&buf, run.Dataset, run.Report)
	}
	if err != nil {
		h.logger.Error("export failed", xlogger.String("format", q.Format), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("export failed").WithError(err))
	}
	return xhttp.FileResponse(c, contentType, filename, buf.Bytes())
}

func (h *LeadLagEchoHandler) newAnalyzeRequest() *models.AnalyzeRequest {
	d := h.defaults
	return &models.AnalyzeRequest{
		Range: d.Range, Interval: d.Interval, Align: d.Align,
		Transform: d.Transform, Mode: d.Mode, Residualize: d.Residualize,
	}
}

// run analyzes the inline dataset, or loads one from the requested assets.
// No assets at all yields an empty run.
func (h *LeadLagEchoHandler) run(ctx context.Context, req *models.AnalyzeRequest) (models.AnalysisRun, error) {
	var ds models.Dataset
	switch {
	case req.Dataset != nil:
		ds = *req.Dataset
		if err := h.checkBucketCount(int64(longestSeries(ds))); err != nil {
			return models.AnalysisRun{}, err
		}
	case len(req.Assets) > 0:
		if err := h.checkAssetCount(len(req.Assets)); err != nil {
			return models.AnalysisRun{}, err
		}
		now := h.requestTime(req.Now)
		if err := h.checkBucketCount(resample.CountBuckets(req.Range, req.Interval, now)); err != nil {
			return models.AnalysisRun{}, err
		}
		var err error
		ds, err = h.loader.Load(ctx, usecase.LoadRequest{
			Assets:   req.Assets,
			Range:    req.Range,
			Interval: req.Interval,
			Align:    req.Align,
			Now:      now,
		})
		if err != nil {
			return models.AnalysisRun{}, err
		}
	}
	return h.runner.Run(ctx, ds, leadlag.Config{
		Transform:   leadlag.Transform(req.Transform),
		Residualize: req.Residualize,
		Mode:        leadlag.Mode(req.Mode),
	})
}

func (h *LeadLagEchoHandler) checkAssetCount(n int) error {
	if h.defaults.MaxAssets > 0 && n > h.defaults.MaxAssets {
		return xhttp.BadRequestErrorf("at most %d assets per request", h.defaults.MaxAssets).WithParam("max", h.defaults.MaxAssets)
	}
	return nil
}

func (h *LeadLagEchoHandler) checkBucketCount(n int64) error {
	if h.defaults.MaxBuckets > 0 && n > int64(h.defaults.MaxBuckets) {
		return xhttp.BadRequestErrorf("grid of %d buckets exceeds the limit of %d; pick a shorter range or a wider interval", n, h.defaults.MaxBuckets).
			WithParam("max", h.defaults.MaxBuckets)
	}
	return nil
}

func longestSeries(ds models.Dataset) int {
	n := len(ds.Grid.Timestamps)
	for _, s := range ds.Series {
		if len(s.Values) > n {
			n = len(s.Values)
		}
	}
	return n
}

func (h *LeadLagEchoHandler) loadError(c echo.Context, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return xhttp.AppErrorResponse(c, appErr)
	case errors.Is(err, usecase.ErrNoAssets),
		errors.Is(err, resample.ErrUnknownPolicy),
		errors.Is(err, resample.ErrTooManyBuckets),
		errors.Is(err, leadlag.ErrLengthMismatch),
		errors.Is(err, leadlag.ErrUnknownTransform),
		errors.Is(err, leadlag.ErrUnknownMode):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, "request cancelled")
	}
	h.logger.Error("analysis request failed", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func (h *LeadLagEchoHandler) requestTime(s string) time.Time {
	return xhttp.ParseTimeDefault(s, h.now())
}
