package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"LagScope/internal/domain/models"
	domrepo "LagScope/internal/domain/repository"
	"LagScope/internal/services/leadlag"
	applogger "LagScope/pkg/logger"
)

// AnalysisRunner runs the lead/lag engine over a dataset, stamps the run
// and fans it out to the report publisher.
type AnalysisRunner struct {
	publisher domrepo.ReportPublisher
	metrics   domrepo.Metrics
	l         *applogger.Logger
	workers   int
	now       func() time.Time
	newID     func() uuid.UUID
}

type RunnerOption func(*AnalysisRunner)

// WithPublisher publishes every run with at least one row.
func WithPublisher(p domrepo.ReportPublisher) RunnerOption {
	return func(r *AnalysisRunner) { r.publisher = p }
}

func WithRunnerMetrics(m domrepo.Metrics) RunnerOption {
	return func(r *AnalysisRunner) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithRunnerLogger(l *applogger.Logger) RunnerOption {
	return func(r *AnalysisRunner) {
		if l != nil {
			r.l = l
		}
	}
}

// WithWorkers sets the default pair concurrency used when a request leaves
// it unset.
func WithWorkers(n int) RunnerOption {
	return func(r *AnalysisRunner) { r.workers = n }
}

func WithRunnerClock(now func() time.Time, newID func() uuid.UUID) RunnerOption {
	return func(r *AnalysisRunner) {
		if now != nil {
			r.now = now
		}
		if newID != nil {
			r.newID = newID
		}
	}
}

func NewAnalysisRunner(opts ...RunnerOption) *AnalysisRunner {
	r := &AnalysisRunner{
		metrics: nopMetrics{},
		l:       applogger.Nop(),
		now:     time.Now,
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.l = r.l.With(applogger.String("component", "analysis_runner"))
	return r
}

// Run analyzes ds. The interval label defaults to the grid interval. A
// publish failure is logged and counted but does not fail the run.
func (r *AnalysisRunner) Run(ctx context.Context, ds models.Dataset, cfg leadlag.Config) (models.AnalysisRun, error) {
	if cfg.IntervalLabel == "" {
		cfg.IntervalLabel = ds.Grid.Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = r.workers
	}

	start := time.Now()
	report, err := leadlag.Analyze(ds.Series, cfg)
	if err != nil {
		r.metrics.RecordError("analyze")
		return models.AnalysisRun{}, err
	}
	elapsed := time.Since(start)
	r.metrics.RecordAnalysis(report.Mode, len(report.Rows), elapsed.Seconds())

	run := models.AnalysisRun{
		ID:        r.newID(),
		CreatedAt: r.now().UTC(),
		Dataset:   ds,
		Report:    report,
	}
	r.l.Info("analysis complete",
		applogger.String("run_id", run.ID.String()),
		applogger.String("mode", report.Mode),
		applogger.String("transform", report.Transform),
		applogger.Bool("residualized", report.Residualized),
		applogger.Int("series", len(ds.Series)),
		applogger.Int("rows", len(report.Rows)),
		applogger.Duration("duration_ms", elapsed),
	)

	if r.publisher != nil && len(report.Rows) > 0 {
		if err := r.publisher.PublishRun(ctx, &run); err != nil {
			r.metrics.RecordError("publish_report")
			r.l.Warn("publish report failed", applogger.String("run_id", run.ID.String()), applogger.Error(err))
		}
	}
	return run, nil
}
