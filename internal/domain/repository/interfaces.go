package repository

import (
	"context"
	"time"

	"LagScope/internal/domain/models"
)

// PointStore archives raw provider points per asset key so a later request
// can fall back to them when the upstream provider is unavailable.
type PointStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StorePoints(ctx context.Context, source, assetKey string, points []models.RawPoint) error
	QueryPoints(ctx context.Context, assetKey string, from, to time.Time) ([]models.RawPoint, error)
	Health(ctx context.Context) error
	Close() error
}

// ReportPublisher fans out completed analysis runs.
type ReportPublisher interface {
	PublishRun(ctx context.Context, run *models.AnalysisRun) error
	Close() error
}

type Metrics interface {
	RecordFetch(provider, outcome string)
	RecordCache(result string)
	RecordError(kind string)
	RecordAnalysis(mode string, pairs int, seconds float64)
	RecordLatency(op string, seconds float64)
}
