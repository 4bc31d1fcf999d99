package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"LagScope/internal/domain/models"
	domrepo "LagScope/internal/domain/repository"
	pkgch "LagScope/pkg/clickhouse"
	applogger "LagScope/pkg/logger"
)

const pointsTable = "lagscope_points"

// pointsSchema keeps the latest ingested value per (asset, ts).
var pointsSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + pointsTable + ` (
        asset_key   String,
        source      LowCardinality(String),
        ts          DateTime64(3, 'UTC'),
        value       Float64,
        ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
    )
    ENGINE = ReplacingMergeTree(ingested_at)
    PARTITION BY toYYYYMM(ts)
    ORDER BY (asset_key, ts)`,
}

// CHPointStore implements PointStore backed by ClickHouse.
type CHPointStore struct {
	ch *pkgch.Client
	l  *applogger.Logger
}

var _ domrepo.PointStore = (*CHPointStore)(nil)

func NewCHPointStore(ch *pkgch.Client, l *applogger.Logger) *CHPointStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHPointStore{ch: ch, l: l.With(applogger.String("component", "point_store"))}
}

func (s *CHPointStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, pointsSchema)
}

// StorePoints archives the finite points of one fetch. Null points are not
// stored; a missing row reads back as a gap anyway.
func (s *CHPointStore) StorePoints(ctx context.Context, source, assetKey string, points []models.RawPoint) error {
	start := time.Now()
	n := 0
	err := s.ch.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+pointsTable+" (asset_key, source, ts, value)")
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range points {
			if !models.IsFinite(p.Value) {
				continue
			}
			if _, err := stmt.ExecContext(ctx, assetKey, source, time.UnixMilli(p.Timestamp).UTC(), p.Value); err != nil {
				return fmt.Errorf("append point: %w", err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		s.l.Error("clickhouse store_points error",
			applogger.String("asset", assetKey),
			applogger.String("source", source),
			applogger.Error(err),
		)
		return fmt.Errorf("store points: %w", err)
	}
	s.l.Debug("clickhouse store_points ok",
		applogger.String("asset", assetKey),
		applogger.Int("rows", n),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// QueryPoints returns archived points of assetKey in [from, to], ascending.
func (s *CHPointStore) QueryPoints(ctx context.Context, assetKey string, from, to time.Time) ([]models.RawPoint, error) {
	const q = `
        SELECT toUnixTimestamp64Milli(ts) AS t, value
        FROM ` + pointsTable + ` FINAL
        WHERE asset_key = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.ch.DB().QueryContext(ctx, q, assetKey, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse query_points error", applogger.String("asset", assetKey), applogger.Error(err))
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	out := make([]models.RawPoint, 0, 256)
	for rows.Next() {
		var p models.RawPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHPointStore) Health(ctx context.Context) error { return s.ch.Health(ctx) }

// Close is a no-op; the client is owned by the app.
func (s *CHPointStore) Close() error { return nil }
