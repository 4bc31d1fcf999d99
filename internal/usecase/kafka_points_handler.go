package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"LagScope/internal/domain/models"
	domrepo "LagScope/internal/domain/repository"
)

const defaultIngestSource = "kafka"

// KafkaPointsHandler consumes point batches and writes them to the archive,
// so feeds outside the HTTP providers can back the fallback path.
type KafkaPointsHandler struct {
	topic   string
	store   domrepo.PointStore
	metrics domrepo.Metrics
	v       *validator.Validate
}

func NewKafkaPointsHandler(topic string, store domrepo.PointStore, metrics domrepo.Metrics) *KafkaPointsHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &KafkaPointsHandler{topic: topic, store: store, metrics: metrics, v: validator.New()}
}

func (h *KafkaPointsHandler) Topic() string { return h.topic }

// incoming message schema: {asset, source, points: [{t, v}]}
func (h *KafkaPointsHandler) Handle(ctx context.Context, b []byte) error {
	var m models.PointMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode point message: %w", err)
	}
	m.Asset = strings.TrimSpace(m.Asset)
	if err := h.v.Struct(m); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid point message: %w", err)
	}
	if m.Source == "" {
		m.Source = defaultIngestSource
	}

	start := time.Now()
	err := h.store.StorePoints(ctx, m.Source, m.Asset, m.Points)
	h.metrics.RecordLatency("ingest_store", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordFetch(string, string) {}
func (nopMetrics) RecordCache(string) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordAnalysis(string, int, float64) {}
func (nopMetrics) RecordLatency(string, float64) {}
