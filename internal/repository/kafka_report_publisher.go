package repository

import (
	"context"
	"strings"
	"time"

	"LagScope/internal/domain/models"
	domrepo "LagScope/internal/domain/repository"
)

type reportProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// ReportMessage is the summary of a run published to the report topic. The
// aligned prices stay behind; consumers get the rows and the grid extent.
type ReportMessage struct {
	ID            string             `json:"id"`
	CreatedAt     time.Time          `json:"createdAt"`
	Range         string             `json:"range"`
	Interval      string             `json:"interval"`
	Buckets       int                `json:"buckets"`
	From          int64              `json:"from"`
	To            int64              `json:"to"`
	Assets        []string           `json:"assets"`
	IntervalLabel string             `json:"intervalLabel"`
	Mode          string             `json:"mode"`
	Transform     string             `json:"transform"`
	Residualized  bool               `json:"residualized"`
	Rows          []models.LagResult `json:"rows"`
}

// KafkaReportPublisher implements ReportPublisher for Kafka.
type KafkaReportPublisher struct {
	producer reportProducer
	topic    string
}

var _ domrepo.ReportPublisher = (*KafkaReportPublisher)(nil)

// NewKafkaReportPublisher accepts a *kafka.Producer from pkg/kafka.
func NewKafkaReportPublisher(producer reportProducer, topic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

// PublishRun keys the message by the asset set so runs over the same basket
// stay ordered on one partition.
func (p *KafkaReportPublisher) PublishRun(ctx context.Context, run *models.AnalysisRun) error {
	msg := NewReportMessage(run)
	return p.producer.Publish(ctx, p.topic, []byte(strings.Join(msg.Assets, ",")), msg)
}

func (p *KafkaReportPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func NewReportMessage(run *models.AnalysisRun) ReportMessage {
	g := run.Dataset.Grid
	msg := ReportMessage{
		ID:            run.ID.String(),
		CreatedAt:     run.CreatedAt,
		Range:         g.Range,
		Interval:      g.Interval,
		Buckets:       g.Len(),
		IntervalLabel: run.Report.IntervalLabel,
		Mode:          run.Report.Mode,
		Transform:     run.Report.Transform,
		Residualized:  run.Report.Residualized,
		Rows:          run.Report.Rows,
	}
	if n := g.Len(); n > 0 {
		msg.From, msg.To = g.Timestamps[0], g.Timestamps[n-1]
	}
	msg.Assets = make([]string, len(run.Dataset.Series))
	for i, s := range run.Dataset.Series {
		msg.Assets[i] = s.Label
	}
	return msg
}
