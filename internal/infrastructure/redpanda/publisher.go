package redpanda

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxclaims/internal/pipeline"
)

// Header keys set on every report record
const (
	HeaderRunID  = "run_id"
	HeaderReport = "report"
)

// BatchProducer is the part of Producer the publisher needs
type BatchProducer interface {
	ProduceBatch(ctx context.Context, records []*Record) error
	Flush(ctx context.Context) error
}

// ReportPublisher publishes every report entry as one keyed record
type ReportPublisher struct {
	producer BatchProducer
	logger   *zap.Logger
}

// NewReportPublisher creates a publisher on top of producer
func NewReportPublisher(producer BatchProducer, logger *zap.Logger) *ReportPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportPublisher{producer: producer, logger: logger}
}

// Name identifies the sink
func (p *ReportPublisher) Name() string { return "kafka" }

// Write publishes the reports of a run
func (p *ReportPublisher) Write(ctx context.Context, res *pipeline.Result) error {
	records, err := BuildRecords(res)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	if err := p.producer.ProduceBatch(ctx, records); err != nil {
		return fmt.Errorf("publish reports: %w", err)
	}
	if err := p.producer.Flush(ctx); err != nil {
		return err
	}

	p.logger.Info("reports published",
		zap.String("run_id", res.RunID),
		zap.Int("records", len(records)))
	return nil
}

// MetricKey is the record key of a metrics entry: the JSON array
// [npi, ndc]. Quoting keeps keys distinct whatever the IDs contain.
func MetricKey(npi, ndc string) string {
	key, _ := json.Marshal([2]string{npi, ndc})
	return string(key)
}

// BuildRecords converts a run's reports to records. Metrics are keyed by
// MetricKey, the per-drug reports by ndc.
func BuildRecords(res *pipeline.Result) ([]*Record, error) {
	records := make([]*Record, 0, len(res.Metrics)+len(res.Recommendations)+len(res.CommonQuantities))

	add := func(topic, report, key string, v any) error {
		value, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s entry %s: %w", report, key, err)
		}
		records = append(records, &Record{
			Topic: topic,
			Key:   key,
			Value: value,
			Headers: []Header{
				{Key: HeaderRunID, Value: res.RunID},
				{Key: HeaderReport, Value: report},
			},
		})
		return nil
	}

	for _, m := range res.Metrics {
		if err := add(TopicMetrics, "metrics", MetricKey(m.NPI, m.NDC), m); err != nil {
			return nil, err
		}
	}
	for _, r := range res.Recommendations {
		if err := add(TopicRecommendations, "recommendations", r.NDC, r); err != nil {
			return nil, err
		}
	}
	for _, q := range res.CommonQuantities {
		if err := add(TopicQuantities, "common_quantities", q.NDC, q); err != nil {
			return nil, err
		}
	}
	return records, nil
}
