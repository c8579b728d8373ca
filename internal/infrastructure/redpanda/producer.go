// Package redpanda publishes report entries to Kafka-compatible brokers
// with franz-go.
package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProducerConfig holds configuration for the Redpanda producer
type ProducerConfig struct {
	Brokers []string
	// Linger is how long records wait to join a batch
	Linger time.Duration
	// Compression is one of none, lz4, snappy, gzip or zstd
	Compression string
	// Acks is "all" or "leader"
	Acks string
}

// DefaultProducerConfig returns the settings used for report runs
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:     []string{"localhost:9092"},
		Linger:      10 * time.Millisecond,
		Compression: "lz4",
		Acks:        "all",
	}
}

// producerOpts translates cfg into client options
func producerOpts(cfg ProducerConfig) ([]kgo.Opt, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(cfg.Linger),
	}

	switch cfg.Acks {
	case "", "all":
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case "leader":
		// idempotent writes need acks from all replicas
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	default:
		return nil, fmt.Errorf("unsupported acks %q", cfg.Acks)
	}

	var codec kgo.CompressionCodec
	switch cfg.Compression {
	case "", "none":
		codec = kgo.NoCompression()
	case "lz4":
		codec = kgo.Lz4Compression()
	case "snappy":
		codec = kgo.SnappyCompression()
	case "gzip":
		codec = kgo.GzipCompression()
	case "zstd":
		codec = kgo.ZstdCompression()
	default:
		return nil, fmt.Errorf("unsupported compression %q", cfg.Compression)
	}
	return append(opts, kgo.ProducerBatchCompression(codec)), nil
}

// Producer sends batches of report records
type Producer struct {
	client *kgo.Client
	logger *zap.Logger
	tracer trace.Tracer

	sent   atomic.Int64
	bytes  atomic.Int64
	failed atomic.Int64
}

// NewProducer creates a producer. No connection is made until the first
// batch is sent.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts, err := producerOpts(cfg)
	if err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger,
		tracer: otel.Tracer("redpanda-producer"),
	}, nil
}

// ProduceBatch sends records and waits until each one is acknowledged or
// has failed
func (p *Producer) ProduceBatch(ctx context.Context, records []*Record) error {
	ctx, span := p.tracer.Start(ctx, "produce_batch",
		trace.WithAttributes(attribute.Int("batch_size", len(records))))
	defer span.End()

	var (
		wg       sync.WaitGroup
		firstErr error
		errOnce  sync.Once
	)
	wg.Add(len(records))
	for _, rec := range records {
		kr := rec.toKgo()
		injectTraceHeaders(ctx, kr)

		p.client.Produce(ctx, kr, func(r *kgo.Record, err error) {
			defer wg.Done()
			if err != nil {
				p.failed.Add(1)
				errOnce.Do(func() { firstErr = err })
				return
			}
			p.sent.Add(1)
			p.bytes.Add(int64(len(r.Value)))
		})
	}
	wg.Wait()

	if firstErr != nil {
		span.RecordError(firstErr)
		return fmt.Errorf("produce %d records: %w", len(records), firstErr)
	}
	return nil
}

// Flush blocks until all buffered records are sent
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close flushes what is buffered, waiting up to 30s, and closes the client
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("error flushing on close", zap.Error(err))
	}
	p.client.Close()
	return nil
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent int64
	BytesSent    int64
	ErrorCount   int64
}

// Stats returns the producer counters
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent: p.sent.Load(),
		BytesSent:    p.bytes.Load(),
		ErrorCount:   p.failed.Load(),
	}
}

// Header is a record header. Headers are kept in order.
type Header struct {
	Key   string
	Value string
}

// Record represents a message to be produced
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers []Header
}

func (r *Record) toKgo() *kgo.Record {
	rec := &kgo.Record{
		Topic: r.Topic,
		Key:   []byte(r.Key),
		Value: r.Value,
	}
	for _, h := range r.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: h.Key, Value: []byte(h.Value)})
	}
	return rec
}

// injectTraceHeaders adds a W3C traceparent header when ctx carries a span
func injectTraceHeaders(ctx context.Context, record *kgo.Record) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	traceparent := fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), sc.TraceFlags())
	record.Headers = append(record.Headers, kgo.RecordHeader{Key: "traceparent", Value: []byte(traceparent)})
}
