package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxclaims/internal/config"
	"github.com/drfirst/go-rxclaims/internal/infrastructure/postgres"
	"github.com/drfirst/go-rxclaims/internal/infrastructure/redpanda"
	"github.com/drfirst/go-rxclaims/internal/output"
	"github.com/drfirst/go-rxclaims/internal/pipeline"
)

// buildSinks returns the sinks enabled by cfg, JSON first. The returned
// func releases their connections.
func buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]pipeline.Sink, func(), error) {
	sinks := []pipeline.Sink{output.NewJSONWriter(cfg.OutputDir, logger)}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Parquet {
		sinks = append(sinks, output.NewParquetWriter(cfg.OutputDir, logger))
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, 4)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		closers = append(closers, pool.Close)

		store := postgres.NewReportStore(pool, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
		logger.Info("postgres sink enabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		err = admin.EnsureTopics(ctx)
		admin.Close()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("ensure topics: %w", err)
		}

		producerCfg := redpanda.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producer, err := redpanda.NewProducer(producerCfg, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() {
			_ = producer.Close()
			stats := producer.Stats()
			logger.Info("kafka producer closed",
				zap.Int64("messages_sent", stats.MessagesSent),
				zap.Int64("bytes_sent", stats.BytesSent),
				zap.Int64("errors", stats.ErrorCount))
		})

		sinks = append(sinks, redpanda.NewReportPublisher(producer, logger))
		logger.Info("kafka sink enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	return sinks, closeAll, nil
}
