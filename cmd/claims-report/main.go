// Package main provides the claims-report command. It reads pharmacy,
// claim and revert files and writes the pharmacy reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxclaims/internal/config"
	"github.com/drfirst/go-rxclaims/internal/observability/metrics"
	"github.com/drfirst/go-rxclaims/internal/observability/tracing"
	"github.com/drfirst/go-rxclaims/internal/pipeline"
)

const serviceName = "claims-report"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Pharmacy claims reporting",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), serviceName, version)
		},
	}
}

func runCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the pharmacy reports for one batch of input files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("report run failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSlice(config.KeyPharmacyDirs, nil, "Directory of pharmacy CSV files (repeatable)")
	flags.StringSlice(config.KeyClaimsDirs, nil, "Directory of claim JSON files (repeatable)")
	flags.StringSlice(config.KeyRevertsDirs, nil, "Directory of revert JSON files (repeatable)")
	flags.String(config.KeyOutputDir, "output", "Directory the report files are written to")
	flags.Bool(config.KeyParquet, false, "Also write Parquet reports")
	flags.Int(config.KeyWorkers, 0, "Files parsed concurrently (0 uses the CPU count)")
	flags.String(config.KeyLogLevel, "info", "Log level (debug, info)")
	flags.String(config.KeyMetricsFile, "", "Write run metrics to this Prometheus textfile")
	flags.String(config.KeyDatabaseURL, "", "Store reports in this PostgreSQL database")
	flags.StringSlice(config.KeyKafkaBrokers, nil, "Publish reports to these Kafka brokers")
	flags.String(config.KeyOTLPEndpoint, "", "OTLP gRPC collector for traces")
	flags.String(config.KeyConfigFile, "", "Optional config file")
	bindFlags(v, cmd)

	return cmd
}

// bindFlags makes explicitly set flags override environment and file
// values
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for _, key := range []string{
		config.KeyPharmacyDirs, config.KeyClaimsDirs, config.KeyRevertsDirs,
		config.KeyOutputDir, config.KeyParquet, config.KeyWorkers, config.KeyLogLevel,
		config.KeyMetricsFile, config.KeyDatabaseURL, config.KeyKafkaBrokers,
		config.KeyOTLPEndpoint, config.KeyConfigFile,
	} {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(key))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDebug() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tracingCfg := tracing.DefaultConfig(serviceName)
	tracingCfg.ServiceVersion = version
	tracingCfg.Environment = cfg.Environment
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint

	tp, err := tracing.Init(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	m := metrics.New()
	if cfg.MetricsFile != "" {
		defer func() {
			if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
				logger.Warn("failed to write metrics file",
					zap.String("path", cfg.MetricsFile),
					zap.Error(err))
			}
		}()
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	_, err = pipeline.New(cfg.Pipeline(), sinks, m, logger).Run(ctx)
	return err
}
