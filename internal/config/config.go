// Package config loads claims-report settings from flags, environment
// and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/drfirst/go-rxclaims/internal/pipeline"
	"github.com/drfirst/go-rxclaims/pkg/workerpool"
)

// EnvPrefix is prepended to every environment variable, e.g.
// RXCLAIMS_OUTPUT_DIR
const EnvPrefix = "RXCLAIMS"

// Keys
const (
	KeyPharmacyDirs = "pharmacy_dirs"
	KeyClaimsDirs   = "claims_dirs"
	KeyRevertsDirs  = "reverts_dirs"
	KeyOutputDir    = "output_dir"
	KeyParquet      = "parquet"
	KeyWorkers      = "workers"
	KeyLogLevel     = "log_level"
	KeyMetricsFile  = "metrics_file"
	KeyOTLPEndpoint = "otlp_endpoint"
	KeyEnvironment  = "environment"
	KeyDatabaseURL  = "database_url"
	KeyKafkaBrokers = "kafka_brokers"
	KeyConfigFile   = "config"
)

// Config holds the settings of one claims-report run. Directory lists
// accept repeated values as well as comma separated entries.
type Config struct {
	PharmacyDirs []string `mapstructure:"pharmacy_dirs"`
	ClaimsDirs   []string `mapstructure:"claims_dirs"`
	RevertsDirs  []string `mapstructure:"reverts_dirs"`
	OutputDir    string   `mapstructure:"output_dir"`
	Parquet      bool     `mapstructure:"parquet"`
	Workers      int      `mapstructure:"workers"`
	LogLevel     string   `mapstructure:"log_level"`
	MetricsFile  string   `mapstructure:"metrics_file"`
	OTLPEndpoint string   `mapstructure:"otlp_endpoint"`
	Environment  string   `mapstructure:"environment"`
	DatabaseURL  string   `mapstructure:"database_url"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
}

// New returns a viper instance with defaults and environment binding
// applied. Callers bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyOutputDir, "output")
	v.SetDefault(KeyParquet, false)
	v.SetDefault(KeyWorkers, workerpool.DefaultConfig().Workers)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyEnvironment, "development")

	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range []string{
		KeyPharmacyDirs, KeyClaimsDirs, KeyRevertsDirs,
		KeyMetricsFile, KeyOTLPEndpoint, KeyDatabaseURL, KeyKafkaBrokers,
	} {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the optional config file and decodes the settings
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.PharmacyDirs = splitList(cfg.PharmacyDirs)
	cfg.ClaimsDirs = splitList(cfg.ClaimsDirs)
	cfg.RevertsDirs = splitList(cfg.RevertsDirs)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if cfg.OutputDir == "" {
		return nil, errors.New("output_dir must not be empty")
	}
	return cfg, nil
}

// Pipeline converts the settings into a pipeline configuration
func (c *Config) Pipeline() pipeline.Config {
	pool := workerpool.DefaultConfig()
	if c.Workers > 0 {
		pool.Workers = c.Workers
	}
	return pipeline.Config{
		PharmacyDirs: c.PharmacyDirs,
		ClaimsDirs:   c.ClaimsDirs,
		RevertsDirs:  c.RevertsDirs,
		Pool:         pool,
	}
}

// IsDebug reports whether debug logging was requested
func (c *Config) IsDebug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// splitList flattens comma separated entries and drops blanks
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
