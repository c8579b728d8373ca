package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxclaims/internal/pipeline"
)

// Parquet file names
const (
	MetricsParquetFile         = "metrics_output.parquet"
	RecommendationsParquetFile = "recommendations_output.parquet"
)

// MetricRow is one (NPI, NDC) metrics entry
type MetricRow struct {
	RunID      string  `parquet:"run_id"`
	NPI        string  `parquet:"npi"`
	NDC        string  `parquet:"ndc"`
	Fills      int64   `parquet:"fills"`
	Reverted   int64   `parquet:"reverted"`
	AvgPrice   float64 `parquet:"avg_price"`
	TotalPrice float64 `parquet:"total_price"`
}

// RecommendationRow is one ranked chain for a drug. Rank starts at 1.
type RecommendationRow struct {
	RunID    string  `parquet:"run_id"`
	NDC      string  `parquet:"ndc"`
	Rank     int32   `parquet:"rank"`
	Chain    string  `parquet:"chain"`
	AvgPrice float64 `parquet:"avg_price"`
}

// ParquetWriter writes the metrics and recommendation reports as
// zstd-compressed Parquet files for analytical queries.
type ParquetWriter struct {
	dir    string
	logger *zap.Logger
}

// NewParquetWriter creates a writer targeting dir
func NewParquetWriter(dir string, logger *zap.Logger) *ParquetWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParquetWriter{dir: dir, logger: logger}
}

// Name identifies the sink
func (w *ParquetWriter) Name() string { return "parquet" }

// Write writes both Parquet files
func (w *ParquetWriter) Write(ctx context.Context, res *pipeline.Result) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	metricRows := make([]MetricRow, len(res.Metrics))
	for i, m := range res.Metrics {
		metricRows[i] = MetricRow{
			RunID:      res.RunID,
			NPI:        m.NPI,
			NDC:        m.NDC,
			Fills:      int64(m.Fills),
			Reverted:   int64(m.Reverted),
			AvgPrice:   m.AvgPrice,
			TotalPrice: m.TotalPrice,
		}
	}
	if err := writeParquet(filepath.Join(w.dir, MetricsParquetFile), metricRows); err != nil {
		return err
	}

	var recRows []RecommendationRow
	for _, rec := range res.Recommendations {
		for i, c := range rec.Chains {
			recRows = append(recRows, RecommendationRow{
				RunID:    res.RunID,
				NDC:      rec.NDC,
				Rank:     int32(i + 1),
				Chain:    c.Name,
				AvgPrice: c.AvgPrice,
			})
		}
	}
	if err := writeParquet(filepath.Join(w.dir, RecommendationsParquetFile), recRows); err != nil {
		return err
	}

	w.logger.Info("parquet reports written",
		zap.String("dir", w.dir),
		zap.Int("metric_rows", len(metricRows)),
		zap.Int("recommendation_rows", len(recRows)))
	return nil
}

func writeParquet[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[T](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.CreatedBy("go-rxclaims", "1.0", ""),
	)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			writer.Close()
			file.Close()
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return file.Close()
}
