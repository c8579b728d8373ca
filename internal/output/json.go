// Package output writes report files.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxclaims/internal/pipeline"
)

// Report file names
const (
	MetricsFile          = "metrics_output.json"
	RecommendationsFile  = "recommendations_output.json"
	CommonQuantitiesFile = "common_quantities_output.json"
)

// JSONWriter writes each report as an indented JSON document
type JSONWriter struct {
	dir    string
	logger *zap.Logger
}

// NewJSONWriter creates a writer targeting dir
func NewJSONWriter(dir string, logger *zap.Logger) *JSONWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONWriter{dir: dir, logger: logger}
}

// Name identifies the sink
func (w *JSONWriter) Name() string { return "json" }

// Write writes the three report files, creating the directory if needed
func (w *JSONWriter) Write(ctx context.Context, res *pipeline.Result) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name string
		v    interface{}
	}{
		{MetricsFile, res.Metrics},
		{RecommendationsFile, res.Recommendations},
		{CommonQuantitiesFile, res.CommonQuantities},
	}
	for _, f := range files {
		path := filepath.Join(w.dir, f.name)
		if err := writeJSON(path, f.v); err != nil {
			return err
		}
		w.logger.Info("report written", zap.String("path", path))
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
