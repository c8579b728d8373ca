// Package ingest reads pharmacy, claim and revert files from input
// directories. A file that cannot be parsed is skipped and reported; it
// never stops the rest of the batch.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxclaims/internal/domain/claim"
	"github.com/drfirst/go-rxclaims/internal/domain/pharmacy"
	"github.com/drfirst/go-rxclaims/pkg/workerpool"
)

// FileError describes a file that was skipped
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Stats summarizes one load
type Stats struct {
	Files       int
	Records     int
	SkippedRows int
	Failures    []FileError
}

// FailedFiles returns the number of skipped files
func (s Stats) FailedFiles() int { return len(s.Failures) }

// Loader reads input directories, parsing files concurrently
type Loader struct {
	pool   workerpool.Config
	logger *zap.Logger
}

// NewLoader creates a loader
func NewLoader(pool workerpool.Config, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{pool: pool, logger: logger.Named("ingest")}
}

type pharmacyFile struct {
	dir     *pharmacy.Directory
	skipped int
}

// LoadPharmacies builds the pharmacy directory from every CSV file in
// dirs. Files are applied in directory then file-name order, so a later
// row for the same NPI wins.
func (l *Loader) LoadPharmacies(ctx context.Context, dirs []string) (*pharmacy.Directory, Stats, error) {
	results, stats, err := l.parseAll(ctx, dirs, pharmacyExt, func(path string) (interface{}, error) {
		dir, skipped, err := ReadPharmacyFile(path)
		if err != nil {
			return nil, err
		}
		return pharmacyFile{dir: dir, skipped: skipped}, nil
	})
	if err != nil {
		return nil, stats, err
	}

	directory := pharmacy.NewDirectory()
	for _, r := range results {
		pf := r.(pharmacyFile)
		directory.Merge(pf.dir)
		stats.SkippedRows += pf.skipped
	}
	stats.Records = directory.Len()

	l.logger.Info("pharmacies loaded",
		zap.Int("files", stats.Files),
		zap.Int("failed_files", stats.FailedFiles()),
		zap.Int("pharmacies", directory.Len()))
	return directory, stats, nil
}

// LoadRecords reads every JSON file in dirs and concatenates their
// records in directory then file-name order.
func (l *Loader) LoadRecords(ctx context.Context, dirs []string) ([]claim.Record, Stats, error) {
	results, stats, err := l.parseAll(ctx, dirs, recordExt, func(path string) (interface{}, error) {
		return ReadRecordFile(path)
	})
	if err != nil {
		return nil, stats, err
	}

	var records []claim.Record
	for _, r := range results {
		records = append(records, r.([]claim.Record)...)
	}
	stats.Records = len(records)

	l.logger.Info("records loaded",
		zap.Strings("dirs", dirs),
		zap.Int("files", stats.Files),
		zap.Int("failed_files", stats.FailedFiles()),
		zap.Int("records", len(records)))
	return records, stats, nil
}

// parseAll runs parse over every matching file and returns the successful
// results in file order. Only a directory listing failure is an error.
func (l *Loader) parseAll(ctx context.Context, dirs []string, ext string, parse func(string) (interface{}, error)) ([]interface{}, Stats, error) {
	var stats Stats
	var tasks []*workerpool.Task
	for _, dir := range dirs {
		paths, err := listFiles(dir, ext)
		if err != nil {
			return nil, stats, err
		}
		for _, p := range paths {
			tasks = append(tasks, &workerpool.Task{ID: p, Payload: p})
		}
	}
	stats.Files = len(tasks)
	if len(tasks) == 0 {
		return nil, stats, nil
	}

	results, err := workerpool.Run(ctx, l.pool, tasks, func(ctx context.Context, task *workerpool.Task) *workerpool.Result {
		data, err := parse(task.Payload.(string))
		if err != nil {
			return &workerpool.Result{Error: err}
		}
		return &workerpool.Result{Success: true, Data: data}
	}, l.logger)
	if err != nil {
		return nil, stats, fmt.Errorf("load files: %w", err)
	}

	out := make([]interface{}, 0, len(results))
	for _, r := range results {
		if !r.Success {
			stats.Failures = append(stats.Failures, FileError{Path: r.TaskID, Err: r.Error})
			l.logger.Warn("skipping unreadable file",
				zap.String("path", r.TaskID),
				zap.Error(r.Error))
			continue
		}
		out = append(out, r.Data)
	}
	return out, stats, nil
}
