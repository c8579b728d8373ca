// Package postgres provides PostgreSQL storage for report runs.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxclaims/internal/pipeline"
	"github.com/drfirst/go-rxclaims/internal/report"
)

// Schema creates the report tables
const Schema = `
CREATE TABLE IF NOT EXISTS report_runs (
	run_id           TEXT PRIMARY KEY,
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ NOT NULL,
	claims_accepted  INTEGER NOT NULL,
	reverts_accepted INTEGER NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pharmacy_metrics (
	run_id      TEXT NOT NULL REFERENCES report_runs (run_id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	npi         TEXT NOT NULL,
	ndc         TEXT NOT NULL,
	fills       INTEGER NOT NULL,
	reverted    INTEGER NOT NULL,
	avg_price   DOUBLE PRECISION NOT NULL,
	total_price DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS chain_recommendations (
	run_id    TEXT NOT NULL REFERENCES report_runs (run_id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	ndc       TEXT NOT NULL,
	rank      INTEGER NOT NULL,
	chain     TEXT NOT NULL,
	avg_price DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, position, rank)
);

CREATE TABLE IF NOT EXISTS common_quantities (
	run_id   TEXT NOT NULL REFERENCES report_runs (run_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	ndc      TEXT NOT NULL,
	rank     INTEGER NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, position, rank)
);
`

// ReportStore persists the reports of each run
type ReportStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewReportStore creates a new report store
func NewReportStore(pool *pgxpool.Pool, logger *zap.Logger) *ReportStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("report-store"),
	}
}

// Connect opens a pool for connStr and verifies it is reachable
func Connect(ctx context.Context, connStr string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the report tables if they do not exist
func (s *ReportStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Name identifies the sink
func (s *ReportStore) Name() string { return "postgres" }

// Write saves a run and its reports in one transaction
func (s *ReportStore) Write(ctx context.Context, res *pipeline.Result) error {
	ctx, span := s.tracer.Start(ctx, "save_report_run",
		trace.WithAttributes(
			attribute.String("run_id", res.RunID),
			attribute.Int("metrics", len(res.Metrics)),
		))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO report_runs (run_id, started_at, finished_at, claims_accepted, reverts_accepted)
		VALUES ($1, $2, $3, $4, $5)
	`, res.RunID, res.StartedAt, res.FinishedAt,
		int32(res.Stats.ClaimFilter.Accepted), int32(res.Stats.RevertFilter.Accepted))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert run: %w", err)
	}

	if err := s.copyRows(ctx, tx, "pharmacy_metrics",
		[]string{"run_id", "position", "npi", "ndc", "fills", "reverted", "avg_price", "total_price"},
		metricRows(res)); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.copyRows(ctx, tx, "chain_recommendations",
		[]string{"run_id", "position", "ndc", "rank", "chain", "avg_price"},
		recommendationRows(res)); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.copyRows(ctx, tx, "common_quantities",
		[]string{"run_id", "position", "ndc", "rank", "quantity"},
		quantityRows(res)); err != nil {
		span.RecordError(err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("report run stored",
		zap.String("run_id", res.RunID),
		zap.Int("metrics", len(res.Metrics)))
	return nil
}

func (s *ReportStore) copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	s.logger.Debug("rows copied", zap.String("table", table), zap.Int64("rows", n))
	return nil
}

func metricRows(res *pipeline.Result) [][]any {
	rows := make([][]any, len(res.Metrics))
	for i, m := range res.Metrics {
		rows[i] = []any{res.RunID, int32(i), m.NPI, m.NDC, int32(m.Fills), int32(m.Reverted), m.AvgPrice, m.TotalPrice}
	}
	return rows
}

func recommendationRows(res *pipeline.Result) [][]any {
	var rows [][]any
	for i, rec := range res.Recommendations {
		for rank, c := range rec.Chains {
			rows = append(rows, []any{res.RunID, int32(i), rec.NDC, int32(rank + 1), c.Name, c.AvgPrice})
		}
	}
	return rows
}

func quantityRows(res *pipeline.Result) [][]any {
	var rows [][]any
	for i, cq := range res.CommonQuantities {
		for rank, q := range cq.Quantities {
			rows = append(rows, []any{res.RunID, int32(i), cq.NDC, int32(rank + 1), q})
		}
	}
	return rows
}

// LoadMetrics returns the stored metrics of a run in report order
func (s *ReportStore) LoadMetrics(ctx context.Context, runID string) ([]report.Metric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT npi, ndc, fills, reverted, avg_price, total_price
		FROM pharmacy_metrics
		WHERE run_id = $1
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []report.Metric
	for rows.Next() {
		var m report.Metric
		var fills, reverted int32
		if err := rows.Scan(&m.NPI, &m.NDC, &fills, &reverted, &m.AvgPrice, &m.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Fills = int(fills)
		m.Reverted = int(reverted)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// LoadRecommendations returns the stored chain recommendations of a run
func (s *ReportStore) LoadRecommendations(ctx context.Context, runID string) ([]report.ChainRecommendation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT position, ndc, chain, avg_price
		FROM chain_recommendations
		WHERE run_id = $1
		ORDER BY position ASC, rank ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []report.ChainRecommendation
	last := int32(-1)
	for rows.Next() {
		var position int32
		var ndc string
		var c report.ChainPrice
		if err := rows.Scan(&position, &ndc, &c.Name, &c.AvgPrice); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		if position != last {
			recs = append(recs, report.ChainRecommendation{NDC: ndc})
			last = position
		}
		recs[len(recs)-1].Chains = append(recs[len(recs)-1].Chains, c)
	}
	return recs, rows.Err()
}

// DeleteRun removes a run and its reports
func (s *ReportStore) DeleteRun(ctx context.Context, runID string) (int64, error) {
	result, err := s.pool.Exec(ctx, "DELETE FROM report_runs WHERE run_id = $1", runID)
	if err != nil {
		return 0, fmt.Errorf("delete run: %w", err)
	}
	return result.RowsAffected(), nil
}
