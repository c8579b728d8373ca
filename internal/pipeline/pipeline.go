// Package pipeline runs one report batch: load inputs, validate and join
// them, compute the three reports and hand them to the configured sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxclaims/internal/domain/claim"
	"github.com/drfirst/go-rxclaims/internal/domain/pharmacy"
	"github.com/drfirst/go-rxclaims/internal/ingest"
	"github.com/drfirst/go-rxclaims/internal/observability/metrics"
	"github.com/drfirst/go-rxclaims/internal/report"
	"github.com/drfirst/go-rxclaims/pkg/workerpool"
)

// Record kinds used in stats and metric labels
const (
	KindPharmacies = "pharmacies"
	KindClaims     = "claims"
	KindReverts    = "reverts"
)

// ErrNoPharmacyDirs is returned when a run has no pharmacy input
var ErrNoPharmacyDirs = errors.New("at least one pharmacy directory is required")

// ErrNoClaimsDirs is returned when a run has no claims input
var ErrNoClaimsDirs = errors.New("at least one claims directory is required")

// Config is everything a run needs to know about its inputs
type Config struct {
	PharmacyDirs []string
	ClaimsDirs   []string
	RevertsDirs  []string
	Pool         workerpool.Config
}

// Validate checks the input directories are present
func (c Config) Validate() error {
	if len(c.PharmacyDirs) == 0 {
		return ErrNoPharmacyDirs
	}
	if len(c.ClaimsDirs) == 0 {
		return ErrNoClaimsDirs
	}
	return nil
}

// Sink receives the reports of a finished run
type Sink interface {
	Name() string
	Write(ctx context.Context, res *Result) error
}

// Stats collects load and filter counts for a run
type Stats struct {
	Pharmacies   ingest.Stats
	Claims       ingest.Stats
	Reverts      ingest.Stats
	ClaimFilter  claim.FilterStats
	RevertFilter claim.FilterStats
}

// Result holds the reports of one run
type Result struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Metrics          []report.Metric
	Recommendations  []report.ChainRecommendation
	CommonQuantities []report.CommonQuantity
	Stats            Stats
}

// Pipeline executes report runs
type Pipeline struct {
	cfg     Config
	loader  *ingest.Loader
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New creates a pipeline. Sinks are written in order after the reports
// are computed.
func New(cfg Config, sinks []Sink, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Pipeline{
		cfg:     cfg,
		loader:  ingest.NewLoader(cfg.Pool, logger),
		sinks:   sinks,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("pipeline"),
	}
}

// Run executes one batch
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	res = &Result{RunID: uuid.New().String(), StartedAt: time.Now().UTC()}
	logger := p.logger.With(zap.String("run_id", res.RunID))

	ctx, span := p.tracer.Start(ctx, "report_run",
		trace.WithAttributes(attribute.String("run_id", res.RunID)))
	defer func() {
		success := 0.0
		if err != nil {
			span.RecordError(err)
		} else {
			success = 1
		}
		p.metrics.LastRunSuccess.Set(success)
		p.metrics.LastRunTimestamp.SetToCurrentTime()
		span.End()
	}()

	logger.Info("report run started",
		zap.Strings("pharmacy_dirs", p.cfg.PharmacyDirs),
		zap.Strings("claims_dirs", p.cfg.ClaimsDirs),
		zap.Strings("reverts_dirs", p.cfg.RevertsDirs))

	directory, claims, reverts, err := p.load(ctx, res)
	if err != nil {
		return nil, err
	}

	var filteredClaims []claim.Claim
	var filteredReverts []claim.Revert
	p.stage(ctx, "filter", func(ctx context.Context) {
		filteredClaims, res.Stats.ClaimFilter = claim.FilterClaims(claims, directory)
		filteredReverts, res.Stats.RevertFilter = claim.FilterReverts(reverts, claim.IDs(filteredClaims))
	})
	p.recordFilter(KindClaims, res.Stats.ClaimFilter)
	p.recordFilter(KindReverts, res.Stats.RevertFilter)

	logger.Info("records filtered",
		zap.Int("claims_accepted", res.Stats.ClaimFilter.Accepted),
		zap.Int("claims_rejected", res.Stats.ClaimFilter.TotalRejected()),
		zap.Int("claims_unknown_pharmacy", res.Stats.ClaimFilter.Unresolved),
		zap.Int("reverts_accepted", res.Stats.RevertFilter.Accepted),
		zap.Int("reverts_rejected", res.Stats.RevertFilter.TotalRejected()),
		zap.Int("reverts_unknown_claim", res.Stats.RevertFilter.Unresolved))

	if err := p.aggregate(ctx, res, filteredClaims, filteredReverts, directory); err != nil {
		return nil, err
	}
	res.FinishedAt = time.Now().UTC()

	for _, sink := range p.sinks {
		var sinkErr error
		p.stage(ctx, "sink_"+sink.Name(), func(ctx context.Context) {
			sinkErr = sink.Write(ctx, res)
		})
		if sinkErr != nil {
			return res, fmt.Errorf("write %s sink: %w", sink.Name(), sinkErr)
		}
		logger.Debug("sink written", zap.String("sink", sink.Name()))
	}

	logger.Info("report run finished",
		zap.Int("metrics", len(res.Metrics)),
		zap.Int("recommendations", len(res.Recommendations)),
		zap.Int("common_quantities", len(res.CommonQuantities)),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

func (p *Pipeline) load(ctx context.Context, res *Result) (*pharmacy.Directory, []claim.Record, []claim.Record, error) {
	var (
		directory       *pharmacy.Directory
		claims, reverts []claim.Record
		err             error
	)

	p.stage(ctx, "load", func(ctx context.Context) {
		directory, res.Stats.Pharmacies, err = p.loader.LoadPharmacies(ctx, p.cfg.PharmacyDirs)
		if err != nil {
			err = fmt.Errorf("load pharmacies: %w", err)
			return
		}
		claims, res.Stats.Claims, err = p.loader.LoadRecords(ctx, p.cfg.ClaimsDirs)
		if err != nil {
			err = fmt.Errorf("load claims: %w", err)
			return
		}
		reverts, res.Stats.Reverts, err = p.loader.LoadRecords(ctx, p.cfg.RevertsDirs)
		if err != nil {
			err = fmt.Errorf("load reverts: %w", err)
		}
	})
	if err != nil {
		return nil, nil, nil, err
	}

	p.recordLoad(KindPharmacies, res.Stats.Pharmacies)
	p.recordLoad(KindClaims, res.Stats.Claims)
	p.recordLoad(KindReverts, res.Stats.Reverts)
	return directory, claims, reverts, nil
}

// aggregate computes the three reports concurrently. They share only
// read access to the filtered inputs.
func (p *Pipeline) aggregate(ctx context.Context, res *Result, claims []claim.Claim, reverts []claim.Revert, dir *pharmacy.Directory) error {
	jobs := map[string]func(){
		"metrics": func() {
			res.Metrics = report.CalculateMetrics(claims, reverts)
		},
		"recommendations": func() {
			res.Recommendations = report.CalculateChainRecommendations(claims, dir)
		},
		"common_quantities": func() {
			res.CommonQuantities = report.CalculateCommonQuantities(claims)
		},
	}
	tasks := []*workerpool.Task{
		{ID: "metrics"},
		{ID: "recommendations"},
		{ID: "common_quantities"},
	}

	var runErr error
	p.stage(ctx, "aggregate", func(ctx context.Context) {
		var results []*workerpool.Result
		results, runErr = workerpool.Run(ctx, p.cfg.Pool, tasks, func(ctx context.Context, task *workerpool.Task) *workerpool.Result {
			jobs[task.ID]()
			return &workerpool.Result{Success: true}
		}, p.logger)
		if runErr != nil {
			return
		}
		for _, r := range results {
			if !r.Success {
				runErr = fmt.Errorf("%s report: %w", r.TaskID, r.Error)
				return
			}
		}
	})
	if runErr != nil {
		return fmt.Errorf("aggregate: %w", runErr)
	}

	p.metrics.ReportEntries.WithLabelValues("metrics").Set(float64(len(res.Metrics)))
	p.metrics.ReportEntries.WithLabelValues("recommendations").Set(float64(len(res.Recommendations)))
	p.metrics.ReportEntries.WithLabelValues("common_quantities").Set(float64(len(res.CommonQuantities)))
	return nil
}

// stage runs fn in a span and records its duration
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	fn(ctx)
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (p *Pipeline) recordLoad(kind string, s ingest.Stats) {
	p.metrics.FilesRead.WithLabelValues(kind).Add(float64(s.Files))
	p.metrics.FilesFailed.WithLabelValues(kind).Add(float64(s.FailedFiles()))
	p.metrics.RecordsLoaded.WithLabelValues(kind).Add(float64(s.Records))
}

func (p *Pipeline) recordFilter(kind string, s claim.FilterStats) {
	for _, reason := range claim.Reasons {
		p.metrics.RecordsRejected.WithLabelValues(kind, string(reason)).Add(float64(s.Rejected[reason]))
	}
	p.metrics.RecordsUnresolved.WithLabelValues(kind).Add(float64(s.Unresolved))
}
