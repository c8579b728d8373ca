// Package metrics provides Prometheus metrics for a report run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all run metrics
type Metrics struct {
	registry *prometheus.Registry

	FilesRead         *prometheus.CounterVec
	FilesFailed       *prometheus.CounterVec
	RecordsLoaded     *prometheus.CounterVec
	RecordsRejected   *prometheus.CounterVec
	RecordsUnresolved *prometheus.CounterVec
	ReportEntries     *prometheus.GaugeVec
	StageDuration     *prometheus.HistogramVec
	LastRunSuccess    prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
}

// New creates all metrics on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FilesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxclaims_files_read_total",
			Help: "Input files read, by kind",
		}, []string{"kind"}),
		FilesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxclaims_files_failed_total",
			Help: "Input files skipped because they could not be parsed",
		}, []string{"kind"}),
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxclaims_records_loaded_total",
			Help: "Raw records loaded, by kind",
		}, []string{"kind"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxclaims_records_rejected_total",
			Help: "Records dropped by validation",
		}, []string{"kind", "reason"}),
		RecordsUnresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxclaims_records_unresolved_total",
			Help: "Valid records dropped for an unknown pharmacy or claim",
		}, []string{"kind"}),
		ReportEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rxclaims_report_entries",
			Help: "Entries in each report of the last run",
		}, []string{"report"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rxclaims_stage_duration_seconds",
			Help:    "Pipeline stage duration",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 60},
		}, []string{"stage"}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxclaims_last_run_success",
			Help: "1 if the last run completed, 0 otherwise",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxclaims_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}

	m.registry.MustRegister(
		m.FilesRead,
		m.FilesFailed,
		m.RecordsLoaded,
		m.RecordsRejected,
		m.RecordsUnresolved,
		m.ReportEntries,
		m.StageDuration,
		m.LastRunSuccess,
		m.LastRunTimestamp,
	)

	return m
}

// Registry returns the registry holding the run metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
