// Package integration runs the report pipeline end to end on the
// fixtures under test/fixtures.
package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/drfirst/go-rxclaims/internal/domain/claim"
	"github.com/drfirst/go-rxclaims/internal/observability/metrics"
	"github.com/drfirst/go-rxclaims/internal/output"
	"github.com/drfirst/go-rxclaims/internal/pipeline"
	"github.com/drfirst/go-rxclaims/internal/report"
	"github.com/drfirst/go-rxclaims/pkg/workerpool"
)

const fixtures = "../fixtures"

func fixtureConfig() pipeline.Config {
	return pipeline.Config{
		PharmacyDirs: []string{filepath.Join(fixtures, "pharmacies")},
		ClaimsDirs:   []string{filepath.Join(fixtures, "claims")},
		RevertsDirs:  []string{filepath.Join(fixtures, "reverts")},
		Pool:         workerpool.Config{Workers: 4, QueueSize: 8},
	}
}

func readJSON[T any](t *testing.T, path string) T {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return v
}

func TestPipelineFixtures(t *testing.T) {
	if _, err := os.Stat(fixtures); err != nil {
		t.Skipf("fixtures not found: %v", err)
	}

	outDir := t.TempDir()
	core, logs := observer.New(zap.WarnLevel)
	m := metrics.New()

	p := pipeline.New(fixtureConfig(), []pipeline.Sink{output.NewJSONWriter(outDir, nil)}, m, zap.New(core))
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantMetrics := []report.Metric{
		{NPI: "1000000001", NDC: "00002323401", Fills: 2, Reverted: 1, AvgPrice: 8, TotalPrice: 160},
		{NPI: "1000000002", NDC: "00002323401", Fills: 1, Reverted: 0, AvgPrice: 4, TotalPrice: 40},
		{NPI: "1000000003", NDC: "00002323401", Fills: 1, Reverted: 0, AvgPrice: 9, TotalPrice: 45},
		{NPI: "1000000002", NDC: "00009999999", Fills: 1, Reverted: 0, AvgPrice: 5, TotalPrice: 12.5},
	}
	gotMetrics := readJSON[[]report.Metric](t, filepath.Join(outDir, output.MetricsFile))
	if !reflect.DeepEqual(gotMetrics, wantMetrics) {
		t.Errorf("metrics =\n%+v\nwant\n%+v", gotMetrics, wantMetrics)
	}

	wantRecs := []report.ChainRecommendation{
		{NDC: "00002323401", Chains: []report.ChainPrice{{Name: "saint", AvgPrice: 4}, {Name: "health", AvgPrice: 8}}},
		{NDC: "00009999999", Chains: []report.ChainPrice{{Name: "saint", AvgPrice: 5}}},
	}
	gotRecs := readJSON[[]report.ChainRecommendation](t, filepath.Join(outDir, output.RecommendationsFile))
	if !reflect.DeepEqual(gotRecs, wantRecs) {
		t.Errorf("recommendations =\n%+v\nwant\n%+v", gotRecs, wantRecs)
	}

	wantQuantities := []report.CommonQuantity{
		{NDC: "00002323401", Quantities: []float64{10, 5}},
		{NDC: "00009999999", Quantities: []float64{2.5}},
	}
	gotQuantities := readJSON[[]report.CommonQuantity](t, filepath.Join(outDir, output.CommonQuantitiesFile))
	if !reflect.DeepEqual(gotQuantities, wantQuantities) {
		t.Errorf("common quantities =\n%+v\nwant\n%+v", gotQuantities, wantQuantities)
	}

	// claims_c.json is truncated and must be skipped with a warning
	if res.Stats.Claims.FailedFiles() != 1 {
		t.Errorf("failed claim files = %d, want 1", res.Stats.Claims.FailedFiles())
	}
	if logs.FilterMessage("skipping unreadable file").Len() != 1 {
		t.Errorf("expected one skip warning, got %d", logs.FilterMessage("skipping unreadable file").Len())
	}

	cf := res.Stats.ClaimFilter
	if cf.Accepted != 5 || cf.Unresolved != 1 {
		t.Errorf("claim filter = %+v", cf)
	}
	if cf.Rejected[claim.ReasonMissingField] != 1 || cf.Rejected[claim.ReasonZeroQuantity] != 1 {
		t.Errorf("claim rejections = %+v", cf.Rejected)
	}
	rf := res.Stats.RevertFilter
	if rf.Accepted != 1 || rf.Unresolved != 1 || rf.Rejected[claim.ReasonMissingField] != 1 {
		t.Errorf("revert filter = %+v", rf)
	}

	if got := testutil.ToFloat64(m.LastRunSuccess); got != 1 {
		t.Errorf("last run success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FilesFailed.WithLabelValues(pipeline.KindClaims)); got != 1 {
		t.Errorf("failed claim files metric = %v, want 1", got)
	}
}

func TestPipelineFixturesDeterministic(t *testing.T) {
	if _, err := os.Stat(fixtures); err != nil {
		t.Skipf("fixtures not found: %v", err)
	}

	var outputs [2]map[string][]byte
	for i := range outputs {
		dir := t.TempDir()
		p := pipeline.New(fixtureConfig(), []pipeline.Sink{output.NewJSONWriter(dir, nil)}, nil, nil)
		if _, err := p.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}

		outputs[i] = map[string][]byte{}
		for _, name := range []string{output.MetricsFile, output.RecommendationsFile, output.CommonQuantitiesFile} {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				t.Fatalf("read %s: %v", name, err)
			}
			outputs[i][name] = data
		}
	}

	for name, first := range outputs[0] {
		if string(first) != string(outputs[1][name]) {
			t.Errorf("%s differs between runs:\n%s\n---\n%s", name, first, outputs[1][name])
		}
	}
}
