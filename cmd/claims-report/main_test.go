package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drfirst/go-rxclaims/internal/pipeline"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "claims-report ") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestRunCmdReportsFlagErrors(t *testing.T) {
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"run", "--pharmacy-dirs", "x"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected unknown flag error")
	}
	if !strings.Contains(stderr.String(), "unknown flag: --pharmacy-dirs") {
		t.Errorf("stderr = %q, want the flag error", stderr.String())
	}
}

func TestRunCmdReportsConfigErrors(t *testing.T) {
	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"run", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected config error")
	}
	if !strings.Contains(stderr.String(), "read config file") {
		t.Errorf("stderr = %q, want the config error", stderr.String())
	}
}

func TestRunCmdRequiresClaimsDirs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--pharmacy_dirs", t.TempDir(), "--output_dir", t.TempDir()})

	err := cmd.Execute()
	if !errors.Is(err, pipeline.ErrNoClaimsDirs) {
		t.Fatalf("expected ErrNoClaimsDirs, got %v", err)
	}
}

func TestRunCmdWritesReports(t *testing.T) {
	pharmacies := t.TempDir()
	claims := t.TempDir()
	out := filepath.Join(t.TempDir(), "reports")
	metricsFile := filepath.Join(t.TempDir(), "rxclaims.prom")

	write := func(dir, name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(pharmacies, "pharmacies.csv", "ChainA,111\n")
	write(claims, "claims.json", `[{"id":"c1","npi":"111","ndc":"d1","price":100,"quantity":10,"timestamp":"2024-01-01T00:00:00"}]`)

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"run",
		"--pharmacy_dirs", pharmacies,
		"--claims_dirs", claims,
		"--output_dir", out,
		"--metrics_file", metricsFile,
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, name := range []string{"metrics_output.json", "recommendations_output.json", "common_quantities_output.json"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(data), "rxclaims_last_run_success 1") {
		t.Errorf("metrics file missing success gauge:\n%s", data)
	}
}
