package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testChecker() *Checker {
	c := NewChecker()
	c.LookPath = func(tool string) (string, error) {
		return "/usr/bin/" + tool, nil
	}
	c.DiskFree = func(string) (uint64, error) { return 500 << 30, nil }
	c.NTPQuery = func(string) (time.Duration, error) { return 12 * time.Millisecond, nil }
	return c
}

func testEnv(t *testing.T) Env {
	t.Helper()
	dir := t.TempDir()
	samplesDir := filepath.Join(dir, "samples")
	if err := os.MkdirAll(samplesDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	for _, name := range []string{"wheat_01_clean_1.fastq.gz", "wheat_01_clean_2.fastq.gz", "wheat_02_clean_1.fastq.gz"} {
		if err := os.WriteFile(filepath.Join(samplesDir, name), []byte("reads"), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	reference := filepath.Join(dir, "genome.fa")
	if err := os.WriteFile(reference, []byte(">chr1\nACGT\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return Env{
		Tools:      []string{"bwa-mem2", "gatk"},
		SamplesDir: samplesDir,
		OutputDir:  filepath.Join(dir, "results"),
		Reference:  reference,
	}
}

func resultByName(t *testing.T, report Report, name string) Result {
	t.Helper()
	for _, res := range report.Results {
		if res.Name == name {
			return res
		}
	}
	t.Fatalf("no %q result in %+v", name, report.Results)
	return Result{}
}

func TestCheckerAllHealthy(t *testing.T) {
	report := testChecker().Run(context.Background(), testEnv(t))

	if report.Failed() {
		t.Fatalf("Failed() = true: %+v", report.Results)
	}
	if report.Warnings() != 0 {
		t.Fatalf("Warnings() = %d: %+v", report.Warnings(), report.Results)
	}
	if got := resultByName(t, report, "samples"); !strings.Contains(got.Detail, "2 samples (1 paired)") {
		t.Fatalf("samples detail = %q", got.Detail)
	}
	if got := resultByName(t, report, "tool gatk"); got.Detail != "/usr/bin/gatk" {
		t.Fatalf("tool detail = %q", got.Detail)
	}
}

func TestCheckerMissingTool(t *testing.T) {
	c := testChecker()
	c.LookPath = func(tool string) (string, error) {
		if tool == "plink" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + tool, nil
	}
	env := testEnv(t)
	env.Tools = []string{"gatk", "plink"}

	report := c.Run(context.Background(), env)
	if !report.Failed() {
		t.Fatal("missing tool did not fail the report")
	}
	if got := resultByName(t, report, "tool plink"); got.Severity != SeverityFail {
		t.Fatalf("tool severity = %s", got.Severity)
	}
}

func TestCheckerBadInputs(t *testing.T) {
	c := testChecker()
	env := testEnv(t)

	t.Run("missing reference", func(t *testing.T) {
		bad := env
		bad.Reference = filepath.Join(t.TempDir(), "nope.fa")
		report := c.Run(context.Background(), bad)
		if got := resultByName(t, report, "reference genome"); got.Severity != SeverityFail {
			t.Fatalf("severity = %s", got.Severity)
		}
	})

	t.Run("empty reference", func(t *testing.T) {
		bad := env
		bad.Reference = filepath.Join(t.TempDir(), "empty.fa")
		if err := os.WriteFile(bad.Reference, nil, 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		report := c.Run(context.Background(), bad)
		if got := resultByName(t, report, "reference genome"); got.Severity != SeverityFail {
			t.Fatalf("severity = %s", got.Severity)
		}
	})

	t.Run("no samples", func(t *testing.T) {
		bad := env
		bad.SamplesDir = t.TempDir()
		report := c.Run(context.Background(), bad)
		got := resultByName(t, report, "samples")
		if got.Severity != SeverityFail || !strings.Contains(got.Detail, "_clean_1.fastq.gz") {
			t.Fatalf("samples result = %+v", got)
		}
	})
}

func TestCheckerDiskAndClockWarn(t *testing.T) {
	c := testChecker()
	c.DiskFree = func(string) (uint64, error) { return 1 << 30, nil }
	c.NTPQuery = func(string) (time.Duration, error) { return -2 * time.Minute, nil }

	report := c.Run(context.Background(), testEnv(t))
	if report.Failed() {
		t.Fatalf("warnings should not fail the report: %+v", report.Results)
	}
	if report.Warnings() != 2 {
		t.Fatalf("Warnings() = %d, want 2", report.Warnings())
	}
	if got := resultByName(t, report, "disk space"); got.Severity != SeverityWarn {
		t.Fatalf("disk severity = %s", got.Severity)
	}
	if got := resultByName(t, report, "system clock"); got.Severity != SeverityWarn {
		t.Fatalf("clock severity = %s", got.Severity)
	}
}

func TestCheckerUnreachableNTPIsOnlyAWarning(t *testing.T) {
	c := testChecker()
	c.NTPQuery = func(string) (time.Duration, error) { return 0, errors.New("timeout") }

	report := c.Run(context.Background(), testEnv(t))
	if report.Failed() {
		t.Fatal("offline NTP must not fail the report")
	}
	if got := resultByName(t, report, "system clock"); got.Severity != SeverityWarn {
		t.Fatalf("clock severity = %s", got.Severity)
	}
}
