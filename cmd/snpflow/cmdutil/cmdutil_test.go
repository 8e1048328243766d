package cmdutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snpflow/internal/pipeline"
)

func TestSelectorRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		sel     Selector
		want    pipeline.PlanRequest
		wantErr string
	}{
		{
			name: "default is whole pipeline",
			sel:  Selector{Resume: true},
			want: pipeline.PlanRequest{Mode: pipeline.ModeAll, Resume: true},
		},
		{
			name: "single step",
			sel:  Selector{Step: "bwa_map"},
			want: pipeline.PlanRequest{Mode: pipeline.ModeSingleStep, Step: "bwa_map"},
		},
		{
			name: "from step",
			sel:  Selector{From: "sort_sam", Force: true},
			want: pipeline.PlanRequest{Mode: pipeline.ModeFromStep, From: "sort_sam", Force: true},
		},
		{
			name: "range",
			sel:  Selector{From: "sort_sam", To: "index_bam"},
			want: pipeline.PlanRequest{Mode: pipeline.ModeRange, From: "sort_sam", To: "index_bam"},
		},
		{
			name:    "step excludes window",
			sel:     Selector{Step: "bwa_map", From: "sort_sam"},
			wantErr: "--step cannot be combined",
		},
		{
			name: "to without from ranges from the start",
			sel:  Selector{To: "index_bam"},
			want: pipeline.PlanRequest{Mode: pipeline.ModeRange, To: "index_bam"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := tc.sel.Request()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("Request() error = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Request() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Request() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestLoadProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	samples := filepath.Join(dir, "samples")
	if err := os.MkdirAll(samples, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"wheat_01_clean_1.fastq.gz", "wheat_01_clean_2.fastq.gz"} {
		if err := os.WriteFile(filepath.Join(samples, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfgPath := filepath.Join(dir, "snpflow.yaml")
	cfg := "samples_dir: samples\noutput_dir: results\nreference_genome: ref/genome.fa\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	proj, err := LoadProject(&RootFlags{Config: cfgPath})
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}

	if got, want := len(proj.Samples), 1; got != want {
		t.Fatalf("len(Samples) = %d, want %d", got, want)
	}
	if proj.Samples[0].Name != "wheat_01" {
		t.Fatalf("sample name = %q", proj.Samples[0].Name)
	}
	if proj.Run.ThreadsPerJob <= 0 || proj.Run.MaxParallelJobs <= 0 {
		t.Fatalf("defaults not applied: %+v", proj.Run)
	}
	if proj.Run.OutputDir != filepath.Join(dir, "results") {
		t.Fatalf("OutputDir = %q", proj.Run.OutputDir)
	}
	if len(proj.Registry.Steps()) == 0 {
		t.Fatal("registry is empty")
	}
}

func TestLoadProjectMissingConfig(t *testing.T) {
	t.Parallel()

	_, err := LoadProject(&RootFlags{Config: filepath.Join(t.TempDir(), "snpflow.yaml")})
	if err == nil || !strings.Contains(err.Error(), "snpflow init") {
		t.Fatalf("error = %v, want init hint", err)
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Fatalf("hint should replace the raw stat error, got %v", err)
	}
}
