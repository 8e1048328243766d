// Package config loads a project's pipeline configuration.
//
// Config is stored in a snpflow.yaml inside the project directory; `snpflow
// init` writes a starter one. Relative paths are resolved against the
// directory holding the file, so a project checkout works from anywhere.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"snpflow/internal/pipeline"
)

// FileName is the config file `snpflow` looks for in the working directory.
const FileName = "snpflow.yaml"

// MissingFieldError reports a required config key that was left unset.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("config: %s is required", e.Field)
}

// GATK tunes the GATK-driven steps. Args strings use shell quoting and
// replace the step's default arguments wholesale.
type GATK struct {
	JavaOptions         string `yaml:"java_options,omitempty"`
	HaplotypeCallerArgs string `yaml:"haplotype_caller_args,omitempty"`
	GenotypeGVCFsArgs   string `yaml:"genotype_gvcfs_args,omitempty"`
	VariantFilterArgs   string `yaml:"variant_filter_args,omitempty"`
}

// Config is the on-disk shape of snpflow.yaml.
type Config struct {
	SamplesDir      string `yaml:"samples_dir"`
	OutputDir       string `yaml:"output_dir"`
	ReferenceGenome string `yaml:"reference_genome"`
	ThreadsPerJob   int    `yaml:"threads_per_job,omitempty"`
	MaxParallelJobs int    `yaml:"max_parallel_jobs,omitempty"`
	StepTimeout     string `yaml:"step_timeout,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty"`
	GATK            GATK   `yaml:"gatk,omitempty"`
}

// Load reads and validates the config at path. Required paths come back
// absolute, anchored at the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"samples_dir", cfg.SamplesDir},
		{"output_dir", cfg.OutputDir},
		{"reference_genome", cfg.ReferenceGenome},
	} {
		if strings.TrimSpace(field.value) == "" {
			return nil, &MissingFieldError{Field: field.name}
		}
	}
	if cfg.ThreadsPerJob < 0 || cfg.MaxParallelJobs < 0 {
		return nil, fmt.Errorf("config: threads_per_job and max_parallel_jobs must be positive")
	}
	if cfg.StepTimeout != "" {
		if _, err := str2duration.ParseDuration(cfg.StepTimeout); err != nil {
			return nil, fmt.Errorf("config: parse step_timeout %q: %w", cfg.StepTimeout, err)
		}
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	cfg.SamplesDir = anchor(base, cfg.SamplesDir)
	cfg.OutputDir = anchor(base, cfg.OutputDir)
	cfg.ReferenceGenome = anchor(base, cfg.ReferenceGenome)

	return &cfg, nil
}

func anchor(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// RunContext translates the config into the engine's run context. Samples
// are discovered separately and defaults applied after.
func (c *Config) RunContext() (pipeline.RunContext, error) {
	rc := pipeline.RunContext{
		SamplesDir:      c.SamplesDir,
		OutputDir:       c.OutputDir,
		Reference:       c.ReferenceGenome,
		ThreadsPerJob:   c.ThreadsPerJob,
		MaxParallelJobs: c.MaxParallelJobs,
		JavaOptions:     strings.TrimSpace(c.GATK.JavaOptions),
	}

	if c.StepTimeout != "" {
		timeout, err := str2duration.ParseDuration(c.StepTimeout)
		if err != nil {
			return pipeline.RunContext{}, fmt.Errorf("parse step_timeout %q: %w", c.StepTimeout, err)
		}
		rc.StepTimeout = timeout
	}

	overrides := map[string]string{
		"haplotype_caller": c.GATK.HaplotypeCallerArgs,
		"genotype_gvcfs":   c.GATK.GenotypeGVCFsArgs,
		"vcf_filter":       c.GATK.VariantFilterArgs,
	}
	for step, raw := range overrides {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		args, err := shellwords.Parse(raw)
		if err != nil {
			return pipeline.RunContext{}, fmt.Errorf("parse gatk args for %s: %w", step, err)
		}
		if rc.TunableOverrides == nil {
			rc.TunableOverrides = map[string][]string{}
		}
		rc.TunableOverrides[step] = args
	}

	return rc, nil
}

const starter = `# snpflow pipeline configuration.
#
# Paths may be relative to this file.

# Directory of cleaned reads named <sample>_clean_1.fastq.gz (and
# <sample>_clean_2.fastq.gz for paired-end data).
samples_dir: samples

# Everything the pipeline writes lands here.
output_dir: results

# Reference genome FASTA. Index files are created next to it.
reference_genome: reference/genome.fa

# Threads for each aligner/sort job and how many samples run at once.
#threads_per_job: 4
#max_parallel_jobs: 3

# Abort any single step after this long (e.g. 36h, 2d12h).
#step_timeout: 2d

# debug, info, warn or error.
#log_level: info

#gatk:
#  java_options: -Xmx16g
#  haplotype_caller_args: --pcr-indel-model CONSERVATIVE -ERC GVCF
#  genotype_gvcfs_args: --max-alternate-alleles 2
#  variant_filter_args: --filter-expression "QD < 2.0" --filter-name hard_filter
`

// WriteStarter creates a commented template config. It refuses to clobber
// an existing file.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(starter), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
