package pipeline

import (
	"path/filepath"
	"strconv"
	"strings"

	"snpflow/internal/sample"
)

// ArtifactClass says what kind of file an artifact is. The executor demands
// non-zero size for data inputs; index and metrics files only need to exist.
type ArtifactClass uint8

const (
	ClassData ArtifactClass = iota + 1
	ClassIndex
	ClassMetrics
	ClassReport
)

func (c ArtifactClass) String() string {
	switch c {
	case ClassData:
		return "data"
	case ClassIndex:
		return "index"
	case ClassMetrics:
		return "metrics"
	case ClassReport:
		return "report"
	default:
		return "unknown"
	}
}

// ArtifactTemplate is an input or output path with tokens still in it.
// PerSample templates expand once per discovered sample.
type ArtifactTemplate struct {
	Path      string
	Class     ArtifactClass
	PerSample bool
}

// Artifact is an expanded template: an absolute path plus its class, and the
// sample it belongs to when it came from a per-sample template.
type Artifact struct {
	Path   string
	Class  ArtifactClass
	Sample string
}

// tokenScope holds the values one expansion pass substitutes. The sample is
// nil for cohort-level expansion.
type tokenScope struct {
	rc     *RunContext
	step   *StepDefinition
	sample *sample.Sample
}

// expand replaces every token in s. Tokens that need a sample expand to ""
// outside per-sample scope; callers drop arguments that collapse to empty.
func (sc tokenScope) expand(s string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	pairs := []string{
		"{ref}", sc.rc.Reference,
		"{ref_dict}", sc.rc.ReferenceDict(),
		"{samples_dir}", sc.rc.SamplesDir,
		"{output_dir}", sc.rc.OutputDir,
		"{threads}", strconv.Itoa(sc.rc.ThreadsPerJob),
		"{threads_minus_one}", strconv.Itoa(max(1, sc.rc.ThreadsPerJob-1)),
	}
	if sc.step != nil {
		pairs = append(pairs, "{java}", sc.rc.javaOptions(*sc.step))
	}
	if sc.sample != nil {
		pairs = append(pairs,
			"{sample}", sc.sample.Name,
			"{fq1}", sc.sample.R1,
			"{fq2}", sc.sample.R2,
		)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// expandPath expands tokens and anchors relative results to the output
// directory. Reference-anchored templates come out absolute already.
func (sc tokenScope) expandPath(tmpl string) string {
	path := sc.expand(tmpl)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(sc.rc.OutputDir, path)
}

// expandArtifact resolves one template in scope. ok is false when the
// template needs a file the sample does not have (single-end {fq2}).
func expandArtifact(tmpl ArtifactTemplate, sc tokenScope) (Artifact, bool) {
	if sc.sample != nil && !sc.sample.Paired() && strings.Contains(tmpl.Path, "{fq2}") {
		return Artifact{}, false
	}
	a := Artifact{Path: sc.expandPath(tmpl.Path), Class: tmpl.Class}
	if sc.sample != nil {
		a.Sample = sc.sample.Name
	}
	return a, true
}

func expandArtifacts(tmpls []ArtifactTemplate, step StepDefinition, rc RunContext) []Artifact {
	var out []Artifact
	for _, tmpl := range tmpls {
		if !tmpl.PerSample {
			if a, ok := expandArtifact(tmpl, tokenScope{rc: &rc, step: &step}); ok {
				out = append(out, a)
			}
			continue
		}
		for i := range rc.Samples {
			if a, ok := expandArtifact(tmpl, tokenScope{rc: &rc, step: &step, sample: &rc.Samples[i]}); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

// ExpandInputs resolves a step's input templates against the run context.
func ExpandInputs(step StepDefinition, rc RunContext) []Artifact {
	return expandArtifacts(step.Inputs, step, rc)
}

// ExpandOutputs resolves a step's output templates against the run context.
func ExpandOutputs(step StepDefinition, rc RunContext) []Artifact {
	return expandArtifacts(step.Outputs, step, rc)
}

// workDirs resolves the scratch directories a step needs created up front.
func workDirs(step StepDefinition, rc RunContext) []string {
	var dirs []string
	for _, tmpl := range step.WorkDirs {
		if !step.PerSample {
			dirs = append(dirs, tokenScope{rc: &rc, step: &step}.expandPath(tmpl))
			continue
		}
		for i := range rc.Samples {
			sc := tokenScope{rc: &rc, step: &step, sample: &rc.Samples[i]}
			dirs = append(dirs, sc.expandPath(tmpl))
		}
	}
	return dirs
}
