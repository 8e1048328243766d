// Package preflight checks that a host can actually run the pipeline before
// any step starts: the external tools on PATH, the input files, free disk
// under the output directory, and a sane wall clock.
package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/beevik/ntp"
	"github.com/dustin/go-humanize"

	"snpflow/internal/sample"
)

type Severity uint8

const (
	SeverityOK Severity = iota + 1
	SeverityWarn
	SeverityFail
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityWarn:
		return "warn"
	case SeverityFail:
		return "fail"
	default:
		return "unknown"
	}
}

type Result struct {
	Name     string
	Severity Severity
	Detail   string
}

type Report struct {
	Results []Result
}

// Failed reports whether any check is a hard failure. Warnings alone do not
// block a run.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.Severity == SeverityFail {
			return true
		}
	}
	return false
}

func (r Report) Warnings() int {
	n := 0
	for _, res := range r.Results {
		if res.Severity == SeverityWarn {
			n++
		}
	}
	return n
}

// Env is what a run needs from the host.
type Env struct {
	Tools      []string
	SamplesDir string
	OutputDir  string
	Reference  string
}

const (
	defaultNTPPool       = "pool.ntp.org"
	defaultNTPTimeout    = 3 * time.Second
	defaultOffsetWarn    = 30 * time.Second
	defaultDiskWarnBytes = 50 << 30
)

// Checker runs the preflight checks. The func fields default to the real
// host probes and exist so tests can stand in for them.
type Checker struct {
	pool       string
	offsetWarn time.Duration
	diskWarn   uint64

	LookPath func(tool string) (string, error)
	DiskFree func(path string) (uint64, error)
	NTPQuery func(pool string) (time.Duration, error)
}

func NewChecker() *Checker {
	return &Checker{
		pool:       defaultNTPPool,
		offsetWarn: defaultOffsetWarn,
		diskWarn:   defaultDiskWarnBytes,
		LookPath:   exec.LookPath,
		DiskFree:   diskFree,
		NTPQuery: func(pool string) (time.Duration, error) {
			resp, err := ntp.QueryWithOptions(pool, ntp.QueryOptions{Timeout: defaultNTPTimeout})
			if err != nil {
				return 0, err
			}
			return resp.ClockOffset, nil
		},
	}
}

// Run executes every check and always returns a full report; callers decide
// what a failure means for them.
func (c *Checker) Run(ctx context.Context, env Env) Report {
	var report Report
	add := func(name string, severity Severity, detail string) {
		report.Results = append(report.Results, Result{Name: name, Severity: severity, Detail: detail})
	}

	for _, tool := range env.Tools {
		if path, err := c.LookPath(tool); err != nil {
			add("tool "+tool, SeverityFail, "not found on PATH")
		} else {
			add("tool "+tool, SeverityOK, path)
		}
	}

	add(c.checkReference(env.Reference))
	add(c.checkSamples(env.SamplesDir))
	add(c.checkDisk(env.OutputDir))

	if err := ctx.Err(); err == nil {
		add(c.checkClock())
	}

	return report
}

func (c *Checker) checkReference(path string) (string, Severity, string) {
	const name = "reference genome"
	if path == "" {
		return name, SeverityFail, "not configured"
	}
	size, err := fileSize(path)
	if err != nil {
		return name, SeverityFail, fmt.Sprintf("%s: not readable", path)
	}
	if size == 0 {
		return name, SeverityFail, fmt.Sprintf("%s: empty file", path)
	}
	return name, SeverityOK, fmt.Sprintf("%s (%s)", path, humanize.IBytes(uint64(size)))
}

func (c *Checker) checkSamples(dir string) (string, Severity, string) {
	const name = "samples"
	samples, err := sample.Discover(dir)
	if err != nil {
		return name, SeverityFail, fmt.Sprintf("%s: %v", dir, err)
	}
	if len(samples) == 0 {
		return name, SeverityFail, fmt.Sprintf("no *%s files under %s", sample.R1Suffix, dir)
	}
	paired := 0
	for _, s := range samples {
		if s.Paired() {
			paired++
		}
	}
	return name, SeverityOK, fmt.Sprintf("%d samples (%d paired) under %s", len(samples), paired, dir)
}

func (c *Checker) checkDisk(outputDir string) (string, Severity, string) {
	const name = "disk space"
	free, err := c.DiskFree(nearestExisting(outputDir))
	if err != nil {
		return name, SeverityWarn, fmt.Sprintf("cannot stat %s: %v", outputDir, err)
	}
	detail := humanize.IBytes(free) + " free"
	if free < c.diskWarn {
		return name, SeverityWarn, fmt.Sprintf("%s, alignment and gVCFs may not fit", detail)
	}
	return name, SeverityOK, detail
}

func (c *Checker) checkClock() (string, Severity, string) {
	const name = "system clock"
	offset, err := c.NTPQuery(c.pool)
	if err != nil {
		return name, SeverityWarn, fmt.Sprintf("%s unreachable: %v", c.pool, err)
	}
	if offset.Abs() > c.offsetWarn {
		return name, SeverityWarn, fmt.Sprintf("offset %s from %s", offset.Round(time.Millisecond), c.pool)
	}
	return name, SeverityOK, fmt.Sprintf("offset %s from %s", offset.Round(time.Millisecond), c.pool)
}

// nearestExisting walks up from path to the closest directory that exists,
// so a not-yet-created output directory still gets a disk answer.
func nearestExisting(path string) string {
	for {
		if exists(path) {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
