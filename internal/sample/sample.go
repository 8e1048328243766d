// Package sample discovers sequencing samples from a directory of cleaned
// FASTQ files.
package sample

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// R1Suffix and R2Suffix are the filename endings that mark a sample's read
// files; the sample name is everything before the suffix.
const (
	R1Suffix = "_clean_1.fastq.gz"
	R2Suffix = "_clean_2.fastq.gz"
)

// Sample is one sequencing sample. R2 is empty for single-end data.
type Sample struct {
	Name string
	R1   string
	R2   string
}

// Paired reports whether the sample has a second read file.
func (s Sample) Paired() bool { return s.R2 != "" }

// Names returns the sample names in order.
func Names(samples []Sample) []string {
	names := make([]string, len(samples))
	for i, s := range samples {
		names[i] = s.Name
	}
	return names
}

// Discover scans dir for <name>_clean_1.fastq.gz files and pairs each with
// its <name>_clean_2.fastq.gz mate when present. The result is sorted by
// name and treated as immutable for the rest of the run.
func Discover(dir string) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan samples dir: %w", err)
	}

	byName := make(map[string]bool)
	var samples []Sample
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, R1Suffix) {
			continue
		}
		base := strings.TrimSuffix(name, R1Suffix)
		if base == "" {
			continue
		}
		s := Sample{Name: base, R1: filepath.Join(dir, name)}
		mate := filepath.Join(dir, base+R2Suffix)
		if _, err := os.Stat(mate); err == nil {
			s.R2 = mate
		}
		byName[base] = true
		samples = append(samples, s)
	}

	// A mate file without its first read is unusable and usually a copy
	// error worth surfacing.
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, R2Suffix) {
			continue
		}
		base := strings.TrimSuffix(name, R2Suffix)
		if base != "" && !byName[base] {
			slog.Warn("ignoring second-read file without first read", "file", name)
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}
