// Package simdata writes a small simulated dataset (reference genome plus
// paired cleaned FASTQ files) so the pipeline can be exercised end to end
// without real sequencing data. Output is reproducible for a given seed.
package simdata

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"snpflow/internal/sample"
)

const (
	defaultSamples    = 2
	defaultReadPairs  = 500
	defaultReadLength = 100
	defaultChroms     = 2
	defaultChromLen   = 20000

	fastaLineWidth = 70
	variantSpacing = 200
)

var bases = []byte("ACGT")

type Config struct {
	Seed             int64
	Samples          int
	ReadPairs        int
	ReadLength       int
	Chromosomes      int
	ChromosomeLength int
}

func (c Config) withDefaults() Config {
	if c.Samples <= 0 {
		c.Samples = defaultSamples
	}
	if c.ReadPairs <= 0 {
		c.ReadPairs = defaultReadPairs
	}
	if c.ReadLength <= 0 {
		c.ReadLength = defaultReadLength
	}
	if c.Chromosomes <= 0 {
		c.Chromosomes = defaultChroms
	}
	if c.ChromosomeLength <= 0 {
		c.ChromosomeLength = defaultChromLen
	}
	return c
}

// Layout names what Generate wrote, ready to drop into a config file.
type Layout struct {
	Reference   string
	SamplesDir  string
	SampleNames []string
}

// Generate writes the dataset under dir. Each sample is the reference with
// its own draw of alleles at a shared set of variant sites, so downstream
// genotyping has real SNPs to find.
func Generate(dir string, cfg Config) (Layout, error) {
	cfg = cfg.withDefaults()
	insert := 2*cfg.ReadLength + 50
	if cfg.ChromosomeLength < insert+1 {
		return Layout{}, fmt.Errorf("chromosome length %d too short for %dbp reads", cfg.ChromosomeLength, cfg.ReadLength)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	chroms := make([][]byte, cfg.Chromosomes)
	for i := range chroms {
		chroms[i] = randomSequence(rng, cfg.ChromosomeLength)
	}
	sites := variantSites(rng, chroms)

	layout := Layout{
		Reference:  filepath.Join(dir, "reference", "genome.fa"),
		SamplesDir: filepath.Join(dir, "samples"),
	}
	if err := writeReference(layout.Reference, chroms); err != nil {
		return Layout{}, err
	}
	if err := os.MkdirAll(layout.SamplesDir, 0o755); err != nil {
		return Layout{}, fmt.Errorf("create samples dir: %w", err)
	}

	for i := 0; i < cfg.Samples; i++ {
		name := fmt.Sprintf("sim_%02d", i+1)
		haplotypes := applyAlleles(rng, chroms, sites)
		if err := writeSample(layout.SamplesDir, name, haplotypes, cfg, rng, insert); err != nil {
			return Layout{}, err
		}
		layout.SampleNames = append(layout.SampleNames, name)
	}
	return layout, nil
}

func randomSequence(rng *rand.Rand, n int) []byte {
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = bases[rng.Intn(len(bases))]
	}
	return seq
}

type site struct {
	chrom int
	pos   int
	alt   byte
}

// variantSites picks the positions where samples may differ, roughly one per
// variantSpacing bases, each with an alt allele distinct from the reference.
func variantSites(rng *rand.Rand, chroms [][]byte) []site {
	var sites []site
	for ci, chrom := range chroms {
		for n := len(chrom) / variantSpacing; n > 0; n-- {
			pos := rng.Intn(len(chrom))
			alt := bases[rng.Intn(len(bases))]
			for alt == chrom[pos] {
				alt = bases[rng.Intn(len(bases))]
			}
			sites = append(sites, site{chrom: ci, pos: pos, alt: alt})
		}
	}
	return sites
}

// applyAlleles copies the reference and flips each variant site to its alt
// allele for this sample with probability one half.
func applyAlleles(rng *rand.Rand, chroms [][]byte, sites []site) [][]byte {
	haplotypes := make([][]byte, len(chroms))
	for i, chrom := range chroms {
		haplotypes[i] = append([]byte(nil), chrom...)
	}
	for _, s := range sites {
		if rng.Intn(2) == 1 {
			haplotypes[s.chrom][s.pos] = s.alt
		}
	}
	return haplotypes
}

func writeReference(path string, chroms [][]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create reference dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create reference: %w", err)
	}
	w := bufio.NewWriter(f)
	for i, chrom := range chroms {
		fmt.Fprintf(w, ">chr%d\n", i+1)
		for off := 0; off < len(chrom); off += fastaLineWidth {
			end := min(off+fastaLineWidth, len(chrom))
			w.Write(chrom[off:end])
			w.WriteByte('\n')
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write reference: %w", err)
	}
	return f.Close()
}

func writeSample(dir, name string, haplotypes [][]byte, cfg Config, rng *rand.Rand, insert int) error {
	r1, err := newFastqWriter(filepath.Join(dir, name+sample.R1Suffix))
	if err != nil {
		return err
	}
	defer r1.close()
	r2, err := newFastqWriter(filepath.Join(dir, name+sample.R2Suffix))
	if err != nil {
		return err
	}
	defer r2.close()

	qual := make([]byte, cfg.ReadLength)
	for i := range qual {
		qual[i] = 'I'
	}

	for n := 0; n < cfg.ReadPairs; n++ {
		hap := haplotypes[rng.Intn(len(haplotypes))]
		pos := rng.Intn(len(hap) - insert)
		fwd := hap[pos : pos+cfg.ReadLength]
		rev := reverseComplement(hap[pos+insert-cfg.ReadLength : pos+insert])

		id := fmt.Sprintf("%s_read_%06d", name, n+1)
		r1.record(id+"/1", fwd, qual)
		r2.record(id+"/2", rev, qual)
	}

	if err := r1.close(); err != nil {
		return fmt.Errorf("write %s reads: %w", name, err)
	}
	if err := r2.close(); err != nil {
		return fmt.Errorf("write %s reads: %w", name, err)
	}
	return nil
}

func reverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		var c byte
		switch b {
		case 'A':
			c = 'T'
		case 'T':
			c = 'A'
		case 'C':
			c = 'G'
		default:
			c = 'C'
		}
		out[len(seq)-1-i] = c
	}
	return out
}

type fastqWriter struct {
	file   *os.File
	gz     *gzip.Writer
	buf    *bufio.Writer
	closed bool
}

func newFastqWriter(path string) (*fastqWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	gz := gzip.NewWriter(f)
	return &fastqWriter{file: f, gz: gz, buf: bufio.NewWriter(gz)}, nil
}

func (w *fastqWriter) record(id string, seq, qual []byte) {
	w.buf.WriteByte('@')
	w.buf.WriteString(id)
	w.buf.WriteByte('\n')
	w.buf.Write(seq)
	w.buf.WriteString("\n+\n")
	w.buf.Write(qual)
	w.buf.WriteByte('\n')
}

func (w *fastqWriter) close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		_ = w.gz.Close()
		_ = w.file.Close()
		return err
	}
	if err := w.gz.Close(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
