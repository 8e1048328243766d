// Package pipeline is the step-dependency execution engine behind snpflow.
//
// The twelve SNP-calling steps are data, not code: each StepDefinition
// declares its artifact templates and command templates, and the generic
// resolver/executor/orchestrator machinery does the rest. Adding a step is
// editing the catalog.
package pipeline

import (
	"sort"

	"snpflow/internal/check"
)

// StepDefinition declares one pipeline step. Values are immutable once the
// registry is built.
type StepDefinition struct {
	Name      string
	Priority  int
	PerSample bool
	// Tools lists the external binaries the commands call, for the
	// environment check.
	Tools []string
	// JavaOptions is the default --java-options value for {java}.
	JavaOptions string
	// TunableArgs fills {tunable_args}; config may override it wholesale.
	TunableArgs []string
	Inputs      []ArtifactTemplate
	Outputs     []ArtifactTemplate
	Commands    []CommandTemplate
	// WorkDirs are scratch directories created before the commands run.
	WorkDirs []string
}

// Registry holds the step catalog ordered by priority.
type Registry struct {
	steps  []StepDefinition
	byName map[string]int
}

// NewRegistry builds the registry from the builtin catalog.
func NewRegistry() *Registry {
	return newRegistry(builtinSteps())
}

func newRegistry(defs []StepDefinition) *Registry {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Priority < defs[j].Priority })
	byName := make(map[string]int, len(defs))
	for i, def := range defs {
		check.Assertf(def.Name != "", "step %d has empty name", i)
		_, dup := byName[def.Name]
		check.Assertf(!dup, "duplicate step name %q", def.Name)
		check.Assertf(i == 0 || defs[i-1].Priority < def.Priority,
			"duplicate step priority %d", def.Priority)
		byName[def.Name] = i
	}
	return &Registry{steps: defs, byName: byName}
}

// Steps returns the definitions sorted by priority ascending.
func (r *Registry) Steps() []StepDefinition {
	out := make([]StepDefinition, len(r.steps))
	copy(out, r.steps)
	return out
}

// Get returns the named definition or *UnknownStepError.
func (r *Registry) Get(name string) (StepDefinition, error) {
	i, ok := r.byName[name]
	if !ok {
		return StepDefinition{}, &UnknownStepError{Name: name}
	}
	return r.steps[i], nil
}

// First returns the lowest-priority step.
func (r *Registry) First() StepDefinition {
	check.Assert(len(r.steps) > 0, "empty registry")
	return r.steps[0]
}

// Last returns the highest-priority step.
func (r *Registry) Last() StepDefinition {
	check.Assert(len(r.steps) > 0, "empty registry")
	return r.steps[len(r.steps)-1]
}

// Tools returns the union of external binaries across the catalog, sorted.
func (r *Registry) Tools() []string {
	seen := map[string]bool{}
	var tools []string
	for _, def := range r.steps {
		for _, tool := range def.Tools {
			if !seen[tool] {
				seen[tool] = true
				tools = append(tools, tool)
			}
		}
	}
	sort.Strings(tools)
	return tools
}

// builtinSteps is the SNP-calling catalog: reference indexing through GWAS
// export. Paths are relative to the output directory unless a token anchors
// them elsewhere; commands run with the output directory as working dir.
func builtinSteps() []StepDefinition {
	return []StepDefinition{
		{
			Name:     "ref_index",
			Priority: 1,
			Tools:    []string{"bwa-mem2", "gatk", "samtools"},
			Inputs: []ArtifactTemplate{
				{Path: "{ref}", Class: ClassData},
			},
			Outputs: []ArtifactTemplate{
				{Path: "{ref}.0123", Class: ClassIndex},
				{Path: "{ref}.amb", Class: ClassIndex},
				{Path: "{ref}.ann", Class: ClassIndex},
				{Path: "{ref}.bwt.2bit.64", Class: ClassIndex},
				{Path: "{ref}.pac", Class: ClassIndex},
				{Path: "{ref_dict}", Class: ClassIndex},
				{Path: "{ref}.fai", Class: ClassIndex},
			},
			Commands: []CommandTemplate{
				{Program: "bwa-mem2", Args: []string{"index", "{ref}"}},
				{Program: "gatk", Args: []string{"CreateSequenceDictionary", "-R", "{ref}", "-O", "{ref_dict}"}},
				{Program: "samtools", Args: []string{"faidx", "{ref}"}},
			},
		},
		{
			Name:      "bwa_map",
			Priority:  2,
			PerSample: true,
			Tools:     []string{"bwa-mem2"},
			Inputs: []ArtifactTemplate{
				{Path: "{ref}", Class: ClassData},
				{Path: "{ref}.0123", Class: ClassIndex},
				{Path: "{ref}.amb", Class: ClassIndex},
				{Path: "{ref}.ann", Class: ClassIndex},
				{Path: "{ref}.bwt.2bit.64", Class: ClassIndex},
				{Path: "{ref}.pac", Class: ClassIndex},
				{Path: "{fq1}", Class: ClassData, PerSample: true},
				{Path: "{fq2}", Class: ClassData, PerSample: true},
			},
			Outputs: []ArtifactTemplate{
				{Path: "mapped_reads/{sample}.sam", Class: ClassData, PerSample: true},
			},
			Commands: []CommandTemplate{
				{Program: "bwa-mem2", Args: []string{
					"mem",
					"-R", `@RG\tID:{sample}\tLB:{sample}\tPL:illumina\tSM:{sample}`,
					"-t", "{threads}",
					"{ref}", "{fq1}", "{fq2}",
					"-o", "mapped_reads/{sample}.sam",
				}},
			},
		},
		{
			Name:      "sort_sam",
			Priority:  3,
			PerSample: true,
			Tools:     []string{"samtools"},
			Inputs: []ArtifactTemplate{
				{Path: "mapped_reads/{sample}.sam", Class: ClassData, PerSample: true},
			},
			Outputs: []ArtifactTemplate{
				{Path: "sorted_reads/{sample}.bam", Class: ClassData, PerSample: true},
			},
			Commands: []CommandTemplate{
				{Program: "samtools", Args: []string{
					"sort", "-@", "{threads_minus_one}",
					"-o", "sorted_reads/{sample}.bam",
					"mapped_reads/{sample}.sam",
				}},
			},
		},
		{
			Name:        "mark_duplicates",
			Priority:    4,
			PerSample:   true,
			Tools:       []string{"gatk"},
			JavaOptions: "-Xmx4g",
			Inputs: []ArtifactTemplate{
				{Path: "sorted_reads/{sample}.bam", Class: ClassData, PerSample: true},
			},
			Outputs: []ArtifactTemplate{
				{Path: "marked_duplicates/{sample}.bam", Class: ClassData, PerSample: true},
				{Path: "marked_duplicates/{sample}.metrics.txt", Class: ClassMetrics, PerSample: true},
			},
			Commands: []CommandTemplate{
				{Program: "gatk", Args: []string{
					"--java-options", "{java}",
					"MarkDuplicates",
					"-I", "sorted_reads/{sample}.bam",
					"-O", "marked_duplicates/{sample}.bam",
					"-M", "marked_duplicates/{sample}.metrics.txt",
					"--TMP_DIR", "temp/markdup_{sample}",
					"--CREATE_INDEX", "true",
					"--VALIDATION_STRINGENCY", "SILENT",
				}},
			},
			WorkDirs: []string{"temp/markdup_{sample}"},
		},
		{
			Name:      "index_bam",
			Priority:  5,
			PerSample: true,
			Tools:     []string{"samtools"},
			Inputs: []ArtifactTemplate{
				{Path: "marked_duplicates/{sample}.bam", Class: ClassData, PerSample: true},
			},
			Outputs: []ArtifactTemplate{
				{Path: "marked_duplicates/{sample}.bam.bai", Class: ClassIndex, PerSample: true},
			},
			Commands: []CommandTemplate{
				{Program: "samtools", Args: []string{"index", "marked_duplicates/{sample}.bam"}},
			},
		},
		{
			Name:        "haplotype_caller",
			Priority:    6,
			PerSample:   true,
			Tools:       []string{"gatk"},
			JavaOptions: "-Xmx4g",
			TunableArgs: []string{"--pcr-indel-model", "CONSERVATIVE", "-ERC", "GVCF"},
			Inputs: []ArtifactTemplate{
				{Path: "{ref}", Class: ClassData},
				{Path: "{ref_dict}", Class: ClassIndex},
				{Path: "{ref}.fai", Class: ClassIndex},
				{Path: "marked_duplicates/{sample}.bam", Class: ClassData, PerSample: true},
				{Path: "marked_duplicates/{sample}.bam.bai", Class: ClassIndex, PerSample: true},
			},
			Outputs: []ArtifactTemplate{
				{Path: "gvcf/{sample}.g.vcf.gz", Class: ClassData, PerSample: true},
			},
			Commands: []CommandTemplate{
				{Program: "gatk", Args: []string{
					"--java-options", "{java} -Djava.io.tmpdir=temp/hc_{sample}",
					"HaplotypeCaller",
					"-R", "{ref}",
					"-I", "marked_duplicates/{sample}.bam",
					"-O", "gvcf/{sample}.g.vcf.gz",
					"{tunable_args}",
				}},
			},
			WorkDirs: []string{"temp/hc_{sample}"},
		},
		{
			Name:        "combine_gvcfs",
			Priority:    7,
			Tools:       []string{"gatk"},
			JavaOptions: "-Xmx4g",
			Inputs: []ArtifactTemplate{
				{Path: "{ref}", Class: ClassData},
				{Path: "gvcf/{sample}.g.vcf.gz", Class: ClassData, PerSample: true},
			},
			Outputs: []ArtifactTemplate{
				{Path: "vcf/cohort.g.vcf.gz", Class: ClassData},
			},
			Commands: []CommandTemplate{
				{
					Program: "gatk",
					Args: []string{
						"--java-options", "{java} -Djava.io.tmpdir=temp/combine_gvcfs",
						"CombineGVCFs",
						"-R", "{ref}",
						"-O", "vcf/cohort.g.vcf.gz",
					},
					RepeatArgs: []string{"--variant", "gvcf/{sample}.g.vcf.gz"},
				},
			},
			WorkDirs: []string{"temp/combine_gvcfs"},
		},
		{
			Name:        "genotype_gvcfs",
			Priority:    8,
			Tools:       []string{"gatk"},
			JavaOptions: "-Xmx8g",
			TunableArgs: []string{"--max-alternate-alleles", "2"},
			Inputs: []ArtifactTemplate{
				{Path: "{ref}", Class: ClassData},
				{Path: "vcf/cohort.g.vcf.gz", Class: ClassData},
			},
			Outputs: []ArtifactTemplate{
				{Path: "vcf/all.vcf.gz", Class: ClassData},
			},
			Commands: []CommandTemplate{
				{Program: "gatk", Args: []string{
					"--java-options", "{java} -Djava.io.tmpdir=temp/genotype_gvcfs",
					"GenotypeGVCFs",
					"-R", "{ref}",
					"-V", "vcf/cohort.g.vcf.gz",
					"-O", "vcf/all.vcf.gz",
					"{tunable_args}",
				}},
			},
			WorkDirs: []string{"temp/genotype_gvcfs"},
		},
		{
			Name:        "vcf_filter",
			Priority:    9,
			Tools:       []string{"gatk"},
			JavaOptions: "-Xmx4g",
			TunableArgs: []string{
				"--filter-expression",
				"QD < 2.0 || FS > 60.0 || MQ < 40.0 || MQRankSum < -12.5 || ReadPosRankSum < -8.0 || SOR > 3.0",
				"--filter-name", "hard_filter",
			},
			Inputs: []ArtifactTemplate{
				{Path: "{ref}", Class: ClassData},
				{Path: "vcf/all.vcf.gz", Class: ClassData},
			},
			Outputs: []ArtifactTemplate{
				{Path: "vcf/all.filtered.vcf.gz", Class: ClassData},
			},
			Commands: []CommandTemplate{
				{Program: "gatk", Args: []string{
					"--java-options", "{java} -Djava.io.tmpdir=temp/vcf_filter",
					"VariantFiltration",
					"-R", "{ref}",
					"-V", "vcf/all.vcf.gz",
					"-O", "vcf/all.filtered.vcf.gz",
					"{tunable_args}",
				}},
			},
			WorkDirs: []string{"temp/vcf_filter"},
		},
		{
			Name:        "select_snp",
			Priority:    10,
			Tools:       []string{"gatk"},
			JavaOptions: "-Xmx4g",
			Inputs: []ArtifactTemplate{
				{Path: "{ref}", Class: ClassData},
				{Path: "vcf/all.filtered.vcf.gz", Class: ClassData},
			},
			Outputs: []ArtifactTemplate{
				{Path: "vcf/all.snp.vcf.gz", Class: ClassData},
			},
			Commands: []CommandTemplate{
				{Program: "gatk", Args: []string{
					"--java-options", "{java} -Djava.io.tmpdir=temp/select_snp",
					"SelectVariants",
					"-R", "{ref}",
					"-V", "vcf/all.filtered.vcf.gz",
					"--select-type", "SNP",
					"-O", "vcf/all.snp.vcf.gz",
				}},
			},
			WorkDirs: []string{"temp/select_snp"},
		},
		{
			Name:     "soft_filter_snp",
			Priority: 11,
			Tools:    []string{"vcftools", "bgzip"},
			Inputs: []ArtifactTemplate{
				{Path: "vcf/all.snp.vcf.gz", Class: ClassData},
			},
			Outputs: []ArtifactTemplate{
				{Path: "vcf/all.snp.soft.vcf.gz", Class: ClassData},
			},
			Commands: []CommandTemplate{
				{Program: "vcftools", Args: []string{
					"--gzvcf", "vcf/all.snp.vcf.gz",
					"--max-missing", "0.9",
					"--maf", "0.05",
					"--recode", "--recode-INFO-all",
					"--out", "vcf/all.snp.soft",
				}},
				{Program: "bgzip", Args: []string{"-f", "vcf/all.snp.soft.recode.vcf"}},
				{Program: "mv", Args: []string{"vcf/all.snp.soft.recode.vcf.gz", "vcf/all.snp.soft.vcf.gz"}},
			},
		},
		{
			Name:     "get_gwas_data",
			Priority: 12,
			Tools:    []string{"bcftools", "plink"},
			Inputs: []ArtifactTemplate{
				{Path: "vcf/all.snp.soft.vcf.gz", Class: ClassData},
			},
			Outputs: []ArtifactTemplate{
				{Path: "gwas/snp.bed", Class: ClassData},
				{Path: "gwas/snp.bim", Class: ClassData},
				{Path: "gwas/snp.fam", Class: ClassData},
			},
			Commands: []CommandTemplate{
				{Program: "bcftools", Args: []string{
					"norm", "-m-any", "-Oz",
					"-o", "gwas/normalized.vcf.gz",
					"vcf/all.snp.soft.vcf.gz",
				}},
				{Program: "plink", Args: []string{
					"--vcf", "gwas/normalized.vcf.gz",
					"--double-id", "--allow-extra-chr",
					"--make-bed",
					"--out", "gwas/snp",
				}},
			},
		},
	}
}
