package pipeline

import (
	"strings"
	"testing"

	"snpflow/internal/sample"
)

func testContext(samples ...sample.Sample) RunContext {
	return RunContext{
		SamplesDir:      "/data/samples",
		OutputDir:       "/work/out",
		Reference:       "/data/ref/genome.fa",
		Samples:         samples,
		ThreadsPerJob:   4,
		MaxParallelJobs: 2,
	}
}

func pairedSample(name string) sample.Sample {
	return sample.Sample{
		Name: name,
		R1:   "/data/samples/" + name + "_clean_1.fastq.gz",
		R2:   "/data/samples/" + name + "_clean_2.fastq.gz",
	}
}

func singleSample(name string) sample.Sample {
	return sample.Sample{
		Name: name,
		R1:   "/data/samples/" + name + "_clean_1.fastq.gz",
	}
}

func mustGet(t *testing.T, name string) StepDefinition {
	t.Helper()
	def, err := NewRegistry().Get(name)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", name, err)
	}
	return def
}

func TestReferenceDict(t *testing.T) {
	cases := []struct {
		ref  string
		want string
	}{
		{ref: "/data/ref/genome.fa", want: "/data/ref/genome.dict"},
		{ref: "/data/ref/genome.fasta", want: "/data/ref/genome.dict"},
		{ref: "/data/ref/genome", want: "/data/ref/genome.dict"},
	}
	for _, tc := range cases {
		rc := RunContext{Reference: tc.ref}
		if got := rc.ReferenceDict(); got != tc.want {
			t.Fatalf("ReferenceDict(%s) = %s, want %s", tc.ref, got, tc.want)
		}
	}
}

func TestExpandOutputsAnchorsPaths(t *testing.T) {
	rc := testContext(pairedSample("wheat_01"), pairedSample("wheat_02"))

	t.Run("reference outputs stay beside the reference", func(t *testing.T) {
		outs := ExpandOutputs(mustGet(t, "ref_index"), rc)
		if len(outs) != 7 {
			t.Fatalf("ref_index outputs = %d, want 7", len(outs))
		}
		if outs[0].Path != "/data/ref/genome.fa.0123" {
			t.Fatalf("outputs[0] = %s, want /data/ref/genome.fa.0123", outs[0].Path)
		}
		if outs[5].Path != "/data/ref/genome.dict" {
			t.Fatalf("outputs[5] = %s, want /data/ref/genome.dict", outs[5].Path)
		}
	})

	t.Run("relative outputs land under output dir per sample", func(t *testing.T) {
		outs := ExpandOutputs(mustGet(t, "bwa_map"), rc)
		if len(outs) != 2 {
			t.Fatalf("bwa_map outputs = %d, want one per sample", len(outs))
		}
		if outs[0].Path != "/work/out/mapped_reads/wheat_01.sam" {
			t.Fatalf("outputs[0] = %s", outs[0].Path)
		}
		if outs[1].Sample != "wheat_02" {
			t.Fatalf("outputs[1].Sample = %s, want wheat_02", outs[1].Sample)
		}
	})
}

func TestExpandInputsSingleEndDropsMate(t *testing.T) {
	rc := testContext(singleSample("wheat_01"))

	var fastqs []Artifact
	for _, in := range ExpandInputs(mustGet(t, "bwa_map"), rc) {
		if strings.HasSuffix(in.Path, ".fastq.gz") {
			fastqs = append(fastqs, in)
		}
	}
	if len(fastqs) != 1 {
		t.Fatalf("fastq inputs = %d, want 1 for single-end sample", len(fastqs))
	}
	if fastqs[0].Path != "/data/samples/wheat_01_clean_1.fastq.gz" {
		t.Fatalf("fastq input = %s", fastqs[0].Path)
	}
}

func TestBuildInvocationGroupsBwaMap(t *testing.T) {
	rc := testContext(pairedSample("wheat_01"), singleSample("wheat_02"))
	groups := BuildInvocationGroups(mustGet(t, "bwa_map"), rc)

	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}

	paired := groups[0].Invocations[0]
	if paired.Program != "bwa-mem2" {
		t.Fatalf("program = %s, want bwa-mem2", paired.Program)
	}
	if paired.Dir != "/work/out" {
		t.Fatalf("dir = %s, want /work/out", paired.Dir)
	}
	if paired.LogPath != "/work/out/logs/bwa_map/wheat_01.log" {
		t.Fatalf("log = %s", paired.LogPath)
	}
	wantPaired := []string{
		"mem",
		"-R", `@RG\tID:wheat_01\tLB:wheat_01\tPL:illumina\tSM:wheat_01`,
		"-t", "4",
		"/data/ref/genome.fa",
		"/data/samples/wheat_01_clean_1.fastq.gz",
		"/data/samples/wheat_01_clean_2.fastq.gz",
		"-o", "mapped_reads/wheat_01.sam",
	}
	assertArgs(t, paired.Args, wantPaired)

	single := groups[1].Invocations[0]
	wantSingle := []string{
		"mem",
		"-R", `@RG\tID:wheat_02\tLB:wheat_02\tPL:illumina\tSM:wheat_02`,
		"-t", "4",
		"/data/ref/genome.fa",
		"/data/samples/wheat_02_clean_1.fastq.gz",
		"-o", "mapped_reads/wheat_02.sam",
	}
	assertArgs(t, single.Args, wantSingle)

	if got := groups[1].ID("bwa_map"); got != "bwa_map/wheat_02" {
		t.Fatalf("ID() = %s, want bwa_map/wheat_02", got)
	}
}

func TestBuildInvocationGroupsSortUsesThreadsMinusOne(t *testing.T) {
	rc := testContext(pairedSample("wheat_01"))
	groups := BuildInvocationGroups(mustGet(t, "sort_sam"), rc)

	assertArgs(t, groups[0].Invocations[0].Args, []string{
		"sort", "-@", "3", "-o", "sorted_reads/wheat_01.bam", "mapped_reads/wheat_01.sam",
	})
}

func TestBuildInvocationGroupsCombineRepeatsVariants(t *testing.T) {
	rc := testContext(pairedSample("wheat_01"), pairedSample("wheat_02"))
	groups := BuildInvocationGroups(mustGet(t, "combine_gvcfs"), rc)

	if len(groups) != 1 || groups[0].Sample != "" {
		t.Fatalf("combine_gvcfs groups = %+v, want one cohort group", groups)
	}
	assertArgs(t, groups[0].Invocations[0].Args, []string{
		"--java-options", "-Xmx4g -Djava.io.tmpdir=temp/combine_gvcfs",
		"CombineGVCFs",
		"-R", "/data/ref/genome.fa",
		"-O", "vcf/cohort.g.vcf.gz",
		"--variant", "gvcf/wheat_01.g.vcf.gz",
		"--variant", "gvcf/wheat_02.g.vcf.gz",
	})
	if got := groups[0].Invocations[0].LogPath; got != "/work/out/logs/combine_gvcfs/combine_gvcfs.log" {
		t.Fatalf("log = %s", got)
	}
}

func TestBuildInvocationGroupsTunableArgs(t *testing.T) {
	t.Run("builtin default", func(t *testing.T) {
		rc := testContext(pairedSample("wheat_01"))
		groups := BuildInvocationGroups(mustGet(t, "haplotype_caller"), rc)

		args := groups[0].Invocations[0].Args
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "--pcr-indel-model CONSERVATIVE -ERC GVCF") {
			t.Fatalf("args missing default tunables: %v", args)
		}
	})

	t.Run("config override replaces the default", func(t *testing.T) {
		rc := testContext(pairedSample("wheat_01"))
		rc.TunableOverrides = map[string][]string{
			"haplotype_caller": {"-ERC", "BP_RESOLUTION"},
		}
		groups := BuildInvocationGroups(mustGet(t, "haplotype_caller"), rc)

		joined := strings.Join(groups[0].Invocations[0].Args, " ")
		if strings.Contains(joined, "CONSERVATIVE") {
			t.Fatalf("override did not replace default: %s", joined)
		}
		if !strings.Contains(joined, "-ERC BP_RESOLUTION") {
			t.Fatalf("override args missing: %s", joined)
		}
	})

	t.Run("global java override wins", func(t *testing.T) {
		rc := testContext(pairedSample("wheat_01"))
		rc.JavaOptions = "-Xmx32g"
		groups := BuildInvocationGroups(mustGet(t, "genotype_gvcfs"), rc)

		joined := strings.Join(groups[0].Invocations[0].Args, " ")
		if !strings.Contains(joined, "-Xmx32g -Djava.io.tmpdir=temp/genotype_gvcfs") {
			t.Fatalf("java override missing: %s", joined)
		}
	})
}

func TestBuildInvocationGroupsMultiCommandStep(t *testing.T) {
	rc := testContext(pairedSample("wheat_01"))
	groups := BuildInvocationGroups(mustGet(t, "soft_filter_snp"), rc)

	invs := groups[0].Invocations
	if len(invs) != 3 {
		t.Fatalf("soft_filter_snp commands = %d, want 3", len(invs))
	}
	if invs[0].Program != "vcftools" || invs[1].Program != "bgzip" || invs[2].Program != "mv" {
		t.Fatalf("programs = [%s %s %s]", invs[0].Program, invs[1].Program, invs[2].Program)
	}
	for _, inv := range invs {
		if inv.LogPath != invs[0].LogPath {
			t.Fatal("commands of one step should share a log file")
		}
	}
}

func TestInvocationString(t *testing.T) {
	inv := Invocation{
		Program: "gatk",
		Args:    []string{"VariantFiltration", "--filter-expression", "QD < 2.0 || FS > 60.0", "-O", "vcf/all.filtered.vcf.gz"},
	}
	got := inv.String()
	want := `gatk VariantFiltration --filter-expression 'QD < 2.0 || FS > 60.0' -O vcf/all.filtered.vcf.gz`
	if got != want {
		t.Fatalf("String() = %s, want %s", got, want)
	}
}

func TestWorkDirsExpandPerSample(t *testing.T) {
	rc := testContext(pairedSample("wheat_01"), pairedSample("wheat_02"))
	dirs := workDirs(mustGet(t, "mark_duplicates"), rc)

	if len(dirs) != 2 {
		t.Fatalf("workDirs = %v, want 2 entries", dirs)
	}
	if dirs[0] != "/work/out/temp/markdup_wheat_01" || dirs[1] != "/work/out/temp/markdup_wheat_02" {
		t.Fatalf("workDirs = %v", dirs)
	}
}

func assertArgs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("args = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q (full: %q)", i, got[i], want[i], got)
		}
	}
}
