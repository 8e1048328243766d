package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"snpflow/internal/adapter/fake"
	"snpflow/internal/pipeline"
)

// completeByStep returns a hook that satisfies whichever step an invocation
// belongs to, so a whole plan can run over the fake filesystem.
func completeByStep(fs *fake.FS, rc pipeline.RunContext, reg *pipeline.Registry) func(pipeline.Invocation) (int, error) {
	return func(inv pipeline.Invocation) (int, error) {
		def, err := reg.Get(inv.Step)
		if err != nil {
			return 1, err
		}
		for _, out := range pipeline.ExpandOutputs(def, rc) {
			fs.Put(out.Path, 64)
		}
		return 0, nil
	}
}

func mustPlan(t *testing.T, rc pipeline.RunContext, reg *pipeline.Registry, req pipeline.PlanRequest, deps pipeline.Deps) pipeline.Plan {
	t.Helper()
	plan, err := pipeline.BuildPlan(rc, reg, req, deps)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	return plan
}

func TestRunWholePipeline(t *testing.T) {
	rc, fs, deps := seededSetup(t, paired("wheat_01"), paired("wheat_02"))
	reg := pipeline.NewRegistry()
	deps.Runner.(*fake.Runner).OnRun(completeByStep(fs, rc, reg))

	plan := mustPlan(t, rc, reg, pipeline.PlanRequest{Mode: pipeline.ModeAll}, deps)
	outcome, err := pipeline.Run(context.Background(), rc, plan, deps)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Phase != pipeline.RunFinished {
		t.Fatalf("phase = %s, want finished", outcome.Phase)
	}
	succeeded, skipped, failed, notAttempted := outcome.Counts()
	if succeeded != 12 || skipped != 0 || failed != 0 || notAttempted != 0 {
		t.Fatalf("counts = %d/%d/%d/%d, want 12 succeeded", succeeded, skipped, failed, notAttempted)
	}
	if done := loadRecord(t, deps); len(done) != 12 {
		t.Fatalf("recorded %d steps complete, want 12", len(done))
	}

	// A resumed second pass has nothing left to do.
	plan = mustPlan(t, rc, reg, pipeline.PlanRequest{Mode: pipeline.ModeAll, Resume: true}, deps)
	outcome, err = pipeline.Run(context.Background(), rc, plan, deps)
	if err != nil {
		t.Fatalf("Run() resume error = %v", err)
	}
	succeeded, skipped, _, _ = outcome.Counts()
	if succeeded != 0 || skipped != 12 {
		t.Fatalf("resume counts = %d succeeded %d skipped, want all skipped", succeeded, skipped)
	}
	for _, res := range outcome.Results {
		if !strings.Contains(res.Message, "already complete") {
			t.Fatalf("skip message = %q", res.Message)
		}
	}
}

func TestRunHaltsOnFirstFailure(t *testing.T) {
	rc, fs, deps := seededSetup(t, paired("wheat_01"))
	reg := pipeline.NewRegistry()
	runner := deps.Runner.(*fake.Runner)
	runner.OnRun(func(inv pipeline.Invocation) (int, error) {
		if inv.Step == "sort_sam" {
			return 2, nil
		}
		return completeByStep(fs, rc, reg)(inv)
	})

	plan := mustPlan(t, rc, reg, pipeline.PlanRequest{Mode: pipeline.ModeAll}, deps)
	outcome, err := pipeline.Run(context.Background(), rc, plan, deps)

	var cmdErr *pipeline.ExternalCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() error = %v, want *ExternalCommandError", err)
	}
	if outcome.Phase != pipeline.RunAborted {
		t.Fatalf("phase = %s, want aborted", outcome.Phase)
	}
	succeeded, _, failed, notAttempted := outcome.Counts()
	if succeeded != 2 || failed != 1 || notAttempted != 9 {
		t.Fatalf("counts = %d succeeded %d failed %d not attempted", succeeded, failed, notAttempted)
	}
	first, ok := outcome.FirstFailure()
	if !ok || first.Name != "sort_sam" {
		t.Fatalf("FirstFailure() = %+v, %v", first, ok)
	}
	left := outcome.NotAttempted()
	if len(left) != 9 || left[0] != "mark_duplicates" || left[8] != "get_gwas_data" {
		t.Fatalf("NotAttempted() = %v", left)
	}
	// Nothing after the failure ran.
	if calls := runner.CallsFor("mark_duplicates"); len(calls) != 0 {
		t.Fatalf("mark_duplicates ran %d commands after the halt", len(calls))
	}
}

func TestRunInterrupted(t *testing.T) {
	rc, fs, deps := seededSetup(t, paired("wheat_01"), paired("wheat_02"))
	reg := pipeline.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	deps.Runner.(*fake.Runner).OnRun(func(inv pipeline.Invocation) (int, error) {
		if inv.Step == "bwa_map" {
			cancel()
			return 137, nil
		}
		return completeByStep(fs, rc, reg)(inv)
	})

	plan := mustPlan(t, rc, reg, pipeline.PlanRequest{Mode: pipeline.ModeAll}, deps)
	outcome, err := pipeline.Run(ctx, rc, plan, deps)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if outcome.Phase != pipeline.RunAborted {
		t.Fatalf("phase = %s, want aborted", outcome.Phase)
	}
	last := outcome.Results[len(outcome.Results)-1]
	if last.Name != "bwa_map" || last.Message != "interrupted" {
		t.Fatalf("last result = %+v", last)
	}
	if loadRecord(t, deps)["bwa_map"] {
		t.Fatal("interrupted step recorded complete")
	}
}

func TestRunStepTimeout(t *testing.T) {
	rc, fs, deps := seededSetup(t, paired("wheat_01"), paired("wheat_02"))
	rc.MaxParallelJobs = 1
	rc.StepTimeout = 10 * time.Millisecond
	reg := pipeline.NewRegistry()
	putOutputs(fs, rc, mustStep(t, reg, "ref_index"))

	deps.Runner.(*fake.Runner).OnRun(func(inv pipeline.Invocation) (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 0, nil
	})

	plan := mustPlan(t, rc, reg,
		pipeline.PlanRequest{Mode: pipeline.ModeSingleStep, Step: "bwa_map"}, deps)
	outcome, err := pipeline.Run(context.Background(), rc, plan, deps)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	res := outcome.Results[0]
	if !strings.Contains(res.Message, "timed out") {
		t.Fatalf("result message = %q, want timeout note", res.Message)
	}
}

func TestRunEmitsSpans(t *testing.T) {
	rc, fs, deps := seededSetup(t, paired("wheat_01"))
	reg := pipeline.NewRegistry()
	deps.Runner.(*fake.Runner).OnRun(completeByStep(fs, rc, reg))

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	deps.Tracer = provider.Tracer("pipeline-test")

	plan := mustPlan(t, rc, reg,
		pipeline.PlanRequest{Mode: pipeline.ModeRange, From: "ref_index", To: "bwa_map"}, deps)
	if _, err := pipeline.Run(context.Background(), rc, plan, deps); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	spans := recorder.Ended()
	byName := func(name string) sdktrace.ReadOnlySpan {
		for _, span := range spans {
			if span.Name() == name {
				return span
			}
		}
		return nil
	}

	root := byName("pipeline.run")
	if root == nil {
		t.Fatalf("missing root span, got %d spans", len(spans))
	}
	var planJSON string
	for _, attr := range root.Attributes() {
		if string(attr.Key) == "snpflow.plan.json" {
			planJSON = attr.Value.AsString()
		}
	}
	if !strings.Contains(planJSON, "ref_index") || !strings.Contains(planJSON, "bwa_map") {
		t.Fatalf("root plan attribute = %q", planJSON)
	}

	step := byName("bwa_map")
	if step == nil {
		t.Fatal("missing step span")
	}
	if step.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatal("step span not parented to the run span")
	}
	leaf := byName("bwa_map/wheat_01")
	if leaf == nil {
		t.Fatal("missing sample span")
	}
	if leaf.Parent().SpanID() != step.SpanContext().SpanID() {
		t.Fatal("sample span not parented to its step span")
	}
}
