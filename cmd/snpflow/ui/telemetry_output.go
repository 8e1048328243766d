package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"snpflow/internal/telemetry"
)

// TelemetryOutput owns the tracer provider for a run. It always installs the
// terminal renderer; when an OTLP endpoint is configured in the environment
// the same spans are exported there too.
type TelemetryOutput struct {
	provider *sdktrace.TracerProvider
	closeFn  func()
	once     sync.Once
}

func NewTelemetryOutput(ctx context.Context) *TelemetryOutput {
	var (
		observer *stepObserver
		closeFn  = func() {}
	)
	if IsInteractive() {
		checklist := NewChecklist()
		observer = newStepObserver(checklist.OnSnapshot)
		closeFn = checklist.Close
	} else {
		observer = newStepObserver(newLinePrinter().OnSnapshot)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(&stepSpanProcessor{observer: observer}),
	}
	if exporter, err := telemetry.NewExportProcessor(ctx); err != nil {
		fmt.Fprintln(os.Stderr, WarnMsg("trace export disabled: %v", err))
	} else if exporter != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(exporter))
	}

	return &TelemetryOutput{
		provider: sdktrace.NewTracerProvider(opts...),
		closeFn:  closeFn,
	}
}

func (o *TelemetryOutput) Tracer(name string) trace.Tracer {
	if o == nil || o.provider == nil {
		return otel.Tracer(name)
	}
	return o.provider.Tracer(name)
}

// Close flushes exporters and stops the terminal renderer. Safe to call more
// than once.
func (o *TelemetryOutput) Close() {
	if o == nil {
		return
	}
	o.once.Do(func() {
		if o.provider != nil {
			_ = o.provider.Shutdown(context.Background())
		}
		if o.closeFn != nil {
			o.closeFn()
		}
	})
}

// stepObserver folds span starts and ends into ordered snapshots for a
// renderer. Sample spans are attached under their step via the "step/sample"
// ID convention.
type stepObserver struct {
	mu       sync.Mutex
	steps    map[string]stepState
	order    []string
	reporter func(stepSnapshot)
}

func newStepObserver(reporter func(stepSnapshot)) *stepObserver {
	return &stepObserver{
		steps:    make(map[string]stepState),
		order:    make([]string, 0, 16),
		reporter: reporter,
	}
}

func (o *stepObserver) onPlan(plan telemetry.Plan) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, planned := range plan.Steps {
		stepID := strings.TrimSpace(planned.ID)
		if stepID == "" {
			continue
		}

		step, exists := o.steps[stepID]
		if !exists {
			o.order = append(o.order, stepID)
			step = stepState{ID: stepID, Status: stepPending}
		}
		step.ParentID = strings.TrimSpace(planned.ParentID)
		step.Title = strings.TrimSpace(planned.Title)
		if step.Title == "" {
			step.Title = stepID
		}
		step.synthetic = false
		o.steps[stepID] = step
	}

	o.emitLocked()
}

func (o *stepObserver) onStepStart(stepID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := o.ensureStepLocked(stepID)
	step.Status = stepRunning
	step.Message = ""
	step.synthetic = false
	o.steps[step.ID] = step
	o.emitLocked()
}

func (o *stepObserver) onStepEnd(stepID string, failed bool, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := o.ensureStepLocked(stepID)
	step.synthetic = false
	if failed {
		step.Status = stepFailed
		step.Message = strings.TrimSpace(message)
	} else {
		step.Status = stepDone
		step.Message = ""
	}
	o.steps[step.ID] = step
	o.emitLocked()
}

func (o *stepObserver) ensureStepLocked(stepID string) stepState {
	stepID = strings.TrimSpace(stepID)
	if stepID == "" {
		stepID = "unnamed"
	}

	if step, exists := o.steps[stepID]; exists {
		return step
	}

	parentID := ""
	if idx := strings.LastIndex(stepID, "/"); idx > 0 {
		parentID = strings.TrimSpace(stepID[:idx])
		o.ensureParentLocked(parentID)
	}

	o.order = append(o.order, stepID)
	return stepState{ID: stepID, ParentID: parentID, Title: sampleTitle(stepID), Status: stepPending}
}

func (o *stepObserver) ensureParentLocked(parentID string) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return
	}
	if _, exists := o.steps[parentID]; exists {
		return
	}

	ancestorID := ""
	if idx := strings.LastIndex(parentID, "/"); idx > 0 {
		ancestorID = strings.TrimSpace(parentID[:idx])
		o.ensureParentLocked(ancestorID)
	}

	o.order = append(o.order, parentID)
	o.steps[parentID] = stepState{
		ID:        parentID,
		ParentID:  ancestorID,
		Title:     parentID,
		Status:    stepPending,
		synthetic: true,
	}
}

// sampleTitle shows just the sample name under its step.
func sampleTitle(stepID string) string {
	if idx := strings.LastIndex(stepID, "/"); idx > 0 {
		return stepID[idx+1:]
	}
	return stepID
}

func (o *stepObserver) emitLocked() {
	if o.reporter == nil {
		return
	}

	childrenByParent := make(map[string][]stepState, len(o.steps))
	for _, step := range o.steps {
		parentID := strings.TrimSpace(step.ParentID)
		if parentID == "" {
			continue
		}
		childrenByParent[parentID] = append(childrenByParent[parentID], step)
	}

	steps := make([]stepState, 0, len(o.order))
	for _, stepID := range o.order {
		step, exists := o.steps[stepID]
		if !exists {
			continue
		}

		children := childrenByParent[step.ID]
		if len(children) > 0 {
			if step.synthetic {
				step.Status = deriveParentStatus(children)
			}
			summary := summarizeSamples(children)
			if strings.TrimSpace(summary) != "" {
				if strings.TrimSpace(step.Message) == "" {
					step.Message = summary
				} else if step.Status == stepFailed && !strings.Contains(step.Message, summary) {
					step.Message = summary + "; " + step.Message
				}
			}
		}

		steps = append(steps, step)
	}
	o.reporter(stepSnapshot{Steps: steps})
}

func summarizeSamples(children []stepState) string {
	total := len(children)
	if total == 0 {
		return ""
	}

	doneCount := 0
	failedCount := 0
	for _, child := range children {
		switch child.Status {
		case stepDone:
			doneCount++
		case stepFailed:
			failedCount++
		}
	}

	if failedCount > 0 {
		return fmt.Sprintf("%d/%d samples, %d failed", doneCount, total, failedCount)
	}
	return fmt.Sprintf("%d/%d samples", doneCount, total)
}

func deriveParentStatus(children []stepState) stepStatus {
	if len(children) == 0 {
		return stepPending
	}

	hasRunning := false
	hasFailed := false
	doneCount := 0
	for _, child := range children {
		switch child.Status {
		case stepFailed:
			hasFailed = true
		case stepRunning:
			hasRunning = true
		case stepDone:
			doneCount++
		}
	}

	if hasFailed {
		return stepFailed
	}
	if doneCount == len(children) {
		return stepDone
	}
	if hasRunning || doneCount > 0 {
		return stepRunning
	}
	return stepPending
}

// stepSpanProcessor maps spans onto the observer: the root span carries the
// plan, every descendant is a step or a sample.
type stepSpanProcessor struct {
	observer *stepObserver
}

func (p *stepSpanProcessor) OnStart(_ context.Context, span sdktrace.ReadWriteSpan) {
	if p == nil || p.observer == nil {
		return
	}

	if span.Parent().IsValid() {
		p.observer.onStepStart(span.Name())
		return
	}

	planJSON := attributeValue(span.Attributes(), telemetry.PlanJSONKey)
	if strings.TrimSpace(planJSON) == "" {
		return
	}

	var plan telemetry.Plan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return
	}
	p.observer.onPlan(plan)
}

func (p *stepSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if p == nil || p.observer == nil {
		return
	}
	if !span.Parent().IsValid() {
		return
	}

	status := span.Status()
	failed := status.Code == codes.Error
	p.observer.onStepEnd(span.Name(), failed, strings.TrimSpace(status.Description))
}

func (p *stepSpanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *stepSpanProcessor) ForceFlush(context.Context) error {
	return nil
}

func attributeValue(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}
