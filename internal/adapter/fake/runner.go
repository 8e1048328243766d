package fake

import (
	"context"
	"sync"

	"snpflow/internal/pipeline"
)

var _ pipeline.CommandRunner = (*Runner)(nil)

// Runner is a scripted pipeline.CommandRunner. Every invocation exits 0
// unless a per-program exit code or a hook says otherwise; each call is
// recorded for assertions.
type Runner struct {
	mu    sync.Mutex
	calls []pipeline.Invocation
	exits map[string]int
	hook  func(inv pipeline.Invocation) (int, error)
}

func NewRunner() *Runner {
	return &Runner{exits: make(map[string]int)}
}

// OnRun installs a hook deciding the result of every invocation. The hook
// runs outside the runner's lock so it may drive the fake filesystem.
func (r *Runner) OnRun(hook func(inv pipeline.Invocation) (int, error)) {
	r.mu.Lock()
	r.hook = hook
	r.mu.Unlock()
}

// ExitWith makes every invocation of program exit with code.
func (r *Runner) ExitWith(program string, code int) {
	r.mu.Lock()
	r.exits[program] = code
	r.mu.Unlock()
}

func (r *Runner) Run(ctx context.Context, inv pipeline.Invocation) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	r.mu.Lock()
	r.calls = append(r.calls, inv)
	hook := r.hook
	code, scripted := r.exits[inv.Program]
	r.mu.Unlock()

	if hook != nil {
		return hook(inv)
	}
	if scripted {
		return code, nil
	}
	return 0, nil
}

// Calls returns every recorded invocation in call order.
func (r *Runner) Calls() []pipeline.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pipeline.Invocation, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsFor returns the recorded invocations of one step.
func (r *Runner) CallsFor(step string) []pipeline.Invocation {
	var out []pipeline.Invocation
	for _, call := range r.Calls() {
		if call.Step == step {
			out = append(out, call)
		}
	}
	return out
}
