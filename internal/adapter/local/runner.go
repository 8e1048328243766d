// Package local implements the pipeline's collaborator ports against the
// real host: external tools via os/exec, the filesystem, the wall clock.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"snpflow/internal/pipeline"
)

// termGrace is how long a tool gets to exit after SIGTERM before SIGKILL.
// GATK flushes its temp files on TERM; killing it outright leaves them.
const termGrace = 10 * time.Second

type Runner struct{}

var _ pipeline.CommandRunner = (*Runner)(nil)

func NewRunner() *Runner { return &Runner{} }

// Run executes one invocation with stdout and stderr appended to the step's
// log file. The exit code is returned as data; the error is reserved for
// failures to start or observe the process at all.
func (r *Runner) Run(ctx context.Context, inv pipeline.Invocation) (int, error) {
	logFile, err := os.OpenFile(inv.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open step log: %w", err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "$ %s\n", inv.String())

	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = termGrace

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("run %s: %w", inv.Program, err)
	}
	return 0, nil
}
