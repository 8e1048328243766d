package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

type stepStatus string

const (
	stepPending stepStatus = "pending"
	stepRunning stepStatus = "running"
	stepDone    stepStatus = "done"
	stepFailed  stepStatus = "failed"
)

// stepState mirrors one span in the run: a pipeline step, or a sample under
// a fan-out step (ID "bwa_map/wheat_01", ParentID "bwa_map").
type stepState struct {
	ID       string
	ParentID string
	Title    string
	Status   stepStatus
	Message  string

	// synthetic marks parents invented from a child's ID before their own
	// span arrived; their status is derived from the children.
	synthetic bool
}

type stepSnapshot struct {
	Steps []stepState
}

var spinFrames = [...]string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Checklist renders snapshots as an in-place terminal checklist: muted
// pending steps, a spinner on running ones, a check or cross when they end.
type Checklist struct {
	steps         []stepState
	renderedLines int
	mu            sync.Mutex
	stop          chan struct{}
	frame         int
	once          sync.Once
}

func NewChecklist() *Checklist {
	return &Checklist{stop: make(chan struct{})}
}

func (c *Checklist) OnSnapshot(snap stepSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	first := c.steps == nil
	c.steps = snap.Steps

	if first {
		for _, s := range c.steps {
			icon, label := c.stepStyle(s)
			fmt.Fprintf(os.Stderr, "%s%s %s\n", stepIndent(s), icon, label)
		}
		c.renderedLines = len(c.steps)
		go c.spin()
		return
	}
	c.redraw()
}

// Close stops the spinner, leaving the last drawn state on screen.
func (c *Checklist) Close() {
	c.once.Do(func() {
		close(c.stop)
	})
}

func (c *Checklist) spin() {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.frame = (c.frame + 1) % len(spinFrames)
			c.redraw()
			c.mu.Unlock()
		}
	}
}

// redraw reprints all step lines in place. Caller must hold c.mu.
func (c *Checklist) redraw() {
	if len(c.steps) == 0 && c.renderedLines == 0 {
		return
	}
	if c.renderedLines > 0 {
		fmt.Fprintf(os.Stderr, "\033[%dA", c.renderedLines)
	}
	for _, s := range c.steps {
		icon, label := c.stepStyle(s)
		line := fmt.Sprintf("%s%s %s", stepIndent(s), icon, label)
		if s.Message != "" {
			line += " " + Muted(s.Message)
		}
		fmt.Fprintf(os.Stderr, "\r%s\033[K\n", line)
	}
	for i := len(c.steps); i < c.renderedLines; i++ {
		fmt.Fprint(os.Stderr, "\r\033[K\n")
	}
	c.renderedLines = len(c.steps)
}

func (c *Checklist) stepStyle(s stepState) (icon, label string) {
	switch s.Status {
	case stepRunning:
		return Accent(spinFrames[c.frame]), s.Title
	case stepDone:
		return Success("✓"), s.Title
	case stepFailed:
		return ErrorStyle.Render("✗"), ErrorStyle.Render(s.Title)
	default:
		return Muted("●"), Muted(s.Title)
	}
}

func stepIndent(s stepState) string {
	if s.ParentID != "" {
		return "    "
	}
	return "  "
}

// linePrinter is the non-interactive fallback: one stderr line per state
// change, safe for CI logs and redirects.
type linePrinter struct {
	mu       sync.Mutex
	status   map[string]stepStatus
	messages map[string]string
}

func newLinePrinter() *linePrinter {
	return &linePrinter{
		status:   make(map[string]stepStatus),
		messages: make(map[string]string),
	}
}

func (l *linePrinter) OnSnapshot(snapshot stepSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, step := range snapshot.Steps {
		if step.Status == stepPending {
			continue
		}

		stepID := strings.TrimSpace(step.ID)
		if stepID == "" {
			stepID = strings.TrimSpace(step.Title)
		}
		if stepID == "" {
			continue
		}

		msg := strings.TrimSpace(step.Message)
		prevStatus, seen := l.status[stepID]
		if seen && prevStatus == step.Status && l.messages[stepID] == msg {
			continue
		}

		l.status[stepID] = step.Status
		l.messages[stepID] = msg
		fmt.Fprintln(os.Stderr, formatStepLine(step, msg))
	}
}

func formatStepLine(step stepState, msg string) string {
	prefix := "[..]"
	switch step.Status {
	case stepRunning:
		prefix = "[->]"
	case stepDone:
		prefix = "[ok]"
	case stepFailed:
		prefix = "[x]"
	}

	indent := "  "
	if strings.TrimSpace(step.ParentID) != "" {
		indent = "    "
	}

	title := strings.TrimSpace(step.Title)
	if title == "" {
		title = strings.TrimSpace(step.ID)
	}
	if msg != "" {
		return fmt.Sprintf("%s%s %s (%s)", indent, prefix, title, msg)
	}
	return fmt.Sprintf("%s%s %s", indent, prefix, title)
}
