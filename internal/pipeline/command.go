package pipeline

import (
	"path/filepath"
	"strings"
)

// CommandTemplate is one external invocation with tokens still in it.
//
// Args may contain the special element "{tunable_args}", which splices in the
// step's tunable argument list (the builtin default, or the configured
// override). RepeatArgs expand once per discovered sample and are appended
// after Args, for cohort-level commands that take one flag pair per sample.
type CommandTemplate struct {
	Program    string
	Args       []string
	RepeatArgs []string
}

// Invocation is a fully expanded command: what to exec, where, and which log
// receives its combined output. It stays structured end to end; String() is
// for logs and messages only.
type Invocation struct {
	Step    string
	Sample  string
	Program string
	Args    []string
	Dir     string
	LogPath string
}

func (i Invocation) String() string {
	parts := make([]string, 0, len(i.Args)+1)
	parts = append(parts, i.Program)
	for _, arg := range i.Args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>()*?[]{}#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// InvocationGroup is the ordered command sequence for one unit of work:
// the whole step for cohort-level steps, one sample for per-sample steps.
type InvocationGroup struct {
	Sample      string
	Invocations []Invocation
}

// ID returns the telemetry span id for the group.
func (g InvocationGroup) ID(step string) string {
	if g.Sample == "" {
		return step
	}
	return step + "/" + g.Sample
}

// BuildInvocationGroups expands a step's command templates against the run
// context. Per-sample steps yield one group per sample; everything else
// yields a single group. Arguments that collapse to empty after expansion
// are dropped (a single-end sample has no {fq2} to pass).
func BuildInvocationGroups(step StepDefinition, rc RunContext) []InvocationGroup {
	if !step.PerSample {
		sc := tokenScope{rc: &rc, step: &step}
		return []InvocationGroup{{Invocations: expandCommands(step, rc, sc)}}
	}

	groups := make([]InvocationGroup, 0, len(rc.Samples))
	for i := range rc.Samples {
		sc := tokenScope{rc: &rc, step: &step, sample: &rc.Samples[i]}
		groups = append(groups, InvocationGroup{
			Sample:      rc.Samples[i].Name,
			Invocations: expandCommands(step, rc, sc),
		})
	}
	return groups
}

func expandCommands(step StepDefinition, rc RunContext, sc tokenScope) []Invocation {
	logPath := stepLogPath(step, rc, sc.sampleName())

	invs := make([]Invocation, 0, len(step.Commands))
	for _, tmpl := range step.Commands {
		args := make([]string, 0, len(tmpl.Args))
		for _, arg := range tmpl.Args {
			if arg == "{tunable_args}" {
				args = append(args, rc.tunableArgs(step)...)
				continue
			}
			expanded := sc.expand(arg)
			if expanded == "" && arg != "" {
				continue
			}
			args = append(args, expanded)
		}
		for i := range rc.Samples {
			for _, arg := range tmpl.RepeatArgs {
				rsc := tokenScope{rc: &rc, step: &step, sample: &rc.Samples[i]}
				args = append(args, rsc.expand(arg))
			}
		}
		invs = append(invs, Invocation{
			Step:    step.Name,
			Sample:  sc.sampleName(),
			Program: tmpl.Program,
			Args:    args,
			Dir:     rc.OutputDir,
			LogPath: logPath,
		})
	}
	return invs
}

func (sc tokenScope) sampleName() string {
	if sc.sample == nil {
		return ""
	}
	return sc.sample.Name
}

// stepLogPath returns logs/<step>/<step>.log, or logs/<step>/<sample>.log
// for per-sample work. Every command of the unit appends to the same file.
func stepLogPath(step StepDefinition, rc RunContext, sampleName string) string {
	name := step.Name
	if sampleName != "" {
		name = sampleName
	}
	return filepath.Join(rc.OutputDir, "logs", step.Name, name+".log")
}
