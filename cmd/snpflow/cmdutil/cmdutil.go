// Package cmdutil holds what the snpflow subcommands share: loading a
// project, wiring the engine's collaborators, and turning selector flags
// into a plan request.
package cmdutil

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"snpflow/config"
	"snpflow/internal/adapter/local"
	"snpflow/internal/logging"
	"snpflow/internal/pipeline"
	"snpflow/internal/progress"
	"snpflow/internal/sample"
)

// RootFlags are the root command's persistent flag values, shared with
// subcommands by pointer.
type RootFlags struct {
	Config string
	Debug  bool
	Plain  bool
}

// Project is a loaded configuration plus everything derived from it.
type Project struct {
	Config   *config.Config
	Run      pipeline.RunContext
	Registry *pipeline.Registry
	Samples  []sample.Sample
}

// LoadProject reads the config (default ./snpflow.yaml), discovers samples
// and prepares a run context with defaults applied. The config's log level
// takes effect here unless --debug already won.
func LoadProject(flags *RootFlags) (*Project, error) {
	path := flags.Config
	if path == "" {
		path = config.FileName
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no %s found (run `snpflow init` to create one)", path)
		}
		return nil, err
	}
	if cfg.LogLevel != "" && !flags.Debug {
		if err := logging.Configure(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	rc, err := cfg.RunContext()
	if err != nil {
		return nil, err
	}

	samples, err := sample.Discover(cfg.SamplesDir)
	if err != nil {
		return nil, err
	}
	rc.Samples = samples
	rc = rc.WithDefaults()

	return &Project{
		Config:   cfg,
		Run:      rc,
		Registry: pipeline.NewRegistry(),
		Samples:  samples,
	}, nil
}

// Deps wires the engine to the real host. The tracer may be nil for
// commands that only plan.
func (p *Project) Deps(tracer trace.Tracer) pipeline.Deps {
	return pipeline.Deps{
		Runner:   local.NewRunner(),
		Probe:    local.Probe{},
		Progress: progress.NewStore(p.Run.OutputDir),
		Clock:    local.Clock{},
		Tracer:   tracer,
	}
}

// Selector is the step-selection flag set shared by run and plan.
type Selector struct {
	Step   string
	From   string
	To     string
	Force  bool
	Resume bool
}

func (s *Selector) Bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.Step, "step", "", "Run exactly this step")
	cmd.Flags().StringVar(&s.From, "from", "", "Start from this step and continue to the end")
	cmd.Flags().StringVar(&s.To, "to", "", "Stop after this step (without --from, starts at the first step)")
	cmd.Flags().BoolVar(&s.Force, "force", false, "Re-run steps already recorded complete")
	cmd.Flags().BoolVar(&s.Resume, "resume", true, "Skip steps whose outputs are complete")
}

// Request maps the flags onto a plan request.
func (s *Selector) Request() (pipeline.PlanRequest, error) {
	req := pipeline.PlanRequest{Mode: pipeline.ModeAll, Force: s.Force, Resume: s.Resume}
	switch {
	case s.Step != "" && (s.From != "" || s.To != ""):
		return pipeline.PlanRequest{}, errors.New("--step cannot be combined with --from/--to")
	case s.Step != "":
		req.Mode = pipeline.ModeSingleStep
		req.Step = s.Step
	case s.From != "" && s.To != "":
		req.Mode = pipeline.ModeRange
		req.From = s.From
		req.To = s.To
	case s.From != "":
		req.Mode = pipeline.ModeFromStep
		req.From = s.From
	case s.To != "":
		// Range with the from bound left empty; the resolver starts it
		// at the first step.
		req.Mode = pipeline.ModeRange
		req.To = s.To
	}
	return req, nil
}
