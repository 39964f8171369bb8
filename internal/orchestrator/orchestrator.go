// Package orchestrator runs a sequence of analysis stages on one model.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/parallel"
	"github.com/san-kum/stagesim/internal/processes"
	"github.com/san-kum/stagesim/internal/settings"
	"github.com/san-kum/stagesim/internal/stage"
	"github.com/san-kum/stagesim/internal/stages"
	"go.uber.org/multierr"
)

// Summary describes one completed stage.
type Summary struct {
	Name        string        `json:"name"`
	ProblemName string        `json:"problem_name"`
	Steps       int           `json:"steps"`
	FinalTime   float64       `json:"final_time"`
	Duration    time.Duration `json:"duration"`
	OutputFiles []string      `json:"output_files,omitempty"`
}

type Orchestrator struct {
	registry *stages.Registry
	opts     stages.Options
}

func New(registry *stages.Registry, opts stages.Options) *Orchestrator {
	return &Orchestrator{registry: registry, opts: opts}
}

// Sequence splits project parameters into per-stage parameters. A
// document with a top-level "stages" array runs each entry in order;
// any other document is a single stage.
func Sequence(params *settings.Parameters) ([]*settings.Parameters, error) {
	if !params.Has("stages") {
		return []*settings.Parameters{params}, nil
	}
	seq, err := params.Objects("stages")
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("%w: stages is empty", settings.ErrMissingKey)
	}
	return seq, nil
}

// Run executes every stage in order on m and stops at the first failure.
// Later stages see the model parts left by earlier ones.
func (o *Orchestrator) Run(ctx context.Context, m *model.Model, params *settings.Parameters) ([]Summary, error) {
	return o.run(ctx, m, params, o.opts)
}

func (o *Orchestrator) run(ctx context.Context, m *model.Model, params *settings.Parameters, opts stages.Options) ([]Summary, error) {
	seq, err := Sequence(params)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(seq))
	for i, p := range seq {
		start := time.Now()

		st, err := o.registry.Build(m, p, opts)
		if err != nil {
			return summaries, fmt.Errorf("stage %d: %w", i, err)
		}
		if err := st.Run(ctx); err != nil {
			return summaries, fmt.Errorf("stage %d (%s): %w", i, st.Name(), err)
		}

		sum, err := summarize(st, p, time.Since(start))
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// RunDistributed runs the sequence on size in-process execution units,
// each on its own model, and returns the summaries of rank 0.
func (o *Orchestrator) RunDistributed(ctx context.Context, size int, params *settings.Parameters) ([]Summary, error) {
	seq, err := Sequence(params)
	if err != nil {
		return nil, err
	}
	distributed := make([]any, len(seq))
	for i, p := range seq {
		distributed[i] = p.With("problem_data.parallel_type", stage.ParallelMPI).Raw()
	}
	params = settings.New(map[string]any{"stages": distributed})

	var summaries []Summary
	err = parallel.Launch(ctx, size, func(ctx context.Context, comm parallel.Communicator) error {
		opts := o.opts
		opts.Communicator = comm

		sums, err := o.run(ctx, model.New(), params, opts)
		if comm.Rank() == 0 {
			summaries = sums
		}
		return err
	})
	return summaries, err
}

// Check builds every stage and validates it without solving. All
// failures are reported together.
func (o *Orchestrator) Check(m *model.Model, params *settings.Parameters) error {
	seq, err := Sequence(params)
	if err != nil {
		return err
	}

	var errs error
	for i, p := range seq {
		st, err := o.registry.Build(m, p, o.opts)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stage %d: %w", i, err))
			continue
		}
		if err := st.Check(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stage %d (%s): %w", i, st.Name(), err))
		}
	}
	return errs
}

func summarize(st *stage.Stage, params *settings.Parameters, elapsed time.Duration) (Summary, error) {
	name, err := params.StringOr("problem_data.problem_name", "")
	if err != nil {
		return Summary{}, err
	}
	procs, err := st.Processes()
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Name:        st.Name(),
		ProblemName: name,
		Steps:       st.Step(),
		FinalTime:   st.Time(),
		Duration:    elapsed,
	}
	for _, p := range procs {
		if f, ok := p.(processes.OutputFiler); ok {
			sum.OutputFiles = append(sum.OutputFiles, f.OutputFiles()...)
		}
	}
	return sum, nil
}
