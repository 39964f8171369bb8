// Package stage implements the analysis-stage execution loop: the fixed
// control flow every concrete simulation runs through.
//
// A Stage composes a Solver, an ordered list of Processes and a list of
// OutputProcesses, all built lazily by a Factory. Run drives
//
//	Initialize
//	for time < end time:
//	    AdvanceInTime, InitializeSolutionStep, Predict, SolveSolutionStep,
//	    FinalizeSolutionStep, OutputSolutionStep
//	Finalize
//
// Collaborator errors are returned unchanged and stop the run; the stage
// never retries or rolls back.
package stage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/parallel"
	"github.com/san-kum/stagesim/internal/settings"
	"go.uber.org/multierr"
)

// Parallel execution modes accepted in problem_data.parallel_type.
const (
	ParallelSerial = "Serial"
	ParallelOpenMP = "OpenMP"
	ParallelMPI    = "MPI"
)

// Stage drives one analysis through its solver and processes.
type Stage struct {
	model   *model.Model
	params  *settings.Parameters
	factory Factory

	log          *slog.Logger
	comm         parallel.Communicator
	echoLevel    int
	parallelType string
	printingRank bool

	time    float64
	endTime float64
	step    int

	solver    lazy[Solver]
	processes lazy[[]Process]
	outputs   lazy[[]OutputProcess]
}

// Option configures New.
type Option func(*options)

type options struct {
	logger *slog.Logger
	comm   parallel.Communicator
}

// WithLogger sets the log sink. Records are only emitted on the printing
// rank.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCommunicator sets the distributed-execution context used when
// problem_data.parallel_type is "MPI".
func WithCommunicator(c parallel.Communicator) Option {
	return func(o *options) { o.comm = c }
}

// New validates its arguments, reads problem_data and creates the solver
// to register its variables on the model.
func New(m *model.Model, params *settings.Parameters, factory Factory, opts ...Option) (*Stage, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: a model is required", ErrConfigurationType)
	}
	if params == nil {
		return nil, fmt.Errorf("%w: project parameters are required", ErrConfigurationType)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: a stage factory is required", ErrConfigurationType)
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	echoLevel, err := params.Int("problem_data.echo_level")
	if err != nil {
		return nil, err
	}
	parallelType, err := params.String("problem_data.parallel_type")
	if err != nil {
		return nil, err
	}
	start, err := params.FloatOr("problem_data.start_time", 0.0)
	if err != nil {
		return nil, err
	}
	end, err := params.FloatOr("problem_data.end_time", 0.0)
	if err != nil {
		return nil, err
	}

	s := &Stage{
		model:        m,
		params:       params,
		factory:      factory,
		echoLevel:    echoLevel,
		parallelType: parallelType,
		time:         start,
		endTime:      end,
	}

	switch parallelType {
	case ParallelSerial, ParallelOpenMP:
		s.comm = parallel.Serial()
		s.printingRank = true
	case ParallelMPI:
		s.comm = o.comm
		if s.comm == nil {
			o.logger.Warn("no communicator supplied for MPI run, using a single execution unit",
				"stage", factory.SimulationName())
			s.comm = parallel.Serial()
		}
		s.printingRank = s.comm.Rank() == 0
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownParallelType, parallelType)
	}

	s.log = o.logger
	if !s.printingRank {
		s.log = slog.New(slog.DiscardHandler)
	}

	solver, err := s.Solver()
	if err != nil {
		return nil, err
	}
	if err := solver.AddVariables(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Stage) Model() *model.Model                 { return s.model }
func (s *Stage) Settings() *settings.Parameters      { return s.params }
func (s *Stage) Logger() *slog.Logger                { return s.log }
func (s *Stage) Communicator() parallel.Communicator { return s.comm }
func (s *Stage) EchoLevel() int                      { return s.echoLevel }
func (s *Stage) ParallelType() string                { return s.parallelType }
func (s *Stage) IsPrintingRank() bool                { return s.printingRank }
func (s *Stage) Time() float64                       { return s.time }
func (s *Stage) EndTime() float64                    { return s.endTime }
func (s *Stage) Step() int                           { return s.step }
func (s *Stage) Name() string                        { return s.factory.SimulationName() }

// Solver returns the solver, creating it on first use.
func (s *Stage) Solver() (Solver, error) {
	return s.solver.get("solver", func() (Solver, error) {
		return s.factory.CreateSolver(s)
	})
}

func (s *Stage) baseProcesses() ([]Process, error) {
	return s.processes.get("processes", func() ([]Process, error) {
		return s.factory.CreateProcesses(s)
	})
}

// Processes returns every process of the stage in declared order,
// followed by the output processes.
func (s *Stage) Processes() ([]Process, error) {
	if _, err := s.baseProcesses(); err != nil {
		return nil, err
	}
	if _, err := s.OutputProcesses(); err != nil {
		return nil, err
	}
	return s.processes.val, nil
}

// OutputProcesses returns the output processes, creating them on first
// use. On creation each one is appended to the process list so it also
// receives the generic lifecycle hooks.
func (s *Stage) OutputProcesses() ([]OutputProcess, error) {
	return s.outputs.get("output processes", func() ([]OutputProcess, error) {
		if _, err := s.baseProcesses(); err != nil {
			return nil, err
		}
		outputs, err := s.factory.CreateOutputProcesses(s)
		if err != nil {
			return nil, err
		}
		for _, p := range outputs {
			s.processes.val = append(s.processes.val, p)
		}
		return outputs, nil
	})
}

// Run executes the whole stage.
func (s *Stage) Run(ctx context.Context) error {
	if err := s.Initialize(); err != nil {
		return err
	}
	if err := s.RunSolutionLoop(ctx); err != nil {
		return err
	}
	return s.Finalize()
}

// Initialize prepares the model and the processes. It must be called once,
// before RunSolutionLoop.
func (s *Stage) Initialize() error {
	solver, err := s.Solver()
	if err != nil {
		return err
	}
	if err := solver.ReadModelPart(); err != nil {
		return err
	}
	if err := solver.PrepareModelPart(); err != nil {
		return err
	}
	if err := solver.AddDofs(); err != nil {
		return err
	}

	if h, ok := s.factory.(InitialPropertiesModifier); ok {
		if err := h.ModifyInitialProperties(s); err != nil {
			return err
		}
	}
	if h, ok := s.factory.(InitialGeometryModifier); ok {
		if err := h.ModifyInitialGeometry(s); err != nil {
			return err
		}
	}

	if err := s.eachProcess(Process.ExecuteInitialize); err != nil {
		return err
	}

	if err := solver.Initialize(); err != nil {
		return err
	}

	// processes may depend on the solver being initialized
	return s.eachProcess(Process.ExecuteBeforeSolutionLoop)
}

// RunSolutionLoop advances the solver until the end time is reached.
// The solver decides each increment; an AdvanceInTime that never reaches
// the end time loops until ctx is canceled.
func (s *Stage) RunSolutionLoop(ctx context.Context) error {
	solver, err := s.Solver()
	if err != nil {
		return err
	}

	for s.time < s.endTime {
		if err := ctx.Err(); err != nil {
			return err
		}

		t, err := solver.AdvanceInTime(s.time)
		if err != nil {
			return err
		}
		s.time = t
		s.step++

		if err := s.InitializeSolutionStep(); err != nil {
			return err
		}
		if err := solver.Predict(); err != nil {
			return err
		}
		if err := solver.SolveSolutionStep(); err != nil {
			return err
		}
		if err := s.FinalizeSolutionStep(); err != nil {
			return err
		}
		if err := s.OutputSolutionStep(); err != nil {
			return err
		}
	}
	return nil
}

// InitializeSolutionStep applies the boundary conditions (the processes'
// ExecuteInitializeSolutionStep) and prepares the solver for the step.
func (s *Stage) InitializeSolutionStep() error {
	if err := s.eachProcess(Process.ExecuteInitializeSolutionStep); err != nil {
		return err
	}

	if h, ok := s.factory.(MaterialPropertiesChanger); ok {
		if err := h.ChangeMaterialProperties(s); err != nil {
			return err
		}
	}

	solver, err := s.Solver()
	if err != nil {
		return err
	}
	if err := solver.InitializeSolutionStep(); err != nil {
		return err
	}

	if s.printingRank {
		s.log.Info("solution step", "stage", s.Name(), "step", s.step, "time", s.time)
	}
	return nil
}

// FinalizeSolutionStep lets the solver settle the step before the
// processes observe it.
func (s *Stage) FinalizeSolutionStep() error {
	solver, err := s.Solver()
	if err != nil {
		return err
	}
	if err := solver.FinalizeSolutionStep(); err != nil {
		return err
	}
	return s.eachProcess(Process.ExecuteFinalizeSolutionStep)
}

// OutputSolutionStep prints results when at least one output process is
// due. All processes are notified before and after printing; only the due
// output processes print.
func (s *Stage) OutputSolutionStep() error {
	outputs, err := s.OutputProcesses()
	if err != nil {
		return err
	}

	due := false
	for _, p := range outputs {
		if p.IsOutputStep() {
			due = true
			break
		}
	}
	if !due {
		return nil
	}

	if err := s.eachProcess(Process.ExecuteBeforeOutputStep); err != nil {
		return err
	}
	for _, p := range outputs {
		if p.IsOutputStep() {
			if err := p.PrintOutput(); err != nil {
				return err
			}
		}
	}
	return s.eachProcess(Process.ExecuteAfterOutputStep)
}

// Finalize runs the processes' ExecuteFinalize and reports completion.
func (s *Stage) Finalize() error {
	if err := s.eachProcess(Process.ExecuteFinalize); err != nil {
		return err
	}
	if s.printingRank {
		s.log.Info("Analysis -END-", "stage", s.Name(), "steps", s.step, "time", s.time)
	}
	return nil
}

// Check validates the solver and processes that implement Checker. All
// failures are reported together.
func (s *Stage) Check() error {
	solver, err := s.Solver()
	if err != nil {
		return err
	}
	procs, err := s.Processes()
	if err != nil {
		return err
	}

	var errs error
	if c, ok := solver.(Checker); ok {
		errs = multierr.Append(errs, c.Check())
	}
	for _, p := range procs {
		if c, ok := p.(Checker); ok {
			errs = multierr.Append(errs, c.Check())
		}
	}
	return errs
}

func (s *Stage) eachProcess(hook func(Process) error) error {
	procs, err := s.Processes()
	if err != nil {
		return err
	}
	for _, p := range procs {
		if err := hook(p); err != nil {
			return err
		}
	}
	return nil
}
