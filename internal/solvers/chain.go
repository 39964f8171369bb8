// Package solvers provides the concrete solvers driven by an analysis
// stage.
package solvers

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/stagesim/internal/dynamo"
	"github.com/san-kum/stagesim/internal/integrators"
	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/parallel"
	"github.com/san-kum/stagesim/internal/physics"
	"github.com/san-kum/stagesim/internal/settings"
	"go.uber.org/multierr"
)

// ErrNotInitialized is returned by solution-step calls made before
// Initialize.
var ErrNotInitialized = errors.New("solvers: solver not initialized")

// ChainSolver integrates a spring-mass chain stored on a model part. Node
// order on the part is chain order.
type ChainSolver struct {
	cfg  Settings
	mp   *model.ModelPart
	log  *slog.Logger
	comm parallel.Communicator

	chain *physics.Chain
	integ dynamo.Integrator
	state dynamo.State
	force dynamo.Control

	dt         float64
	nextDt     float64
	iterations int
}

// NewChainSolver parses solver_settings and creates the model part, or
// looks it up when the input type is use_input_model_part.
func NewChainSolver(m *model.Model, params *settings.Parameters, log *slog.Logger, comm parallel.Communicator) (*ChainSolver, error) {
	cfg, err := ParseSettings(params)
	if err != nil {
		return nil, err
	}

	var mp *model.ModelPart
	if cfg.Import.InputType == InputUseInputModelPart {
		mp, err = m.GetModelPart(cfg.ModelPartName)
	} else {
		mp, err = m.CreateModelPart(cfg.ModelPartName)
	}
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if comm == nil {
		comm = parallel.Serial()
	}

	return &ChainSolver{
		cfg:    cfg,
		mp:     mp,
		log:    log.With("solver", "chain", "model_part", cfg.ModelPartName),
		comm:   comm,
		dt:     cfg.TimeStepping.TimeStep,
		nextDt: cfg.TimeStepping.TimeStep,
	}, nil
}

func (s *ChainSolver) ModelPart() *model.ModelPart { return s.mp }
func (s *ChainSolver) Settings() Settings          { return s.cfg }
func (s *ChainSolver) DeltaTime() float64          { return s.dt }

func (s *ChainSolver) AddVariables() error {
	s.mp.AddNodalSolutionStepVariable(Displacement, Velocity, Force)
	return nil
}

func (s *ChainSolver) ReadModelPart() error {
	imp := s.cfg.Import
	switch imp.InputType {
	case InputGenerated:
		return generateNodes(s.mp, imp.NumNodes, imp.Length)
	case InputCSV:
		return readNodesCSV(s.mp, imp.InputFilename)
	case InputUseInputModelPart:
		if s.mp.NumberOfNodes() < 2 {
			return fmt.Errorf("%w: model part %s has %d nodes", ErrImport, s.mp.Name(), s.mp.NumberOfNodes())
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown input_type %q", ErrImport, imp.InputType)
	}
}

// PrepareModelPart creates the left_end, right_end and interior
// sub-parts the processes address.
func (s *ChainSolver) PrepareModelPart() error {
	nodes := s.mp.Nodes()
	ids := make([]int, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}

	parts := []struct {
		name string
		ids  []int
	}{
		{LeftEnd, ids[:1]},
		{RightEnd, ids[len(ids)-1:]},
		{Interior, ids[1 : len(ids)-1]},
	}
	for _, p := range parts {
		if s.mp.HasSubModelPart(p.name) {
			continue
		}
		if _, err := s.mp.CreateSubModelPart(p.name, p.ids); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChainSolver) AddDofs() error {
	return s.mp.AddDof(Displacement)
}

func (s *ChainSolver) Initialize() error {
	if err := s.cfg.Material.Validate(); err != nil {
		return err
	}
	integ, err := integrators.Get(s.cfg.Scheme)
	if err != nil {
		return err
	}
	if be, ok := integ.(*integrators.BackwardEuler); ok {
		c := s.cfg.Convergence
		be.MaxIterations = c.MaxIteration
		be.Converged = integrators.DisplacementCriterion(c.RelativeTolerance, c.AbsoluteTolerance)
	}
	s.integ = integ
	if s.cfg.TimeStepping.Automatic && !controlsStep(integ) {
		s.log.Warn("scheme has no step control, automatic_time_step ignored", "scheme", s.cfg.Scheme)
	}

	n := s.mp.NumberOfNodes()
	s.chain = physics.NewChain(n, s.cfg.Material)
	s.state = make(dynamo.State, 2*n)
	s.force = make(dynamo.Control, n)
	s.gather()
	s.storeEnergies()

	s.mp.ProcessInfo().DeltaTime = s.dt
	s.log.Debug("initialized", "nodes", n, "scheme", s.cfg.Scheme, "dt", s.dt)
	return nil
}

// AdvanceInTime opens the next step. With automatic stepping every unit
// takes the smallest step proposed across the run.
func (s *ChainSolver) AdvanceInTime(current float64) (float64, error) {
	dt := s.nextDt
	if s.cfg.TimeStepping.Automatic {
		var err error
		if dt, err = s.comm.AllReduceMin(dt); err != nil {
			return current, err
		}
	}
	s.dt = dt

	next := current + dt
	s.mp.CloneTimeStep(next)
	return next, nil
}

// InitializeSolutionStep picks up the values the processes assigned:
// forces, fixity and prescribed displacements.
func (s *ChainSolver) InitializeSolutionStep() error {
	if s.chain == nil {
		return ErrNotInitialized
	}
	s.gather()
	return nil
}

// Predict writes an explicit estimate of the displacement to the free
// nodes.
func (s *ChainSolver) Predict() error {
	if s.chain == nil {
		return ErrNotInitialized
	}
	n := s.chain.Nodes()
	for i, node := range s.mp.Nodes() {
		if s.chain.IsFixed(i) {
			continue
		}
		if err := node.SetSolutionStepValue(Displacement, s.state[i]+s.dt*s.state[n+i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChainSolver) SolveSolutionStep() error {
	if s.chain == nil {
		return ErrNotInitialized
	}
	info := s.mp.ProcessInfo()
	t0 := info.Time - s.dt

	var next dynamo.State
	s.iterations = 1
	s.nextDt = s.cfg.TimeStepping.TimeStep

	switch integ := s.integ.(type) {
	case dynamo.AdaptiveIntegrator:
		x, proposed, err := integ.StepAdaptive(s.chain, s.state, s.force, t0, s.dt, s.cfg.TimeStepping.Tolerance)
		if err != nil {
			return &dynamo.SimulationError{Step: info.Step, Time: info.Time, State: s.state, Wrapped: err}
		}
		next = x
		if s.cfg.TimeStepping.Automatic {
			s.nextDt = s.clamp(proposed)
		}
	case *integrators.BackwardEuler:
		next = integ.Step(s.chain, s.state, s.force, t0, s.dt)
		iters, converged := integ.Iterations()
		s.iterations = iters
		if !converged {
			s.log.Warn("corrector did not converge", "step", info.Step, "iterations", iters)
		}
		if s.cfg.TimeStepping.Automatic {
			s.nextDt = s.clamp(s.dt * iterationFactor(s.cfg.Convergence.TargetIterations, iters))
		}
	default:
		next = integ.Step(s.chain, s.state, s.force, t0, s.dt)
	}

	if !next.IsValid() {
		return &dynamo.SimulationError{Step: info.Step, Time: info.Time, State: s.state, Wrapped: dynamo.ErrInvalidState}
	}
	s.state = next
	return s.scatter()
}

// FinalizeSolutionStep stores the step results in the process info. In a
// distributed run it keeps the units in lock-step.
func (s *ChainSolver) FinalizeSolutionStep() error {
	if s.chain == nil {
		return ErrNotInitialized
	}
	s.storeEnergies()
	info := s.mp.ProcessInfo()
	info.Values[NLIterationNumber] = float64(s.iterations)

	if s.cfg.EchoLevel > 1 {
		s.log.Debug("step finalized",
			"step", info.Step,
			"dt", s.dt,
			"energy", info.Values[KineticEnergy]+info.Values[PotentialEnergy])
	}

	if s.comm.Size() > 1 {
		return s.comm.Barrier()
	}
	return nil
}

// Check validates the settings without touching the model.
func (s *ChainSolver) Check() error {
	var errs error
	errs = multierr.Append(errs, s.cfg.Material.Validate())

	ts := s.cfg.TimeStepping
	if ts.TimeStep <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: time_step %g must be positive", dynamo.ErrParameterBounds, ts.TimeStep))
	}
	if ts.Automatic && (ts.MinStep <= 0 || ts.MinStep > ts.MaxStep) {
		errs = multierr.Append(errs, fmt.Errorf("%w: need 0 < min_time_step <= max_time_step, got [%g, %g]",
			dynamo.ErrParameterBounds, ts.MinStep, ts.MaxStep))
	}
	if integ, err := integrators.Get(s.cfg.Scheme); err != nil {
		errs = multierr.Append(errs, err)
	} else if ts.Automatic && !controlsStep(integ) {
		errs = multierr.Append(errs, fmt.Errorf("%w: automatic_time_step needs rk45 or backward_euler, scheme is %s",
			dynamo.ErrParameterBounds, s.cfg.Scheme))
	}
	if s.cfg.Scheme == "backward_euler" && s.cfg.Convergence.MaxIteration < 1 {
		errs = multierr.Append(errs, fmt.Errorf("%w: max_iteration must be at least 1", dynamo.ErrParameterBounds))
	}
	return errs
}

// controlsStep reports whether integ proposes the next step size.
func controlsStep(integ dynamo.Integrator) bool {
	switch integ.(type) {
	case dynamo.AdaptiveIntegrator, *integrators.BackwardEuler:
		return true
	}
	return false
}

func (s *ChainSolver) clamp(dt float64) float64 {
	ts := s.cfg.TimeStepping
	return math.Min(ts.MaxStep, math.Max(ts.MinStep, dt))
}

// iterationFactor grows the step when the corrector needs fewer
// iterations than targeted and shrinks it otherwise, within [0.5, 2].
func iterationFactor(target, iterations int) float64 {
	if iterations <= 0 || target <= 0 {
		return 1
	}
	return math.Min(2, math.Max(0.5, float64(target)/float64(iterations)))
}

func (s *ChainSolver) gather() {
	n := s.chain.Nodes()
	for i, node := range s.mp.Nodes() {
		s.state[i] = node.Value(Displacement)
		s.state[n+i] = node.Value(Velocity)
		s.force[i] = node.Value(Force)

		fixed := node.IsFixed(Displacement)
		s.chain.SetFixed(i, fixed)
		if fixed {
			s.state[n+i] = 0
		}
	}
}

func (s *ChainSolver) scatter() error {
	n := s.chain.Nodes()
	for i, node := range s.mp.Nodes() {
		if err := node.SetSolutionStepValue(Displacement, s.state[i]); err != nil {
			return err
		}
		if err := node.SetSolutionStepValue(Velocity, s.state[n+i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChainSolver) storeEnergies() {
	info := s.mp.ProcessInfo()
	info.Values[KineticEnergy] = s.chain.KineticEnergy(s.state)
	info.Values[PotentialEnergy] = s.chain.PotentialEnergy(s.state)
}
