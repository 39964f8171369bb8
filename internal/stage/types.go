package stage

import "fmt"

// Solver advances the simulation time and solves one step at a time.
type Solver interface {
	AddVariables() error
	ReadModelPart() error
	PrepareModelPart() error
	AddDofs() error
	Initialize() error
	// AdvanceInTime opens the next step and returns its time. The solver
	// chooses the increment.
	AdvanceInTime(current float64) (float64, error)
	InitializeSolutionStep() error
	Predict() error
	SolveSolutionStep() error
	FinalizeSolutionStep() error
}

// Process is a lifecycle hook object: boundary conditions, monitors,
// output triggers.
type Process interface {
	ExecuteInitialize() error
	ExecuteBeforeSolutionLoop() error
	ExecuteInitializeSolutionStep() error
	ExecuteFinalizeSolutionStep() error
	ExecuteBeforeOutputStep() error
	ExecuteAfterOutputStep() error
	ExecuteFinalize() error
}

// OutputProcess is a Process that decides per step whether to emit
// results.
type OutputProcess interface {
	Process
	IsOutputStep() bool
	PrintOutput() error
}

// Checker is implemented by solvers and processes that can validate their
// configuration before a run.
type Checker interface {
	Check() error
}

// Factory supplies the components of a concrete stage. Embed
// UnimplementedFactory and override the methods the stage provides.
type Factory interface {
	CreateSolver(s *Stage) (Solver, error)
	CreateProcesses(s *Stage) ([]Process, error)
	CreateOutputProcesses(s *Stage) ([]OutputProcess, error)
	SimulationName() string
}

// Optional extension points. A Factory implementing one of these is called
// at the matching point of the lifecycle.
type (
	InitialPropertiesModifier interface {
		ModifyInitialProperties(s *Stage) error
	}
	InitialGeometryModifier interface {
		ModifyInitialGeometry(s *Stage) error
	}
	MaterialPropertiesChanger interface {
		ChangeMaterialProperties(s *Stage) error
	}
)

// UnimplementedFactory fails every create method, naming the missing
// responsibility.
type UnimplementedFactory struct{}

func (UnimplementedFactory) CreateSolver(*Stage) (Solver, error) {
	return nil, fmt.Errorf("%w: creation of the solver must be implemented by the concrete stage", ErrNotImplemented)
}

func (UnimplementedFactory) CreateProcesses(*Stage) ([]Process, error) {
	return nil, fmt.Errorf("%w: creation of the processes must be implemented by the concrete stage", ErrNotImplemented)
}

func (UnimplementedFactory) CreateOutputProcesses(*Stage) ([]OutputProcess, error) {
	return nil, fmt.Errorf("%w: creation of the output processes must be implemented by the concrete stage", ErrNotImplemented)
}

func (UnimplementedFactory) SimulationName() string { return "AnalysisStage" }
