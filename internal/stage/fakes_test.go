package stage_test

import (
	"github.com/san-kum/stagesim/internal/stage"
)

type recorder struct {
	calls []string
}

func (r *recorder) add(call string) { r.calls = append(r.calls, call) }

func (r *recorder) indexOf(call string) int {
	for i, c := range r.calls {
		if c == call {
			return i
		}
	}
	return -1
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeSolver struct {
	rec       *recorder
	dt        float64
	advances  int
	onAdvance func(n int)
	solveErr  error
	checkErr  error
}

func (s *fakeSolver) AddVariables() error     { s.rec.add("solver.AddVariables"); return nil }
func (s *fakeSolver) ReadModelPart() error    { s.rec.add("solver.ReadModelPart"); return nil }
func (s *fakeSolver) PrepareModelPart() error { s.rec.add("solver.PrepareModelPart"); return nil }
func (s *fakeSolver) AddDofs() error          { s.rec.add("solver.AddDofs"); return nil }
func (s *fakeSolver) Initialize() error       { s.rec.add("solver.Initialize"); return nil }

func (s *fakeSolver) AdvanceInTime(t float64) (float64, error) {
	s.rec.add("solver.AdvanceInTime")
	s.advances++
	if s.onAdvance != nil {
		s.onAdvance(s.advances)
	}
	return t + s.dt, nil
}

func (s *fakeSolver) InitializeSolutionStep() error { s.rec.add("solver.InitializeSolutionStep"); return nil }
func (s *fakeSolver) Predict() error                { s.rec.add("solver.Predict"); return nil }

func (s *fakeSolver) SolveSolutionStep() error {
	s.rec.add("solver.SolveSolutionStep")
	return s.solveErr
}

func (s *fakeSolver) FinalizeSolutionStep() error { s.rec.add("solver.FinalizeSolutionStep"); return nil }
func (s *fakeSolver) Check() error                { return s.checkErr }

type fakeProcess struct {
	name     string
	rec      *recorder
	checkErr error
}

func (p *fakeProcess) hook(name string) error {
	p.rec.add(p.name + "." + name)
	return nil
}

func (p *fakeProcess) ExecuteInitialize() error             { return p.hook("ExecuteInitialize") }
func (p *fakeProcess) ExecuteBeforeSolutionLoop() error     { return p.hook("ExecuteBeforeSolutionLoop") }
func (p *fakeProcess) ExecuteInitializeSolutionStep() error { return p.hook("ExecuteInitializeSolutionStep") }
func (p *fakeProcess) ExecuteFinalizeSolutionStep() error   { return p.hook("ExecuteFinalizeSolutionStep") }
func (p *fakeProcess) ExecuteBeforeOutputStep() error       { return p.hook("ExecuteBeforeOutputStep") }
func (p *fakeProcess) ExecuteAfterOutputStep() error        { return p.hook("ExecuteAfterOutputStep") }
func (p *fakeProcess) ExecuteFinalize() error               { return p.hook("ExecuteFinalize") }
func (p *fakeProcess) Check() error                         { return p.checkErr }

type fakeOutput struct {
	fakeProcess
	due bool
}

func (o *fakeOutput) IsOutputStep() bool { return o.due }
func (o *fakeOutput) PrintOutput() error { return o.hook("PrintOutput") }

// fakeFactory counts how often each create method runs.
type fakeFactory struct {
	rec     *recorder
	solver  *fakeSolver
	procs   []stage.Process
	outputs []stage.OutputProcess

	solverBuilds  int
	processBuilds int
	outputBuilds  int

	createProcesses func(s *stage.Stage) ([]stage.Process, error)
}

func (f *fakeFactory) CreateSolver(*stage.Stage) (stage.Solver, error) {
	f.solverBuilds++
	return f.solver, nil
}

func (f *fakeFactory) CreateProcesses(s *stage.Stage) ([]stage.Process, error) {
	f.processBuilds++
	if f.createProcesses != nil {
		return f.createProcesses(s)
	}
	return append([]stage.Process(nil), f.procs...), nil
}

func (f *fakeFactory) CreateOutputProcesses(*stage.Stage) ([]stage.OutputProcess, error) {
	f.outputBuilds++
	return f.outputs, nil
}

func (f *fakeFactory) SimulationName() string { return "FakeAnalysis" }

// hookedFactory adds the optional extension points.
type hookedFactory struct {
	*fakeFactory
}

func (h hookedFactory) ModifyInitialProperties(*stage.Stage) error {
	h.rec.add("stage.ModifyInitialProperties")
	return nil
}

func (h hookedFactory) ModifyInitialGeometry(*stage.Stage) error {
	h.rec.add("stage.ModifyInitialGeometry")
	return nil
}

func (h hookedFactory) ChangeMaterialProperties(*stage.Stage) error {
	h.rec.add("stage.ChangeMaterialProperties")
	return nil
}

// solverOnlyFactory provides a solver and leaves the rest unimplemented.
type solverOnlyFactory struct {
	stage.UnimplementedFactory
	solver *fakeSolver
}

func (f solverOnlyFactory) CreateSolver(*stage.Stage) (stage.Solver, error) { return f.solver, nil }

type fakeComm struct {
	rank int
}

func (c fakeComm) Rank() int                               { return c.rank }
func (c fakeComm) Size() int                               { return 2 }
func (c fakeComm) Barrier() error                          { return nil }
func (c fakeComm) AllReduceMin(v float64) (float64, error) { return v, nil }
