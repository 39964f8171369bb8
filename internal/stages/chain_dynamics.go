package stages

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/san-kum/stagesim/internal/processes"
	"github.com/san-kum/stagesim/internal/solvers"
	"github.com/san-kum/stagesim/internal/stage"
)

// Process lists read from the "processes" object, in execution order.
var processLists = []string{
	"constraints_process_list",
	"loads_process_list",
	"auxiliar_process_list",
}

// ChainDynamicsAnalysis is the stage factory for a spring-mass chain
// solved with solvers.ChainSolver.
type ChainDynamicsAnalysis struct {
	opts   Options
	solver *solvers.ChainSolver
}

func NewChainDynamicsAnalysis(opts Options) *ChainDynamicsAnalysis {
	return &ChainDynamicsAnalysis{opts: opts}
}

func (a *ChainDynamicsAnalysis) SimulationName() string { return "ChainDynamicsAnalysis" }

func (a *ChainDynamicsAnalysis) CreateSolver(s *stage.Stage) (stage.Solver, error) {
	params, err := s.Settings().GetOr("solver_settings")
	if err != nil {
		return nil, err
	}
	solver, err := solvers.NewChainSolver(s.Model(), params, s.Logger(), s.Communicator())
	if err != nil {
		return nil, err
	}
	a.solver = solver
	return solver, nil
}

func (a *ChainDynamicsAnalysis) CreateProcesses(s *stage.Stage) ([]stage.Process, error) {
	env, err := a.env(s)
	if err != nil {
		return nil, err
	}
	lists, err := s.Settings().GetOr("processes")
	if err != nil {
		return nil, err
	}

	var procs []stage.Process
	for _, key := range processLists {
		if !lists.Has(key) {
			continue
		}
		entries, err := lists.Objects(key)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			p, err := processes.Create(env, entry)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", entry.Path(), err)
			}
			procs = append(procs, p)
		}
	}
	return procs, nil
}

// CreateOutputProcesses builds every list under "output_processes", in
// key order.
func (a *ChainDynamicsAnalysis) CreateOutputProcesses(s *stage.Stage) ([]stage.OutputProcess, error) {
	env, err := a.env(s)
	if err != nil {
		return nil, err
	}
	lists, err := s.Settings().GetOr("output_processes")
	if err != nil {
		return nil, err
	}

	var outputs []stage.OutputProcess
	for _, key := range lists.Keys() {
		entries, err := lists.Objects(key)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			p, err := processes.CreateOutput(env, entry)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", entry.Path(), err)
			}
			outputs = append(outputs, p)
		}
	}
	return outputs, nil
}

// ChainSolver returns the solver once it was created.
func (a *ChainDynamicsAnalysis) ChainSolver() *solvers.ChainSolver { return a.solver }

// env gives the processes their view of the stage. In a distributed run
// only the printing rank reports progress, and every rank writes its
// files under its own rank_<n> directory.
func (a *ChainDynamicsAnalysis) env(s *stage.Stage) (*processes.Env, error) {
	env := &processes.Env{
		Model:     s.Model(),
		Logger:    s.Logger(),
		StageName: s.Name(),
		EndTime:   s.EndTime(),
		Out:       a.opts.Out,
		OutputDir: a.opts.OutputDir,
	}
	if s.IsPrintingRank() {
		env.Progress = a.opts.Progress
	} else {
		env.Out = nil
	}

	if comm := s.Communicator(); comm.Size() > 1 {
		env.OutputDir = filepath.Join(env.OutputDir, fmt.Sprintf("rank_%d", comm.Rank()))
	}
	if env.OutputDir != "" {
		if err := os.MkdirAll(env.OutputDir, 0755); err != nil {
			return nil, err
		}
	}
	return env, nil
}

var _ stage.Factory = (*ChainDynamicsAnalysis)(nil)
