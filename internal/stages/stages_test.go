package stages

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/processes"
	"github.com/san-kum/stagesim/internal/settings"
	"github.com/san-kum/stagesim/internal/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainParams = `{
	"problem_data": {
		"problem_name": "pulse",
		"echo_level": 0,
		"parallel_type": "Serial",
		"start_time": 0.0,
		"end_time": 1.0
	},
	"solver_settings": {
		"model_import_settings": {"num_nodes": 6},
		"time_stepping": {"time_step": 0.125},
		"scheme": "verlet",
		"material": {"stiffness": 20.0}
	},
	"processes": {
		"loads_process_list": [{
			"process_name": "assign_scalar_variable",
			"Parameters": {
				"model_part_name": "chain.right_end",
				"variable_name": "FORCE",
				"value": 1.0,
				"interval": [0.0, 0.25]
			}
		}],
		"constraints_process_list": [{
			"process_name": "assign_scalar_variable",
			"Parameters": {
				"model_part_name": "chain.left_end",
				"variable_name": "DISPLACEMENT",
				"value": 0.0,
				"constrained": true
			}
		}],
		"auxiliar_process_list": [
			{"process_name": "energy_monitor", "Parameters": {"model_part_name": "chain"}},
			{"process_name": "progress", "Parameters": {"model_part_name": "chain"}}
		]
	},
	"output_processes": {
		"csv_output": [{
			"process_name": "csv_output",
			"Parameters": {
				"model_part_name": "chain",
				"output_file": "chain.csv",
				"output_interval": 2
			}
		}]
	}
}`

func TestChainDynamicsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	var updates []processes.Update

	m := model.New()
	st, err := NewRegistry().Build(m, settings.MustJSON(chainParams), Options{
		OutputDir: dir,
		Progress:  func(u processes.Update) { updates = append(updates, u) },
	})
	require.NoError(t, err)
	require.NoError(t, st.Run(context.Background()))

	// 1.0 / 0.125 steps, one CSV row every second step
	assert.Equal(t, 8, st.Step())
	assert.Len(t, updates, 8)
	assert.Equal(t, "ChainDynamicsAnalysis", updates[0].Stage)

	f, err := os.Open(filepath.Join(dir, "chain.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1+8/2)

	mp, err := m.GetModelPart("chain")
	require.NoError(t, err)
	left, _ := mp.GetNode(1)
	right, _ := mp.GetNode(6)
	assert.Equal(t, 0.0, left.Value("DISPLACEMENT"), "constrained end stays in place")
	assert.NotZero(t, right.Value("DISPLACEMENT"), "loaded end moves")
}

func TestProcessOrder(t *testing.T) {
	st, err := NewRegistry().Build(model.New(), settings.MustJSON(chainParams), Options{OutputDir: t.TempDir()})
	require.NoError(t, err)

	procs, err := st.Processes()
	require.NoError(t, err)
	require.Len(t, procs, 5)

	// constraints, loads, auxiliary, then outputs
	constraint := procs[0].(*processes.AssignScalarVariable)
	load := procs[1].(*processes.AssignScalarVariable)
	assert.Equal(t, 0.0, constraint.Value(0))
	assert.Equal(t, 1.0, load.Value(0))
	assert.IsType(t, &processes.EnergyMonitor{}, procs[2])
	assert.IsType(t, &processes.Progress{}, procs[3])
	assert.IsType(t, &processes.CSVOutput{}, procs[4])

	outputs, err := st.OutputProcesses()
	require.NoError(t, err)
	assert.Same(t, procs[4], outputs[0])
}

func TestUnknownAnalysisType(t *testing.T) {
	params := settings.MustJSON(chainParams).With("problem_data.analysis_type", "fluid")
	_, err := NewRegistry().Build(model.New(), params, Options{})
	assert.ErrorIs(t, err, ErrUnknownAnalysis)
}

func TestUnknownProcessIsReportedWithItsPath(t *testing.T) {
	params := settings.MustJSON(chainParams).With("processes", map[string]any{
		"loads_process_list": []any{map[string]any{"process_name": "apply_wind"}},
	})
	st, err := NewRegistry().Build(model.New(), params, Options{OutputDir: t.TempDir()})
	require.NoError(t, err)

	err = st.Run(context.Background())
	assert.ErrorIs(t, err, processes.ErrUnknownProcess)
	assert.Contains(t, err.Error(), "processes.loads_process_list[0]")
}

func TestCheckReportsEveryFailure(t *testing.T) {
	params := settings.MustJSON(chainParams).
		With("solver_settings", map[string]any{"scheme": "midpoint"}).
		With("processes", map[string]any{
			"auxiliar_process_list": []any{map[string]any{
				"process_name": "energy_monitor",
				"Parameters":   map[string]any{"model_part_name": "chain", "tolerance": -1.0},
			}},
		})
	st, err := NewRegistry().Build(model.New(), params, Options{OutputDir: t.TempDir()})
	require.NoError(t, err)

	err = st.Check()
	require.Error(t, err)
	assert.ErrorIs(t, err, processes.ErrInvalidParameters)
	assert.Contains(t, err.Error(), "midpoint")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("custom", func(Options) stage.Factory { return stage.UnimplementedFactory{} })
	assert.Equal(t, []string{"chain_dynamics", "custom"}, r.List())

	params := settings.MustJSON(chainParams).With("problem_data.analysis_type", "custom")
	_, err := r.Build(model.New(), params, Options{})
	assert.ErrorIs(t, err, stage.ErrNotImplemented)
}
