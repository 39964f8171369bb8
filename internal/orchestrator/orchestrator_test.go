package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
	"github.com/san-kum/stagesim/internal/stages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const twoStages = `{
	"stages": [
		{
			"problem_data": {"problem_name": "load", "echo_level": 0, "parallel_type": "Serial", "end_time": 0.5},
			"solver_settings": {
				"model_import_settings": {"num_nodes": 4},
				"material": {"stiffness": 1.0},
				"time_stepping": {"time_step": 0.125}
			},
			"processes": {
				"loads_process_list": [{
					"process_name": "assign_scalar_variable",
					"Parameters": {"model_part_name": "chain.right_end", "variable_name": "FORCE", "value": 2.0}
				}]
			},
			"output_processes": {
				"csv_output": [{
					"process_name": "csv_output",
					"Parameters": {"model_part_name": "chain", "output_file": "load.csv"}
				}]
			}
		},
		{
			"problem_data": {"problem_name": "release", "echo_level": 0, "parallel_type": "Serial", "start_time": 0.5, "end_time": 1.0},
			"solver_settings": {
				"model_import_settings": {"input_type": "use_input_model_part"},
				"material": {"stiffness": 1.0},
				"time_stepping": {"time_step": 0.25},
				"scheme": "backward_euler"
			},
			"processes": {
				"loads_process_list": [{
					"process_name": "assign_scalar_variable",
					"Parameters": {"model_part_name": "chain.right_end", "variable_name": "FORCE", "value": 0.0}
				}]
			}
		}
	]
}`

func newOrchestrator(t *testing.T) (*Orchestrator, string) {
	dir := t.TempDir()
	return New(stages.NewRegistry(), stages.Options{OutputDir: dir}), dir
}

func TestRunSequence(t *testing.T) {
	o, dir := newOrchestrator(t)
	m := model.New()

	sums, err := o.Run(context.Background(), m, settings.MustJSON(twoStages))
	require.NoError(t, err)
	require.Len(t, sums, 2)

	assert.Equal(t, "load", sums[0].ProblemName)
	assert.Equal(t, 4, sums[0].Steps)
	assert.Equal(t, 0.5, sums[0].FinalTime)
	assert.Equal(t, []string{filepath.Join(dir, "load.csv")}, sums[0].OutputFiles)

	assert.Equal(t, "release", sums[1].ProblemName)
	assert.Equal(t, 2, sums[1].Steps)
	assert.Equal(t, 1.0, sums[1].FinalTime)
	assert.Empty(t, sums[1].OutputFiles)

	mp, err := m.GetModelPart("chain")
	require.NoError(t, err)
	assert.Equal(t, 6, mp.ProcessInfo().Step, "the second stage continues on the same model part")
}

func TestRunSingleStage(t *testing.T) {
	o, _ := newOrchestrator(t)
	params := settings.MustJSON(twoStages)
	first, err := params.Objects("stages")
	require.NoError(t, err)

	sums, err := o.Run(context.Background(), model.New(), first[0])
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "ChainDynamicsAnalysis", sums[0].Name)
}

func TestRunStopsAtFailingStage(t *testing.T) {
	o, _ := newOrchestrator(t)
	params := settings.MustJSON(`{
		"stages": [
			{"problem_data": {"echo_level": 0, "parallel_type": "Serial", "end_time": 0.1}},
			{"problem_data": {"echo_level": 0, "parallel_type": "Serial", "end_time": 0.2},
			 "solver_settings": {"model_part_name": "beam", "model_import_settings": {"input_type": "use_input_model_part"}}}
		]
	}`)

	sums, err := o.Run(context.Background(), model.New(), params)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrModelPartNotFound)
	assert.Contains(t, err.Error(), "stage 1")
	assert.Len(t, sums, 1)
}

func TestRunDistributed(t *testing.T) {
	o, dir := newOrchestrator(t)
	params := settings.MustJSON(`{
		"problem_data": {"echo_level": 0, "parallel_type": "Serial", "end_time": 0.5},
		"solver_settings": {
			"scheme": "rk45",
			"time_stepping": {"time_step": 0.05, "automatic_time_step": true}
		},
		"output_processes": {
			"csv_output": [{"process_name": "csv_output", "Parameters": {"model_part_name": "chain"}}]
		}
	}`)

	sums, err := o.RunDistributed(context.Background(), 3, params)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.GreaterOrEqual(t, sums[0].FinalTime, 0.5)

	for _, rank := range []string{"rank_0", "rank_1", "rank_2"} {
		_, err := os.Stat(filepath.Join(dir, rank, "results.csv"))
		assert.NoError(t, err, rank)
	}
}

func TestCheckCollectsEveryStage(t *testing.T) {
	o, _ := newOrchestrator(t)
	params := settings.MustJSON(`{
		"stages": [
			{"problem_data": {"echo_level": 0, "parallel_type": "Serial"}, "solver_settings": {"scheme": "midpoint"}},
			{"problem_data": {"echo_level": 0, "parallel_type": "Threads"}}
		]
	}`)

	err := o.Check(model.New(), params)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestSequenceRejectsEmptyStages(t *testing.T) {
	_, err := Sequence(settings.MustJSON(`{"stages": []}`))
	assert.ErrorIs(t, err, settings.ErrMissingKey)
}
