package config

import "sort"

const (
	DefaultNumNodes  = 10
	DefaultLength    = 1.0
	DefaultMass      = 1.0
	DefaultStiffness = 25.0
	DefaultDt        = 0.01
)

func chain(scheme string, dt float64) SolverSettings {
	return SolverSettings{
		ModelPartName: "chain",
		Import: ImportSettings{
			InputType: "generated",
			NumNodes:  DefaultNumNodes,
			Length:    DefaultLength,
		},
		Material:     Material{Mass: DefaultMass, Stiffness: DefaultStiffness},
		TimeStepping: TimeStepping{TimeStep: dt},
		Scheme:       scheme,
	}
}

func problem(name string, start, end float64) ProblemData {
	return ProblemData{
		ProblemName:  name,
		AnalysisType: "chain_dynamics",
		ParallelType: "Serial",
		EchoLevel:    1,
		StartTime:    start,
		EndTime:      end,
	}
}

func fixLeftEnd() Process {
	return Process{
		ProcessName: "assign_scalar_variable",
		Parameters: map[string]any{
			"model_part_name": "chain.left_end",
			"variable_name":   "DISPLACEMENT",
			"value":           0.0,
			"constrained":     true,
		},
	}
}

// forcePulse loads the right end with value until end, then releases it.
// Assigned values persist past their interval, so the release is a
// second assignment of zero.
func forcePulse(value, end float64) []Process {
	assign := func(v float64, interval []float64) Process {
		return Process{
			ProcessName: "assign_scalar_variable",
			Parameters: map[string]any{
				"model_part_name": "chain.right_end",
				"variable_name":   "FORCE",
				"value":           v,
				"interval":        interval,
			},
		}
	}
	return []Process{
		assign(value, []float64{0, end}),
		assign(0, []float64{end, 1e30}),
	}
}

func monitors() []Process {
	return []Process{
		{ProcessName: "energy_monitor", Parameters: map[string]any{"model_part_name": "chain", "tolerance": 0.05}},
		{ProcessName: "progress", Parameters: map[string]any{"model_part_name": "chain", "value": "KINETIC_ENERGY"}},
	}
}

func csvOutput(file string, interval int) []Process {
	return []Process{{
		ProcessName: "csv_output",
		Parameters: map[string]any{
			"model_part_name":      "chain",
			"output_file":          file,
			"output_interval":      interval,
			"nodal_results":        []string{"DISPLACEMENT", "VELOCITY"},
			"process_info_results": []string{"KINETIC_ENERGY", "POTENTIAL_ENERGY"},
		},
	}}
}

func pulse() *Project {
	st := Stage{
		ProblemData:    problem("pulse", 0, 2),
		SolverSettings: chain("verlet", DefaultDt),
		Processes: ProcessLists{
			Constraints: []Process{fixLeftEnd()},
			Loads:       forcePulse(1.0, 0.1),
			Auxiliar:    monitors(),
		},
		OutputProcesses: map[string][]Process{
			"csv_output": csvOutput("pulse.csv", 10),
			"plot_output": {{
				ProcessName: "plot_output",
				Parameters: map[string]any{
					"model_part_name":    "chain",
					"process_info_value": "KINETIC_ENERGY",
					"output_file":        "pulse_energy.txt",
				},
			}},
		},
	}
	return &Project{Description: "force pulse on the free end of a fixed-free chain", Stages: []Stage{st}}
}

func twoStage() *Project {
	load := Stage{
		ProblemData:    problem("load", 0, 1),
		SolverSettings: chain("rk4", DefaultDt),
		Processes: ProcessLists{
			Constraints: []Process{fixLeftEnd()},
			Loads: []Process{{
				ProcessName: "assign_scalar_variable",
				Parameters: map[string]any{
					"model_part_name": "chain.right_end",
					"variable_name":   "FORCE",
					"value":           0.5,
					"amplitude":       0.5,
					"frequency":       1.0,
				},
			}},
			Auxiliar: monitors(),
		},
		OutputProcesses: map[string][]Process{"csv_output": csvOutput("load.csv", 10)},
	}

	release := Stage{
		ProblemData:    problem("release", 1, 3),
		SolverSettings: chain("backward_euler", 0.02),
		Processes: ProcessLists{
			Constraints: []Process{fixLeftEnd()},
			Auxiliar:    monitors(),
		},
		OutputProcesses: map[string][]Process{"csv_output": csvOutput("release.csv", 5)},
	}
	release.SolverSettings.Import = ImportSettings{InputType: "use_input_model_part"}

	return &Project{
		Description: "harmonic load followed by a free release on the same chain",
		Stages:      []Stage{load, release},
	}
}

func adaptive() *Project {
	st := Stage{
		ProblemData:    problem("adaptive", 0, 1),
		SolverSettings: chain("rk45", 0.05),
		Processes: ProcessLists{
			Constraints: []Process{fixLeftEnd()},
			Loads:       forcePulse(2.0, 0.05),
			Auxiliar:    monitors(),
		},
		OutputProcesses: map[string][]Process{
			"json_output": {{
				ProcessName: "json_output",
				Parameters: map[string]any{
					"model_part_name":     "chain",
					"output_file":         "adaptive.json",
					"output_control_type": "time",
					"output_interval":     0.1,
				},
			}},
		},
	}
	st.SolverSettings.TimeStepping.AutomaticTimeStep = true
	st.SolverSettings.TimeStepping.MinTimeStep = 1e-6
	st.SolverSettings.TimeStepping.MaxTimeStep = 0.05
	st.SolverSettings.TimeStepping.Tolerance = 1e-6
	return &Project{Description: "short impulse followed by adaptive rk45 stepping", Stages: []Stage{st}}
}

var presets = map[string]func() *Project{
	"pulse":     pulse,
	"two_stage": twoStage,
	"adaptive":  adaptive,
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Project {
	build, ok := presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
