// Package config holds typed project-parameter files and the built-in
// presets written by `stagesim init`.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ProblemData struct {
	ProblemName  string  `yaml:"problem_name"`
	AnalysisType string  `yaml:"analysis_type,omitempty"`
	ParallelType string  `yaml:"parallel_type"`
	EchoLevel    int     `yaml:"echo_level"`
	StartTime    float64 `yaml:"start_time"`
	EndTime      float64 `yaml:"end_time"`
}

type ImportSettings struct {
	InputType     string  `yaml:"input_type"`
	InputFilename string  `yaml:"input_filename,omitempty"`
	NumNodes      int     `yaml:"num_nodes,omitempty"`
	Length        float64 `yaml:"length,omitempty"`
}

type Material struct {
	Mass      float64 `yaml:"mass"`
	Stiffness float64 `yaml:"stiffness"`
	Damping   float64 `yaml:"damping"`
}

type TimeStepping struct {
	TimeStep          float64 `yaml:"time_step"`
	AutomaticTimeStep bool    `yaml:"automatic_time_step"`
	MinTimeStep       float64 `yaml:"min_time_step,omitempty"`
	MaxTimeStep       float64 `yaml:"max_time_step,omitempty"`
	Tolerance         float64 `yaml:"tolerance,omitempty"`
}

type SolverSettings struct {
	ModelPartName string         `yaml:"model_part_name"`
	EchoLevel     int            `yaml:"echo_level"`
	Import        ImportSettings `yaml:"model_import_settings"`
	Material      Material       `yaml:"material"`
	TimeStepping  TimeStepping   `yaml:"time_stepping"`
	Scheme        string         `yaml:"scheme"`
}

// Process is one entry of a process list.
type Process struct {
	ProcessName string         `yaml:"process_name"`
	Parameters  map[string]any `yaml:"Parameters"`
}

type ProcessLists struct {
	Constraints []Process `yaml:"constraints_process_list,omitempty"`
	Loads       []Process `yaml:"loads_process_list,omitempty"`
	Auxiliar    []Process `yaml:"auxiliar_process_list,omitempty"`
}

// Stage is the parameter tree of one analysis stage.
type Stage struct {
	ProblemData     ProblemData          `yaml:"problem_data"`
	SolverSettings  SolverSettings       `yaml:"solver_settings"`
	Processes       ProcessLists         `yaml:"processes"`
	OutputProcesses map[string][]Process `yaml:"output_processes,omitempty"`
}

// Project is a parameters file. A single stage is written flat; several
// are written under a top-level "stages" list.
type Project struct {
	Description string
	Stages      []Stage
}

func (p *Project) MarshalYAML() (any, error) {
	switch len(p.Stages) {
	case 0:
		return nil, fmt.Errorf("config: project %q has no stages", p.Description)
	case 1:
		return p.Stages[0], nil
	default:
		return struct {
			Stages []Stage `yaml:"stages"`
		}{p.Stages}, nil
	}
}

// Render returns the YAML document of p.
func Render(p *Project) ([]byte, error) {
	return yaml.Marshal(p)
}

func Save(path string, p *Project) error {
	data, err := Render(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
