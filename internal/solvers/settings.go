package solvers

import (
	"github.com/san-kum/stagesim/internal/physics"
	"github.com/san-kum/stagesim/internal/settings"
)

// Input types of model_import_settings.input_type.
const (
	InputGenerated         = "generated"
	InputCSV               = "csv"
	InputUseInputModelPart = "use_input_model_part"
)

// Nodal variables and process info keys written by the chain solver.
const (
	Displacement = "DISPLACEMENT"
	Velocity     = "VELOCITY"
	Force        = "FORCE"

	KineticEnergy     = "KINETIC_ENERGY"
	PotentialEnergy   = "POTENTIAL_ENERGY"
	NLIterationNumber = "NL_ITERATION_NUMBER"
)

// Sub-model parts created by PrepareModelPart.
const (
	LeftEnd  = "left_end"
	RightEnd = "right_end"
	Interior = "interior"
)

const defaultSettings = `{
	"model_part_name": "chain",
	"echo_level": 0,
	"model_import_settings": {
		"input_type": "generated",
		"input_filename": "",
		"num_nodes": 10,
		"length": 1.0
	},
	"material": {
		"mass": 1.0,
		"stiffness": 100.0,
		"damping": 0.0
	},
	"time_stepping": {
		"time_step": 0.01,
		"automatic_time_step": false,
		"min_time_step": 1e-6,
		"max_time_step": 0.1,
		"tolerance": 1e-6
	},
	"scheme": "rk4",
	"convergence_criterion": {
		"relative_tolerance": 1e-6,
		"absolute_tolerance": 1e-9,
		"max_iteration": 20,
		"target_iterations": 4
	}
}`

// DefaultSettings returns a copy of the solver_settings defaults.
func DefaultSettings() *settings.Parameters {
	return settings.MustJSON(defaultSettings)
}

type Settings struct {
	ModelPartName string           `mapstructure:"model_part_name"`
	EchoLevel     int              `mapstructure:"echo_level"`
	Import        ImportSettings   `mapstructure:"model_import_settings"`
	Material      physics.Material `mapstructure:"material"`
	TimeStepping  TimeStepping     `mapstructure:"time_stepping"`
	Scheme        string           `mapstructure:"scheme"`
	Convergence   Convergence      `mapstructure:"convergence_criterion"`
}

type ImportSettings struct {
	InputType     string  `mapstructure:"input_type"`
	InputFilename string  `mapstructure:"input_filename"`
	NumNodes      int     `mapstructure:"num_nodes"`
	Length        float64 `mapstructure:"length"`
}

type TimeStepping struct {
	TimeStep  float64 `mapstructure:"time_step"`
	Automatic bool    `mapstructure:"automatic_time_step"`
	MinStep   float64 `mapstructure:"min_time_step"`
	MaxStep   float64 `mapstructure:"max_time_step"`
	Tolerance float64 `mapstructure:"tolerance"`
}

type Convergence struct {
	RelativeTolerance float64 `mapstructure:"relative_tolerance"`
	AbsoluteTolerance float64 `mapstructure:"absolute_tolerance"`
	MaxIteration      int     `mapstructure:"max_iteration"`
	TargetIterations  int     `mapstructure:"target_iterations"`
}

// ParseSettings validates params against the defaults and decodes the
// result.
func ParseSettings(params *settings.Parameters) (Settings, error) {
	var s Settings
	validated, err := params.ValidateAndAssignDefaults(DefaultSettings())
	if err != nil {
		return s, err
	}
	if err := validated.Decode(&s); err != nil {
		return s, err
	}
	return s, nil
}
