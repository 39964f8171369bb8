package processes

import (
	"fmt"
	"math"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
)

const assignDefaults = `{
	"model_part_name": "",
	"variable_name": "",
	"value": 0.0,
	"amplitude": 0.0,
	"frequency": 0.0,
	"interval": [0.0, 1e30],
	"constrained": false
}`

type assignParams struct {
	ModelPartName string    `mapstructure:"model_part_name"`
	VariableName  string    `mapstructure:"variable_name"`
	Value         float64   `mapstructure:"value"`
	Amplitude     float64   `mapstructure:"amplitude"`
	Frequency     float64   `mapstructure:"frequency"`
	Interval      []float64 `mapstructure:"interval"`
	Constrained   bool      `mapstructure:"constrained"`
}

// AssignScalarVariable sets value + amplitude*sin(2*pi*frequency*t) on
// every node of a model part while t is inside the interval. A
// constrained assignment fixes the variable for the step.
type AssignScalarVariable struct {
	Base
	env *Env
	cfg assignParams
	mp  *model.ModelPart

	fixed bool
}

func NewAssignScalarVariable(env *Env, params *settings.Parameters) (*AssignScalarVariable, error) {
	var cfg assignParams
	if err := parse(params, assignDefaults, &cfg); err != nil {
		return nil, err
	}
	return &AssignScalarVariable{env: env, cfg: cfg}, nil
}

func (a *AssignScalarVariable) Check() error {
	if a.cfg.ModelPartName == "" || a.cfg.VariableName == "" {
		return fmt.Errorf("%w: assign_scalar_variable needs model_part_name and variable_name", ErrInvalidParameters)
	}
	if len(a.cfg.Interval) != 2 || a.cfg.Interval[0] > a.cfg.Interval[1] {
		return fmt.Errorf("%w: interval %v", ErrInvalidParameters, a.cfg.Interval)
	}
	return nil
}

func (a *AssignScalarVariable) ExecuteInitialize() error {
	if err := a.Check(); err != nil {
		return err
	}
	mp, err := a.env.Model.GetModelPart(a.cfg.ModelPartName)
	if err != nil {
		return err
	}
	if !mp.HasNodalSolutionStepVariable(a.cfg.VariableName) {
		return fmt.Errorf("%w: %s on %s", model.ErrVariableNotRegistered, a.cfg.VariableName, mp.FullName())
	}
	if a.cfg.Constrained && !mp.HasDof(a.cfg.VariableName) {
		return fmt.Errorf("%w: %s is not a degree of freedom and cannot be constrained", ErrInvalidParameters, a.cfg.VariableName)
	}
	a.mp = mp
	return nil
}

// Value returns the assigned value at time t.
func (a *AssignScalarVariable) Value(t float64) float64 {
	return a.cfg.Value + a.cfg.Amplitude*math.Sin(2*math.Pi*a.cfg.Frequency*t)
}

func (a *AssignScalarVariable) active(t float64) bool {
	return t >= a.cfg.Interval[0] && t <= a.cfg.Interval[1]
}

func (a *AssignScalarVariable) ExecuteInitializeSolutionStep() error {
	t := a.mp.ProcessInfo().Time
	if !a.active(t) {
		return nil
	}

	v := a.Value(t)
	for _, n := range a.mp.Nodes() {
		if err := n.SetSolutionStepValue(a.cfg.VariableName, v); err != nil {
			return err
		}
		if a.cfg.Constrained {
			n.Fix(a.cfg.VariableName)
		}
	}
	a.fixed = a.cfg.Constrained
	return nil
}

func (a *AssignScalarVariable) ExecuteFinalizeSolutionStep() error {
	if !a.fixed {
		return nil
	}
	for _, n := range a.mp.Nodes() {
		n.Free(a.cfg.VariableName)
	}
	a.fixed = false
	return nil
}
