package processes

import (
	"fmt"

	"github.com/san-kum/stagesim/internal/metrics"
	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
)

// Process info keys the monitor sums into the total energy.
const (
	kineticEnergy   = "KINETIC_ENERGY"
	potentialEnergy = "POTENTIAL_ENERGY"
)

const energyMonitorDefaults = `{
	"model_part_name": "",
	"tolerance": 0.01,
	"fail_on_drift": false
}`

type energyMonitorParams struct {
	ModelPartName string  `mapstructure:"model_part_name"`
	Tolerance     float64 `mapstructure:"tolerance"`
	FailOnDrift   bool    `mapstructure:"fail_on_drift"`
}

// EnergyMonitor follows the total energy of a model part over the run
// and reports its largest relative drift.
type EnergyMonitor struct {
	Base
	env *Env
	cfg energyMonitorParams
	mp  *model.ModelPart

	drift   *metrics.EnergyDrift
	metrics []metrics.Metric
}

func NewEnergyMonitor(env *Env, params *settings.Parameters) (*EnergyMonitor, error) {
	var cfg energyMonitorParams
	if err := parse(params, energyMonitorDefaults, &cfg); err != nil {
		return nil, err
	}
	drift := metrics.NewEnergyDrift()
	return &EnergyMonitor{
		env:     env,
		cfg:     cfg,
		drift:   drift,
		metrics: []metrics.Metric{drift, metrics.NewMean("mean_energy")},
	}, nil
}

func (e *EnergyMonitor) Check() error {
	if e.cfg.Tolerance <= 0 {
		return fmt.Errorf("%w: energy_monitor tolerance %g must be positive", ErrInvalidParameters, e.cfg.Tolerance)
	}
	return nil
}

func (e *EnergyMonitor) ExecuteInitialize() error {
	mp, err := e.env.Model.GetModelPart(e.cfg.ModelPartName)
	if err != nil {
		return err
	}
	e.mp = mp
	return nil
}

// ExecuteBeforeSolutionLoop records the initial energy once the solver
// is initialized.
func (e *EnergyMonitor) ExecuteBeforeSolutionLoop() error {
	e.observe()
	return nil
}

func (e *EnergyMonitor) ExecuteFinalizeSolutionStep() error {
	e.observe()
	return nil
}

func (e *EnergyMonitor) ExecuteFinalize() error {
	attrs := []any{
		"model_part", e.mp.FullName(),
		"samples", e.drift.Samples(),
		"final_energy", e.drift.Current(),
	}
	for _, m := range e.metrics {
		attrs = append(attrs, m.Name(), m.Value())
	}
	e.env.logger().Info("energy monitor", attrs...)

	if e.cfg.FailOnDrift && e.drift.Value() > e.cfg.Tolerance {
		return fmt.Errorf("%w: %.3g > %.3g", ErrEnergyDrift, e.drift.Value(), e.cfg.Tolerance)
	}
	return nil
}

// Drift returns the largest relative energy drift observed so far. A run
// that starts at rest is measured against its peak energy.
func (e *EnergyMonitor) Drift() float64 { return e.drift.Value() }

func (e *EnergyMonitor) observe() {
	info := e.mp.ProcessInfo()
	total := info.Values[kineticEnergy] + info.Values[potentialEnergy]
	for _, m := range e.metrics {
		m.Observe(total, info.Time)
	}
}
