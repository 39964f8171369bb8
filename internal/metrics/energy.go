// Package metrics accumulates scalar observations over a run.
package metrics

import "math"

// Metric folds a series of (value, time) observations into one number.
type Metric interface {
	Name() string
	Observe(v, t float64)
	Value() float64
}

// Mean is the running average of the observed values.
type Mean struct {
	name    string
	total   float64
	samples int
}

func NewMean(name string) *Mean {
	return &Mean{name: name}
}

func (m *Mean) Name() string { return m.name }

func (m *Mean) Observe(v, _ float64) {
	m.total += v
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.total / float64(m.samples)
}

// zeroEnergy is the magnitude below which an initial energy counts as
// zero.
const zeroEnergy = 1e-12

// EnergyDrift tracks the largest relative deviation of an energy series
// from its first sample. A series that starts at rest is measured against
// the largest magnitude seen so far instead.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	currentEnergy float64
	peakEnergy    float64
	maxDrift      float64
	samples       int
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(energy, _ float64) {
	if e.samples == 0 {
		e.initialEnergy = energy
	}

	e.currentEnergy = energy
	e.peakEnergy = math.Max(e.peakEnergy, math.Abs(energy))
	e.samples++

	scale := math.Abs(e.initialEnergy)
	if scale < zeroEnergy {
		scale = e.peakEnergy
	}
	if scale < zeroEnergy {
		return
	}
	drift := math.Abs(energy-e.initialEnergy) / scale
	e.maxDrift = math.Max(e.maxDrift, drift)
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Current() float64 { return e.currentEnergy }
func (e *EnergyDrift) Samples() int     { return e.samples }
