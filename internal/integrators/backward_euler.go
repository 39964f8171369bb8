package integrators

import (
	"math"

	"github.com/san-kum/stagesim/internal/dynamo"
)

// Criterion decides whether a corrector iterate has converged. dx is the
// change of the last iteration and x the current iterate.
type Criterion func(dx, x dynamo.State) bool

// BackwardEuler solves x' = x + dt*f(x', t+dt) by fixed-point iteration
// from an explicit Euler predictor.
type BackwardEuler struct {
	MaxIterations int
	Converged     Criterion

	iterations int
	converged  bool
}

func NewBackwardEuler() *BackwardEuler {
	return &BackwardEuler{
		MaxIterations: 20,
		Converged:     DisplacementCriterion(1e-6, 1e-9),
	}
}

func (b *BackwardEuler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	dx := dyn.Derive(x, u, t)
	next := make(dynamo.State, n)
	for i := range x {
		next[i] = x[i] + dt*dx[i]
	}

	b.iterations = 0
	b.converged = false
	for b.iterations < b.MaxIterations {
		b.iterations++
		f := dyn.Derive(next, u, t+dt)
		delta := make(dynamo.State, n)
		for i := range x {
			corrected := x[i] + dt*f[i]
			delta[i] = corrected - next[i]
			next[i] = corrected
		}
		if b.Converged(delta, next) {
			b.converged = true
			break
		}
	}
	return next
}

// Iterations reports the corrector iterations of the last Step and whether
// they converged.
func (b *BackwardEuler) Iterations() (int, bool) {
	return b.iterations, b.converged
}

// DisplacementCriterion accepts an iterate when the relative change
// ||dx||/||x|| or the mean absolute change falls below its tolerance.
func DisplacementCriterion(relTol, absTol float64) Criterion {
	return func(dx, x dynamo.State) bool {
		norm := dx.Norm()
		if len(dx) > 0 && norm/math.Sqrt(float64(len(dx))) <= absTol {
			return true
		}
		ref := x.Norm()
		return ref > 0 && norm/ref <= relTol
	}
}
