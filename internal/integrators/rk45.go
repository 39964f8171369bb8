package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/stagesim/internal/dynamo"
)

// Dormand-Prince tableau. The last row of dpA is the fifth-order solution,
// which is also the first stage of the next step.
var (
	dpC = [7]float64{0, 1.0 / 5.0, 3.0 / 10.0, 4.0 / 5.0, 8.0 / 9.0, 1, 1}

	dpA = [7][6]float64{
		{},
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
		{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
		{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
		{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0},
	}

	// difference between the fifth- and fourth-order weights
	dpE = [7]float64{
		35.0/384.0 - 5179.0/57600.0,
		0,
		500.0/1113.0 - 7571.0/16695.0,
		125.0/192.0 - 393.0/640.0,
		-2187.0/6784.0 + 92097.0/339200.0,
		11.0/84.0 - 187.0/2100.0,
		-1.0 / 40.0,
	}
)

type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
	minDt    float64

	k     [7]dynamo.State
	stage dynamo.State
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
		minDt:    1e-12,
	}
}

func (r *RK45) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	newX, _, _ := r.StepAdaptive(dyn, x, u, t, dt, 1e-6)
	return newX
}

// StepAdaptive advances x by dt and proposes the next step size from the
// embedded fourth-order error estimate relative to tol.
func (r *RK45) StepAdaptive(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt, tol float64) (dynamo.State, float64, error) {
	if dt < r.minDt {
		return x, dt, fmt.Errorf("%w: dt=%g", dynamo.ErrStepTooSmall, dt)
	}
	if tol <= 0 {
		return x, dt, fmt.Errorf("%w: tolerance %g", dynamo.ErrParameterBounds, tol)
	}

	n := len(x)
	if len(r.stage) != n {
		r.stage = make(dynamo.State, n)
	}

	r.k[0] = dyn.Derive(x, u, t)
	for s := 1; s < 7; s++ {
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < s; j++ {
				sum += dpA[s][j] * r.k[j][i]
			}
			r.stage[i] = x[i] + dt*sum
		}
		if s == 6 {
			break
		}
		r.k[s] = dyn.Derive(r.stage, u, t+dpC[s]*dt)
	}

	xNew := r.stage.Clone()
	r.k[6] = dyn.Derive(xNew, u, t+dt)
	if !xNew.IsValid() {
		return xNew, dt, dynamo.ErrInvalidState
	}

	errMax := 0.0
	for i := 0; i < n; i++ {
		est := 0.0
		for s := range dpE {
			est += dpE[s] * r.k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*r.k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(dt*est)/scale)
	}

	ratio := errMax / tol
	switch {
	case ratio > 1:
		return xNew, dt * math.Max(r.minScale, r.safety*math.Pow(ratio, -0.25)), nil
	case ratio > 0:
		return xNew, dt * math.Min(r.maxScale, r.safety*math.Pow(ratio, -0.2)), nil
	default:
		return xNew, dt * r.maxScale, nil
	}
}
