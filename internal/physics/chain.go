package physics

import (
	"fmt"

	"github.com/san-kum/stagesim/internal/dynamo"
)

// Material holds the per-node mass and the stiffness and damping of the
// springs between neighbouring nodes.
type Material struct {
	Mass      float64 `mapstructure:"mass"`
	Stiffness float64 `mapstructure:"stiffness"`
	Damping   float64 `mapstructure:"damping"`
}

func (m Material) Validate() error {
	if m.Mass <= 0 {
		return fmt.Errorf("%w: mass %g must be positive", dynamo.ErrParameterBounds, m.Mass)
	}
	if m.Stiffness <= 0 {
		return fmt.Errorf("%w: stiffness %g must be positive", dynamo.ErrParameterBounds, m.Stiffness)
	}
	if m.Damping < 0 {
		return fmt.Errorf("%w: damping %g must not be negative", dynamo.ErrParameterBounds, m.Damping)
	}
	return nil
}

// Chain is a line of N masses joined by N-1 springs with free ends.
// State: [x1..xN, v1..vN]. The control holds one external force per node.
// A fixed node keeps its position and has zero velocity.
type Chain struct {
	n     int
	mat   Material
	fixed []bool
}

func NewChain(n int, mat Material) *Chain {
	return &Chain{n: n, mat: mat, fixed: make([]bool, n)}
}

func (c *Chain) StateDim() int   { return c.n * 2 }
func (c *Chain) ControlDim() int { return c.n }
func (c *Chain) Nodes() int      { return c.n }

func (c *Chain) Material() Material { return c.mat }

func (c *Chain) SetMaterial(mat Material) { c.mat = mat }

func (c *Chain) SetFixed(i int, fixed bool) { c.fixed[i] = fixed }

func (c *Chain) IsFixed(i int) bool { return c.fixed[i] }

func (c *Chain) Derive(state dynamo.State, u dynamo.Control, _ float64) dynamo.State {
	n := c.n
	deriv := make(dynamo.State, n*2)

	for i := 0; i < n; i++ {
		if c.fixed[i] {
			continue
		}
		x, v := state[i], state[n+i]

		var force float64
		if i > 0 {
			force += c.mat.Stiffness * (state[i-1] - x)
		}
		if i < n-1 {
			force += c.mat.Stiffness * (state[i+1] - x)
		}
		force -= c.mat.Damping * v
		if i < len(u) {
			force += u[i]
		}

		deriv[i] = v
		deriv[n+i] = force / c.mat.Mass
	}
	return deriv
}

func (c *Chain) KineticEnergy(x dynamo.State) float64 {
	ke := 0.0
	for i := 0; i < c.n; i++ {
		v := x[c.n+i]
		ke += 0.5 * c.mat.Mass * v * v
	}
	return ke
}

func (c *Chain) PotentialEnergy(x dynamo.State) float64 {
	pe := 0.0
	for i := 0; i+1 < c.n; i++ {
		stretch := x[i+1] - x[i]
		pe += 0.5 * c.mat.Stiffness * stretch * stretch
	}
	return pe
}

// Energy returns the total mechanical energy of x.
func (c *Chain) Energy(x dynamo.State) float64 {
	return c.KineticEnergy(x) + c.PotentialEnergy(x)
}
