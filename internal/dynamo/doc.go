// Package dynamo provides the numerical primitives the chain solver is
// built on.
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: fixed-step numerical integrator
//   - [AdaptiveIntegrator]: integrator that also proposes the next step size
//
// # Example
//
//	chain := physics.NewChain(8, physics.Material{Mass: 1, Stiffness: 100})
//	integ, _ := integrators.Get("rk4")
//	x = integ.Step(chain, x, forces, t, dt)
//
// Integrators keep scratch buffers and are NOT safe for concurrent use. Each
// execution unit owns its own instance.
package dynamo
