// Package physics provides the dynamical systems the solvers integrate.
//
// [Chain] implements [dynamo.System] and reports its energy:
//
//	chain := physics.NewChain(16, physics.Material{Mass: 1, Stiffness: 100})
//	energy := chain.Energy(state)
package physics
