package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/stagesim/internal/dynamo"
)

var registry = map[string]func() dynamo.Integrator{
	"euler":          func() dynamo.Integrator { return NewEuler() },
	"rk4":            func() dynamo.Integrator { return NewRK4() },
	"rk45":           func() dynamo.Integrator { return NewRK45() },
	"verlet":         func() dynamo.Integrator { return NewVerlet() },
	"leapfrog":       func() dynamo.Integrator { return NewLeapfrog() },
	"backward_euler": func() dynamo.Integrator { return NewBackwardEuler() },
}

// Get returns a fresh integrator for the scheme name.
func Get(name string) (dynamo.Integrator, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", dynamo.ErrUnknownIntegrator, name)
	}
	return ctor(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
