package stage

import "errors"

var (
	// ErrConfigurationType indicates a construction argument of the wrong
	// kind (nil model, settings or factory).
	ErrConfigurationType = errors.New("stage: invalid construction argument")

	// ErrNotImplemented indicates a factory method the concrete stage
	// did not provide.
	ErrNotImplemented = errors.New("stage: not implemented")

	// ErrReentrantConstruction indicates a factory that accessed the
	// component it was building.
	ErrReentrantConstruction = errors.New("stage: component accessed during its own construction")

	// ErrUnknownParallelType indicates an unrecognized
	// problem_data.parallel_type.
	ErrUnknownParallelType = errors.New("stage: unknown parallel type")
)
