package stage

import "fmt"

type buildState int

const (
	unbuilt buildState = iota
	building
	built
)

// lazy memoizes one component. The build function runs at most once; its
// error is cached along with the value.
type lazy[T any] struct {
	state buildState
	val   T
	err   error
}

func (l *lazy[T]) get(what string, build func() (T, error)) (T, error) {
	switch l.state {
	case built:
		return l.val, l.err
	case building:
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrReentrantConstruction, what)
	}
	l.state = building
	l.val, l.err = build()
	l.state = built
	return l.val, l.err
}
