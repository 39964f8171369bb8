package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestStateArithmetic(t *testing.T) {
	a := State{1, 2, 3}
	b := State{0.5, 0.5}

	if got := a.Add(b); got[0] != 1.5 || got[1] != 2.5 || got[2] != 3 {
		t.Errorf("Add = %v", got)
	}
	if got := a.Sub(b); got[0] != 0.5 || got[1] != 1.5 || got[2] != 3 {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Scale(2); got[2] != 6 {
		t.Errorf("Scale = %v", got)
	}
	if a[0] != 1 {
		t.Error("arithmetic must not modify the receiver")
	}
	if n := (State{3, 4}).Norm(); n != 5 {
		t.Errorf("Norm = %f, want 5", n)
	}
}

func TestStateValidity(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  bool
	}{
		{"finite", State{0, 1, -2}, true},
		{"nan", State{0, math.NaN()}, false},
		{"inf", State{math.Inf(-1)}, false},
		{"empty", State{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimulationErrorUnwraps(t *testing.T) {
	err := &SimulationError{Step: 3, Time: 0.3, Wrapped: ErrInvalidState}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("SimulationError should unwrap to its cause")
	}
}
