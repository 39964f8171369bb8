package model

import "fmt"

// BufferSize is the number of solution steps a node keeps per variable:
// index 0 is the current step, index 1 the previous one.
const BufferSize = 2

type Node struct {
	ID    int
	X     float64
	owner *ModelPart
	data  map[string]*[BufferSize]float64
	fixed map[string]bool
}

func newNode(id int, x float64, owner *ModelPart) *Node {
	return &Node{
		ID:    id,
		X:     x,
		owner: owner,
		data:  make(map[string]*[BufferSize]float64),
		fixed: make(map[string]bool),
	}
}

func (n *Node) slot(variable string) (*[BufferSize]float64, error) {
	if !n.owner.HasNodalSolutionStepVariable(variable) {
		return nil, fmt.Errorf("%w: %s on node %d", ErrVariableNotRegistered, variable, n.ID)
	}
	buf, ok := n.data[variable]
	if !ok {
		buf = &[BufferSize]float64{}
		n.data[variable] = buf
	}
	return buf, nil
}

// GetSolutionStepValue reads variable at buffer index step (0 = current).
func (n *Node) GetSolutionStepValue(variable string, step int) (float64, error) {
	if step < 0 || step >= BufferSize {
		return 0, fmt.Errorf("model: buffer index %d out of range", step)
	}
	buf, err := n.slot(variable)
	if err != nil {
		return 0, err
	}
	return buf[step], nil
}

// SetSolutionStepValue writes the current value of variable.
func (n *Node) SetSolutionStepValue(variable string, value float64) error {
	buf, err := n.slot(variable)
	if err != nil {
		return err
	}
	buf[0] = value
	return nil
}

// Value is GetSolutionStepValue for the current step; unregistered
// variables read as zero.
func (n *Node) Value(variable string) float64 {
	v, _ := n.GetSolutionStepValue(variable, 0)
	return v
}

func (n *Node) Fix(variable string)          { n.fixed[variable] = true }
func (n *Node) Free(variable string)         { delete(n.fixed, variable) }
func (n *Node) IsFixed(variable string) bool { return n.fixed[variable] }

func (n *Node) cloneStep() {
	for _, buf := range n.data {
		for i := BufferSize - 1; i > 0; i-- {
			buf[i] = buf[i-1]
		}
	}
}
