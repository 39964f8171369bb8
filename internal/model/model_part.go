package model

import (
	"fmt"
	"sort"
)

// ProcessInfo carries the time state of a model part and named scalar
// results written by the solver (energies, iteration counts).
type ProcessInfo struct {
	Step      int
	Time      float64
	DeltaTime float64
	Values    map[string]float64
}

// ModelPart is a set of nodes with the variables and degrees of freedom
// registered on them. Sub-model parts reference nodes of their parent and
// share its variables and process info.
type ModelPart struct {
	name      string
	parent    *ModelPart
	nodes     []*Node
	nodeIndex map[int]*Node
	subParts  map[string]*ModelPart

	// owned by the root part
	variables   map[string]struct{}
	dofs        map[string]struct{}
	processInfo *ProcessInfo
}

func newModelPart(name string, parent *ModelPart) *ModelPart {
	mp := &ModelPart{
		name:      name,
		parent:    parent,
		nodeIndex: make(map[int]*Node),
		subParts:  make(map[string]*ModelPart),
	}
	if parent == nil {
		mp.variables = make(map[string]struct{})
		mp.dofs = make(map[string]struct{})
		mp.processInfo = &ProcessInfo{Values: make(map[string]float64)}
	}
	return mp
}

func (mp *ModelPart) root() *ModelPart {
	r := mp
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Name returns the local name of the part.
func (mp *ModelPart) Name() string { return mp.name }

// FullName returns the dotted path from the root part.
func (mp *ModelPart) FullName() string {
	if mp.parent == nil {
		return mp.name
	}
	return mp.parent.FullName() + "." + mp.name
}

// ProcessInfo is shared by the root part and all of its sub-parts.
func (mp *ModelPart) ProcessInfo() *ProcessInfo { return mp.root().processInfo }

// AddNodalSolutionStepVariable registers a variable so nodes can store it.
func (mp *ModelPart) AddNodalSolutionStepVariable(names ...string) {
	r := mp.root()
	for _, name := range names {
		r.variables[name] = struct{}{}
	}
}

func (mp *ModelPart) HasNodalSolutionStepVariable(name string) bool {
	_, ok := mp.root().variables[name]
	return ok
}

// Variables returns the registered variables, sorted.
func (mp *ModelPart) Variables() []string {
	r := mp.root()
	out := make([]string, 0, len(r.variables))
	for v := range r.variables {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// AddDof declares variable as a degree of freedom. The variable must be
// registered first.
func (mp *ModelPart) AddDof(variable string) error {
	if !mp.HasNodalSolutionStepVariable(variable) {
		return fmt.Errorf("%w: %s (dof)", ErrVariableNotRegistered, variable)
	}
	mp.root().dofs[variable] = struct{}{}
	return nil
}

func (mp *ModelPart) HasDof(variable string) bool {
	_, ok := mp.root().dofs[variable]
	return ok
}

// CreateNode adds a node to a root model part.
func (mp *ModelPart) CreateNode(id int, x float64) (*Node, error) {
	if mp.parent != nil {
		return nil, fmt.Errorf("model: nodes must be created on the root part, not %s", mp.FullName())
	}
	if _, ok := mp.nodeIndex[id]; ok {
		return nil, fmt.Errorf("model: node %d already exists in %s", id, mp.name)
	}
	n := newNode(id, x, mp)
	mp.nodes = append(mp.nodes, n)
	mp.nodeIndex[id] = n
	return n, nil
}

// CreateSubModelPart adds a sub-part referencing the given node ids of mp.
func (mp *ModelPart) CreateSubModelPart(name string, ids []int) (*ModelPart, error) {
	if _, ok := mp.subParts[name]; ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrModelPartExists, mp.FullName(), name)
	}
	sub := newModelPart(name, mp)
	for _, id := range ids {
		n, ok := mp.nodeIndex[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d in %s", ErrNodeNotFound, id, mp.FullName())
		}
		sub.nodes = append(sub.nodes, n)
		sub.nodeIndex[id] = n
	}
	mp.subParts[name] = sub
	return sub, nil
}

func (mp *ModelPart) HasSubModelPart(name string) bool {
	_, ok := mp.subParts[name]
	return ok
}

func (mp *ModelPart) GetSubModelPart(name string) (*ModelPart, error) {
	sub, ok := mp.subParts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrModelPartNotFound, mp.FullName(), name)
	}
	return sub, nil
}

// Nodes returns the nodes in creation order.
func (mp *ModelPart) Nodes() []*Node { return mp.nodes }

func (mp *ModelPart) NumberOfNodes() int { return len(mp.nodes) }

func (mp *ModelPart) GetNode(id int) (*Node, error) {
	n, ok := mp.nodeIndex[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d in %s", ErrNodeNotFound, id, mp.FullName())
	}
	return n, nil
}

// CloneTimeStep opens a new solution step at time: every node shifts its
// buffer so the previous values stay readable and the current values
// start as copies of them.
func (mp *ModelPart) CloneTimeStep(time float64) {
	r := mp.root()
	info := r.processInfo
	info.DeltaTime = time - info.Time
	info.Time = time
	info.Step++
	for _, n := range r.nodes {
		n.cloneStep()
	}
}
