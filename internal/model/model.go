// Package model is the data container shared by solvers and processes:
// named model parts holding nodes, their solution-step values and the
// per-part process info (step, time, scalar results).
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrModelPartExists is returned when a model part name is taken.
	ErrModelPartExists = errors.New("model: model part already exists")

	// ErrModelPartNotFound is returned for unknown model part paths.
	ErrModelPartNotFound = errors.New("model: model part not found")

	// ErrVariableNotRegistered is returned when a variable is used before
	// it was added to the model part.
	ErrVariableNotRegistered = errors.New("model: variable not registered")

	// ErrNodeNotFound is returned for unknown node ids.
	ErrNodeNotFound = errors.New("model: node not found")
)

// Model owns a set of root model parts. A stage refers to a Model but does
// not own it; several stages may run on the same Model in sequence.
type Model struct {
	parts map[string]*ModelPart
}

func New() *Model {
	return &Model{parts: make(map[string]*ModelPart)}
}

// CreateModelPart adds an empty root model part.
func (m *Model) CreateModelPart(name string) (*ModelPart, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, fmt.Errorf("model: invalid model part name %q", name)
	}
	if _, ok := m.parts[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrModelPartExists, name)
	}
	mp := newModelPart(name, nil)
	m.parts[name] = mp
	return mp, nil
}

// GetModelPart resolves a dotted path such as "chain.left_end".
func (m *Model) GetModelPart(path string) (*ModelPart, error) {
	parts := strings.Split(path, ".")
	mp, ok := m.parts[parts[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelPartNotFound, path)
	}
	for _, name := range parts[1:] {
		sub, ok := mp.subParts[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModelPartNotFound, path)
		}
		mp = sub
	}
	return mp, nil
}

func (m *Model) HasModelPart(path string) bool {
	_, err := m.GetModelPart(path)
	return err == nil
}

// Names returns the root model part names, sorted.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.parts))
	for name := range m.parts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
