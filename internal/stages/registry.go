// Package stages builds concrete analysis stages from project parameters.
package stages

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/parallel"
	"github.com/san-kum/stagesim/internal/processes"
	"github.com/san-kum/stagesim/internal/settings"
	"github.com/san-kum/stagesim/internal/stage"
)

// DefaultAnalysisType is used when problem_data.analysis_type is absent.
const DefaultAnalysisType = "chain_dynamics"

// ErrUnknownAnalysis indicates an analysis_type with no registered builder.
var ErrUnknownAnalysis = errors.New("stages: unknown analysis type")

// Options carries what the caller provides to every stage it builds.
type Options struct {
	Logger       *slog.Logger
	Communicator parallel.Communicator
	Out          io.Writer
	OutputDir    string
	Progress     func(processes.Update)
}

// Builder creates the factory of one analysis type.
type Builder func(opts Options) stage.Factory

type Registry struct {
	builders map[string]Builder
}

func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]Builder)}
	r.Register(DefaultAnalysisType, func(opts Options) stage.Factory {
		return NewChainDynamicsAnalysis(opts)
	})
	return r
}

func (r *Registry) Register(name string, b Builder) {
	r.builders[name] = b
}

// Build constructs the stage selected by problem_data.analysis_type.
func (r *Registry) Build(m *model.Model, params *settings.Parameters, opts Options) (*stage.Stage, error) {
	kind, err := params.StringOr("problem_data.analysis_type", DefaultAnalysisType)
	if err != nil {
		return nil, err
	}
	b, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalysis, kind)
	}

	stageOpts := []stage.Option{}
	if opts.Logger != nil {
		stageOpts = append(stageOpts, stage.WithLogger(opts.Logger))
	}
	if opts.Communicator != nil {
		stageOpts = append(stageOpts, stage.WithCommunicator(opts.Communicator))
	}
	return stage.New(m, params, b(opts), stageOpts...)
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
