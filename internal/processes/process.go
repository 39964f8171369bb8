// Package processes provides the lifecycle hook objects a stage runs:
// boundary conditions, monitors and output writers. Processes are built
// by name from the process lists of the project parameters.
package processes

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
	"github.com/san-kum/stagesim/internal/stage"
)

var (
	// ErrUnknownProcess indicates a process_name with no registered
	// constructor.
	ErrUnknownProcess = errors.New("processes: unknown process")

	// ErrEnergyDrift is returned by the energy monitor when the drift
	// exceeds its tolerance and fail_on_drift is set.
	ErrEnergyDrift = errors.New("processes: energy drift above tolerance")

	// ErrInvalidParameters indicates process parameters that are
	// well-typed but unusable.
	ErrInvalidParameters = errors.New("processes: invalid parameters")
)

// Base implements stage.Process with no-op hooks. Embed it and override
// the hooks a process needs.
type Base struct{}

func (Base) ExecuteInitialize() error             { return nil }
func (Base) ExecuteBeforeSolutionLoop() error     { return nil }
func (Base) ExecuteInitializeSolutionStep() error { return nil }
func (Base) ExecuteFinalizeSolutionStep() error   { return nil }
func (Base) ExecuteBeforeOutputStep() error       { return nil }
func (Base) ExecuteAfterOutputStep() error        { return nil }
func (Base) ExecuteFinalize() error               { return nil }

// Update is one progress sample pushed after each finalized step.
type Update struct {
	Stage   string
	Step    int
	Time    float64
	EndTime float64
	Value   float64
}

// Env is what a process may use besides its own parameters.
type Env struct {
	Model     *model.Model
	Logger    *slog.Logger
	StageName string
	EndTime   float64

	// Out receives rendered text output such as plots.
	Out io.Writer
	// OutputDir is the base of relative output file names.
	OutputDir string
	// Progress, when set, receives an Update per step.
	Progress func(Update)
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return io.Discard
	}
	return e.Out
}

func (e *Env) path(name string) string {
	if filepath.IsAbs(name) || e.OutputDir == "" {
		return name
	}
	return filepath.Join(e.OutputDir, name)
}

// OutputFiler is implemented by processes that write files.
type OutputFiler interface {
	OutputFiles() []string
}

type (
	Constructor       func(env *Env, params *settings.Parameters) (stage.Process, error)
	OutputConstructor func(env *Env, params *settings.Parameters) (stage.OutputProcess, error)
)

var (
	registry = map[string]Constructor{
		"assign_scalar_variable": func(env *Env, p *settings.Parameters) (stage.Process, error) {
			return NewAssignScalarVariable(env, p)
		},
		"energy_monitor": func(env *Env, p *settings.Parameters) (stage.Process, error) {
			return NewEnergyMonitor(env, p)
		},
		"progress": func(env *Env, p *settings.Parameters) (stage.Process, error) {
			return NewProgress(env, p)
		},
	}

	outputRegistry = map[string]OutputConstructor{
		"csv_output": func(env *Env, p *settings.Parameters) (stage.OutputProcess, error) {
			return NewCSVOutput(env, p)
		},
		"json_output": func(env *Env, p *settings.Parameters) (stage.OutputProcess, error) {
			return NewJSONOutput(env, p)
		},
		"plot_output": func(env *Env, p *settings.Parameters) (stage.OutputProcess, error) {
			return NewPlotOutput(env, p)
		},
	}
)

// Create builds a process from a list entry of the form
// {"process_name": ..., "Parameters": {...}}.
func Create(env *Env, entry *settings.Parameters) (stage.Process, error) {
	name, params, err := unpack(entry)
	if err != nil {
		return nil, err
	}
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcess, name)
	}
	return ctor(env, params)
}

// CreateOutput is Create for output processes.
func CreateOutput(env *Env, entry *settings.Parameters) (stage.OutputProcess, error) {
	name, params, err := unpack(entry)
	if err != nil {
		return nil, err
	}
	ctor, ok := outputRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: output %q", ErrUnknownProcess, name)
	}
	return ctor(env, params)
}

func unpack(entry *settings.Parameters) (string, *settings.Parameters, error) {
	name, err := entry.String("process_name")
	if err != nil {
		return "", nil, err
	}
	params, err := entry.GetOr("Parameters")
	if err != nil {
		return "", nil, err
	}
	return name, params, nil
}

// Names returns the registered process names, sorted.
func Names() []string {
	return sortedKeys(registry)
}

// OutputNames returns the registered output process names, sorted.
func OutputNames() []string {
	return sortedKeys(outputRegistry)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parse validates params against defaults and decodes them into out.
func parse(params *settings.Parameters, defaults string, out any) error {
	validated, err := params.ValidateAndAssignDefaults(settings.MustJSON(defaults))
	if err != nil {
		return err
	}
	return validated.Decode(out)
}
