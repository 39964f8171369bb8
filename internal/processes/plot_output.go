package processes

import (
	"fmt"
	"io"
	"os"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
)

const plotOutputDefaults = `{
	"model_part_name": "",
	"output_control_type": "step",
	"output_interval": 1,
	"variable_name": "",
	"node_id": 0,
	"process_info_value": "",
	"output_file": "",
	"height": 10,
	"width": 80
}`

type plotOutputParams struct {
	ModelPartName     string  `mapstructure:"model_part_name"`
	OutputControlType string  `mapstructure:"output_control_type"`
	OutputInterval    float64 `mapstructure:"output_interval"`
	VariableName      string  `mapstructure:"variable_name"`
	NodeID            int     `mapstructure:"node_id"`
	ProcessInfoValue  string  `mapstructure:"process_info_value"`
	OutputFile        string  `mapstructure:"output_file"`
	Height            int     `mapstructure:"height"`
	Width             int     `mapstructure:"width"`
}

// PlotOutput samples either a nodal value of one node or a process info
// value on each printed step and renders the series as a text plot when
// the stage finalizes.
type PlotOutput struct {
	Base
	env     *Env
	cfg     plotOutputParams
	control *outputControl
	mp      *model.ModelPart
	node    *model.Node

	series []float64
}

func NewPlotOutput(env *Env, params *settings.Parameters) (*PlotOutput, error) {
	var cfg plotOutputParams
	if err := parse(params, plotOutputDefaults, &cfg); err != nil {
		return nil, err
	}
	if (cfg.VariableName == "") == (cfg.ProcessInfoValue == "") {
		return nil, fmt.Errorf("%w: plot_output needs exactly one of variable_name and process_info_value", ErrInvalidParameters)
	}
	control, err := newOutputControl(cfg.OutputControlType, cfg.OutputInterval)
	if err != nil {
		return nil, err
	}
	return &PlotOutput{env: env, cfg: cfg, control: control}, nil
}

func (o *PlotOutput) ExecuteInitialize() error {
	mp, err := o.env.Model.GetModelPart(o.cfg.ModelPartName)
	if err != nil {
		return err
	}
	o.mp = mp
	o.control.start(mp.ProcessInfo())

	if o.cfg.VariableName == "" {
		return nil
	}
	if !mp.HasNodalSolutionStepVariable(o.cfg.VariableName) {
		return fmt.Errorf("%w: %s on %s", model.ErrVariableNotRegistered, o.cfg.VariableName, mp.FullName())
	}
	o.node, err = mp.GetNode(o.cfg.NodeID)
	return err
}

func (o *PlotOutput) IsOutputStep() bool {
	return o.control.due(o.mp.ProcessInfo())
}

func (o *PlotOutput) PrintOutput() error {
	info := o.mp.ProcessInfo()
	if o.node != nil {
		o.series = append(o.series, o.node.Value(o.cfg.VariableName))
	} else {
		o.series = append(o.series, info.Values[o.cfg.ProcessInfoValue])
	}
	o.control.printed(info)
	return nil
}

func (o *PlotOutput) ExecuteFinalize() error {
	if len(o.series) == 0 {
		return nil
	}

	graph := asciigraph.Plot(o.series,
		asciigraph.Height(o.cfg.Height),
		asciigraph.Width(o.cfg.Width),
		asciigraph.Caption(o.caption()))

	var w io.Writer = o.env.out()
	if o.cfg.OutputFile != "" {
		f, err := os.Create(o.env.path(o.cfg.OutputFile))
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := fmt.Fprintln(w, graph)
	return err
}

// Series returns the sampled values.
func (o *PlotOutput) Series() []float64 { return o.series }

func (o *PlotOutput) OutputFiles() []string {
	if o.cfg.OutputFile == "" {
		return nil
	}
	return []string{o.env.path(o.cfg.OutputFile)}
}

func (o *PlotOutput) caption() string {
	if o.node != nil {
		return fmt.Sprintf("%s of node %d", o.cfg.VariableName, o.node.ID)
	}
	return o.cfg.ProcessInfoValue
}
