package processes

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
)

const jsonOutputDefaults = `{
	"model_part_name": "",
	"output_file": "results.json",
	"output_control_type": "step",
	"output_interval": 1,
	"nodal_results": ["DISPLACEMENT"]
}`

type jsonOutputParams struct {
	ModelPartName     string   `mapstructure:"model_part_name"`
	OutputFile        string   `mapstructure:"output_file"`
	OutputControlType string   `mapstructure:"output_control_type"`
	OutputInterval    float64  `mapstructure:"output_interval"`
	NodalResults      []string `mapstructure:"nodal_results"`
}

// Snapshot is the state of a model part at one printed step.
type Snapshot struct {
	Time   float64              `json:"time"`
	Step   int                  `json:"step"`
	Nodal  map[string][]float64 `json:"nodal"`
	Values map[string]float64   `json:"values"`
}

// ExportData is the document written by JSONOutput.
type ExportData struct {
	Stage     string     `json:"stage"`
	ModelPart string     `json:"model_part"`
	NodeIDs   []int      `json:"node_ids"`
	Steps     int        `json:"steps"`
	Snapshots []Snapshot `json:"snapshots"`
}

// JSONOutput collects a snapshot per printed step and writes them as one
// document when the stage finalizes.
type JSONOutput struct {
	Base
	env     *Env
	cfg     jsonOutputParams
	control *outputControl
	mp      *model.ModelPart

	path string
	data ExportData
}

func NewJSONOutput(env *Env, params *settings.Parameters) (*JSONOutput, error) {
	var cfg jsonOutputParams
	if err := parse(params, jsonOutputDefaults, &cfg); err != nil {
		return nil, err
	}
	control, err := newOutputControl(cfg.OutputControlType, cfg.OutputInterval)
	if err != nil {
		return nil, err
	}
	return &JSONOutput{env: env, cfg: cfg, control: control, path: env.path(cfg.OutputFile)}, nil
}

func (o *JSONOutput) ExecuteInitialize() error {
	mp, err := o.env.Model.GetModelPart(o.cfg.ModelPartName)
	if err != nil {
		return err
	}
	for _, v := range o.cfg.NodalResults {
		if !mp.HasNodalSolutionStepVariable(v) {
			return fmt.Errorf("%w: %s on %s", model.ErrVariableNotRegistered, v, mp.FullName())
		}
	}
	o.mp = mp
	o.control.start(mp.ProcessInfo())

	o.data = ExportData{Stage: o.env.StageName, ModelPart: mp.FullName()}
	for _, n := range mp.Nodes() {
		o.data.NodeIDs = append(o.data.NodeIDs, n.ID)
	}
	return nil
}

func (o *JSONOutput) IsOutputStep() bool {
	return o.control.due(o.mp.ProcessInfo())
}

func (o *JSONOutput) PrintOutput() error {
	info := o.mp.ProcessInfo()
	snap := Snapshot{
		Time:   info.Time,
		Step:   info.Step,
		Nodal:  make(map[string][]float64, len(o.cfg.NodalResults)),
		Values: make(map[string]float64, len(info.Values)),
	}
	for _, v := range o.cfg.NodalResults {
		vals := make([]float64, 0, o.mp.NumberOfNodes())
		for _, n := range o.mp.Nodes() {
			vals = append(vals, n.Value(v))
		}
		snap.Nodal[v] = vals
	}
	for k, v := range info.Values {
		snap.Values[k] = v
	}
	o.data.Snapshots = append(o.data.Snapshots, snap)
	o.control.printed(info)
	return nil
}

func (o *JSONOutput) ExecuteFinalize() error {
	o.data.Steps = o.mp.ProcessInfo().Step

	file, err := os.Create(o.path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(o.data)
}

func (o *JSONOutput) OutputFiles() []string { return []string{o.path} }
