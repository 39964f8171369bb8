package processes

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
)

const csvOutputDefaults = `{
	"model_part_name": "",
	"output_file": "results.csv",
	"output_control_type": "step",
	"output_interval": 1,
	"nodal_results": ["DISPLACEMENT"],
	"process_info_results": []
}`

type csvOutputParams struct {
	ModelPartName      string   `mapstructure:"model_part_name"`
	OutputFile         string   `mapstructure:"output_file"`
	OutputControlType  string   `mapstructure:"output_control_type"`
	OutputInterval     float64  `mapstructure:"output_interval"`
	NodalResults       []string `mapstructure:"nodal_results"`
	ProcessInfoResults []string `mapstructure:"process_info_results"`
}

// CSVOutput writes one row per printed step: time, step, the requested
// process info values and one column per node and nodal variable. Each
// row is on disk once PrintOutput returns, so an aborted run keeps the
// rows printed before the failure.
type CSVOutput struct {
	Base
	env     *Env
	cfg     csvOutputParams
	control *outputControl
	mp      *model.ModelPart

	path string
	rows int
}

func NewCSVOutput(env *Env, params *settings.Parameters) (*CSVOutput, error) {
	var cfg csvOutputParams
	if err := parse(params, csvOutputDefaults, &cfg); err != nil {
		return nil, err
	}
	control, err := newOutputControl(cfg.OutputControlType, cfg.OutputInterval)
	if err != nil {
		return nil, err
	}
	return &CSVOutput{env: env, cfg: cfg, control: control, path: env.path(cfg.OutputFile)}, nil
}

func (o *CSVOutput) ExecuteInitialize() error {
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
	return nil
}

// ExecuteBeforeSolutionLoop creates the file and writes the header.
func (o *CSVOutput) ExecuteBeforeSolutionLoop() error {
	header := []string{"time", "step"}
	header = append(header, o.cfg.ProcessInfoResults...)
	for _, n := range o.mp.Nodes() {
		for _, v := range o.cfg.NodalResults {
			header = append(header, fmt.Sprintf("%s_%d", v, n.ID))
		}
	}
	return o.write(os.O_CREATE|os.O_TRUNC|os.O_WRONLY, header)
}

func (o *CSVOutput) IsOutputStep() bool {
	return o.control.due(o.mp.ProcessInfo())
}

func (o *CSVOutput) PrintOutput() error {
	info := o.mp.ProcessInfo()
	row := []string{
		strconv.FormatFloat(info.Time, 'g', -1, 64),
		strconv.Itoa(info.Step),
	}
	for _, key := range o.cfg.ProcessInfoResults {
		row = append(row, strconv.FormatFloat(info.Values[key], 'g', 10, 64))
	}
	for _, n := range o.mp.Nodes() {
		for _, v := range o.cfg.NodalResults {
			row = append(row, strconv.FormatFloat(n.Value(v), 'g', 10, 64))
		}
	}
	if err := o.write(os.O_APPEND|os.O_WRONLY, row); err != nil {
		return err
	}
	o.rows++
	o.control.printed(info)
	return nil
}

func (o *CSVOutput) write(flag int, record []string) error {
	f, err := os.OpenFile(o.path, flag, 0644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Rows returns the number of data rows written.
func (o *CSVOutput) Rows() int { return o.rows }

func (o *CSVOutput) OutputFiles() []string { return []string{o.path} }
