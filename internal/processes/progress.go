package processes

import (
	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/settings"
)

const progressDefaults = `{
	"model_part_name": "",
	"value": "KINETIC_ENERGY"
}`

type progressParams struct {
	ModelPartName string `mapstructure:"model_part_name"`
	Value         string `mapstructure:"value"`
}

// Progress pushes an Update with a process info value to the progress
// sink after each finalized step.
type Progress struct {
	Base
	env *Env
	cfg progressParams
	mp  *model.ModelPart
}

func NewProgress(env *Env, params *settings.Parameters) (*Progress, error) {
	var cfg progressParams
	if err := parse(params, progressDefaults, &cfg); err != nil {
		return nil, err
	}
	return &Progress{env: env, cfg: cfg}, nil
}

func (p *Progress) ExecuteInitialize() error {
	mp, err := p.env.Model.GetModelPart(p.cfg.ModelPartName)
	if err != nil {
		return err
	}
	p.mp = mp
	return nil
}

func (p *Progress) ExecuteFinalizeSolutionStep() error {
	if p.env.Progress == nil {
		return nil
	}
	info := p.mp.ProcessInfo()
	p.env.Progress(Update{
		Stage:   p.env.StageName,
		Step:    info.Step,
		Time:    info.Time,
		EndTime: p.env.EndTime,
		Value:   info.Values[p.cfg.Value],
	})
	return nil
}
