package processes

import (
	"fmt"
	"math"

	"github.com/san-kum/stagesim/internal/model"
)

// Output control types.
const (
	ControlStep = "step"
	ControlTime = "time"
)

// outputControl decides when an output process is due: every N steps or
// every T units of simulated time.
type outputControl struct {
	kind     string
	interval float64
	next     float64
}

func newOutputControl(kind string, interval float64) (*outputControl, error) {
	switch kind {
	case ControlStep:
		if interval < 1 || interval != math.Trunc(interval) {
			return nil, fmt.Errorf("%w: step output_interval must be a positive integer, got %g", ErrInvalidParameters, interval)
		}
	case ControlTime:
		if interval <= 0 {
			return nil, fmt.Errorf("%w: time output_interval must be positive, got %g", ErrInvalidParameters, interval)
		}
	default:
		return nil, fmt.Errorf("%w: output_control_type %q", ErrInvalidParameters, kind)
	}
	return &outputControl{kind: kind, interval: interval}, nil
}

// start sets the first output time relative to the start of the run.
func (c *outputControl) start(info *model.ProcessInfo) {
	c.next = info.Time + c.interval
}

func (c *outputControl) due(info *model.ProcessInfo) bool {
	if c.kind == ControlStep {
		return info.Step > 0 && info.Step%int(c.interval) == 0
	}
	// tolerate accumulated round-off in the step sizes
	return info.Time >= c.next-1e-10*c.interval
}

// printed schedules the next time-controlled output after info.Time.
func (c *outputControl) printed(info *model.ProcessInfo) {
	if c.kind != ControlTime {
		return
	}
	for c.next <= info.Time+1e-10*c.interval {
		c.next += c.interval
	}
}
