// Package tui renders a running analysis in the terminal: a progress bar
// over the stage's time span and a live plot of one process info value.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/stagesim/internal/processes"
)

const (
	defaultWidth    = 80
	graphHeight     = 8
	historyCapacity = 600
)

// UpdateMsg carries one progress sample into the program.
type UpdateMsg processes.Update

// DoneMsg ends the program once the run returns.
type DoneMsg struct {
	Err error
}

// Model is the bubbletea model of the watch view.
type Model struct {
	title string
	bar   progress.Model
	width int

	stage   string
	stages  int
	step    int
	time    float64
	endTime float64
	value   float64
	values  []float64

	done bool
	err  error
}

func New(title string) Model {
	return Model{
		title:  title,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultWidth-10)),
		width:  defaultWidth,
		values: make([]float64, 0, historyCapacity),
	}
}

// Sink returns a progress callback that forwards updates to p.
func Sink(p *tea.Program) func(processes.Update) {
	return func(u processes.Update) { p.Send(UpdateMsg(u)) }
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-10, 10)
	case UpdateMsg:
		if msg.Stage != m.stage {
			m.stage = msg.Stage
			m.stages++
			m.values = m.values[:0]
		}
		m.step = msg.Step
		m.time = msg.Time
		m.endTime = msg.EndTime
		m.value = msg.Value
		m.values = append(m.values, msg.Value)
		if len(m.values) > historyCapacity {
			m.values = m.values[1:]
		}
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// Fraction is the share of the current stage's time span already covered.
func (m Model) Fraction() float64 {
	if m.endTime <= 0 {
		return 0
	}
	return min(max(m.time/m.endTime, 0), 1)
}

func (m Model) Err() error        { return m.err }
func (m Model) Done() bool        { return m.done }
func (m Model) Values() []float64 { return m.values }

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.Fraction()))
	b.WriteString("\n\n")

	stage := m.stage
	if stage == "" {
		stage = "waiting"
	}
	stats := []string{
		row("stage", fmt.Sprintf("%s (#%d)", stage, m.stages)),
		row("step", fmt.Sprintf("%d", m.step)),
		row("time", fmt.Sprintf("%.4g / %.4g", m.time, m.endTime)),
		row("value", fmt.Sprintf("%.6g", m.value)),
	}
	b.WriteString(panelStyle.Render(strings.Join(stats, "\n")))
	b.WriteString("\n")

	if len(m.values) > 1 {
		graph := asciigraph.Plot(m.values,
			asciigraph.Height(graphHeight),
			asciigraph.Width(max(m.width-16, 20)))
		b.WriteString(graphStyle.Render(graph))
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(statusFailed.Render("FAILED: " + m.err.Error()))
	case m.done:
		b.WriteString(statusDone.Render("DONE"))
	default:
		b.WriteString(statusRunning.Render("RUNNING") + "  " + hintStyle.Render("q: quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
