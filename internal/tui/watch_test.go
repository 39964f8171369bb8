package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/stagesim/internal/processes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestWatchUpdates(t *testing.T) {
	m := New("pulse")
	assert.Zero(t, m.Fraction())

	m, cmd := send(t, m, UpdateMsg(processes.Update{Stage: "a", Step: 1, Time: 0.25, EndTime: 1, Value: 2}))
	assert.Nil(t, cmd)
	m, _ = send(t, m, UpdateMsg(processes.Update{Stage: "a", Step: 2, Time: 0.5, EndTime: 1, Value: 3}))

	assert.Equal(t, 0.5, m.Fraction())
	assert.Equal(t, []float64{2, 3}, m.Values())
	assert.Contains(t, m.View(), "RUNNING")
	assert.Contains(t, m.View(), "a (#1)")

	m, _ = send(t, m, UpdateMsg(processes.Update{Stage: "b", Step: 3, Time: 2, EndTime: 1, Value: 7}))
	assert.Equal(t, []float64{7}, m.Values(), "a new stage restarts the plot")
	assert.Equal(t, 1.0, m.Fraction())
}

func TestWatchDone(t *testing.T) {
	m, cmd := send(t, New("pulse"), DoneMsg{})
	assert.True(t, m.Done())
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "DONE")

	boom := errors.New("boom")
	m, _ = send(t, New("pulse"), DoneMsg{Err: boom})
	assert.ErrorIs(t, m.Err(), boom)
	assert.Contains(t, m.View(), "FAILED: boom")
}

func TestWatchHistoryCapped(t *testing.T) {
	m := New("long")
	for i := 0; i < historyCapacity+10; i++ {
		m, _ = send(t, m, UpdateMsg(processes.Update{Stage: "a", Step: i, Value: float64(i)}))
	}
	require.Len(t, m.Values(), historyCapacity)
	assert.Equal(t, 10.0, m.Values()[0])
}

func TestWatchQuitKey(t *testing.T) {
	_, cmd := send(t, New("x"), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
}
