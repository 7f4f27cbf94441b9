package tui

import (
	"context"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everforgeworks/quarantine-life/internal/game"
	"github.com/everforgeworks/quarantine-life/internal/sim"
	"github.com/everforgeworks/quarantine-life/internal/store"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	ctx := context.Background()
	m := game.NewManager(store.NewMemory(), log.New(io.Discard))
	sess, err := m.Open(ctx, "tui")
	require.NoError(t, err)
	return NewModel(ctx, m, sess, time.Second)
}

func press(t *testing.T, m model, key string) model {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(model)
}

func TestCycleWraps(t *testing.T) {
	first := activityOrder[0]
	last := activityOrder[len(activityOrder)-1]
	assert.Equal(t, last, cycle(first, -1))
	assert.Equal(t, first, cycle(last, 1))
	assert.Equal(t, cycle(sim.Idle, 1), cycle("", 1))
}

func TestAssignAndTick(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "down") // hour 1

	// Cycle until the selected slot holds "work".
	for range activityOrder {
		if m.snap.Schedule[1] == sim.Work {
			break
		}
		m = press(t, m, "right")
	}
	require.Equal(t, sim.Work, m.snap.Schedule[1])

	m = press(t, m, "t")
	assert.Equal(t, 1, m.snap.Time.Hour)
	assert.Equal(t, 60, m.snap.Stats.Money)
	assert.Contains(t, m.View(), "Day 1, 01:00")
}

func TestPauseBlocksTimerTicks(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, " ")
	require.True(t, m.snap.Paused)

	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(model)
	assert.NotNil(t, cmd, "timer keeps running while paused")
	assert.Equal(t, 0, m.snap.Time.Hour)
	assert.Contains(t, m.View(), "(paused)")

	m = press(t, m, "p")
	assert.False(t, m.snap.Paused)
	next, _ = m.Update(tickMsg(time.Now()))
	assert.Equal(t, 1, next.(model).snap.Time.Hour)
}

func TestResetAfterGameOver(t *testing.T) {
	m := newTestModel(t)
	m.manager.Apply(m.ctx, m.session, sim.Effect{sim.Health: -100}, "test")
	m = press(t, m, "t")
	require.True(t, m.snap.GameOver.Over)
	assert.Contains(t, m.View(), "GAME OVER")

	m = press(t, m, "r")
	assert.False(t, m.snap.GameOver.Over)
	assert.Equal(t, sim.DefaultStats(), m.snap.Stats)
}

func TestCursorWraps(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, "up")
	assert.Equal(t, 23, m.cursor)
	m = press(t, m, "down")
	assert.Equal(t, 0, m.cursor)
}
