/*
Package tui
File: tui.go
Description:
    The terminal client. One local session: stat bars, the 24-hour
    schedule with a cursor, and a real-time tick driving the game clock.
*/

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/everforgeworks/quarantine-life/internal/game"
	"github.com/everforgeworks/quarantine-life/internal/sim"
)

type model struct {
	ctx      context.Context
	manager  *game.Manager
	session  *game.Session
	snap     game.Snapshot
	interval time.Duration
	cursor   int // Selected schedule hour
	bar      progress.Model
	status   string
	width    int
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	labelStyle = lipgloss.NewStyle().
			Width(8).
			Foreground(lipgloss.Color("#AAAAAA"))

	slotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true)

	nowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500"))

	overStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	scheduleStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2)
)

// NewModel builds the model for one session. interval is the real time per
// game hour.
func NewModel(ctx context.Context, m *game.Manager, sess *game.Session, interval time.Duration) model {
	snap := sess.Snapshot()
	return model{
		ctx:      ctx,
		manager:  m,
		session:  sess,
		snap:     snap,
		interval: interval,
		cursor:   snap.Time.Hour,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
	}
}

type tickMsg time.Time

func (m model) scheduleTick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return m.scheduleTick()
}

// activityOrder is the cycle used by the left/right keys.
var activityOrder = func() []sim.ActivityID {
	acts := sim.Activities()
	ids := make([]sim.ActivityID, len(acts))
	for i, a := range acts {
		ids[i] = a.ID
	}
	return ids
}()

func cycle(current sim.ActivityID, step int) sim.ActivityID {
	if current == "" {
		current = sim.Idle
	}
	idx := 0
	for i, id := range activityOrder {
		if id == current {
			idx = i
			break
		}
	}
	n := len(activityOrder)
	return activityOrder[((idx+step)%n+n)%n]
}

func (m model) advance() model {
	res, err := m.manager.Tick(m.ctx, m.session)
	switch {
	case errors.Is(err, game.ErrPaused):
		return m
	case err != nil:
		m.status = err.Error()
		return m
	}
	m.snap = res.Snapshot
	if res.Report.Warning != nil {
		m.status = res.Report.Warning.Error()
	}
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		case "up", "k":
			m.cursor = (m.cursor + sim.HoursPerDay - 1) % sim.HoursPerDay
		case "down", "j":
			m.cursor = (m.cursor + 1) % sim.HoursPerDay
		case "left", "h", "right", "l":
			step := 1
			if s := msg.String(); s == "left" || s == "h" {
				step = -1
			}
			next := cycle(m.snap.Schedule[m.cursor], step)
			snap, err := m.session.Assign(m.cursor, next)
			if err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.snap = snap
			m.status = fmt.Sprintf("%02d:00 -> %s", m.cursor, next)
		case "t":
			m = m.advance()
		case " ", "p":
			if m.snap.Paused {
				m.snap = m.session.Resume()
				m.status = "resumed"
			} else {
				m.snap = m.session.Pause()
				m.status = "paused"
			}
		case "r":
			m.snap = m.session.Reset()
			m.status = "a fresh start"
		}
		return m, nil

	case tickMsg:
		m = m.advance()
		return m, m.scheduleTick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m model) statLine(name sim.StatName) string {
	v := m.snap.Stats.Get(name)
	if name == sim.Money {
		return labelStyle.Render(string(name)) + fmt.Sprintf(" $%d", v)
	}
	return labelStyle.Render(string(name)) + " " + m.bar.ViewAs(float64(v)/float64(sim.MaxStat)) + fmt.Sprintf(" %3d", v)
}

func (m model) View() string {
	var left strings.Builder
	left.WriteString(titleStyle.Render("Quarantine Life") + "\n\n")
	left.WriteString(m.snap.Time.String())
	if m.snap.Paused {
		left.WriteString("  (paused)")
	}
	left.WriteString("\n\n")
	for _, name := range sim.StatNames {
		left.WriteString(m.statLine(name) + "\n")
	}
	if m.snap.GameOver.Over {
		left.WriteString("\n" + overStyle.Render("GAME OVER: "+m.snap.GameOver.Reason) + "\n")
		left.WriteString(helpStyle.Render("press r to start again") + "\n")
	}
	if m.status != "" {
		left.WriteString("\n" + m.status + "\n")
	}

	var right strings.Builder
	for h := range sim.HoursPerDay {
		line := fmt.Sprintf("%02d:00 %s", h, m.snap.Schedule.At(h))
		switch {
		case h == m.cursor:
			line = selectedStyle.Render(line)
		case h == m.snap.Time.Hour:
			line = nowStyle.Render(line)
		default:
			line = slotStyle.Render(line)
		}
		right.WriteString(line + "\n")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, left.String(), "  ", scheduleStyle.Render(right.String()))
	help := helpStyle.Render("↑/↓ hour • ←/→ activity • t tick • space pause • r reset • q quit")
	return body + "\n" + help + "\n"
}

// Run starts the program and blocks until the player quits.
func Run(ctx context.Context, m *game.Manager, sess *game.Session, interval time.Duration) error {
	p := tea.NewProgram(NewModel(ctx, m, sess, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
