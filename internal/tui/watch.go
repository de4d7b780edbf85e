// Package tui renders the live capture transcript in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/textgrab/textgrab/internal/model"
	"github.com/textgrab/textgrab/internal/orchestrator"
)

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const defaultMaxLines = 500

// TUI runs the interactive capture transcript.
type TUI struct {
	Orchestrator *orchestrator.Orchestrator
	PID          uint32
	MaxLines     int // transcript scrollback, 0 selects the default
}

type eventMsg struct {
	ev model.Event
	ok bool
}

// watchModel implements tea.Model.
type watchModel struct {
	orch     *orchestrator.Orchestrator
	pid      uint32
	maxLines int

	lines     []string
	textCount int
	lastState string

	vp    viewport.Model
	ready bool
	width int
}

func (t *TUI) Run(ctx context.Context) error {
	maxLines := t.MaxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	m := watchModel{
		orch:     t.Orchestrator,
		pid:      t.PID,
		maxLines: maxLines,
	}
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m watchModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.orch.Events()
		return eventMsg{ev: ev, ok: ok}
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		// One line for the title, one for the status bar.
		h := msg.Height - 2
		if h < 1 {
			h = 1
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = h
		}
		m.vp.SetContent(strings.Join(m.lines, "\n"))
		m.vp.GotoBottom()
		return m, nil

	case eventMsg:
		if !msg.ok {
			return m, tea.Quit
		}
		// Events from superseded sessions are stale.
		if msg.ev.SessionID == m.orch.SessionID() {
			m.apply(msg.ev)
			if m.ready {
				m.vp.SetContent(strings.Join(m.lines, "\n"))
				m.vp.GotoBottom()
			}
		}
		return m, m.waitForEvent()
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *watchModel) apply(ev model.Event) {
	switch {
	case ev.IsText():
		m.textCount++
		line := textStyle.Render(ev.Text.Text)
		meta := string(ev.Text.Source)
		if ev.Text.Label != "" {
			meta += "/" + ev.Text.Label
		}
		m.lines = append(m.lines, fmt.Sprintf("%s %s",
			labelStyle.Render(fmt.Sprintf("[%s]", meta)), line))
	case ev.IsStatus():
		m.lastState = ev.Status.Message
		m.lines = append(m.lines, statusStyle.Render("· "+ev.Status.Message))
	}
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}
}

func (m watchModel) View() string {
	if !m.ready {
		return "starting capture..."
	}
	title := titleStyle.Render(fmt.Sprintf("textgrab: pid %d", m.pid))
	bar := barStyle.Render(fmt.Sprintf("%d texts · %s · q to quit",
		m.textCount, m.statusSummary()))
	return title + "\n" + m.vp.View() + "\n" + bar
}

func (m watchModel) statusSummary() string {
	if m.lastState == "" {
		return "capturing"
	}
	return m.lastState
}
