package model

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/miosa/osa-chat/engine"
	"github.com/miosa/osa-chat/style"
)

// StatusModel renders the bottom status line: connection state, reconnect
// progress and the last connection error.
//
//	● connected · 3 online
//	⠋ reconnecting (attempt 2) · dial tcp: connection refused
//	✘ disconnected · /reconnect to retry
type StatusModel struct {
	spinner spinner.Model
	state   engine.ConnState
	attempt int
	err     error
	online  int
	sending bool
}

// NewStatus returns a StatusModel in the Connecting state.
func NewStatus() StatusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = style.SpinnerStyle
	return StatusModel{spinner: sp, state: engine.Connecting}
}

// SetSnapshot copies the connection fields of an engine snapshot.
func (m *StatusModel) SetSnapshot(s *engine.Snapshot) {
	if s == nil {
		return
	}
	m.state = s.State
	m.attempt = s.Attempt
	m.err = s.Err
	m.online = len(s.Users)
}

// SetSending marks a dispatch as in flight.
func (m *StatusModel) SetSending(sending bool) {
	m.sending = sending
}

// State returns the connection state last shown.
func (m StatusModel) State() engine.ConnState { return m.state }

// Busy reports whether the spinner should animate.
func (m StatusModel) Busy() bool {
	return m.sending || m.state == engine.Connecting || m.state == engine.Degraded
}

// Init starts the spinner.
func (m StatusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update advances the spinner while busy. Ticks stop when idle and are
// restarted by Init.
func (m StatusModel) Update(message tea.Msg) (StatusModel, tea.Cmd) {
	if _, ok := message.(spinner.TickMsg); !ok || !m.Busy() {
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(message)
	return m, cmd
}

// View renders the status line.
func (m StatusModel) View() string {
	var line string
	switch m.state {
	case engine.Open:
		line = style.StatusOpen.Render("● connected")
		if m.sending {
			line += " " + m.spinner.View() + style.StatusBar.UnsetPaddingLeft().Render(" sending")
		}
	case engine.Connecting:
		line = m.spinner.View() + style.StatusPending.Render(" connecting")
	case engine.Degraded:
		line = m.spinner.View() + style.StatusDegraded.Render(fmt.Sprintf(" reconnecting (attempt %d)", m.attempt))
	default:
		line = style.StatusClosed.Render("✘ disconnected")
	}
	if m.err != nil && m.state != engine.Open {
		line += style.Faint.Render(" · " + m.err.Error())
	}
	if m.state == engine.Closed {
		line += style.Hint.Render(" · /reconnect to retry")
	}
	if m.state == engine.Open {
		line += style.Faint.Render(fmt.Sprintf(" · %d online", m.online))
	}
	return style.StatusBar.Render(line)
}
