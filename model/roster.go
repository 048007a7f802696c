package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/style"
)

const emptyRoster = "No users online."

// RosterModel is the presence sidebar. It shows whatever the last successful
// poll returned, in the backend's order.
type RosterModel struct {
	users  []chat.User
	self   string
	width  int
	height int
}

// NewRoster returns an empty sidebar for the session user self.
func NewRoster(self string) RosterModel {
	return RosterModel{self: self, width: 24}
}

// SetUsers replaces the displayed roster.
func (m *RosterModel) SetUsers(users []chat.User) {
	m.users = users
}

// Len returns the number of users shown.
func (m RosterModel) Len() int { return len(m.users) }

// SetSize sets the sidebar's outer dimensions.
func (m *RosterModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Width returns the sidebar's outer width.
func (m RosterModel) Width() int { return m.width }

// View renders the sidebar. Names longer than the column are truncated.
func (m RosterModel) View() string {
	inner := max(m.width-2, 4)
	lines := []string{style.RosterTitle.Render(fmt.Sprintf("Online (%d)", len(m.users))), ""}
	if len(m.users) == 0 {
		lines = append(lines, style.Faint.Render(emptyRoster))
	}
	for _, u := range m.users {
		own := u.Username == m.self
		name := truncate(u.Username, inner-4)
		if own {
			name = style.RosterSelf.Render(name + " (you)")
		} else {
			name = style.RosterUser.Render(name)
		}
		lines = append(lines, style.Avatar(u.Initial(), own)+" "+name)
	}
	s := style.RosterBorder.Width(inner)
	if m.height > 0 {
		s = s.Height(m.height)
		if len(lines) > m.height {
			lines = lines[:m.height]
		}
	}
	return s.Render(strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	if n <= 1 || lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r)) > n-1 {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
