// Package style holds the palette and lipgloss styles shared by every view.
package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors, dark theme by default. SetTheme replaces them.
var (
	Primary   lipgloss.TerminalColor = lipgloss.Color("#7C3AED")
	Secondary lipgloss.TerminalColor = lipgloss.Color("#06B6D4")
	Success   lipgloss.TerminalColor = lipgloss.Color("#22C55E")
	Warning   lipgloss.TerminalColor = lipgloss.Color("#F59E0B")
	Error     lipgloss.TerminalColor = lipgloss.Color("#EF4444")
	Muted     lipgloss.TerminalColor = lipgloss.Color("#6B7280")
	Dim       lipgloss.TerminalColor = lipgloss.Color("#374151")
	Border    lipgloss.TerminalColor = lipgloss.Color("#4B5563")

	// Own colors messages written by the session user, Other everyone else.
	Own   lipgloss.TerminalColor = lipgloss.Color("#06B6D4")
	Other lipgloss.TerminalColor = lipgloss.Color("#A78BFA")
)

var (
	Bold      lipgloss.Style
	Faint     lipgloss.Style
	ErrorText lipgloss.Style
	Hint      lipgloss.Style

	// Header
	HeaderTitle  lipgloss.Style
	HeaderDetail lipgloss.Style

	// Prompt
	PromptChar lipgloss.Style

	// Chat
	OwnLabel   lipgloss.Style
	OtherLabel lipgloss.Style
	Timestamp  lipgloss.Style
	Link       lipgloss.Style
	Preview    lipgloss.Style
	NewBadge   lipgloss.Style

	// Roster sidebar
	RosterBorder lipgloss.Style
	RosterTitle  lipgloss.Style
	RosterSelf   lipgloss.Style
	RosterUser   lipgloss.Style

	// Status line
	StatusBar      lipgloss.Style
	StatusOpen     lipgloss.Style
	StatusPending  lipgloss.Style
	StatusDegraded lipgloss.Style
	StatusClosed   lipgloss.Style
	SpinnerStyle   lipgloss.Style

	Separator lipgloss.Style
)

func init() { build() }

func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Faint = lipgloss.NewStyle().Foreground(Muted)
	ErrorText = lipgloss.NewStyle().Foreground(Error).Bold(true)
	Hint = lipgloss.NewStyle().Foreground(Dim)

	HeaderTitle = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)
	HeaderDetail = lipgloss.NewStyle().
		Foreground(Muted)

	PromptChar = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)

	OwnLabel = lipgloss.NewStyle().
		Foreground(Own).
		Bold(true)
	OtherLabel = lipgloss.NewStyle().
		Foreground(Other).
		Bold(true)
	Timestamp = lipgloss.NewStyle().
		Foreground(Muted)
	Link = lipgloss.NewStyle().
		Foreground(Secondary).
		Underline(true)
	Preview = lipgloss.NewStyle().
		Foreground(Muted).
		Italic(true)
	NewBadge = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)

	RosterBorder = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(Border).
		PaddingLeft(1)
	RosterTitle = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)
	RosterSelf = lipgloss.NewStyle().
		Foreground(Own)
	RosterUser = lipgloss.NewStyle().
		Foreground(Other)

	StatusBar = lipgloss.NewStyle().
		Foreground(Muted).
		PaddingLeft(1)
	StatusOpen = lipgloss.NewStyle().Foreground(Success)
	StatusPending = lipgloss.NewStyle().Foreground(Secondary)
	StatusDegraded = lipgloss.NewStyle().Foreground(Warning)
	StatusClosed = lipgloss.NewStyle().Foreground(Error)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

	Separator = lipgloss.NewStyle().Foreground(Dim)
}

// Avatar renders the one-letter badge shown in place of a profile picture.
func Avatar(initial string, own bool) string {
	c := Other
	if own {
		c = Own
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#111827")).
		Background(c).
		Bold(true).
		Render(" " + initial + " ")
}

// Rule renders a horizontal separator of the given width.
func Rule(width int) string {
	if width <= 0 {
		return ""
	}
	return Separator.Render(strings.Repeat("─", width))
}
