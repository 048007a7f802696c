package model

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/miosa/osa-chat/style"
)

// BannerModel renders the one-line header:
//
//	OSA Chat · Welcome alice · localhost:8080
type BannerModel struct {
	username string
	backend  string
	version  string
	server   string
	width    int
}

// NewBanner returns a header for username connected to backend.
func NewBanner(username, backend, version string) BannerModel {
	return BannerModel{username: username, backend: backend, version: version}
}

// SetWidth sets the width the header is padded to.
func (m *BannerModel) SetWidth(w int) {
	m.width = w
}

// SetServer records the version the backend reported in its health check.
func (m *BannerModel) SetServer(version string) {
	m.server = version
}

// Welcome returns the greeting shown in the header.
func (m BannerModel) Welcome() string {
	return "Welcome " + m.username
}

// View renders the header line with the version right-aligned.
func (m BannerModel) View() string {
	muted := lipgloss.NewStyle().Foreground(style.Muted)
	sep := muted.Render(" · ")

	left := style.HeaderTitle.Render("OSA Chat") + sep +
		style.Bold.Render(m.Welcome()) + sep +
		style.HeaderDetail.Render(m.backend)
	if m.server != "" {
		left += style.HeaderDetail.Render(" (server " + m.server + ")")
	}
	if m.version == "" || m.width <= 0 {
		return left
	}
	right := style.HeaderDetail.Render(m.version)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return left
	}
	return left + lipgloss.NewStyle().Width(gap).Render("") + right
}
