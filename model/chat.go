package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/miosa/osa-chat/attention"
	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/segment"
	"github.com/miosa/osa-chat/style"
)

const (
	emptyLog         = "No messages yet."
	newMessagesLabel = "↓ Jump to latest messages (End)"
)

// Embedder produces a one-line preview for a link found in a message. An
// empty result suppresses the preview.
type Embedder interface {
	Preview(rawURL string) string
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(rawURL string) string

func (f EmbedderFunc) Preview(rawURL string) string { return f(rawURL) }

// HostPreview shows the host a link points at.
var HostPreview = EmbedderFunc(func(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
})

type noteLevel int

const (
	noteInfo noteLevel = iota
	noteWarning
	noteError
)

// entry is either a log message or a local note. Notes are never sent and
// are not part of the engine's log.
type entry struct {
	isMessage bool
	message   chat.Message
	note      string
	level     noteLevel
}

// ChatModel is a scrollable viewport over the message log. Scrolling on new
// messages is decided by an attention.Controller fed with row metrics.
type ChatModel struct {
	vp        viewport.Model
	attention *attention.Controller
	embedder  Embedder
	self      string
	entries   []entry
	shown     int // log messages currently in entries
	width     int
	height    int
}

// NewChat constructs a ChatModel sized to width x height for the session
// user self. A nil controller follows every append.
func NewChat(width, height int, self string, ctl *attention.Controller) ChatModel {
	if ctl == nil {
		ctl = attention.New(attention.DefaultThreshold, attention.FollowAlways)
	}
	m := ChatModel{
		vp:        viewport.New(width, max(height-1, 1)),
		attention: ctl,
		embedder:  HostPreview,
		self:      self,
		width:     width,
		height:    height,
	}
	m.vp.SetContent(m.renderAll())
	return m
}

// SetEmbedder replaces the link preview source. Nil disables previews.
func (m *ChatModel) SetEmbedder(e Embedder) {
	m.embedder = e
	m.vp.SetContent(m.renderAll())
}

// Sync brings the view in line with the log snapshot and reports how many
// messages were appended. The log only grows between resets, so a shorter
// snapshot means the log was discarded.
func (m *ChatModel) Sync(log []chat.Message) int {
	if len(log) < m.shown {
		m.dropMessages()
	}
	added := log[m.shown:]
	if len(added) == 0 {
		return 0
	}
	before := m.metrics()
	for _, msg := range added {
		m.entries = append(m.entries, entry{isMessage: true, message: msg})
	}
	m.shown = len(log)

	follow := m.attention.OnAppend(before)
	m.vp.SetContent(m.renderAll())
	if follow {
		m.vp.GotoBottom()
		m.attention.OnScroll(m.metrics())
	}
	return len(added)
}

// AddNote appends a local informational line and scrolls to it.
func (m *ChatModel) AddNote(text string) { m.addNote(text, noteInfo) }

// AddWarning appends a local warning line.
func (m *ChatModel) AddWarning(text string) { m.addNote(text, noteWarning) }

// AddError appends a local error line.
func (m *ChatModel) AddError(text string) { m.addNote(text, noteError) }

func (m *ChatModel) addNote(text string, level noteLevel) {
	m.entries = append(m.entries, entry{note: text, level: level})
	m.vp.SetContent(m.renderAll())
	m.ScrollToLatest()
}

func (m *ChatModel) dropMessages() {
	notes := m.entries[:0]
	for _, e := range m.entries {
		if !e.isMessage {
			notes = append(notes, e)
		}
	}
	m.entries = notes
	m.shown = 0
	m.vp.SetContent(m.renderAll())
	m.ScrollToLatest()
}

// ScrollToLatest jumps to the newest entry and hides the affordance.
func (m *ChatModel) ScrollToLatest() {
	m.vp.GotoBottom()
	m.attention.ScrollToLatest()
	m.attention.OnScroll(m.metrics())
}

// ScrollToTop jumps to the oldest entry.
func (m *ChatModel) ScrollToTop() {
	m.vp.GotoTop()
	m.attention.OnScroll(m.metrics())
}

// HasNewMessages reports whether the "new messages" affordance is showing.
func (m ChatModel) HasNewMessages() bool {
	return m.attention.Affordance() == attention.Visible
}

// AtBottom reports whether the newest line is visible.
func (m ChatModel) AtBottom() bool { return m.vp.AtBottom() }

// SetSize resizes the underlying viewport. The last row is kept for the
// new-messages affordance.
func (m *ChatModel) SetSize(width, height int) {
	atBottom := m.vp.AtBottom()
	m.width = width
	m.height = height
	m.vp.Width = width
	m.vp.Height = max(height-1, 1)
	m.vp.SetContent(m.renderAll())
	if atBottom {
		m.vp.GotoBottom()
	}
	m.attention.OnScroll(m.metrics())
}

// Init satisfies tea.Model.
func (m ChatModel) Init() tea.Cmd {
	return nil
}

// Update forwards keyboard and mouse events to the viewport and reports the
// resulting scroll position to the attention controller.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	m.attention.OnScroll(m.metrics())
	return m, cmd
}

// View returns the viewport followed by the affordance row.
func (m ChatModel) View() string {
	badge := ""
	if m.HasNewMessages() {
		badge = lipgloss.PlaceHorizontal(m.width, lipgloss.Center, style.NewBadge.Render(newMessagesLabel))
	}
	return m.vp.View() + "\n" + badge
}

func (m ChatModel) metrics() attention.Metrics {
	return attention.Metrics{
		ScrollHeight: m.vp.TotalLineCount(),
		ScrollTop:    m.vp.YOffset,
		ClientHeight: m.vp.Height,
	}
}

func (m ChatModel) renderAll() string {
	if len(m.entries) == 0 {
		return style.Faint.Render("  " + emptyLog)
	}
	var sb strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		if e.isMessage {
			sb.WriteString(m.renderMessage(e.message))
		} else {
			sb.WriteString(renderNote(e))
		}
	}
	return sb.String()
}

// renderMessage draws the header line (avatar, author, time), the body with
// links highlighted, and one preview line per link. The session user's
// messages are right-aligned.
func (m ChatModel) renderMessage(msg chat.Message) string {
	own := msg.Username == m.self
	label := style.OtherLabel.Render(msg.Username)
	if own {
		label = style.OwnLabel.Render("You")
	}
	header := style.Avatar(msg.Initial(), own) + " " + label + " " +
		style.Timestamp.Render(time.UnixMilli(msg.Timestamp).Format("15:04"))

	segs := segment.Split(msg.Text)
	lines := []string{header, renderSegments(segs)}
	if m.embedder != nil {
		for _, link := range segment.Links(segs) {
			if p := m.embedder.Preview(link); p != "" {
				lines = append(lines, style.Preview.Render("↳ "+p))
			}
		}
	}
	block := strings.Join(lines, "\n")
	if m.width <= 0 {
		return block
	}
	s := lipgloss.NewStyle().Width(m.width)
	if own {
		s = s.Align(lipgloss.Right)
	}
	return s.Render(block)
}

func renderSegments(segs []segment.Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Kind == segment.Link {
			sb.WriteString(style.Link.Render(s.Text))
		} else {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

func renderNote(e entry) string {
	switch e.level {
	case noteWarning:
		return lipgloss.NewStyle().Foreground(style.Warning).Render("⚠ " + e.note)
	case noteError:
		return style.ErrorText.Render("✘ " + e.note)
	default:
		return style.Faint.Render(e.note)
	}
}
