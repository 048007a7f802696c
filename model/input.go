package model

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/miosa/osa-chat/style"
)

// InputModel is the compose bar with history navigation and slash-command
// completion.
//
// History navigation:
//   - Up arrow: walk backwards through sent messages and commands
//   - Down arrow: walk forwards (towards the present)
//
// Autocomplete:
//   - Tab when the buffer starts with "/" cycles through matching commands
type InputModel struct {
	ti         textinput.Model
	history    []string
	historyIdx int    // points one past the last entry when not navigating
	draft      string // buffer saved when history navigation starts

	commands   []string
	tabIdx     int // -1 = none
	tabMatches []string
}

// NewInput returns a ready-to-use InputModel.
func NewInput() InputModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message, or / for commands…"
	ti.CharLimit = 4096
	ti.Prompt = ""
	return InputModel{ti: ti, tabIdx: -1}
}

// SetCommands replaces the command list used for Tab autocomplete.
func (m *InputModel) SetCommands(cmds []string) {
	m.commands = cmds
}

// SetWidth sizes the text field to the terminal width.
func (m *InputModel) SetWidth(w int) {
	m.ti.Width = max(w-4, 10)
}

// Focus gives keyboard focus to the input.
func (m *InputModel) Focus() tea.Cmd {
	return m.ti.Focus()
}

// Blur removes keyboard focus from the input.
func (m *InputModel) Blur() {
	m.ti.Blur()
}

// Value returns the current raw text in the input field.
func (m InputModel) Value() string {
	return m.ti.Value()
}

// SetValue replaces the buffer and moves the cursor to its end.
func (m *InputModel) SetValue(s string) {
	m.ti.SetValue(s)
	m.ti.CursorEnd()
	m.resetTab()
}

// Reset clears the input field and autocomplete state.
func (m *InputModel) Reset() {
	m.historyIdx = len(m.history)
	m.draft = ""
	m.ti.SetValue("")
	m.resetTab()
}

// Submit records text in the history and clears the field. Call it only
// once the text has been accepted.
func (m *InputModel) Submit(text string) {
	if text != "" && (len(m.history) == 0 || m.history[len(m.history)-1] != text) {
		m.history = append(m.history, text)
	}
	m.Reset()
}

// History returns the submitted entries, oldest first.
func (m InputModel) History() []string { return m.history }

func (m *InputModel) resetTab() {
	m.tabIdx = -1
	m.tabMatches = nil
}

// Init satisfies tea.Model.
func (m InputModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update satisfies tea.Model. It intercepts Up/Down for history and Tab for
// autocomplete before delegating remaining keys to the underlying textinput.
func (m InputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.Type {
		case tea.KeyUp:
			return m.navigateHistory(-1), nil
		case tea.KeyDown:
			return m.navigateHistory(+1), nil
		case tea.KeyTab:
			return m.cycleComplete(), nil
		default:
			m.resetTab()
		}
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

// View renders the prompt character followed by the textinput view.
func (m InputModel) View() string {
	return style.PromptChar.Render("❯ ") + m.ti.View()
}

// Suggestions returns the commands matching the buffer while it holds a
// partial slash command.
func (m InputModel) Suggestions() []string {
	v := m.ti.Value()
	if !strings.HasPrefix(v, "/") || strings.Contains(v, " ") {
		return nil
	}
	return matchCommands(m.commands, v)
}

// navigateHistory moves the history cursor by delta (-1 = older, +1 = newer).
// Leaving the newest entry restores the draft the user was typing.
func (m InputModel) navigateHistory(delta int) InputModel {
	if len(m.history) == 0 {
		return m
	}
	if m.historyIdx == len(m.history) && delta < 0 {
		m.draft = m.ti.Value()
	}
	next := min(max(m.historyIdx+delta, 0), len(m.history))
	m.historyIdx = next

	if next == len(m.history) {
		m.ti.SetValue(m.draft)
	} else {
		m.ti.SetValue(m.history[next])
	}
	m.ti.CursorEnd()
	return m
}

// cycleComplete advances through autocomplete candidates.
func (m InputModel) cycleComplete() InputModel {
	current := m.ti.Value()
	if !strings.HasPrefix(current, "/") {
		return m
	}
	if m.tabIdx == -1 || m.tabMatches == nil {
		m.tabMatches = matchCommands(m.commands, current)
		if len(m.tabMatches) == 0 {
			return m
		}
		m.tabIdx = 0
	} else {
		m.tabIdx = (m.tabIdx + 1) % len(m.tabMatches)
	}
	m.ti.SetValue(m.tabMatches[m.tabIdx])
	m.ti.CursorEnd()
	return m
}

// matchCommands returns all commands that have prefix as a prefix.
func matchCommands(commands []string, prefix string) []string {
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
