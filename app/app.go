// Package app is the terminal front end: a bubbletea model that mounts one
// chat engine, renders its snapshots and turns keystrokes into engine calls.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/miosa/osa-chat/attention"
	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/client"
	"github.com/miosa/osa-chat/engine"
	"github.com/miosa/osa-chat/markdown"
	"github.com/miosa/osa-chat/model"
	"github.com/miosa/osa-chat/msg"
	"github.com/miosa/osa-chat/style"
)

// Engine is the part of *engine.Engine the UI drives.
type Engine interface {
	Start(ctx context.Context) error
	Snapshot() *engine.Snapshot
	Events() <-chan engine.Event
	Dispatch(ctx context.Context, text string) error
	Reconnect(ctx context.Context) error
	Logout(ctx context.Context) error
	Close()
}

// HealthChecker reports whether the backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (*client.HealthResponse, error)
}

// SessionStore forgets the stored credentials after a logout.
type SessionStore interface {
	Clear() error
}

// Options wires a Model.
type Options struct {
	Engine   Engine
	Store    SessionStore
	Health   HealthChecker
	Username string
	Backend  string
	Version  string
	// Follow and NearBottomRows configure the attention controller.
	Follow         attention.Policy
	NearBottomRows int
	Embedder       model.Embedder
	Logger         zerolog.Logger
}

// Slash commands understood by the input bar.
const (
	cmdLogout    = "/logout"
	cmdReconnect = "/reconnect"
	cmdBottom    = "/bottom"
	cmdHelp      = "/help"
	cmdQuit      = "/quit"
	cmdExit      = "/exit"
)

var commands = []string{cmdBottom, cmdExit, cmdHelp, cmdLogout, cmdQuit, cmdReconnect}

const (
	rosterWidth    = 26
	minChatWidth   = 40
	requestTimeout = 15 * time.Second
	tickInterval   = time.Second
	healthRetry    = 5 * time.Second
)

// Model is the root bubbletea model.
type Model struct {
	banner model.BannerModel
	chat   model.ChatModel
	roster model.RosterModel
	input  model.InputModel
	status model.StatusModel
	toasts model.ToastsModel
	keys   KeyMap
	state  State
	engine Engine
	store  SessionStore
	health HealthChecker
	logger zerolog.Logger

	width, height int
	chatW, chatH  int
	hideRoster    bool
	ended         string // reason shown once the engine is gone
}

func New(opts Options) Model {
	ctl := attention.New(opts.NearBottomRows, opts.Follow)
	c := model.NewChat(80, 18, opts.Username, ctl)
	if opts.Embedder != nil {
		c.SetEmbedder(opts.Embedder)
	}
	in := model.NewInput()
	in.SetCommands(commands)
	in.Focus()
	m := Model{
		banner: model.NewBanner(opts.Username, opts.Backend, opts.Version),
		chat:   c,
		roster: model.NewRoster(opts.Username),
		input:  in,
		status: model.NewStatus(),
		toasts: model.NewToasts(),
		keys:   DefaultKeyMap(),
		state:  StateStarting,
		engine: opts.Engine,
		store:  opts.Store,
		health: opts.Health,
		logger: opts.Logger.With().Str("component", "ui").Logger(),
		width:  80,
		height: 24,
	}
	m.layout()
	return m
}

// State returns the application state.
func (m Model) State() State { return m.state }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.start(),
		m.checkHealth(),
		m.listen(),
		m.input.Init(),
		m.status.Init(),
		tick(),
		tea.WindowSize(),
	)
}

func (m Model) Update(raw tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.update(raw)
	next.layout()
	return next, cmd
}

func (m Model) update(raw tea.Msg) (Model, tea.Cmd) {
	switch v := raw.(type) {
	case tea.WindowSizeMsg:
		m.width = v.Width
		m.height = v.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(v)
	case tea.MouseMsg:
		return m.updateChat(v)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.status, cmd = m.status.Update(v)
		return m, cmd
	case msg.TickMsg:
		m.toasts.Tick()
		return m, tick()
	case msg.StartResult:
		return m.handleStart(v)
	case msg.HealthResult:
		return m.handleHealth(v)
	case msg.RetryHealth:
		if m.state == StateEnded {
			return m, nil
		}
		return m, m.checkHealth()
	case msg.EngineEvent:
		return m.handleEvent(v.Event)
	case msg.EngineClosed:
		m.sync()
		if m.state != StateEnded {
			m.end("Session ended.")
		}
		return m, nil
	case msg.DispatchResult:
		return m.handleDispatch(v)
	case msg.ReconnectResult:
		if v.Err != nil {
			m.toasts.Add(model.TopicConnection, model.ToastError, "Reconnect failed: "+errorText(v.Err))
		}
		return m, m.restartSpinner()
	case msg.LogoutResult:
		return m.handleLogout(v)
	}
	return m, nil
}

func (m Model) View() string {
	if m.state == StateEnded {
		return m.banner.View() + "\n" + style.Rule(m.width) + "\n\n  " +
			style.Bold.Render(m.ended) + "\n  " + style.Hint.Render("Press any key to exit.")
	}
	body := m.chat.View()
	if m.showRoster() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, m.roster.View())
	}
	sections := []string{m.banner.View(), style.Rule(m.width), body, style.Rule(m.width)}
	if m.toasts.HasToasts() {
		sections = append(sections, m.toasts.View(m.width))
	}
	sections = append(sections, m.status.View(), m.input.View())
	if s := m.input.Suggestions(); len(s) > 0 {
		sections = append(sections, style.Hint.Render("  "+strings.Join(s, "  ")))
	}
	return strings.Join(sections, "\n")
}

func (m Model) handleKey(k tea.KeyMsg) (Model, tea.Cmd) {
	if m.state == StateEnded {
		return m, tea.Quit
	}
	switch {
	case key.Matches(k, m.keys.Quit):
		return m.quit()
	case key.Matches(k, m.keys.QuitEOF):
		if m.input.Value() == "" {
			return m.quit()
		}
	case key.Matches(k, m.keys.Escape):
		m.input.Reset()
		return m, nil
	case key.Matches(k, m.keys.Submit):
		return m.submit(m.input.Value())
	case key.Matches(k, m.keys.Help):
		m.chat.AddNote(m.helpText())
		return m, nil
	case key.Matches(k, m.keys.Reconnect):
		return m, m.reconnect()
	case key.Matches(k, m.keys.ToggleRoster):
		m.hideRoster = !m.hideRoster
		return m, nil
	case key.Matches(k, m.keys.ScrollTop):
		m.chat.ScrollToTop()
		return m, nil
	case key.Matches(k, m.keys.ScrollBottom):
		m.chat.ScrollToLatest()
		return m, nil
	case key.Matches(k, m.keys.PageUp), key.Matches(k, m.keys.PageDown):
		return m.updateChat(k)
	}
	updated, cmd := m.input.Update(k)
	if in, ok := updated.(model.InputModel); ok {
		m.input = in
	}
	return m, cmd
}

func (m Model) updateChat(message tea.Msg) (Model, tea.Cmd) {
	updated, cmd := m.chat.Update(message)
	if c, ok := updated.(model.ChatModel); ok {
		m.chat = c
	}
	return m, cmd
}

// submit runs a slash command or dispatches text. The input is cleared for
// a message only when the engine accepted it.
func (m Model) submit(value string) (Model, tea.Cmd) {
	text := strings.TrimSpace(value)
	if text == "" {
		return m, nil
	}
	if !strings.HasPrefix(text, "/") {
		m.status.SetSending(true)
		return m, tea.Batch(m.dispatch(value), m.restartSpinner())
	}

	m.input.Submit(text)
	switch strings.Fields(text)[0] {
	case cmdQuit, cmdExit:
		return m.quit()
	case cmdHelp:
		m.chat.AddNote(m.helpText())
	case cmdBottom:
		m.chat.ScrollToLatest()
	case cmdReconnect:
		return m, m.reconnect()
	case cmdLogout:
		m.chat.AddNote("Logging out…")
		return m, m.logout()
	default:
		m.toasts.Add(model.TopicCommand, model.ToastWarning, "Unknown command "+text+" (try /help)")
	}
	return m, nil
}

func (m Model) handleStart(r msg.StartResult) (Model, tea.Cmd) {
	m.sync()
	switch {
	case r.Err == nil:
		m.state = StateChat
	case errors.Is(r.Err, chat.ErrUnauthenticated):
		m.end(signedOutReason(r.Err))
	case errors.Is(r.Err, engine.ErrClosed):
	default:
		m.state = StateChat
		m.chat.AddError("Could not connect: " + errorText(r.Err))
		m.chat.AddNote("Use /reconnect to try again.")
	}
	return m, nil
}

func (m Model) handleHealth(h msg.HealthResult) (Model, tea.Cmd) {
	if h.Err != nil {
		m.logger.Warn().Err(h.Err).Msg("health check failed")
		m.toasts.Add(model.TopicBackend, model.ToastWarning, "Backend unreachable, retrying in 5s")
		return m, tea.Tick(healthRetry, func(time.Time) tea.Msg { return msg.RetryHealth{} })
	}
	m.toasts.Clear(model.TopicBackend)
	m.banner.SetServer(h.Version)
	return m, nil
}

func (m Model) handleEvent(ev engine.Event) (Model, tea.Cmd) {
	m.sync()
	cmds := []tea.Cmd{m.listen()}
	if ev.Kind == engine.StateChanged {
		m.logger.Debug().Str("state", ev.State.String()).Msg("connection state")
		switch ev.State {
		case engine.Degraded:
			m.toasts.Add(model.TopicConnection, model.ToastWarning, "Connection lost, reconnecting…")
		case engine.Open:
			if m.state == StateChat {
				m.toasts.Add(model.TopicConnection, model.ToastInfo, "Connected")
			}
		case engine.Closed:
			if errors.Is(ev.Err, chat.ErrUnauthenticated) {
				m.end(signedOutReason(ev.Err))
				break
			}
			if ev.Err != nil {
				m.toasts.Add(model.TopicConnection, model.ToastError, "Disconnected: "+errorText(ev.Err))
			}
		}
		cmds = append(cmds, m.restartSpinner())
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleDispatch(r msg.DispatchResult) (Model, tea.Cmd) {
	m.status.SetSending(false)
	switch {
	case r.Err == nil:
		if m.input.Value() == r.Text {
			m.input.Submit(r.Text)
		}
	case errors.Is(r.Err, chat.ErrEmptyMessage):
	case errors.Is(r.Err, chat.ErrNotConnected):
		m.toasts.Add(model.TopicSend, model.ToastWarning, "Not connected. Message not sent.")
	default:
		m.toasts.Add(model.TopicSend, model.ToastError, "Send failed: "+errorText(r.Err))
	}
	return m, nil
}

func (m Model) handleLogout(r msg.LogoutResult) (Model, tea.Cmd) {
	if r.Err != nil {
		m.chat.AddError("Logout failed: " + errorText(r.Err))
		m.toasts.Add(model.TopicSession, model.ToastError, "Logout failed")
		return m, nil
	}
	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			m.logger.Error().Err(err).Msg("clear session")
		}
	}
	m.sync()
	m.end("Logged out.")
	return m, nil
}

func (m *Model) end(reason string) {
	m.state = StateEnded
	m.ended = reason
	m.input.Blur()
}

func (m Model) quit() (Model, tea.Cmd) {
	if m.engine != nil {
		m.engine.Close()
	}
	return m, tea.Quit
}

// sync copies the latest engine snapshot into the views.
func (m *Model) sync() {
	if m.engine == nil {
		return
	}
	s := m.engine.Snapshot()
	if s == nil {
		return
	}
	m.chat.Sync(s.Messages)
	m.roster.SetUsers(s.Users)
	m.status.SetSnapshot(s)
}

func (m Model) showRoster() bool {
	return !m.hideRoster && m.width-rosterWidth >= minChatWidth
}

// layout sizes the chat and roster to the space left by the fixed rows.
func (m *Model) layout() {
	reserved := 5 // header, two rules, status, input
	reserved += m.toasts.Len()
	if len(m.input.Suggestions()) > 0 {
		reserved++
	}
	h := max(m.height-reserved, 3)
	w := m.width
	if m.showRoster() {
		w -= rosterWidth
		m.roster.SetSize(rosterWidth, h)
	}
	m.banner.SetWidth(m.width)
	m.input.SetWidth(m.width)
	if w != m.chatW || h != m.chatH {
		m.chat.SetSize(w, h)
		m.chatW, m.chatH = w, h
	}
}

func (m Model) restartSpinner() tea.Cmd {
	if m.status.Busy() {
		return m.status.Init()
	}
	return nil
}

// -- engine commands --

func (m Model) start() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		return msg.StartResult{Err: e.Start(context.Background())}
	}
}

// listen waits for the next engine event. It is re-issued after each one.
func (m Model) listen() tea.Cmd {
	events := m.engine.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return msg.EngineClosed{}
		}
		return msg.EngineEvent{Event: ev}
	}
}

func (m Model) checkHealth() tea.Cmd {
	h := m.health
	if h == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := h.Health(ctx)
		if err != nil {
			return msg.HealthResult{Err: err}
		}
		return msg.HealthResult{Status: res.Status, Version: res.Version}
	}
}

func (m Model) dispatch(text string) tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return msg.DispatchResult{Text: text, Err: e.Dispatch(ctx, text)}
	}
}

func (m Model) reconnect() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return msg.ReconnectResult{Err: e.Reconnect(ctx)}
	}
}

func (m Model) logout() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return msg.LogoutResult{Err: e.Logout(ctx)}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return msg.TickMsg{} })
}

// signedOutReason tells a missing session apart from one the backend
// rejected.
func signedOutReason(err error) string {
	var ce *chat.ConnectionError
	if errors.As(err, &ce) {
		return "Session rejected by the server. Sign in again with --token and --username."
	}
	return "Not signed in. Provide a token and username with --token and --username."
}

func errorText(err error) string {
	var ce *chat.ConnectionError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}

func (m Model) helpText() string {
	return markdown.RenderWidth(helpMarkdown, max(m.chatW-2, 40))
}

const helpMarkdown = `## Commands

| Command | |
|---|---|
| ` + "`/help`" + ` | Show this help |
| ` + "`/bottom`" + ` | Jump to the latest message |
| ` + "`/reconnect`" + ` | Reopen the connection |
| ` + "`/logout`" + ` | Sign out and clear the stored session |
| ` + "`/quit`" + ` | Exit |

## Keys

| Key | |
|---|---|
| Enter | Send |
| Esc | Clear input |
| Up / Down | Input history |
| Tab | Complete a command |
| PgUp / PgDn | Scroll messages |
| Home / End | Oldest / latest message |
| Ctrl+O | Show or hide online users |
| Ctrl+R | Reconnect |
| F1 | Help |
| Ctrl+C | Quit |
`
