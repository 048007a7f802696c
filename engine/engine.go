// Package engine runs the realtime side of the chat client: it keeps one
// channel to the backend, reconciles inbound messages into the log, polls the
// presence roster and dispatches outbound messages.
//
// All mutable state (log, roster, handle, reconnect bookkeeping) is owned by a
// single reactor goroutine. Everything else talks to it through its inbox and
// reads immutable snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/metrics"
	"github.com/miosa/osa-chat/session"
)

const (
	DefaultPollInterval   = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultEventBuffer    = 256
)

var (
	// ErrClosed is returned by operations on an engine that has been closed.
	ErrClosed = errors.New("engine: closed")
	// ErrStarted is returned by a second call to Start.
	ErrStarted = errors.New("engine: already started")
	// ErrNotStarted is returned by Reconnect before Start.
	ErrNotStarted = errors.New("engine: not started")
	// ErrConnecting is returned by Reconnect while an open is in flight.
	ErrConnecting = errors.New("engine: connect already in progress")
)

// Backend is the HTTP side of the chat backend.
type Backend interface {
	RosterSource
	Logout(ctx context.Context, username string) error
}

// Config tunes an Engine. Zero fields take the defaults.
type Config struct {
	PollInterval   time.Duration
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	Reconnect      ReconnectPolicy
	EventBuffer    int
	Now            func() time.Time
}

// DefaultConfig returns the defaults, including an enabled reconnect
// supervisor.
func DefaultConfig() Config {
	return Config{
		PollInterval:   DefaultPollInterval,
		DialTimeout:    DefaultDialTimeout,
		RequestTimeout: DefaultRequestTimeout,
		Reconnect:      DefaultReconnectPolicy(),
		EventBuffer:    DefaultEventBuffer,
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.Reconnect = c.Reconnect.withDefaults()
	return c
}

// Snapshot is an immutable view of the engine's state. Its slices must not be
// modified.
type Snapshot struct {
	Username string
	Messages []chat.Message
	Users    []chat.User
	State    ConnState
	CanSend  bool
	// Attempt is the current reconnect attempt while Degraded.
	Attempt int
	// Err is the last connection error, cleared when the channel opens.
	Err error

	handle *Handle
}

// EventKind classifies engine events.
type EventKind int

const (
	MessageAppended EventKind = iota
	RosterReplaced
	StateChanged
)

func (k EventKind) String() string {
	switch k {
	case MessageAppended:
		return "message"
	case RosterReplaced:
		return "roster"
	default:
		return "state"
	}
}

// Event tells an observer that the snapshot changed. Events may be dropped
// when the observer falls behind; the snapshot is authoritative.
type Event struct {
	Kind    EventKind
	Message chat.Message // MessageAppended
	State   ConnState    // StateChanged
	Err     error        // StateChanged
}

// Engine is one mounted chat session.
type Engine struct {
	id         string
	session    session.Session
	transport  Transport
	backend    Backend
	cfg        Config
	logger     zerolog.Logger
	poller     *Poller
	dispatcher Dispatcher

	snap   atomic.Pointer[Snapshot]
	events chan Event
	inbox  chan event

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	done       chan struct{}
	stopped    chan struct{}

	mu        sync.Mutex
	started   bool
	closed    bool
	closeOnce sync.Once

	// loggingOut is set while a logout request is in flight. The backend may
	// drop the channel before it answers.
	loggingOut atomic.Bool

	// reactor-owned
	log     chat.Log
	roster  chat.Roster
	handle  *Handle
	connID  uint64
	state   ConnState
	attempt int
	lastErr error
	pending chan error
	retry   *time.Timer
}

// New builds an engine for sess. Nothing runs until Start.
func New(sess session.Session, transport Transport, backend Backend, cfg Config, logger zerolog.Logger) *Engine {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	logger = logger.With().Str("component", "engine").Str("engine_id", id).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		id:         id,
		session:    sess,
		transport:  transport,
		backend:    backend,
		cfg:        cfg,
		logger:     logger,
		poller:     NewPoller(backend, cfg.PollInterval, cfg.RequestTimeout, logger),
		dispatcher: Dispatcher{Now: cfg.Now},
		events:     make(chan Event, cfg.EventBuffer),
		inbox:      make(chan event, 64),
		lifeCtx:    ctx,
		lifeCancel: cancel,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	e.snap.Store(&Snapshot{Username: sess.Username})
	return e
}

// ID identifies this engine instance in logs.
func (e *Engine) ID() string { return e.id }

// Session returns the session the engine runs under.
func (e *Engine) Session() session.Session { return e.session }

// Snapshot returns the latest published state.
func (e *Engine) Snapshot() *Snapshot { return e.snap.Load() }

// Events returns the change notifications. The channel is closed after Close.
func (e *Engine) Events() <-chan Event { return e.events }

// Start validates the session, starts the reactor and the presence poller,
// and opens the channel once. A failed open returns a *chat.ConnectionError
// and leaves the engine running in state Closed; it is not retried. When the
// backend rejects the session the error also wraps chat.ErrUnauthenticated.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.session.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return ErrClosed
	case e.started:
		e.mu.Unlock()
		return ErrStarted
	}
	e.started = true
	e.logger.Info().Str("username", e.session.Username).Msg("engine starting")
	go e.run()
	err := e.poller.Start(e.deliverRoster)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.open(ctx, kindInitial)
}

// Reconnect re-opens the channel after it closed. It returns nil at once when
// the channel is already open and cancels a pending automatic retry.
func (e *Engine) Reconnect(ctx context.Context) error {
	e.mu.Lock()
	started, closed := e.started, e.closed
	e.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case !started:
		return ErrNotStarted
	}
	return e.open(ctx, kindManual)
}

// Dispatch sends text as the session user on the live channel. The UI should
// clear its input only when Dispatch returns nil.
func (e *Engine) Dispatch(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.dispatcher.Dispatch(e.Snapshot().handle, e.session.Username, text)
}

// Logout asks the backend to end the session. On success the engine is torn
// down; on failure it keeps running and a *chat.LogoutError is returned. A
// channel lost while the request is in flight is not reconnected.
func (e *Engine) Logout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	e.loggingOut.Store(true)
	if err := e.backend.Logout(ctx, e.session.Username); err != nil {
		e.loggingOut.Store(false)
		var le *chat.LogoutError
		if !errors.As(err, &le) {
			err = &chat.LogoutError{Err: err}
		}
		e.logger.Warn().Err(err).Msg("logout failed")
		return err
	}
	e.logger.Info().Msg("logged out")
	e.Close()
	return nil
}

// Close tears the engine down: the poller is stopped, the channel closed and
// the log and roster discarded. No frame or poll result is applied after
// Close returns. Close is idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		started := e.started
		e.mu.Unlock()

		e.lifeCancel()
		close(e.done)
		if started {
			<-e.stopped
		} else {
			close(e.events)
		}
		e.poller.Stop()
		e.logger.Info().Msg("engine closed")
	})
}

func (e *Engine) deliverRoster(users []chat.User) {
	e.post(rosterEvent{users: users})
}

// post hands ev to the reactor. It reports false once the engine is closing.
func (e *Engine) post(ev event) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.inbox <- ev:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		metrics.EventsDropped.Inc()
		e.logger.Debug().Stringer("kind", ev.Kind).Msg("event dropped, consumer is behind")
	}
}

func (e *Engine) publish() {
	e.snap.Store(&Snapshot{
		Username: e.session.Username,
		Messages: e.log.View(),
		Users:    e.roster.View(),
		State:    e.state,
		CanSend:  e.handle.CanSend(),
		Attempt:  e.attempt,
		Err:      e.lastErr,
		handle:   e.handle,
	})
}

// run is the reactor loop.
func (e *Engine) run() {
	defer close(e.stopped)
	defer e.teardown()
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.inbox:
			select {
			case <-e.done:
				return
			default:
			}
			e.apply(ev)
		}
	}
}

func (e *Engine) apply(ev event) {
	switch ev := ev.(type) {
	case frameEvent:
		e.onFrame(ev)
	case closedEvent:
		e.onChannelClosed(ev)
	case openRequest:
		e.onOpenRequest(ev)
	case dialResult:
		e.onDialResult(ev)
	case retryEvent:
		e.onRetry(ev)
	case rosterEvent:
		e.roster.Replace(ev.users)
		e.publish()
		e.emit(Event{Kind: RosterReplaced})
	default:
		e.logger.Error().Str("event", fmt.Sprintf("%T", ev)).Msg("unknown reactor event")
	}
}

func (e *Engine) onFrame(ev frameEvent) {
	if ev.conn != e.connID || e.state != Open {
		metrics.FramesDropped.WithLabelValues("stale").Inc()
		return
	}
	f, err := chat.DecodeFrame(ev.data)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		e.logger.Warn().Err(err).Int("bytes", len(ev.data)).Msg("dropping malformed frame")
		return
	}
	switch f := f.(type) {
	case chat.MessageFrame:
		if !e.log.Merge(f.Message) {
			metrics.DuplicateMessages.Inc()
			return
		}
		e.publish()
		e.emit(Event{Kind: MessageAppended, Message: f.Message})
	}
}

// teardown runs on the reactor goroutine as it exits.
func (e *Engine) teardown() {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	if err := e.handle.close(); err != nil {
		e.logger.Debug().Err(err).Msg("close channel")
	}
	e.handle = nil
	e.connID++
	e.state = Closed
	e.attempt = 0
	e.log.Reset()
	e.roster.Reset()
	if e.pending != nil {
		e.pending <- ErrClosed
		e.pending = nil
	}
	e.publish()
	close(e.events)
}
