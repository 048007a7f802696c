package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/metrics"
)

// ReconnectPolicy configures the supervisor that re-opens a channel lost
// while Open. MaxAttempts of 0 disables it and a lost channel stays Closed.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Delay returns the wait before the given 1-based attempt:
// BaseDelay·2^(attempt-1), capped at MaxDelay.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

type openKind int

const (
	kindInitial openKind = iota
	kindManual
	kindRetry
)

func (k openKind) String() string {
	switch k {
	case kindManual:
		return "manual"
	case kindRetry:
		return "reconnect"
	default:
		return "initial"
	}
}

// Reactor inbox events. conn is the connection id the event belongs to.
type event any

type frameEvent struct {
	conn uint64
	data []byte
}

type closedEvent struct {
	conn uint64
	err  error
}

type openRequest struct {
	ctx   context.Context
	kind  openKind
	reply chan error
}

type dialResult struct {
	conn uint64
	kind openKind
	ch   chat.Channel
	err  error
}

type retryEvent struct {
	conn uint64
}

type rosterEvent struct {
	users []chat.User
}

// open asks the reactor to open a channel and waits for the outcome.
func (e *Engine) open(ctx context.Context, kind openKind) error {
	reply := make(chan error, 1)
	if !e.post(openRequest{ctx: ctx, kind: kind, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

func (e *Engine) onOpenRequest(req openRequest) {
	switch e.state {
	case Open:
		req.reply <- nil
		return
	case Connecting:
		req.reply <- ErrConnecting
		return
	}
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.attempt = 0
	e.pending = req.reply
	e.beginDial(req.ctx, req.kind)
}

// beginDial replaces the handle with a fresh Connecting one and dials on a
// separate goroutine. A retry keeps the engine Degraded while it dials.
func (e *Engine) beginDial(reqCtx context.Context, kind openKind) {
	_ = e.handle.close()
	e.connID++
	id := e.connID
	e.handle = newHandle(id)
	if kind != kindRetry {
		e.state = Connecting
	}
	e.publish()
	e.emit(Event{Kind: StateChanged, State: e.state, Err: e.lastErr})

	dctx, cancel := context.WithTimeout(e.lifeCtx, e.cfg.DialTimeout)
	stop := func() bool { return false }
	if reqCtx != nil {
		stop = context.AfterFunc(reqCtx, cancel)
	}
	e.logger.Debug().Uint64("conn", id).Stringer("kind", kind).Msg("dialing")
	go func() {
		defer cancel()
		defer stop()
		ch, err := e.transport.Dial(dctx, e.session)
		if err == nil && ch == nil {
			err = errors.New("transport returned no channel")
		}
		if !e.post(dialResult{conn: id, kind: kind, ch: ch, err: err}) && ch != nil {
			_ = ch.Close()
		}
	}()
}

func (e *Engine) onDialResult(ev dialResult) {
	if ev.conn != e.connID || e.handle == nil {
		if ev.ch != nil {
			_ = ev.ch.Close()
		}
		return
	}
	if ev.err != nil {
		err := connectionError(ev.err)
		metrics.ConnectAttempts.WithLabelValues(ev.kind.String(), "error").Inc()
		e.logger.Warn().Err(err).Stringer("kind", ev.kind).Int("attempt", e.attempt).Msg("open failed")
		_ = e.handle.close()
		e.handle = nil
		e.lastErr = err
		rejected := errors.Is(err, chat.ErrUnauthenticated)
		if rejected {
			e.logger.Warn().Msg("session rejected by backend")
		}
		if ev.kind == kindRetry && !rejected && e.attempt < e.cfg.Reconnect.MaxAttempts {
			e.scheduleRetry()
		} else {
			e.state = Closed
			e.attempt = 0
			e.reply(err)
		}
		e.publish()
		e.emit(Event{Kind: StateChanged, State: e.state, Err: err})
		return
	}

	if !e.handle.attach(ev.ch) {
		_ = ev.ch.Close()
		return
	}
	metrics.ConnectAttempts.WithLabelValues(ev.kind.String(), "ok").Inc()
	e.logger.Info().Uint64("conn", ev.conn).Stringer("kind", ev.kind).Msg("channel open")
	e.state = Open
	e.attempt = 0
	e.lastErr = nil
	go e.readLoop(ev.conn, ev.ch)
	e.reply(nil)
	e.publish()
	e.emit(Event{Kind: StateChanged, State: Open})
}

func (e *Engine) onChannelClosed(ev closedEvent) {
	if ev.conn != e.connID || e.state != Open {
		return
	}
	_ = e.handle.close()
	e.handle = nil
	if e.loggingOut.Load() {
		e.logger.Info().Msg("channel closed during logout")
		e.state = Closed
		e.lastErr = nil
		e.publish()
		e.emit(Event{Kind: StateChanged, State: Closed})
		return
	}
	e.lastErr = fmt.Errorf("channel closed: %w", ev.err)
	if e.cfg.Reconnect.MaxAttempts > 0 {
		e.logger.Warn().Err(ev.err).Msg("channel lost, reconnecting")
		e.attempt = 0
		e.scheduleRetry()
	} else {
		e.logger.Warn().Err(ev.err).Msg("channel lost")
		e.state = Closed
	}
	e.publish()
	e.emit(Event{Kind: StateChanged, State: e.state, Err: e.lastErr})
}

// scheduleRetry enters Degraded and arms the timer for the next attempt.
func (e *Engine) scheduleRetry() {
	e.attempt++
	e.state = Degraded
	delay := e.cfg.Reconnect.Delay(e.attempt)
	id := e.connID
	e.logger.Info().Int("attempt", e.attempt).Dur("delay", delay).Msg("reconnect scheduled")
	e.retry = time.AfterFunc(delay, func() {
		e.post(retryEvent{conn: id})
	})
}

func (e *Engine) onRetry(ev retryEvent) {
	if ev.conn != e.connID || e.state != Degraded {
		return
	}
	e.retry = nil
	e.beginDial(nil, kindRetry)
}

func (e *Engine) reply(err error) {
	if e.pending != nil {
		e.pending <- err
		e.pending = nil
	}
}

// readLoop forwards frames from ch until it fails or the engine closes.
func (e *Engine) readLoop(conn uint64, ch chat.Channel) {
	for {
		data, err := ch.ReadFrame()
		if err != nil {
			e.post(closedEvent{conn: conn, err: err})
			return
		}
		metrics.FramesReceived.Inc()
		if !e.post(frameEvent{conn: conn, data: data}) {
			metrics.FramesDropped.WithLabelValues("closed").Inc()
			return
		}
	}
}

func connectionError(err error) error {
	var ce *chat.ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &chat.ConnectionError{Err: err}
}
