package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/metrics"
)

// ErrPollerRunning is returned by Poller.Start when the poller is already
// running.
var ErrPollerRunning = errors.New("engine: poller already running")

// RosterSource fetches the current presence list.
type RosterSource interface {
	OnlineUsers(ctx context.Context) ([]chat.User, error)
}

// Poller fetches the roster immediately and then on a fixed interval. Failed
// fetches are logged and leave the roster alone.
type Poller struct {
	source   RosterSource
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(source RosterSource, interval, timeout time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Poller{
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Start begins polling. deliver is called from the poller's goroutine with
// every successfully fetched roster and never after Stop returns.
func (p *Poller) Start(deliver func([]chat.User)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return ErrPollerRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done, deliver)
	return nil
}

// Stop cancels the in-flight fetch and every future one, and waits for the
// loop to exit. Stopping a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}, deliver func([]chat.User)) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.fetch(ctx, deliver)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) fetch(ctx context.Context, deliver func([]chat.User)) {
	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	users, err := p.source.OnlineUsers(fctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		metrics.PresencePolls.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Msg("presence poll failed")
		return
	}
	metrics.PresencePolls.WithLabelValues("ok").Inc()
	deliver(users)
}
