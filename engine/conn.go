package engine

import (
	"context"
	"sync"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/session"
)

// ConnState is the lifecycle state of the realtime channel.
type ConnState int32

const (
	Closed ConnState = iota
	Connecting
	Open
	// Degraded means an open channel was lost and the reconnect supervisor
	// is trying to re-open it.
	Degraded
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Degraded:
		return "degraded"
	default:
		return "closed"
	}
}

// Transport opens realtime channels for a session.
type Transport interface {
	Dial(ctx context.Context, s session.Session) (chat.Channel, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, s session.Session) (chat.Channel, error)

func (f TransportFunc) Dial(ctx context.Context, s session.Session) (chat.Channel, error) {
	return f(ctx, s)
}

// Handle is the engine's reference to one channel. It starts Connecting,
// becomes Open once a channel is attached and ends Closed. Only the engine
// attaches and closes it; Send may be called from any goroutine.
type Handle struct {
	id uint64

	mu    sync.Mutex
	state ConnState
	ch    chat.Channel
}

func newHandle(id uint64) *Handle {
	return &Handle{id: id, state: Connecting}
}

// ID is the connection id frames and completions are tagged with.
func (h *Handle) ID() uint64 { return h.id }

// State returns the handle's current state.
func (h *Handle) State() ConnState {
	if h == nil {
		return Closed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// CanSend reports whether Send would attempt a write.
func (h *Handle) CanSend() bool {
	return h.State() == Open
}

// Send writes payload as one frame. It fails with chat.ErrNotConnected unless
// the handle is Open; nothing is queued.
func (h *Handle) Send(payload []byte) error {
	if h == nil {
		return chat.ErrNotConnected
	}
	h.mu.Lock()
	ch, state := h.ch, h.state
	h.mu.Unlock()
	if state != Open || ch == nil {
		return chat.ErrNotConnected
	}
	return ch.WriteFrame(payload)
}

// attach moves a Connecting handle to Open. It reports false, leaving ch
// untouched, when the handle was closed in the meantime.
func (h *Handle) attach(ch chat.Channel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Connecting {
		return false
	}
	h.ch = ch
	h.state = Open
	return true
}

// close marks the handle Closed and closes its channel. Later calls are
// no-ops.
func (h *Handle) close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	ch := h.ch
	already := h.state == Closed
	h.state = Closed
	h.ch = nil
	h.mu.Unlock()
	if already || ch == nil {
		return nil
	}
	return ch.Close()
}
