package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/session"
)

// fakeChannel is an in-memory chat.Channel.
type fakeChannel struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeChannel) ReadFrame() ([]byte, error) {
	select {
	case d := <-c.in:
		return d, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeChannel) WriteFrame(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed channel")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeChannel) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// push delivers a raw inbound frame.
func (c *fakeChannel) push(t *testing.T, raw string) {
	t.Helper()
	select {
	case c.in <- []byte(raw):
	case <-time.After(time.Second):
		t.Fatal("inbound frame not consumed")
	}
}

// fakeTransport hands out channels produced by dial, recording every call.
type fakeTransport struct {
	mu    sync.Mutex
	calls int
	chans []*fakeChannel
	dial  func(ctx context.Context, n int) (chat.Channel, error)
}

func (f *fakeTransport) Dial(ctx context.Context, s session.Session) (chat.Channel, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	var (
		ch  chat.Channel
		err error
	)
	if f.dial != nil {
		ch, err = f.dial(ctx, n)
	} else {
		ch = newFakeChannel()
	}
	if fc, ok := ch.(*fakeChannel); ok && err == nil {
		f.mu.Lock()
		f.chans = append(f.chans, fc)
		f.mu.Unlock()
	}
	return ch, err
}

func (f *fakeTransport) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransport) channel(i int) *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.chans) {
		return nil
	}
	return f.chans[i]
}

// fakeBackend serves rosters and logouts.
type fakeBackend struct {
	mu          sync.Mutex
	polls       int
	onlineUsers func(ctx context.Context, n int) ([]chat.User, error)
	logout      func(ctx context.Context, username string) error
}

func (b *fakeBackend) OnlineUsers(ctx context.Context) ([]chat.User, error) {
	b.mu.Lock()
	b.polls++
	n := b.polls
	b.mu.Unlock()
	if b.onlineUsers == nil {
		return nil, nil
	}
	return b.onlineUsers(ctx, n)
}

func (b *fakeBackend) Logout(ctx context.Context, username string) error {
	if b.logout == nil {
		return nil
	}
	return b.logout(ctx, username)
}

func (b *fakeBackend) pollCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.polls
}

var testSession = session.Session{Token: "tok", Username: "alice"}

func testConfig() Config {
	return Config{
		PollInterval:   time.Hour,
		DialTimeout:    time.Second,
		RequestTimeout: time.Second,
		Reconnect:      ReconnectPolicy{MaxAttempts: 0},
		Now:            func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}
}

func newTestEngine(t *testing.T, tr Transport, be Backend, cfg Config) *Engine {
	t.Helper()
	e := New(testSession, tr, be, cfg, zerolog.Nop())
	t.Cleanup(e.Close)
	return e
}

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func frame(user, text string, ts int64) string {
	data, err := chat.EncodeFrame(chat.MessageFrame{Message: chat.Message{Username: user, Text: text, Timestamp: ts}})
	if err != nil {
		panic(err)
	}
	return string(data)
}
