package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/miosa/osa-chat/chat"
)

func TestReconnectPolicy_Delay(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	cases := map[int]time.Duration{
		0:  time.Second,
		1:  time.Second,
		2:  2 * time.Second,
		3:  4 * time.Second,
		5:  16 * time.Second,
		6:  30 * time.Second,
		60: 30 * time.Second,
	}
	for attempt, want := range cases {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestReconnectPolicy_Defaults(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: -3, BaseDelay: time.Minute, MaxDelay: time.Second}.withDefaults()
	if p.MaxAttempts != 0 {
		t.Errorf("negative attempts should disable, got %d", p.MaxAttempts)
	}
	if p.MaxDelay != time.Minute {
		t.Errorf("max delay should be raised to base, got %v", p.MaxDelay)
	}
}

func TestSupervisor_DisabledLeavesChannelClosed(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, &fakeBackend{}, testConfig())
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.channel(0).Close()
	waitFor(t, "closed", func() bool { return e.Snapshot().State == Closed })
	time.Sleep(20 * time.Millisecond)
	if tr.dials() != 1 {
		t.Errorf("no automatic reconnect expected, got %d dials", tr.dials())
	}
}

func TestSupervisor_ReopensLostChannel(t *testing.T) {
	tr := &fakeTransport{}
	cfg := testConfig()
	cfg.Reconnect = ReconnectPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	e := newTestEngine(t, tr, &fakeBackend{}, cfg)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := tr.channel(0)
	first.push(t, frame("bob", "kept", 1))
	waitFor(t, "first message", func() bool { return len(e.Snapshot().Messages) == 1 })

	first.Close()
	waitFor(t, "second channel", func() bool { return tr.channel(1) != nil })
	waitFor(t, "open again", func() bool { return e.Snapshot().State == Open })

	s := e.Snapshot()
	if s.Attempt != 0 || s.Err != nil {
		t.Errorf("successful reconnect should reset attempt and error: %+v", s)
	}
	if len(s.Messages) != 1 {
		t.Errorf("log must survive a reconnect, got %d entries", len(s.Messages))
	}

	second := tr.channel(1)
	second.push(t, frame("bob", "kept", 1))
	second.push(t, frame("bob", "new", 2))
	waitFor(t, "second message", func() bool { return len(e.Snapshot().Messages) == 2 })
	if err := e.Dispatch(context.Background(), "hi"); err != nil {
		t.Fatalf("dispatch after reconnect: %v", err)
	}
	if len(second.frames()) != 1 || len(first.frames()) != 0 {
		t.Error("dispatch should use the new channel only")
	}
}

func TestSupervisor_GivesUpAfterMaxAttempts(t *testing.T) {
	tr := &fakeTransport{dial: func(ctx context.Context, n int) (chat.Channel, error) {
		if n == 1 {
			return newFakeChannel(), nil
		}
		return nil, errors.New("refused")
	}}
	cfg := testConfig()
	cfg.Reconnect = ReconnectPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	e := newTestEngine(t, tr, &fakeBackend{}, cfg)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.channel(0).Close()

	waitFor(t, "closed after retries", func() bool {
		return e.Snapshot().State == Closed && tr.dials() == 4
	})
	var ce *chat.ConnectionError
	if err := e.Snapshot().Err; !errors.As(err, &ce) {
		t.Errorf("want last ConnectionError in snapshot, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if tr.dials() != 4 {
		t.Errorf("want 1 + 3 dials, got %d", tr.dials())
	}
}

func TestSupervisor_StopsWhenSessionRejected(t *testing.T) {
	tr := &fakeTransport{dial: func(ctx context.Context, n int) (chat.Channel, error) {
		if n == 1 {
			return newFakeChannel(), nil
		}
		return nil, &chat.ConnectionError{Err: fmt.Errorf("%w: handshake status 401", chat.ErrUnauthenticated)}
	}}
	cfg := testConfig()
	cfg.Reconnect = ReconnectPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	e := newTestEngine(t, tr, &fakeBackend{}, cfg)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.channel(0).Close()

	waitFor(t, "closed", func() bool {
		return e.Snapshot().State == Closed && tr.dials() == 2
	})
	if err := e.Snapshot().Err; !errors.Is(err, chat.ErrUnauthenticated) {
		t.Errorf("snapshot error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if tr.dials() != 2 {
		t.Errorf("rejected session must not be redialled, got %d dials", tr.dials())
	}
}

func TestReconnect_Manual(t *testing.T) {
	tr := &fakeTransport{}
	e := newTestEngine(t, tr, &fakeBackend{}, testConfig())
	if err := e.Reconnect(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("before start: want ErrNotStarted, got %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Reconnect(context.Background()); err != nil {
		t.Errorf("reconnect while open should be a no-op, got %v", err)
	}
	if tr.dials() != 1 {
		t.Errorf("open engine must not redial, got %d", tr.dials())
	}

	tr.channel(0).Close()
	waitFor(t, "closed", func() bool { return e.Snapshot().State == Closed })
	if err := e.Reconnect(context.Background()); err != nil {
		t.Fatalf("manual reconnect: %v", err)
	}
	if s := e.Snapshot(); s.State != Open || tr.dials() != 2 {
		t.Errorf("want open after 2 dials, got %v after %d", s.State, tr.dials())
	}
}

func TestHandle_SendRequiresOpen(t *testing.T) {
	var nilHandle *Handle
	if err := nilHandle.Send([]byte("x")); !errors.Is(err, chat.ErrNotConnected) {
		t.Errorf("nil handle: %v", err)
	}

	h := newHandle(1)
	if err := h.Send([]byte("x")); !errors.Is(err, chat.ErrNotConnected) {
		t.Errorf("connecting handle: %v", err)
	}
	ch := newFakeChannel()
	if !h.attach(ch) {
		t.Fatal("attach failed")
	}
	if err := h.Send([]byte("x")); err != nil {
		t.Errorf("open handle: %v", err)
	}
	if err := h.close(); err != nil {
		t.Fatal(err)
	}
	if err := h.close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := h.Send([]byte("y")); !errors.Is(err, chat.ErrNotConnected) {
		t.Errorf("closed handle: %v", err)
	}
	if h.attach(newFakeChannel()) {
		t.Error("closed handle must not reopen")
	}
	if len(ch.frames()) != 1 {
		t.Errorf("want exactly one frame, got %d", len(ch.frames()))
	}
}

func TestDispatcher_ChecksEmptyBeforeConnection(t *testing.T) {
	d := Dispatcher{Now: func() time.Time { return time.UnixMilli(42) }}
	if err := d.Dispatch(nil, "alice", "   "); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Errorf("want ErrEmptyMessage, got %v", err)
	}
	if err := d.Dispatch(nil, "alice", "hi"); !errors.Is(err, chat.ErrNotConnected) {
		t.Errorf("want ErrNotConnected, got %v", err)
	}

	h := newHandle(7)
	ch := newFakeChannel()
	h.attach(ch)
	if err := d.Dispatch(h, "alice", "hi"); err != nil {
		t.Fatal(err)
	}
	want := `{"type":"message","username":"alice","message":"hi","timestamp":42}`
	if got := string(ch.frames()[0]); got != want {
		t.Errorf("frame\n want %s\n  got %s", want, got)
	}
}
