package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/client"
	"github.com/miosa/osa-chat/session"
)

func newTestRelay(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Options{
		Avatars: map[string]string{"alice": "https://img.example/alice.png"},
		Version: "test",
		Logger:  zerolog.Nop(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, baseURL, username string) chat.Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := client.NewWSTransport(baseURL).Dial(ctx, session.Session{Token: "tok", Username: username})
	if err != nil {
		t.Fatalf("dial as %s: %v", username, err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func readMessage(t *testing.T, ch chat.Channel) chat.Message {
	t.Helper()
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := ch.ReadFrame()
		done <- result{data, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("read: %v", r.err)
		}
		f, err := chat.DecodeFrame(r.data)
		if err != nil {
			t.Fatalf("decode %s: %v", r.data, err)
		}
		return f.(chat.MessageFrame).Message
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return chat.Message{}
}

func send(t *testing.T, ch chat.Channel, m chat.Message) {
	t.Helper()
	data, err := chat.EncodeFrame(chat.MessageFrame{Message: m})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.WriteFrame(data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitForConnections(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("want %d connections, have %d", n, s.Hub().Len())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRelay_BroadcastsToEveryoneIncludingSender(t *testing.T) {
	s, ts := newTestRelay(t)
	alice := dial(t, ts.URL, "alice")
	bob := dial(t, ts.URL, "bob")
	waitForConnections(t, s, 2)

	send(t, alice, chat.Message{Username: "alice", Text: "hi bob", Timestamp: 1234})

	for name, ch := range map[string]chat.Channel{"alice": alice, "bob": bob} {
		got := readMessage(t, ch)
		want := chat.Message{Username: "alice", Text: "hi bob", Timestamp: 1234, AvatarRef: "https://img.example/alice.png"}
		if got != want {
			t.Errorf("%s received %+v, want %+v", name, got, want)
		}
	}
}

func TestRelay_ForcesConnectionUsername(t *testing.T) {
	s, ts := newTestRelay(t)
	bob := dial(t, ts.URL, "bob")
	waitForConnections(t, s, 1)

	send(t, bob, chat.Message{Username: "alice", Text: "spoof", Timestamp: 1})
	got := readMessage(t, bob)
	if got.Username != "bob" || got.AvatarRef != "" {
		t.Errorf("relay must stamp the connection's user, got %+v", got)
	}
}

func TestRelay_RejectsMalformedFramesButKeepsConnection(t *testing.T) {
	s, ts := newTestRelay(t)
	bob := dial(t, ts.URL, "bob")
	waitForConnections(t, s, 1)

	if err := bob.WriteFrame([]byte(`{"type":"typing"}`)); err != nil {
		t.Fatal(err)
	}
	send(t, bob, chat.Message{Username: "bob", Text: "still here", Timestamp: 2})
	if got := readMessage(t, bob); got.Text != "still here" {
		t.Errorf("unexpected frame %+v", got)
	}
}

func TestRelay_OnlineUsers(t *testing.T) {
	s, ts := newTestRelay(t)
	dial(t, ts.URL, "bob")
	dial(t, ts.URL, "alice")
	dial(t, ts.URL, "alice")
	waitForConnections(t, s, 3)

	c := client.New(ts.URL)
	users, err := c.OnlineUsers(context.Background())
	if err != nil {
		t.Fatalf("online users: %v", err)
	}
	want := []chat.User{
		{Username: "alice", AvatarRef: "https://img.example/alice.png"},
		{Username: "bob"},
	}
	if len(users) != len(want) {
		t.Fatalf("want %+v, got %+v", want, users)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Errorf("user %d: want %+v, got %+v", i, want[i], users[i])
		}
	}
}

func TestRelay_LogoutClosesUserConnections(t *testing.T) {
	s, ts := newTestRelay(t)
	alice := dial(t, ts.URL, "alice")
	dial(t, ts.URL, "bob")
	waitForConnections(t, s, 2)

	c := client.New(ts.URL)
	c.SetToken("tok")
	if err := c.Logout(context.Background(), "alice"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	waitForConnections(t, s, 1)

	errc := make(chan error, 1)
	go func() {
		_, err := alice.ReadFrame()
		errc <- err
	}()
	select {
	case err := <-errc:
		if err == nil {
			t.Error("alice's channel should be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alice's channel still open")
	}
}

func TestRelay_LogoutRequiresBearer(t *testing.T) {
	_, ts := newTestRelay(t)
	err := client.New(ts.URL).Logout(context.Background(), "alice")
	var le *chat.LogoutError
	if !errors.As(err, &le) || le.Status != http.StatusUnauthorized {
		t.Fatalf("want 401 LogoutError, got %v", err)
	}
}

func TestRelay_WSRequiresUsername(t *testing.T) {
	_, ts := newTestRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.NewWSTransport(ts.URL).Dial(ctx, session.Session{Token: "tok", Username: "<b></b>"})
	var ce *chat.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConnectionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("want handshake status 400 in %q", err)
	}
}

func TestRelay_HealthAndMetrics(t *testing.T) {
	_, ts := newTestRelay(t)

	health, err := client.New(ts.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "ok" || health.Version != "test" {
		t.Errorf("unexpected health %+v", health)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status %d", resp.StatusCode)
	}
}

func TestRelay_CORSPreflight(t *testing.T) {
	_, ts := newTestRelay(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/online-users", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestHealthResponseShape(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"status", "uptime_seconds", "connections"} {
		if _, ok := body[k]; !ok {
			t.Errorf("health body missing %q: %s", k, rec.Body.String())
		}
	}
}

func TestHub_RefusesPeersAfterCloseAll(t *testing.T) {
	h := NewHub(nil, zerolog.Nop())
	h.CloseAll()
	if h.join(&peer{id: "late", username: "bob", done: make(chan struct{})}) {
		t.Fatal("join after CloseAll must be refused")
	}
	if h.Len() != 0 {
		t.Errorf("len = %d", h.Len())
	}
	h.CloseAll()
}

func TestRelay_ClosedServerDropsNewSockets(t *testing.T) {
	s, ts := newTestRelay(t)
	s.Close()

	ch := dial(t, ts.URL, "bob")
	done := make(chan error, 1)
	go func() {
		_, err := ch.ReadFrame()
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("want the socket closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("socket was not closed")
	}
	if s.Hub().Len() != 0 {
		t.Errorf("peers = %d", s.Hub().Len())
	}
}
