package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/miosa/osa-chat/client"
	"github.com/miosa/osa-chat/metrics"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second
	readLimit    = 1 << 20
)

// peer is one websocket connection. mu serialises writes on conn.
type peer struct {
	id       string
	username string
	conn     *websocket.Conn

	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func (p *peer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// shutdown sends a close frame with code and closes the socket.
func (p *peer) shutdown(code int, reason string) {
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
		_ = p.conn.Close()
		p.mu.Unlock()
	})
}

// Hub keeps the connected peers and fans frames out to all of them. It stores
// no messages.
type Hub struct {
	mu      sync.RWMutex
	peers   map[string]*peer
	closing bool
	avatars map[string]string
	logger  zerolog.Logger
	wg      sync.WaitGroup // one per joined peer handler
}

func NewHub(avatars map[string]string, logger zerolog.Logger) *Hub {
	copied := make(map[string]string, len(avatars))
	for k, v := range avatars {
		copied[k] = v
	}
	return &Hub{
		peers:   map[string]*peer{},
		avatars: copied,
		logger:  logger,
	}
}

// join registers p. It reports false once CloseAll has begun; the caller
// must then drop the connection without calling leave.
func (h *Hub) join(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.wg.Add(1)
	h.peers[p.id] = p
	metrics.RelayConnections.Inc()
	return true
}

// leave unregisters a peer accepted by join.
func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	delete(h.peers, p.id)
	h.mu.Unlock()
	metrics.RelayConnections.Dec()
	h.wg.Done()
}

// Avatar returns the configured profile picture for username.
func (h *Hub) Avatar(username string) string {
	return h.avatars[username]
}

// Broadcast writes data to every connected peer, the sender included.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	metrics.RelayBroadcasts.Inc()
	for _, p := range peers {
		if err := p.write(data); err != nil {
			h.logger.Debug().Err(err).Str("conn", p.id).Msg("broadcast write failed")
			p.shutdown(websocket.CloseInternalServerErr, "write failed")
		}
	}
}

// OnlineUsers lists the distinct connected usernames, sorted.
func (h *Hub) OnlineUsers() []client.OnlineUser {
	h.mu.RLock()
	seen := make(map[string]struct{}, len(h.peers))
	for _, p := range h.peers {
		seen[p.username] = struct{}{}
	}
	h.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	users := make([]client.OnlineUser, 0, len(names))
	for _, n := range names {
		users = append(users, client.OnlineUser{Username: n, ProfilePicture: h.avatars[n]})
	}
	return users
}

// Disconnect closes every connection of username and reports how many were
// closed.
func (h *Hub) Disconnect(username string) int {
	h.mu.RLock()
	var victims []*peer
	for _, p := range h.peers {
		if p.username == username {
			victims = append(victims, p)
		}
	}
	h.mu.RUnlock()
	for _, p := range victims {
		p.shutdown(websocket.CloseNormalClosure, "logged out")
	}
	return len(victims)
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// CloseAll closes every connection with a going-away frame and waits for
// their handlers to return. Connections arriving afterwards are refused.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closing = true
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.shutdown(websocket.CloseGoingAway, "server shutdown")
	}
	h.wg.Wait()
}
