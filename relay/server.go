// Package relay is a small in-memory chat backend for development and tests.
// It speaks the same protocol the client expects: a broadcast websocket at
// /ws, presence at /online-users and /logout. Nothing is persisted.
package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/miosa/osa-chat/chat"
	"github.com/miosa/osa-chat/client"
	"github.com/miosa/osa-chat/metrics"
)

// Options configures a Server.
type Options struct {
	// Avatars maps usernames to profile picture URLs attached to their
	// frames and presence entries.
	Avatars map[string]string
	// AllowedOrigins for CORS and websocket upgrades. Empty allows all.
	AllowedOrigins []string
	Version        string
	Logger         zerolog.Logger
}

// Server is the relay's HTTP surface.
type Server struct {
	hub      *Hub
	opts     Options
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	started  time.Time
	router   chi.Router
}

func New(opts Options) *Server {
	logger := opts.Logger.With().Str("component", "relay").Logger()
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		hub:     NewHub(opts.Avatars, logger),
		opts:    opts,
		logger:  logger,
		started: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestMetrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)
	r.Get("/online-users", s.handleOnlineUsers)
	r.Post("/logout", s.handleLogout)
	r.Get("/ws", s.handleWS)
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hub exposes the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close disconnects every websocket and waits for their handlers.
func (s *Server) Close() {
	s.hub.CloseAll()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, client.HealthResponse{
		Status:        "ok",
		Version:       s.opts.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Connections:   s.hub.Len(),
	})
}

func (s *Server) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.OnlineUsers())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if bearer(r) == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req client.LogoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input")
		return
	}
	name := SanitizeUsername(req.Username)
	if name == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	n := s.hub.Disconnect(name)
	s.logger.Info().Str("username", name).Int("connections", n).Msg("logout")
	writeJSON(w, http.StatusOK, client.LogoutResponse{Message: "Logout successful"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name := SanitizeUsername(r.URL.Query().Get("username"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	p := &peer{
		id:       uuid.NewString(),
		username: name,
		conn:     conn,
		done:     make(chan struct{}),
	}
	if !s.hub.join(p) {
		p.shutdown(websocket.CloseGoingAway, "server shutdown")
		return
	}
	defer s.hub.leave(p)
	defer p.shutdown(websocket.CloseNormalClosure, "")

	s.logger.Info().Str("conn", p.id).Str("username", name).Msg("peer connected")
	go s.keepalive(p)
	s.readPump(p)
	s.logger.Info().Str("conn", p.id).Str("username", name).Msg("peer disconnected")
}

func (s *Server) keepalive(p *peer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.mu.Lock()
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := p.conn.WriteMessage(websocket.PingMessage, nil)
			p.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readPump relays every valid message frame from p to all peers. The
// author is forced to the connection's username and the configured avatar
// is attached; the sender's timestamp is kept.
func (s *Server) readPump(p *peer) {
	p.conn.SetReadLimit(readLimit)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		f, err := chat.DecodeFrame(data)
		if err != nil {
			metrics.RelayRejectedFrames.Inc()
			s.logger.Debug().Err(err).Str("conn", p.id).Msg("rejected frame")
			continue
		}
		mf, ok := f.(chat.MessageFrame)
		if !ok {
			metrics.RelayRejectedFrames.Inc()
			continue
		}
		mf.Message.Username = p.username
		mf.Message.AvatarRef = s.hub.Avatar(p.username)
		out, err := chat.EncodeFrame(mf)
		if err != nil {
			s.logger.Error().Err(err).Msg("encode frame")
			continue
		}
		s.hub.Broadcast(out)
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, client.ErrorResponse{Error: msg})
}
