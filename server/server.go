// Package server hosts dragon snake games over websockets and serves the
// leaderboard over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/dragonsnek/history"
	"github.com/brensch/dragonsnek/rules"
	"github.com/brensch/dragonsnek/store"
)

// Options configures a Server. DataDir, Results and Archive are optional:
// an empty DataDir disables recording, a nil Results disables /api/best and
// a nil Archive disables /api/games.
type Options struct {
	Settings       rules.Settings
	Seed           int64
	Clock          rules.Clock
	DataDir        string
	Results        *store.ResultLog
	Archive        *history.Archive
	LeaderboardMax int
	Logger         *slog.Logger
}

type Server struct {
	opts     Options
	settings rules.Settings
	logger   *slog.Logger
	upgrader websocket.Upgrader

	nextID atomic.Int64

	mu       sync.Mutex
	sessions map[string]*Session

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LeaderboardMax <= 0 {
		opts.LeaderboardMax = 100
	}
	return &Server{
		opts:     opts,
		settings: opts.Settings.Normalized(),
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow connections from any origin
			},
		},
		sessions: make(map[string]*Session),
		closing:  make(chan struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/best", s.handleBest)
	mux.HandleFunc("/api/games", s.handleGames)
	mux.HandleFunc("/api/games/{id}", s.handleGameTicks)
	return mux
}

// Close tells every session to stop and waits for them to finish their
// recordings. Hijacked websocket connections are not closed by
// http.Server.Shutdown, so call this after it.
func (s *Server) Close() {
	s.mu.Lock()
	s.closeOnce.Do(func() { close(s.closing) })
	s.mu.Unlock()
	s.wg.Wait()
}

// Sessions returns the status of every connected session, oldest first.
func (s *Server) Sessions() []SessionStatus {
	s.mu.Lock()
	out := make([]SessionStatus, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Status())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Server) sessionConfig(n int64) sessionConfig {
	seed := time.Now().UnixNano() + n
	if s.opts.Seed != 0 {
		seed = s.opts.Seed + n
	}
	cfg := sessionConfig{
		settings: s.settings,
		rng:      rand.New(rand.NewSource(seed)),
		clock:    s.opts.Clock,
		results:  s.opts.Results,
		logger:   s.logger,
	}
	if s.opts.DataDir != "" {
		rec, err := store.NewRecorder(s.opts.DataDir, "ws")
		if err != nil {
			s.logger.Error("recorder unavailable; session will not be archived", "err", err)
		} else {
			cfg.recorder = rec
		}
	}
	return cfg
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.isClosing() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	n := s.nextID.Add(1)
	id := "s" + strconv.FormatInt(n, 10)
	send := func(msg ServerMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}
	sess := newSession(id, s.sessionConfig(n), send)

	// Registration and Close share the lock so no session slips past wg.Wait.
	s.mu.Lock()
	if s.isClosing() {
		s.mu.Unlock()
		sess.close()
		return
	}
	s.wg.Add(1)
	s.sessions[id] = sess
	s.mu.Unlock()
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess.logger.Info("session connected", "remote", r.RemoteAddr)
	sess.run(ctx, conn, s.settings.TickRate, s.closing)
	sess.close()
	sess.logger.Info("session disconnected", "games", sess.Status().Games)
}

func (s *Server) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	writeJSON(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"sessions": s.Sessions()})
}

// BestResponse is the response for /api/best.
type BestResponse struct {
	Best  *store.Result  `json:"best"`
	Top   []store.Result `json:"top"`
	Games int            `json:"games"`
}

func (s *Server) handleBest(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Results == nil {
		http.Error(w, "result log disabled", http.StatusNotFound)
		return
	}

	limit := parseIntQuery(r, "limit", 10)
	if limit > s.opts.LeaderboardMax {
		limit = s.opts.LeaderboardMax
	}
	resp := BestResponse{
		Top:   s.opts.Results.Top(limit),
		Games: s.opts.Results.Count(),
	}
	if best, ok := s.opts.Results.Best(); ok {
		resp.Best = &best
	}
	writeJSON(w, resp)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}

	// Pick up games archived since the last request.
	if err := s.opts.Archive.Refresh(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	limit := parseIntQuery(r, "limit", 20)
	if limit > s.opts.LeaderboardMax {
		limit = s.opts.LeaderboardMax
	}
	resp, err := s.opts.Archive.TopGames(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleGameTicks(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}

	gameID := r.PathValue("id")
	ticks, err := s.opts.Archive.GameTicks(r.Context(), gameID)
	if errors.Is(err, history.ErrGameNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, history.TicksResponse{GameID: gameID, Ticks: ticks})
}
