package server

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/dragonsnek/game"
	"github.com/brensch/dragonsnek/rules"
	"github.com/brensch/dragonsnek/store"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
)

// SessionStatus is the latest view of a session, served by /api/sessions.
type SessionStatus struct {
	ID          string    `json:"id"`
	GameID      string    `json:"game_id"`
	Tick        int32     `json:"tick"`
	Score       int       `json:"score"`
	Length      int       `json:"length"`
	Playing     bool      `json:"playing"`
	Over        bool      `json:"over"`
	Games       int       `json:"games"`
	ConnectedAt time.Time `json:"connected_at"`
}

type sessionConfig struct {
	settings rules.Settings
	rng      *rand.Rand
	clock    rules.Clock
	recorder *store.Recorder
	results  *store.ResultLog
	logger   *slog.Logger
}

// Session is one websocket client playing one engine.
//
// Every engine call happens on the goroutine running the session loop;
// events emitted by the engine are queued in pending and flushed after the
// call returns. Only status is shared with other goroutines.
type Session struct {
	id       string
	engine   *rules.Engine
	recorder *store.Recorder
	results  *store.ResultLog
	logger   *slog.Logger
	send     func(ServerMessage) error

	pending []ServerMessage
	ended   bool
	games   int

	mu     sync.RWMutex
	status SessionStatus
}

func newSession(id string, cfg sessionConfig, send func(ServerMessage) error) *Session {
	s := &Session{
		id:       id,
		recorder: cfg.recorder,
		results:  cfg.results,
		logger:   cfg.logger.With("session", id),
		send:     send,
		status:   SessionStatus{ID: id, ConnectedAt: time.Now()},
	}

	var opts []rules.Option
	if cfg.rng != nil {
		opts = append(opts, rules.WithRand(cfg.rng))
	}
	if cfg.clock != nil {
		opts = append(opts, rules.WithClock(cfg.clock))
	}
	s.engine = rules.NewEngine(cfg.settings, rules.Callbacks{
		OnScoreUpdate: func(score int) {
			s.pending = append(s.pending, scoreMessage(MsgScore, score))
		},
		OnGameOver: func(score int) {
			s.ended = true
			s.pending = append(s.pending, scoreMessage(MsgGameOver, score))
		},
		OnSpecialTimer: func(seconds float64) {
			s.pending = append(s.pending, timerMessage(seconds))
		},
		OnEatNormal: func() {
			s.pending = append(s.pending, eatMessage(FoodNormal))
		},
		OnEatSpecial: func() {
			s.pending = append(s.pending, eatMessage(FoodSpecial))
		},
	}, opts...)
	return s
}

func (s *Session) ID() string { return s.id }

// Status returns the latest status. Safe for concurrent use.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// handle applies one client message and flushes the resulting frames.
func (s *Session) handle(msg ClientMessage) error {
	switch msg.Type {
	case MsgStart:
		s.ended = false
		s.engine.Start()
		s.games++
		s.logger.Info("game started", "game_id", s.engine.GameID())
		return s.publish()
	case MsgInput:
		if _, ok := game.ParseCommand(msg.Command); !ok {
			return s.send(errorMessage(fmt.Sprintf("unknown command %q", msg.Command)))
		}
		s.engine.HandleInput(msg.Command)
		return nil
	default:
		return s.send(errorMessage(fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

// step advances the engine by one tick. Idle and finished games send nothing.
func (s *Session) step() error {
	if !s.engine.IsPlaying() {
		return nil
	}
	s.engine.Update()
	over := s.ended
	err := s.publish()
	if over {
		s.finish()
	}
	return err
}

// publish records the current snapshot, flushes queued events and then
// sends the state frame.
func (s *Session) publish() error {
	snap := s.engine.Snapshot()
	s.setStatus(snap)

	if s.recorder != nil {
		if err := s.recorder.Record(snap); err != nil {
			s.logger.Error("record tick failed", "game_id", snap.GameID, "err", err)
		}
	}

	events := s.pending
	s.pending = nil
	for _, ev := range events {
		if err := s.send(ev); err != nil {
			return err
		}
	}
	return s.send(stateMessage(snap))
}

func (s *Session) setStatus(snap *game.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.GameID = snap.GameID
	s.status.Tick = snap.Tick
	s.status.Score = snap.Score
	s.status.Length = snap.Length() + 1
	s.status.Playing = snap.Playing
	s.status.Over = snap.Over
	s.status.Games = s.games
}

// finish persists a finished game once its final frame has been recorded.
// Failures are logged, never returned.
func (s *Session) finish() {
	s.ended = false
	gameID := s.engine.GameID()
	score := s.engine.Score()
	ticks := s.engine.Tick()

	s.close()

	if s.results != nil {
		if err := s.results.Add(store.Result{GameID: gameID, Score: score, Ticks: ticks}); err != nil {
			s.logger.Error("append result failed", "game_id", gameID, "err", err)
		}
	}
	s.logger.Info("game over", "game_id", gameID, "score", score, "ticks", ticks)
}

// close finalizes the recording of the current game, if any.
func (s *Session) close() {
	if s.recorder == nil {
		return
	}
	path, rows, err := s.recorder.Finalize()
	if err != nil {
		s.logger.Error("finalize recording failed", "err", err)
		return
	}
	if path != "" {
		s.logger.Info("game archived", "rows", rows, "path", path)
	}
}

// run drives the session until the client goes away, ctx is cancelled or
// closing is closed. conn is only written from this goroutine.
func (s *Session) run(ctx context.Context, conn *websocket.Conn, tickRate time.Duration, closing <-chan struct{}) {
	inbound := make(chan ClientMessage)
	readErr := make(chan error, 1)

	go func() {
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			s.closeConn(conn, websocket.CloseGoingAway, "shutting down")
			return
		case <-closing:
			s.closeConn(conn, websocket.CloseGoingAway, "shutting down")
			return
		case err = <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", "err", err)
			}
			return
		case msg := <-inbound:
			err = s.handle(msg)
		case <-ticker.C:
			err = s.step()
		case <-pinger.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			s.logger.Warn("write failed", "err", err)
			return
		}
	}
}

func (s *Session) closeConn(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
