// Package rules implements the dragon snake simulation engine.
//
// An Engine is passive: the host calls Start once, HandleInput for every
// directional command and Update once per tick. The engine never starts
// timers of its own and reads its clock only to age the special food.
//
// Engine is not safe for concurrent use. Hosts that drive it from several
// goroutines must serialize every call.
package rules

import (
	"math/rand"
	"time"

	"github.com/brensch/dragonsnek/game"
	"github.com/google/uuid"
)

// Callbacks are the notifications an Engine emits. Any of them may be nil.
type Callbacks struct {
	OnScoreUpdate  func(score int)
	OnGameOver     func(finalScore int)
	OnSpecialTimer func(secondsRemaining float64)
	OnEatNormal    func()
	OnEatSpecial   func()
}

// Clock supplies wall-clock time for special food expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithRand replaces the random source used for placement and bonus rolls.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// Engine owns the state of a single game.
type Engine struct {
	settings  Settings
	callbacks Callbacks
	clock     Clock
	rng       *rand.Rand

	gameID     string
	tick       int32
	head       game.Point
	body       []game.Point
	normalFood *game.Point
	special    *game.SpecialFood

	direction     game.Direction
	nextDirection game.Direction

	score   int
	playing bool
	over    bool
}

// NewEngine returns an idle engine. Call Start to begin a game.
func NewEngine(settings Settings, callbacks Callbacks, opts ...Option) *Engine {
	e := &Engine{
		settings:      settings.Normalized(),
		callbacks:     callbacks,
		clock:         systemClock{},
		direction:     game.Right,
		nextDirection: game.Right,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e
}

// Settings returns the normalized settings in use.
func (e *Engine) Settings() Settings { return e.settings }

// Start resets every field and begins a new game.
// It may be called at any time, including mid-game.
func (e *Engine) Start() {
	e.gameID = uuid.NewString()
	e.tick = 0
	e.normalFood = nil
	e.special = nil

	e.direction = game.Right
	e.nextDirection = game.Right
	e.score = 0
	e.over = false
	e.playing = true

	e.emitScore()

	e.head = game.Point{}
	e.body = []game.Point{{X: -1}, {X: -2}}

	e.spawnNormalFood()
}

// HandleInput buffers a direction change for the next tick.
// Unknown commands, input while not playing and reversals of the current
// direction are ignored. It reports whether the command was buffered.
func (e *Engine) HandleInput(cmd game.Command) bool {
	if !e.playing {
		return false
	}
	dir, ok := game.ParseCommand(cmd)
	if !ok {
		return false
	}
	// Compare against the committed direction, not the buffered one, so two
	// quick turns within a tick cannot fold the head back into the neck.
	if dir.IsOpposite(e.direction) {
		return false
	}
	e.nextDirection = dir
	return true
}

// Update advances the game by one tick.
func (e *Engine) Update() {
	if !e.playing {
		return
	}

	e.direction = e.nextDirection

	prevHead := e.head
	next := game.Wrap(prevHead.Add(e.direction), e.settings.GridSize)

	// Checked against the body before it moves: the tail cell is still
	// solid this tick even though it is about to be vacated.
	for _, p := range e.body {
		if p == next {
			e.GameOver()
			return
		}
	}

	if e.special == nil && e.rng.Float64() < e.settings.SpecialSpawnChance {
		e.spawnSpecialFood()
	}

	if e.special != nil {
		now := e.clock.Now()
		e.emitSpecialTimer(roundTenths(e.special.Remaining(now)))
		if e.special.Expired(now) {
			e.special = nil
			e.emitSpecialTimer(0)
		}
	}

	ateFood := false

	if e.normalFood != nil && *e.normalFood == next {
		ateFood = true
		e.score += e.settings.NormalPoints
		if e.callbacks.OnEatNormal != nil {
			e.callbacks.OnEatNormal()
		}
		e.emitScore()
		e.spawnNormalFood()
	}

	if e.special != nil && e.special.Pos == next {
		ateFood = true
		e.score += e.settings.SpecialPoints
		if e.callbacks.OnEatSpecial != nil {
			e.callbacks.OnEatSpecial()
		}
		e.emitScore()
		e.special = nil
		e.emitSpecialTimer(0)
	}

	newBody := make([]game.Point, 0, len(e.body)+1)
	newBody = append(newBody, prevHead)
	newBody = append(newBody, e.body...)
	if !ateFood {
		newBody = newBody[:len(newBody)-1]
	}
	e.body = newBody
	e.head = next
	e.tick++
}

// GameOver ends the current game and reports the final score.
// Calling it when no game is running does nothing.
func (e *Engine) GameOver() {
	if !e.playing {
		return
	}
	e.playing = false
	e.over = true
	if e.callbacks.OnGameOver != nil {
		e.callbacks.OnGameOver(e.score)
	}
}

func (e *Engine) emitScore() {
	if e.callbacks.OnScoreUpdate != nil {
		e.callbacks.OnScoreUpdate(e.score)
	}
}

func (e *Engine) emitSpecialTimer(seconds float64) {
	if e.callbacks.OnSpecialTimer != nil {
		e.callbacks.OnSpecialTimer(seconds)
	}
}

// GameID identifies the current game. Start assigns a fresh uuid; it is
// empty before the first Start.
func (e *Engine) GameID() string { return e.gameID }

// Tick counts completed moves since Start. The update that ends the game
// does not move the snake, so it does not advance Tick.
func (e *Engine) Tick() int32 { return e.tick }

func (e *Engine) Score() int       { return e.score }
func (e *Engine) IsPlaying() bool  { return e.playing }
func (e *Engine) IsGameOver() bool { return e.over }

// Head returns the head cell.
func (e *Engine) Head() game.Point { return e.head }

// Direction is the direction applied by the last Update, not the buffered
// next one.
func (e *Engine) Direction() game.Direction { return e.direction }

// Body returns a copy of the body segments, head excluded, head-to-tail.
func (e *Engine) Body() []game.Point {
	out := make([]game.Point, len(e.body))
	copy(out, e.body)
	return out
}

// NormalFood returns the normal food cell, if any.
func (e *Engine) NormalFood() (game.Point, bool) {
	if e.normalFood == nil {
		return game.Point{}, false
	}
	return *e.normalFood, true
}

// SpecialFood returns the special food item, if any.
func (e *Engine) SpecialFood() (game.SpecialFood, bool) {
	if e.special == nil {
		return game.SpecialFood{}, false
	}
	return *e.special, true
}

// Snapshot copies the current state for a host.
func (e *Engine) Snapshot() *game.Snapshot {
	s := &game.Snapshot{
		GameID:   e.gameID,
		Tick:     e.tick,
		GridSize: e.settings.GridSize,
		Head:     e.head,
		Facing:   e.direction,
		Body:     e.Body(),
		Score:    e.score,
		Playing:  e.playing,
		Over:     e.over,
	}
	if e.normalFood != nil {
		f := *e.normalFood
		s.NormalFood = &f
	}
	if e.special != nil {
		s.Special = &game.SpecialView{
			Pos:       e.special.Pos,
			Remaining: roundTenths(e.special.Remaining(e.clock.Now())),
		}
	}
	return s
}
