package tui

import (
	"fmt"
	"log/slog"
	"math/rand"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/dragonsnek/game"
	"github.com/brensch/dragonsnek/rules"
	"github.com/brensch/dragonsnek/store"
)

// flashTicks is how long the eat banner stays up.
const flashTicks = 4

// Options configures a Model. Recorder and Results are optional.
type Options struct {
	Settings rules.Settings
	Rand     *rand.Rand
	Clock    rules.Clock
	Recorder *store.Recorder
	Results  *store.ResultLog
	Logger   *slog.Logger
}

// Model is the Bubble Tea model. Bubble Tea delivers messages one at a
// time, so the engine is only touched from Update.
type Model struct {
	engine   *rules.Engine
	settings rules.Settings
	recorder *store.Recorder
	results  *store.ResultLog
	logger   *slog.Logger

	score          int
	best           int
	specialSeconds float64
	flash          string
	flashLeft      int
	ended          bool
	lastResult     string
	quitting       bool
}

func New(opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Model{
		recorder: opts.Recorder,
		results:  opts.Results,
		logger:   logger,
	}
	if m.results != nil {
		if best, ok := m.results.Best(); ok {
			m.best = best.Score
		}
	}

	var engineOpts []rules.Option
	if opts.Rand != nil {
		engineOpts = append(engineOpts, rules.WithRand(opts.Rand))
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, rules.WithClock(opts.Clock))
	}
	m.engine = rules.NewEngine(opts.Settings, rules.Callbacks{
		OnScoreUpdate: func(score int) {
			m.score = score
			if score > m.best {
				m.best = score
			}
		},
		OnGameOver: func(int) {
			m.ended = true
		},
		OnSpecialTimer: func(seconds float64) {
			m.specialSeconds = seconds
		},
		OnEatNormal: func() {
			m.setFlash(fmt.Sprintf("+%d", m.settings.NormalPoints))
		},
		OnEatSpecial: func() {
			m.setFlash(fmt.Sprintf("+%d bonus!", m.settings.SpecialPoints))
		},
	}, engineOpts...)
	m.settings = m.engine.Settings()
	return m
}

// Engine exposes the engine for inspection.
func (m *Model) Engine() *rules.Engine { return m.engine }

func (m *Model) setFlash(text string) {
	m.flash = text
	m.flashLeft = flashTicks
}

func (m *Model) Init() tea.Cmd {
	return tickCmd(m.settings.TickRate)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	case TickMsg:
		m.step()
		return m, tickCmd(m.settings.TickRate)
	}
	return m, nil
}

func (m *Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c", "esc":
		m.quit()
		return m, tea.Quit
	case "enter", "r", " ":
		if !m.engine.IsPlaying() {
			m.start()
		}
		return m, nil
	}

	if _, ok := game.ParseCommand(game.Command(key)); ok {
		if !m.engine.HandleInput(game.Command(key)) {
			m.logger.Debug("input ignored", "key", key, "direction", m.engine.Direction().String())
		}
	}
	return m, nil
}

func (m *Model) start() {
	m.ended = false
	m.specialSeconds = 0
	m.flash = ""
	m.flashLeft = 0
	m.lastResult = ""
	m.engine.Start()
	m.logger.Info("game started", "game_id", m.engine.GameID())
	m.record()
}

func (m *Model) step() {
	if m.flashLeft > 0 {
		m.flashLeft--
		if m.flashLeft == 0 {
			m.flash = ""
		}
	}
	if !m.engine.IsPlaying() {
		return
	}

	m.engine.Update()
	m.record()

	if m.ended {
		m.finish()
	}
}

func (m *Model) record() {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(m.engine.Snapshot()); err != nil {
		m.logger.Error("record tick failed", "game_id", m.engine.GameID(), "err", err)
	}
}

// finish persists a finished game. Failures are logged and never stop play.
func (m *Model) finish() {
	m.ended = false
	gameID := m.engine.GameID()
	score := m.engine.Score()
	ticks := m.engine.Tick()

	if m.recorder != nil {
		path, rows, err := m.recorder.Finalize()
		if err != nil {
			m.logger.Error("finalize recording failed", "game_id", gameID, "err", err)
		} else if path != "" {
			m.logger.Info("game archived", "game_id", gameID, "rows", rows, "path", path)
		}
	}

	prevBest := 0
	if m.results != nil {
		if best, ok := m.results.Best(); ok {
			prevBest = best.Score
		}
		if err := m.results.Add(store.Result{GameID: gameID, Score: score, Ticks: ticks}); err != nil {
			m.logger.Error("append result failed", "game_id", gameID, "err", err)
		}
	}

	m.lastResult = fmt.Sprintf("Final score %d after %d ticks", score, ticks)
	if m.results != nil && score > prevBest {
		m.lastResult += " (new high score!)"
	}
	m.logger.Info("game over", "game_id", gameID, "score", score, "ticks", ticks)
}

func (m *Model) quit() {
	if m.quitting {
		return
	}
	m.quitting = true
	if m.recorder != nil {
		if err := m.recorder.Close(); err != nil {
			m.logger.Error("close recorder failed", "err", err)
		}
	}
}
