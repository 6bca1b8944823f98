package rules

import (
	"math"
	"time"

	"github.com/brensch/dragonsnek/game"
)

// Settings holds the tunable rules of a game.
//
// TickRate is not used by the engine itself; hosts read it to decide how
// often to call Update.
type Settings struct {
	GridSize             int32
	TickRate             time.Duration
	NormalPoints         int
	SpecialPoints        int
	SpecialSpawnChance   float64 // probability per tick, 0..1
	SpecialLifetime      time.Duration
	MaxPlacementAttempts int
}

// DefaultSettings matches the classic game: 20x20 board, 150ms ticks,
// 10/20 points and a 2% chance per tick of a 5 second bonus item.
var DefaultSettings = Settings{
	GridSize:             game.DefaultGridSize,
	TickRate:             150 * time.Millisecond,
	NormalPoints:         10,
	SpecialPoints:        20,
	SpecialSpawnChance:   0.02,
	SpecialLifetime:      5 * time.Second,
	MaxPlacementAttempts: game.DefaultPlacementAttempts,
}

// Normalized replaces out-of-range values with defaults.
// The grid must be even so the centered bounds are symmetric, and large
// enough to hold the starting snake.
func (s Settings) Normalized() Settings {
	if s.GridSize < 4 {
		s.GridSize = DefaultSettings.GridSize
	}
	if s.GridSize%2 != 0 {
		s.GridSize++
	}
	if s.TickRate <= 0 {
		s.TickRate = DefaultSettings.TickRate
	}
	if s.NormalPoints < 0 {
		s.NormalPoints = 0
	}
	if s.SpecialPoints < 0 {
		s.SpecialPoints = 0
	}
	if s.SpecialSpawnChance < 0 || math.IsNaN(s.SpecialSpawnChance) {
		s.SpecialSpawnChance = 0
	}
	if s.SpecialSpawnChance > 1 {
		s.SpecialSpawnChance = 1
	}
	if s.SpecialLifetime <= 0 {
		s.SpecialLifetime = DefaultSettings.SpecialLifetime
	}
	if s.MaxPlacementAttempts <= 0 {
		s.MaxPlacementAttempts = DefaultSettings.MaxPlacementAttempts
	}
	return s
}

// occupied lists every cell a new food item must avoid.
func (e *Engine) occupied() []game.Point {
	cells := make([]game.Point, 0, len(e.body)+3)
	cells = append(cells, e.body...)
	cells = append(cells, e.head)
	if e.normalFood != nil {
		cells = append(cells, *e.normalFood)
	}
	if e.special != nil {
		cells = append(cells, e.special.Pos)
	}
	return cells
}

// spawnNormalFood places a new normal food. The previous item, if any, is
// still counted as occupied, so a replacement never lands on the cell that
// was just eaten.
func (e *Engine) spawnNormalFood() {
	p := game.FindFreeCell(e.settings.GridSize, e.rng, e.settings.MaxPlacementAttempts, e.occupied()...)
	e.normalFood = &p
}

// spawnSpecialFood places a special food with its lifetime starting now.
// It does nothing while one already exists.
func (e *Engine) spawnSpecialFood() {
	if e.special != nil {
		return
	}
	p := game.FindFreeCell(e.settings.GridSize, e.rng, e.settings.MaxPlacementAttempts, e.occupied()...)
	e.special = &game.SpecialFood{
		Pos:       p,
		SpawnedAt: e.clock.Now(),
		Lifetime:  e.settings.SpecialLifetime,
	}
}

// roundTenths rounds a duration to seconds with one decimal place.
func roundTenths(d time.Duration) float64 {
	return math.Round(d.Seconds()*10) / 10
}
