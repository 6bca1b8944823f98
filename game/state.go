// Package game defines the core state types for the dragon snake.
//
// These types are the logical model only: grid coordinates, directions and
// read-only snapshots handed to hosts. Anything visual (meshes, bobbing,
// rotation) belongs to the host that renders a Snapshot.
package game

import "time"

// DefaultGridSize is the side length of the square board.
const DefaultGridSize = 20

// Point is a grid cell.
// The board is centered on the origin; Y is not simulated so only X and Z exist.
type Point struct {
	X int32 `json:"x"`
	Z int32 `json:"z"`
}

// Add returns p moved one step along d.
func (p Point) Add(d Direction) Point {
	return Point{X: p.X + d.X, Z: p.Z + d.Z}
}

// Bounds returns the inclusive coordinate range for a grid of the given size.
func Bounds(gridSize int32) (lo, hi int32) {
	half := gridSize / 2
	return -half, half - 1
}

// InBounds reports whether p lies on a grid of the given size.
func InBounds(p Point, gridSize int32) bool {
	lo, hi := Bounds(gridSize)
	return p.X >= lo && p.X <= hi && p.Z >= lo && p.Z <= hi
}

// Wrap folds p back onto the board, each axis independently, so the grid
// behaves as a torus.
func Wrap(p Point, gridSize int32) Point {
	return Point{X: wrapAxis(p.X, gridSize), Z: wrapAxis(p.Z, gridSize)}
}

func wrapAxis(v, gridSize int32) int32 {
	limit := gridSize / 2
	if v >= limit {
		return -limit
	}
	if v < -limit {
		return limit - 1
	}
	return v
}

// SpecialFood is the timed bonus item.
type SpecialFood struct {
	Pos       Point
	SpawnedAt time.Time
	Lifetime  time.Duration
}

// Remaining returns the lifetime left at now, never negative.
func (s SpecialFood) Remaining(now time.Time) time.Duration {
	left := s.Lifetime - now.Sub(s.SpawnedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the item has outlived its lifetime at now.
// An item is still edible at exactly its lifetime.
func (s SpecialFood) Expired(now time.Time) bool {
	return now.Sub(s.SpawnedAt) > s.Lifetime
}

// SpecialView is the host-facing view of a special food item.
type SpecialView struct {
	Pos Point `json:"pos"`
	// Remaining is seconds left, rounded to one decimal.
	Remaining float64 `json:"remaining"`
}

// Snapshot is a copy of the engine state for rendering and recording.
// Mutating a Snapshot never affects the engine it came from.
type Snapshot struct {
	GameID     string       `json:"game_id"`
	Tick       int32        `json:"tick"`
	GridSize   int32        `json:"grid_size"`
	Head       Point        `json:"head"`
	Facing     Direction    `json:"facing"`
	Body       []Point      `json:"body"`
	NormalFood *Point       `json:"normal_food,omitempty"`
	Special    *SpecialView `json:"special,omitempty"`
	Score      int          `json:"score"`
	Playing    bool         `json:"playing"`
	Over       bool         `json:"over"`
}

// Length is the number of body segments, head excluded.
func (s *Snapshot) Length() int {
	return len(s.Body)
}

// Clone performs a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	if len(s.Body) > 0 {
		out.Body = make([]Point, len(s.Body))
		copy(out.Body, s.Body)
	}
	if s.NormalFood != nil {
		f := *s.NormalFood
		out.NormalFood = &f
	}
	if s.Special != nil {
		sp := *s.Special
		out.Special = &sp
	}
	return &out
}
