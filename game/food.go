// food.go implements the placement policy for new food items.

package game

import (
	"math/rand"
)

// DefaultPlacementAttempts bounds the rejection sampling in FindFreeCell.
const DefaultPlacementAttempts = 100

// FallbackCell is used when no free cell was found within the attempt bound.
var FallbackCell = Point{}

// FindFreeCell samples uniformly random cells and returns the first one not in
// occupied. After maxAttempts rejections it gives up and returns FallbackCell,
// which may itself be occupied on a nearly full board.
func FindFreeCell(gridSize int32, rng *rand.Rand, maxAttempts int, occupied ...Point) Point {
	if gridSize <= 0 {
		return FallbackCell
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPlacementAttempts
	}

	taken := make(map[Point]struct{}, len(occupied))
	for _, p := range occupied {
		taken[p] = struct{}{}
	}

	lo, hi := Bounds(gridSize)
	span := int(hi - lo + 1)
	if span <= 0 {
		return FallbackCell
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p := Point{
			X: int32(rng.Intn(span)) + lo,
			Z: int32(rng.Intn(span)) + lo,
		}
		if _, ok := taken[p]; !ok {
			return p
		}
	}
	return FallbackCell
}
