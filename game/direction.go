package game

import "strings"

// Direction is a unit step on the grid. The zero value is not a valid direction.
type Direction struct {
	X int32 `json:"x"`
	Z int32 `json:"z"`
}

var (
	Right = Direction{X: 1}
	Left  = Direction{X: -1}
	Down  = Direction{Z: 1}
	Up    = Direction{Z: -1}
)

// Opposite returns the reverse of d.
func (d Direction) Opposite() Direction {
	return Direction{X: -d.X, Z: -d.Z}
}

// IsOpposite reports whether d points exactly against other.
func (d Direction) IsOpposite(other Direction) bool {
	return d == other.Opposite()
}

func (d Direction) String() string {
	switch d {
	case Right:
		return "right"
	case Left:
		return "left"
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return "none"
	}
}

// Command is a directional input token sent by a host.
type Command string

const (
	ArrowUp    Command = "ArrowUp"
	ArrowDown  Command = "ArrowDown"
	ArrowLeft  Command = "ArrowLeft"
	ArrowRight Command = "ArrowRight"
)

// ParseCommand maps a command token to a direction.
// Besides the arrow tokens it accepts up/down/left/right and w/a/s/d in any case.
// Unknown tokens return false.
func ParseCommand(cmd Command) (Direction, bool) {
	switch cmd {
	case ArrowUp:
		return Up, true
	case ArrowDown:
		return Down, true
	case ArrowLeft:
		return Left, true
	case ArrowRight:
		return Right, true
	}

	switch strings.ToLower(strings.TrimSpace(string(cmd))) {
	case "up", "w":
		return Up, true
	case "down", "s":
		return Down, true
	case "left", "a":
		return Left, true
	case "right", "d":
		return Right, true
	}
	return Direction{}, false
}
