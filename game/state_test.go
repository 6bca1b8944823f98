package game

import (
	"math/rand"
	"strings"
	"testing"
	"time"
)

// dumpBoard is a test helper to visualize a set of cells on the board.
func dumpBoard(gridSize int32, marks map[Point]byte) string {
	lo, hi := Bounds(gridSize)
	var sb strings.Builder
	for z := lo; z <= hi; z++ {
		for x := lo; x <= hi; x++ {
			if c, ok := marks[Point{X: x, Z: z}]; ok {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestWrap_Edges(t *testing.T) {
	cases := []struct {
		name string
		in   Point
		want Point
	}{
		{"east edge", Point{X: 10, Z: 3}, Point{X: -10, Z: 3}},
		{"west edge", Point{X: -11, Z: 3}, Point{X: 9, Z: 3}},
		{"south edge", Point{X: 0, Z: 10}, Point{X: 0, Z: -10}},
		{"north edge", Point{X: 0, Z: -11}, Point{X: 0, Z: 9}},
		{"corner", Point{X: 10, Z: -11}, Point{X: -10, Z: 9}},
		{"inside", Point{X: 9, Z: -10}, Point{X: 9, Z: -10}},
	}
	for _, c := range cases {
		if got := Wrap(c.in, DefaultGridSize); got != c.want {
			t.Fatalf("%s: Wrap(%v)=%v want=%v", c.name, c.in, got, c.want)
		}
	}
}

func TestBounds_DefaultGrid(t *testing.T) {
	lo, hi := Bounds(DefaultGridSize)
	if lo != -10 || hi != 9 {
		t.Fatalf("bounds=(%d,%d) want=(-10,9)", lo, hi)
	}
	if !InBounds(Point{X: -10, Z: 9}, DefaultGridSize) {
		t.Fatalf("(-10,9) should be in bounds")
	}
	if InBounds(Point{X: 10, Z: 0}, DefaultGridSize) {
		t.Fatalf("(10,0) should be out of bounds")
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		cmd  Command
		want Direction
		ok   bool
	}{
		{ArrowUp, Up, true},
		{ArrowDown, Down, true},
		{ArrowLeft, Left, true},
		{ArrowRight, Right, true},
		{"up", Up, true},
		{"D", Right, true},
		{" s ", Down, true},
		{"a", Left, true},
		{"Space", Direction{}, false},
		{"", Direction{}, false},
	}
	for _, c := range cases {
		got, ok := ParseCommand(c.cmd)
		if ok != c.ok || got != c.want {
			t.Fatalf("ParseCommand(%q)=(%v,%v) want=(%v,%v)", c.cmd, got, ok, c.want, c.ok)
		}
	}
}

func TestDirection_Opposite(t *testing.T) {
	if !Right.IsOpposite(Left) || !Up.IsOpposite(Down) {
		t.Fatalf("expected right/left and up/down to be opposite")
	}
	if Right.IsOpposite(Up) || Right.IsOpposite(Right) {
		t.Fatalf("perpendicular or equal directions are not opposite")
	}
	if Up.Opposite() != Down {
		t.Fatalf("Up.Opposite()=%v want=%v", Up.Opposite(), Down)
	}
}

func TestFindFreeCell_AvoidsOccupied(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	occupied := []Point{{X: 0, Z: 0}, {X: -1, Z: 0}, {X: -2, Z: 0}, {X: 3, Z: 3}}

	for i := 0; i < 500; i++ {
		p := FindFreeCell(DefaultGridSize, rng, DefaultPlacementAttempts, occupied...)
		if !InBounds(p, DefaultGridSize) {
			t.Fatalf("placed out of bounds at %v", p)
		}
		for _, o := range occupied {
			if p == o {
				t.Fatalf("placed on occupied cell %v", p)
			}
		}
	}
}

func TestFindFreeCell_FullBoardFallsBack(t *testing.T) {
	const size = 4
	lo, hi := Bounds(size)
	var occupied []Point
	marks := map[Point]byte{}
	for z := lo; z <= hi; z++ {
		for x := lo; x <= hi; x++ {
			occupied = append(occupied, Point{X: x, Z: z})
			marks[Point{X: x, Z: z}] = 'o'
		}
	}
	t.Logf("full board:\n%s", dumpBoard(size, marks))

	rng := rand.New(rand.NewSource(1))
	if got := FindFreeCell(size, rng, DefaultPlacementAttempts, occupied...); got != FallbackCell {
		t.Fatalf("got=%v want fallback %v", got, FallbackCell)
	}
}

func TestFindFreeCell_SingleFreeCellIsFound(t *testing.T) {
	const size = 4
	lo, hi := Bounds(size)
	free := Point{X: 1, Z: -2}
	var occupied []Point
	for z := lo; z <= hi; z++ {
		for x := lo; x <= hi; x++ {
			if (Point{X: x, Z: z}) != free {
				occupied = append(occupied, Point{X: x, Z: z})
			}
		}
	}

	// 16 cells, one free: 10k attempts make a miss vanishingly unlikely.
	rng := rand.New(rand.NewSource(3))
	if got := FindFreeCell(size, rng, 10000, occupied...); got != free {
		t.Fatalf("got=%v want=%v", got, free)
	}
}

func TestSpecialFood_RemainingAndExpiry(t *testing.T) {
	t0 := time.Unix(1000, 0)
	sf := SpecialFood{Pos: Point{X: 1, Z: 1}, SpawnedAt: t0, Lifetime: 5 * time.Second}

	if got := sf.Remaining(t0.Add(1500 * time.Millisecond)); got != 3500*time.Millisecond {
		t.Fatalf("remaining=%v want=3.5s", got)
	}
	if sf.Expired(t0.Add(5 * time.Second)) {
		t.Fatalf("item should still be alive at exactly its lifetime")
	}
	if !sf.Expired(t0.Add(5*time.Second + time.Millisecond)) {
		t.Fatalf("item should be expired past its lifetime")
	}
	if got := sf.Remaining(t0.Add(9 * time.Second)); got != 0 {
		t.Fatalf("remaining=%v want=0", got)
	}
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	food := Point{X: 2, Z: 2}
	s := &Snapshot{
		Body:       []Point{{X: -1}, {X: -2}},
		NormalFood: &food,
		Special:    &SpecialView{Pos: Point{X: 3}, Remaining: 4.2},
	}
	c := s.Clone()
	c.Body[0] = Point{X: 5}
	c.NormalFood.X = 9
	c.Special.Remaining = 0

	if s.Body[0] != (Point{X: -1}) {
		t.Fatalf("clone shares body with original")
	}
	if s.NormalFood.X != 2 || s.Special.Remaining != 4.2 {
		t.Fatalf("clone shares food with original")
	}
}
