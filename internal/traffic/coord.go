package traffic

import (
	"fmt"
	"math"
	"strings"
)

// Coord is a cell position. The origin is the bottom-left cell; y grows upward.
type Coord struct {
	X, Y int
}

// C is shorthand for Coord{X: x, Y: y}.
func C(x, y int) Coord { return Coord{X: x, Y: y} }

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Add returns c shifted by d.
func (c Coord) Add(d Coord) Coord { return Coord{X: c.X + d.X, Y: c.Y + d.Y} }

// Step returns the neighbour of c in direction dir.
func (c Coord) Step(dir Direction) Coord { return c.Add(dir.Delta()) }

// Dist is the Euclidean distance between two cells.
func (c Coord) Dist(o Coord) float64 {
	dx := float64(c.X - o.X)
	dy := float64(c.Y - o.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Adjacent reports whether o is one of c's four orthogonal neighbours.
func (c Coord) Adjacent(o Coord) bool {
	dx := c.X - o.X
	dy := c.Y - o.Y
	return (dx == 0 && (dy == 1 || dy == -1)) || (dy == 0 && (dx == 1 || dx == -1))
}

// Direction is one of the four headings a car may take.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

// Directions lists every heading in a fixed order.
var Directions = [4]Direction{Up, Down, Left, Right}

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Left:
		return "Left"
	case Right:
		return "Right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid reports whether d is one of the four headings.
func (d Direction) Valid() bool { return d >= Up && d <= Right }

// Delta is the one-cell offset for the heading.
func (d Direction) Delta() Coord {
	switch d {
	case Up:
		return Coord{0, 1}
	case Down:
		return Coord{0, -1}
	case Left:
		return Coord{-1, 0}
	case Right:
		return Coord{1, 0}
	}
	return Coord{}
}

// ParseDirection accepts "Up", "Down", "Left" or "Right" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// DirectionBetween returns the heading that moves from a to its neighbour b.
func DirectionBetween(a, b Coord) (Direction, bool) {
	for _, d := range Directions {
		if a.Step(d) == b {
			return d, true
		}
	}
	return 0, false
}
