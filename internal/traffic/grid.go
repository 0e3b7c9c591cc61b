package traffic

import (
	"fmt"
)

// CarID identifies a car in the simulation registry. Zero means "no car".
type CarID int

// OccupantKind tags the closed set of things a cell can hold.
type OccupantKind int

const (
	OccupantRoad OccupantKind = iota
	OccupantLight
	OccupantObstacle
	OccupantDestination
	OccupantVehicle
)

func (k OccupantKind) String() string {
	switch k {
	case OccupantRoad:
		return "road"
	case OccupantLight:
		return "light"
	case OccupantObstacle:
		return "obstacle"
	case OccupantDestination:
		return "destination"
	case OccupantVehicle:
		return "vehicle"
	default:
		return "unknown"
	}
}

// Occupant is one entry of a cell. Only the payload field matching Kind is set.
type Occupant struct {
	Kind  OccupantKind
	Road  *RoadMarking
	Light *TrafficLight
	Car   CarID
}

// RoadMarking holds a drivable cell's declared directions. One direction is a
// plain one-way road; two directions form an intersection read as (entry, exit).
type RoadMarking struct {
	Dirs []Direction
}

// Intersection reports whether the marking declares an (entry, exit) pair.
func (r *RoadMarking) Intersection() bool { return len(r.Dirs) == 2 }

// Exits returns the legal outbound headings, exit leg first for intersections.
func (r *RoadMarking) Exits() []Direction {
	if r.Intersection() {
		return []Direction{r.Dirs[1], r.Dirs[0]}
	}
	return append([]Direction(nil), r.Dirs...)
}

// Allows reports whether a car may leave the cell heading d.
func (r *RoadMarking) Allows(d Direction) bool {
	for _, x := range r.Dirs {
		if x == d {
			return true
		}
	}
	return false
}

type cell struct {
	road        *RoadMarking
	light       int // index into GridWorld.lights, -1 when none
	obstacle    bool
	destination bool
	car         CarID
}

// GridWorld is the fixed-size arena of cells. Layout is written once by the
// builder methods; afterwards only car occupancy changes. Not safe for
// concurrent use.
type GridWorld struct {
	width  int
	height int
	cells  []cell
	lights []*TrafficLight
}

// NewGridWorld creates an empty width×height world.
func NewGridWorld(width, height int) (*GridWorld, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid %dx%d: %w", width, height, ErrMalformedLayout)
	}
	w := &GridWorld{
		width:  width,
		height: height,
		cells:  make([]cell, width*height),
	}
	for i := range w.cells {
		w.cells[i].light = -1
	}
	return w, nil
}

// Width returns the number of columns.
func (w *GridWorld) Width() int { return w.width }

// Height returns the number of rows.
func (w *GridWorld) Height() int { return w.height }

// InBounds reports whether pos addresses a cell.
func (w *GridWorld) InBounds(pos Coord) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X < w.width && pos.Y < w.height
}

func (w *GridWorld) at(pos Coord) (*cell, error) {
	if !w.InBounds(pos) {
		return nil, fmt.Errorf("%s in %dx%d grid: %w", pos, w.width, w.height, ErrOutOfBounds)
	}
	return &w.cells[pos.Y*w.width+pos.X], nil
}

// SetRoad marks pos as drivable with the given directions. Validation of the
// direction count happens when the road graph is built.
func (w *GridWorld) SetRoad(pos Coord, dirs ...Direction) error {
	c, err := w.at(pos)
	if err != nil {
		return err
	}
	c.road = &RoadMarking{Dirs: append([]Direction(nil), dirs...)}
	return nil
}

// AddLight places a traffic light on pos. governing may be nil.
func (w *GridWorld) AddLight(pos Coord, period int, green bool, governing *Direction) (*TrafficLight, error) {
	c, err := w.at(pos)
	if err != nil {
		return nil, err
	}
	if c.light >= 0 {
		return nil, fmt.Errorf("second light at %s: %w", pos, ErrMalformedLayout)
	}
	l := &TrafficLight{
		ID:     len(w.lights) + 1,
		Pos:    pos,
		Green:  green,
		Period: period,
	}
	if governing != nil {
		d := *governing
		l.Governing = &d
	}
	c.light = len(w.lights)
	w.lights = append(w.lights, l)
	return l, nil
}

// SetObstacle marks pos as impassable.
func (w *GridWorld) SetObstacle(pos Coord) error {
	c, err := w.at(pos)
	if err != nil {
		return err
	}
	c.obstacle = true
	return nil
}

// SetDestination marks pos as a destination.
func (w *GridWorld) SetDestination(pos Coord) error {
	c, err := w.at(pos)
	if err != nil {
		return err
	}
	c.destination = true
	return nil
}

// OccupantsAt lists everything on pos in a stable order.
func (w *GridWorld) OccupantsAt(pos Coord) ([]Occupant, error) {
	c, err := w.at(pos)
	if err != nil {
		return nil, err
	}
	var out []Occupant
	if c.road != nil {
		out = append(out, Occupant{Kind: OccupantRoad, Road: c.road})
	}
	if c.light >= 0 {
		out = append(out, Occupant{Kind: OccupantLight, Light: w.lights[c.light]})
	}
	if c.obstacle {
		out = append(out, Occupant{Kind: OccupantObstacle})
	}
	if c.destination {
		out = append(out, Occupant{Kind: OccupantDestination})
	}
	if c.car != 0 {
		out = append(out, Occupant{Kind: OccupantVehicle, Car: c.car})
	}
	return out, nil
}

// IsOccupiedByVehicle reports whether a car is on pos.
func (w *GridWorld) IsOccupiedByVehicle(pos Coord) (bool, error) {
	c, err := w.at(pos)
	if err != nil {
		return false, err
	}
	return c.car != 0, nil
}

// VehicleAt returns the car on pos, or 0.
func (w *GridWorld) VehicleAt(pos Coord) CarID {
	c, err := w.at(pos)
	if err != nil {
		return 0
	}
	return c.car
}

// RoadAt returns the road marking on pos, or nil.
func (w *GridWorld) RoadAt(pos Coord) *RoadMarking {
	c, err := w.at(pos)
	if err != nil {
		return nil
	}
	return c.road
}

// LightAt returns the light on pos, or nil.
func (w *GridWorld) LightAt(pos Coord) *TrafficLight {
	c, err := w.at(pos)
	if err != nil || c.light < 0 {
		return nil
	}
	return w.lights[c.light]
}

// IsObstacle is false for out-of-bounds cells; callers check bounds first.
func (w *GridWorld) IsObstacle(pos Coord) bool {
	c, err := w.at(pos)
	return err == nil && c.obstacle
}

// IsDestination reports whether pos is a destination cell.
func (w *GridWorld) IsDestination(pos Coord) bool {
	c, err := w.at(pos)
	return err == nil && c.destination
}

// IsDrivable reports whether a car may stand on pos: a road or a destination.
func (w *GridWorld) IsDrivable(pos Coord) bool {
	c, err := w.at(pos)
	return err == nil && !c.obstacle && (c.road != nil || c.destination)
}

// Lights returns every light in load order.
func (w *GridWorld) Lights() []*TrafficLight { return w.lights }

// Place puts car id on pos.
func (w *GridWorld) Place(id CarID, pos Coord) error {
	c, err := w.at(pos)
	if err != nil {
		return err
	}
	if c.car != 0 && c.car != id {
		return fmt.Errorf("place car %d at %s (held by %d): %w", id, pos, c.car, ErrCellOccupied)
	}
	c.car = id
	return nil
}

// Vacate removes car id from pos.
func (w *GridWorld) Vacate(id CarID, pos Coord) error {
	c, err := w.at(pos)
	if err != nil {
		return err
	}
	if c.car != id {
		return fmt.Errorf("vacate car %d at %s: %w", id, pos, ErrNotOccupant)
	}
	c.car = 0
	return nil
}

// Move relocates car id from one cell to another. Both cells are validated
// before either is modified.
func (w *GridWorld) Move(id CarID, from, to Coord) error {
	src, err := w.at(from)
	if err != nil {
		return err
	}
	dst, err := w.at(to)
	if err != nil {
		return err
	}
	if src.car != id {
		return fmt.Errorf("move car %d from %s: %w", id, from, ErrNotOccupant)
	}
	if dst.car != 0 && dst.car != id {
		return fmt.Errorf("move car %d to %s (held by %d): %w", id, to, dst.car, ErrCellOccupied)
	}
	src.car = 0
	dst.car = id
	return nil
}

// CellsWith lists the coordinates holding an occupant of the given kind, in
// row-major order from the bottom row.
func (w *GridWorld) CellsWith(kind OccupantKind) []Coord {
	var out []Coord
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			c := &w.cells[y*w.width+x]
			var has bool
			switch kind {
			case OccupantRoad:
				has = c.road != nil
			case OccupantLight:
				has = c.light >= 0
			case OccupantObstacle:
				has = c.obstacle
			case OccupantDestination:
				has = c.destination
			case OccupantVehicle:
				has = c.car != 0
			}
			if has {
				out = append(out, Coord{x, y})
			}
		}
	}
	return out
}

// Corners returns the four spawn corners in a fixed order.
func (w *GridWorld) Corners() [4]Coord {
	return [4]Coord{
		{0, 0},
		{w.width - 1, 0},
		{0, w.height - 1},
		{w.width - 1, w.height - 1},
	}
}

// VehicleCount counts occupied cells.
func (w *GridWorld) VehicleCount() int {
	n := 0
	for i := range w.cells {
		if w.cells[i].car != 0 {
			n++
		}
	}
	return n
}
