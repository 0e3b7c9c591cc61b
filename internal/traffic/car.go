package traffic

import (
	"fmt"
)

// CarState is the behaviour a car is currently in.
type CarState int

const (
	StateFollowingRoute CarState = iota
	StateRecalculatingRoute
	StateExploring
	StateWaitingTrafficLight
	StateWaitingCar
	StateInDestination
	StateStuck
)

// AllCarStates lists every state in declaration order.
var AllCarStates = []CarState{
	StateFollowingRoute, StateRecalculatingRoute, StateExploring,
	StateWaitingTrafficLight, StateWaitingCar, StateInDestination, StateStuck,
}

func (s CarState) String() string {
	switch s {
	case StateFollowingRoute:
		return "Following_route"
	case StateRecalculatingRoute:
		return "Recalculating_route"
	case StateExploring:
		return "Exploring"
	case StateWaitingTrafficLight:
		return "Waiting_traffic_light"
	case StateWaitingCar:
		return "Waiting_car"
	case StateInDestination:
		return "In_destination"
	case StateStuck:
		return "Stuck"
	default:
		return "unknown"
	}
}

// Waiting reports whether s is one of the two waiting states.
func (s CarState) Waiting() bool {
	return s == StateWaitingTrafficLight || s == StateWaitingCar
}

// MoveVerdict is the outcome of a legality check, in check order.
type MoveVerdict int

const (
	MoveLegal MoveVerdict = iota
	BlockedOutOfBounds
	BlockedObstacle
	BlockedCar
	BlockedLight
	BlockedUndrivable
	BlockedDirection
)

func (v MoveVerdict) String() string {
	switch v {
	case MoveLegal:
		return "legal"
	case BlockedOutOfBounds:
		return "out_of_bounds"
	case BlockedObstacle:
		return "obstacle"
	case BlockedCar:
		return "car"
	case BlockedLight:
		return "red_light"
	case BlockedUndrivable:
		return "undrivable"
	case BlockedDirection:
		return "wrong_direction"
	default:
		return "unknown"
	}
}

// Transient is true for blocks that clear on their own (a car or a red light).
func (v MoveVerdict) Transient() bool { return v == BlockedCar || v == BlockedLight }

// Car is one vehicle. It refers to cells only by coordinate.
type Car struct {
	ID          CarID
	Label       string
	Pos         Coord
	Destination Coord
	Path        []Coord
	Cursor      int // index of Pos within Path
	Facing      Direction
	State       CarState

	SpawnTick   int
	ArrivalTick int
	Moves       int
	Replans     int
	WaitTicks   int

	resume    CarState // state to go back to once a wait clears
	intended  Coord    // cell the car is waiting to enter
	waited    int      // ticks spent in the current wait
	exploring int      // ticks spent in Exploring since entering it
}

// Arrived reports whether the car has reached its destination.
func (c *Car) Arrived() bool { return c.State == StateInDestination }

// Remaining returns the unvisited part of the route, excluding Pos.
func (c *Car) Remaining() []Coord {
	if c.State != StateFollowingRoute && !c.State.Waiting() {
		return nil
	}
	if c.Cursor+1 >= len(c.Path) {
		return nil
	}
	return c.Path[c.Cursor+1:]
}

// Step runs one tick of the car's state machine. A car moves at most one cell
// per call.
func (c *Car) Step(s *Simulation) {
	switch c.State {
	case StateFollowingRoute:
		c.follow(s)
	case StateRecalculatingRoute:
		c.recalculate(s)
	case StateExploring:
		c.explore(s)
	case StateWaitingTrafficLight, StateWaitingCar:
		c.wait(s)
	case StateStuck:
		c.unstick(s)
	case StateInDestination:
	}
}

func (c *Car) setState(s *Simulation, next CarState) {
	if c.State == next {
		return
	}
	s.log.Add(s.tick, c.Label, "state", "change", fmt.Sprintf("%s → %s", c.State, next), 0)
	c.State = next
}

func (c *Car) follow(s *Simulation) {
	if c.Cursor >= len(c.Path) || c.Path[c.Cursor] != c.Pos {
		c.setState(s, StateRecalculatingRoute)
		return
	}
	if c.Cursor+1 >= len(c.Path) {
		if c.Pos == c.Destination {
			c.arrive(s)
		} else {
			c.setState(s, StateRecalculatingRoute)
		}
		return
	}

	next := c.Path[c.Cursor+1]
	switch v := s.CheckMove(c.ID, c.Pos, next); v {
	case MoveLegal:
		c.Cursor++
		c.advance(s, next)
	case BlockedCar:
		c.startWait(s, StateWaitingCar, StateFollowingRoute, next)
	case BlockedLight:
		c.startWait(s, StateWaitingTrafficLight, StateFollowingRoute, next)
	default:
		s.log.Add(s.tick, c.Label, "route", "blocked", fmt.Sprintf("%s at %s", v, next), 0)
		c.setState(s, StateRecalculatingRoute)
	}
}

func (c *Car) recalculate(s *Simulation) {
	if !c.replan(s) {
		c.enterExploring(s)
		return
	}
	c.follow(s)
}

// replan asks the planner for a fresh route and switches to following it.
func (c *Car) replan(s *Simulation) bool {
	c.Replans++
	path, err := FindPath(s.graph, c.Pos, c.Destination, s.cfg.MaxExpansions)
	if err != nil {
		s.log.Add(s.tick, c.Label, "route", "replan_failed", err.Error(), 0)
		return false
	}
	c.Path = path
	c.Cursor = 0
	s.log.Add(s.tick, c.Label, "route", "planned",
		fmt.Sprintf("%s → %s in %d steps", c.Pos, c.Destination, len(path)-1), float64(len(path)-1))
	c.setState(s, StateFollowingRoute)
	return true
}

func (c *Car) enterExploring(s *Simulation) {
	c.exploring = 0
	c.Path = nil
	c.Cursor = 0
	c.setState(s, StateExploring)
}

func (c *Car) explore(s *Simulation) {
	c.exploring++
	if c.exploring%s.cfg.ExploreReplanEvery == 0 && c.replan(s) {
		c.follow(s)
		return
	}

	to, v, ok := c.firstExit(s)
	switch {
	case ok:
		c.advance(s, to)
	case v == BlockedCar:
		c.startWait(s, StateWaitingCar, StateExploring, to)
	case v == BlockedLight:
		c.startWait(s, StateWaitingTrafficLight, StateExploring, to)
	default:
		s.log.Add(s.tick, c.Label, "route", "dead_end", c.Pos.String(), 0)
		c.setState(s, StateStuck)
	}
}

// firstExit scans the current cell's exits in order. It returns the first
// legal target, or else the first target blocked by a car or light. Other
// destinations are never entered while exploring.
func (c *Car) firstExit(s *Simulation) (Coord, MoveVerdict, bool) {
	road := s.world.RoadAt(c.Pos)
	if road == nil {
		return Coord{}, BlockedDirection, false
	}
	var blockedAt Coord
	blocked := BlockedDirection
	for _, d := range road.Exits() {
		to := c.Pos.Step(d)
		if s.world.IsDestination(to) && to != c.Destination {
			continue
		}
		v := s.CheckMove(c.ID, c.Pos, to)
		if v == MoveLegal {
			return to, v, true
		}
		if v.Transient() && !blocked.Transient() {
			blocked, blockedAt = v, to
		}
	}
	return blockedAt, blocked, false
}

func (c *Car) startWait(s *Simulation, state, resume CarState, target Coord) {
	c.resume = resume
	c.intended = target
	c.waited = 0
	c.setState(s, state)
}

func (c *Car) wait(s *Simulation) {
	c.waited++
	c.WaitTicks++
	if c.waited%s.cfg.WaitRecheck != 0 {
		return
	}

	switch v := s.CheckMove(c.ID, c.Pos, c.intended); v {
	case MoveLegal:
		c.setState(s, c.resume)
		if c.resume == StateFollowingRoute {
			c.Cursor++
		}
		c.advance(s, c.intended)
	case BlockedCar:
		if c.State != StateWaitingCar {
			c.waited = 0
			c.setState(s, StateWaitingCar)
			return
		}
		if s.cfg.WaitPatience > 0 && c.waited >= s.cfg.WaitPatience {
			s.log.Add(s.tick, c.Label, "route", "gave_up_waiting",
				fmt.Sprintf("%d ticks behind car %d", c.waited, s.world.VehicleAt(c.intended)), float64(c.waited))
			c.enterExploring(s)
		}
	case BlockedLight:
		if c.State != StateWaitingTrafficLight {
			c.waited = 0
			c.setState(s, StateWaitingTrafficLight)
		}
	default:
		if c.resume == StateFollowingRoute {
			c.setState(s, StateRecalculatingRoute)
		} else {
			c.enterExploring(s)
		}
	}
}

func (c *Car) unstick(s *Simulation) {
	if _, _, ok := c.firstExit(s); ok {
		c.enterExploring(s)
	}
}

// advance moves the car one cell and handles arrival.
func (c *Car) advance(s *Simulation, to Coord) {
	from := c.Pos
	if err := s.world.Move(c.ID, from, to); err != nil {
		s.logger.WithError(err).WithField("car", c.Label).Error("move rejected by grid")
		c.setState(s, StateRecalculatingRoute)
		return
	}
	if d, ok := DirectionBetween(from, to); ok {
		c.Facing = d
	}
	c.Pos = to
	c.Moves++
	s.log.AddVerbose(s.tick, c.Label, "move", "step", fmt.Sprintf("%s → %s", from, to), 0)
	if to == c.Destination {
		c.arrive(s)
	}
}

func (c *Car) arrive(s *Simulation) {
	c.ArrivalTick = s.tick
	c.Path = nil
	c.setState(s, StateInDestination)
	if err := s.world.Vacate(c.ID, c.Pos); err != nil {
		s.logger.WithError(err).WithField("car", c.Label).Error("vacate on arrival")
	}
	s.arrived++
	s.log.Add(s.tick, c.Label, "arrive", "destination",
		fmt.Sprintf("%s after %d ticks", c.Pos, s.tick-c.SpawnTick), float64(s.tick-c.SpawnTick))
}
