package traffic

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Agent is anything the scheduler steps once per tick.
type Agent interface {
	Step(s *Simulation)
}

// lightAgent adapts a TrafficLight to the scheduler.
type lightAgent struct {
	light *TrafficLight
}

func (a lightAgent) Step(s *Simulation) {
	if a.light.Step(s.tick) {
		s.log.AddVerbose(s.tick, "--", "light", "toggle",
			fmt.Sprintf("light %d at %s → %s", a.light.ID, a.light.Pos, a.light.Phase()), 0)
	}
}

// Simulation is the full run context: world, road graph, lights, car
// registry, clock and RNG. Nothing about a run lives outside it. A
// Simulation is single-threaded; callers that share one across goroutines
// must serialise access.
type Simulation struct {
	cfg    Config
	world  *GridWorld
	graph  *RoadGraph
	lights *LightController
	rng    *rand.Rand

	tick          int
	cars          map[CarID]*Car
	order         []CarID // ascending ids of live cars
	nextID        CarID
	spawned       int
	arrived       int
	spawnFailures int

	destinations []Coord // destinations with at least one inbound edge

	log      *SimLog
	reporter *SimReporter
	logger   *log.Entry
}

// Option customises a Simulation at construction.
type Option func(*Simulation)

// WithLogger routes operational logging to l.
func WithLogger(l *log.Entry) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithSimLog records structured events into sl.
func WithSimLog(sl *SimLog) Option {
	return func(s *Simulation) { s.log = sl }
}

// WithReporter collects periodic snapshots into r.
func WithReporter(r *SimReporter) Option {
	return func(s *Simulation) { s.reporter = r }
}

// New builds the road graph for world and prepares a run. Layout errors are
// returned wrapped around ErrMalformedLayout.
func New(world *GridWorld, cfg Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	graph, err := BuildRoadGraph(world, cfg.LightCosts)
	if err != nil {
		return nil, fmt.Errorf("build road graph: %w", err)
	}

	s := &Simulation{
		cfg:    cfg,
		world:  world,
		graph:  graph,
		lights: NewLightController(world),
		rng:    rand.New(rand.NewSource(cfg.Seed)), // #nosec G404 -- deterministic simulation RNG
		cars:   make(map[CarID]*Car),
		nextID: 1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = NewSimLog(cfg.VerboseLog)
	}
	if s.logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		s.logger = log.NewEntry(l)
	}

	s.destinations = lo.Filter(world.CellsWith(OccupantDestination), func(p Coord, _ int) bool {
		return graph.HasIncoming(p)
	})
	s.logger.WithFields(log.Fields{
		"width":        world.Width(),
		"height":       world.Height(),
		"nodes":        len(graph.Nodes()),
		"edges":        graph.EdgeCount(),
		"lights":       len(world.Lights()),
		"destinations": len(s.destinations),
		"seed":         cfg.Seed,
	}).Info("simulation ready")
	return s, nil
}

// CheckMove applies the legality rules for car id stepping from -> to, in
// order: obstacle, other car, red light, drivable, declared direction.
func (s *Simulation) CheckMove(id CarID, from, to Coord) MoveVerdict {
	if !s.world.InBounds(to) || !from.Adjacent(to) {
		return BlockedOutOfBounds
	}
	if s.world.IsObstacle(to) {
		return BlockedObstacle
	}
	if other := s.world.VehicleAt(to); other != 0 && other != id {
		return BlockedCar
	}
	if !s.lights.Evaluate(to) {
		return BlockedLight
	}
	if !s.world.IsDrivable(to) {
		return BlockedUndrivable
	}
	road := s.world.RoadAt(from)
	d, _ := DirectionBetween(from, to)
	if road == nil || !road.Allows(d) {
		return BlockedDirection
	}
	return MoveLegal
}

// AddCar places a car at pos bound for dest. It starts Following_route when
// a route exists and Exploring otherwise.
func (s *Simulation) AddCar(pos, dest Coord) (*Car, error) {
	path, err := FindPath(s.graph, pos, dest, s.cfg.MaxExpansions)
	if err != nil {
		path = nil
	}
	return s.register(pos, dest, path)
}

func (s *Simulation) register(pos, dest Coord, path []Coord) (*Car, error) {
	id := s.nextID
	if err := s.world.Place(id, pos); err != nil {
		return nil, err
	}
	s.nextID++
	c := &Car{
		ID:          id,
		Label:       fmt.Sprintf("C%d", id),
		Pos:         pos,
		Destination: dest,
		SpawnTick:   s.tick,
		State:       StateExploring,
	}
	if len(path) > 0 {
		c.Path = path
		c.State = StateFollowingRoute
		if len(path) > 1 {
			if d, ok := DirectionBetween(path[0], path[1]); ok {
				c.Facing = d
			}
		}
	}
	s.cars[id] = c
	s.order = append(s.order, id)
	s.spawned++
	s.log.Add(s.tick, c.Label, "spawn", "car",
		fmt.Sprintf("%s → %s (%s)", pos, dest, c.State), float64(len(path)))
	return c, nil
}

func (s *Simulation) shouldSpawn() bool {
	if s.tick%s.cfg.SpawnInterval != 0 {
		return false
	}
	if len(s.cars) >= s.cfg.MaxCars {
		return false
	}
	return s.cfg.SpawnLimit == 0 || s.spawned < s.cfg.SpawnLimit
}

// spawnCell picks a free corner that has outgoing edges, falling back to
// any free road cell when EmergencySpawn is set.
func (s *Simulation) spawnCell() (Coord, bool) {
	usable := func(p Coord) bool {
		return s.graph.HasOutgoing(p) && s.world.VehicleAt(p) == 0 && !s.world.IsDestination(p)
	}
	corners := s.world.Corners()
	free := lo.Filter(lo.Uniq(corners[:]), func(p Coord, _ int) bool { return usable(p) })
	if len(free) == 0 && s.cfg.EmergencySpawn {
		free = lo.Filter(s.graph.Nodes(), func(p Coord, _ int) bool { return usable(p) })
	}
	if len(free) == 0 {
		return Coord{}, false
	}
	return free[s.rng.Intn(len(free))], true
}

// Spawn tries to add one car at a free corner with a random reachable
// destination, drawing up to SpawnAttempts candidates.
func (s *Simulation) Spawn() (*Car, error) {
	if len(s.destinations) == 0 {
		return nil, fmt.Errorf("tick %d: map has no enterable destination: %w", s.tick, ErrNoReachableDestination)
	}
	var lastStart, lastDest Coord
	tried := false
	for attempt := 0; attempt < s.cfg.SpawnAttempts; attempt++ {
		start, ok := s.spawnCell()
		if !ok {
			return nil, fmt.Errorf("tick %d: %w", s.tick, ErrNoSpawnCell)
		}
		dest := s.destinations[s.rng.Intn(len(s.destinations))]
		lastStart, lastDest, tried = start, dest, true
		path, err := FindPath(s.graph, start, dest, s.cfg.MaxExpansions)
		if err != nil {
			continue
		}
		return s.register(start, dest, path)
	}
	if s.cfg.SpawnWithoutPath && tried {
		return s.register(lastStart, lastDest, nil)
	}
	return nil, fmt.Errorf("tick %d after %d attempts: %w", s.tick, s.cfg.SpawnAttempts, ErrNoReachableDestination)
}

// agents returns cars in id order followed by lights in load order.
func (s *Simulation) agents() []Agent {
	out := make([]Agent, 0, len(s.order)+len(s.world.Lights()))
	for _, id := range s.order {
		out = append(out, s.cars[id])
	}
	for _, l := range s.world.Lights() {
		out = append(out, lightAgent{light: l})
	}
	return out
}

// AdvanceOneTick runs a single tick: clock, spawn, then every agent once in a
// fresh random order against live state.
func (s *Simulation) AdvanceOneTick() {
	s.tick++

	if s.shouldSpawn() {
		if _, err := s.Spawn(); err != nil {
			s.spawnFailures++
			s.log.Add(s.tick, "--", "spawn", "failed", err.Error(), 0)
			s.logger.WithError(err).Debug("spawn deferred")
		}
	}

	agents := s.agents()
	for _, i := range s.rng.Perm(len(agents)) {
		agents[i].Step(s)
	}

	s.order = lo.Filter(s.order, func(id CarID, _ int) bool {
		if s.cars[id].Arrived() {
			delete(s.cars, id)
			return false
		}
		return true
	})

	if s.reporter != nil && s.cfg.ReportInterval > 0 && s.tick%s.cfg.ReportInterval == 0 {
		s.reporter.Collect(s.Stats())
	}
	if s.cfg.HeartbeatInterval > 0 && s.tick%s.cfg.HeartbeatInterval == 0 {
		st := s.Stats()
		s.logger.WithFields(log.Fields{
			"tick":    st.Tick,
			"active":  st.Active,
			"arrived": st.Arrived,
			"waiting": st.ByState[StateWaitingCar] + st.ByState[StateWaitingTrafficLight],
			"stuck":   st.ByState[StateStuck],
		}).Info("heartbeat")
	}
}

// HaltReason says why Run returned.
type HaltReason string

const (
	HaltStepBudget HaltReason = "step_budget"
	HaltDrained    HaltReason = "drained"
	HaltCancelled  HaltReason = "cancelled"
)

// RunResult summarises a finished run.
type RunResult struct {
	Reason  HaltReason
	Ticks   int
	Spawned int
	Arrived int
	Active  int
}

// Drained reports whether every car that will ever spawn has arrived.
func (s *Simulation) Drained() bool {
	return s.cfg.SpawnLimit > 0 && s.spawned >= s.cfg.SpawnLimit && len(s.cars) == 0
}

// Run advances until the step budget is spent, the drain policy holds, or
// ctx is cancelled.
func (s *Simulation) Run(ctx context.Context) (RunResult, error) {
	var reason HaltReason
	var err error
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			reason, err = HaltCancelled, ctxErr
			break
		}
		if s.cfg.MaxTicks > 0 && s.tick >= s.cfg.MaxTicks {
			reason = HaltStepBudget
			break
		}
		if s.cfg.StopWhenDrained && s.Drained() {
			reason = HaltDrained
			break
		}
		s.AdvanceOneTick()
	}
	res := RunResult{
		Reason:  reason,
		Ticks:   s.tick,
		Spawned: s.spawned,
		Arrived: s.arrived,
		Active:  len(s.cars),
	}
	s.logger.WithFields(log.Fields{
		"reason":  res.Reason,
		"ticks":   res.Ticks,
		"spawned": res.Spawned,
		"arrived": res.Arrived,
	}).Info("run finished")
	return res, err
}

// --- read-only queries ---

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int { return s.tick }

// Size returns the grid dimensions.
func (s *Simulation) Size() (int, int) { return s.world.Width(), s.world.Height() }

// Config returns the run's configuration.
func (s *Simulation) Config() Config { return s.cfg }

// World exposes the grid for read-only inspection.
func (s *Simulation) World() *GridWorld { return s.world }

// Graph exposes the road graph.
func (s *Simulation) Graph() *RoadGraph { return s.graph }

// Log returns the structured event log.
func (s *Simulation) Log() *SimLog { return s.log }

// Reporter returns the attached reporter, or nil.
func (s *Simulation) Reporter() *SimReporter { return s.reporter }

// Destinations lists the destinations cars can be sent to.
func (s *Simulation) Destinations() []Coord { return s.destinations }

// CellsWith lists cells holding the given occupant kind.
func (s *Simulation) CellsWith(kind OccupantKind) []Coord { return s.world.CellsWith(kind) }

// Car looks up a live car.
func (s *Simulation) Car(id CarID) (*Car, bool) {
	c, ok := s.cars[id]
	return c, ok
}

// CarView is a copy of a car's public state.
type CarView struct {
	ID          CarID
	Label       string
	Pos         Coord
	Destination Coord
	Facing      Direction
	State       CarState
	Remaining   int
}

// Cars returns views of every live car in id order.
func (s *Simulation) Cars() []CarView {
	return lo.Map(s.order, func(id CarID, _ int) CarView {
		c := s.cars[id]
		return CarView{
			ID:          c.ID,
			Label:       c.Label,
			Pos:         c.Pos,
			Destination: c.Destination,
			Facing:      c.Facing,
			State:       c.State,
			Remaining:   len(c.Remaining()),
		}
	})
}

// LightView is a copy of a light's public state.
type LightView struct {
	ID     int
	Pos    Coord
	Green  bool
	Period int
}

// Lights returns views of every light in load order.
func (s *Simulation) Lights() []LightView {
	return lo.Map(s.world.Lights(), func(l *TrafficLight, _ int) LightView {
		return LightView{ID: l.ID, Pos: l.Pos, Green: l.Green, Period: l.Period}
	})
}

// Stats is a point-in-time tally of the run.
type Stats struct {
	Tick          int
	Active        int
	Spawned       int
	Arrived       int
	SpawnFailures int
	ByState       map[CarState]int
}

// Stats tallies the current population.
func (s *Simulation) Stats() Stats {
	st := Stats{
		Tick:          s.tick,
		Active:        len(s.cars),
		Spawned:       s.spawned,
		Arrived:       s.arrived,
		SpawnFailures: s.spawnFailures,
		ByState:       make(map[CarState]int, len(AllCarStates)),
	}
	for _, c := range s.cars {
		st.ByState[c.State]++
	}
	return st
}
