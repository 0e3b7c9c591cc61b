package traffic

import (
	"fmt"
)

// TestSim is a headless harness around Simulation used by tests and the
// headless report runner. Layout, cars and tuning are given as options.
type TestSim struct {
	Width  int
	Height int
	Config Config
	World  *GridWorld
	Sim    *Simulation
	SimLog *SimLog

	// Reporter is nil unless WithReporting is given.
	Reporter *SimReporter

	layout []func(*GridWorld) error
	cars   [][2]Coord
}

// simOptionKind controls the pass in which an option is applied.
type simOptionKind int

const (
	simOptInfra  simOptionKind = iota // grid size, seed, config, verbose, applied first
	simOptLayout                      // roads, lights, obstacles, destinations
	simOptCar                         // cars, placed after the simulation is built
)

// SimOption is a builder function applied to a TestSim during construction.
type SimOption struct {
	kind simOptionKind
	fn   func(*TestSim)
}

// WithGridSize sets the world dimensions.
func WithGridSize(w, h int) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.Width = w
		ts.Height = h
	}}
}

// WithWorld uses a prebuilt world (e.g. a loaded city map) instead of the
// layout options.
func WithWorld(w *GridWorld) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.World = w
		ts.Width = w.Width()
		ts.Height = w.Height()
	}}
}

// WithSeed sets the RNG seed for deterministic runs.
func WithSeed(seed int64) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.Config.Seed = seed
	}}
}

// WithConfig edits the run configuration in place.
func WithConfig(edit func(*Config)) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		edit(&ts.Config)
	}}
}

// WithVerbose enables per-move logging.
func WithVerbose(v bool) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.SimLog = NewSimLog(v)
	}}
}

// WithReporting attaches a reporter with the given window.
func WithReporting(windowTicks int) SimOption {
	return SimOption{simOptInfra, func(ts *TestSim) {
		ts.Reporter = NewSimReporter(windowTicks)
	}}
}

func layoutOpt(fn func(*GridWorld) error) SimOption {
	return SimOption{simOptLayout, func(ts *TestSim) {
		ts.layout = append(ts.layout, fn)
	}}
}

// WithRoad marks (x,y) drivable in the given directions.
func WithRoad(x, y int, dirs ...Direction) SimOption {
	return layoutOpt(func(w *GridWorld) error { return w.SetRoad(C(x, y), dirs...) })
}

// WithRoadRun lays a straight one-way road of n cells from (x,y) heading dir.
func WithRoadRun(x, y, n int, dir Direction) SimOption {
	return layoutOpt(func(w *GridWorld) error {
		pos := C(x, y)
		for i := 0; i < n; i++ {
			if err := w.SetRoad(pos, dir); err != nil {
				return err
			}
			pos = pos.Step(dir)
		}
		return nil
	})
}

// WithLight places a light on (x,y), which must also carry a road.
func WithLight(x, y, period int, green bool) SimOption {
	return layoutOpt(func(w *GridWorld) error {
		_, err := w.AddLight(C(x, y), period, green, nil)
		return err
	})
}

// WithObstacle blocks (x,y).
func WithObstacle(x, y int) SimOption {
	return layoutOpt(func(w *GridWorld) error { return w.SetObstacle(C(x, y)) })
}

// WithDestination marks (x,y) as a destination.
func WithDestination(x, y int) SimOption {
	return layoutOpt(func(w *GridWorld) error { return w.SetDestination(C(x, y)) })
}

// WithCar places a car at (x,y) bound for (dx,dy).
func WithCar(x, y, dx, dy int) SimOption {
	return SimOption{simOptCar, func(ts *TestSim) {
		ts.cars = append(ts.cars, [2]Coord{C(x, y), C(dx, dy)})
	}}
}

// NewTestSim constructs a TestSim from the given options in ordered passes:
//  1. Infrastructure (grid size, seed, config, verbose)
//  2. Layout, unless a world was supplied
//  3. Simulation (road graph)
//  4. Cars
//
// Spawning is off unless WithConfig sets MaxCars; tests place cars explicitly.
func NewTestSim(opts ...SimOption) (*TestSim, error) {
	cfg := DefaultConfig()
	cfg.MaxCars = 0
	cfg.MaxTicks = 0
	cfg.HeartbeatInterval = 0
	ts := &TestSim{
		Width:  5,
		Height: 5,
		Config: cfg,
		SimLog: NewSimLog(false),
	}
	for _, o := range opts {
		if o.kind == simOptInfra {
			o.fn(ts)
		}
	}
	if ts.World == nil {
		w, err := NewGridWorld(ts.Width, ts.Height)
		if err != nil {
			return nil, err
		}
		ts.World = w
		for _, o := range opts {
			if o.kind == simOptLayout {
				o.fn(ts)
			}
		}
		for _, fn := range ts.layout {
			if err := fn(w); err != nil {
				return nil, fmt.Errorf("layout: %w", err)
			}
		}
	}

	simOpts := []Option{WithSimLog(ts.SimLog)}
	if ts.Reporter != nil {
		simOpts = append(simOpts, WithReporter(ts.Reporter))
	}
	sim, err := New(ts.World, ts.Config, simOpts...)
	if err != nil {
		return nil, err
	}
	ts.Sim = sim

	for _, o := range opts {
		if o.kind == simOptCar {
			o.fn(ts)
		}
	}
	for _, c := range ts.cars {
		if _, err := sim.AddCar(c[0], c[1]); err != nil {
			return nil, fmt.Errorf("car at %s: %w", c[0], err)
		}
	}
	return ts, nil
}

// RunTicks advances the simulation n ticks.
func (ts *TestSim) RunTicks(n int) {
	for i := 0; i < n; i++ {
		ts.Sim.AdvanceOneTick()
	}
}

// RunUntil advances the simulation up to maxTicks, stopping early if predicate
// returns true. Returns the tick at which the predicate was satisfied, or -1.
func (ts *TestSim) RunUntil(predicate func(*TestSim) bool, maxTicks int) int {
	for i := 0; i < maxTicks; i++ {
		ts.Sim.AdvanceOneTick()
		if predicate(ts) {
			return ts.Sim.Tick()
		}
	}
	return -1
}

// CurrentTick returns the current simulation tick.
func (ts *TestSim) CurrentTick() int {
	return ts.Sim.Tick()
}

// Car returns the live car with the given id.
func (ts *TestSim) Car(id CarID) *Car {
	c, _ := ts.Sim.Car(id)
	return c
}
