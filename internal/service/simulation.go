// Package service owns the live simulation behind the HTTP API.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/mirandaurban/retoTC2008B/internal/traffic"
)

// ErrNotInitialized is returned by every query before the first Init.
var ErrNotInitialized = errors.New("simulation not initialized, call /init first")

// WorldLoader produces a fresh world for each run.
type WorldLoader func() (*traffic.GridWorld, error)

// InitParams are the client's run parameters. Width and Height are only
// checked against the loaded map.
type InitParams struct {
	NAgents int
	Width   int
	Height  int
	Seed    *int64
}

// RunInfo describes a freshly started run.
type RunInfo struct {
	RunID  uuid.UUID
	Width  int
	Height int
	Seed   int64
}

// Position is one entity as the web client expects it: grid y is sent as z.
type Position struct {
	ID    string `json:"id"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	State string `json:"state,omitempty"`
}

// StatsView is the JSON shape of traffic.Stats.
type StatsView struct {
	RunID         string         `json:"runId"`
	Tick          int            `json:"tick"`
	Active        int            `json:"active"`
	Spawned       int            `json:"spawned"`
	Arrived       int            `json:"arrived"`
	SpawnFailures int            `json:"spawnFailures"`
	States        map[string]int `json:"states"`
}

// Snapshot is the per-tick frame pushed to websocket clients.
type Snapshot struct {
	Type   string     `json:"type"`
	Cars   []Position `json:"cars"`
	Lights []Position `json:"lights"`
	Stats  StatsView  `json:"stats"`
}

// SimulationService serialises access to a single Simulation.
type SimulationService struct {
	mu     sync.Mutex
	load   WorldLoader
	base   traffic.Config
	logger *log.Entry
	hub    *Hub

	sim   *traffic.Simulation
	runID uuid.UUID
}

// NewSimulationService wires a loader and base config. hub may be nil.
func NewSimulationService(load WorldLoader, base traffic.Config, logger *log.Entry, hub *Hub) *SimulationService {
	return &SimulationService{load: load, base: base, logger: logger, hub: hub}
}

// Init discards any current run and starts a new one.
func (s *SimulationService) Init(p InitParams) (RunInfo, error) {
	if p.NAgents < 0 {
		return RunInfo{}, fmt.Errorf("NAgents must be >= 0, got %d", p.NAgents)
	}
	world, err := s.load()
	if err != nil {
		return RunInfo{}, fmt.Errorf("load world: %w", err)
	}
	cfg := s.base
	// NAgents is the run's total: at most that many cars ever spawn.
	cfg.MaxCars = p.NAgents
	cfg.SpawnLimit = p.NAgents
	if p.Seed != nil {
		cfg.Seed = *p.Seed
	}
	// The server steps on request; a tick budget would only get in the way.
	cfg.MaxTicks = 0
	cfg.StopWhenDrained = false

	id := uuid.New()
	logger := s.logger.WithField("run", id.String())
	if (p.Width != 0 && p.Width != world.Width()) || (p.Height != 0 && p.Height != world.Height()) {
		logger.WithFields(log.Fields{
			"requested": fmt.Sprintf("%dx%d", p.Width, p.Height),
			"map":       fmt.Sprintf("%dx%d", world.Width(), world.Height()),
		}).Warn("requested size differs from the map, using the map")
	}
	sim, err := traffic.New(world, cfg,
		traffic.WithLogger(logger),
		traffic.WithReporter(traffic.NewSimReporter(0)),
	)
	if err != nil {
		return RunInfo{}, err
	}

	s.mu.Lock()
	s.sim = sim
	s.runID = id
	s.mu.Unlock()

	return RunInfo{RunID: id, Width: world.Width(), Height: world.Height(), Seed: cfg.Seed}, nil
}

// Step advances one tick and pushes the resulting snapshot to subscribers.
func (s *SimulationService) Step() (int, error) {
	s.mu.Lock()
	if s.sim == nil {
		s.mu.Unlock()
		return 0, ErrNotInitialized
	}
	s.sim.AdvanceOneTick()
	tick := s.sim.Tick()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.hub != nil {
		b, err := json.Marshal(snap)
		if err != nil {
			return tick, fmt.Errorf("encode snapshot: %w", err)
		}
		s.hub.Broadcast(b)
	}
	return tick, nil
}

// withSim runs fn under the lock, or fails before Init.
func (s *SimulationService) withSim(fn func(sim *traffic.Simulation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sim == nil {
		return ErrNotInitialized
	}
	fn(s.sim)
	return nil
}

func cellPositions(cells []traffic.Coord) []Position {
	return lo.Map(cells, func(c traffic.Coord, i int) Position {
		return Position{ID: strconv.Itoa(i + 1), X: c.X, Y: 1, Z: c.Y}
	})
}

func carPositions(cars []traffic.CarView) []Position {
	return lo.Map(cars, func(c traffic.CarView, _ int) Position {
		return Position{ID: strconv.Itoa(int(c.ID)), X: c.Pos.X, Y: 1, Z: c.Pos.Y, State: c.State.String()}
	})
}

func lightPositions(lights []traffic.LightView) []Position {
	return lo.Map(lights, func(l traffic.LightView, _ int) Position {
		state := "red"
		if l.Green {
			state = "green"
		}
		return Position{ID: strconv.Itoa(l.ID), X: l.Pos.X, Y: 1, Z: l.Pos.Y, State: state}
	})
}

// Cars lists live cars.
func (s *SimulationService) Cars() ([]Position, error) {
	var out []Position
	err := s.withSim(func(sim *traffic.Simulation) { out = carPositions(sim.Cars()) })
	return out, err
}

// TrafficLights lists every light with its phase.
func (s *SimulationService) TrafficLights() ([]Position, error) {
	var out []Position
	err := s.withSim(func(sim *traffic.Simulation) { out = lightPositions(sim.Lights()) })
	return out, err
}

// Cells lists the static cells of one kind.
func (s *SimulationService) Cells(kind traffic.OccupantKind) ([]Position, error) {
	var out []Position
	err := s.withSim(func(sim *traffic.Simulation) { out = cellPositions(sim.CellsWith(kind)) })
	return out, err
}

// Stats reports the run's tallies.
func (s *SimulationService) Stats() (StatsView, error) {
	var out StatsView
	err := s.withSim(func(*traffic.Simulation) { out = s.statsLocked() })
	return out, err
}

// Report renders the reporter's window summary as text.
func (s *SimulationService) Report() (string, error) {
	var out string
	err := s.withSim(func(sim *traffic.Simulation) {
		if wr := sim.Reporter().WindowSummary(); wr != nil {
			out = wr.Format()
		} else {
			out = sim.Reporter().FormatLatest()
		}
	})
	return out, err
}

// Snapshot returns the current frame, as sent on each tick.
func (s *SimulationService) Snapshot() (Snapshot, error) {
	var out Snapshot
	err := s.withSim(func(*traffic.Simulation) { out = s.snapshotLocked() })
	return out, err
}

func (s *SimulationService) statsLocked() StatsView {
	st := s.sim.Stats()
	states := make(map[string]int, len(st.ByState))
	for cs, n := range st.ByState {
		if n > 0 {
			states[cs.String()] = n
		}
	}
	return StatsView{
		RunID:         s.runID.String(),
		Tick:          st.Tick,
		Active:        st.Active,
		Spawned:       st.Spawned,
		Arrived:       st.Arrived,
		SpawnFailures: st.SpawnFailures,
		States:        states,
	}
}

func (s *SimulationService) snapshotLocked() Snapshot {
	return Snapshot{
		Type:   "tick",
		Cars:   carPositions(s.sim.Cars()),
		Lights: lightPositions(s.sim.Lights()),
		Stats:  s.statsLocked(),
	}
}
