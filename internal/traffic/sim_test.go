package traffic

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ringOpts lays a counter-clockwise 5×5 ring with two destinations inside:
// bottom row heads Right, right column Up, top row Left, left column Down.
func ringOpts() []SimOption {
	return []SimOption{
		WithGridSize(5, 5),
		WithRoadRun(0, 0, 4, Right),
		WithRoadRun(4, 0, 4, Up),
		WithRoadRun(4, 4, 4, Left),
		WithRoadRun(0, 4, 4, Down),
		WithRoad(2, 0, Right, Up),
		WithRoad(2, 4, Left, Down),
		WithDestination(2, 1),
		WithDestination(2, 3),
	}
}

func spawningRing(t *testing.T, seed int64, extra ...SimOption) *TestSim {
	t.Helper()
	opts := append(ringOpts(),
		WithSeed(seed),
		WithConfig(func(c *Config) {
			c.MaxCars = 4
			c.SpawnInterval = 1
		}),
	)
	return mustTestSim(t, append(opts, extra...)...)
}

func TestSim_SpawnsOnlyAtCorners(t *testing.T) {
	ts := spawningRing(t, 11)
	for i := 0; i < 60; i++ {
		ts.RunTicks(1)
		assertSingleOccupancy(t, ts)
		if a := ts.Sim.Stats().Active; a > 4 {
			t.Fatalf("T=%d: population %d exceeds cap", ts.CurrentTick(), a)
		}
	}
	spawns := ts.SimLog.Filter("spawn", "car")
	if len(spawns) == 0 {
		t.Fatal("expected spawns")
	}
	corners := []string{"(0,0)", "(4,0)", "(0,4)", "(4,4)"}
	for _, e := range spawns {
		ok := false
		for _, c := range corners {
			if strings.HasPrefix(e.Value, c+" ") {
				ok = true
			}
		}
		if !ok {
			t.Fatalf("spawn away from a corner: %s", e.String())
		}
	}
	if ts.Sim.Stats().Arrived == 0 {
		t.Log(ts.SimLog.Format())
		t.Fatal("expected some arrivals on the ring")
	}
}

func TestSim_SameSeedSameRun(t *testing.T) {
	a := spawningRing(t, 42)
	b := spawningRing(t, 42)
	a.RunTicks(80)
	b.RunTicks(80)
	if a.SimLog.Format() != b.SimLog.Format() {
		t.Fatal("runs with the same seed diverged")
	}
	sa, sb := a.Sim.Stats(), b.Sim.Stats()
	if sa.Arrived != sb.Arrived || sa.Spawned != sb.Spawned {
		t.Fatalf("stats diverged: %+v vs %+v", sa, sb)
	}
}

func TestSim_SpawnNeedsFreeCorner(t *testing.T) {
	ts := mustTestSim(t, append(ringOpts(),
		WithCar(0, 0, 2, 1),
		WithCar(4, 0, 2, 3),
		WithCar(4, 4, 2, 3),
		WithCar(0, 4, 2, 1),
	)...)
	if _, err := ts.Sim.Spawn(); !errors.Is(err, ErrNoSpawnCell) {
		t.Fatalf("expected ErrNoSpawnCell, got %v", err)
	}
}

func TestSim_EmergencySpawnUsesFreeRoad(t *testing.T) {
	ts := mustTestSim(t, append(ringOpts(),
		WithConfig(func(c *Config) { c.EmergencySpawn = true }),
		WithCar(0, 0, 2, 1),
		WithCar(4, 0, 2, 3),
		WithCar(4, 4, 2, 3),
		WithCar(0, 4, 2, 1),
	)...)
	car, err := ts.Sim.Spawn()
	if err != nil {
		t.Fatalf("emergency spawn: %v", err)
	}
	for _, c := range ts.World.Corners() {
		if car.Pos == c {
			t.Fatalf("emergency spawn reused occupied corner %s", c)
		}
	}
	assertSingleOccupancy(t, ts)
}

func TestSim_SpawnWithoutDestinations(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(3, 1),
		WithRoadRun(0, 0, 2, Right),
	)
	if _, err := ts.Sim.Spawn(); !errors.Is(err, ErrNoReachableDestination) {
		t.Fatalf("expected ErrNoReachableDestination, got %v", err)
	}
}

// deadEndCorner has one free corner, (0,0), that cannot reach the only
// destination; the corner that can is occupied.
func deadEndCorner(t *testing.T, withoutPath bool) *TestSim {
	t.Helper()
	return mustTestSim(t,
		WithGridSize(3, 3),
		WithConfig(func(c *Config) {
			c.SpawnAttempts = 4
			c.SpawnWithoutPath = withoutPath
		}),
		WithRoad(0, 0, Up),
		WithRoad(0, 1, Up),
		WithRoad(2, 0, Up),
		WithDestination(2, 1),
		WithCar(2, 0, 2, 1),
	)
}

func TestSim_SpawnRetriesThenGivesUp(t *testing.T) {
	ts := deadEndCorner(t, false)
	if _, err := ts.Sim.Spawn(); !errors.Is(err, ErrNoReachableDestination) {
		t.Fatalf("expected ErrNoReachableDestination, got %v", err)
	}
	if ts.World.VehicleCount() != 1 {
		t.Fatal("a failed spawn must not place a car")
	}
}

func TestSim_SpawnWithoutPathStartsExploring(t *testing.T) {
	ts := deadEndCorner(t, true)
	car, err := ts.Sim.Spawn()
	if err != nil {
		t.Fatalf("spawn without path: %v", err)
	}
	if car.State != StateExploring || car.Pos != C(0, 0) {
		t.Fatalf("expected an Exploring car at (0,0), got %s at %s", car.State, car.Pos)
	}
}

func TestSim_CheckMovePrecedence(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(4, 3),
		WithRoadRun(0, 1, 3, Right),
		WithLight(2, 1, 5, false),
		WithObstacle(1, 2),
		WithRoad(1, 0, Right),
		WithCar(0, 1, 3, 1),
		WithCar(2, 1, 3, 1),
	)
	s := ts.Sim
	cases := []struct {
		name     string
		from, to Coord
		want     MoveVerdict
	}{
		{"legal", C(0, 1), C(1, 1), MoveLegal},
		{"not adjacent", C(0, 1), C(2, 1), BlockedOutOfBounds},
		{"off grid", C(0, 1), C(-1, 1), BlockedOutOfBounds},
		{"obstacle", C(1, 1), C(1, 2), BlockedObstacle},
		{"car before light", C(1, 1), C(2, 1), BlockedCar},
		{"undrivable", C(0, 1), C(0, 2), BlockedUndrivable},
		{"direction", C(1, 1), C(1, 0), BlockedDirection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.CheckMove(1, tc.from, tc.to); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}

	// Once the car leaves, the red light is what blocks.
	if err := ts.World.Move(2, C(2, 1), C(3, 1)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := s.CheckMove(1, C(1, 1), C(2, 1)); got != BlockedLight {
		t.Fatalf("expected red_light, got %s", got)
	}
}

func TestSim_RunStopsAtStepBudget(t *testing.T) {
	ts := spawningRing(t, 3, WithConfig(func(c *Config) { c.MaxTicks = 25 }))
	res, err := ts.Sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Reason != HaltStepBudget || res.Ticks != 25 {
		t.Fatalf("expected step_budget at 25, got %+v", res)
	}
}

func TestSim_RunStopsWhenDrained(t *testing.T) {
	ts := spawningRing(t, 5, WithConfig(func(c *Config) {
		c.SpawnLimit = 3
		c.StopWhenDrained = true
		c.MaxTicks = 500
	}))
	res, err := ts.Sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Reason != HaltDrained {
		t.Log(ts.SimLog.Format())
		t.Fatalf("expected drained, got %+v", res)
	}
	if res.Spawned != 3 || res.Arrived != 3 || res.Active != 0 {
		t.Fatalf("expected 3 spawned and arrived, got %+v", res)
	}
}

func TestSim_RunHonoursCancellation(t *testing.T) {
	ts := spawningRing(t, 9)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := ts.Sim.Run(ctx)
	if !errors.Is(err, context.Canceled) || res.Reason != HaltCancelled {
		t.Fatalf("expected cancellation, got %+v err=%v", res, err)
	}
}

func TestSim_InvalidConfigRejected(t *testing.T) {
	w := mustWorld(t, 2, 2)
	cfg := DefaultConfig()
	cfg.SpawnInterval = 0
	if _, err := New(w, cfg); err == nil {
		t.Fatal("expected spawn_interval validation error")
	}
}

func TestSim_ReporterCollects(t *testing.T) {
	ts := spawningRing(t, 21, WithReporting(50), WithConfig(func(c *Config) { c.ReportInterval = 5 }))
	ts.RunTicks(100)
	hist := ts.Reporter.History()
	if len(hist) != 20 {
		t.Fatalf("expected 20 reports, got %d", len(hist))
	}
	wr := ts.Reporter.WindowSummary()
	if wr == nil || wr.ToTick != 100 || wr.FromTick != 50 {
		t.Fatalf("unexpected window %+v", wr)
	}
	if !strings.Contains(wr.Format(), "Traffic Report") {
		t.Fatal("format should carry the report header")
	}
	t.Log(ts.SimLog.Summary(ts.Sim.Stats(), ts.Sim.Cars()))
}
