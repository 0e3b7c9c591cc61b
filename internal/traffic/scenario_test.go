package traffic

import (
	"strings"
	"testing"
)

// dumpLog prints the full SimLog to t.Log so it appears in `go test -v` output.
func dumpLog(t *testing.T, ts *TestSim) {
	t.Helper()
	entries := ts.SimLog.Entries()
	if len(entries) == 0 {
		t.Log("(no log entries)")
		return
	}
	for _, e := range entries {
		t.Log(e.String())
	}
}

func mustTestSim(t *testing.T, opts ...SimOption) *TestSim {
	t.Helper()
	ts, err := NewTestSim(opts...)
	if err != nil {
		t.Fatalf("new test sim: %v", err)
	}
	return ts
}

// assertSingleOccupancy fails if two live cars share a cell or the grid and
// the registry disagree.
func assertSingleOccupancy(t *testing.T, ts *TestSim) {
	t.Helper()
	seen := map[Coord]CarID{}
	for _, c := range ts.Sim.Cars() {
		if other, dup := seen[c.Pos]; dup {
			t.Fatalf("T=%d: cars %d and %d share %s", ts.CurrentTick(), other, c.ID, c.Pos)
		}
		seen[c.Pos] = c.ID
		if got := ts.World.VehicleAt(c.Pos); got != c.ID {
			t.Fatalf("T=%d: grid holds %d at %s, registry says %d", ts.CurrentTick(), got, c.Pos, c.ID)
		}
	}
	if n := ts.World.VehicleCount(); n != len(seen) {
		t.Fatalf("T=%d: grid has %d cars, registry %d", ts.CurrentTick(), n, len(seen))
	}
}

func arrived(n int) func(*TestSim) bool {
	return func(ts *TestSim) bool { return ts.Sim.Stats().Arrived >= n }
}

// --- Scenario: straight one-way road ---

func TestScenario_StraightRoadArrives(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(5, 5),
		WithVerbose(true),
		WithRoadRun(0, 2, 2, Right),
		WithDestination(2, 2),
		WithCar(0, 2, 2, 2),
	)
	if c := ts.Car(1); c == nil || c.State != StateFollowingRoute {
		t.Fatalf("car should start Following_route, got %+v", c)
	}

	tick := ts.RunUntil(arrived(1), 3)
	dumpLog(t, ts)
	if tick < 0 {
		t.Fatal("car did not arrive within 3 ticks")
	}

	moves := ts.SimLog.FilterCar("C1")
	var trail []string
	for _, e := range moves {
		if e.Category == "move" {
			trail = append(trail, e.Value)
		}
	}
	want := []string{"(0,2) → (1,2)", "(1,2) → (2,2)"}
	if strings.Join(trail, "|") != strings.Join(want, "|") {
		t.Fatalf("expected trail %v, got %v", want, trail)
	}
	if !ts.SimLog.HasEntry("state", "change", "Following_route → In_destination") {
		t.Fatal("expected transition into In_destination")
	}
	if ts.Car(1) != nil {
		t.Fatal("arrived car must leave the registry")
	}
	if ts.World.VehicleAt(C(2, 2)) != 0 {
		t.Fatal("arrived car must be removed from the grid")
	}
}

// --- Scenario: queue behind a car stopped at a red light ---

func TestScenario_WaitingCarThenResume(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(5, 5),
		WithRoadRun(0, 2, 4, Right),
		WithLight(3, 2, 10, false),
		WithDestination(4, 2),
		WithCar(2, 2, 4, 2), // C1: first in line, faces the red light
		WithCar(1, 2, 4, 2), // C2: directly behind
	)

	ts.RunTicks(1)
	assertSingleOccupancy(t, ts)
	if s := ts.Car(1).State; s != StateWaitingTrafficLight {
		t.Fatalf("C1: expected Waiting_traffic_light, got %s", s)
	}
	if s := ts.Car(2).State; s != StateWaitingCar {
		t.Fatalf("C2: expected Waiting_car, got %s", s)
	}

	tick := ts.RunUntil(func(ts *TestSim) bool {
		assertSingleOccupancy(t, ts)
		return ts.Sim.Stats().Arrived == 2
	}, 30)
	dumpLog(t, ts)
	if tick < 0 {
		t.Fatal("both cars should arrive once the light turns green")
	}
	if tick < 10 {
		t.Fatalf("cars arrived at T=%d, before the light could turn green", tick)
	}
	if !ts.SimLog.HasEntry("state", "change", "Waiting_car → Following_route") {
		t.Fatal("C2 should resume following after the queue clears")
	}
}

// --- Scenario: two cars converge on one free cell ---

func TestScenario_ConvergingCarsOneWaits(t *testing.T) {
	winners := map[CarID]bool{}
	for seed := int64(0); seed < 50; seed++ {
		ts := mustTestSim(t,
			WithGridSize(5, 5),
			WithSeed(seed),
			WithRoad(1, 2, Right),
			WithRoad(2, 1, Up),
			WithRoadRun(2, 2, 2, Right),
			WithDestination(4, 2),
			WithCar(1, 2, 4, 2), // C1: enters (2,2) heading Right
			WithCar(2, 1, 4, 2), // C2: enters (2,2) heading Up
		)

		ts.RunTicks(1)
		assertSingleOccupancy(t, ts)
		winner := ts.World.VehicleAt(C(2, 2))
		if winner != 1 && winner != 2 {
			t.Fatalf("seed %d: expected one car on (2,2), found %d", seed, winner)
		}
		loser := CarID(3) - winner
		if s := ts.Car(loser).State; s != StateWaitingCar {
			dumpLog(t, ts)
			t.Fatalf("seed %d: C%d lost the cell and should be Waiting_car, got %s", seed, loser, s)
		}
		if ts.Car(winner).State != StateFollowingRoute {
			t.Fatalf("seed %d: C%d should keep following, got %s", seed, winner, ts.Car(winner).State)
		}
		winners[winner] = true
	}
	if len(winners) != 2 {
		t.Fatalf("expected both step orders across seeds, winners seen: %v", winners)
	}
}

// --- Scenario: red light then resume ---

func TestScenario_RedLightWaitThenResume(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(5, 5),
		WithVerbose(true),
		WithRoadRun(0, 2, 2, Right),
		WithLight(1, 2, 4, false),
		WithDestination(2, 2),
		WithCar(0, 2, 2, 2),
	)

	ts.RunTicks(1)
	if s := ts.Car(1).State; s != StateWaitingTrafficLight {
		t.Fatalf("expected Waiting_traffic_light, got %s", s)
	}

	tick := ts.RunUntil(arrived(1), 10)
	dumpLog(t, ts)
	if tick < 0 {
		t.Fatal("car should arrive after the light turns green")
	}
	entered, ok := ts.SimLog.LastOf("move", "step")
	if !ok {
		t.Fatal("expected move entries")
	}
	for _, e := range ts.SimLog.Filter("move", "step") {
		if strings.HasSuffix(e.Value, "(1,2)") && e.Tick < 4 {
			t.Fatalf("entered the light cell at T=%d while red", e.Tick)
		}
	}
	if entered.Value != "(1,2) → (2,2)" {
		t.Fatalf("expected final move onto the destination, got %q", entered.Value)
	}
	if !ts.SimLog.HasEntry("state", "change", "Waiting_traffic_light → Following_route") {
		t.Fatal("expected resume into Following_route")
	}
}

// --- Scenario: giving up on a blocked queue and exploring around it ---

func TestScenario_WaitPatienceExploresDetour(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(5, 5),
		WithConfig(func(c *Config) {
			c.WaitPatience = 3
			c.LightCosts = LightCosts{}
		}),
		WithRoad(0, 2, Right),
		WithRoad(1, 2, Up, Right),
		WithRoad(2, 2, Right),
		WithRoad(3, 2, Right),
		WithLight(3, 2, 1000, false),
		WithDestination(4, 2),
		WithRoadRun(1, 3, 3, Right),
		WithRoad(4, 3, Down),
		WithCar(2, 2, 4, 2), // C1: held by a light that stays red
		WithCar(0, 2, 4, 2), // C2
	)

	tick := ts.RunUntil(arrived(1), 25)
	dumpLog(t, ts)
	if tick < 0 {
		t.Fatal("C2 should detour around the stalled queue")
	}
	if !ts.SimLog.HasEntry("route", "gave_up_waiting", "") {
		t.Fatal("expected C2 to give up waiting")
	}
	if ts.Car(2) != nil {
		t.Fatal("C2 should be the car that arrived")
	}
	if s := ts.Car(1).State; s != StateWaitingTrafficLight {
		t.Fatalf("C1 should still wait at the light, got %s", s)
	}
}

// --- Scenario: dead end ---

func TestScenario_DeadEndIsStuck(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(3, 3),
		WithRoad(0, 0, Left), // leads off the grid
		WithRoad(1, 1, Right),
		WithDestination(2, 1),
		WithCar(0, 0, 2, 1),
	)
	c := ts.Car(1)
	if c.State != StateExploring {
		t.Fatalf("car without a route should start Exploring, got %s", c.State)
	}
	ts.RunTicks(1)
	if c.State != StateStuck {
		t.Fatalf("expected Stuck, got %s", c.State)
	}
	ts.RunTicks(10)
	if c.State != StateStuck || c.Pos != C(0, 0) {
		t.Fatalf("stuck car should stay put, got %s at %s", c.State, c.Pos)
	}
}

// --- Scenario: stuck car recovers when its exit clears ---

func TestScenario_StuckRecoversWhenExitClears(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(4, 1),
		WithRoadRun(0, 0, 3, Right),
		WithDestination(3, 0),
		WithCar(0, 0, 3, 0),
	)
	c := ts.Car(1)
	c.State = StateStuck
	ts.RunTicks(1)
	if c.State != StateExploring {
		t.Fatalf("expected Stuck → Exploring once an exit is legal, got %s", c.State)
	}
	if tick := ts.RunUntil(arrived(1), 10); tick < 0 {
		t.Fatal("recovered car should still reach its destination")
	}
}

// --- Scenario: exploring car replans every K ticks ---

func TestScenario_ExploringReplansOnSchedule(t *testing.T) {
	ts := mustTestSim(t,
		WithGridSize(8, 1),
		WithConfig(func(c *Config) { c.ExploreReplanEvery = 3 }),
		WithRoadRun(0, 0, 7, Right),
		WithDestination(7, 0),
		WithCar(0, 0, 7, 0),
	)
	c := ts.Car(1)
	c.Path = nil
	c.State = StateExploring

	ts.RunTicks(2)
	if c.State != StateExploring || c.Replans != 0 {
		t.Fatalf("no replan before tick 3: state=%s replans=%d", c.State, c.Replans)
	}
	ts.RunTicks(1)
	if c.State != StateFollowingRoute || c.Replans != 1 {
		t.Fatalf("expected a replan on the third exploring tick: state=%s replans=%d", c.State, c.Replans)
	}
	if c.Pos != C(3, 0) {
		t.Fatalf("car should keep moving one cell per tick, at %s", c.Pos)
	}
}
