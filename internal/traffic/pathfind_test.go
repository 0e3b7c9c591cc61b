package traffic

import (
	"errors"
	"math/rand"
	"testing"
)

func straightGraph(t *testing.T, n int) *RoadGraph {
	t.Helper()
	w := mustWorld(t, n, 1)
	for x := 0; x < n-1; x++ {
		_ = w.SetRoad(C(x, 0), Right)
	}
	_ = w.SetDestination(C(n-1, 0))
	g, err := BuildRoadGraph(w, DefaultLightCosts())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func TestFindPath_StartEqualsGoal(t *testing.T) {
	g := straightGraph(t, 4)
	path, err := FindPath(g, C(1, 0), C(1, 0), 0)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(path) != 1 || path[0] != C(1, 0) {
		t.Fatalf("expected [(1,0)], got %v", path)
	}
}

func TestFindPath_Straight(t *testing.T) {
	g := straightGraph(t, 6)
	path, err := FindPath(g, C(0, 0), C(5, 0), 0)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(path) != 6 {
		t.Fatalf("expected 6 cells, got %v", path)
	}
	if path[0] != C(0, 0) || path[5] != C(5, 0) {
		t.Fatalf("path must include both endpoints, got %v", path)
	}
	for i := 1; i < len(path); i++ {
		if !path[i-1].Adjacent(path[i]) {
			t.Fatalf("path step %s->%s is not adjacent", path[i-1], path[i])
		}
	}
}

func TestFindPath_NotFound(t *testing.T) {
	g := straightGraph(t, 4)
	if _, err := FindPath(g, C(3, 0), C(0, 0), 0); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("against a one-way road: expected ErrPathNotFound, got %v", err)
	}
	if _, err := FindPath(g, C(0, 0), C(9, 9), 0); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("goal off the network: expected ErrPathNotFound, got %v", err)
	}
}

func TestFindPath_ExpansionCap(t *testing.T) {
	g := straightGraph(t, 30)
	if _, err := FindPath(g, C(0, 0), C(29, 0), 5); !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("expected cap to yield ErrPathNotFound, got %v", err)
	}
	if _, err := FindPath(g, C(0, 0), C(29, 0), 100); err != nil {
		t.Fatalf("expected success with a generous cap, got %v", err)
	}
}

func TestFindPath_Deterministic(t *testing.T) {
	w := mustWorld(t, 6, 6)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			// Checkerboard of intersections gives many equal-cost routes.
			if (x+y)%2 == 0 {
				_ = w.SetRoad(C(x, y), Right, Up)
			} else {
				_ = w.SetRoad(C(x, y), Up, Right)
			}
		}
	}
	g, err := BuildRoadGraph(w, DefaultLightCosts())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	first, err := FindPath(g, C(0, 0), C(5, 5), 0)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := FindPath(g, C(0, 0), C(5, 5), 0)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed %d -> %d", i, len(first), len(again))
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d: path differs at %d: %v vs %v", i, j, first, again)
			}
		}
	}
}

// bfsCost is the brute-force shortest edge count on a unit-cost graph.
func bfsCost(g *RoadGraph, start, goal Coord) (int, bool) {
	dist := map[Coord]int{start: 0}
	queue := []Coord{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == goal {
			return dist[cur], true
		}
		for _, e := range g.Neighbors(cur) {
			if _, seen := dist[e.To]; !seen {
				dist[e.To] = dist[cur] + 1
				queue = append(queue, e.To)
			}
		}
	}
	return 0, false
}

// Without lights every edge costs 1 and straight-line distance never
// overestimates, so A* must match the brute-force optimum.
func TestFindPath_MatchesBruteForceWithoutLights(t *testing.T) {
	rng := rand.New(rand.NewSource(7)) // #nosec G404 -- test layout
	w := mustWorld(t, 6, 6)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			if rng.Intn(8) == 0 {
				_ = w.SetObstacle(C(x, y))
				continue
			}
			a := Directions[rng.Intn(4)]
			b := Directions[rng.Intn(4)]
			if a == b {
				_ = w.SetRoad(C(x, y), a)
			} else {
				_ = w.SetRoad(C(x, y), a, b)
			}
		}
	}
	g, err := BuildRoadGraph(w, DefaultLightCosts())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	checked := 0
	for _, s := range g.Nodes() {
		for _, d := range g.Nodes() {
			want, reachable := bfsCost(g, s, d)
			path, err := FindPath(g, s, d, 0)
			if !reachable {
				if !errors.Is(err, ErrPathNotFound) {
					t.Fatalf("%s->%s: expected ErrPathNotFound, got %v", s, d, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("%s->%s: reachable but planner failed: %v", s, d, err)
			}
			got, ok := PathCost(g, path)
			if !ok {
				t.Fatalf("%s->%s: path %v uses a non-edge", s, d, path)
			}
			if got != want {
				t.Fatalf("%s->%s: A* cost %d, brute force %d", s, d, got, want)
			}
			checked++
		}
	}
	if checked == 0 {
		t.Fatal("random layout produced no reachable pairs")
	}
}

// dijkstraCost is the brute-force cheapest route cost over weighted edges.
func dijkstraCost(g *RoadGraph, start, goal Coord) (int, bool) {
	dist := map[Coord]int{start: 0}
	done := map[Coord]bool{}
	for {
		cur, best, found := Coord{}, 0, false
		for c, d := range dist {
			if done[c] {
				continue
			}
			if !found || d < best || (d == best && (c.Y < cur.Y || (c.Y == cur.Y && c.X < cur.X))) {
				cur, best, found = c, d, true
			}
		}
		if !found {
			return 0, false
		}
		if cur == goal {
			return best, true
		}
		done[cur] = true
		for _, e := range g.Neighbors(cur) {
			if d, seen := dist[e.To]; !seen || best+e.Cost < d {
				dist[e.To] = best + e.Cost
			}
		}
	}
}

// Light surcharges make edges cost more than 1, never less, so straight-line
// distance still never overestimates and A* must find the cheapest route.
func TestFindPath_WithLightsMatchesDijkstra(t *testing.T) {
	w := mustWorld(t, 4, 3)
	for x := 0; x < 3; x++ {
		_ = w.SetRoad(C(x, 0), Right)
		_ = w.SetRoad(C(x, 2), Right)
	}
	_ = w.SetRoad(C(0, 1), Up)
	_ = w.SetRoad(C(0, 0), Right, Up)
	_ = w.SetRoad(C(3, 0), Up)
	_ = w.SetRoad(C(3, 1), Up)
	_ = w.SetDestination(C(3, 2))
	_, _ = w.AddLight(C(1, 0), 20, true, nil)

	g, err := BuildRoadGraph(w, DefaultLightCosts())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	path, err := FindPath(g, C(0, 0), C(3, 2), 0)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got, ok := PathCost(g, path)
	if !ok {
		t.Fatalf("path %v uses a non-edge", path)
	}
	// Upper route: (0,0)->(0,1)->(0,2)->(1,2)->(2,2)->(3,2) costs 5; the
	// lower one pays the light twice.
	want, _ := dijkstraCost(g, C(0, 0), C(3, 2))
	if want != 5 || got != want {
		t.Fatalf("A* cost %d, cheapest %d (expected 5), path %v", got, want, path)
	}
}

func TestFindPath_RandomLightLayoutsMatchDijkstra(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- test layout
		w := mustWorld(t, 7, 7)
		for y := 0; y < 7; y++ {
			for x := 0; x < 7; x++ {
				pos := C(x, y)
				if rng.Intn(9) == 0 {
					_ = w.SetObstacle(pos)
					continue
				}
				a := Directions[rng.Intn(4)]
				b := Directions[rng.Intn(4)]
				if a == b {
					_ = w.SetRoad(pos, a)
				} else {
					_ = w.SetRoad(pos, a, b)
				}
				if rng.Intn(5) == 0 {
					_, _ = w.AddLight(pos, 1+rng.Intn(30), rng.Intn(2) == 0, nil)
				}
			}
		}
		g, err := BuildRoadGraph(w, DefaultLightCosts())
		if err != nil {
			t.Fatalf("seed %d: build: %v", seed, err)
		}

		checked := 0
		for _, s := range g.Nodes() {
			for _, d := range g.Nodes() {
				want, reachable := dijkstraCost(g, s, d)
				path, err := FindPath(g, s, d, 0)
				if !reachable {
					if !errors.Is(err, ErrPathNotFound) {
						t.Fatalf("seed %d %s->%s: expected ErrPathNotFound, got %v", seed, s, d, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("seed %d %s->%s: reachable but planner failed: %v", seed, s, d, err)
				}
				got, ok := PathCost(g, path)
				if !ok {
					t.Fatalf("seed %d %s->%s: path %v uses a non-edge", seed, s, d, path)
				}
				if got != want {
					t.Fatalf("seed %d %s->%s: A* cost %d, cheapest %d", seed, s, d, got, want)
				}
				checked++
			}
		}
		if checked == 0 {
			t.Fatalf("seed %d: layout produced no reachable pairs", seed)
		}
	}
}
