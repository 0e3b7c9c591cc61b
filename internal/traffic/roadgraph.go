package traffic

import (
	"fmt"

	"github.com/samber/lo"
)

// Edge is a directed, weighted step to a neighbouring cell.
type Edge struct {
	To   Coord
	Cost int
}

// RoadGraph is the directed network of drivable cells. It is derived once from
// the world layout and never mutated afterwards.
type RoadGraph struct {
	nodes    []Coord
	index    map[Coord]int
	adj      [][]Edge
	incoming []int
	edges    int
}

// BuildRoadGraph derives the road network from the world layout. Direction
// rules that do not describe a road or an intersection are rejected with
// ErrMalformedLayout.
func BuildRoadGraph(world *GridWorld, costs LightCosts) (*RoadGraph, error) {
	if err := validateLayout(world); err != nil {
		return nil, err
	}

	g := &RoadGraph{index: make(map[Coord]int)}
	for y := 0; y < world.Height(); y++ {
		for x := 0; x < world.Width(); x++ {
			pos := Coord{x, y}
			if world.IsDrivable(pos) {
				g.index[pos] = len(g.nodes)
				g.nodes = append(g.nodes, pos)
			}
		}
	}
	g.adj = make([][]Edge, len(g.nodes))
	g.incoming = make([]int, len(g.nodes))

	// Base pass: one edge per usable declared direction.
	for i, from := range g.nodes {
		road := world.RoadAt(from)
		if road == nil {
			continue
		}
		fromCost := costs.surcharge(world.LightAt(from))
		for _, d := range road.Exits() {
			to := from.Step(d)
			if !world.InBounds(to) || world.IsObstacle(to) || !world.IsDrivable(to) {
				continue
			}
			cost := 1 + fromCost + costs.surcharge(world.LightAt(to))
			g.addEdge(i, to, cost)
		}
	}

	// Repair pass: make sure every destination is enterable from any
	// neighbour whose rules point at it.
	for _, dest := range world.CellsWith(OccupantDestination) {
		for _, d := range Directions {
			from := dest.Step(d)
			fi, ok := g.index[from]
			if !ok {
				continue
			}
			road := world.RoadAt(from)
			if road == nil {
				continue
			}
			toDest, _ := DirectionBetween(from, dest)
			if !road.Allows(toDest) {
				continue
			}
			if lo.ContainsBy(g.adj[fi], func(e Edge) bool { return e.To == dest }) {
				continue
			}
			g.addEdge(fi, dest, 1)
		}
	}
	return g, nil
}

func (g *RoadGraph) addEdge(from int, to Coord, cost int) {
	g.adj[from] = append(g.adj[from], Edge{To: to, Cost: cost})
	g.incoming[g.index[to]]++
	g.edges++
}

func validateLayout(world *GridWorld) error {
	for _, pos := range world.CellsWith(OccupantRoad) {
		road := world.RoadAt(pos)
		switch len(road.Dirs) {
		case 1:
		case 2:
			if road.Dirs[0] == road.Dirs[1] {
				return fmt.Errorf("intersection at %s repeats %s: %w", pos, road.Dirs[0], ErrMalformedLayout)
			}
		default:
			return fmt.Errorf("road at %s declares %d directions: %w", pos, len(road.Dirs), ErrMalformedLayout)
		}
		for _, d := range road.Dirs {
			if !d.Valid() {
				return fmt.Errorf("road at %s: invalid %s: %w", pos, d, ErrMalformedLayout)
			}
		}
		if world.IsObstacle(pos) {
			return fmt.Errorf("road at %s is also an obstacle: %w", pos, ErrMalformedLayout)
		}
	}
	for _, l := range world.Lights() {
		if l.Period < 1 {
			return fmt.Errorf("light %d at %s has period %d: %w", l.ID, l.Pos, l.Period, ErrMalformedLayout)
		}
		if world.RoadAt(l.Pos) == nil {
			return fmt.Errorf("light %d at %s has no road marking: %w", l.ID, l.Pos, ErrMalformedLayout)
		}
	}
	return nil
}

// Contains reports whether pos is a node of the graph.
func (g *RoadGraph) Contains(pos Coord) bool {
	_, ok := g.index[pos]
	return ok
}

// Neighbors returns the outbound edges of pos in construction order.
func (g *RoadGraph) Neighbors(pos Coord) []Edge {
	i, ok := g.index[pos]
	if !ok {
		return nil
	}
	return g.adj[i]
}

// HasOutgoing reports whether pos has at least one outbound edge.
func (g *RoadGraph) HasOutgoing(pos Coord) bool { return len(g.Neighbors(pos)) > 0 }

// HasIncoming reports whether any edge enters pos.
func (g *RoadGraph) HasIncoming(pos Coord) bool {
	i, ok := g.index[pos]
	return ok && g.incoming[i] > 0
}

// EdgeCost returns the cost of the edge from -> to.
func (g *RoadGraph) EdgeCost(from, to Coord) (int, bool) {
	e, ok := lo.Find(g.Neighbors(from), func(e Edge) bool { return e.To == to })
	return e.Cost, ok
}

// Nodes returns every node in row-major order from the bottom row.
func (g *RoadGraph) Nodes() []Coord { return g.nodes }

// EdgeCount is the total number of directed edges.
func (g *RoadGraph) EdgeCount() int { return g.edges }
