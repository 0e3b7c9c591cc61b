package traffic

import (
	"container/heap"
	"fmt"
)

// DefaultMaxExpansions caps how many nodes one search may expand.
const DefaultMaxExpansions = 10000

// --- A* pathfinding ---

type pathNode struct {
	pos    Coord
	g      float64
	h      float64
	seq    int // discovery order of pos; lower wins ties on f
	parent *pathNode
	index  int // heap index
}

type openList []*pathNode

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	fi, fj := ol[i].g+ol[i].h, ol[j].g+ol[j].h
	if fi != fj {
		return fi < fj
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int)       { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x interface{}) { n := x.(*pathNode); n.index = len(*ol); *ol = append(*ol, n) }
func (ol *openList) Pop() interface{} {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

// FindPath runs A* from start to goal and returns every cell of the route,
// both endpoints included. The heuristic is straight-line distance. Every edge
// costs at least 1 and joins adjacent cells, so it never overestimates and
// routes are shortest, light surcharges included. Equal-f candidates are
// expanded in discovery order, which keeps repeated searches identical.
func FindPath(g *RoadGraph, start, goal Coord, maxExpansions int) ([]Coord, error) {
	if !g.Contains(start) || !g.Contains(goal) {
		return nil, fmt.Errorf("%s -> %s not on road network: %w", start, goal, ErrPathNotFound)
	}
	if start == goal {
		return []Coord{start}, nil
	}
	if maxExpansions <= 0 {
		maxExpansions = DefaultMaxExpansions
	}

	seqOf := map[Coord]int{start: 0}
	first := &pathNode{pos: start, h: start.Dist(goal)}
	ol := &openList{first}
	heap.Init(ol)

	closed := make(map[Coord]bool)
	best := map[Coord]*pathNode{start: first}
	expansions := 0

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*pathNode)
		if cur.pos == goal {
			return buildPath(cur), nil
		}
		if closed[cur.pos] {
			continue
		}
		closed[cur.pos] = true
		expansions++
		if expansions > maxExpansions {
			return nil, fmt.Errorf("%s -> %s: gave up after %d expansions: %w", start, goal, maxExpansions, ErrPathNotFound)
		}

		for _, e := range g.Neighbors(cur.pos) {
			if closed[e.To] {
				continue
			}
			ng := cur.g + float64(e.Cost)
			if prev, ok := best[e.To]; ok && ng >= prev.g {
				continue
			}
			seq, seen := seqOf[e.To]
			if !seen {
				seq = len(seqOf)
				seqOf[e.To] = seq
			}
			node := &pathNode{pos: e.To, g: ng, h: e.To.Dist(goal), seq: seq, parent: cur}
			best[e.To] = node
			heap.Push(ol, node)
		}
	}
	return nil, fmt.Errorf("%s -> %s: frontier exhausted: %w", start, goal, ErrPathNotFound)
}

func buildPath(end *pathNode) []Coord {
	var cells []Coord
	for n := end; n != nil; n = n.parent {
		cells = append(cells, n.pos)
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}

// PathCost sums the edge costs along path. ok is false if a step is not an edge.
func PathCost(g *RoadGraph, path []Coord) (int, bool) {
	total := 0
	for i := 1; i < len(path); i++ {
		c, ok := g.EdgeCost(path[i-1], path[i])
		if !ok {
			return 0, false
		}
		total += c
	}
	return total, true
}
