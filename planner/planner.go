// Package planner implements D*-Lite, the incremental goal-rooted
// shortest-path search (Koenig & Likhachev) used to plan a path across the
// coarse occupancy grid.
package planner

import (
	"container/heap"
	"math"

	"github.com/kats-org/roverd/occupancy"
)

// Plan is an ordered sequence of planning-grid cells from start to goal.
type Plan []occupancy.Coord

// neighborOffsets fixes traversal order (+x, -x, +y, -y) so planner output
// is deterministic.
var neighborOffsets = [4]occupancy.Coord{
	{X: 1, Y: 0},
	{X: -1, Y: 0},
	{X: 0, Y: 1},
	{X: 0, Y: -1},
}

func neighbors(c occupancy.Coord, grid occupancy.Grid) []occupancy.Coord {
	out := make([]occupancy.Coord, 0, 4)
	for _, off := range neighborOffsets {
		n := occupancy.Coord{X: c.X + off.X, Y: c.Y + off.Y}
		if grid.InBounds(n.X, n.Y) {
			out = append(out, n)
		}
	}
	return out
}

func nodeCost(c occupancy.Coord, grid occupancy.Grid) float64 {
	if grid.At(c.X, c.Y) == occupancy.Blocked {
		return math.Inf(1)
	}
	return 1
}

func manhattan(a, b occupancy.Coord) float64 {
	return math.Abs(float64(a.X-b.X)) + math.Abs(float64(a.Y-b.Y))
}

// Planner runs D*-Lite over a coarse grid. km is kept on the struct for
// future incremental-replanning extensions; it is not required for
// correctness within a single grid and is reset to 0 at the start of
// every Plan call, since each call operates on a freshly supplied grid.
type Planner struct {
	km float64
}

// New returns a ready-to-use Planner.
func New() *Planner {
	return &Planner{}
}

// Plan searches grid from start to goal and returns the path, or an empty
// Plan if start/goal are out of bounds, no path exists, or start==goal
// (the trivial-path convention).
func (p *Planner) Plan(grid occupancy.Grid, start, goal occupancy.Coord) Plan {
	if !grid.InBounds(start.X, start.Y) || !grid.InBounds(goal.X, goal.Y) {
		return nil
	}
	if start == goal {
		return nil
	}

	p.km = 0
	s := newSearch(grid, start, goal)
	s.computeShortestPath()
	return s.extractPath()
}

type search struct {
	grid  occupancy.Grid
	start occupancy.Coord
	goal  occupancy.Coord
	km    float64
	g     map[occupancy.Coord]float64
	rhs   map[occupancy.Coord]float64
	open  *openQueue
}

func newSearch(grid occupancy.Grid, start, goal occupancy.Coord) *search {
	s := &search{
		grid:  grid,
		start: start,
		goal:  goal,
		g:     map[occupancy.Coord]float64{},
		rhs:   map[occupancy.Coord]float64{},
		open:  newOpenQueue(),
	}
	s.rhs[goal] = 0
	s.open.push(goal, s.calcKey(goal))
	return s
}

func (s *search) gOf(c occupancy.Coord) float64 {
	if v, ok := s.g[c]; ok {
		return v
	}
	return math.Inf(1)
}

func (s *search) rhsOf(c occupancy.Coord) float64 {
	if v, ok := s.rhs[c]; ok {
		return v
	}
	return math.Inf(1)
}

func (s *search) calcKey(c occupancy.Coord) key {
	m := math.Min(s.gOf(c), s.rhsOf(c))
	return key{k1: m + manhattan(s.start, c) + s.km, k2: m}
}

func (s *search) updateVertex(c occupancy.Coord) {
	if c != s.goal {
		best := math.Inf(1)
		for _, n := range neighbors(c, s.grid) {
			candidate := nodeCost(n, s.grid) + s.gOf(n)
			if candidate < best {
				best = candidate
			}
		}
		s.rhs[c] = best
	}
	s.open.remove(c)
	if s.gOf(c) != s.rhsOf(c) {
		s.open.push(c, s.calcKey(c))
	}
}

func (s *search) computeShortestPath() {
	for {
		topKey, ok := s.open.topKey()
		startInconsistent := s.gOf(s.start) != s.rhsOf(s.start)
		if !ok || (!topKey.less(s.calcKey(s.start)) && !startInconsistent) {
			break
		}

		u, kOld := s.open.pop()
		kNew := s.calcKey(u)
		switch {
		case kOld.less(kNew):
			s.open.push(u, kNew)
		case s.gOf(u) > s.rhsOf(u):
			s.g[u] = s.rhsOf(u)
			for _, n := range neighbors(u, s.grid) {
				s.updateVertex(n)
			}
		default:
			s.g[u] = math.Inf(1)
			s.updateVertex(u)
			for _, n := range neighbors(u, s.grid) {
				s.updateVertex(n)
			}
		}
	}
}

// extractPath greedy-picks, from start, the neighbour minimising
// cost(n)+g(n) until goal or a fixed point is reached.
func (s *search) extractPath() Plan {
	if math.IsInf(s.gOf(s.start), 1) {
		return nil
	}

	path := Plan{s.start}
	current := s.start
	visited := map[occupancy.Coord]bool{current: true}

	for current != s.goal {
		best := current
		bestCost := math.Inf(1)
		for _, n := range neighbors(current, s.grid) {
			c := nodeCost(n, s.grid) + s.gOf(n)
			if c < bestCost {
				bestCost = c
				best = n
			}
		}
		if best == current || visited[best] {
			// no progress: stuck
			return nil
		}
		path = append(path, best)
		visited[best] = true
		current = best
		if len(path) > s.grid.N*s.grid.N+1 {
			return nil
		}
	}

	if len(path) <= 1 {
		return nil
	}
	return path
}

// key is the D*-Lite priority: (min(g,rhs)+h+km, min(g,rhs)), compared
// lexicographically.
type key struct {
	k1, k2 float64
}

func (a key) less(b key) bool {
	if a.k1 != b.k1 {
		return a.k1 < b.k1
	}
	return a.k2 < b.k2
}

type pqItem struct {
	node  occupancy.Coord
	key   key
	index int
}

type innerHeap []*pqItem

func (h innerHeap) Len() int           { return len(h) }
func (h innerHeap) Less(i, j int) bool { return h[i].key.less(h[j].key) }
func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *innerHeap) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// openQueue is the D*-Lite open set: an indexed priority queue supporting
// push/update, remove, and peeking the minimum key without popping.
type openQueue struct {
	h     innerHeap
	index map[occupancy.Coord]*pqItem
}

func newOpenQueue() *openQueue {
	return &openQueue{index: map[occupancy.Coord]*pqItem{}}
}

func (q *openQueue) push(c occupancy.Coord, k key) {
	if item, ok := q.index[c]; ok {
		item.key = k
		heap.Fix(&q.h, item.index)
		return
	}
	item := &pqItem{node: c, key: k}
	heap.Push(&q.h, item)
	q.index[c] = item
}

func (q *openQueue) remove(c occupancy.Coord) {
	item, ok := q.index[c]
	if !ok {
		return
	}
	heap.Remove(&q.h, item.index)
	delete(q.index, c)
}

func (q *openQueue) pop() (occupancy.Coord, key) {
	item := heap.Pop(&q.h).(*pqItem)
	delete(q.index, item.node)
	return item.node, item.key
}

func (q *openQueue) topKey() (key, bool) {
	if len(q.h) == 0 {
		return key{}, false
	}
	return q.h[0].key, true
}
