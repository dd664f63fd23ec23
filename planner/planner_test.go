package planner

import (
	"testing"

	"go.viam.com/test"

	"github.com/kats-org/roverd/occupancy"
)

// gridFromRows builds a Grid from rows of characters: '.' = Free,
// '#' = Blocked, '?' = Unknown. Every row must have the same length.
func gridFromRows(rows []string) occupancy.Grid {
	n := len(rows)
	labels := make([]occupancy.Cell, n*n)
	for y, row := range rows {
		for x, ch := range row {
			var c occupancy.Cell
			switch ch {
			case '#':
				c = occupancy.Blocked
			case '?':
				c = occupancy.Unknown
			default:
				c = occupancy.Free
			}
			labels[y*n+x] = c
		}
	}
	return occupancy.Grid{N: n, Labels: labels}
}

func TestPlanTrivialSameCellReturnsEmpty(t *testing.T) {
	g := gridFromRows([]string{"...", "...", "..."})
	p := New()
	path := p.Plan(g, occupancy.Coord{X: 1, Y: 1}, occupancy.Coord{X: 1, Y: 1})
	test.That(t, path, test.ShouldBeNil)
}

func TestPlanOutOfBoundsReturnsEmpty(t *testing.T) {
	g := gridFromRows([]string{"...", "...", "..."})
	p := New()
	test.That(t, p.Plan(g, occupancy.Coord{X: -1, Y: 0}, occupancy.Coord{X: 1, Y: 1}), test.ShouldBeNil)
	test.That(t, p.Plan(g, occupancy.Coord{X: 0, Y: 0}, occupancy.Coord{X: 3, Y: 3}), test.ShouldBeNil)
}

func TestPlanStraightCorridor(t *testing.T) {
	g := gridFromRows([]string{
		".....",
		".....",
		".....",
		".....",
		".....",
	})
	p := New()
	path := p.Plan(g, occupancy.Coord{X: 0, Y: 2}, occupancy.Coord{X: 4, Y: 2})
	test.That(t, path, test.ShouldNotBeNil)
	test.That(t, path[0], test.ShouldResemble, occupancy.Coord{X: 0, Y: 2})
	test.That(t, path[len(path)-1], test.ShouldResemble, occupancy.Coord{X: 4, Y: 2})
	test.That(t, len(path), test.ShouldEqual, 5)
	for i := 1; i < len(path); i++ {
		dx := path[i].X - path[i-1].X
		dy := path[i].Y - path[i-1].Y
		test.That(t, abs(dx)+abs(dy), test.ShouldEqual, 1)
	}
}

func TestPlanBlockedCorridorFollowsFreeRow(t *testing.T) {
	rows := make([]string, 10)
	for i := range rows {
		if i == 5 {
			rows[i] = ".........."
		} else {
			rows[i] = "##########"
		}
	}
	g := gridFromRows(rows)
	p := New()
	path := p.Plan(g, occupancy.Coord{X: 0, Y: 5}, occupancy.Coord{X: 9, Y: 5})
	test.That(t, len(path), test.ShouldEqual, 10)
	for i, c := range path {
		test.That(t, c, test.ShouldResemble, occupancy.Coord{X: i, Y: 5})
	}
}

func TestPlanSingleObstacleDetour(t *testing.T) {
	g := gridFromRows([]string{
		".....",
		".....",
		"..#..",
		".....",
		".....",
	})
	p := New()
	path := p.Plan(g, occupancy.Coord{X: 2, Y: 0}, occupancy.Coord{X: 2, Y: 4})
	test.That(t, path, test.ShouldNotBeNil)
	for _, c := range path {
		test.That(t, g.At(c.X, c.Y), test.ShouldNotEqual, occupancy.Blocked)
	}
	test.That(t, path[0], test.ShouldResemble, occupancy.Coord{X: 2, Y: 0})
	test.That(t, path[len(path)-1], test.ShouldResemble, occupancy.Coord{X: 2, Y: 4})
}

func TestPlanUnreachableGoalReturnsEmpty(t *testing.T) {
	g := gridFromRows([]string{
		".....",
		".....",
		"#####",
		".....",
		".....",
	})
	p := New()
	path := p.Plan(g, occupancy.Coord{X: 2, Y: 0}, occupancy.Coord{X: 2, Y: 4})
	test.That(t, path, test.ShouldBeNil)
}

func TestPlanIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	g := gridFromRows([]string{
		".....",
		".....",
		"..#..",
		".....",
		".....",
	})
	p := New()
	first := p.Plan(g, occupancy.Coord{X: 0, Y: 2}, occupancy.Coord{X: 4, Y: 2})
	second := p.Plan(g, occupancy.Coord{X: 0, Y: 2}, occupancy.Coord{X: 4, Y: 2})
	test.That(t, first, test.ShouldResemble, second)
}

func TestPlanThroughSingleGapInWall(t *testing.T) {
	g := gridFromRows([]string{
		".....",
		".....",
		"###.#",
		".....",
		".....",
	})
	p := New()
	path := p.Plan(g, occupancy.Coord{X: 0, Y: 0}, occupancy.Coord{X: 0, Y: 4})
	test.That(t, path, test.ShouldNotBeNil)
	passedThroughGap := false
	for _, c := range path {
		if c.X == 3 && c.Y == 2 {
			passedThroughGap = true
		}
	}
	test.That(t, passedThroughGap, test.ShouldBeTrue)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
