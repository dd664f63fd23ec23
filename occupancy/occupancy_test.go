package occupancy

import (
	"testing"

	"go.viam.com/test"
)

func TestCoarsenLabelsAndDimensions(t *testing.T) {
	m := NewMap(10)
	cfg := GridConfig{CellPixels: 5, FreeAbove: 200, BlockedBelow: 25}
	g := Coarsen(m, cfg)

	test.That(t, g.N, test.ShouldEqual, 2)
	test.That(t, len(g.Labels), test.ShouldEqual, 4)
	for _, l := range g.Labels {
		test.That(t, l == Free || l == Blocked || l == Unknown, test.ShouldBeTrue)
	}
}

func TestCoarsenAllFreeMapIsAllFree(t *testing.T) {
	m := NewMap(10)
	cfg := GridConfig{CellPixels: 5, FreeAbove: 200, BlockedBelow: 25}
	g := Coarsen(m, cfg)
	for _, l := range g.Labels {
		test.That(t, l, test.ShouldEqual, Free)
	}
}

func TestCoarsenBlockedTile(t *testing.T) {
	m := NewMap(10)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			m.Bytes[y*10+x] = 0
		}
	}
	cfg := GridConfig{CellPixels: 5, FreeAbove: 200, BlockedBelow: 25}
	g := Coarsen(m, cfg)
	test.That(t, g.At(0, 0), test.ShouldEqual, Blocked)
	test.That(t, g.At(1, 0), test.ShouldEqual, Free)
	test.That(t, g.At(0, 1), test.ShouldEqual, Free)
}

func TestCoarsenIsDeterministic(t *testing.T) {
	m := NewMap(20)
	m.Bytes[0] = 100
	cfg := GridConfig{CellPixels: 4, FreeAbove: 200, BlockedBelow: 25}
	a := Coarsen(m, cfg)
	b := Coarsen(m, cfg)
	test.That(t, a, test.ShouldResemble, b)
}

func TestMapCloneIsIndependentlyOwned(t *testing.T) {
	m := NewMap(4)
	clone := m.Clone()
	clone.Bytes[0] = 0
	test.That(t, m.Bytes[0], test.ShouldEqual, byte(255))
}

func TestCoordString(t *testing.T) {
	test.That(t, Coord{X: 1, Y: 2}.String(), test.ShouldEqual, "(1,2)")
}
