package modearbiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/kats-org/roverd/actuator"
	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/planner"
	"github.com/kats-org/roverd/pose"
	"github.com/kats-org/roverd/scan"
)

type fakeSnapshotter struct {
	mu sync.Mutex
	p  pose.Pose
	m  occupancy.Map
	s  scan.Scan
}

func (f *fakeSnapshotter) Position() pose.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.p
}
func (f *fakeSnapshotter) Map() occupancy.Map    { f.mu.Lock(); defer f.mu.Unlock(); return f.m }
func (f *fakeSnapshotter) LatestScan() scan.Scan { f.mu.Lock(); defer f.mu.Unlock(); return f.s }

var defaultGridCfg = occupancy.GridConfig{CellPixels: 10, FreeAbove: 200, BlockedBelow: 25}

func newTestArbiter(t *testing.T) (*Arbiter, *actuator.FakeActuator, *sync.WaitGroup, context.Context) {
	t.Helper()
	snap := &fakeSnapshotter{m: occupancy.NewMap(100)}
	act := actuator.NewFakeActuator()
	a := New(snap, act, planner.New(), actuator.TimingModel{WheelDiameterMM: 1e6, RPM: 1e6}, 225, defaultGridCfg, 100, 1.0, logging.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	var wg sync.WaitGroup
	a.Start(ctx, &wg)
	return a, act, &wg, ctx
}

func TestSetManualIsIdempotent(t *testing.T) {
	a, _, _, ctx := newTestArbiter(t)

	test.That(t, a.SetManual(ctx), test.ShouldBeNil)
	test.That(t, a.Mode(), test.ShouldEqual, Manual)
	test.That(t, a.SetManual(ctx), test.ShouldBeNil)
	test.That(t, a.Mode(), test.ShouldEqual, Manual)
}

func TestActivateTargetRejectedOutsideManual(t *testing.T) {
	snap := &fakeSnapshotter{m: occupancy.NewMap(100)}
	// Leave one tile at an in-between byte value so the coarse grid has an
	// UNKNOWN cell far from the origin; the explore worker then keeps
	// driving toward it (never reached, since pose never advances) instead
	// of exiting back to MANUAL before this test can observe EXPLORE.
	for y := 90; y < 100; y++ {
		for x := 90; x < 100; x++ {
			snap.m.Bytes[y*100+x] = 100
		}
	}
	act := actuator.NewFakeActuator()
	a := New(snap, act, planner.New(), actuator.TimingModel{WheelDiameterMM: 1e6, RPM: 1e6}, 225, defaultGridCfg, 100, 1.0, logging.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	a.Start(ctx, &wg)

	test.That(t, a.SetExplore(ctx), test.ShouldBeNil)
	test.That(t, a.Mode(), test.ShouldEqual, Explore)

	err := a.ActivateTarget(ctx, occupancy.Coord{X: 1, Y: 1})
	test.That(t, err, test.ShouldEqual, ErrModeConflict)

	test.That(t, a.SetManual(ctx), test.ShouldBeNil)
	test.That(t, a.Mode(), test.ShouldEqual, Manual)
}

func TestSetExploreOnAllFreeGridReturnsToManual(t *testing.T) {
	a, _, _, ctx := newTestArbiter(t)
	test.That(t, a.SetExplore(ctx), test.ShouldBeNil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Mode() == Manual {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	test.That(t, a.Mode(), test.ShouldEqual, Manual)
}

func TestNearestUnknownPicksClosestCell(t *testing.T) {
	grid := occupancy.Grid{N: 3, Labels: []occupancy.Cell{
		occupancy.Free, occupancy.Free, occupancy.Unknown,
		occupancy.Free, occupancy.Free, occupancy.Free,
		occupancy.Unknown, occupancy.Free, occupancy.Free,
	}}
	c, err := nearestUnknown(grid, occupancy.Coord{X: 0, Y: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c, test.ShouldResemble, occupancy.Coord{X: 0, Y: 2})
}

func TestNearestUnknownErrorsWhenNoneRemain(t *testing.T) {
	grid := occupancy.Coarsen(occupancy.NewMap(20), occupancy.GridConfig{CellPixels: 5, FreeAbove: 200, BlockedBelow: 25})
	_, err := nearestUnknown(grid, occupancy.Coord{X: 0, Y: 0})
	test.That(t, err, test.ShouldEqual, ErrNoUnknownCells)
}
