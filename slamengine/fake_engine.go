package slamengine

import (
	"sync"

	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/pose"
)

// FakeEngine is a deterministic Engine double for tests: Pose and Map are
// set directly by the test and never mutated by Update.
type FakeEngine struct {
	mu         sync.Mutex
	PoseValue pose.Pose
	MapValue  occupancy.Map
	UpdateErr error
	Distances [][]uint16
}

var _ Engine = (*FakeEngine)(nil)

// NewFakeEngine builds a fake seeded with an all-free map of the given size.
func NewFakeEngine(mapPixels int) *FakeEngine {
	return &FakeEngine{MapValue: occupancy.NewMap(mapPixels)}
}

// Update records the distances it was called with.
func (f *FakeEngine) Update(distancesMM []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	cp := make([]uint16, len(distancesMM))
	copy(cp, distancesMM)
	f.Distances = append(f.Distances, cp)
	return nil
}

// Pose returns the pose set by the test.
func (f *FakeEngine) Pose() pose.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PoseValue
}

// Map returns the map set by the test.
func (f *FakeEngine) Map() occupancy.Map {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.MapValue
}

// SetPose updates the pose under lock, for tests simulating motion.
func (f *FakeEngine) SetPose(p pose.Pose) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PoseValue = p
}

// SetMap replaces the map under lock, for tests simulating new occupancy data.
func (f *FakeEngine) SetMap(m occupancy.Map) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MapValue = m
}
