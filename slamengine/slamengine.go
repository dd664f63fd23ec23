// Package slamengine wraps the external SLAM estimator: a black box that
// consumes range arrays and produces pose and occupancy-byte updates. Calls
// into it are serialized through a Serializer so the estimator, which owns
// internal particle/search state, is never entered by two goroutines at once.
package slamengine

import (
	"context"
	"sync"
	"time"

	"github.com/kats-org/roverd/internal/reqqueue"
	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/pose"
	"github.com/kats-org/roverd/scan"
)

// Tunables mirrors the external estimator's tunable parameters.
type Tunables struct {
	MapQuality       int
	HoleWidthMM      int
	MaxSearchIter    int
	SigmaXYMM        int
	SigmaThetaDegree int
}

// Engine is the capability the external SLAM estimator provides.
type Engine interface {
	Update(distancesMM []uint16) error
	Pose() pose.Pose
	Map() occupancy.Map
}

// Serializer wraps an Engine so that Update and read calls are dispatched
// one at a time onto a single worker goroutine, the same discipline the
// source's cartofacade request/response queue gives its C calls.
type Serializer struct {
	engine Engine
	queue  *reqqueue.Queue[any]
}

// NewSerializer wraps engine; call Start before issuing work.
func NewSerializer(engine Engine) *Serializer {
	return &Serializer{engine: engine, queue: reqqueue.New[any]()}
}

// Start launches the serializing worker goroutine.
func (s *Serializer) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	s.queue.Start(ctx, activeBackgroundWorkers)
}

// Update enqueues one SlamEngine.update(distances) call.
func (s *Serializer) Update(ctx context.Context, timeout time.Duration, distancesMM []uint16) error {
	_, err := s.queue.Do(ctx, timeout, func() (any, error) {
		return nil, s.engine.Update(distancesMM)
	})
	return err
}

// Pose enqueues one SlamEngine.get_pose() call.
func (s *Serializer) Pose(ctx context.Context, timeout time.Duration) (pose.Pose, error) {
	result, err := s.queue.Do(ctx, timeout, func() (any, error) {
		return s.engine.Pose(), nil
	})
	if err != nil {
		return pose.Pose{}, err
	}
	return result.(pose.Pose), nil
}

// Map enqueues one SlamEngine.get_map() call, returning a fresh,
// independently-owned copy.
func (s *Serializer) Map(ctx context.Context, timeout time.Duration) (occupancy.Map, error) {
	result, err := s.queue.Do(ctx, timeout, func() (any, error) {
		return s.engine.Map().Clone(), nil
	})
	if err != nil {
		return occupancy.Map{}, err
	}
	return result.(occupancy.Map), nil
}

// ResampleRanges adapts a device report to the estimator's input contract:
// the estimator expects a fixed-length ranges array indexed by degree, but a
// report's sample count varies with scan rate. ResampleRanges
// buckets samples by their angle, truncated to a bin index, into an
// expectedCount-length array, holding the previous non-empty value across
// gaps so every degree the estimator indexes into is populated.
func ResampleRanges(s scan.Scan, expectedCount int) []uint16 {
	out := make([]uint16, expectedCount)
	if expectedCount == 0 {
		return out
	}
	degPerBin := 360.0 / float64(expectedCount)
	filled := make([]bool, expectedCount)
	for _, sample := range s.Samples {
		bin := int(sample.AngleDeg/degPerBin) % expectedCount
		if bin < 0 {
			bin += expectedCount
		}
		out[bin] = sample.DistanceMM
		filled[bin] = true
	}
	last := uint16(0)
	for i := 0; i < 2*expectedCount; i++ {
		idx := i % expectedCount
		if filled[idx] {
			last = out[idx]
		} else {
			out[idx] = last
		}
	}
	return out
}
