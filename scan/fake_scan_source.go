package scan

import (
	"context"
	"sync"
	"time"
)

// FakeScanSource is a deterministic Source for tests: its scan queue is
// consumed in order by ReadScan.
type FakeScanSource struct {
	mu      sync.Mutex
	scans   []Scan
	idx     int
	started bool
	stopped bool
}

var _ Source = (*FakeScanSource)(nil)

// NewFakeScanSource builds a fake that replays the given scans in order,
// then repeats the last one forever.
func NewFakeScanSource(scans ...Scan) *FakeScanSource {
	return &FakeScanSource{scans: scans}
}

// Start marks the fake as running.
func (f *FakeScanSource) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.stopped = false
	return nil
}

// Stop marks the fake as stopped.
func (f *FakeScanSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

// ReadScan returns the next queued scan, or Timeout if the source was
// stopped or never started.
func (f *FakeScanSource) ReadScan(ctx context.Context, timeout time.Duration) (ReadResult, Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started || f.stopped {
		return Timeout, Scan{}, nil
	}
	if len(f.scans) == 0 {
		return Normal, Scan{}, nil
	}
	i := f.idx
	if i >= len(f.scans) {
		i = len(f.scans) - 1
	} else {
		f.idx++
	}
	return Normal, f.scans[i], nil
}

// PointAtDistance builds a single-sample Scan whose point sits distanceMM
// from the origin — used to drive the tracker's collision_check boundary.
func PointAtDistance(distanceMM uint16) Scan {
	return Scan{Samples: []Sample{NewSample(0, distanceMM, 200, 0)}}
}
