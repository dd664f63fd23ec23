// Package slamcoordinator owns the dedicated SLAM worker thread: it polls
// the ScanSource, feeds resampled ranges into the SlamEngine, and publishes
// atomic snapshots of the latest scan, pose, and occupancy map for
// concurrent readers.
package slamcoordinator

import (
	"context"
	"sync"
	"time"

	"go.opencensus.io/trace"
	"go.uber.org/zap/zapcore"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/pose"
	"github.com/kats-org/roverd/scan"
	"github.com/kats-org/roverd/slamengine"
)

const (
	tickInterval      = 166 * time.Millisecond
	scanReadTimeout   = 2 * time.Second
	engineCallTimeout = 500 * time.Millisecond
)

// Snapshot is the mutually-consistent triple of (pose, map, scan) a reader
// needing all three at once should request, per the ordering guarantee
// that map() and a following position() are not otherwise guaranteed to
// come from the same SLAM iteration.
type Snapshot struct {
	Pose pose.Pose
	Map  occupancy.Map
	Scan scan.Scan
}

// Coordinator owns the SLAM worker and the cache it publishes.
type Coordinator struct {
	source             scan.Source
	engine             *slamengine.Serializer
	logger             logging.Logger
	expectedRangeCount int

	mu      sync.Mutex
	running bool
	cache   Snapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Coordinator over source and engine. expectedRangeCount is
// the fixed-length ranges array size the engine expects on each update.
func New(source scan.Source, engine *slamengine.Serializer, expectedRangeCount int, logger logging.Logger) *Coordinator {
	return &Coordinator{source: source, engine: engine, expectedRangeCount: expectedRangeCount, logger: logger}
}

// Start launches the SLAM worker. Idempotent: a second Start while already
// running is a no-op.
func (c *Coordinator) Start(ctx context.Context, engineWorkers *sync.WaitGroup) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.engine.Start(workerCtx, engineWorkers)

	if err := c.source.Start(workerCtx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		cancel()
		return err
	}

	c.wg.Add(1)
	go c.runWorker(workerCtx)
	return nil
}

// Stop flips the run flag; the worker exits after its current iteration.
// Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	_ = c.source.Stop()
}

func (c *Coordinator) runWorker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, sc, err := c.source.ReadScan(ctx, scanReadTimeout)
		switch result {
		case scan.Normal:
			c.processScan(ctx, sc)
		case scan.Timeout:
			c.logger.Warnw("scan source timed out, stopping SLAM worker", "error", err)
			_ = c.source.Stop()
			c.mu.Lock()
			c.running = false
			cancel := c.cancel
			c.mu.Unlock()
			// Tear the engine serializer down with the worker so a later
			// re-Start does not leave two queue workers alive.
			if cancel != nil {
				cancel()
			}
			return
		case scan.Wait:
			// yield
		}

		if !goutils.SelectContextOrWait(ctx, tickInterval) {
			return
		}
	}
}

func (c *Coordinator) processScan(ctx context.Context, sc scan.Scan) {
	ctx, span := trace.StartSpan(ctx, "roverd::slamcoordinator::processScan")
	defer span.End()

	distances := slamengine.ResampleRanges(sc, c.expectedRangeCount)
	if err := c.engine.Update(ctx, engineCallTimeout, distances); err != nil {
		c.logger.Warnw("slam engine update failed", "error", err)
		return
	}

	p, err := c.engine.Pose(ctx, engineCallTimeout)
	if err != nil {
		c.logger.Warnw("slam engine pose read failed", "error", err)
		return
	}
	m, err := c.engine.Map(ctx, engineCallTimeout)
	if err != nil {
		c.logger.Warnw("slam engine map read failed", "error", err)
		return
	}

	c.mu.Lock()
	c.cache = Snapshot{Pose: p, Map: m, Scan: sc}
	c.mu.Unlock()

	if c.logger.Level() == zapcore.DebugLevel {
		c.logger.Debugw("slam iteration published",
			"samples", len(sc.Samples),
			"x_mm", p.XMM, "y_mm", p.YMM, "theta_degrees", p.ThetaDegrees)
	}
}

// Snapshot returns the most recent mutually-consistent (pose, map, scan)
// triple, by value.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// Position returns the latest cached pose.
func (c *Coordinator) Position() pose.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Pose
}

// Map returns a fresh, independently-owned copy of the latest cached map.
func (c *Coordinator) Map() occupancy.Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Map.Clone()
}

// LatestScan returns a copy of the latest cached scan.
func (c *Coordinator) LatestScan() scan.Scan {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]scan.Sample, len(c.cache.Scan.Samples))
	copy(cp, c.cache.Scan.Samples)
	return scan.Scan{Samples: cp}
}

// IsRunning reports whether the SLAM worker is currently active, for
// telemetry.
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
