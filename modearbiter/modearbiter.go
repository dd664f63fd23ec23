// Package modearbiter enforces MANUAL/EXPLORE exclusivity: it owns the
// single tracker slot the Actuator may be driven through, serializes mode
// transitions, and runs the exploration worker that chooses its own
// targets while MANUAL commands are locked out.
package modearbiter

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"github.com/kats-org/roverd/actuator"
	"github.com/kats-org/roverd/internal/reqqueue"
	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/tracker"
)

// ErrModeConflict is returned when an operation is attempted in the wrong mode.
var ErrModeConflict = errors.New("modearbiter: operation not permitted in current mode")

// ErrNoUnknownCells is returned by exploration target selection when the
// coarse grid has nothing left to explore.
var ErrNoUnknownCells = errors.New("modearbiter: no unknown cells remain")

const (
	transitionTimeout   = 5 * time.Second
	explorePollInterval = 500 * time.Millisecond
)

// Mode is the process-wide robot operating mode.
type Mode int32

const (
	// Manual is the default mode: only external commands drive the Actuator.
	Manual Mode = iota
	// Explore is the self-directed mapping mode; external motion commands are rejected.
	Explore
)

func (m Mode) String() string {
	if m == Explore {
		return "explore"
	}
	return "manual"
}

// Arbiter is the single owner of the tracker slot: at most one
// tracker.Tracker instance ever drives the Actuator at a time, and this
// package is the only place new ones are spawned.
type Arbiter struct {
	coordinator tracker.Snapshotter
	act         actuator.Actuator
	planner     tracker.Replanner
	timing      actuator.TimingModel
	trackMM     float64
	gridCfg     occupancy.GridConfig
	proj        occupancy.Projector
	logger      logging.Logger

	mode atomic.Int32

	slotMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queue *reqqueue.Queue[struct{}]
}

// New builds an Arbiter over the given collaborators. act is the single
// Actuator the resulting tracker instances will share ownership of,
// serially, never concurrently.
func New(
	coordinator tracker.Snapshotter,
	act actuator.Actuator,
	pl tracker.Replanner,
	timing actuator.TimingModel,
	trackMM float64,
	gridCfg occupancy.GridConfig,
	mapPixels int,
	mapMeters float64,
	logger logging.Logger,
) *Arbiter {
	return &Arbiter{
		coordinator: coordinator,
		act:         act,
		planner:     pl,
		timing:      timing,
		trackMM:     trackMM,
		gridCfg:     gridCfg,
		proj:        occupancy.NewProjector(mapPixels, mapMeters, gridCfg.CellPixels),
		logger:      logger,
		queue:       reqqueue.New[struct{}](),
	}
}

// Start launches the queue worker that serializes mode transitions.
func (a *Arbiter) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	a.queue.Start(ctx, activeBackgroundWorkers)
}

// Mode returns the current mode, safe for concurrent callers.
func (a *Arbiter) Mode() Mode {
	return Mode(a.mode.Load())
}

// SetManual aborts any running tracker (explore or targeted) and sets
// mode to MANUAL. Idempotent: a second call with no tracker running
// leaves no dangling workers and returns nil.
func (a *Arbiter) SetManual(ctx context.Context) error {
	_, err := a.queue.Do(ctx, transitionTimeout, func() (struct{}, error) {
		a.slotMu.Lock()
		defer a.slotMu.Unlock()
		a.stopActiveTrackerLocked()
		a.mode.Store(int32(Manual))
		return struct{}{}, nil
	})
	return err
}

// SetExplore aborts any running tracker and spawns a fresh exploration
// worker. Mode returns to MANUAL on its own once the worker exits.
func (a *Arbiter) SetExplore(ctx context.Context) error {
	_, err := a.queue.Do(ctx, transitionTimeout, func() (struct{}, error) {
		a.slotMu.Lock()
		defer a.slotMu.Unlock()
		a.stopActiveTrackerLocked()
		a.mode.Store(int32(Explore))

		workerCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.wg.Add(1)
		go a.runExplore(workerCtx)
		return struct{}{}, nil
	})
	return err
}

// ActivateTarget cancels any in-flight tracker and spawns a new one
// driving toward goal. Posting a new target supersedes the old one rather
// than racing it. Returns ErrModeConflict unless mode is currently MANUAL.
func (a *Arbiter) ActivateTarget(ctx context.Context, goal occupancy.Coord) error {
	if a.Mode() != Manual {
		return ErrModeConflict
	}
	_, err := a.queue.Do(ctx, transitionTimeout, func() (struct{}, error) {
		if a.Mode() != Manual {
			return struct{}{}, ErrModeConflict
		}
		a.slotMu.Lock()
		defer a.slotMu.Unlock()
		a.stopActiveTrackerLocked()

		workerCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.wg.Add(1)
		go a.runTarget(workerCtx, goal)
		return struct{}{}, nil
	})
	return err
}

// CellForPixel converts an occupancy-pixel coordinate (as received over
// /robot/target) to its planning-grid cell, for transport handlers.
func (a *Arbiter) CellForPixel(xPixel, yPixel int) occupancy.Coord {
	return a.proj.CellForPixel(xPixel, yPixel)
}

// stopActiveTrackerLocked cancels and joins the active tracker goroutine,
// if any. Callers must hold slotMu. The tracker goroutines themselves
// never touch slotMu, so waiting here cannot deadlock against them.
func (a *Arbiter) stopActiveTrackerLocked() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.cancel = nil
}

func (a *Arbiter) newTracker() *tracker.Tracker {
	return tracker.New(a.coordinator, a.act, a.planner, a.timing, a.trackMM, a.gridCfg, a.proj.MapPixels, a.proj.MapMeters, a.logger)
}

// runTarget is Variant-A activity: plan once to goal and follow it.
func (a *Arbiter) runTarget(ctx context.Context, goal occupancy.Coord) {
	defer a.wg.Done()

	grid := occupancy.Coarsen(a.coordinator.Map(), a.gridCfg)
	start := a.proj.CellForPose(a.coordinator.Position())
	plan := a.planner.Plan(grid, start, goal)
	if len(plan) < 2 {
		a.logger.Infow("target activation: no path to goal", "start", start, "goal", goal)
		return
	}

	if err := a.newTracker().Run(ctx, plan, tracker.VariantA); err != nil && ctx.Err() == nil {
		a.logger.Infow("target tracker exited", "error", err)
	}
}

// runExplore is the exploration worker loop: repeatedly locate the
// nearest UNKNOWN cell, plan to it, and drive Variant-B until no UNKNOWN
// cells remain or the context is cancelled (mode changed away from
// Explore). It always restores MANUAL on exit.
func (a *Arbiter) runExplore(ctx context.Context) {
	defer a.wg.Done()
	defer a.mode.Store(int32(Manual))

	tr := a.newTracker()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		grid := occupancy.Coarsen(a.coordinator.Map(), a.gridCfg)
		current := a.proj.CellForPose(a.coordinator.Position())

		target, err := nearestUnknown(grid, current)
		if err != nil {
			a.logger.Infow("exploration complete: no unknown cells remain")
			return
		}

		plan := a.planner.Plan(grid, current, target)
		if len(plan) < 2 {
			if !goutils.SelectContextOrWait(ctx, explorePollInterval) {
				return
			}
			continue
		}

		if err := tr.Run(ctx, plan, tracker.VariantB); err != nil && ctx.Err() == nil {
			a.logger.Debugw("explore segment ended", "error", err)
		}
	}
}

// nearestUnknown returns the UNKNOWN cell minimising Manhattan distance to
// from, or ErrNoUnknownCells if none exists.
func nearestUnknown(grid occupancy.Grid, from occupancy.Coord) (occupancy.Coord, error) {
	best := occupancy.Coord{}
	bestDist := math.Inf(1)
	found := false

	for y := 0; y < grid.N; y++ {
		for x := 0; x < grid.N; x++ {
			if grid.At(x, y) != occupancy.Unknown {
				continue
			}
			d := math.Abs(float64(x-from.X)) + math.Abs(float64(y-from.Y))
			if d < bestDist {
				bestDist = d
				best = occupancy.Coord{X: x, Y: y}
				found = true
			}
		}
	}
	if !found {
		return occupancy.Coord{}, ErrNoUnknownCells
	}
	return best, nil
}
