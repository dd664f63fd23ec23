// Package tracker drives the robot along a precomputed plan and reacts to
// obstacles by replanning, per the ALIGN -> DRIVE -> SETTLE -> VERIFY
// segment state machine.
package tracker

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"github.com/kats-org/roverd/actuator"
	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/planner"
	"github.com/kats-org/roverd/pose"
	"github.com/kats-org/roverd/scan"
)

const (
	headingToleranceDegrees  = 15.0
	variantBHeadingTolerance = 20.0
	settleDuration           = 200 * time.Millisecond
	variantBTick             = 100 * time.Millisecond
	stuckLimit               = 100
	replanBudget             = 5
	collisionRadiusMM        = 250.0
	mapRefreshInterval       = 1 * time.Second
)

// Sentinel abort reasons, returned by Run (as opposed to a context
// cancellation) after it has already issued stop. None of them are
// reported back to the originating HTTP client, which has already been
// acknowledged.
var (
	ErrNoPath           = errors.New("tracker: no path to goal")
	ErrPlannerExhausted = errors.New("tracker: exceeded replan budget")
	ErrStuck            = errors.New("tracker: stuck waiting to reach segment target")
)

// Variant selects the per-segment controller.
type Variant int

const (
	// VariantA is the timed open-loop controller used for operator-directed targets.
	VariantA Variant = iota
	// VariantB is the reactive controller used by exploration.
	VariantB
)

// Snapshotter is the read surface a Tracker needs from the SLAM pipeline.
// slamcoordinator.Coordinator satisfies this.
type Snapshotter interface {
	Position() pose.Pose
	Map() occupancy.Map
	LatestScan() scan.Scan
}

// Replanner plans a path across a coarse grid. *planner.Planner satisfies this.
type Replanner interface {
	Plan(grid occupancy.Grid, start, goal occupancy.Coord) planner.Plan
}

// Tracker drives the robot along a plan. It holds borrowed, non-owning
// handles to its collaborators; it must never outlive them.
type Tracker struct {
	coordinator Snapshotter
	act         actuator.Actuator
	planner     Replanner
	timing      actuator.TimingModel
	trackMM     float64
	gridCfg     occupancy.GridConfig
	mapPixels   int
	mapMeters   float64
	proj        occupancy.Projector
	logger      logging.Logger
}

// New builds a Tracker over the given collaborators and grid/timing configuration.
func New(
	coordinator Snapshotter,
	act actuator.Actuator,
	pl Replanner,
	timing actuator.TimingModel,
	trackMM float64,
	gridCfg occupancy.GridConfig,
	mapPixels int,
	mapMeters float64,
	logger logging.Logger,
) *Tracker {
	return &Tracker{
		coordinator: coordinator,
		act:         act,
		planner:     pl,
		timing:      timing,
		trackMM:     trackMM,
		gridCfg:     gridCfg,
		mapPixels:   mapPixels,
		mapMeters:   mapMeters,
		proj:        occupancy.NewProjector(mapPixels, mapMeters, gridCfg.CellPixels),
		logger:      logger,
	}
}

// Run drives the robot along plan using the given variant's controller. The
// occupancy map is recoarsened at most once per mapRefreshInterval; a
// collision always forces an immediate refresh regardless of that clock.
// It always issues stop on exit, whether that exit is normal, aborted, or
// due to context cancellation.
func (t *Tracker) Run(ctx context.Context, plan planner.Plan, variant Variant) error {
	defer func() {
		if err := t.act.Stop(context.Background()); err != nil {
			t.logger.Warnw("stop failed on tracker exit", "error", err)
		}
	}()

	if len(plan) < 2 {
		return nil
	}

	goal := plan[len(plan)-1]
	segments := plan[1:]
	segIdx := 0
	replans := 0
	stuck := 0

	var grid occupancy.Grid
	var lastMapUpdate time.Time
	refreshGrid := func() {
		grid = occupancy.Coarsen(t.coordinator.Map(), t.gridCfg)
		lastMapUpdate = time.Now()
	}

	for segIdx < len(segments) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if lastMapUpdate.IsZero() || time.Since(lastMapUpdate) > mapRefreshInterval {
			refreshGrid()
		}
		p := t.coordinator.Position()
		currentCell := t.cellForPose(p)

		if collisionCheck(t.coordinator.LatestScan()) {
			refreshGrid()
			replans++
			if replans > replanBudget {
				return ErrPlannerExhausted
			}
			newPlan := t.planner.Plan(grid, currentCell, goal)
			if len(newPlan) < 2 {
				return ErrNoPath
			}
			plan = newPlan
			segments = plan[1:]
			segIdx = 0
			continue
		}

		target := segments[segIdx]
		reached, err := t.driveSegment(ctx, variant, p, target)
		if err != nil {
			return err
		}
		if reached {
			segIdx++
			stuck = 0
			continue
		}
		stuck++
		if stuck > stuckLimit {
			return ErrStuck
		}
	}
	return nil
}

func (t *Tracker) driveSegment(ctx context.Context, variant Variant, p pose.Pose, target occupancy.Coord) (bool, error) {
	if variant == VariantB {
		return t.driveSegmentReactive(ctx, p, target)
	}
	return t.driveSegmentTimed(ctx, p, target)
}

func (t *Tracker) driveSegmentTimed(ctx context.Context, p pose.Pose, target occupancy.Coord) (bool, error) {
	targetX, targetY := t.cellCenterMM(target)
	heading := pose.HeadingTo(targetX-p.XMM, targetY-p.YMM)
	diff := pose.AngleDiffDegrees(heading, p.ThetaDegrees)

	if math.Abs(diff) > headingToleranceDegrees {
		if diff > 0 {
			t.tryCommand(ctx, t.act.TurnLeft)
		} else {
			t.tryCommand(ctx, t.act.TurnRight)
		}
		if !t.wait(ctx, durationSeconds(t.timing.TurnTimeSeconds(math.Abs(diff), t.trackMM))) {
			return false, ctx.Err()
		}
	} else {
		segLenMM := math.Hypot(targetX-p.XMM, targetY-p.YMM)
		t.tryCommand(ctx, t.act.Forward)
		if !t.wait(ctx, durationSeconds(t.timing.ForwardTimeSeconds(segLenMM))) {
			return false, ctx.Err()
		}
	}

	t.tryCommand(ctx, t.act.Stop)
	if !t.wait(ctx, settleDuration) {
		return false, ctx.Err()
	}

	return t.cellForPose(t.coordinator.Position()) == target, nil
}

func (t *Tracker) driveSegmentReactive(ctx context.Context, p pose.Pose, target occupancy.Coord) (bool, error) {
	targetX, targetY := t.cellCenterMM(target)
	heading := pose.HeadingTo(targetX-p.XMM, targetY-p.YMM)
	diff := pose.AngleDiffDegrees(heading, p.ThetaDegrees)

	switch {
	case math.Abs(diff) < variantBHeadingTolerance:
		t.tryCommand(ctx, t.act.Forward)
	case diff > 0:
		t.tryCommand(ctx, t.act.TurnLeft)
	default:
		t.tryCommand(ctx, t.act.TurnRight)
	}

	if !t.wait(ctx, variantBTick) {
		return false, ctx.Err()
	}

	return t.cellForPose(t.coordinator.Position()) == target, nil
}

func (t *Tracker) tryCommand(ctx context.Context, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		t.logger.Warnw("actuator command failed", "error", err)
	}
}

func (t *Tracker) wait(ctx context.Context, d time.Duration) bool {
	return goutils.SelectContextOrWait(ctx, d)
}

func durationSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// cellForPose converts a map-frame pose to a planning-grid cell, using the
// corner-origin convention: map pixel (0, 0) is x_mm=0, y_mm=0.
func (t *Tracker) cellForPose(p pose.Pose) occupancy.Coord {
	return t.proj.CellForPose(p)
}

// cellCenterMM is the inverse of cellForPose: the map-frame coordinates of
// a grid cell's pixel centre.
func (t *Tracker) cellCenterMM(c occupancy.Coord) (float64, float64) {
	return t.proj.CellCenterMM(c)
}

// collisionCheck reports whether any scan point lies within the collision
// radius of the robot origin.
func collisionCheck(s scan.Scan) bool {
	for _, sample := range s.Samples {
		if float64(sample.DistanceMM) < collisionRadiusMM {
			return true
		}
	}
	return false
}
