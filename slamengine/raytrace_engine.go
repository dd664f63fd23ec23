package slamengine

import (
	"math"
	"sync"
	"time"

	"github.com/kats-org/roverd/actuator"
	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/pose"
)

// RaytraceParams configures a RaytraceEngine: the map geometry, the
// fixed-length ranges contract, and the open-loop motion model the engine
// dead-reckons pose from.
type RaytraceParams struct {
	MapPixels          int
	MapMeters          float64
	ExpectedRangeCount int
	Timing             actuator.TimingModel
	TrackMM            float64
	Clock              func() time.Time // nil defaults to time.Now
}

// RaytraceEngine is a real, if simplified, stand-in for the scan-matching
// estimator. Pose is maintained by dead reckoning over the primitive
// stream an actuator.InstrumentedActuator reports: forward/backward
// translate along the current heading and turns rotate in place, both at
// the open-loop timing model's commanded rates. The occupancy map is built
// by Bresenham ray casting each ranged sample outward from the estimated
// pose, raising free cells along the ray and lowering the terminal
// occupied cell. The engine owns the occupancy representation internally
// and exposes only the Pose/Map accessors, the same narrow surface the
// external estimator's facade exposes.
//
// The starting pose sits at the map's centre in millimeters, pixel
// (MapPixels/2, MapPixels/2) under the corner-origin map frame.
type RaytraceEngine struct {
	mu     sync.Mutex
	params RaytraceParams
	clock  func() time.Time

	pose         pose.Pose
	occ          occupancy.Map
	motion       actuator.Primitive
	integratedTo time.Time

	raiseStep int
	lowerStep int
	tunables  Tunables
}

var (
	_ Engine              = (*RaytraceEngine)(nil)
	_ actuator.MotionSink = (*RaytraceEngine)(nil)
)

// NewRaytraceEngine builds an engine over p's map geometry, tuned per t.
func NewRaytraceEngine(p RaytraceParams, t Tunables) *RaytraceEngine {
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	centerMM := p.MapMeters * 1000 / 2
	return &RaytraceEngine{
		params:       p,
		clock:        clock,
		pose:         pose.Pose{XMM: centerMM, YMM: centerMM},
		occ:          occupancy.NewMap(p.MapPixels),
		motion:       actuator.Stop,
		integratedTo: clock(),
		raiseStep:    4,
		lowerStep:    40,
		tunables:     t,
	}
}

// NotePrimitive folds the motion commanded so far into the pose estimate
// and records the newly active primitive. Satisfies actuator.MotionSink.
func (e *RaytraceEngine) NotePrimitive(p actuator.Primitive, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.integrateLocked(at)
	e.motion = p
}

// integrateLocked advances the dead-reckoned pose under the currently
// active primitive up to the given instant. Position is clamped to the map
// extent; heading is kept in [0, 360).
func (e *RaytraceEngine) integrateLocked(until time.Time) {
	dt := until.Sub(e.integratedTo).Seconds()
	if dt <= 0 {
		return
	}
	e.integratedTo = until

	if e.params.Timing.WheelDiameterMM <= 0 || e.params.Timing.RPM <= 0 {
		return
	}
	linearMMPerSec := math.Pi * e.params.Timing.WheelDiameterMM * e.params.Timing.RPM / 60
	thetaRad := e.pose.ThetaDegrees * math.Pi / 180

	switch e.motion {
	case actuator.Forward:
		e.pose.XMM += linearMMPerSec * dt * math.Cos(thetaRad)
		e.pose.YMM += linearMMPerSec * dt * math.Sin(thetaRad)
	case actuator.Backward:
		e.pose.XMM -= linearMMPerSec * dt * math.Cos(thetaRad)
		e.pose.YMM -= linearMMPerSec * dt * math.Sin(thetaRad)
	case actuator.TurnLeft, actuator.TurnRight:
		if e.params.TrackMM <= 0 {
			return
		}
		degPerSec := linearMMPerSec * 360 / (math.Pi * e.params.TrackMM)
		if e.motion == actuator.TurnRight {
			degPerSec = -degPerSec
		}
		e.pose.ThetaDegrees = math.Mod(e.pose.ThetaDegrees+degPerSec*dt, 360)
		if e.pose.ThetaDegrees < 0 {
			e.pose.ThetaDegrees += 360
		}
	}

	extentMM := e.params.MapMeters * 1000
	e.pose.XMM = math.Max(0, math.Min(e.pose.XMM, extentMM))
	e.pose.YMM = math.Max(0, math.Min(e.pose.YMM, extentMM))
}

// Update folds one resampled ranges array into the occupancy map, casting
// each ray outward from the current pose estimate.
func (e *RaytraceEngine) Update(distancesMM []uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.integrateLocked(e.clock())

	n := len(distancesMM)
	if n == 0 {
		return nil
	}
	degPerBin := 360.0 / float64(n)
	pxPerMM := float64(e.params.MapPixels) / (e.params.MapMeters * 1000)
	originX := clampPixel(int(e.pose.XMM*pxPerMM), e.params.MapPixels)
	originY := clampPixel(int(e.pose.YMM*pxPerMM), e.params.MapPixels)

	for i, d := range distancesMM {
		if d == 0 {
			continue
		}
		angleRad := (e.pose.ThetaDegrees + float64(i)*degPerBin) * math.Pi / 180
		endX := originX + int(float64(d)*math.Cos(angleRad)*pxPerMM)
		endY := originY + int(float64(d)*math.Sin(angleRad)*pxPerMM)
		e.traceRay(originX, originY, endX, endY)
	}
	return nil
}

// traceRay walks a Bresenham line from (x0,y0) to (x1,y1), raising every
// free cell it crosses and lowering the terminal cell.
func (e *RaytraceEngine) traceRay(x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 >= x1 {
		sx = -1
	}
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy

	x, y := x0, y0
	for {
		inBounds := x >= 0 && x < e.params.MapPixels && y >= 0 && y < e.params.MapPixels
		last := x == x1 && y == y1
		if inBounds {
			idx := y*e.params.MapPixels + x
			if last {
				e.occ.Bytes[idx] = clampByte(int(e.occ.Bytes[idx]) - e.lowerStep)
			} else {
				e.occ.Bytes[idx] = clampByte(int(e.occ.Bytes[idx]) + e.raiseStep)
			}
		}
		if last {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// Pose returns the current dead-reckoned pose estimate, integrated up to
// the moment of the call.
func (e *RaytraceEngine) Pose() pose.Pose {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.integrateLocked(e.clock())
	return e.pose
}

// Map returns the internal occupancy raster. Callers must Clone before
// retaining it past the current call, matching the Serializer's contract.
func (e *RaytraceEngine) Map() occupancy.Map {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.occ
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func clampPixel(v, pixels int) int {
	if v < 0 {
		return 0
	}
	if v >= pixels {
		return pixels - 1
	}
	return v
}
