// Package pose defines the robot's 2-D map-frame pose, the one value type
// shared by the SLAM coordinator, the occupancy projector's cell
// conversions, and the path tracker.
package pose

import "math"

// Pose is a robot pose in the map frame: millimeter position plus heading
// in degrees, positive counterclockwise from +X.
type Pose struct {
	XMM          float64
	YMM          float64
	ThetaDegrees float64
}

// AngleDiffDegrees normalizes target-current to (-180, 180].
func AngleDiffDegrees(target, current float64) float64 {
	diff := target - current
	for diff > 180 {
		diff -= 360
	}
	for diff <= -180 {
		diff += 360
	}
	return diff
}

// HeadingTo returns atan2(dy, dx) in degrees for a displacement vector.
func HeadingTo(dxMM, dyMM float64) float64 {
	return math.Atan2(dyMM, dxMM) * 180 / math.Pi
}
