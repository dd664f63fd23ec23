// Package actuator abstracts the four-wheel differential-drive controller:
// the fixed motion primitives, their serial wire encoding, and the
// open-loop timing model that converts a desired distance or turn into a
// hold duration.
package actuator

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

// Primitive is one of the five fixed four-wheel velocity tuples.
type Primitive int

const (
	Forward Primitive = iota
	Backward
	TurnLeft
	TurnRight
	Stop
)

func (p Primitive) wheels() [4]int {
	switch p {
	case Forward:
		return [4]int{50, 50, 50, 50}
	case Backward:
		return [4]int{-50, -50, -50, -50}
	case TurnLeft:
		return [4]int{50, -50, 50, -50}
	case TurnRight:
		return [4]int{-50, 50, -50, 50}
	default:
		return [4]int{0, 0, 0, 0}
	}
}

// Encode renders a primitive's wheel tuple as the wire payload
// "<v1>;<v2>;<v3>;<v4>\n".
func (p Primitive) Encode() string {
	w := p.wheels()
	return fmt.Sprintf("%d;%d;%d;%d\n", w[0], w[1], w[2], w[3])
}

// ErrTransportFailure wraps any post-connect send failure. Send failures
// are reported to the caller but never crash the tracker.
var ErrTransportFailure = errors.New("actuator: transport failure")

// ErrDeviceUnavailable wraps a connect failure.
var ErrDeviceUnavailable = errors.New("actuator: device unavailable")

// Actuator is the capability a wheel controller must provide.
type Actuator interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, raw string) error
	Forward(ctx context.Context) error
	Backward(ctx context.Context) error
	TurnLeft(ctx context.Context) error
	TurnRight(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TimingModel is the open-loop conversion from distance/angle to a hold
// duration, parameterized by wheel diameter and RPM.
type TimingModel struct {
	WheelDiameterMM float64
	RPM             float64
}

// ForwardTimeSeconds returns how long to hold Forward/Backward to cover
// distanceMM at the configured wheel diameter and RPM.
func (t TimingModel) ForwardTimeSeconds(distanceMM float64) float64 {
	if distanceMM == 0 {
		return 0
	}
	wheelCirc := math.Pi * t.WheelDiameterMM
	rotations := distanceMM / wheelCirc
	return rotations / (t.RPM / 60.0)
}

// TurnTimeSeconds returns how long to hold TurnLeft/TurnRight to rotate
// angleDeg in place, given the wheel track width trackMM.
func (t TimingModel) TurnTimeSeconds(angleDeg, trackMM float64) float64 {
	arcMM := (math.Pi * trackMM) * (angleDeg / 360.0)
	return t.ForwardTimeSeconds(arcMM)
}

func startSpan(ctx context.Context, name string) (context.Context, *trace.Span) {
	return trace.StartSpan(ctx, "roverd::actuator::"+name)
}
