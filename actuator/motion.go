package actuator

import (
	"context"
	"time"
)

// MotionSink consumes the stream of primitives an actuator executes, with
// the time each was issued. The SLAM engine's dead-reckoning model is the
// intended consumer.
type MotionSink interface {
	NotePrimitive(p Primitive, at time.Time)
}

// InstrumentedActuator forwards every call to an inner Actuator and reports
// each successfully issued primitive to a MotionSink, so odometry consumers
// see exactly the motion the wheels were commanded. Failed sends are not
// reported; wheels that never received the command did not move.
type InstrumentedActuator struct {
	inner Actuator
	sink  MotionSink
	clock func() time.Time
}

var _ Actuator = (*InstrumentedActuator)(nil)

// Instrument wraps inner so sink observes its primitives. clock may be nil,
// defaulting to time.Now.
func Instrument(inner Actuator, sink MotionSink, clock func() time.Time) *InstrumentedActuator {
	if clock == nil {
		clock = time.Now
	}
	return &InstrumentedActuator{inner: inner, sink: sink, clock: clock}
}

func (a *InstrumentedActuator) Connect(ctx context.Context) error { return a.inner.Connect(ctx) }

// Disconnect reports a final stop before closing the inner actuator, so
// dead reckoning never integrates motion past shutdown.
func (a *InstrumentedActuator) Disconnect() error {
	a.sink.NotePrimitive(Stop, a.clock())
	return a.inner.Disconnect()
}

// Send forwards a raw line verbatim. Raw payloads are opaque to the timing
// model, so they are not reported to the sink.
func (a *InstrumentedActuator) Send(ctx context.Context, raw string) error {
	return a.inner.Send(ctx, raw)
}

func (a *InstrumentedActuator) issue(p Primitive, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	a.sink.NotePrimitive(p, a.clock())
	return nil
}

func (a *InstrumentedActuator) Forward(ctx context.Context) error {
	return a.issue(Forward, func() error { return a.inner.Forward(ctx) })
}

func (a *InstrumentedActuator) Backward(ctx context.Context) error {
	return a.issue(Backward, func() error { return a.inner.Backward(ctx) })
}

func (a *InstrumentedActuator) TurnLeft(ctx context.Context) error {
	return a.issue(TurnLeft, func() error { return a.inner.TurnLeft(ctx) })
}

func (a *InstrumentedActuator) TurnRight(ctx context.Context) error {
	return a.issue(TurnRight, func() error { return a.inner.TurnRight(ctx) })
}

func (a *InstrumentedActuator) Stop(ctx context.Context) error {
	return a.issue(Stop, func() error { return a.inner.Stop(ctx) })
}
