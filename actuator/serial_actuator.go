package actuator

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.viam.com/rdk/logging"
)

// SerialActuator drives the wheel controller over a 9600-baud 8N1
// line-terminated serial channel, no flow control.
type SerialActuator struct {
	port   string
	baud   int
	logger logging.Logger

	mu   sync.Mutex
	conn serial.Port
}

var _ Actuator = (*SerialActuator)(nil)

// NewSerialActuator builds an actuator for the given port; Connect opens it.
func NewSerialActuator(port string, baud int, logger logging.Logger) *SerialActuator {
	return &SerialActuator{port: port, baud: baud, logger: logger}
}

// Connect opens the serial port. Failure here is non-fatal to the process;
// callers should log and continue.
func (a *SerialActuator) Connect(ctx context.Context) error {
	_, span := startSpan(ctx, "SerialActuator.Connect")
	defer span.End()

	mode := &serial.Mode{BaudRate: a.baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	conn, err := serial.Open(a.port, mode)
	if err != nil {
		return errors.Wrapf(ErrDeviceUnavailable, "opening actuator port %s: %v", a.port, err)
	}
	a.logger.Infow("actuator connected", "port", a.port, "baud", a.baud)

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	return nil
}

// Disconnect issues Stop before closing, per the resource-safety contract.
func (a *SerialActuator) Disconnect() error {
	_ = a.Stop(context.Background())

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	if err != nil {
		return errors.Wrap(ErrTransportFailure, err.Error())
	}
	return nil
}

// Send writes raw as one line, appending the '\n' terminator if raw lacks
// it; used by /arduino/send forwarding.
func (a *SerialActuator) Send(ctx context.Context, raw string) error {
	_, span := startSpan(ctx, "SerialActuator.Send")
	defer span.End()

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return errors.Wrap(ErrDeviceUnavailable, "actuator not connected")
	}

	payload := raw
	if len(payload) == 0 || payload[len(payload)-1] != '\n' {
		payload += "\n"
	}
	if _, err := conn.Write([]byte(payload)); err != nil {
		a.logger.Warnw("actuator send failed", "error", err)
		return errors.Wrap(ErrTransportFailure, err.Error())
	}
	return nil
}

func (a *SerialActuator) sendPrimitive(ctx context.Context, p Primitive) error {
	return a.Send(ctx, p.Encode())
}

// Forward issues the forward primitive.
func (a *SerialActuator) Forward(ctx context.Context) error { return a.sendPrimitive(ctx, Forward) }

// Backward issues the backward primitive.
func (a *SerialActuator) Backward(ctx context.Context) error { return a.sendPrimitive(ctx, Backward) }

// TurnLeft issues the turn-left primitive.
func (a *SerialActuator) TurnLeft(ctx context.Context) error { return a.sendPrimitive(ctx, TurnLeft) }

// TurnRight issues the turn-right primitive.
func (a *SerialActuator) TurnRight(ctx context.Context) error {
	return a.sendPrimitive(ctx, TurnRight)
}

// Stop issues the stop primitive.
func (a *SerialActuator) Stop(ctx context.Context) error { return a.sendPrimitive(ctx, Stop) }
