package actuator

import (
	"context"
	"sync"
)

// FakeActuator records every primitive issued to it, for tracker tests.
type FakeActuator struct {
	mu         sync.Mutex
	connected  bool
	Calls      []Primitive
	RawCalls   []string
	SendErr    error
	ConnectErr error
}

var _ Actuator = (*FakeActuator)(nil)

// NewFakeActuator returns a ready-to-use fake.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

func (f *FakeActuator) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *FakeActuator) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Stop)
	f.connected = false
	return nil
}

func (f *FakeActuator) Send(ctx context.Context, raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.RawCalls = append(f.RawCalls, raw)
	return nil
}

func (f *FakeActuator) recordPrimitive(p Primitive) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Calls = append(f.Calls, p)
	return nil
}

func (f *FakeActuator) Forward(ctx context.Context) error   { return f.recordPrimitive(Forward) }
func (f *FakeActuator) Backward(ctx context.Context) error  { return f.recordPrimitive(Backward) }
func (f *FakeActuator) TurnLeft(ctx context.Context) error  { return f.recordPrimitive(TurnLeft) }
func (f *FakeActuator) TurnRight(ctx context.Context) error { return f.recordPrimitive(TurnRight) }
func (f *FakeActuator) Stop(ctx context.Context) error      { return f.recordPrimitive(Stop) }

// StopCount returns how many Stop primitives have been issued so far.
func (f *FakeActuator) StopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == Stop {
			n++
		}
	}
	return n
}
