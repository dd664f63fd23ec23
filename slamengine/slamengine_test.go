package slamengine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/kats-org/roverd/actuator"
	"github.com/kats-org/roverd/pose"
	"github.com/kats-org/roverd/scan"
)

func startedSerializer(t *testing.T, e Engine) (*Serializer, func()) {
	t.Helper()
	s := NewSerializer(e)
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, &wg)
	return s, cancel
}

func TestSerializerRoundTrips(t *testing.T) {
	fake := NewFakeEngine(10)
	fake.SetPose(pose.Pose{XMM: 1, YMM: 2, ThetaDegrees: 3})
	s, cancel := startedSerializer(t, fake)
	defer cancel()

	ctx := context.Background()
	err := s.Update(ctx, time.Second, []uint16{100, 200})
	test.That(t, err, test.ShouldBeNil)

	p, err := s.Pose(ctx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldResemble, pose.Pose{XMM: 1, YMM: 2, ThetaDegrees: 3})

	m, err := s.Map(ctx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(m.Bytes), test.ShouldEqual, 100)

	test.That(t, fake.Distances[0], test.ShouldResemble, []uint16{100, 200})
}

func TestResampleRangesHoldsAcrossGaps(t *testing.T) {
	s := scan.Scan{Samples: []scan.Sample{
		scan.NewSample(0, 500, 200, 0),
		scan.NewSample(180, 900, 200, 0),
	}}
	out := ResampleRanges(s, 4)
	test.That(t, len(out), test.ShouldEqual, 4)
	test.That(t, out[0], test.ShouldEqual, uint16(500))
	test.That(t, out[1], test.ShouldEqual, uint16(500))
	test.That(t, out[2], test.ShouldEqual, uint16(900))
	test.That(t, out[3], test.ShouldEqual, uint16(900))
}

func TestResampleRangesZeroExpected(t *testing.T) {
	out := ResampleRanges(scan.Scan{}, 0)
	test.That(t, len(out), test.ShouldEqual, 0)
}

func TestRaytraceEngineMapSizeAfterUpdate(t *testing.T) {
	e := NewRaytraceEngine(RaytraceParams{MapPixels: 40, MapMeters: 6, ExpectedRangeCount: 8}, Tunables{})
	err := e.Update([]uint16{1000, 0, 1000, 0, 1000, 0, 1000, 0})
	test.That(t, err, test.ShouldBeNil)
	m := e.Map()
	test.That(t, len(m.Bytes), test.ShouldEqual, 40*40)
}

func TestRaytraceEngineDeadReckonsForwardMotion(t *testing.T) {
	now := time.Unix(0, 0)
	timing := actuator.TimingModel{WheelDiameterMM: 60, RPM: 100}
	e := NewRaytraceEngine(RaytraceParams{
		MapPixels: 100, MapMeters: 10, ExpectedRangeCount: 4,
		Timing: timing, TrackMM: 225,
		Clock: func() time.Time { return now },
	}, Tunables{})

	start := e.Pose()
	e.NotePrimitive(actuator.Forward, now)
	now = now.Add(time.Second)
	e.NotePrimitive(actuator.Stop, now)

	linearMMPerSec := math.Pi * 60 * 100 / 60
	p := e.Pose()
	test.That(t, p.XMM-start.XMM, test.ShouldAlmostEqual, linearMMPerSec, 1e-6)
	test.That(t, p.YMM, test.ShouldAlmostEqual, start.YMM, 1e-6)
	test.That(t, p.ThetaDegrees, test.ShouldAlmostEqual, 0, 1e-6)
}

func TestRaytraceEngineDeadReckonsTurnAtTimingModelRate(t *testing.T) {
	now := time.Unix(0, 0)
	timing := actuator.TimingModel{WheelDiameterMM: 60, RPM: 100}
	e := NewRaytraceEngine(RaytraceParams{
		MapPixels: 100, MapMeters: 10, ExpectedRangeCount: 4,
		Timing: timing, TrackMM: 225,
		Clock: func() time.Time { return now },
	}, Tunables{})

	// Holding TurnLeft for exactly turn_time(90) must rotate 90 degrees;
	// the timing model and the dead-reckoning rate are inverses.
	e.NotePrimitive(actuator.TurnLeft, now)
	now = now.Add(time.Duration(timing.TurnTimeSeconds(90, 225) * float64(time.Second)))
	e.NotePrimitive(actuator.Stop, now)

	test.That(t, e.Pose().ThetaDegrees, test.ShouldAlmostEqual, 90, 1e-3)
}

func TestRaytraceEngineHoldsPoseWhileStopped(t *testing.T) {
	now := time.Unix(0, 0)
	e := NewRaytraceEngine(RaytraceParams{
		MapPixels: 100, MapMeters: 10, ExpectedRangeCount: 4,
		Timing: actuator.TimingModel{WheelDiameterMM: 60, RPM: 100}, TrackMM: 225,
		Clock: func() time.Time { return now },
	}, Tunables{})

	start := e.Pose()
	now = now.Add(time.Minute)
	test.That(t, e.Pose(), test.ShouldResemble, start)
}
