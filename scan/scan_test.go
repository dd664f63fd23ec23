package scan

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestNewSampleDerivesCartesian(t *testing.T) {
	s := NewSample(0, 1000, 200, 42)
	test.That(t, s.Point.X, test.ShouldAlmostEqual, 1000.0)
	test.That(t, s.Point.Y, test.ShouldAlmostEqual, 0.0)

	s90 := NewSample(90, 1000, 200, 42)
	test.That(t, s90.Point.X, test.ShouldAlmostEqual, 0.0)
	test.That(t, s90.Point.Y, test.ShouldAlmostEqual, 1000.0)
}

func TestParseReportFiltersSpuriousPoints(t *testing.T) {
	line := "0,1000,200;90,0,200;180,500,150\n"
	scan := parseReport(line, time.Unix(0, 0))
	test.That(t, len(scan.Samples), test.ShouldEqual, 2)
	test.That(t, scan.Samples[0].DistanceMM, test.ShouldEqual, uint16(1000))
	test.That(t, scan.Samples[1].DistanceMM, test.ShouldEqual, uint16(500))
}

func TestFakeScanSourceReplaysThenHolds(t *testing.T) {
	a := Scan{Samples: []Sample{NewSample(0, 100, 1, 0)}}
	b := Scan{Samples: []Sample{NewSample(0, 200, 1, 0)}}
	src := NewFakeScanSource(a, b)
	ctx := context.Background()

	res, got, err := src.ReadScan(ctx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, Timeout) // not started yet

	test.That(t, src.Start(ctx), test.ShouldBeNil)

	res, got, err = src.ReadScan(ctx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, Normal)
	test.That(t, got, test.ShouldResemble, a)

	res, got, err = src.ReadScan(ctx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, b)

	// holds the last scan once exhausted
	res, got, err = src.ReadScan(ctx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, Normal)
	test.That(t, got, test.ShouldResemble, b)

	test.That(t, src.Stop(), test.ShouldBeNil)
	res, _, err = src.ReadScan(ctx, time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, Timeout)
}

func TestPointAtDistance(t *testing.T) {
	sc := PointAtDistance(100)
	test.That(t, len(sc.Samples), test.ShouldEqual, 1)
	test.That(t, sc.Samples[0].DistanceMM, test.ShouldEqual, uint16(100))
}
