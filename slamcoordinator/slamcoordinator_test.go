package slamcoordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/kats-org/roverd/pose"
	"github.com/kats-org/roverd/scan"
	"github.com/kats-org/roverd/slamengine"
)

func TestCoordinatorPublishesSnapshotAfterScan(t *testing.T) {
	fake := slamengine.NewFakeEngine(10)
	fake.SetPose(pose.Pose{XMM: 5, YMM: 6, ThetaDegrees: 7})

	src := scan.NewFakeScanSource(scan.Scan{Samples: []scan.Sample{scan.NewSample(0, 100, 200, 0)}})
	serializer := slamengine.NewSerializer(fake)

	coord := New(src, serializer, 8, logging.NewTestLogger(t))
	var engineWorkers sync.WaitGroup
	ctx := context.Background()
	test.That(t, coord.Start(ctx, &engineWorkers), test.ShouldBeNil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if coord.Position() != (pose.Pose{}) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	test.That(t, coord.Position(), test.ShouldResemble, pose.Pose{XMM: 5, YMM: 6, ThetaDegrees: 7})
	snap := coord.Snapshot()
	test.That(t, snap.Pose, test.ShouldResemble, pose.Pose{XMM: 5, YMM: 6, ThetaDegrees: 7})
	test.That(t, len(snap.Scan.Samples), test.ShouldEqual, 1)

	coord.Stop()
	test.That(t, coord.IsRunning(), test.ShouldBeFalse)
}

func TestCoordinatorStartIsIdempotent(t *testing.T) {
	fake := slamengine.NewFakeEngine(4)
	src := scan.NewFakeScanSource(scan.Scan{})
	serializer := slamengine.NewSerializer(fake)
	coord := New(src, serializer, 4, logging.NewTestLogger(t))

	var engineWorkers sync.WaitGroup
	ctx := context.Background()
	test.That(t, coord.Start(ctx, &engineWorkers), test.ShouldBeNil)
	test.That(t, coord.Start(ctx, &engineWorkers), test.ShouldBeNil)
	coord.Stop()
	coord.Stop()
}
