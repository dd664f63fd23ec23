package pose

import (
	"testing"

	"go.viam.com/test"
)

func TestAngleDiffDegreesNormalizesToHalfOpenRange(t *testing.T) {
	test.That(t, AngleDiffDegrees(10, 5), test.ShouldEqual, 5.0)
	test.That(t, AngleDiffDegrees(-170, 170), test.ShouldEqual, 20.0)
	test.That(t, AngleDiffDegrees(170, -170), test.ShouldEqual, -20.0)
	test.That(t, AngleDiffDegrees(0, 180), test.ShouldEqual, 180.0)
}

func TestHeadingToCardinalDirections(t *testing.T) {
	test.That(t, HeadingTo(1, 0), test.ShouldEqual, 0.0)
	test.That(t, HeadingTo(0, 1), test.ShouldEqual, 90.0)
	test.That(t, HeadingTo(-1, 0), test.ShouldEqual, 180.0)
	test.That(t, HeadingTo(0, -1), test.ShouldEqual, -90.0)
}
