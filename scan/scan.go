// Package scan abstracts the rotating 2-D LiDAR: opening the device,
// starting/stopping acquisition, and reading timestamped polar scans.
package scan

import (
	"context"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

// Sample is a single polar reading plus its Cartesian projection in the
// robot frame.
type Sample struct {
	AngleDeg    float64
	DistanceMM  uint16
	Intensity   uint8
	TimestampNS int64
	Point       r3.Vector
}

// Scan is an ordered sequence of polar samples from one device report.
type Scan struct {
	Samples []Sample
}

// ReadResult reports the outcome of a single ScanSource.ReadScan call.
type ReadResult int

const (
	// Normal means Scan is populated and valid.
	Normal ReadResult = iota
	// Wait means no scan was ready yet; the caller should try again.
	Wait
	// Timeout means no scan arrived within the requested deadline.
	Timeout
)

// Sentinel error kinds, wrapped with context at each boundary crossing.
var (
	ErrDeviceUnavailable = errors.New("scan: device unavailable")
	ErrTransportFailure  = errors.New("scan: transport failure")
)

// Clock abstracts the clock samples are timestamped against (stored in
// nanoseconds as TimestampNS), so tests can control timing deterministically.
type Clock func() time.Time

// Source is the capability a ScanSource must provide: start/stop
// lifecycle (Start opens the device) plus a timed read. Named behavior, not a class hierarchy, so
// tests can substitute deterministic fakes.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	ReadScan(ctx context.Context, timeout time.Duration) (ReadResult, Scan, error)
}

// NewSample builds a Sample, deriving its Cartesian projection from the
// polar reading.
func NewSample(angleDeg float64, distanceMM uint16, intensity uint8, timestampNS int64) Sample {
	rad := angleDeg * math.Pi / 180
	d := float64(distanceMM)
	return Sample{
		AngleDeg:    angleDeg,
		DistanceMM:  distanceMM,
		Intensity:   intensity,
		TimestampNS: timestampNS,
		Point:       r3.Vector{X: d * math.Cos(rad), Y: d * math.Sin(rad)},
	}
}

// startSpan is a thin wrapper kept so every exported entry point in this
// package carries the same tracing density as the rest of roverd.
func startSpan(ctx context.Context, name string) (context.Context, *trace.Span) {
	return trace.StartSpan(ctx, "roverd::scan::"+name)
}
