package scan

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.viam.com/rdk/logging"
)

// SerialScanSource reads LD_20-class LiDAR reports over a line-terminated
// serial channel. Each line is one device report: a ';'-separated run of
// "angle,distance,intensity" triples. Filtering of spurious zero-distance
// points is always enabled.
type SerialScanSource struct {
	port   string
	baud   int
	model  string
	clock  Clock
	logger logging.Logger

	mu     sync.Mutex
	conn   serial.Port
	reader *bufio.Reader
}

var _ Source = (*SerialScanSource)(nil)

// NewSerialScanSource opens no connection yet; call Start to connect. model
// names the device family (e.g. "LD_20") and is carried for log lines only;
// all supported models share the same report framing.
func NewSerialScanSource(port string, baud int, model string, clock Clock, logger logging.Logger) *SerialScanSource {
	if clock == nil {
		clock = time.Now
	}
	return &SerialScanSource{port: port, baud: baud, model: model, clock: clock, logger: logger}
}

// Start opens the serial port at the configured baud, 8N1, no flow control.
func (s *SerialScanSource) Start(ctx context.Context) error {
	_, span := startSpan(ctx, "SerialScanSource.Start")
	defer span.End()

	mode := &serial.Mode{BaudRate: s.baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	conn, err := serial.Open(s.port, mode)
	if err != nil {
		return errors.Wrapf(ErrDeviceUnavailable, "opening lidar port %s: %v", s.port, err)
	}
	s.logger.Infow("lidar connected", "port", s.port, "baud", s.baud, "model", s.model)

	s.mu.Lock()
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.mu.Unlock()
	return nil
}

// Stop closes the serial connection. Idempotent.
func (s *SerialScanSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	if err != nil {
		return errors.Wrap(ErrTransportFailure, err.Error())
	}
	return nil
}

// ReadScan blocks on one line of device report, or returns Timeout if
// timeout elapses first.
func (s *SerialScanSource) ReadScan(ctx context.Context, timeout time.Duration) (ReadResult, Scan, error) {
	_, span := startSpan(ctx, "SerialScanSource.ReadScan")
	defer span.End()

	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return Timeout, Scan{}, errors.Wrap(ErrDeviceUnavailable, "lidar not started")
	}

	type lineResult struct {
		line string
		err  error
	}
	lineCh := make(chan lineResult, 1)
	go func() {
		line, err := reader.ReadString('\n')
		lineCh <- lineResult{line, err}
	}()

	select {
	case res := <-lineCh:
		if res.err != nil {
			return Timeout, Scan{}, errors.Wrap(ErrTransportFailure, res.err.Error())
		}
		return Normal, parseReport(res.line, s.clock()), nil
	case <-time.After(timeout):
		return Timeout, Scan{}, nil
	case <-ctx.Done():
		return Timeout, Scan{}, ctx.Err()
	}
}

// parseReport turns one "angle,distance,intensity;..." line into a Scan,
// filtering zero-distance (spurious) points.
func parseReport(line string, now time.Time) Scan {
	ts := now.UnixNano()
	fields := strings.Split(strings.TrimSpace(line), ";")
	samples := make([]Sample, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		parts := strings.Split(f, ",")
		if len(parts) != 3 {
			continue
		}
		angle, err1 := strconv.ParseFloat(parts[0], 64)
		dist, err2 := strconv.ParseUint(parts[1], 10, 16)
		intensity, err3 := strconv.ParseUint(parts[2], 10, 8)
		if err1 != nil || err2 != nil || err3 != nil || dist == 0 {
			continue
		}
		samples = append(samples, NewSample(angle, uint16(dist), uint8(intensity), ts))
	}
	return Scan{Samples: samples}
}
