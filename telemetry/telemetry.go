// Package telemetry starts the background performance exporter and a
// periodic reporter that logs whatever named state functions are
// registered with it (roverd registers the mode and whether the SLAM
// worker is still running).
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils/perf"
)

const perfReportingInterval = 10 * time.Second

// Init starts the process-wide performance exporter and logs the outcome,
// so a headless rover records whether stats collection came up. The rover
// has no operator console, so the reporting interval is a lazy 10 s rather
// than a development-tight one.
func Init(logger logging.Logger) (perf.Exporter, error) {
	exporter := perf.NewDevelopmentExporterWithOptions(perf.DevelopmentExporterOptions{
		ReportingInterval: perfReportingInterval,
	})
	if err := exporter.Start(); err != nil {
		return nil, errors.Wrap(err, "starting perf exporter")
	}
	logger.Debugw("perf exporter started", "reporting_interval", perfReportingInterval.String())
	return exporter, nil
}

// StateFunc reports a one-line snapshot of whatever subsystem registered it.
type StateFunc func() string

// Reporter periodically logs the registered state functions until its
// context is cancelled.
type Reporter struct {
	logger logging.Logger
	states map[string]StateFunc
	period time.Duration
}

// NewReporter builds a Reporter that logs every period.
func NewReporter(logger logging.Logger, period time.Duration) *Reporter {
	return &Reporter{logger: logger, states: map[string]StateFunc{}, period: period}
}

// Register adds a named state source. Not safe to call concurrently with Run.
func (r *Reporter) Register(name string, fn StateFunc) {
	r.states[name] = fn
}

// Run logs all registered states every period until ctx is done.
func (r *Reporter) Run(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()
		ticker := time.NewTicker(r.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for name, fn := range r.states {
					r.logger.Debugw("state report", "component", name, "state", fn())
				}
			}
		}
	}()
}
