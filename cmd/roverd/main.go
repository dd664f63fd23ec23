// Command roverd is the onboard control core: it acquires the LiDAR and
// actuator serial devices, starts the SLAM ingestion worker, and serves
// the HTTP/WebSocket transport.
package main

import (
	"context"
	"flag"
	"strconv"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"github.com/kats-org/roverd/actuator"
	"github.com/kats-org/roverd/config"
	"github.com/kats-org/roverd/modearbiter"
	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/planner"
	"github.com/kats-org/roverd/scan"
	"github.com/kats-org/roverd/slamcoordinator"
	"github.com/kats-org/roverd/slamengine"
	"github.com/kats-org/roverd/telemetry"
	"github.com/kats-org/roverd/transport"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewLogger("roverd"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	configPath := flag.String("config", "", "path to a JSON config file; defaults built in if empty")
	flag.CommandLine.Parse(args[1:])

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := telemetry.Init(logger); err != nil {
		logger.Warnw("telemetry exporter failed to start", "error", err)
	}

	var activeBackgroundWorkers sync.WaitGroup
	defer activeBackgroundWorkers.Wait()

	// Devices are acquired LiDAR first, then actuator, and released in
	// reverse. Startup failure on the LiDAR aborts the process; the
	// actuator failing to connect is logged but non-fatal.
	source := scan.NewSerialScanSource(cfg.LidarPort, cfg.LidarBaud, cfg.LidarModel, nil, logger)

	act := actuator.NewSerialActuator(cfg.ActuatorPort, cfg.ActuatorBaud, logger)
	if err := act.Connect(ctx); err != nil {
		logger.Warnw("actuator connect failed, continuing without it", "error", err)
	}
	defer func() {
		if err := act.Disconnect(); err != nil {
			logger.Warnw("actuator disconnect failed", "error", err)
		}
	}()

	expectedRangeCount := 360
	timing := actuator.TimingModel{WheelDiameterMM: cfg.Timing.WheelDiameterMM, RPM: cfg.Timing.RPM}
	engine := slamengine.NewRaytraceEngine(slamengine.RaytraceParams{
		MapPixels:          cfg.Map.MapPixels,
		MapMeters:          cfg.Map.MapMeters,
		ExpectedRangeCount: expectedRangeCount,
		Timing:             timing,
		TrackMM:            cfg.Timing.TrackMM,
	}, slamengine.Tunables{})
	serializer := slamengine.NewSerializer(engine)

	// The engine dead-reckons pose from the primitives the wheels are
	// commanded, so every consumer drives through the instrumented wrapper.
	drive := actuator.Instrument(act, engine, nil)

	coordinator := slamcoordinator.New(source, serializer, expectedRangeCount, logger)
	if err := coordinator.Start(ctx, &activeBackgroundWorkers); err != nil {
		return err
	}
	defer coordinator.Stop()

	if err := act.Connect(ctx); err != nil {
		logger.Warnw("actuator connect failed, continuing without it", "error", err)
	}
	defer func() {
		if err := act.Disconnect(); err != nil {
			logger.Warnw("actuator disconnect failed", "error", err)
		}
	}()

	gridCfg := occupancy.GridConfig{
		CellPixels:   cfg.CellPixels(),
		FreeAbove:    cfg.Planning.FreeThreshold,
		BlockedBelow: cfg.Planning.BlockedBelow,
	}

	arbiter := modearbiter.New(coordinator, drive, planner.New(), timing, cfg.Timing.TrackMM, gridCfg, cfg.Map.MapPixels, cfg.Map.MapMeters, logger)
	arbiter.Start(ctx, &activeBackgroundWorkers)

	reporter := telemetry.NewReporter(logger, 10*time.Second)
	reporter.Register("slam", func() string {
		if coordinator.IsRunning() {
			return "running"
		}
		return "stopped"
	})
	reporter.Register("mode", func() string { return arbiter.Mode().String() })
	reporter.Run(ctx, &activeBackgroundWorkers)

	proj := occupancy.NewProjector(cfg.Map.MapPixels, cfg.Map.MapMeters, gridCfg.CellPixels)
	server := transport.New(":"+strconv.Itoa(cfg.HTTPPort), coordinator, arbiter, drive, proj, logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Serve() }()

	select {
	case <-ctx.Done():
		return server.Shutdown(context.Background())
	case err := <-serverErr:
		return err
	}
}
