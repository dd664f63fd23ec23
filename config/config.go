// Package config validates and defaults the tunables that shape roverd's
// perception-planning-actuation loop: device ports, map geometry, coarse-grid
// thresholds, and the actuator's timing model.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// newError returns an error specific to a failure in the roverd configuration.
func newError(configError string) error {
	return errors.Errorf("roverd configuration error: %s", configError)
}

// Config describes how to configure a roverd process.
type Config struct {
	LidarPort  string `json:"lidar_port"`
	LidarBaud  int    `json:"lidar_baud"`
	LidarModel string `json:"lidar_model"`

	ActuatorPort string `json:"actuator_port"`
	ActuatorBaud int    `json:"actuator_baud"`

	HTTPPort int `json:"http_port"`

	Map      MapConfig      `json:"map"`
	Planning PlanningConfig `json:"planning"`
	Timing   TimingConfig   `json:"timing"`
}

// MapConfig describes the occupancy raster's physical and pixel extent.
type MapConfig struct {
	MapPixels int     `json:"map_pixels"`
	MapMeters float64 `json:"map_meters"`
}

// PlanningConfig holds the coarse-grid derivation tunables: the planning
// tile size and the two occupancy thresholds.
type PlanningConfig struct {
	CellMeters    float64 `json:"cell_meters"`
	FreeThreshold int     `json:"free_threshold"`
	BlockedBelow  int     `json:"blocked_below"`
}

// TimingConfig holds the actuator's open-loop timing model and the wheel
// track width used for turn timing.
type TimingConfig struct {
	WheelDiameterMM float64 `json:"wheel_diameter_mm"`
	RPM             float64 `json:"rpm"`
	TrackMM         float64 `json:"track_mm"`
}

var (
	errLidarPortRequired    = errors.New("\"lidar_port\" must not be empty")
	errActuatorPortRequired = errors.New("\"actuator_port\" must not be empty")
)

// Load reads a JSON config file, applying it on top of Default so an
// operator only needs to override the fields they care about.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	cfg := Default()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}
	return cfg, nil
}

// Default returns the configuration matching the physical robot this core
// was built against: 800x800 px over 15 m, LD_20 lidar on /dev/ttyUSB0 at
// 230400 baud, actuator on /dev/ttyACM0 at 9600 baud.
func Default() *Config {
	return &Config{
		LidarPort:    "/dev/ttyUSB0",
		LidarBaud:    230400,
		LidarModel:   "LD_20",
		ActuatorPort: "/dev/ttyACM0",
		ActuatorBaud: 9600,
		HTTPPort:     18080,
		Map: MapConfig{
			MapPixels: 800,
			MapMeters: 15,
		},
		Planning: PlanningConfig{
			CellMeters:    0.25,
			FreeThreshold: 200,
			BlockedBelow:  25,
		},
		Timing: TimingConfig{
			WheelDiameterMM: 60,
			RPM:             100,
			TrackMM:         225,
		},
	}
}

// Validate checks field presence and ranges, returning a wrapped
// configuration error on the first violation found.
func (c *Config) Validate() error {
	if c.LidarPort == "" {
		return newError(errLidarPortRequired.Error())
	}
	if c.ActuatorPort == "" {
		return newError(errActuatorPortRequired.Error())
	}
	if c.LidarBaud <= 0 {
		return newError("lidar_baud must be positive")
	}
	if c.ActuatorBaud <= 0 {
		return newError("actuator_baud must be positive")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return newError("http_port must be a valid TCP port")
	}
	if c.Map.MapPixels <= 0 {
		return newError("map.map_pixels must be positive")
	}
	if c.Map.MapMeters <= 0 {
		return newError("map.map_meters must be positive")
	}
	if c.Planning.CellMeters <= 0 {
		return newError("planning.cell_meters must be positive")
	}
	if c.Planning.FreeThreshold <= c.Planning.BlockedBelow {
		return newError("planning.free_threshold must be greater than planning.blocked_below")
	}
	if c.Timing.WheelDiameterMM <= 0 {
		return newError("timing.wheel_diameter_mm must be positive")
	}
	if c.Timing.RPM <= 0 {
		return newError("timing.rpm must be positive")
	}
	if c.Timing.TrackMM <= 0 {
		return newError("timing.track_mm must be positive")
	}
	return nil
}

// CellPixels computes CELL_PX = max(1, round(cell_meters * map_pixels / map_meters)).
func (c *Config) CellPixels() int {
	px := roundHalfAwayFromZero(c.Planning.CellMeters * float64(c.Map.MapPixels) / c.Map.MapMeters)
	if px < 1 {
		return 1
	}
	return px
}

// GridSize computes N = ceil(MAP_PIXELS / CELL_PX).
func (c *Config) GridSize() int {
	cellPx := c.CellPixels()
	return (c.Map.MapPixels + cellPx - 1) / cellPx
}

func roundHalfAwayFromZero(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}
