// Package model defines shared configuration structures used to initialize the rover.
// It includes rover tuning, potentiometer calibration, link settings and device definitions.
package model

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCalibration is returned when potentiometer bounds are not mutually consistent.
var ErrInvalidCalibration = errors.New("invalid potentiometer calibration")

// Config represents the root structure loaded from configs/rover.yml.
type Config struct {
	Rover       RoverConfig       `yaml:"rover"`
	Calibration CalibrationConfig `yaml:"calibration"`
	PID         PIDConfig         `yaml:"pid"`
	Comms       CommsConfig       `yaml:"comms"`
	Board       SerialConfig      `yaml:"board"`
	GPS         SerialConfig      `yaml:"gps"`
	Motors      []MotorConfig     `yaml:"motors"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Journal     JournalConfig     `yaml:"journal"`
	LoRa        LoRaConfig        `yaml:"lora"`
	Simulation  SimulationConfig  `yaml:"simulation"`
}

// RoverConfig holds control loop tuning.
type RoverConfig struct {
	ID              string  `yaml:"id"`
	ControlPeriodMs int     `yaml:"control_period_ms"`
	CruiseThrottle  float64 `yaml:"cruise_throttle"` // NORMAL state throttle
	ScanTurn        float64 `yaml:"scan_turn"`       // steering target while sweeping; 100 swings the head to its bound
	ArrivalRadius   float64 `yaml:"arrival_radius"`  // degrees; 0 disables arrival handling
	DetourDistance  float64 `yaml:"detour_distance"` // degrees between rover and a scan detour waypoint
	JournalEvery    int     `yaml:"journal_every"`   // ticks between telemetry snapshots in the journal
}

// CalibrationConfig is the potentiometer calibration of the steerable sensor head.
type CalibrationConfig struct {
	Left      float64 `yaml:"left"`
	Middle    float64 `yaml:"middle"`
	Right     float64 `yaml:"right"`
	Tolerance float64 `yaml:"tolerance"`
}

// PIDConfig holds the steering corrector gains.
type PIDConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// CommsConfig configures the base station link.
type CommsConfig struct {
	Listen         string `yaml:"listen"`     // UDP address drive/goal packets arrive on
	ReplyPort      int    `yaml:"reply_port"` // 0 replies to the sender's source port
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

// SerialConfig describes a serial attached device. An empty Device disables it.
type SerialConfig struct {
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	MaxAgeMs int    `yaml:"max_age_ms"` // cached readings older than this are a sensor fault; 0 never expires
}

// MotorConfig maps a wheel index to a motor variant.
type MotorConfig struct {
	Index    int    `yaml:"index"`
	Kind     string `yaml:"kind"` // board, talon, sim
	Inverted bool   `yaml:"inverted"`
}

// MonitorConfig configures telemetry fan-out to dashboards.
type MonitorConfig struct {
	Addr       string `yaml:"addr"` // empty disables the websocket/http monitor
	MQTTBroker string `yaml:"mqtt_broker"`
	MQTTTopic  string `yaml:"mqtt_topic"`
}

// JournalConfig configures the bbolt mission journal.
type JournalConfig struct {
	Path string `yaml:"path"` // empty disables the journal
}

// LoRaConfig configures the LoRaWAN framed telemetry uplink.
type LoRaConfig struct {
	Device     string `yaml:"device"` // empty disables the uplink
	Baud       int    `yaml:"baud"`
	DevAddr    string `yaml:"dev_addr"` // hex, 4 bytes
	AppSKey    string `yaml:"app_skey"` // hex, 16 bytes
	NwkSKey    string `yaml:"nwk_skey"` // hex, 16 bytes
	FPort      uint8  `yaml:"fport"`
	IntervalMs int    `yaml:"interval_ms"`
}

// SimulationConfig replaces hardware with an in-memory plant.
type SimulationConfig struct {
	Enabled bool `yaml:"enabled"`
	// ObstacleArcs lists [from, to] compass arcs (degrees) reported as obstructed.
	ObstacleArcs [][2]float64 `yaml:"obstacle_arcs"`
	StartLat     float64      `yaml:"start_lat"`
	StartLng     float64      `yaml:"start_lng"`
	StartHeading float64      `yaml:"start_heading"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with the rover's stock settings.
func (c *Config) ApplyDefaults() {
	if c.Rover.ID == "" {
		c.Rover.ID = "ROVER01"
	}
	if c.Rover.ControlPeriodMs == 0 {
		c.Rover.ControlPeriodMs = 50
	}
	if c.Rover.CruiseThrottle == 0 {
		c.Rover.CruiseThrottle = 20
	}
	if c.Rover.ScanTurn == 0 {
		c.Rover.ScanTurn = 100
	}
	if c.Rover.DetourDistance == 0 {
		c.Rover.DetourDistance = 0.0002
	}
	if c.Rover.JournalEvery == 0 {
		c.Rover.JournalEvery = 20
	}
	if c.Calibration == (CalibrationConfig{}) {
		c.Calibration = CalibrationConfig{Left: 0.55, Middle: (0.55 + 0.11111) / 2, Right: 0.11111, Tolerance: 0.01}
	}
	if c.PID == (PIDConfig{}) {
		c.PID = PIDConfig{Kp: 1}
	}
	if c.Comms.Listen == "" {
		c.Comms.Listen = ":8840"
	}
	if c.Comms.PollIntervalMs == 0 {
		c.Comms.PollIntervalMs = 20
	}
	if c.Board.Baud == 0 {
		c.Board.Baud = 115200
	}
	if c.Board.MaxAgeMs == 0 {
		c.Board.MaxAgeMs = 10 * c.Rover.ControlPeriodMs
	}
	if c.GPS.Baud == 0 {
		c.GPS.Baud = 9600
	}
	if len(c.Motors) == 0 {
		kind := "board"
		if c.Simulation.Enabled {
			kind = "sim"
		}
		for i := 1; i <= 4; i++ {
			c.Motors = append(c.Motors, MotorConfig{Index: i, Kind: kind})
		}
	}
	if c.Monitor.MQTTTopic == "" {
		c.Monitor.MQTTTopic = "rover/" + c.Rover.ID + "/telemetry"
	}
	if c.LoRa.Baud == 0 {
		c.LoRa.Baud = 9600
	}
	if c.LoRa.FPort == 0 {
		c.LoRa.FPort = 10
	}
	if c.LoRa.IntervalMs == 0 {
		c.LoRa.IntervalMs = 5000
	}
}

// Validate checks invariants every consumer of the configuration relies on.
func (c *Config) Validate() error {
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	if c.Rover.ControlPeriodMs <= 0 {
		return fmt.Errorf("rover.control_period_ms must be positive, got %d", c.Rover.ControlPeriodMs)
	}
	if c.Comms.PollIntervalMs <= 0 {
		return fmt.Errorf("comms.poll_interval_ms must be positive, got %d", c.Comms.PollIntervalMs)
	}
	if c.Board.MaxAgeMs < 0 || c.GPS.MaxAgeMs < 0 {
		return fmt.Errorf("max_age_ms must not be negative")
	}
	if c.LoRa.IntervalMs <= 0 {
		return fmt.Errorf("lora.interval_ms must be positive, got %d", c.LoRa.IntervalMs)
	}
	seen := map[int]bool{}
	for _, m := range c.Motors {
		if m.Index < 1 || m.Index > 4 {
			return fmt.Errorf("motor index %d out of range [1,4]", m.Index)
		}
		if seen[m.Index] {
			return fmt.Errorf("motor index %d configured twice", m.Index)
		}
		seen[m.Index] = true
		switch m.Kind {
		case "board", "talon", "sim":
		default:
			return fmt.Errorf("motor %d: unknown kind %q", m.Index, m.Kind)
		}
	}
	return nil
}

// Validate checks that the bounds are distinct and the middle sits between them.
func (c CalibrationConfig) Validate() error {
	if c.Tolerance < 0 {
		return fmt.Errorf("%w: negative tolerance", ErrInvalidCalibration)
	}
	if c.Left == c.Right {
		return fmt.Errorf("%w: left and right bounds are equal", ErrInvalidCalibration)
	}
	avg := (c.Left + c.Right) / 2
	if math.Abs(c.Middle-avg) > c.Tolerance+1e-9 {
		return fmt.Errorf("%w: middle %.4f is not within %.4f of %.4f", ErrInvalidCalibration, c.Middle, c.Tolerance, avg)
	}
	return nil
}
