package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rover.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "rover:\n  id: R7\nsimulation:\n  enabled: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "R7", cfg.Rover.ID)
	assert.Equal(t, 50, cfg.Rover.ControlPeriodMs)
	assert.Equal(t, 20.0, cfg.Rover.CruiseThrottle)
	assert.Equal(t, ":8840", cfg.Comms.Listen)
	assert.Equal(t, "rover/R7/telemetry", cfg.Monitor.MQTTTopic)
	require.Len(t, cfg.Motors, 4)
	for i, m := range cfg.Motors {
		assert.Equal(t, i+1, m.Index)
		assert.Equal(t, "sim", m.Kind)
	}
}

func TestLoadConfigRejectsInconsistentCalibration(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
calibration:
  left: 0.8
  middle: 0.2
  right: 0.1
  tolerance: 0.01
`))
	require.ErrorIs(t, err, ErrInvalidCalibration)
}

func TestValidateMotors(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.Motors = []MotorConfig{{Index: 1, Kind: "board"}, {Index: 1, Kind: "board"}}
	assert.Error(t, cfg.Validate())

	cfg.Motors = []MotorConfig{{Index: 5, Kind: "board"}}
	assert.Error(t, cfg.Validate())

	cfg.Motors = []MotorConfig{{Index: 2, Kind: "stepper"}}
	assert.Error(t, cfg.Validate())

	cfg.Motors = []MotorConfig{{Index: 2, Kind: "talon", Inverted: true}}
	assert.NoError(t, cfg.Validate())
}

func TestValidateIntervals(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500, cfg.Board.MaxAgeMs)
	assert.Zero(t, cfg.GPS.MaxAgeMs)

	cfg.LoRa.IntervalMs = -5
	assert.Error(t, cfg.Validate())

	cfg.LoRa.IntervalMs = 1000
	cfg.Board.MaxAgeMs = -1
	assert.Error(t, cfg.Validate())
}

func TestCalibrationValidate(t *testing.T) {
	assert.NoError(t, CalibrationConfig{Left: 0.2, Middle: 0.5, Right: 0.8, Tolerance: 0}.Validate())
	assert.ErrorIs(t, CalibrationConfig{Left: 0.5, Middle: 0.5, Right: 0.5}.Validate(), ErrInvalidCalibration)
	assert.ErrorIs(t, CalibrationConfig{Left: 0.2, Middle: 0.5, Right: 0.8, Tolerance: -1}.Validate(), ErrInvalidCalibration)
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig("../../configs/rover.yml")
	require.NoError(t, err)
	assert.Equal(t, "ROVER01", cfg.Rover.ID)
	assert.Equal(t, 100.0, cfg.Rover.ScanTurn)
	assert.Len(t, cfg.Motors, 4)
	assert.True(t, cfg.Motors[1].Inverted)
	assert.Equal(t, "talon", cfg.Motors[2].Kind)
	assert.Equal(t, [][2]float64{{250, 260}}, cfg.Simulation.ObstacleArcs)
}
