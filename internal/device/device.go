// Package device defines the hardware-facing capabilities the rover consumes: line based
// serial devices, the sensor board, the GPS receiver, motors and a simulated plant that
// stands in for all of them.
package device

import (
	"errors"
	"time"

	"RoverDrive/internal/model"
)

// ErrNoReading is returned by a sensor that has not produced a value yet.
var ErrNoReading = errors.New("no reading yet")

// ErrStaleReading is returned when the last cached reading is older than the sensor's max age.
var ErrStaleReading = errors.New("reading is stale")

// Device defines an abstract interface for line oriented devices (sensor board, GPS, LoRa radio).
type Device interface {
	// ReadLine reads a single line terminated by '\n'.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}

// Potentiometer reads the steerable sensor head position.
type Potentiometer interface {
	ReadPotentiometer() (float64, error)
}

// Compass reads the raw magnetometer heading in degrees.
type Compass interface {
	ReadCompass() (float64, error)
}

// Locator reports the latest GPS fix.
type Locator interface {
	Position() (model.Position, error)
}

// EncoderReader reads the four wheel encoders.
type EncoderReader interface {
	ReadEncoders() ([4]float64, error)
}

// ObstacleSensor reports whether something is within range ahead of the sensor head.
type ObstacleSensor interface {
	Obstacle() bool
}
