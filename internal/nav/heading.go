// Package nav turns sensor readings into steering goals: heading estimation from the
// compass and the steerable head potentiometer, flat-earth bearings toward destinations,
// and the obstacle scan state machine.
package nav

import (
	"errors"
	"fmt"
	"math"

	"RoverDrive/internal/model"
)

const (
	// YawRange is the head yaw (degrees) at either calibrated potentiometer bound.
	YawRange = 40.0
	// MaxTurn is the magnitude DesiredTurn saturates at.
	MaxTurn = 10.0
	// MeasurementRange is the PID measurement at either potentiometer bound.
	MeasurementRange = 100.0
)

var (
	// ErrSensorFault is returned when the potentiometer is outside its calibrated range.
	ErrSensorFault = errors.New("potentiometer outside calibrated range")
	// ErrNoFix is returned when no position is available.
	ErrNoFix = errors.New("no position fix")
	// ErrNoDestination is returned when autonomous mode has nowhere to go.
	ErrNoDestination = errors.New("no destination")
)

// Calibration is the fixed potentiometer calibration of the steerable head.
// Left may be numerically above or below Right.
type Calibration struct {
	Left, Middle, Right, Tolerance float64
}

// NewCalibration validates cfg and returns it as a Calibration.
func NewCalibration(cfg model.CalibrationConfig) (Calibration, error) {
	if err := cfg.Validate(); err != nil {
		return Calibration{}, err
	}
	return Calibration{Left: cfg.Left, Middle: cfg.Middle, Right: cfg.Right, Tolerance: cfg.Tolerance}, nil
}

// Offset returns middle - reading, or ErrSensorFault when it falls outside
// [middle-left, middle-right].
func (c Calibration) Offset(reading float64) (float64, error) {
	off := c.Middle - reading
	lo, hi := c.Middle-c.Left, c.Middle-c.Right
	if lo > hi {
		lo, hi = hi, lo
	}
	if math.IsNaN(off) || off < lo || off > hi {
		return 0, fmt.Errorf("%w: reading %.4f", ErrSensorFault, reading)
	}
	return off, nil
}

// Yaw maps an offset onto [-40, 40] degrees, negative toward the left bound.
// The calibrated middle always maps to 0.
func (c Calibration) Yaw(offset float64) float64 {
	return c.remap(offset, YawRange)
}

// Measurement maps an offset onto [-100, 100] for the steering corrector.
func (c Calibration) Measurement(offset float64) float64 {
	return c.remap(offset, MeasurementRange)
}

// remap is piecewise linear: [middle-left, 0] onto [-r, 0] and [0, middle-right] onto [0, r].
func (c Calibration) remap(offset, r float64) float64 {
	toLeft, toRight := c.Middle-c.Left, c.Middle-c.Right
	switch {
	case offset == 0:
		return 0
	case toLeft != 0 && (offset < 0) == (toLeft < 0):
		return -r * offset / toLeft
	case toRight != 0:
		return r * offset / toRight
	default:
		return 0
	}
}

// AtLeft reports whether the head has reached (or passed) the left bound.
func (c Calibration) AtLeft(reading float64) bool {
	return reached(reading, c.Left, c.Right, c.Tolerance)
}

// AtRight reports whether the head has reached (or passed) the right bound.
func (c Calibration) AtRight(reading float64) bool {
	return reached(reading, c.Right, c.Left, c.Tolerance)
}

func reached(reading, bound, opposite, tol float64) bool {
	if bound > opposite {
		return reading >= bound-tol
	}
	return reading <= bound+tol
}

// EstimateHeading fuses the raw compass with the head yaw. The result is in [0, 360).
func EstimateHeading(rawCompass, reading float64, cal Calibration) (float64, error) {
	off, err := cal.Offset(reading)
	if err != nil {
		return 0, err
	}
	return Wrap360(rawCompass + cal.Yaw(off)), nil
}

// DesiredHeading is the flat-earth bearing atan2(dLat, dLng) remapped from
// [-pi, pi] to [0, 360). It ignores earth curvature, so it is only meaningful
// over short ranges.
func DesiredHeading(pos model.Position, dest model.Destination) float64 {
	theta := math.Atan2(dest.Lat-pos.Lat, dest.Lng-pos.Lng)
	return Wrap360(mapRange(theta, -math.Pi, math.Pi, 0, 360))
}

// Project returns the point distance degrees away from pos along heading, in the
// same frame as DesiredHeading: DesiredHeading(pos, Project(pos, h, d)) == h.
func Project(pos model.Position, heading, distance float64) model.Destination {
	theta := mapRange(Wrap360(heading), 0, 360, -math.Pi, math.Pi)
	return model.Destination{
		Lat: pos.Lat + distance*math.Sin(theta),
		Lng: pos.Lng + distance*math.Cos(theta),
	}
}

// Distance is the flat-earth distance in degrees.
func Distance(pos model.Position, dest model.Destination) float64 {
	return math.Hypot(dest.Lat-pos.Lat, dest.Lng-pos.Lng)
}

// DesiredTurn maps the shorter angular difference between two headings onto
// [-10, 10]. Positive turns right (clockwise). A difference of exactly 180
// degrees turns left.
func DesiredTurn(current, desired float64) float64 {
	diff := math.Abs(current - desired)
	if diff == 0 || diff == 360 {
		return 0
	}
	delta := diff
	if diff > 180 {
		delta = 360 - diff
	}
	mag := math.Min(MaxTurn, mapRange(delta, 0, 180, 0, MaxTurn))
	if (current > desired && diff > 180) || (current < desired && diff < 180) {
		return mag
	}
	return -mag
}

// Wrap360 normalises degrees into [0, 360).
func Wrap360(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

func mapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}
