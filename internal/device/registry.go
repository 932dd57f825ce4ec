package device

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"RoverDrive/internal/util"
)

// MaxSetpoint is the actuator magnitude limit.
const MaxSetpoint = 255.0

var (
	// ErrInvalidMotor is returned for a wheel index outside 1..4. It indicates a programming error.
	ErrInvalidMotor = errors.New("invalid motor index")
	// ErrMotorUnavailable is returned when no motor is registered for the index.
	ErrMotorUnavailable = errors.New("motor unavailable")
)

// MotorCount is the number of wheels: 1 back-left, 2 back-right, 3 front-left, 4 front-right.
const MotorCount = 4

// MotorRegistry owns the rover's motors. It is created by the controller and passed
// explicitly; nothing about it is global.
type MotorRegistry struct {
	mu       sync.Mutex
	motors   [MotorCount]Motor
	inverted [MotorCount]bool
	last     [MotorCount]float64
	cached   [MotorCount]bool
}

// NewMotorRegistry returns an empty registry.
func NewMotorRegistry() *MotorRegistry {
	return &MotorRegistry{}
}

// Register binds m to wheel index (1..4). Inverted motors receive negated setpoints.
func (r *MotorRegistry) Register(index int, m Motor, inverted bool) error {
	if index < 1 || index > MotorCount {
		return fmt.Errorf("%w: %d", ErrInvalidMotor, index)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.motors[index-1] = m
	r.inverted[index-1] = inverted
	r.cached[index-1] = false
	return nil
}

// Set writes a setpoint clamped to [-255, 255]. Unchanged values are not rewritten.
func (r *MotorRegistry) Set(index int, value float64) error {
	if index < 1 || index > MotorCount {
		return fmt.Errorf("%w: %d", ErrInvalidMotor, index)
	}
	if math.IsNaN(value) {
		value = 0
	}
	value = math.Max(-MaxSetpoint, math.Min(MaxSetpoint, value))

	r.mu.Lock()
	defer r.mu.Unlock()
	i := index - 1
	m := r.motors[i]
	if m == nil {
		return fmt.Errorf("%w: %d", ErrMotorUnavailable, index)
	}
	if r.cached[i] && r.last[i] == value {
		return nil
	}
	out := value
	if r.inverted[i] {
		out = -out
	}
	if err := m.Set(out); err != nil {
		r.cached[i] = false
		return fmt.Errorf("motor %d: %w", index, err)
	}
	r.last[i] = value
	r.cached[i] = true
	return nil
}

// SetAll writes all four setpoints, continuing past failures.
func (r *MotorRegistry) SetAll(values [MotorCount]float64) error {
	var errs []error
	for i, v := range values {
		if err := r.Set(i+1, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every registered motor. A failing motor is logged and the rest are
// still stopped; the failures are returned joined.
func (r *MotorRegistry) StopAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for i, m := range r.motors {
		if m == nil {
			continue
		}
		r.cached[i] = false
		if err := m.Stop(); err != nil {
			util.Error("[motors] stop motor %d failed: %v", i+1, err)
			errs = append(errs, fmt.Errorf("motor %d: %w", i+1, err))
			continue
		}
		r.last[i] = 0
		r.cached[i] = true
	}
	return errors.Join(errs...)
}

// CalibrateAll runs each motor's calibration in index order.
func (r *MotorRegistry) CalibrateAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for i, m := range r.motors {
		if m == nil {
			continue
		}
		r.cached[i] = false
		if err := m.Calibrate(); err != nil {
			errs = append(errs, fmt.Errorf("motor %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

// Last returns the most recent setpoints written, before inversion.
func (r *MotorRegistry) Last() [MotorCount]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
