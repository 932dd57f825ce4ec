package device

import (
	"sync"
	"time"
)

// Motor is a single wheel actuator. Variants are picked at construction and share no state.
type Motor interface {
	Set(value float64) error
	Stop() error
	Calibrate() error
}

// MotorWriter is anything that can deliver a setpoint to a motor channel, normally a Board.
type MotorWriter interface {
	WriteMotor(index int, value float64) error
}

// BoardMotor drives one motor channel of the sensor board.
type BoardMotor struct {
	w     MotorWriter
	index int
}

// NewBoardMotor returns the motor on board channel index.
func NewBoardMotor(w MotorWriter, index int) *BoardMotor {
	return &BoardMotor{w: w, index: index}
}

func (m *BoardMotor) Set(value float64) error { return m.w.WriteMotor(m.index, value) }

func (m *BoardMotor) Stop() error { return m.w.WriteMotor(m.index, 0) }

// Calibrate is a no-op; plain H-bridge channels need no calibration.
func (m *BoardMotor) Calibrate() error { return nil }

// TalonPulse is how long each step of the Talon calibration sequence is held.
const TalonPulse = 500 * time.Millisecond

// TalonMotor is a board channel wired to a Talon speed controller, which must learn
// its PWM range: full forward, then neutral, each held for one pulse.
type TalonMotor struct {
	BoardMotor
	pulse time.Duration
}

// NewTalonMotor returns a Talon on board channel index. A zero pulse uses TalonPulse.
func NewTalonMotor(w MotorWriter, index int, pulse time.Duration) *TalonMotor {
	if pulse <= 0 {
		pulse = TalonPulse
	}
	return &TalonMotor{BoardMotor: BoardMotor{w: w, index: index}, pulse: pulse}
}

func (m *TalonMotor) Calibrate() error {
	if err := m.Set(MaxSetpoint); err != nil {
		return err
	}
	time.Sleep(m.pulse)
	if err := m.Set(0); err != nil {
		return err
	}
	time.Sleep(m.pulse)
	return nil
}

// SimMotor keeps its setpoint in memory. The simulated plant reads it back.
type SimMotor struct {
	mu         sync.Mutex
	value      float64
	stopped    bool
	calibrated int
	fail       error
}

// NewSimMotor returns a motor at rest.
func NewSimMotor() *SimMotor { return &SimMotor{} }

func (m *SimMotor) Set(value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.value = value
	m.stopped = false
	return nil
}

func (m *SimMotor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.value = 0
	m.stopped = true
	return nil
}

func (m *SimMotor) Calibrate() error {
	m.mu.Lock()
	m.calibrated++
	m.mu.Unlock()
	return nil
}

// Value returns the last setpoint.
func (m *SimMotor) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// Stopped reports whether Stop was the last call.
func (m *SimMotor) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Fail makes every later Set and Stop return err. A nil err heals the motor.
func (m *SimMotor) Fail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}
