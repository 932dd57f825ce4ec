package drive

import (
	"math"
	"time"

	"github.com/felixge/pidctrl"
)

// TargetLimit bounds PID targets and outputs to the turn command range.
const TargetLimit = 100.0

// Corrector nulls the steering potentiometer offset against a commanded turn.
// It runs with a fixed per-tick time step. The integral term is clamped to the
// output limits by pidctrl, so sustained error cannot wind it up.
type Corrector struct {
	kp, ki, kd float64
	step       time.Duration
	pid        *pidctrl.PIDController
}

// NewCorrector builds a corrector with target 0.
func NewCorrector(kp, ki, kd float64, step time.Duration) *Corrector {
	c := &Corrector{kp: kp, ki: ki, kd: kd, step: step}
	c.Reset()
	return c
}

// SetTarget sets the turn target. Values outside [-100, 100] reset the target to 0.
func (c *Corrector) SetTarget(v float64) {
	if math.IsNaN(v) || v < -TargetLimit || v > TargetLimit {
		v = 0
	}
	if c.pid.Get() != v {
		c.pid.Set(v)
	}
}

// Target returns the current target.
func (c *Corrector) Target() float64 {
	return c.pid.Get()
}

// Tick advances the controller one step and returns the corrected turn.
func (c *Corrector) Tick(measurement float64) float64 {
	return c.pid.UpdateDuration(measurement, c.step)
}

// Reset discards accumulated error and sets the target back to 0.
func (c *Corrector) Reset() {
	c.pid = pidctrl.NewPIDController(c.kp, c.ki, c.kd).
		SetOutputLimits(-TargetLimit, TargetLimit).
		Set(0)
}
