package drive

import "math"

// ScaleLimit is the actuator magnitude limit that Scale approaches but never reaches.
const ScaleLimit = 255.0

// Wheels holds setpoints for motors 1..4 at indices 0..3.
// Motor layout: 1 back-left, 2 back-right, 3 front-left, 4 front-right.
type Wheels [4]float64

// Left returns the left side setpoint.
func (w Wheels) Left() float64 { return w[0] }

// Right returns the right side setpoint.
func (w Wheels) Right() float64 { return w[1] }

// Scale maps any command onto (-255, 255): atan(v/40) * 510/pi.
// It is odd, strictly increasing and Scale(0) == 0.
func Scale(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	out := math.Atan(v/40) * (2 * ScaleLimit / math.Pi)
	// atan rounds to exactly pi/2 for very large inputs
	if lim := math.Nextafter(ScaleLimit, 0); math.Abs(out) > lim {
		out = math.Copysign(lim, out)
	}
	return out
}

// MixRaw converts throttle and an already corrected turn into skid-steer setpoints.
func MixRaw(throttle, turn float64) Wheels {
	left := Scale(throttle + turn)
	right := Scale(throttle - turn)
	return Wheels{left, right, left, right}
}

// Mixer folds the steering correction into the skid-steer mix.
type Mixer struct {
	pid *Corrector
}

// NewMixer returns a mixer using pid for steering correction.
func NewMixer(pid *Corrector) *Mixer {
	return &Mixer{pid: pid}
}

// Mix returns wheel setpoints. When the potentiometer is faulted the corrector is
// reset and the raw turn is mixed; otherwise the turn becomes the PID target and the
// scaled potentiometer offset is the measurement.
func (m *Mixer) Mix(throttle, turn, measurement float64, potFault bool) (Wheels, float64) {
	if potFault {
		m.pid.Reset()
		return MixRaw(throttle, turn), turn
	}
	m.pid.SetTarget(turn)
	corrected := m.pid.Tick(measurement)
	return MixRaw(throttle, corrected), corrected
}

// Corrector returns the mixer's steering corrector.
func (m *Mixer) Corrector() *Corrector {
	return m.pid
}
