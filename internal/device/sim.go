package device

import (
	"math"
	"sync"
	"time"

	"RoverDrive/internal/model"
	"RoverDrive/internal/nav"
)

// SimParams tunes the simulated plant.
type SimParams struct {
	HeadGain  float64 // head articulation rate (measurement units/s) per unit of wheel differential
	YawGain   float64 // compass rate (deg/s) per unit of speed at full articulation
	SpeedGain float64 // ground speed (degrees/s) per unit of mean wheel setpoint
}

// DefaultSimParams gives a plant that settles the head in a fraction of a second
// and covers a few metres per second at cruise.
var DefaultSimParams = SimParams{HeadGain: 1, YawGain: 2, SpeedGain: 1e-7}

// simHeadStop is the mechanical stop of the simulated head, just inside the calibrated bounds.
const simHeadStop = 99.0

// SimPlant is an in-memory articulated rover. The four SimMotors drive it; the sensor
// capabilities read it back. Step advances it by a time step.
type SimPlant struct {
	mu      sync.Mutex
	cal     model.CalibrationConfig
	params  SimParams
	motors  [MotorCount]*SimMotor
	arcs    [][2]float64
	head    float64 // articulation, measurement units
	compass float64
	pos     model.Position
	enc     [MotorCount]float64
	potErr  error
	magErr  error
}

// NewSimPlant builds a plant at rest with the head centred.
func NewSimPlant(cfg model.SimulationConfig, cal model.CalibrationConfig, params SimParams) *SimPlant {
	p := &SimPlant{
		cal:     cal,
		params:  params,
		arcs:    cfg.ObstacleArcs,
		compass: nav.Wrap360(cfg.StartHeading),
		pos:     model.Position{Lat: cfg.StartLat, Lng: cfg.StartLng},
	}
	for i := range p.motors {
		p.motors[i] = NewSimMotor()
	}
	return p
}

// Motor returns the simulated motor for wheel index 1..4.
func (p *SimPlant) Motor(index int) *SimMotor {
	return p.motors[index-1]
}

// Step advances the plant by dt using the current motor setpoints.
func (p *SimPlant) Step(dt time.Duration) {
	s := dt.Seconds()
	left := (p.motors[0].Value() + p.motors[2].Value()) / 2
	right := (p.motors[1].Value() + p.motors[3].Value()) / 2
	mean := (left + right) / 2
	diff := (left - right) / 2

	p.mu.Lock()
	defer p.mu.Unlock()
	p.head = math.Max(-simHeadStop, math.Min(simHeadStop, p.head+p.params.HeadGain*diff*s))
	p.compass = nav.Wrap360(p.compass + p.params.YawGain*mean*(p.head/nav.MeasurementRange)*s)
	p.pos = model.Position(nav.Project(p.pos, p.frontHeading(), p.params.SpeedGain*mean*s))
	for i, m := range p.motors {
		p.enc[i] += m.Value() * s
	}
}

func (p *SimPlant) frontHeading() float64 {
	yaw := p.head / nav.MeasurementRange * nav.YawRange
	return nav.Wrap360(p.compass + yaw)
}

// ReadPotentiometer converts the articulation back into a raw reading.
func (p *SimPlant) ReadPotentiometer() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.potErr != nil {
		return 0, p.potErr
	}
	// inverse of the piecewise calibration: the centred head reads exactly the middle
	toLeft, toRight := p.cal.Middle-p.cal.Left, p.cal.Middle-p.cal.Right
	offset := p.head / nav.MeasurementRange * toRight
	if p.head < 0 {
		offset = -p.head / nav.MeasurementRange * toLeft
	}
	return p.cal.Middle - offset, nil
}

// ReadCompass returns the rear body heading.
func (p *SimPlant) ReadCompass() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.magErr != nil {
		return 0, p.magErr
	}
	return p.compass, nil
}

// ReadEncoders returns the integrated wheel setpoints.
func (p *SimPlant) ReadEncoders() ([4]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc, nil
}

// Position returns the true position; the simulated receiver always has a fix.
func (p *SimPlant) Position() (model.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos, nil
}

// Obstacle reports whether the front heading lies inside a configured obstacle arc.
func (p *SimPlant) Obstacle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.frontHeading()
	for _, a := range p.arcs {
		from, to := nav.Wrap360(a[0]), nav.Wrap360(a[1])
		if from <= to && h >= from && h <= to {
			return true
		}
		if from > to && (h >= from || h <= to) {
			return true
		}
	}
	return false
}

// SetArcs replaces the obstacle arcs.
func (p *SimPlant) SetArcs(arcs [][2]float64) {
	p.mu.Lock()
	p.arcs = arcs
	p.mu.Unlock()
}

// SetHead forces the articulation, in [-100, 100].
func (p *SimPlant) SetHead(v float64) {
	p.mu.Lock()
	p.head = v
	p.mu.Unlock()
}

// FailPotentiometer makes ReadPotentiometer return err until called with nil.
func (p *SimPlant) FailPotentiometer(err error) {
	p.mu.Lock()
	p.potErr = err
	p.mu.Unlock()
}

// FailCompass makes ReadCompass return err until called with nil.
func (p *SimPlant) FailCompass(err error) {
	p.mu.Lock()
	p.magErr = err
	p.mu.Unlock()
}

// Run steps the plant in real time until stop is closed.
func (p *SimPlant) Run(stop <-chan struct{}, dt time.Duration) {
	ticker := time.NewTicker(dt)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Step(dt)
		}
	}
}
