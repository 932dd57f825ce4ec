package core

import (
	"errors"
	"sync"
	"time"

	"RoverDrive/internal/device"
	"RoverDrive/internal/drive"
	"RoverDrive/internal/model"
	"RoverDrive/internal/nav"
	"RoverDrive/internal/util"
)

// Sensors are the capabilities the control loop reads each tick. Only Pot and
// Compass are required; a nil Locator means no fix, a nil Obstacle never reports one.
type Sensors struct {
	Pot      device.Potentiometer
	Compass  device.Compass
	Locator  device.Locator
	Encoders device.EncoderReader
	Obstacle device.ObstacleSensor
}

// Journal records mission events. Failures are logged by the caller and never stop the loop.
type Journal interface {
	RecordDestination(d model.Destination, source string) error
	RecordScan(r model.ScanReport) error
	RecordTelemetry(t model.Telemetry) error
}

// Controller is the control loop: it reads the shared drive state and the sensors,
// runs the scan state machine in autonomous mode, mixes the steering correction and
// writes the four wheel setpoints.
type Controller struct {
	ID string

	state        *drive.State
	registry     *device.MotorRegistry
	mixer        *drive.Mixer
	scanner      *nav.Scanner
	cal          nav.Calibration
	sensors      Sensors
	journal      Journal
	period       time.Duration
	arrival      float64
	journalEvery int

	ticks       int
	autonomous  bool
	holding     bool
	holdVersion uint64
	lastFault   string
	faulted     bool
	halted      bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewController wires a control loop from the rover configuration. journal may be nil.
func NewController(cfg *model.Config, state *drive.State, registry *device.MotorRegistry, sensors Sensors, journal Journal) (*Controller, error) {
	cal, err := nav.NewCalibration(cfg.Calibration)
	if err != nil {
		return nil, err
	}
	period := time.Duration(cfg.Rover.ControlPeriodMs) * time.Millisecond
	c := &Controller{
		ID:           cfg.Rover.ID,
		state:        state,
		registry:     registry,
		mixer:        drive.NewMixer(drive.NewCorrector(cfg.PID.Kp, cfg.PID.Ki, cfg.PID.Kd, period)),
		cal:          cal,
		sensors:      sensors,
		journal:      journal,
		period:       period,
		arrival:      cfg.Rover.ArrivalRadius,
		journalEvery: cfg.Rover.JournalEvery,
		stop:         make(chan struct{}),
	}
	var obstacle nav.ObstacleFunc
	if sensors.Obstacle != nil {
		obstacle = sensors.Obstacle.Obstacle
	}
	c.scanner = nav.NewScanner(cal, obstacle, detourSink{c}, nav.ScannerConfig{
		CruiseThrottle: cfg.Rover.CruiseThrottle,
		ScanTurn:       cfg.Rover.ScanTurn,
		DetourDistance: cfg.Rover.DetourDistance,
	})
	return c, nil
}

type detourSink struct{ c *Controller }

func (d detourSink) PushDetour(dest model.Destination) {
	d.c.state.PushDetour(dest)
	util.Info("[control] detour to %.6f,%.6f", dest.Lat, dest.Lng)
	if d.c.journal != nil {
		if err := d.c.journal.RecordDestination(dest, "scan"); err != nil {
			util.Warn("[control] journal detour: %v", err)
		}
	}
}

// Start runs the loop in the background until Stop, or until the drive state is stopped.
func (c *Controller) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Run(c.stop)
	}()
}

// Stop ends a loop started with Start and waits for the motors to be zeroed.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// Wait blocks until a loop started with Start has exited.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Run ticks at the control period until stop is closed or the drive state is stopped.
// Every motor is zeroed on the way out, whatever the exit path.
func (c *Controller) Run(stop <-chan struct{}) {
	defer func() {
		if !c.halted {
			c.stopMotors()
		}
	}()
	util.Info("[control] loop started, period %s", c.period)

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		if !c.Tick() {
			util.Info("[control] drive state stopped")
			return
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one control cycle and reports whether the loop should continue.
// Once the drive state is stopped it zeroes every motor and returns false.
func (c *Controller) Tick() bool {
	cmd, ok := c.state.Get()
	if !ok {
		c.stopMotors()
		return false
	}
	c.ticks++
	c.faulted = false

	tel := model.Telemetry{VehicleID: c.ID, ScanState: nav.Normal.String(), Timestamp: time.Now()}
	r, offset, potFault := c.read(&tel)

	throttle, turn := cmd.Throttle, cmd.Turn
	if cmd.Autonomous {
		throttle, turn = c.steer(r)
		tel.ScanState = c.scanner.State().String()
	} else if c.autonomous {
		c.scanner.Reset()
		c.holding = false
	}
	c.autonomous = cmd.Autonomous

	wheels, _ := c.mixer.Mix(throttle, turn, c.cal.Measurement(offset), potFault)

	// a stop that landed while this tick was computing still wins over actuation
	if c.state.Stopped() {
		c.stopMotors()
		return false
	}
	if err := c.registry.SetAll(wheels); err != nil {
		c.fault(err)
	}
	tel.Wheels = c.registry.Last()
	c.publish(tel)
	if !c.faulted {
		c.lastFault = ""
	}
	return true
}

// read samples every sensor into tel and returns the scanner readings with the
// head offset. potFault is set only when the potentiometer itself is unusable; a
// compass failure invalidates the heading but leaves steering correction running.
func (c *Controller) read(tel *model.Telemetry) (r nav.Readings, offset float64, potFault bool) {
	pot, potErr := c.sensors.Pot.ReadPotentiometer()
	mag, magErr := c.sensors.Compass.ReadCompass()
	r.Pot = pot
	tel.Pot, tel.Mag, tel.Heading = pot, mag, mag

	if potErr == nil {
		offset, potErr = c.cal.Offset(pot)
	}
	potFault = potErr != nil
	switch {
	case potFault:
		offset = 0
		r.HeadingErr = potErr
	case magErr != nil:
		r.HeadingErr = magErr
	default:
		r.Heading = nav.Wrap360(mag + c.cal.Yaw(offset))
		tel.Heading = r.Heading
	}
	if r.HeadingErr != nil {
		c.fault(r.HeadingErr)
	}
	if c.sensors.Locator != nil {
		if pos, err := c.sensors.Locator.Position(); err == nil {
			r.Position, r.HasFix = pos, true
			tel.Lat, tel.Lng = pos.Lat, pos.Lng
		}
	}
	if c.sensors.Encoders != nil {
		if enc, err := c.sensors.Encoders.ReadEncoders(); err == nil {
			tel.Encoders = enc
		}
	}
	return r, offset, potFault
}

// steer produces the autonomous throttle and turn.
func (c *Controller) steer(r nav.Readings) (throttle, turn float64) {
	if c.holding {
		if c.state.RouteVersion() == c.holdVersion {
			return 0, 0
		}
		c.holding = false
		util.Info("[control] route changed, resuming")
	}

	var dest *model.Destination
	if d, ok := c.state.HeadDestination(); ok {
		if r.HasFix && c.arrival > 0 && c.scanner.State() == nav.Normal && nav.Distance(r.Position, d) <= c.arrival {
			c.state.PopDestination()
			util.Info("[control] reached %.6f,%.6f", d.Lat, d.Lng)
			d, ok = c.state.HeadDestination()
		}
		if ok {
			dest = &d
		}
	}

	step := c.scanner.Tick(r, dest)
	if step.Report != nil && c.journal != nil {
		if err := c.journal.RecordScan(*step.Report); err != nil {
			util.Warn("[control] journal scan: %v", err)
		}
	}
	switch {
	case errors.Is(step.Err, nav.ErrUnresolvedScan):
		c.holding = true
		c.holdVersion = c.state.RouteVersion()
		util.Warn("[control] %v, holding until the route changes", step.Err)
		return 0, 0
	case step.Err != nil:
		c.fault(step.Err)
		return 0, 0
	}
	return step.Throttle, step.Turn
}

// Holding reports whether an unresolved scan is holding the rover in place.
func (c *Controller) Holding() bool {
	return c.holding
}

func (c *Controller) publish(t model.Telemetry) {
	c.state.PublishTelemetry(t)
	if c.journal == nil || c.journalEvery <= 0 || c.ticks%c.journalEvery != 0 {
		return
	}
	if err := c.journal.RecordTelemetry(t); err != nil {
		util.Warn("[control] journal telemetry: %v", err)
	}
}

// fault logs err once per run of identical failures.
func (c *Controller) fault(err error) {
	c.faulted = true
	if msg := err.Error(); msg != c.lastFault {
		c.lastFault = msg
		util.Warn("[control] %v", err)
	}
}

func (c *Controller) stopMotors() {
	c.halted = true
	if err := c.registry.StopAll(); err != nil {
		util.Error("[control] stop all motors: %v", err)
		return
	}
	util.Info("[control] all motors stopped")
}
