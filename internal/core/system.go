// Package core contains the runtime orchestration of the rover.
// It defines the Controller (control loop) and the System that builds every
// component from the configuration and manages their lifecycle.
package core

import (
	"fmt"
	"sync"
	"time"

	"RoverDrive/internal/comms"
	"RoverDrive/internal/device"
	"RoverDrive/internal/drive"
	"RoverDrive/internal/lora"
	"RoverDrive/internal/model"
	"RoverDrive/internal/monitor"
	"RoverDrive/internal/store"
	"RoverDrive/internal/util"
)

// reportInterval is how often telemetry is pushed to dashboards and MQTT.
const reportInterval = 250 * time.Millisecond

// System manages lifecycle of the rover components (control loop, link, monitor,
// journal, uplink and devices). It is built from a loaded configuration.
type System struct {
	cfg        *model.Config
	State      *drive.State
	Controller *Controller
	Link       *comms.Link
	Hub        *monitor.Hub
	Journal    *store.Journal
	Uplink     *lora.Uplink
	Plant      *device.SimPlant

	board     *device.Board
	gps       *device.GpsDevice
	registry  *device.MotorRegistry
	publisher *monitor.Publisher

	stop      chan struct{}
	wg        sync.WaitGroup
	started   bool
	released  bool
	startLock sync.Mutex
}

// NewSystem opens the devices and sockets described by cfg and wires them together.
// On failure every resource opened so far is released.
func NewSystem(cfg *model.Config) (_ *System, err error) {
	s := &System{
		cfg:      cfg,
		State:    drive.NewState(),
		registry: device.NewMotorRegistry(),
		stop:     make(chan struct{}),
	}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	var journal Journal
	if cfg.Journal.Path != "" {
		if s.Journal, err = store.Open(cfg.Journal.Path); err != nil {
			return nil, err
		}
		journal = s.Journal
	}

	sensors, err := s.openSensors()
	if err != nil {
		return nil, err
	}
	if err = s.registerMotors(); err != nil {
		return nil, err
	}
	if s.Controller, err = NewController(cfg, s.State, s.registry, sensors, journal); err != nil {
		return nil, err
	}

	if s.Link, err = comms.Listen(cfg.Comms, s.State); err != nil {
		return nil, err
	}
	s.Link.OnGoal = s.recordGoal

	if cfg.Monitor.Addr != "" {
		var scans monitor.ScanSource
		if s.Journal != nil {
			scans = s.Journal
		}
		s.Hub = monitor.NewHub(cfg.Monitor.Addr, s.status, scans, s.State)
		s.Hub.OnGoal = s.recordGoal
	}

	if cfg.LoRa.Device != "" {
		session, err := lora.ParseSession(cfg.LoRa)
		if err != nil {
			return nil, err
		}
		radio, err := device.NewSerialDevice(cfg.LoRa.Device, cfg.LoRa.Baud)
		if err != nil {
			return nil, fmt.Errorf("lora radio: %w", err)
		}
		s.Uplink = lora.NewUplink(radio, session, s.State.Telemetry, time.Duration(cfg.LoRa.IntervalMs)*time.Millisecond)
	}
	return s, nil
}

// recordGoal logs and journals a destination from the base station or a dashboard.
func (s *System) recordGoal(g model.AutoGoal) {
	util.Info("[system] destination %.6f,%.6f (more=%t)", g.Destination.Lat, g.Destination.Lng, g.MoreDestinations)
	if s.Journal == nil {
		return
	}
	if err := s.Journal.RecordDestination(g.Destination, "base"); err != nil {
		util.Warn("[journal] record destination: %v", err)
	}
}

// openSensors builds the simulated plant, or the sensor board and GPS receiver.
func (s *System) openSensors() (Sensors, error) {
	if s.cfg.Simulation.Enabled {
		p := device.NewSimPlant(s.cfg.Simulation, s.cfg.Calibration, device.DefaultSimParams)
		s.Plant = p
		return Sensors{Pot: p, Compass: p, Locator: p, Encoders: p, Obstacle: p}, nil
	}
	if s.cfg.Board.Device == "" {
		return Sensors{}, fmt.Errorf("board.device is required unless simulation is enabled")
	}
	board, err := device.OpenBoard(s.cfg.Rover.ID, s.cfg.Board.Device, s.cfg.Board.Baud)
	if err != nil {
		return Sensors{}, err
	}
	board.MaxAge = time.Duration(s.cfg.Board.MaxAgeMs) * time.Millisecond
	s.board = board
	sensors := Sensors{Pot: board, Compass: board, Encoders: board}
	if s.cfg.GPS.Device != "" {
		gps, err := device.OpenGpsDevice(s.cfg.Rover.ID, s.cfg.GPS.Device, s.cfg.GPS.Baud)
		if err != nil {
			return Sensors{}, err
		}
		gps.MaxAge = time.Duration(s.cfg.GPS.MaxAgeMs) * time.Millisecond
		s.gps = gps
		sensors.Locator = gps
	}
	return sensors, nil
}

// registerMotors selects a motor variant per configured wheel.
func (s *System) registerMotors() error {
	for _, mc := range s.cfg.Motors {
		var m device.Motor
		switch mc.Kind {
		case "sim":
			if s.Plant == nil {
				return fmt.Errorf("motor %d: sim motors need simulation.enabled", mc.Index)
			}
			m = s.Plant.Motor(mc.Index)
		case "board", "talon":
			if s.board == nil {
				return fmt.Errorf("motor %d: %s motors need the sensor board", mc.Index, mc.Kind)
			}
			if mc.Kind == "talon" {
				m = device.NewTalonMotor(s.board, mc.Index, device.TalonPulse)
			} else {
				m = device.NewBoardMotor(s.board, mc.Index)
			}
		default:
			return fmt.Errorf("motor %d: unknown kind %q", mc.Index, mc.Kind)
		}
		if err := s.registry.Register(mc.Index, m, mc.Inverted); err != nil {
			return err
		}
	}
	return nil
}

func (s *System) status() monitor.Status {
	st := monitor.Status{
		VehicleID: s.cfg.Rover.ID,
		Telemetry: s.State.Telemetry(),
		Route:     s.State.Destinations(),
		Stopped:   s.State.Stopped(),
	}
	if s.Link != nil {
		stats := s.Link.Stats()
		st.Link = &stats
	}
	return st
}

// StartAll starts the devices, the control loop, the network loop and the reporters.
func (s *System) StartAll() error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}

	if s.Plant != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Plant.Run(s.stop, s.Controller.period)
		}()
	}
	if s.board != nil {
		s.board.Start()
	}
	if s.gps != nil {
		s.gps.Start()
	}
	if err := s.registry.CalibrateAll(); err != nil {
		util.Error("[system] motor calibration: %v", err)
	}

	s.Controller.Start()
	s.Link.Start()

	if s.Hub != nil {
		go func() {
			if err := s.Hub.Start(); err != nil {
				util.Error("[monitor] %v", err)
			}
		}()
	}
	if s.cfg.Monitor.MQTTBroker != "" {
		p, err := monitor.ConnectPublisher(s.cfg.Monitor.MQTTBroker, s.cfg.Rover.ID, s.cfg.Monitor.MQTTTopic)
		if err != nil {
			util.Error("[mqtt] %v", err)
		} else {
			s.publisher = p
		}
	}
	if s.Hub != nil || s.publisher != nil {
		s.wg.Add(1)
		go s.report()
	}
	if s.Uplink != nil {
		s.Uplink.Start()
	}
	s.started = true
	util.Info("[system] rover %s started", s.cfg.Rover.ID)
	return nil
}

// report pushes the latest telemetry to websocket clients and the MQTT broker.
func (s *System) report() {
	defer s.wg.Done()
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	failing := false
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		t := s.State.Telemetry()
		if s.Hub != nil {
			s.Hub.Broadcast(t)
		}
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.Publish(t); err != nil {
			if !failing {
				util.Warn("[mqtt] publish: %v", err)
			}
			failing = true
			continue
		}
		failing = false
	}
}

// Done is closed once the control loop has exited and every motor was zeroed.
func (s *System) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.Controller.Wait()
		close(done)
	}()
	return done
}

// StopAll stops the drive state, which zeroes every motor, then shuts every
// component down. The drive state cannot be restarted afterwards.
func (s *System) StopAll() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		s.release()
		return
	}
	s.State.Stop()
	s.Controller.Stop()
	s.Link.Stop()
	if s.Uplink != nil {
		s.Uplink.Stop()
	}
	if s.Hub != nil {
		s.Hub.Stop()
	}
	close(s.stop)
	s.wg.Wait()
	if s.publisher != nil {
		s.publisher.Close()
	}
	s.release()
	s.started = false
	util.Info("[system] rover %s stopped", s.cfg.Rover.ID)
}

// release closes devices and the journal. It runs once.
func (s *System) release() {
	if s.released {
		return
	}
	s.released = true
	if s.board != nil {
		s.board.Stop()
	}
	if s.gps != nil {
		s.gps.Stop()
	}
	if !s.started {
		if s.Link != nil {
			s.Link.Stop()
		}
		if s.Uplink != nil {
			s.Uplink.Stop()
		}
	}
	if s.Journal != nil {
		_ = s.Journal.Close()
	}
}
