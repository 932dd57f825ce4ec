// Package drive holds the drive pipeline shared by the network and control loops:
// the lock-guarded drive state, the steering PID corrector and the skid-steer mixer.
package drive

import (
	"math"
	"sync"

	"RoverDrive/internal/model"
)

// State is the only data shared between the network loop and the control loop.
// Every accessor holds the single lock for the whole read or write, so readers
// never observe a partially applied update.
type State struct {
	mu            sync.Mutex
	cmd           model.DriveCommand
	stopped       bool
	route         []model.Destination
	routeComplete bool
	routeVersion  uint64
	telemetry     model.Telemetry
}

// NewState returns a zeroed, running state.
func NewState() *State {
	return &State{}
}

// Set stores a manual throttle/turn pair. Values are clamped to [-100, 100].
func (s *State) Set(throttle, turn float64) {
	s.SetCommand(model.DriveCommand{Throttle: throttle, Turn: turn})
}

// SetCommand stores a complete drive command. It is ignored once stopped.
func (s *State) SetCommand(cmd model.DriveCommand) {
	cmd.Throttle = clamp(cmd.Throttle, 100)
	cmd.Turn = clamp(cmd.Turn, 100)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cmd = cmd
}

// Stop marks the session stopped. It cannot be undone.
func (s *State) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Get returns the latest command, or ok=false once the state is stopped.
func (s *State) Get() (cmd model.DriveCommand, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return model.DriveCommand{}, false
	}
	return s.cmd, true
}

// Stopped reports whether Stop was called.
func (s *State) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ApplyGoal appends a base station destination. A goal arriving after the previous
// route was closed (MoreDestinations=false) starts a new route.
func (s *State) ApplyGoal(g model.AutoGoal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routeComplete {
		s.route = nil
		s.routeComplete = false
	}
	s.route = append(s.route, g.Destination)
	s.routeComplete = !g.MoreDestinations
	s.routeVersion++
}

// AppendDestination adds d at the end of the route.
func (s *State) AppendDestination(d model.Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = append(s.route, d)
	s.routeVersion++
}

// PushDetour inserts d ahead of every other destination.
func (s *State) PushDetour(d model.Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = append([]model.Destination{d}, s.route...)
	s.routeVersion++
}

// HeadDestination returns the destination currently steered toward.
func (s *State) HeadDestination() (model.Destination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.route) == 0 {
		return model.Destination{}, false
	}
	return s.route[0], true
}

// PopDestination removes and returns the head destination after arrival.
func (s *State) PopDestination() (model.Destination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.route) == 0 {
		return model.Destination{}, false
	}
	d := s.route[0]
	s.route = s.route[1:]
	return d, true
}

// Destinations returns a copy of the route in order.
func (s *State) Destinations() []model.Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Destination, len(s.route))
	copy(out, s.route)
	return out
}

// RouteVersion increments whenever a destination is added.
func (s *State) RouteVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routeVersion
}

// PublishTelemetry stores the latest control loop snapshot for the network loop.
func (s *State) PublishTelemetry(t model.Telemetry) {
	s.mu.Lock()
	s.telemetry = t
	s.mu.Unlock()
}

// Telemetry returns the latest published snapshot.
func (s *State) Telemetry() model.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telemetry
}

func clamp(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-limit, math.Min(limit, v))
}
