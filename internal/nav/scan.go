package nav

import (
	"errors"
	"fmt"
	"time"

	"RoverDrive/internal/model"
)

// ErrUnresolvedScan is returned when every heading in a sweep was obstructed.
var ErrUnresolvedScan = errors.New("no clear heading found")

// ScanState is the autonomous drive mode.
type ScanState int

const (
	Normal ScanState = iota
	ScanLeft
	ScanRight
)

func (s ScanState) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case ScanLeft:
		return "SCAN_LEFT"
	case ScanRight:
		return "SCAN_RIGHT"
	default:
		return fmt.Sprintf("ScanState(%d)", int(s))
	}
}

// ObstacleFunc reports whether something is within range ahead of the sensor head.
type ObstacleFunc func() bool

// NoObstacle never reports an obstruction.
func NoObstacle() bool { return false }

// DetourSink receives the destination chosen by a completed sweep.
type DetourSink interface {
	PushDetour(d model.Destination)
}

// Readings are the sensor values for one control tick.
type Readings struct {
	Pot        float64 // raw potentiometer reading
	Heading    float64 // estimated body heading, valid when HeadingErr is nil
	HeadingErr error
	Position   model.Position
	HasFix     bool
}

// Step is the scanner output for one tick.
type Step struct {
	Throttle float64
	Turn     float64
	State    ScanState         // state after the tick
	Report   *model.ScanReport // set on the tick a sweep completes
	Err      error             // ErrUnresolvedScan, ErrNoDestination, ErrNoFix or a sensor fault
}

// Scanner is the NORMAL / SCAN_LEFT / SCAN_RIGHT controller. It is driven once
// per control tick and never blocks.
type Scanner struct {
	cal            Calibration
	obstacle       ObstacleFunc
	sink           DetourSink
	cruise         float64
	scanTurn       float64
	detourDistance float64

	state   ScanState
	samples []model.HeadingSample
}

// ScannerConfig holds the scanner tuning.
type ScannerConfig struct {
	CruiseThrottle float64
	ScanTurn       float64
	DetourDistance float64
}

// NewScanner builds a scanner in NORMAL. A nil obstacle func never reports obstructions.
func NewScanner(cal Calibration, obstacle ObstacleFunc, sink DetourSink, cfg ScannerConfig) *Scanner {
	if obstacle == nil {
		obstacle = NoObstacle
	}
	return &Scanner{
		cal:            cal,
		obstacle:       obstacle,
		sink:           sink,
		cruise:         cfg.CruiseThrottle,
		scanTurn:       cfg.ScanTurn,
		detourDistance: cfg.DetourDistance,
	}
}

// State returns the current state.
func (s *Scanner) State() ScanState { return s.state }

// Reset abandons any sweep in progress.
func (s *Scanner) Reset() {
	s.state = Normal
	s.samples = nil
}

// Tick advances the state machine. dest is the head of the route, nil when empty.
func (s *Scanner) Tick(r Readings, dest *model.Destination) Step {
	if s.state == Normal {
		if !s.obstacle() {
			return s.cruiseStep(r, dest)
		}
		s.state = ScanLeft
		s.samples = nil
	}
	if s.state == ScanLeft {
		if !s.cal.AtLeft(r.Pot) {
			return Step{Turn: -s.scanTurn, State: ScanLeft}
		}
		s.state = ScanRight
	}
	if s.cal.AtRight(r.Pot) {
		return s.complete(r)
	}
	if r.HeadingErr == nil {
		s.samples = append(s.samples, model.HeadingSample{Heading: r.Heading, Obstacle: s.obstacle()})
	}
	return Step{Turn: s.scanTurn, State: ScanRight}
}

func (s *Scanner) cruiseStep(r Readings, dest *model.Destination) Step {
	switch {
	case dest == nil:
		return Step{State: Normal, Err: ErrNoDestination}
	case !r.HasFix:
		return Step{State: Normal, Err: ErrNoFix}
	case r.HeadingErr != nil:
		return Step{State: Normal, Err: r.HeadingErr}
	}
	want := DesiredHeading(r.Position, *dest)
	return Step{Throttle: s.cruise, Turn: DesiredTurn(r.Heading, want), State: Normal}
}

func (s *Scanner) complete(r Readings) Step {
	samples := s.samples
	s.Reset()

	report := &model.ScanReport{Samples: samples, At: time.Now()}
	idx, err := SelectHeading(samples)
	if err != nil {
		return Step{State: Normal, Report: report, Err: err}
	}
	report.Resolved = true
	report.Heading = samples[idx].Heading
	if r.HasFix && s.sink != nil {
		d := Project(r.Position, report.Heading, s.detourDistance)
		s.sink.PushDetour(d)
		report.Detour = &d
	}
	return Step{State: Normal, Report: report}
}

// SelectHeading returns the index of the unobstructed sample nearest the middle of
// the sweep, checking the middle first, then alternately one step right and one
// step left of it.
func SelectHeading(samples []model.HeadingSample) (int, error) {
	n := len(samples)
	if n == 0 {
		return 0, fmt.Errorf("%w: empty sweep", ErrUnresolvedScan)
	}
	mid := n / 2
	if !samples[mid].Obstacle {
		return mid, nil
	}
	for d := 1; d <= n; d++ {
		if i := mid + d; i < n && !samples[i].Obstacle {
			return i, nil
		}
		if i := mid - d; i >= 0 && !samples[i].Obstacle {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %d samples obstructed", ErrUnresolvedScan, n)
}
