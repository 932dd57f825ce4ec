package device

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"RoverDrive/internal/parser"
	"RoverDrive/internal/util"
)

// Board is the serial-connected sensor board. It streams status lines
// (S,<pot>,<mag>,<e1>,<e2>,<e3>,<e4>) and accepts motor commands (M,<index>,<value>).
type Board struct {
	ID  string
	dev Device
	// MaxAge bounds how old the cached status may be before reads fail with
	// ErrStaleReading. Zero keeps the last status forever.
	MaxAge time.Duration

	mu      sync.RWMutex
	status  parser.BoardStatus
	seen    bool
	updated time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewBoard wraps an open device.
func NewBoard(id string, dev Device) *Board {
	return &Board{ID: id, dev: dev, stop: make(chan struct{})}
}

// OpenBoard opens the board's serial port.
func OpenBoard(id, path string, baud int) (*Board, error) {
	dev, err := NewSerialDevice(path, baud)
	if err != nil {
		return nil, fmt.Errorf("open board serial failed: %w", err)
	}
	return NewBoard(id, dev), nil
}

// Start launches the background status reader.
func (b *Board) Start() {
	b.wg.Add(1)
	go b.loop()
}

func (b *Board) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		default:
		}
		line, err := b.dev.ReadLine(200 * time.Millisecond)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "S,") {
			continue
		}
		st, err := parser.ParseBoardStatus(line)
		if err != nil {
			util.Warn("[board %s] skip status %q: %v", b.ID, line, err)
			continue
		}
		b.mu.Lock()
		b.status = st
		b.seen = true
		b.updated = time.Now()
		b.mu.Unlock()
	}
}

// Stop stops the reader and closes the device.
func (b *Board) Stop() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	_ = b.dev.Close()
	b.wg.Wait()
}

func (b *Board) latest() (parser.BoardStatus, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.seen {
		return parser.BoardStatus{}, ErrNoReading
	}
	if age := time.Since(b.updated); b.MaxAge > 0 && age > b.MaxAge {
		return b.status, fmt.Errorf("%w: board %s silent for %s", ErrStaleReading, b.ID, age.Round(time.Millisecond))
	}
	return b.status, nil
}

// ReadPotentiometer returns the last reported sensor head position.
func (b *Board) ReadPotentiometer() (float64, error) {
	st, err := b.latest()
	return st.Pot, err
}

// ReadCompass returns the last reported magnetometer heading.
func (b *Board) ReadCompass() (float64, error) {
	st, err := b.latest()
	return st.Mag, err
}

// ReadEncoders returns the last reported encoder counts.
func (b *Board) ReadEncoders() ([4]float64, error) {
	st, err := b.latest()
	return st.Encoders, err
}

// Updated returns when the last status line was accepted.
func (b *Board) Updated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// WriteMotor sends a motor setpoint to the board.
func (b *Board) WriteMotor(index int, value float64) error {
	return b.dev.WriteLine(parser.MotorCommandLine(index, value))
}

// Simulate writes synthetic status lines until stop is closed. The head sweeps
// between lo and hi and the compass drifts slowly.
func (b *Board) Simulate(stop <-chan struct{}, interval time.Duration, lo, hi float64) error {
	util.Info("[board %s] simulator started", b.ID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var st parser.BoardStatus
	phase := 0.0
	for {
		select {
		case <-stop:
			util.Info("[board %s] simulation stopped", b.ID)
			return nil
		case <-ticker.C:
		}
		phase += 0.05
		st.Pot = lo + (hi-lo)*(0.5+0.5*math.Sin(phase))
		st.Mag = math.Mod(st.Mag+rand.Float64()*2, 360)
		for i := range st.Encoders {
			st.Encoders[i] += 1 + rand.Float64()
		}
		if err := b.dev.WriteLine(parser.BoardStatusLine(st)); err != nil {
			util.Warn("[board %s] simulate write error: %v", b.ID, err)
		}
	}
}
