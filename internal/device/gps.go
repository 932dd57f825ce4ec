package device

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"RoverDrive/internal/model"
	"RoverDrive/internal/parser"
	"RoverDrive/internal/util"
)

// GpsDevice reads NMEA sentences from a serial receiver and caches the last fix.
type GpsDevice struct {
	ID  string
	dev Device
	// MaxAge bounds how old the last fix may be; zero keeps it forever.
	MaxAge time.Duration

	mu      sync.RWMutex
	last    model.Position
	fix     bool
	updated time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewGpsDevice wraps an open device.
func NewGpsDevice(id string, dev Device) *GpsDevice {
	return &GpsDevice{ID: id, dev: dev, stop: make(chan struct{})}
}

// OpenGpsDevice opens the receiver's serial port.
func OpenGpsDevice(id, path string, baud int) (*GpsDevice, error) {
	dev, err := NewSerialDevice(path, baud)
	if err != nil {
		return nil, fmt.Errorf("open gps serial failed: %w", err)
	}
	return NewGpsDevice(id, dev), nil
}

// Start launches the background NMEA reader.
func (g *GpsDevice) Start() {
	g.wg.Add(1)
	go g.loop()
}

func (g *GpsDevice) loop() {
	defer g.wg.Done()
	for {
		select {
		case <-g.stop:
			return
		default:
		}
		line, err := g.dev.ReadLine(500 * time.Millisecond)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}
		pos, ok, err := parser.ParseNMEASentence(strings.TrimSpace(line))
		if err != nil {
			util.Warn("[gps %s] skip invalid sentence: %v", g.ID, err)
			continue
		}
		if !ok {
			continue
		}
		g.mu.Lock()
		g.last = pos
		g.fix = true
		g.updated = time.Now()
		g.mu.Unlock()
	}
}

// Position returns the last fix, or ErrNoReading before the first one.
func (g *GpsDevice) Position() (model.Position, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.fix {
		return model.Position{}, ErrNoReading
	}
	if age := time.Since(g.updated); g.MaxAge > 0 && age > g.MaxAge {
		return g.last, fmt.Errorf("%w: gps %s silent for %s", ErrStaleReading, g.ID, age.Round(time.Millisecond))
	}
	return g.last, nil
}

// Stop stops the reader and closes the device.
func (g *GpsDevice) Stop() {
	select {
	case <-g.stop:
	default:
		close(g.stop)
	}
	_ = g.dev.Close()
	g.wg.Wait()
}

// Simulate writes $GPGGA sentences for the positions produced by next until stop is closed.
func (g *GpsDevice) Simulate(stop <-chan struct{}, interval time.Duration, next func() model.Position) error {
	util.Info("[gps %s] simulator started", g.ID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			util.Info("[gps %s] simulation stopped", g.ID)
			return nil
		case <-ticker.C:
		}
		if err := g.dev.WriteLine(GGASentence(next(), time.Now())); err != nil {
			util.Warn("[gps %s] simulate write error: %v", g.ID, err)
		}
	}
}

// GGASentence formats a fix as a $GPGGA sentence with a valid checksum.
func GGASentence(pos model.Position, at time.Time) string {
	latStr, latDir := parser.ToNMEACoord(pos.Lat, true)
	lngStr, lngDir := parser.ToNMEACoord(pos.Lng, false)
	body := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,08,0.9,10.0,M,0.0,M,,",
		at.UTC().Format("150405.00"), latStr, latDir, lngStr, lngDir)
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}
