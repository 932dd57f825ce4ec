package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// ErrReadTimeout is returned by ReadLine when no line arrived within the timeout.
var ErrReadTimeout = errors.New("read timeout")

type lineResult struct {
	line string
	err  error
}

// SerialDevice implements Device over any byte stream, normally a go.bug.st/serial port.
// A single pump goroutine owns the reader, so a timed out ReadLine never leaves a
// second reader racing on the port.
type SerialDevice struct {
	name string
	port io.ReadWriteCloser

	writeMu sync.Mutex
	lines   chan lineResult
	once    sync.Once
	closed  chan struct{}
}

// NewSerialDevice opens a serial port with the given path and baudrate.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return NewStreamDevice(dev, p), nil
}

// NewStreamDevice wraps an already open stream (a pipe in tests, a pty in simulation).
func NewStreamDevice(name string, rwc io.ReadWriteCloser) *SerialDevice {
	s := &SerialDevice{
		name:   name,
		port:   rwc,
		lines:  make(chan lineResult, 16),
		closed: make(chan struct{}),
	}
	go s.pump()
	return s
}

// Name returns the device path the stream was opened from.
func (s *SerialDevice) Name() string { return s.name }

func (s *SerialDevice) pump() {
	r := bufio.NewReader(s.port)
	for {
		line, err := r.ReadString('\n')
		if line != "" || err != nil {
			select {
			case s.lines <- lineResult{line, err}:
			case <-s.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// ReadLine reads a single line from the port, blocking until newline or timeout.
// After the stream ends every call returns the terminating error.
func (s *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	var after <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		after = t.C
	}
	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			close(s.lines)
			return res.line, res.err
		}
		return res.line, nil
	case <-after:
		return "", ErrReadTimeout
	case <-s.closed:
		return "", io.ErrClosedPipe
	}
}

// WriteLine writes a single line followed by '\n'.
func (s *SerialDevice) WriteLine(line string) error {
	select {
	case <-s.closed:
		return io.ErrClosedPipe
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.port.Write(append([]byte(line), '\n'))
	return err
}

// Close closes the underlying port. It is safe to call more than once.
func (s *SerialDevice) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.port.Close()
	})
	return err
}
