// Package comms implements the rover side of the base station link: a UDP loop that
// decodes drive and goal packets into the shared drive state and answers with telemetry.
package comms

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"RoverDrive/internal/drive"
	"RoverDrive/internal/model"
	"RoverDrive/internal/parser"
	"RoverDrive/internal/util"
)

// Stats counts link activity.
type Stats struct {
	Received     uint64 `json:"received"`
	Sent         uint64 `json:"sent"`
	DecodeErrors uint64 `json:"decode_errors"`
	NetErrors    uint64 `json:"net_errors"`
}

// Link is the network loop. Receives never block for longer than the poll
// interval and failed I/O is skipped, never retried.
type Link struct {
	conn      *net.UDPConn
	state     *drive.State
	replyPort int
	poll      time.Duration

	// OnGoal, when set, is called for every accepted destination update.
	OnGoal func(model.AutoGoal)

	mu   sync.Mutex
	peer *net.UDPAddr

	received, sent, decodeErrs, netErrs atomic.Uint64
	recvBurst, sendBurst                burst

	buf  []byte
	stop chan struct{}
	wg   sync.WaitGroup
}

// Listen binds the UDP socket packets arrive on.
func Listen(cfg model.CommsConfig, state *drive.State) (*Link, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	poll := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	return &Link{
		conn:      conn,
		state:     state,
		replyPort: cfg.ReplyPort,
		poll:      poll,
		buf:       make([]byte, 512),
		stop:      make(chan struct{}),
		recvBurst: burst{what: "receive"},
		sendBurst: burst{what: "send"},
	}, nil
}

// Addr returns the bound local address.
func (l *Link) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Peer returns the last seen sender, or nil before the first packet.
func (l *Link) Peer() *net.UDPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer
}

// Stats returns a snapshot of the counters.
func (l *Link) Stats() Stats {
	return Stats{
		Received:     l.received.Load(),
		Sent:         l.sent.Load(),
		DecodeErrors: l.decodeErrs.Load(),
		NetErrors:    l.netErrs.Load(),
	}
}

// Poll waits at most wait for one datagram and applies it. It reports whether a
// packet was applied; no data within wait is not an error.
func (l *Link) Poll(wait time.Duration) (bool, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return false, err
	}
	n, from, err := l.conn.ReadFromUDP(l.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false, nil
		}
		l.netErrs.Add(1)
		l.recvBurst.fail(err)
		return false, err
	}
	l.recvBurst.ok()

	p, err := parser.Decode(l.buf[:n])
	if err != nil {
		l.decodeErrs.Add(1)
		util.Warn("[comms] drop %d byte datagram from %s: %v", n, from, err)
		return false, err
	}
	switch p.Type {
	case parser.TypeDrive:
		l.state.SetCommand(p.Drive)
	case parser.TypeGoal:
		l.state.ApplyGoal(p.Goal)
		if l.OnGoal != nil {
			l.OnGoal(p.Goal)
		}
	default:
		l.decodeErrs.Add(1)
		return false, fmt.Errorf("%w: 0x%02x is not accepted by the rover", parser.ErrUnknownPacket, p.Type)
	}
	l.received.Add(1)
	l.learn(from)
	return true, nil
}

func (l *Link) learn(from *net.UDPAddr) {
	peer := *from
	if l.replyPort > 0 {
		peer.Port = l.replyPort
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.peer == nil || !l.peer.IP.Equal(peer.IP) || l.peer.Port != peer.Port {
		util.Info("[comms] base station at %s", &peer)
	}
	l.peer = &peer
}

// SendTelemetry sends the latest telemetry snapshot to the peer. It is a no-op
// until a peer has been seen.
func (l *Link) SendTelemetry() error {
	peer := l.Peer()
	if peer == nil {
		return nil
	}
	b, err := parser.EncodeTelemetry(l.state.Telemetry())
	if err != nil {
		return err
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.poll)); err != nil {
		return err
	}
	if _, err := l.conn.WriteToUDP(b, peer); err != nil {
		l.netErrs.Add(1)
		l.sendBurst.fail(err)
		return err
	}
	l.sendBurst.ok()
	l.sent.Add(1)
	return nil
}

// Start runs the network loop in the background: poll, then answer with telemetry.
func (l *Link) Start() {
	l.wg.Add(1)
	go l.loop()
	util.Info("[comms] listening on %s", l.Addr())
}

func (l *Link) loop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		_, err := l.Poll(l.poll)
		switch {
		case errors.Is(err, net.ErrClosed):
			return
		case err != nil && !errors.Is(err, parser.ErrShortPacket) && !errors.Is(err, parser.ErrUnknownPacket):
			time.Sleep(l.poll)
		}
		_ = l.SendTelemetry()
	}
}

// Stop ends the loop and closes the socket.
func (l *Link) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	_ = l.conn.Close()
	l.wg.Wait()
}

// burst logs the first failure of a run and the recovery that ends it.
type burst struct {
	mu     sync.Mutex
	what   string
	failed int
}

func (b *burst) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed == 0 {
		util.Warn("[comms] %s failed: %v", b.what, err)
	}
	b.failed++
}

func (b *burst) ok() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed > 0 {
		util.Info("[comms] %s recovered after %d failures", b.what, b.failed)
		b.failed = 0
	}
}
