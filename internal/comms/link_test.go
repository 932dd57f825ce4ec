package comms

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoverDrive/internal/drive"
	"RoverDrive/internal/model"
	"RoverDrive/internal/parser"
)

func newLink(t *testing.T, replyPort int) (*Link, *drive.State) {
	t.Helper()
	state := drive.NewState()
	l, err := Listen(model.CommsConfig{Listen: "127.0.0.1:0", ReplyPort: replyPort, PollIntervalMs: 10}, state)
	require.NoError(t, err)
	t.Cleanup(l.Stop)
	return l, state
}

func newBase(t *testing.T) *net.UDPConn {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, base *net.UDPConn, to *net.UDPAddr, b []byte) {
	t.Helper()
	_, err := base.WriteToUDP(b, to)
	require.NoError(t, err)
}

func readTelemetry(t *testing.T, base *net.UDPConn) model.Telemetry {
	t.Helper()
	require.NoError(t, base.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 128)
	n, _, err := base.ReadFromUDP(buf)
	require.NoError(t, err)
	p, err := parser.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, parser.TypeTelemetry, p.Type)
	return p.Telemetry
}

func TestPollWithoutDataIsNotAnError(t *testing.T) {
	l, _ := newLink(t, 0)
	ok, err := l.Poll(10 * time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, l.Peer())
	// nobody to talk to yet
	assert.NoError(t, l.SendTelemetry())
	assert.Zero(t, l.Stats().Sent)
}

func TestDriveCommandAndTelemetryReply(t *testing.T) {
	l, state := newLink(t, 0)
	base := newBase(t)

	b, err := parser.EncodeDrive(model.DriveCommand{Throttle: 50, Turn: 30})
	require.NoError(t, err)
	send(t, base, l.Addr(), b)

	ok, err := l.Poll(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	cmd, running := state.Get()
	require.True(t, running)
	assert.Equal(t, model.DriveCommand{Throttle: 50, Turn: 30}, cmd)
	assert.Equal(t, base.LocalAddr().(*net.UDPAddr).Port, l.Peer().Port)

	state.PublishTelemetry(model.Telemetry{Pot: 0.25, Mag: 180, Lat: 1.5, Lng: -2.5})
	require.NoError(t, l.SendTelemetry())
	tel := readTelemetry(t, base)
	assert.Equal(t, 180.0, tel.Mag)
	assert.Equal(t, -2.5, tel.Lng)
	assert.Equal(t, Stats{Received: 1, Sent: 1}, l.Stats())
}

func TestGoalPacketsExtendRoute(t *testing.T) {
	l, state := newLink(t, 0)
	base := newBase(t)
	var goals []model.AutoGoal
	l.OnGoal = func(g model.AutoGoal) { goals = append(goals, g) }

	for _, g := range []model.AutoGoal{
		{MoreDestinations: true, Destination: model.Destination{Lat: 1, Lng: 2}},
		{MoreDestinations: false, Destination: model.Destination{Lat: 3, Lng: 4}},
	} {
		b, err := parser.EncodeGoal(g)
		require.NoError(t, err)
		send(t, base, l.Addr(), b)
		ok, err := l.Poll(time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, []model.Destination{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}, state.Destinations())
	assert.Len(t, goals, 2)
}

func TestMalformedDatagramsAreSkipped(t *testing.T) {
	l, state := newLink(t, 0)
	base := newBase(t)

	send(t, base, l.Addr(), []byte{parser.TypeDrive, 1})
	ok, err := l.Poll(time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, parser.ErrShortPacket)

	tel, err := parser.EncodeTelemetry(model.Telemetry{})
	require.NoError(t, err)
	send(t, base, l.Addr(), tel)
	ok, err = l.Poll(time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, parser.ErrUnknownPacket)

	assert.Nil(t, l.Peer())
	assert.Equal(t, uint64(2), l.Stats().DecodeErrors)
	cmd, _ := state.Get()
	assert.Equal(t, model.DriveCommand{}, cmd)
}

func TestReplyPortOverridesSourcePort(t *testing.T) {
	listener := newBase(t)
	port := listener.LocalAddr().(*net.UDPAddr).Port
	l, _ := newLink(t, port)
	base := newBase(t)

	b, err := parser.EncodeDrive(model.DriveCommand{Autonomous: true})
	require.NoError(t, err)
	send(t, base, l.Addr(), b)
	_, err = l.Poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, port, l.Peer().Port)

	require.NoError(t, l.SendTelemetry())
	readTelemetry(t, listener)
}

func TestLoopRunsUntilStopped(t *testing.T) {
	l, state := newLink(t, 0)
	base := newBase(t)
	l.Start()

	b, err := parser.EncodeDrive(model.DriveCommand{Throttle: -20, Turn: 5})
	require.NoError(t, err)
	send(t, base, l.Addr(), b)

	require.Eventually(t, func() bool {
		cmd, _ := state.Get()
		return cmd.Throttle == -20
	}, 2*time.Second, 10*time.Millisecond)
	readTelemetry(t, base)

	l.Stop()
	l.Stop()
}
