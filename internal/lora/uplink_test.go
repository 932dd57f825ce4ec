package lora

import (
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoverDrive/internal/model"
)

var testLoRa = model.LoRaConfig{
	DevAddr: "01000001",
	AppSKey: "101112131415161718191A1B1C1D1E1F",
	NwkSKey: "202122232425262728292A2B2C2D2E2F",
	FPort:   10,
}

type lineRecorder struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (r *lineRecorder) ReadLine(time.Duration) (string, error) { return "", nil }

func (r *lineRecorder) WriteLine(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, s)
	return nil
}

func (r *lineRecorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *lineRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

func TestParseSession(t *testing.T) {
	s, err := ParseSession(testLoRa)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), s.FPort)
	assert.Equal(t, byte(0x01), s.DevAddr[0])

	bad := testLoRa
	bad.AppSKey = "zz"
	_, err = ParseSession(bad)
	assert.Error(t, err)

	bad = testLoRa
	bad.FPort = 0
	_, err = ParseSession(bad)
	assert.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	s, err := ParseSession(testLoRa)
	require.NoError(t, err)
	payload := []byte{0x03, 1, 2, 3, 4, 5}

	frame, err := s.Frame(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.FCnt)
	assert.NotContains(t, string(frame), string(payload[1:]))

	got, fcnt, err := s.Unframe(frame)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, uint32(0), fcnt)

	frame[len(frame)-1] ^= 0xff
	_, _, err = s.Unframe(frame)
	assert.ErrorIs(t, err, ErrInvalidMIC)
}

func TestUplinkSendsTelemetryLines(t *testing.T) {
	s, err := ParseSession(testLoRa)
	require.NoError(t, err)
	rec := &lineRecorder{}
	tel := model.Telemetry{Pot: 0.25, Mag: 42, Lat: 21.5, Lng: 105.75}
	u := NewUplink(rec, s, func() model.Telemetry { return tel }, 10*time.Millisecond)

	require.NoError(t, u.Send())
	require.Len(t, rec.lines, 1)
	_, err = hex.DecodeString(rec.lines[0])
	require.NoError(t, err)

	got, fcnt, err := DecodeLine(s, rec.lines[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), fcnt)
	assert.Equal(t, 42.0, got.Mag)
	assert.Equal(t, 105.75, got.Lng)

	u.Start()
	require.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, 5*time.Millisecond)
	u.Stop()
	u.Stop()
	assert.True(t, rec.closed)
	assert.GreaterOrEqual(t, u.FCnt(), uint32(3))
}

func TestStopClosesRadioWithoutStart(t *testing.T) {
	s, err := ParseSession(testLoRa)
	require.NoError(t, err)
	rec := &lineRecorder{}
	u := NewUplink(rec, s, func() model.Telemetry { return model.Telemetry{} }, time.Second)
	u.Stop()
	assert.True(t, rec.closed)
	assert.Zero(t, rec.count())
}
