package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoverDrive/internal/model"
)

func TestDrivePacketLayout(t *testing.T) {
	b, err := EncodeDrive(model.DriveCommand{Autonomous: true, Throttle: 50, Turn: -30})
	require.NoError(t, err)
	require.Len(t, b, DrivePacketSize)
	// type, bool, int16 LE 50, int16 LE -30
	assert.Equal(t, []byte{0x01, 0x01, 0x32, 0x00, 0xe2, 0xff}, b)

	p, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, TypeDrive, p.Type)
	assert.Equal(t, model.DriveCommand{Autonomous: true, Throttle: 50, Turn: -30}, p.Drive)
}

func TestDriveClampsOutOfRange(t *testing.T) {
	b, err := EncodeDrive(model.DriveCommand{Throttle: 400, Turn: -250})
	require.NoError(t, err)
	p, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Drive.Throttle)
	assert.Equal(t, -100.0, p.Drive.Turn)

	// a peer that does not clamp
	raw := []byte{TypeDrive, 0, 0xe8, 0x03, 0x18, 0xfc} // 1000, -1000
	p, err = Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Drive.Throttle)
	assert.Equal(t, -100.0, p.Drive.Turn)
}

func TestGoalAndTelemetryPackets(t *testing.T) {
	b, err := EncodeGoal(model.AutoGoal{MoreDestinations: true, Destination: model.Destination{Lat: 47.25, Lng: -122.5}})
	require.NoError(t, err)
	require.Len(t, b, GoalPacketSize)
	p, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, TypeGoal, p.Type)
	assert.True(t, p.Goal.MoreDestinations)
	assert.Equal(t, 47.25, p.Goal.Destination.Lat)
	assert.Equal(t, -122.5, p.Goal.Destination.Lng)

	b, err = EncodeTelemetry(model.Telemetry{Pot: 0.5, Mag: 90, Encoders: [4]float64{1, 2, 3, 4}, Lat: 10.5, Lng: 20.25})
	require.NoError(t, err)
	require.Len(t, b, TelemetryPacketSize)
	p, err = Decode(b)
	require.NoError(t, err)
	assert.Equal(t, TypeTelemetry, p.Type)
	assert.Equal(t, [4]float64{1, 2, 3, 4}, p.Telemetry.Encoders)
	assert.Equal(t, 90.0, p.Telemetry.Mag)
	assert.Equal(t, 20.25, p.Telemetry.Lng)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrShortPacket)
	_, err = Decode([]byte{TypeDrive, 1, 0})
	assert.ErrorIs(t, err, ErrShortPacket)
	_, err = Decode([]byte{TypeGoal, 1, 0, 0, 0})
	assert.ErrorIs(t, err, ErrShortPacket)
	_, err = Decode([]byte{0x7f, 1, 2, 3, 4, 5, 6})
	assert.ErrorIs(t, err, ErrUnknownPacket)
}

func TestBoardLines(t *testing.T) {
	s, err := ParseBoardStatus("S,0.33055,182.50,1.0,2.0,3.0,4.0\r\n")
	require.NoError(t, err)
	assert.InDelta(t, 0.33055, s.Pot, 1e-9)
	assert.Equal(t, 182.5, s.Mag)
	assert.Equal(t, [4]float64{1, 2, 3, 4}, s.Encoders)

	again, err := ParseBoardStatus(BoardStatusLine(s))
	require.NoError(t, err)
	assert.Equal(t, s, again)

	_, err = ParseBoardStatus("M,1,20")
	assert.Error(t, err)
	_, err = ParseBoardStatus("S,x,1,2,3,4,5")
	assert.EqualError(t, err, "invalid pot")

	idx, val, err := ParseMotorCommand(MotorCommandLine(3, -127.46))
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
	assert.Equal(t, -127.5, val)
}

func TestParseThrottleTurn(t *testing.T) {
	th, tu, err := ParseThrottleTurn("50 -30\n")
	require.NoError(t, err)
	assert.Equal(t, 50.0, th)
	assert.Equal(t, -30.0, tu)

	th, tu, err = ParseThrottleTurn("12.5, 4")
	require.NoError(t, err)
	assert.Equal(t, 12.5, th)
	assert.Equal(t, 4.0, tu)

	_, _, err = ParseThrottleTurn("50")
	assert.Error(t, err)
	_, _, err = ParseThrottleTurn("fast left")
	assert.EqualError(t, err, "invalid throttle")
}

func TestCSVTelemetry(t *testing.T) {
	p := NewCSVParser()
	line, err := p.EncodeTelemetry(model.Telemetry{VehicleID: "R1", Pot: 0.25, Mag: 10, Lat: 1.5, Lng: 2.5, Heading: 12})
	require.NoError(t, err)
	assert.Equal(t, "R1,0.2500,10.00,0.00,0.00,0.00,0.00,1.500000,2.500000,12.00", line)

	tel, err := p.DecodeTelemetry(line)
	require.NoError(t, err)
	assert.Equal(t, "R1", tel.VehicleID)
	assert.Equal(t, 12.0, tel.Heading)

	_, err = p.DecodeTelemetry("R1,1,2")
	assert.Error(t, err)
}

func TestNMEA(t *testing.T) {
	pos, ok, err := ParseNMEASentence("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 48.1173, pos.Lat, 1e-4)
	assert.InDelta(t, 11.5166, pos.Lng, 1e-4)

	pos, ok, err = ParseNMEASentence("$GPGGA,123519,4807.038,S,01131.000,W,1,08,0.9,545.4,M,46.9,M,,*47")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Less(t, pos.Lat, 0.0)
	assert.Less(t, pos.Lng, 0.0)

	_, ok, err = ParseNMEASentence("$GPRMC,123519,V,,,,,,,230394,,*6A")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = ParseNMEASentence("$GPGSV,3,1,11")
	assert.False(t, ok)

	s, dir := ToNMEACoord(-21.0285, true)
	assert.Equal(t, "S", dir)
	back, err := ParseNMEACoord(s, dir)
	require.NoError(t, err)
	assert.InDelta(t, -21.0285, back, 1e-5)
}

func TestByName(t *testing.T) {
	_, ok := ByName("csv")
	assert.True(t, ok)
	_, ok = ByName("json")
	assert.True(t, ok)
	_, ok = ByName("xml")
	assert.False(t, ok)
}
