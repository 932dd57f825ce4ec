package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"RoverDrive/internal/model"
)

// Packet type discriminators. Every datagram starts with one of these bytes.
//
//	drive     (base -> rover): type u8, autonomous bool, throttle i16, turn i16          = 6 bytes
//	goal      (base -> rover): type u8, more bool, lat f32, lng f32                       = 10 bytes
//	telemetry (rover -> base): type u8, pot f32, mag f32, enc1..enc4 f32, lat f32, lng f32 = 33 bytes
const (
	TypeDrive     byte = 0x01
	TypeGoal      byte = 0x02
	TypeTelemetry byte = 0x03
)

const (
	DrivePacketSize     = 6
	GoalPacketSize      = 10
	TelemetryPacketSize = 33
)

var (
	// ErrShortPacket is returned when a datagram is smaller than its type requires.
	ErrShortPacket = errors.New("short packet")
	// ErrUnknownPacket is returned for an unrecognised discriminator.
	ErrUnknownPacket = errors.New("unknown packet type")
)

type drivePacket struct {
	Type       uint8
	Autonomous bool
	Throttle   int16
	Turn       int16
}

type goalPacket struct {
	Type uint8
	More bool
	Lat  float32
	Lng  float32
}

type telemetryPacket struct {
	Type     uint8
	Pot      float32
	Mag      float32
	Encoders [4]float32
	Lat      float32
	Lng      float32
}

// Packet is a decoded datagram. Only the field matching Type is meaningful.
type Packet struct {
	Type      byte
	Drive     model.DriveCommand
	Goal      model.AutoGoal
	Telemetry model.Telemetry
}

// EncodeDrive packs a drive command. Throttle and turn are rounded and clamped to [-100, 100].
func EncodeDrive(cmd model.DriveCommand) ([]byte, error) {
	return pack(drivePacket{
		Type:       TypeDrive,
		Autonomous: cmd.Autonomous,
		Throttle:   int16(math.Round(clampCommand(cmd.Throttle))),
		Turn:       int16(math.Round(clampCommand(cmd.Turn))),
	})
}

// EncodeGoal packs a destination update.
func EncodeGoal(g model.AutoGoal) ([]byte, error) {
	return pack(goalPacket{
		Type: TypeGoal,
		More: g.MoreDestinations,
		Lat:  float32(g.Destination.Lat),
		Lng:  float32(g.Destination.Lng),
	})
}

// EncodeTelemetry packs a telemetry reply.
func EncodeTelemetry(t model.Telemetry) ([]byte, error) {
	p := telemetryPacket{
		Type: TypeTelemetry,
		Pot:  float32(t.Pot),
		Mag:  float32(t.Mag),
		Lat:  float32(t.Lat),
		Lng:  float32(t.Lng),
	}
	for i, e := range t.Encoders {
		p.Encoders[i] = float32(e)
	}
	return pack(p)
}

// Decode unpacks a datagram according to its leading discriminator.
// Trailing bytes beyond the packet size are ignored.
func Decode(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, ErrShortPacket
	}
	r := bytes.NewReader(b)
	switch b[0] {
	case TypeDrive:
		if len(b) < DrivePacketSize {
			return Packet{}, fmt.Errorf("%w: drive needs %d bytes, got %d", ErrShortPacket, DrivePacketSize, len(b))
		}
		var p drivePacket
		if err := binary.Read(r, binary.LittleEndian, &p); err != nil {
			return Packet{}, err
		}
		return Packet{Type: TypeDrive, Drive: model.DriveCommand{
			Autonomous: p.Autonomous,
			Throttle:   clampCommand(float64(p.Throttle)),
			Turn:       clampCommand(float64(p.Turn)),
		}}, nil
	case TypeGoal:
		if len(b) < GoalPacketSize {
			return Packet{}, fmt.Errorf("%w: goal needs %d bytes, got %d", ErrShortPacket, GoalPacketSize, len(b))
		}
		var p goalPacket
		if err := binary.Read(r, binary.LittleEndian, &p); err != nil {
			return Packet{}, err
		}
		return Packet{Type: TypeGoal, Goal: model.AutoGoal{
			MoreDestinations: p.More,
			Destination:      model.Destination{Lat: float64(p.Lat), Lng: float64(p.Lng)},
		}}, nil
	case TypeTelemetry:
		if len(b) < TelemetryPacketSize {
			return Packet{}, fmt.Errorf("%w: telemetry needs %d bytes, got %d", ErrShortPacket, TelemetryPacketSize, len(b))
		}
		var p telemetryPacket
		if err := binary.Read(r, binary.LittleEndian, &p); err != nil {
			return Packet{}, err
		}
		t := model.Telemetry{
			Pot: float64(p.Pot),
			Mag: float64(p.Mag),
			Lat: float64(p.Lat),
			Lng: float64(p.Lng),
		}
		for i, e := range p.Encoders {
			t.Encoders[i] = float64(e)
		}
		return Packet{Type: TypeTelemetry, Telemetry: t}, nil
	}
	return Packet{}, fmt.Errorf("%w: 0x%02x", ErrUnknownPacket, b[0])
}

func pack(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(binary.Size(v))
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampCommand(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-100, math.Min(100, v))
}
