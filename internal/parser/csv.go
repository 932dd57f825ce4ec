// Package parser implements the CSV codecs for telemetry and the sensor board serial lines.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"RoverDrive/internal/model"
)

// BoardStatus is one status line reported by the sensor board.
type BoardStatus struct {
	Pot      float64
	Mag      float64
	Encoders [4]float64
}

// CSVParser implements Parser interface using CSV format.
// Example telemetry CSV: VEHICLE_ID,POT,MAG,E1,E2,E3,E4,LAT,LNG,HEADING
type CSVParser struct{}

// NewCSVParser creates a new CSV parser instance.
func NewCSVParser() *CSVParser { return &CSVParser{} }

// EncodeTelemetry converts Telemetry into CSV string.
func (p *CSVParser) EncodeTelemetry(t model.Telemetry) (string, error) {
	line := fmt.Sprintf("%s,%.4f,%.2f,%.2f,%.2f,%.2f,%.2f,%.6f,%.6f,%.2f",
		t.VehicleID, t.Pot, t.Mag, t.Encoders[0], t.Encoders[1], t.Encoders[2], t.Encoders[3], t.Lat, t.Lng, t.Heading)
	return line, nil
}

// DecodeTelemetry parses a CSV telemetry line into Telemetry.
func (p *CSVParser) DecodeTelemetry(line string) (model.Telemetry, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 10 {
		return model.Telemetry{}, fmt.Errorf("expected 10 fields, got %d", len(fields))
	}
	vals, err := parseFloats(fields[1:], []string{"pot", "mag", "e1", "e2", "e3", "e4", "lat", "lng", "heading"})
	if err != nil {
		return model.Telemetry{}, err
	}
	return model.Telemetry{
		VehicleID: fields[0],
		Pot:       vals[0],
		Mag:       vals[1],
		Encoders:  [4]float64{vals[2], vals[3], vals[4], vals[5]},
		Lat:       vals[6],
		Lng:       vals[7],
		Heading:   vals[8],
	}, nil
}

// ParseBoardStatus parses a board status line: S,POT,MAG,E1,E2,E3,E4.
func ParseBoardStatus(line string) (BoardStatus, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 7 || fields[0] != "S" {
		return BoardStatus{}, fmt.Errorf("not a status line: %q", line)
	}
	vals, err := parseFloats(fields[1:], []string{"pot", "mag", "e1", "e2", "e3", "e4"})
	if err != nil {
		return BoardStatus{}, err
	}
	return BoardStatus{
		Pot:      vals[0],
		Mag:      vals[1],
		Encoders: [4]float64{vals[2], vals[3], vals[4], vals[5]},
	}, nil
}

// BoardStatusLine formats a status line as the board sends it.
func BoardStatusLine(s BoardStatus) string {
	return fmt.Sprintf("S,%.5f,%.2f,%.1f,%.1f,%.1f,%.1f",
		s.Pot, s.Mag, s.Encoders[0], s.Encoders[1], s.Encoders[2], s.Encoders[3])
}

// MotorCommandLine formats a motor setpoint command for the board.
func MotorCommandLine(index int, value float64) string {
	return fmt.Sprintf("M,%d,%.1f", index, value)
}

// ParseMotorCommand parses M,INDEX,VALUE.
func ParseMotorCommand(line string) (int, float64, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 || fields[0] != "M" {
		return 0, 0, fmt.Errorf("not a motor command: %q", line)
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, errors.New("invalid motor index")
	}
	val, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, 0, errors.New("invalid motor value")
	}
	return idx, val, nil
}

// ParseThrottleTurn parses a manual drive line "THROTTLE TURN". Commas may separate the values.
func ParseThrottleTurn(line string) (throttle, turn float64, err error) {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected throttle and turn, got %q", strings.TrimSpace(line))
	}
	vals, err := parseFloats(fields, []string{"throttle", "turn"})
	if err != nil {
		return 0, 0, err
	}
	return vals[0], vals[1], nil
}

func parseFloats(fields []string, names []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s", names[i])
		}
		out[i] = v
	}
	return out, nil
}
