// Package parser converts rover wire formats to structured types and vice-versa.
//
// Binary packets (UDP link with the base station, little-endian) are handled by
// packet.go. Text formats are used on serial lines and by telemetry mirrors:
//
//	board status (board -> rover): S,POT,MAG,E1,E2,E3,E4
//	motor command (rover -> board): M,INDEX,VALUE
//	telemetry CSV:                  VEHICLE_ID,POT,MAG,E1,E2,E3,E4,LAT,LNG,HEADING
package parser

import "RoverDrive/internal/model"

// Parser encodes and decodes telemetry in a text representation.
type Parser interface {
	EncodeTelemetry(t model.Telemetry) (string, error)
	DecodeTelemetry(s string) (model.Telemetry, error)
}

// ByName returns the text parser registered for a format name (csv or json).
func ByName(name string) (Parser, bool) {
	switch name {
	case "csv":
		return NewCSVParser(), true
	case "json", "":
		return NewJSONParser(), true
	}
	return nil, false
}
