package parser

import (
	"fmt"
	"strconv"
	"strings"

	"RoverDrive/internal/model"
)

// ParseNMEACoord converts NMEA ddmm.mmmm to decimal degrees.
func ParseNMEACoord(value string, dir string) (float64, error) {
	if len(value) < 4 {
		return 0, fmt.Errorf("invalid nmea coord")
	}
	var degPart, minPart string
	// latitude has 2 digit degrees vs lon 3 digits; detect by dir
	if dir == "N" || dir == "S" {
		degPart = value[:2]
		minPart = value[2:]
	} else {
		degPart = value[:3]
		minPart = value[3:]
	}
	deg, err := strconv.ParseFloat(degPart, 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(minPart, 64)
	if err != nil {
		return 0, err
	}
	dec := deg + min/60.0
	if dir == "S" || dir == "W" {
		dec = -dec
	}
	return dec, nil
}

// ToNMEACoord converts decimal degrees to ddmm.mmmm.
func ToNMEACoord(dec float64, isLat bool) (string, string) {
	dir := "N"
	if !isLat {
		dir = "E"
	}
	if dec < 0 {
		dec = -dec
		if isLat {
			dir = "S"
		} else {
			dir = "W"
		}
	}
	deg := int(dec)
	min := (dec - float64(deg)) * 60
	if isLat {
		return fmt.Sprintf("%02d%07.4f", deg, min), dir
	}
	return fmt.Sprintf("%03d%07.4f", deg, min), dir
}

// ParseNMEASentence extracts a position from $GPRMC/$GNRMC or $GPGGA/$GNGGA sentences.
// ok is false for other sentence types and for RMC sentences without a valid fix.
func ParseNMEASentence(line string) (pos model.Position, ok bool, err error) {
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, '*'); i >= 0 {
		line = line[:i]
	}
	parts := strings.Split(line, ",")
	var latIdx int
	switch {
	case strings.HasPrefix(line, "$GPRMC"), strings.HasPrefix(line, "$GNRMC"):
		// $GPRMC,time,status,lat,N,lon,E,...
		if len(parts) < 7 || parts[2] != "A" {
			return model.Position{}, false, nil
		}
		latIdx = 3
	case strings.HasPrefix(line, "$GPGGA"), strings.HasPrefix(line, "$GNGGA"):
		// $GPGGA,time,lat,N,lon,E,quality,...
		if len(parts) < 7 || parts[6] == "0" {
			return model.Position{}, false, nil
		}
		latIdx = 2
	default:
		return model.Position{}, false, nil
	}
	if parts[latIdx] == "" || parts[latIdx+2] == "" {
		return model.Position{}, false, nil
	}
	lat, err := ParseNMEACoord(parts[latIdx], parts[latIdx+1])
	if err != nil {
		return model.Position{}, false, fmt.Errorf("latitude: %w", err)
	}
	lng, err := ParseNMEACoord(parts[latIdx+2], parts[latIdx+3])
	if err != nil {
		return model.Position{}, false, fmt.Errorf("longitude: %w", err)
	}
	return model.Position{Lat: lat, Lng: lng}, true, nil
}
