// Package model defines shared message structures for the rover.
package model

import "time"

// DriveCommand is one operator (or autonomous) drive request.
// Throttle and Turn are in [-100, 100]; positive Turn is right.
type DriveCommand struct {
	Autonomous bool    `json:"autonomous"`
	Throttle   float64 `json:"throttle"`
	Turn       float64 `json:"turn"`
}

// Position is a GPS fix in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Destination is a waypoint the rover steers toward.
type Destination struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AutoGoal is a destination update sent by the base station.
type AutoGoal struct {
	MoreDestinations bool        `json:"more_destinations"`
	Destination      Destination `json:"destination"`
}

// HeadingSample is one reading taken during a scan sweep.
type HeadingSample struct {
	Heading  float64 `json:"heading"`
	Obstacle bool    `json:"obstacle"`
}

// Telemetry is the rover state reported back to the base station.
type Telemetry struct {
	VehicleID string     `json:"vehicle_id,omitempty"`
	Pot       float64    `json:"pot"`
	Mag       float64    `json:"mag"`
	Encoders  [4]float64 `json:"encoders"`
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Heading   float64    `json:"heading"`
	Wheels    [4]float64 `json:"wheels"`
	ScanState string     `json:"scan_state"`
	Timestamp time.Time  `json:"timestamp"`
}

// ScanReport records the outcome of a completed scan sweep.
type ScanReport struct {
	Samples  []HeadingSample `json:"samples"`
	Heading  float64         `json:"heading"`
	Resolved bool            `json:"resolved"`
	Detour   *Destination    `json:"detour,omitempty"`
	At       time.Time       `json:"at"`
}
