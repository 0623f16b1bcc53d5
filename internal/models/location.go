package models

import (
	"time"
)

// LocationSample is one accepted telemetry point.
type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ReceivedAt time.Time `json:"received_at"`
}

// SamePosition reports whether two samples carry the same coordinate pair.
func (s LocationSample) SamePosition(o LocationSample) bool {
	return s.Latitude == o.Latitude && s.Longitude == o.Longitude
}

// LocationUpdate is the message relayed to the broker for a device position change.
type LocationUpdate struct {
	DeviceID       string    `json:"device_id"`
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	State          string    `json:"state"`
	Latitude       float64   `json:"latitude,omitempty"`
	Longitude      float64   `json:"longitude,omitempty"`
	HasFix         bool      `json:"has_fix"`
	DistanceMeters float64   `json:"distance_meters"`
}
