package models

import "time"

// ConnectionState is the lifecycle state of one connection session.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateStreaming    ConnectionState = "streaming"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

// Terminal reports whether no further transitions are possible.
func (s ConnectionState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// SessionSnapshot is the read-only view handed to subscribers.
// Path is a copy; mutating it has no effect on the live track.
type SessionSnapshot struct {
	SessionID string           `json:"session_id"`
	Device    DeviceDescriptor `json:"device"`
	State     ConnectionState  `json:"state"`

	Current        *LocationSample  `json:"current,omitempty"`
	Path           []LocationSample `json:"path"`
	DistanceMeters float64          `json:"distance_meters"`

	Accepted   uint64 `json:"accepted"`
	Duplicates uint64 `json:"duplicates"`
	Rejected   uint64 `json:"rejected"`

	ReconnectAttempt int    `json:"reconnect_attempt,omitempty"`
	LastError        string `json:"last_error,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
