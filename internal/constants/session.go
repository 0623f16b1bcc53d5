package constants

import "time"

const (
	// BLEScanTimeout bounds how long a BLE scan looks for the tracker before giving up.
	BLEScanTimeout = 5 * time.Second

	// DialTimeout bounds a WebSocket handshake or serial port open.
	DialTimeout = 10 * time.Second

	// MaxReconnectAttempts is the number of reopen attempts after a dropped link.
	MaxReconnectAttempts = 3

	// ReconnectBackoffInitial is the delay before the first reopen attempt.
	ReconnectBackoffInitial = 500 * time.Millisecond

	// ReconnectBackoffMax caps the exponential reopen delay.
	ReconnectBackoffMax = 5 * time.Second

	// CloseTimeout bounds the underlying disconnect call when a session is closed.
	CloseTimeout = 3 * time.Second

	// SubscriberBuffer is the default snapshot channel capacity per subscriber.
	SubscriberBuffer = 16

	// EventBuffer is the capacity of a transport subscription's event channel.
	EventBuffer = 64

	// DefaultNamePattern is the advertised-name substring TrailSafe trackers use.
	DefaultNamePattern = "TrailSafe"
)
