package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TransportKind identifies the link used to reach a tracker.
type TransportKind string

const (
	TransportBLE       TransportKind = "ble"
	TransportWebSocket TransportKind = "websocket"
	TransportSerial    TransportKind = "serial"
)

// Payload encodings for BLE notifications.
const (
	EncodingBase64 = "base64"
	EncodingRaw    = "raw"
)

// Telemetry formats understood by the decoders.
const (
	FormatGPSText = "gps-text"
	FormatNMEA    = "nmea"
	FormatJSON    = "json"
)

// DeviceDescriptor identifies a trackable device and how to reach it.
// It is handed to a session by value and never mutated afterwards.
type DeviceDescriptor struct {
	ID        string        `json:"id" yaml:"id"`               // Stable, device-unique identifier (BLE address for ble)
	Name      string        `json:"name" yaml:"name"`           // Display name
	Transport TransportKind `json:"transport" yaml:"transport"` // ble, websocket or serial
	Format    string        `json:"format,omitempty" yaml:"format,omitempty"`

	// BLE addressing
	ServiceID        string `json:"service_id,omitempty" yaml:"service_id,omitempty"`
	CharacteristicID string `json:"characteristic_id,omitempty" yaml:"characteristic_id,omitempty"`
	NamePattern      string `json:"name_pattern,omitempty" yaml:"name_pattern,omitempty"`         // Advertised-name substring accepted during scan
	PayloadEncoding  string `json:"payload_encoding,omitempty" yaml:"payload_encoding,omitempty"` // base64 (default) or raw

	// WebSocket addressing
	EndpointURL string `json:"endpoint_url,omitempty" yaml:"endpoint_url,omitempty"`

	// Serial addressing
	Port     string `json:"port,omitempty" yaml:"port,omitempty"`
	BaudRate int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
}

// Validate checks that the descriptor carries the addressing its transport needs.
func (d DeviceDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("device id is required")
	}

	switch d.Transport {
	case TransportBLE:
		if d.ServiceID == "" || d.CharacteristicID == "" {
			return fmt.Errorf("device %s: ble transport requires service_id and characteristic_id", d.ID)
		}
		switch d.PayloadEncoding {
		case "", EncodingBase64, EncodingRaw:
		default:
			return fmt.Errorf("device %s: unknown payload_encoding %q", d.ID, d.PayloadEncoding)
		}
	case TransportWebSocket:
		u, err := url.Parse(d.EndpointURL)
		if err != nil {
			return fmt.Errorf("device %s: invalid endpoint_url: %w", d.ID, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("device %s: endpoint_url must use ws or wss, got %q", d.ID, d.EndpointURL)
		}
	case TransportSerial:
		if d.Port == "" {
			return fmt.Errorf("device %s: serial transport requires port", d.ID)
		}
	default:
		return fmt.Errorf("device %s: unknown transport %q", d.ID, d.Transport)
	}

	switch d.Format {
	case "", FormatGPSText, FormatNMEA, FormatJSON:
	default:
		return fmt.Errorf("device %s: unknown format %q", d.ID, d.Format)
	}
	return nil
}

// DisplayName returns the name if set, falling back to the id.
func (d DeviceDescriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// DeviceRecord is the persisted metadata for a device owned by a user.
type DeviceRecord struct {
	UserID     string           `json:"user_id"`
	Descriptor DeviceDescriptor `json:"descriptor"`
	Label      string           `json:"label,omitempty"` // User-assigned display name
	Phone      string           `json:"phone,omitempty"` // Contact number of the person carrying the tracker
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
