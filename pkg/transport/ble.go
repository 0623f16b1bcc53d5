package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/constants"
	"github.com/benmeehan/trailsafe/internal/models"
)

// ScanResult is one advertisement seen during a BLE scan.
type ScanResult struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

// BLEBackend abstracts the host Bluetooth stack.
type BLEBackend interface {
	// Scan reports advertisements until ctx is done or onResult returns false.
	// It returns an error when the adapter is unavailable.
	Scan(ctx context.Context, onResult func(ScanResult) bool) error
	// Connect opens a GATT connection to an address seen during a scan.
	Connect(ctx context.Context, address string) (BLELink, error)
}

// BLELink is a connected peripheral.
type BLELink interface {
	// Subscribe discovers the characteristic and enables notifications on it.
	Subscribe(serviceID, characteristicID string, onNotify func([]byte)) error
	// Dropped is closed when the peripheral disconnects on its own.
	Dropped() <-chan struct{}
	Disconnect() error
}

// connectionTracker is implemented by backends that know which peripherals are
// already connected, which lets Open skip the scan.
type connectionTracker interface {
	IsConnected(address string) bool
}

// BLEOpener scans for, connects to, and subscribes to a tracker's GATT characteristic.
type BLEOpener struct {
	backend     BLEBackend
	scanTimeout time.Duration
	logger      zerolog.Logger
}

// NewBLEOpener creates an opener. A zero scanTimeout uses the 5 second default.
func NewBLEOpener(backend BLEBackend, scanTimeout time.Duration, logger zerolog.Logger) *BLEOpener {
	if scanTimeout <= 0 {
		scanTimeout = constants.BLEScanTimeout
	}
	return &BLEOpener{
		backend:     backend,
		scanTimeout: scanTimeout,
		logger:      logger.With().Str("transport", "ble").Logger(),
	}
}

// Open implements Opener.
func (o *BLEOpener) Open(ctx context.Context, device models.DeviceDescriptor) (Subscription, error) {
	if o.backend == nil {
		return nil, unavailable("ble open", errors.New("no bluetooth backend"))
	}
	logger := o.logger.With().Str("device_id", device.ID).Logger()

	address := device.ID
	if tracker, ok := o.backend.(connectionTracker); !ok || !tracker.IsConnected(address) {
		found, err := o.scanFor(ctx, device)
		if err != nil {
			return nil, err
		}
		address = found
	}

	connectCtx, cancel := context.WithTimeout(ctx, o.scanTimeout)
	defer cancel()

	link, err := o.backend.Connect(connectCtx, address)
	if err != nil {
		return nil, unreachable("ble connect", err)
	}

	s := newStream(constants.EventBuffer, link.Disconnect)
	raw := device.PayloadEncoding == models.EncodingRaw

	err = link.Subscribe(device.ServiceID, device.CharacteristicID, func(buf []byte) {
		text, err := notificationText(buf, raw)
		if err != nil {
			logger.Debug().Err(err).Msg("Discarding undecodable notification")
			return
		}
		s.deliver(text)
	})
	if err != nil {
		_ = s.Close()
		return nil, unreachable("ble subscribe", err)
	}

	go func() {
		select {
		case <-link.Dropped():
			if !s.closed() {
				logger.Warn().Msg("BLE peripheral disconnected")
				s.fail(dropped("ble notify", errors.New("peripheral disconnected")))
			}
		case <-s.done:
		}
	}()

	logger.Info().Str("address", address).Str("characteristic", device.CharacteristicID).Msg("BLE notifications enabled")
	return s, nil
}

// scanFor runs a bounded scan until the descriptor's address shows up.
func (o *BLEOpener) scanFor(ctx context.Context, device models.DeviceDescriptor) (string, error) {
	scanCtx, cancel := context.WithTimeout(ctx, o.scanTimeout)
	defer cancel()

	var found string
	err := o.backend.Scan(scanCtx, func(r ScanResult) bool {
		if strings.EqualFold(r.Address, device.ID) && matchesName(r.Name, device.NamePattern) {
			found = r.Address
			return false
		}
		return true
	})
	if err != nil {
		return "", unavailable("ble scan", err)
	}
	if found == "" {
		if ctx.Err() != nil {
			return "", unreachable("ble scan", ctx.Err())
		}
		return "", unreachable("ble scan", fmt.Errorf("device %s not seen within %s", device.ID, o.scanTimeout))
	}
	return found, nil
}

// matchesName applies the optional advertised-name filter. Peripherals that
// advertise no name are accepted on address alone.
func matchesName(name, pattern string) bool {
	if pattern == "" || name == "" {
		return true
	}
	return strings.Contains(name, pattern)
}

func notificationText(buf []byte, raw bool) (string, error) {
	if raw {
		return string(buf), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	return string(decoded), nil
}

// Discover scans for timeout and returns each peripheral whose advertised name
// contains pattern, once per address, in order of first sighting.
func Discover(ctx context.Context, backend BLEBackend, pattern string, timeout time.Duration) ([]ScanResult, error) {
	if timeout <= 0 {
		timeout = constants.BLEScanTimeout
	}
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[string]int)
	var results []ScanResult
	err := backend.Scan(scanCtx, func(r ScanResult) bool {
		if r.Name == "" || !strings.Contains(r.Name, pattern) {
			return true
		}
		key := strings.ToUpper(r.Address)
		if i, ok := seen[key]; ok {
			results[i].RSSI = r.RSSI
			return true
		}
		seen[key] = len(results)
		results = append(results, r)
		return true
	})
	if err != nil {
		return nil, unavailable("ble scan", err)
	}
	return results, nil
}
