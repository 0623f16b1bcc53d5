package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// TinyGoBackend drives the host adapter through tinygo.org/x/bluetooth.
type TinyGoBackend struct {
	adapter *bluetooth.Adapter
	logger  zerolog.Logger

	enableOnce sync.Once
	enableErr  error

	scanMu sync.Mutex // the adapter supports one scan at a time

	mu    sync.Mutex
	seen  map[string]bluetooth.Address
	links map[string]*tinygoLink
}

// NewTinyGoBackend wraps the default host adapter.
func NewTinyGoBackend(logger zerolog.Logger) *TinyGoBackend {
	return &TinyGoBackend{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger.With().Str("backend", "bluetooth").Logger(),
		seen:    make(map[string]bluetooth.Address),
		links:   make(map[string]*tinygoLink),
	}
}

func (b *TinyGoBackend) enable() error {
	b.enableOnce.Do(func() {
		if err := b.adapter.Enable(); err != nil {
			b.enableErr = fmt.Errorf("enable bluetooth adapter: %w", err)
			return
		}
		b.adapter.SetConnectHandler(b.onConnectChange)
	})
	return b.enableErr
}

// Scan implements BLEBackend.
func (b *TinyGoBackend) Scan(ctx context.Context, onResult func(ScanResult) bool) error {
	if err := b.enable(); err != nil {
		return err
	}
	b.scanMu.Lock()
	defer b.scanMu.Unlock()

	stop := make(chan struct{})
	var stopOnce sync.Once
	halt := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		// StopScan unblocks adapter.Scan below.
		_ = b.adapter.StopScan()
	}()

	err := b.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		address := r.Address.String()
		b.mu.Lock()
		b.seen[strings.ToUpper(address)] = r.Address
		b.mu.Unlock()

		if !onResult(ScanResult{Address: address, Name: r.LocalName(), RSSI: int(r.RSSI)}) {
			halt()
		}
	})
	halt()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("bluetooth scan: %w", err)
	}
	return nil
}

// Connect implements BLEBackend.
func (b *TinyGoBackend) Connect(ctx context.Context, address string) (BLELink, error) {
	if err := b.enable(); err != nil {
		return nil, err
	}
	key := strings.ToUpper(address)

	b.mu.Lock()
	if link, ok := b.links[key]; ok {
		b.mu.Unlock()
		return link, nil
	}
	addr, ok := b.seen[key]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("address %s has not been seen in a scan", address)
	}

	type result struct {
		device bluetooth.Device
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		device, err := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
		resultCh <- result{device: device, err: err}
	}()

	var res result
	select {
	case res = <-resultCh:
	case <-ctx.Done():
		// Tear down a connection that completes after the caller gave up.
		go func() {
			if late := <-resultCh; late.err == nil {
				_ = late.device.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, res.err)
	}

	link := &tinygoLink{
		key:      key,
		backend:  b,
		discover: res.device.DiscoverServices,
		close:    res.device.Disconnect,
		dropped:  make(chan struct{}),
	}
	b.mu.Lock()
	b.links[key] = link
	b.mu.Unlock()

	b.logger.Debug().Str("address", address).Msg("Peripheral connected")
	return link, nil
}

// IsConnected reports whether a link to address is open.
func (b *TinyGoBackend) IsConnected(address string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.links[strings.ToUpper(address)]
	return ok
}

func (b *TinyGoBackend) onConnectChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	key := strings.ToUpper(device.Address.String())
	b.mu.Lock()
	link, ok := b.links[key]
	if ok {
		delete(b.links, key)
	}
	b.mu.Unlock()
	if ok {
		link.markDropped()
	}
}

func (b *TinyGoBackend) forget(link *tinygoLink) {
	b.mu.Lock()
	if b.links[link.key] == link {
		delete(b.links, link.key)
	}
	b.mu.Unlock()
}

type tinygoLink struct {
	key      string
	backend  *TinyGoBackend
	discover func([]bluetooth.UUID) ([]bluetooth.DeviceService, error)
	close    func() error

	dropOnce  sync.Once
	dropped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (l *tinygoLink) Subscribe(serviceID, characteristicID string, onNotify func([]byte)) error {
	serviceUUID, err := bluetooth.ParseUUID(serviceID)
	if err != nil {
		return fmt.Errorf("service id %q: %w", serviceID, err)
	}
	charUUID, err := bluetooth.ParseUUID(characteristicID)
	if err != nil {
		return fmt.Errorf("characteristic id %q: %w", characteristicID, err)
	}

	services, err := l.discover([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return errors.New("service not found")
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return errors.New("characteristic not found")
	}
	if err := chars[0].EnableNotifications(onNotify); err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}
	return nil
}

func (l *tinygoLink) Dropped() <-chan struct{} {
	return l.dropped
}

func (l *tinygoLink) markDropped() {
	l.dropOnce.Do(func() { close(l.dropped) })
}

func (l *tinygoLink) Disconnect() error {
	l.closeOnce.Do(func() {
		l.backend.forget(l)
		l.closeErr = l.close()
	})
	return l.closeErr
}
