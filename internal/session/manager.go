package session

import (
	"errors"
	"fmt"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/internal/utils"
	"github.com/benmeehan/trailsafe/pkg/transport"
)

var (
	// ErrSessionActive is returned when a device already has a live session.
	ErrSessionActive = errors.New("session already active for device")
	// ErrSessionNotFound is returned for an unknown device id.
	ErrSessionNotFound = errors.New("session not found")
)

const defaultCloseWorkers = 4

// Manager enforces one live session per device id.
type Manager struct {
	opener       transport.Opener
	opts         Options
	logger       zerolog.Logger
	sessions     cmap.ConcurrentMap[string, *Session]
	closeWorkers int
}

func NewManager(opener transport.Opener, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		opener:       opener,
		opts:         opts,
		logger:       logger,
		sessions:     cmap.New[*Session](),
		closeWorkers: defaultCloseWorkers,
	}
}

// Open starts a session for device. A terminal session for the same id is
// replaced; a live one is left alone and ErrSessionActive is returned.
func (m *Manager) Open(device models.DeviceDescriptor) (*Session, error) {
	s, err := New(device, m.opener, m.opts, m.logger)
	if err != nil {
		return nil, err
	}

	refused := false
	m.sessions.Upsert(device.ID, s, func(exist bool, inMap, fresh *Session) *Session {
		if exist && !inMap.State().Terminal() {
			refused = true
			return inMap
		}
		return fresh
	})
	if refused {
		s.cancel()
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, device.ID)
	}

	if err := s.Start(); err != nil {
		return nil, err
	}
	m.logger.Info().Str("device_id", device.ID).Str("session_id", s.ID()).Msg("Session opened")
	return s, nil
}

func (m *Manager) Get(deviceID string) (*Session, bool) {
	return m.sessions.Get(deviceID)
}

// Close closes the device's session and forgets it.
func (m *Manager) Close(deviceID string) error {
	s, ok := m.sessions.Get(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, deviceID)
	}
	err := s.Close()
	m.sessions.RemoveCb(deviceID, func(_ string, v *Session, exists bool) bool {
		return exists && v == s
	})
	return err
}

// CloseAll closes every session in parallel and waits for them.
func (m *Manager) CloseAll() {
	items := m.sessions.Items()
	if len(items) == 0 {
		return
	}

	pool := utils.NewWorkerPool(min(len(items), m.closeWorkers))
	for id := range items {
		pool.Submit(func() {
			if err := m.Close(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
				m.logger.Warn().Err(err).Str("device_id", id).Msg("Failed to close session")
			}
		})
	}
	pool.Shutdown()
}

// Snapshots returns one snapshot per known session, ordered by device id.
func (m *Manager) Snapshots() []models.SessionSnapshot {
	items := m.sessions.Items()
	snaps := make([]models.SessionSnapshot, 0, len(items))
	for _, s := range items {
		snaps = append(snaps, s.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Device.ID < snaps[j].Device.ID })
	return snaps
}

// Count returns the number of tracked sessions, live or terminal.
func (m *Manager) Count() int {
	return m.sessions.Count()
}
