package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/internal/session"
	"github.com/benmeehan/trailsafe/internal/store"
	"github.com/benmeehan/trailsafe/internal/utils"
	"github.com/benmeehan/trailsafe/pkg/identity"
)

const storeTimeout = 5 * time.Second

// TrackerService opens a session for every known device and hands each one to
// the configured sinks.
type TrackerService struct {
	// Configuration fields
	devices []models.DeviceDescriptor

	// Dependencies
	userInfo identity.UserInfoInterface
	store    store.DeviceStore
	manager  *session.Manager
	sinks    []SessionSink
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewTrackerService creates a TrackerService. devices are the descriptors
// declared in configuration; they are saved to the store on Start.
func NewTrackerService(devices []models.DeviceDescriptor, userInfo identity.UserInfoInterface, deviceStore store.DeviceStore,
	manager *session.Manager, sinks []SessionSink, logger zerolog.Logger) *TrackerService {
	return &TrackerService{
		devices:  devices,
		userInfo: userInfo,
		store:    deviceStore,
		manager:  manager,
		sinks:    sinks,
		logger:   logger.With().Str("service", "tracker").Logger(),
	}
}

// Manager exposes the session manager for callers that read live snapshots.
func (t *TrackerService) Manager() *session.Manager {
	return t.manager
}

// Start resolves the device list and opens one session per device. It fails
// only when there were devices and none could be opened.
func (t *TrackerService) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.logger.Warn().Msg("TrackerService is already running")
		return errors.New("tracker service is already running")
	}

	devices, err := t.resolveDevices()
	if err != nil {
		return err
	}

	opened := 0
	for _, d := range devices {
		s, err := t.manager.Open(d)
		if err != nil {
			t.logger.Error().Err(err).Str("device_id", d.ID).Msg("Failed to open tracker session")
			continue
		}
		opened++
		for _, sink := range t.sinks {
			if err := sink.Attach(s); err != nil {
				t.logger.Error().Err(err).Str("device_id", d.ID).Msg("Failed to attach sink")
			}
		}
	}

	if len(devices) > 0 && opened == 0 {
		return fmt.Errorf("no tracker session could be opened for %d devices", len(devices))
	}

	t.running = true
	t.logger.Info().Int("devices", len(devices)).Int("sessions", opened).Msg("TrackerService started")
	return nil
}

// Stop closes every session.
func (t *TrackerService) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		t.logger.Warn().Msg("TrackerService is not running")
		return errors.New("tracker service is not running")
	}

	t.manager.CloseAll()
	t.running = false
	t.logger.Info().Msg("TrackerService stopped")
	return nil
}

// resolveDevices merges configured devices with the user's stored ones.
// Without a signed-in user nothing is persisted and only configured devices
// are tracked.
func (t *TrackerService) resolveDevices() ([]models.DeviceDescriptor, error) {
	if err := t.userInfo.LoadUserInfo(); err != nil {
		return nil, fmt.Errorf("failed to load user identity: %w", err)
	}
	userID := t.userInfo.GetUserID()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	for _, d := range t.devices {
		_, err := t.store.Save(ctx, models.DeviceRecord{UserID: userID, Descriptor: d, Label: d.Name})
		if errors.Is(err, store.ErrMissingUser) {
			t.logger.Warn().Msg("No signed-in user, configured devices will not be saved")
			return utils.DedupBy(t.devices, deviceKey), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save device %s: %w", d.ID, err)
		}
	}

	records, err := t.store.List(ctx, userID)
	if errors.Is(err, store.ErrMissingUser) {
		t.logger.Warn().Msg("No signed-in user, stored devices are unavailable")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]models.DeviceDescriptor, 0, len(t.devices)+len(records))
	devices = append(devices, t.devices...)
	for _, rec := range records {
		d := rec.Descriptor
		if d.Name == "" {
			d.Name = rec.Label
		}
		devices = append(devices, d)
	}
	return utils.DedupBy(devices, deviceKey), nil
}

func deviceKey(d models.DeviceDescriptor) string {
	return d.ID
}
