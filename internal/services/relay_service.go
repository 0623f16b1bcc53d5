package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	mqtt_middleware "github.com/benmeehan/trailsafe/internal/middlewares/mqtt"
	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/internal/session"
)

// RelayService publishes location updates of attached sessions to the MQTT broker.
type RelayService struct {
	// Configuration fields
	topic string
	qos   int

	// Dependencies
	publisher mqtt_middleware.Publisher
	logger    zerolog.Logger

	// Internal state management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRelayService creates a RelayService publishing under topic.
func NewRelayService(topic string, qos int, publisher mqtt_middleware.Publisher, logger zerolog.Logger) *RelayService {
	return &RelayService{
		topic:     strings.TrimSuffix(topic, "/"),
		qos:       qos,
		publisher: publisher,
		logger:    logger.With().Str("service", "relay").Logger(),
	}
}

// Start enables the relay. Sessions can only be attached while it runs.
func (r *RelayService) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.logger.Warn().Msg("RelayService is already running")
		return errors.New("relay service is already running")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	r.logger.Info().Str("topic", r.topic).Int("qos", r.qos).Msg("RelayService started")
	return nil
}

// Stop detaches every session and waits for in-flight publishes.
func (r *RelayService) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		r.logger.Warn().Msg("RelayService is not running")
		return errors.New("relay service is not running")
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info().Msg("RelayService stopped")
	return nil
}

// Attach subscribes to s and relays its updates until the session ends or
// the service stops.
func (r *RelayService) Attach(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return errors.New("relay service is not running")
	}

	id, updates := s.Subscribe(0)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer s.Unsubscribe(id)
		r.relay(r.ctx, updates)
	}()
	return nil
}

func (r *RelayService) relay(ctx context.Context, updates <-chan models.SessionSnapshot) {
	var (
		prev    models.SessionSnapshot
		hasPrev bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			stateChanged := !hasPrev || snap.State != prev.State
			if !stateChanged && !positionChanged(prev, snap) {
				continue
			}
			prev, hasPrev = snap, true
			if err := r.publish(snap, stateChanged); err != nil {
				r.logger.Error().Err(err).Str("device_id", snap.Device.ID).Msg("Failed to relay location update")
			}
		}
	}
}

func positionChanged(prev, next models.SessionSnapshot) bool {
	switch {
	case prev.Current == nil && next.Current == nil:
		return false
	case prev.Current == nil || next.Current == nil:
		return true
	default:
		return !prev.Current.SamePosition(*next.Current)
	}
}

// publish sends one update. State changes are retained so late subscribers
// see the last known state.
func (r *RelayService) publish(snap models.SessionSnapshot, retained bool) error {
	payload, err := json.Marshal(LocationUpdateFromSnapshot(snap))
	if err != nil {
		return err
	}
	return r.publisher.Publish(r.topic+"/"+snap.Device.ID, byte(r.qos), retained, payload)
}

// LocationUpdateFromSnapshot builds the broker message for a snapshot.
func LocationUpdateFromSnapshot(snap models.SessionSnapshot) models.LocationUpdate {
	update := models.LocationUpdate{
		DeviceID:       snap.Device.ID,
		SessionID:      snap.SessionID,
		Timestamp:      snap.UpdatedAt,
		State:          string(snap.State),
		DistanceMeters: snap.DistanceMeters,
	}
	if snap.Current != nil {
		update.HasFix = true
		update.Latitude = snap.Current.Latitude
		update.Longitude = snap.Current.Longitude
	}
	return update
}
