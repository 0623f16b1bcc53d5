package services

import (
	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/internal/session"
	"github.com/benmeehan/trailsafe/pkg/location"
)

// LogSink writes state transitions and position fixes to the logger.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("sink", "log").Logger()}
}

func (l *LogSink) Attach(s *session.Session) error {
	_, updates := s.Subscribe(0)
	go func() {
		var prev models.SessionSnapshot
		first := true
		for snap := range updates {
			if first || snap.State != prev.State {
				ev := l.logger.Info()
				if snap.LastError != "" {
					ev = l.logger.Warn().Str("last_error", snap.LastError)
				}
				ev.Str("device_id", snap.Device.ID).Str("state", string(snap.State)).Msg("Tracker state")
			}
			if snap.Current != nil && (first || positionChanged(prev, snap)) {
				l.logger.Info().
					Str("device_id", snap.Device.ID).
					Float64("latitude", snap.Current.Latitude).
					Float64("longitude", snap.Current.Longitude).
					Float64("distance_m", snap.DistanceMeters).
					Str("directions", location.DirectionsURL(snap.Current.Latitude, snap.Current.Longitude)).
					Msg("Tracker position")
			}
			prev, first = snap, false
		}
	}()
	return nil
}
