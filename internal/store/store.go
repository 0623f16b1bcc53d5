// Package store persists device metadata keyed by (user id, device id).
// Telemetry is never written here; tracks live only as long as their session.
package store

import (
	"context"
	"errors"

	"github.com/benmeehan/trailsafe/internal/models"
)

var (
	// ErrMissingUser is returned when an operation has no authenticated user id.
	ErrMissingUser = errors.New("user id is required")
	// ErrNotFound is returned when no record exists for the key.
	ErrNotFound = errors.New("device record not found")
)

// DeviceStore is the persistence collaborator for device metadata.
type DeviceStore interface {
	// Save inserts or replaces the record for (rec.UserID, rec.Descriptor.ID)
	// and returns it with timestamps filled in.
	Save(ctx context.Context, rec models.DeviceRecord) (models.DeviceRecord, error)
	Get(ctx context.Context, userID, deviceID string) (models.DeviceRecord, error)
	List(ctx context.Context, userID string) ([]models.DeviceRecord, error)
	Delete(ctx context.Context, userID, deviceID string) error
	Close() error
}

func checkUser(userID string) error {
	if userID == "" {
		return ErrMissingUser
	}
	return nil
}
