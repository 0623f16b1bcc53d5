package services

import (
	"github.com/benmeehan/trailsafe/internal/session"
)

// SessionSink consumes the snapshots of a session until its channel closes.
type SessionSink interface {
	Attach(s *session.Session) error
}
