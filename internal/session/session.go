// Package session owns the connection lifecycle for one tracker: it opens the
// transport, feeds payloads through the decoder into the track, retries dropped
// links and publishes snapshots to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/constants"
	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/pkg/telemetry"
	"github.com/benmeehan/trailsafe/pkg/track"
	"github.com/benmeehan/trailsafe/pkg/transport"
)

var (
	// ErrSessionFailed wraps the transport error that ended a session.
	ErrSessionFailed = errors.New("session failed")
	// ErrAlreadyStarted is returned by Start on a session that left Idle.
	ErrAlreadyStarted = errors.New("session already started")
)

// Options tunes a session. Zero values fall back to the package defaults,
// except MaxPathLength where zero keeps the whole path.
type Options struct {
	MaxPathLength           int
	MaxReconnectAttempts    int
	ReconnectBackoffInitial time.Duration
	ReconnectBackoffMax     time.Duration
	CloseTimeout            time.Duration
	// Decoder overrides the decoder selected from the descriptor's format.
	Decoder telemetry.Decoder
}

// DefaultOptions returns the stock retry and close bounds.
func DefaultOptions() Options {
	return Options{
		MaxReconnectAttempts:    constants.MaxReconnectAttempts,
		ReconnectBackoffInitial: constants.ReconnectBackoffInitial,
		ReconnectBackoffMax:     constants.ReconnectBackoffMax,
		CloseTimeout:            constants.CloseTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxReconnectAttempts < 0 {
		o.MaxReconnectAttempts = 0
	} else if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if o.ReconnectBackoffInitial <= 0 {
		o.ReconnectBackoffInitial = d.ReconnectBackoffInitial
	}
	if o.ReconnectBackoffMax <= 0 {
		o.ReconnectBackoffMax = d.ReconnectBackoffMax
	}
	if o.ReconnectBackoffMax < o.ReconnectBackoffInitial {
		o.ReconnectBackoffMax = o.ReconnectBackoffInitial
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = d.CloseTimeout
	}
	return o
}

// Session is one connection to one device. Only its run loop mutates the
// track and the counters; everything else reads snapshots.
type Session struct {
	id      string
	device  models.DeviceDescriptor
	opener  transport.Opener
	decoder telemetry.Decoder
	track   *track.Accumulator
	opts    Options
	logger  zerolog.Logger
	bcast   *Broadcaster

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once

	mu           sync.RWMutex
	started      bool
	state        models.ConnectionState
	accepted     uint64
	duplicates   uint64
	rejected     uint64
	attempt      int
	lastErr      error
	lastReceived time.Time
	updatedAt    time.Time
}

// New validates the descriptor and returns an Idle session.
// A negative MaxReconnectAttempts disables reconnection.
func New(device models.DeviceDescriptor, opener transport.Opener, opts Options, logger zerolog.Logger) (*Session, error) {
	if err := device.Validate(); err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, errors.New("session requires a transport opener")
	}
	opts = opts.withDefaults()

	decoder := opts.Decoder
	if decoder == nil {
		var err error
		if decoder, err = telemetry.ForFormat(device.Format); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		device:    device,
		opener:    opener,
		decoder:   decoder,
		track:     track.NewAccumulator(opts.MaxPathLength),
		opts:      opts,
		logger:    logger.With().Str("session_id", id).Str("device_id", device.ID).Logger(),
		bcast:     NewBroadcaster(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     models.StateIdle,
		updatedAt: time.Now(),
	}, nil
}

func (s *Session) ID() string                      { return s.id }
func (s *Session) Device() models.DeviceDescriptor { return s.device }

// Done is closed once the session reaches Closed or Failed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns nil unless the session failed, in which case it wraps
// ErrSessionFailed around the precipitating transport error.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != models.StateFailed {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSessionFailed, s.lastErr)
}

// Subscribe returns a snapshot channel. It is closed after the terminal snapshot.
func (s *Session) Subscribe(buffer int) (int, <-chan models.SessionSnapshot) {
	return s.bcast.Subscribe(buffer)
}

func (s *Session) Unsubscribe(id int) {
	s.bcast.Unsubscribe(id)
}

// Snapshot returns a copy of the current state and track.
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		SessionID:        s.id,
		Device:           s.device,
		State:            s.state,
		Path:             s.track.Path(),
		DistanceMeters:   s.track.Distance(),
		Accepted:         s.accepted,
		Duplicates:       s.duplicates,
		Rejected:         s.rejected,
		ReconnectAttempt: s.attempt,
		UpdatedAt:        s.updatedAt,
	}
	if cur, ok := s.track.CurrentPosition(); ok {
		snap.Current = &cur
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// update applies fn under the lock and publishes the resulting snapshot.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.bcast.Publish(snap)
}

func (s *Session) transition(to models.ConnectionState, attempt int, cause error) {
	s.update(func() {
		s.state = to
		s.attempt = attempt
		switch {
		case cause != nil:
			s.lastErr = cause
		case to == models.StateStreaming:
			s.lastErr = nil
		}
	})
	if cause != nil {
		s.logger.Warn().Err(cause).Str("state", string(to)).Int("attempt", attempt).Msg("Session state changed")
		return
	}
	s.logger.Info().Str("state", string(to)).Msg("Session state changed")
}

// Start moves the session to Connecting and launches its run loop.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.transition(models.StateConnecting, 0, nil)
	go s.run()
	return nil
}

// Close ends the session. It is idempotent, safe to call from any state and
// never waits longer than the close timeout for the transport to let go.
// Closing a failed session leaves it Failed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.started = true
		s.mu.Unlock()

		s.cancel()
		if !started {
			s.transition(models.StateClosed, 0, nil)
			s.bcast.Close()
			close(s.done)
			return
		}

		select {
		case <-s.done:
		case <-time.After(s.opts.CloseTimeout):
			s.logger.Warn().Dur("timeout", s.opts.CloseTimeout).Msg("Session did not stop within close timeout")
		}
	})
	return nil
}

func (s *Session) run() {
	defer close(s.done)
	defer s.bcast.Close()

	sub, err := s.open()
	if err != nil {
		s.finish(err)
		return
	}
	s.transition(models.StateStreaming, 0, nil)

	for {
		lost := s.stream(sub)
		s.release(sub)
		if lost == nil {
			s.finish(nil)
			return
		}

		sub, err = s.reconnect(lost)
		if err != nil {
			s.finish(err)
			return
		}
	}
}

// finish records the terminal state: Closed when the session was cancelled,
// Failed otherwise.
func (s *Session) finish(err error) {
	if s.ctx.Err() != nil {
		s.transition(models.StateClosed, 0, nil)
		return
	}
	s.mu.RLock()
	attempt := s.attempt
	s.mu.RUnlock()
	s.transition(models.StateFailed, attempt, err)
}

// open calls the transport off the run loop so a slow dial never blocks Close.
func (s *Session) open() (transport.Subscription, error) {
	type result struct {
		sub transport.Subscription
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		sub, err := s.opener.Open(s.ctx, s.device)
		resultCh <- result{sub: sub, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err == nil && s.ctx.Err() != nil {
			s.release(res.sub)
			return nil, s.ctx.Err()
		}
		return res.sub, res.err
	case <-s.ctx.Done():
		go func() {
			if late := <-resultCh; late.err == nil {
				_ = late.sub.Close()
			}
		}()
		return nil, s.ctx.Err()
	}
}

// stream processes events until the link drops or the session is cancelled.
// It returns the transport error, or nil on cancellation.
func (s *Session) stream(sub transport.Subscription) error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case ev := <-sub.Events():
			if ev.Err != nil {
				return ev.Err
			}
			s.handle(ev.Payload)
		}
	}
}

func (s *Session) handle(p transport.Payload) {
	at := p.ReceivedAt
	if at.Before(s.lastReceived) {
		at = s.lastReceived
	}

	sample, err := s.decoder.Decode(p.Raw, at)
	if err != nil {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
		s.logger.Debug().Err(err).Str("raw", p.Raw).Msg("Payload rejected")
		return
	}
	s.lastReceived = at

	result := s.track.Append(sample)
	switch result {
	case track.Appended:
		s.update(func() { s.accepted++ })
	case track.Duplicate:
		s.update(func() { s.duplicates++ })
	default:
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
	}
}

// reconnect retries the transport with capped exponential backoff.
func (s *Session) reconnect(cause error) (transport.Subscription, error) {
	delay := s.opts.ReconnectBackoffInitial
	for attempt := 1; attempt <= s.opts.MaxReconnectAttempts; attempt++ {
		s.transition(models.StateReconnecting, attempt, cause)

		jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		select {
		case <-time.After(jittered):
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}

		sub, err := s.open()
		if err == nil {
			s.transition(models.StateStreaming, 0, nil)
			return sub, nil
		}
		if s.ctx.Err() != nil {
			return nil, err
		}
		cause = err

		delay *= 2
		if delay > s.opts.ReconnectBackoffMax {
			delay = s.opts.ReconnectBackoffMax
		}
	}
	return nil, cause
}

// release closes a subscription, giving up after the close timeout.
func (s *Session) release(sub transport.Subscription) {
	if sub == nil {
		return
	}
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Close() }()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Debug().Err(err).Msg("Transport close returned an error")
		}
	case <-time.After(s.opts.CloseTimeout):
		s.logger.Warn().Dur("timeout", s.opts.CloseTimeout).Msg("Transport close timed out")
	}
}
