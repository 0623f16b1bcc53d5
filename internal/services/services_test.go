package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/internal/session"
	"github.com/benmeehan/trailsafe/pkg/transport"
)

var testLogger = zerolog.Nop()

// chanSub is a subscription whose events are pushed by the test.
type chanSub struct {
	events    chan transport.Event
	closeOnce sync.Once
	closed    chan struct{}
}

func newChanSub() *chanSub {
	return &chanSub{events: make(chan transport.Event, 16), closed: make(chan struct{})}
}

func (c *chanSub) Events() <-chan transport.Event { return c.events }

func (c *chanSub) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *chanSub) send(raw string) {
	c.events <- transport.Event{Payload: transport.Payload{Raw: raw, ReceivedAt: time.Now()}}
}

// subsOpener hands out one chanSub per device id.
type subsOpener struct {
	mu   sync.Mutex
	subs map[string]*chanSub
	fail map[string]bool
}

func newSubsOpener() *subsOpener {
	return &subsOpener{subs: make(map[string]*chanSub), fail: make(map[string]bool)}
}

func (o *subsOpener) Open(_ context.Context, d models.DeviceDescriptor) (transport.Subscription, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[d.ID] {
		return nil, &transport.Error{Kind: transport.ErrDeviceUnreachable, Op: "test"}
	}
	sub := newChanSub()
	o.subs[d.ID] = sub
	return sub, nil
}

func (o *subsOpener) sub(t *testing.T, id string) *chanSub {
	t.Helper()
	var sub *chanSub
	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		sub = o.subs[id]
		return sub != nil
	}, 2*time.Second, 5*time.Millisecond)
	return sub
}

func wsDevice(id string) models.DeviceDescriptor {
	return models.DeviceDescriptor{
		ID:          id,
		Transport:   models.TransportWebSocket,
		EndpointURL: "ws://127.0.0.1:1/" + id,
	}
}

func testOptions() session.Options {
	return session.Options{
		MaxReconnectAttempts:    -1,
		ReconnectBackoffInitial: time.Millisecond,
		CloseTimeout:            200 * time.Millisecond,
	}
}
