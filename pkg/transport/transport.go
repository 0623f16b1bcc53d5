// Package transport presents BLE, WebSocket and serial links to a tracker as one
// cancellable stream of raw payload strings.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/trailsafe/internal/models"
)

// Error classes reported by every transport.
var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrDeviceUnreachable    = errors.New("device unreachable")
	ErrLinkDropped          = errors.New("link dropped")
)

// Error carries the class of a transport failure together with its cause.
type Error struct {
	Kind error // One of ErrTransportUnavailable, ErrDeviceUnreachable, ErrLinkDropped
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is matches the error class so callers can use errors.Is(err, ErrLinkDropped).
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	return &Error{Kind: ErrTransportUnavailable, Op: op, Err: err}
}

func unreachable(op string, err error) error {
	return &Error{Kind: ErrDeviceUnreachable, Op: op, Err: err}
}

func dropped(op string, err error) error {
	return &Error{Kind: ErrLinkDropped, Op: op, Err: err}
}

// Payload is one raw item received from a device, stamped at arrival.
type Payload struct {
	Raw        string
	ReceivedAt time.Time
}

// Event is either a payload or a transport error. An error event is the last
// event a subscription delivers.
type Event struct {
	Payload Payload
	Err     error
}

// Subscription is an open link to one device.
type Subscription interface {
	// Events is never closed; stop reading once an error event arrives or
	// after Close.
	Events() <-chan Event
	// Close releases the link. It is idempotent and safe to call concurrently.
	Close() error
}

// Opener establishes a subscription for a device.
type Opener interface {
	Open(ctx context.Context, device models.DeviceDescriptor) (Subscription, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, device models.DeviceDescriptor) (Subscription, error)

func (f OpenerFunc) Open(ctx context.Context, device models.DeviceDescriptor) (Subscription, error) {
	return f(ctx, device)
}

// Adapter routes a descriptor to the opener for its transport.
type Adapter struct {
	openers map[models.TransportKind]Opener
}

// NewAdapter creates an empty adapter; register transports with Register.
func NewAdapter() *Adapter {
	return &Adapter{openers: make(map[models.TransportKind]Opener)}
}

// Register installs the opener used for kind.
func (a *Adapter) Register(kind models.TransportKind, opener Opener) {
	a.openers[kind] = opener
}

// Open implements Opener.
func (a *Adapter) Open(ctx context.Context, device models.DeviceDescriptor) (Subscription, error) {
	opener, ok := a.openers[device.Transport]
	if !ok {
		return nil, unavailable("open", fmt.Errorf("no opener registered for transport %q", device.Transport))
	}
	return opener.Open(ctx, device)
}
