package transport

import (
	"sync"
	"time"
)

// stream is the subscription plumbing shared by every transport. Native
// callbacks call deliver/fail from any goroutine; the consumer reads Events in
// arrival order.
type stream struct {
	events chan Event
	done   chan struct{}
	now    func() time.Time

	failOnce  sync.Once
	closeOnce sync.Once
	release   func() error
	closeErr  error
}

func newStream(buffer int, release func() error) *stream {
	return &stream{
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		now:     time.Now,
		release: release,
	}
}

func (s *stream) Events() <-chan Event {
	return s.events
}

// deliver stamps raw and queues it. It blocks while the buffer is full and
// returns false once the stream is closed.
func (s *stream) deliver(raw string) bool {
	ev := Event{Payload: Payload{Raw: raw, ReceivedAt: s.now()}}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// fail queues a terminal error once. Errors after Close are dropped.
func (s *stream) fail(err error) {
	s.failOnce.Do(func() {
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case s.events <- Event{Err: err}:
		case <-s.done:
		}
	})
}

// closed reports whether Close has been called.
func (s *stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close releases the native resources exactly once.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}
