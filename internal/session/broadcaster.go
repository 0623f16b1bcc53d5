package session

import (
	"sync"

	"github.com/benmeehan/trailsafe/internal/constants"
	"github.com/benmeehan/trailsafe/internal/models"
)

// Broadcaster fans session snapshots out to any number of subscribers.
// It keeps the most recent snapshot so new subscribers get an immediate value.
// A subscriber that falls behind loses its oldest queued snapshots, never the latest.
type Broadcaster struct {
	mu       sync.Mutex
	subs     map[int]chan models.SessionSnapshot
	nextID   int
	last     models.SessionSnapshot
	haveLast bool
	closed   bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]chan models.SessionSnapshot),
	}
}

// Subscribe registers a listener. After Close the returned channel yields the
// final snapshot and is already closed.
func (b *Broadcaster) Subscribe(buffer int) (int, <-chan models.SessionSnapshot) {
	if buffer <= 0 {
		buffer = constants.SubscriberBuffer
	}
	ch := make(chan models.SessionSnapshot, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.haveLast {
		ch <- b.last
	}
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(snap models.SessionSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		offer(ch, snap)
	}
	b.last = snap
	b.haveLast = true
}

// Close closes every subscriber channel. Publish after Close is a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// offer queues snap, discarding the oldest queued snapshot while the channel is full.
func offer(ch chan models.SessionSnapshot, snap models.SessionSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
