package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/models"
)

func snapWithAccepted(n uint64) models.SessionSnapshot {
	return models.SessionSnapshot{State: models.StateStreaming, Accepted: n}
}

func TestBroadcasterDropsOldest(t *testing.T) {
	b := NewBroadcaster()
	_, ch := b.Subscribe(2)

	for i := uint64(1); i <= 5; i++ {
		b.Publish(snapWithAccepted(i))
	}

	require.Len(t, ch, 2)
	assert.Equal(t, uint64(4), (<-ch).Accepted)
	assert.Equal(t, uint64(5), (<-ch).Accepted)
}

func TestBroadcasterReplaysLatest(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(snapWithAccepted(1))
	b.Publish(snapWithAccepted(2))

	_, ch := b.Subscribe(4)
	require.Len(t, ch, 1)
	assert.Equal(t, uint64(2), (<-ch).Accepted)
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe(1)
	assert.Equal(t, 1, b.Subscribers())

	b.Unsubscribe(id)
	b.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers())

	// publishing with no subscribers is fine
	b.Publish(snapWithAccepted(1))
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	_, live := b.Subscribe(4)
	b.Publish(models.SessionSnapshot{State: models.StateClosed})
	b.Close()
	b.Close()
	b.Publish(snapWithAccepted(9))

	first := <-live
	assert.Equal(t, models.StateClosed, first.State)
	_, open := <-live
	assert.False(t, open)

	// late subscribers still see the terminal snapshot
	_, late := b.Subscribe(0)
	snap, ok := <-late
	require.True(t, ok)
	assert.Equal(t, models.StateClosed, snap.State)
	_, open = <-late
	assert.False(t, open)
}
