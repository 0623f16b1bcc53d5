package track

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sample(lat, lon float64, offset time.Duration) models.LocationSample {
	return models.LocationSample{Latitude: lat, Longitude: lon, ReceivedAt: t0.Add(offset)}
}

func TestAccumulator_Empty(t *testing.T) {
	a := NewAccumulator(0)

	_, ok := a.CurrentPosition()
	assert.False(t, ok)
	assert.Empty(t, a.Path())
	assert.Zero(t, a.Distance())
}

func TestAccumulator_AppendsInOrder(t *testing.T) {
	a := NewAccumulator(0)

	assert.Equal(t, Appended, a.Append(sample(10, 76, 0)))
	assert.Equal(t, Appended, a.Append(sample(10.001, 76, time.Second)))
	assert.Equal(t, Appended, a.Append(sample(10.002, 76, 2*time.Second)))

	path := a.Path()
	require.Len(t, path, 3)
	assert.Equal(t, 10.0, path[0].Latitude)
	assert.Equal(t, 10.002, path[2].Latitude)

	cur, ok := a.CurrentPosition()
	require.True(t, ok)
	assert.Equal(t, path[2], cur)

	// Two 0.001 degree latitude steps are roughly 222 m.
	assert.InDelta(t, 222.4, a.Distance(), 1)
}

func TestAccumulator_DuplicateUpdatesCurrentOnly(t *testing.T) {
	a := NewAccumulator(0)

	require.Equal(t, Appended, a.Append(sample(10.85, 76.27, 0)))
	assert.Equal(t, Duplicate, a.Append(sample(10.85, 76.27, 5*time.Second)))

	assert.Equal(t, 1, a.Len())
	cur, ok := a.CurrentPosition()
	require.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Second), cur.ReceivedAt)
	assert.Equal(t, t0, a.Path()[0].ReceivedAt)
}

func TestAccumulator_OutOfOrderDropped(t *testing.T) {
	a := NewAccumulator(0)

	a.Append(sample(1, 1, 10*time.Second))
	assert.Equal(t, OutOfOrder, a.Append(sample(2, 2, 5*time.Second)))
	assert.Equal(t, 1, a.Len())

	// Equal timestamps are accepted.
	assert.Equal(t, Appended, a.Append(sample(2, 2, 10*time.Second)))
}

func TestAccumulator_BoundedEvictsOldest(t *testing.T) {
	a := NewAccumulator(3)

	for i := 0; i < 5; i++ {
		a.Append(sample(float64(i)*0.001, 0, time.Duration(i)*time.Second))
	}

	path := a.Path()
	require.Len(t, path, 3)
	assert.Equal(t, 0.002, path[0].Latitude)
	assert.Equal(t, 0.004, path[2].Latitude)
	assert.InDelta(t, Haversine(path[0], path[1])+Haversine(path[1], path[2]), a.Distance(), 1e-6)
}

func TestAccumulator_PathIsSnapshot(t *testing.T) {
	a := NewAccumulator(0)
	a.Append(sample(1, 1, 0))

	path := a.Path()
	path[0].Latitude = 42

	assert.Equal(t, 1.0, a.Path()[0].Latitude)
}

// Property: for any sequence of samples, the path is non-decreasing in time and
// never holds two consecutive identical coordinates.
func TestAccumulator_PathProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for run := 0; run < 200; run++ {
		a := NewAccumulator(r.IntN(20))
		at := t0
		for i := 0; i < 100; i++ {
			at = at.Add(time.Duration(r.IntN(3)-1) * time.Second)
			a.Append(sample(float64(r.IntN(3)), float64(r.IntN(3)), at.Sub(t0)))
		}

		path := a.Path()
		for i := 1; i < len(path); i++ {
			assert.False(t, path[i].ReceivedAt.Before(path[i-1].ReceivedAt))
			assert.False(t, path[i].SamePosition(path[i-1]))
		}
	}
}

func TestAccumulator_ConcurrentReaders(t *testing.T) {
	a := NewAccumulator(50)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = a.Path()
					_, _ = a.CurrentPosition()
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		a.Append(sample(float64(i%90), 0, time.Duration(i)*time.Millisecond))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 50, a.Len())
}

func TestHaversine(t *testing.T) {
	// One degree of latitude is about 111.2 km.
	assert.InDelta(t, 111195, Haversine(sample(0, 0, 0), sample(1, 0, 0)), 10)
	assert.Zero(t, Haversine(sample(5, 5, 0), sample(5, 5, 0)))
}
