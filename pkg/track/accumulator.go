// Package track folds accepted location samples into an ordered path.
package track

import (
	"sync"

	"github.com/benmeehan/trailsafe/internal/models"
)

// AppendResult reports what Append did with a sample.
type AppendResult int

const (
	// Appended means the sample extended the path.
	Appended AppendResult = iota
	// Duplicate means the sample repeated the current coordinate; only the
	// current position timestamp moved.
	Duplicate
	// OutOfOrder means the sample was older than the current position and was dropped.
	OutOfOrder
)

func (r AppendResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Duplicate:
		return "duplicate"
	case OutOfOrder:
		return "out_of_order"
	default:
		return "unknown"
	}
}

// Accumulator holds the track of one session.
//
// A MaxLength of zero keeps the whole path in memory for the life of the
// session. Set it for long-running sessions; the oldest points are evicted first.
// Reads are safe concurrently with Append.
type Accumulator struct {
	maxLength int

	mu       sync.RWMutex
	path     []models.LocationSample
	current  models.LocationSample
	hasFix   bool
	distance float64
}

// NewAccumulator creates an accumulator. maxLength <= 0 means unbounded.
func NewAccumulator(maxLength int) *Accumulator {
	if maxLength < 0 {
		maxLength = 0
	}
	return &Accumulator{maxLength: maxLength}
}

// Append folds sample into the track.
func (a *Accumulator) Append(sample models.LocationSample) AppendResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hasFix {
		if sample.ReceivedAt.Before(a.current.ReceivedAt) {
			return OutOfOrder
		}
		if sample.SamePosition(a.current) {
			a.current = sample
			return Duplicate
		}
	}

	if n := len(a.path); n > 0 {
		a.distance += Haversine(a.path[n-1], sample)
	}
	a.path = append(a.path, sample)
	a.current = sample
	a.hasFix = true

	if a.maxLength > 0 && len(a.path) > a.maxLength {
		a.evictLocked(len(a.path) - a.maxLength)
	}
	return Appended
}

// evictLocked drops the n oldest points and the distance they contributed.
func (a *Accumulator) evictLocked(n int) {
	for i := 0; i < n; i++ {
		a.distance -= Haversine(a.path[i], a.path[i+1])
	}
	if a.distance < 0 {
		a.distance = 0
	}
	kept := make([]models.LocationSample, len(a.path)-n, a.maxLength)
	copy(kept, a.path[n:])
	a.path = kept
}

// CurrentPosition returns the latest accepted sample, if any.
func (a *Accumulator) CurrentPosition() (models.LocationSample, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current, a.hasFix
}

// Path returns a copy of the retained path in insertion order.
func (a *Accumulator) Path() []models.LocationSample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.LocationSample, len(a.path))
	copy(out, a.path)
	return out
}

// Len returns the number of retained path points.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.path)
}

// Distance returns the length in metres of the retained path.
func (a *Accumulator) Distance() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.distance
}
