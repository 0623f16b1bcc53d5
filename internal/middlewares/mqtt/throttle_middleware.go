package mqtt_middleware

import (
	"sync"
	"time"
)

// ThrottleMiddleware forwards at most one non-retained message per topic per
// interval; the rest are dropped. Retained messages always pass and reset the window.
type ThrottleMiddleware struct {
	interval time.Duration
	now      func() time.Time
	next     MQTTMiddleware

	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottleMiddleware(interval time.Duration) *ThrottleMiddleware {
	return &ThrottleMiddleware{
		interval: interval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

func (t *ThrottleMiddleware) SetNext(next MQTTMiddleware) {
	t.next = next
}

func (t *ThrottleMiddleware) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	now := t.now()
	t.mu.Lock()
	prev, seen := t.last[topic]
	if !retained && seen && now.Sub(prev) < t.interval {
		t.mu.Unlock()
		return nil
	}
	t.last[topic] = now
	t.mu.Unlock()

	return t.next.Publish(topic, qos, retained, payload)
}
