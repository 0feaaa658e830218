package audio

import (
	"sync"
	"time"
)

// TimestampedBuffer is one inbound audio delivery together with the monotonic
// instant it arrived. Immutable once recorded.
type TimestampedBuffer struct {
	Samples []int16
	Arrival time.Time
}

// CaptureLog accumulates inbound audio buffers as they are delivered by
// transport callbacks. There is no backpressure: sessions are short, single
// shot conversations, so the log grows unbounded until the mixer consumes it.
//
// Delivery order is preserved as insertion order, but placement in the mix is
// decided by the arrival timestamp, never by position in the log.
type CaptureLog struct {
	mu      sync.Mutex
	buffers []TimestampedBuffer
}

// NewCaptureLog creates an empty capture log.
func NewCaptureLog() *CaptureLog {
	return &CaptureLog{}
}

// Append records a defensive copy of samples stamped with the current
// monotonic time. Safe to call from transport goroutines.
func (l *CaptureLog) Append(samples []int16) {
	l.appendAt(samples, time.Now())
}

func (l *CaptureLog) appendAt(samples []int16, at time.Time) {
	buf := make([]int16, len(samples))
	copy(buf, samples)

	l.mu.Lock()
	l.buffers = append(l.buffers, TimestampedBuffer{Samples: buf, Arrival: at})
	l.mu.Unlock()
}

// Len returns the number of recorded buffers.
func (l *CaptureLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffers)
}

// Snapshot returns a copy of the recorded buffers in insertion order. The
// returned slice is independent of the log; the sample slices are shared but
// immutable by convention.
func (l *CaptureLog) Snapshot() []TimestampedBuffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TimestampedBuffer, len(l.buffers))
	copy(out, l.buffers)
	return out
}
