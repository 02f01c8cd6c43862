package audio

import (
	"errors"
	"sync"
)

// ErrCaptureStopped is returned by Start after Stop has been called.
var ErrCaptureStopped = errors.New("capture stopped")

// Tap keeps the latest captured frame for level metering.
type Tap struct {
	mu     sync.Mutex
	latest []float32
}

// Store replaces the kept frame. The frame must not be modified afterwards.
func (t *Tap) Store(frame []float32) {
	t.mu.Lock()
	t.latest = frame
	t.mu.Unlock()
}

// Load copies the kept frame into dst.
func (t *Tap) Load(dst []float32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copy(dst, t.latest)
}
