package handoff

import (
	"sync"
	"time"
)

// Snapshot is the content of a LiveBuffer slot.
type Snapshot[T any] struct {
	Value T
	At    time.Time // wall-clock time of the push
}

// LiveBuffer is a single-slot relay of the latest value. Every Push
// overwrites the slot, so a reader polling slower than the producer only
// sees the newest value.
type LiveBuffer[T any] struct {
	mu    sync.Mutex
	snap  Snapshot[T]
	fresh bool
	now   func() time.Time
}

// NewLiveBuffer returns an empty, stale buffer.
func NewLiveBuffer[T any]() *LiveBuffer[T] {
	return &LiveBuffer[T]{now: time.Now}
}

// Push overwrites the slot and marks it fresh.
func (b *LiveBuffer[T]) Push(v T) {
	b.mu.Lock()
	b.snap = Snapshot[T]{Value: v, At: b.now()}
	b.fresh = true
	b.mu.Unlock()
}

// ReadIfFresh returns the slot and clears the freshness flag. The boolean is
// false if nothing was pushed since the previous read.
func (b *LiveBuffer[T]) ReadIfFresh() (Snapshot[T], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.fresh {
		return Snapshot[T]{}, false
	}
	b.fresh = false
	return b.snap, true
}
