package snapshots

import (
	"sync"

	"github.com/emberforge/vanguard/pkg/messages"
)

// Ring is a fixed-capacity history of entity snapshots ordered by tick.
// Pushes with a tick at or below the newest entry are rejected, so the
// ring only ever moves forward. Safe for concurrent use.
type Ring struct {
	mu       sync.RWMutex
	capacity int
	entries  []messages.EntitySnapshot
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		capacity: capacity,
		entries:  make([]messages.EntitySnapshot, 0, capacity),
	}
}

// Push appends a snapshot. It reports whether the snapshot was accepted;
// stale or duplicate ticks are dropped.
func (r *Ring) Push(snap messages.EntitySnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.entries); n > 0 && snap.Tick <= r.entries[n-1].Tick {
		return false
	}
	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:r.capacity-1]
	}
	r.entries = append(r.entries, snap)
	return true
}

// Latest returns the newest snapshot, if any.
func (r *Ring) Latest() (messages.EntitySnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return messages.EntitySnapshot{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// Oldest returns the oldest snapshot still held, if any.
func (r *Ring) Oldest() (messages.EntitySnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return messages.EntitySnapshot{}, false
	}
	return r.entries[0], true
}

// At returns the snapshot recorded for the given tick, if it is still held.
func (r *Ring) At(tick uint32) (messages.EntitySnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Tick == tick {
			return r.entries[i], true
		}
		if r.entries[i].Tick < tick {
			break
		}
	}
	return messages.EntitySnapshot{}, false
}

// Bracket returns the pair of snapshots whose timestamps straddle the
// given render time. ok is false when the time is outside the held range.
func (r *Ring) Bracket(renderTime int64) (from messages.EntitySnapshot, to messages.EntitySnapshot, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.entries) - 1; i > 0; i-- {
		if r.entries[i-1].Timestamp <= renderTime && renderTime <= r.entries[i].Timestamp {
			return r.entries[i-1], r.entries[i], true
		}
	}
	return messages.EntitySnapshot{}, messages.EntitySnapshot{}, false
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
