package network

import (
	"sync"

	"github.com/emberforge/vanguard/pkg/queue"
)

// InputQueueCapacity bounds each peer's inbound input queue
const InputQueueCapacity = 256

// InputRegistry holds one dedicated inbound input queue per peer, so one
// flooding peer cannot starve the others.
type InputRegistry struct {
	mu     sync.RWMutex
	queues map[uint32]queue.Queue
}

func NewInputRegistry() *InputRegistry {
	return &InputRegistry{
		queues: make(map[uint32]queue.Queue),
	}
}

// Register creates and returns the queue for a peer. Registering an
// already-registered peer returns the existing queue.
func (r *InputRegistry) Register(peerID uint32) queue.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[peerID]; ok {
		return q
	}
	q := queue.NewInMemoryQueue(InputQueueCapacity)
	r.queues[peerID] = q
	return q
}

// Unregister drops a peer's queue.
func (r *InputRegistry) Unregister(peerID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, peerID)
}

// Get returns the queue for a peer, if registered.
func (r *InputRegistry) Get(peerID uint32) (queue.Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[peerID]
	return q, ok
}
