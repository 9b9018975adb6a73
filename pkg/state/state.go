package state

import (
	"context"

	"github.com/emberforge/vanguard/pkg/messages"
)

// WorldView is a read-only copy of the authoritative world at one tick,
// published by the game loop for observers outside it.
type WorldView struct {
	Tick      uint32                            `json:"tick"`
	Timestamp int64                             `json:"timestamp"`
	Zones     map[string][]uint32               `json:"zones"`
	Entities  map[uint32]messages.EntitySnapshot `json:"entities"`
	// Characters maps character IDs to their latest snapshot, for
	// persistence at save time.
	Characters map[int32]messages.EntitySnapshot `json:"characters"`
}

// StateManager provides shared access to the published world view.
// Implementations must be thread-safe.
type StateManager interface {
	// Get returns a copy of the current world view.
	Get(ctx context.Context) (*WorldView, error)
	// Set publishes a new world view.
	Set(ctx context.Context, view *WorldView) error
}
