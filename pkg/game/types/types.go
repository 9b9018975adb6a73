package types

import (
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
)

// EntityState is the authoritative simulation state of one entity.
type EntityState struct {
	Position    kinematic.Vector
	Velocity    kinematic.Vector
	Orientation kinematic.Orientation
	Hitpoints   int16
	Downed      bool
	// HitstunTicks counts down while the entity is staggered and cannot
	// act on its own inputs.
	HitstunTicks int
}

// Snapshot captures the state as an entity snapshot for the given tick.
func (s *EntityState) Snapshot(tick uint32, timestamp int64, ackTick uint32) messages.EntitySnapshot {
	return messages.EntitySnapshot{
		Tick:        tick,
		Timestamp:   timestamp,
		Position:    s.Position,
		Velocity:    s.Velocity,
		Orientation: s.Orientation,
		AckTick:     ackTick,
		Hitpoints:   s.Hitpoints,
		Downed:      s.Downed,
	}
}

// ApplySnapshot overwrites the state from an authoritative snapshot.
func (s *EntityState) ApplySnapshot(snap messages.EntitySnapshot) {
	s.Position = snap.Position
	s.Velocity = snap.Velocity
	s.Orientation = snap.Orientation
	s.Hitpoints = snap.Hitpoints
	s.Downed = snap.Downed
}

// ConnectPeerEvent asks the simulation to admit a peer whose character
// has been resolved by the connection worker.
type ConnectPeerEvent struct {
	PeerID      uint32
	CharacterID int32
	AccountID   string
	DisplayName string
	Zone        string
	State       EntityState
}

// DisconnectPeerEvent asks the simulation to remove a peer.
type DisconnectPeerEvent struct {
	PeerID uint32
	Reason string
}

// ZoneTransitionEvent asks the simulation to move a peer between zones.
type ZoneTransitionEvent struct {
	PeerID uint32
	Zone   string
}
