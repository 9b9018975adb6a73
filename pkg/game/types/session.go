package types

import (
	"github.com/solarlune/resolv"

	"github.com/emberforge/vanguard/pkg/queue"
	"github.com/emberforge/vanguard/pkg/snapshots"
)

// PeerSession is the server-side simulation record for one connected peer.
// It is owned by the game loop and only touched on the tick goroutine,
// except History which is internally synchronized.
type PeerSession struct {
	PeerID      uint32
	CharacterID int32
	AccountID   string
	DisplayName string

	State *EntityState
	// Body mirrors the entity position in the zone's collision space.
	Body *resolv.Object
	// History holds recent authoritative snapshots for lag compensation.
	History *snapshots.Ring
	// InputQueue is the peer's dedicated inbound input queue.
	InputQueue queue.Queue

	// LastInputTick is the newest input tick applied to the state.
	LastInputTick uint32
	// Loadout maps slot id to equipped weapon id.
	Loadout map[string]string
	// LastHitTime is the unix-millisecond time of the last validated hit.
	LastHitTime int64
}
