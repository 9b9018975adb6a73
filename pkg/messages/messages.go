package messages

import (
	"encoding/json"

	"github.com/emberforge/vanguard/pkg/kinematic"
)

const (
	// TCPMessageBufferSize represents the maximum size of a framed TCP message
	TCPMessageBufferSize = 64 * 1024
	// UDPMessageBufferSize represents the maximum size of a UDP datagram
	UDPMessageBufferSize = 8 * 1024
)

// MessageType identifies one kind in the closed message set.
type MessageType byte

const (
	MessageTypeClientPing MessageType = iota + 1
	MessageTypeServerPong
	MessageTypeClientRegister
	MessageTypeServerRegisterSuccess
	MessageTypeServerRegisterFailure
	MessageTypeClientInput
	MessageTypeServerWorldState
	MessageTypeServerInitialSync
	MessageTypeClientEquipRequest
	MessageTypeServerEquipResult
	MessageTypeClientHitRequest
	MessageTypeServerHitResult
	MessageTypeServerZoneLoad
	MessageTypeServerPeerJoined
	MessageTypeServerPeerLeft
	MessageTypeServerDisconnect
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeClientPing:
		return "client-ping"
	case MessageTypeServerPong:
		return "server-pong"
	case MessageTypeClientRegister:
		return "client-register"
	case MessageTypeServerRegisterSuccess:
		return "server-register-success"
	case MessageTypeServerRegisterFailure:
		return "server-register-failure"
	case MessageTypeClientInput:
		return "client-input"
	case MessageTypeServerWorldState:
		return "server-world-state"
	case MessageTypeServerInitialSync:
		return "server-initial-sync"
	case MessageTypeClientEquipRequest:
		return "client-equip-request"
	case MessageTypeServerEquipResult:
		return "server-equip-result"
	case MessageTypeClientHitRequest:
		return "client-hit-request"
	case MessageTypeServerHitResult:
		return "server-hit-result"
	case MessageTypeServerZoneLoad:
		return "server-zone-load"
	case MessageTypeServerPeerJoined:
		return "server-peer-joined"
	case MessageTypeServerPeerLeft:
		return "server-peer-left"
	case MessageTypeServerDisconnect:
		return "server-disconnect"
	default:
		return "unknown"
	}
}

// Message is the wire envelope for all messages.
// PeerID 0 means the message is from the server.
type Message struct {
	PeerID  uint32          `json:"peerID"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ClientPing is sent over the unreliable channel at the heartbeat interval.
// EchoTimestamp returns the server timestamp of the last pong so the server
// can measure its own round trip on its own clock.
type ClientPing struct {
	Timestamp     int64 `json:"timestamp"`
	EchoTimestamp int64 `json:"echoTimestamp,omitempty"`
}

// ServerPong echoes the client timestamp and carries the server's own.
type ServerPong struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	Timestamp       int64 `json:"timestamp"`
}

// ClientRegister is the reliable registration handshake.
type ClientRegister struct {
	Token       string `json:"token"`
	DisplayName string `json:"displayName"`
	CharacterID int32  `json:"characterID"`
	Zone        string `json:"zone,omitempty"`
}

type ServerRegisterSuccess struct {
	PeerID       uint32 `json:"peerID"`
	SessionToken string `json:"sessionToken"`
	Zone         string `json:"zone"`
}

type ServerRegisterFailure struct {
	Reason string `json:"reason"`
}

// Input action bitmask values.
const (
	ActionAttack uint32 = 1 << iota
	ActionBlock
	ActionDash
	ActionInteract
)

// InputSnapshot is one fixed-rate sample of a peer's control state.
// Tick is monotonic and scoped to the sending peer. Immutable once created.
type InputSnapshot struct {
	Tick      uint32  `json:"tick"`
	Timestamp int64   `json:"timestamp"`
	MoveX     float64 `json:"moveX"`
	MoveY     float64 `json:"moveY"`
	AimX      float64 `json:"aimX"`
	AimY      float64 `json:"aimY"`
	Actions   uint32  `json:"actions"`
}

// ClientInput carries the newest input snapshot plus up to the redundancy
// window of preceding unacknowledged snapshots, oldest first.
type ClientInput struct {
	Snapshots []InputSnapshot `json:"snapshots"`
}

// EntitySnapshot is the authoritative state of one entity at one tick.
// AckTick is the last input tick the server processed for the controlling
// peer; clients reconcile predictions against it.
type EntitySnapshot struct {
	Tick        uint32                `json:"tick"`
	Timestamp   int64                 `json:"timestamp"`
	Position    kinematic.Vector      `json:"position"`
	Velocity    kinematic.Vector      `json:"velocity"`
	Orientation kinematic.Orientation `json:"orientation"`
	AckTick     uint32                `json:"ackTick"`
	Hitpoints   int16                 `json:"hitpoints"`
	Downed      bool                  `json:"downed"`
	Custom      map[string]float64    `json:"custom,omitempty"`
}

// ServerWorldState is the per-zone unreliable broadcast, one per tick.
type ServerWorldState struct {
	Tick      uint32                    `json:"tick"`
	Timestamp int64                     `json:"timestamp"`
	Entities  map[uint32]EntitySnapshot `json:"entities"`
}

type PeerInfo struct {
	PeerID      uint32 `json:"peerID"`
	DisplayName string `json:"displayName"`
	Zone        string `json:"zone"`
}

// ServerInitialSync is sent reliably once after registration and after each
// zone transition: the current tick, the zone's full state, and the roster.
type ServerInitialSync struct {
	Tick      uint32                    `json:"tick"`
	Timestamp int64                     `json:"timestamp"`
	Zone      string                    `json:"zone"`
	Entities  map[uint32]EntitySnapshot `json:"entities"`
	Roster    []PeerInfo                `json:"roster"`
}

type ClientEquipRequest struct {
	Slot   string `json:"slot"`
	ItemID string `json:"itemID"`
}

type ServerEquipResult struct {
	PeerID uint32 `json:"peerID"`
	Slot   string `json:"slot"`
	ItemID string `json:"itemID"`
}

// HitKind distinguishes a melee swing report from a projectile impact report.
type HitKind string

const (
	HitKindMelee      HitKind = "melee"
	HitKindProjectile HitKind = "projectile"
)

// ClientHitRequest is a client's claim that an attack connected. Claimed
// damage is carried for diagnostics only; the server never uses it.
type ClientHitRequest struct {
	TargetID      uint32           `json:"targetID"`
	WeaponID      string           `json:"weaponID"`
	Kind          HitKind          `json:"kind"`
	ClaimedDamage int16            `json:"claimedDamage,omitempty"`
	Impact        kinematic.Vector `json:"impact"`
}

// ServerHitResult is the validated outcome broadcast to the zone.
type ServerHitResult struct {
	AttackerID   uint32           `json:"attackerID"`
	TargetID     uint32           `json:"targetID"`
	WeaponID     string           `json:"weaponID"`
	Damage       int16            `json:"damage"`
	Knockback    kinematic.Vector `json:"knockback"`
	HitstunMs    int64            `json:"hitstunMs"`
	TargetDowned bool             `json:"targetDowned"`
}

// ServerZoneLoad instructs a client to attach to a zone's scene before any
// further zone-scoped state arrives.
type ServerZoneLoad struct {
	Zone     string `json:"zone"`
	SceneRef string `json:"sceneRef"`
}

type ServerPeerJoined struct {
	Peer  PeerInfo       `json:"peer"`
	State EntitySnapshot `json:"state"`
}

type ServerPeerLeft struct {
	PeerID uint32 `json:"peerID"`
	Reason string `json:"reason,omitempty"`
}

// ServerDisconnect carries the declared reason for a forced disconnect,
// delivered best-effort before teardown.
type ServerDisconnect struct {
	Reason string `json:"reason"`
}

// Disconnect reasons.
const (
	DisconnectReasonTimeout  = "timeout"
	DisconnectReasonKick     = "kick"
	DisconnectReasonShutdown = "shutdown"
)
