package constants

import "time"

const (
	// TickRate is the fixed simulation rate in ticks per second.
	TickRate = 20
	// TickInterval is the wall-clock duration of one tick.
	TickInterval = time.Second / TickRate
	// SimDeltaTime is the fixed simulation step in seconds.
	SimDeltaTime = 1.0 / float64(TickRate)

	// MoveSpeed is the base movement speed in units per second.
	MoveSpeed = 6.0
	// BlockSpeedFactor scales movement while blocking.
	BlockSpeedFactor = 0.5
	// MaxEntitySpeed bounds how fast any entity can move, used to widen
	// range checks by the attacker's latency.
	MaxEntitySpeed = MoveSpeed

	// HeartbeatInterval is how often clients ping and the server sweeps.
	HeartbeatInterval = 1 * time.Second
	// HeartbeatMaxMissed is the number of missed heartbeats before a
	// session is considered dead.
	HeartbeatMaxMissed = 5
	// LatencyWindowSize is the number of round-trip samples averaged into
	// the latency estimate.
	LatencyWindowSize = 10

	// InputRedundancy is how many previous unacknowledged input snapshots
	// accompany each new one.
	InputRedundancy = 3
	// InputHistorySize caps the client's unacknowledged input buffer.
	InputHistorySize = 64

	// SnapshotHistorySize is the per-entity snapshot ring capacity, two
	// seconds of history at the tick rate plus headroom.
	SnapshotHistorySize = 64
	// MaxPredictedStates caps the client's predicted-state history.
	MaxPredictedStates = 128

	// InterpolationDelayMs is how far behind the newest snapshot remote
	// entities are rendered.
	InterpolationDelayMs = 100
	// MaxExtrapolationMs bounds dead reckoning past the newest snapshot.
	MaxExtrapolationMs = 250

	// CorrectionEpsilon is the prediction error below which corrections
	// are ignored.
	CorrectionEpsilon = 0.01
	// MaxPredictionError is the error at or above which the client rolls
	// back and resimulates instead of blending.
	MaxPredictionError = 0.5
	// CorrectionSmoothing is the per-frame blend fraction for small
	// corrections.
	CorrectionSmoothing = 0.2

	// HitCooldownMs is the minimum interval between validated hits from
	// one attacker.
	HitCooldownMs = 200
	// MaxMeleeRange is the farthest any melee hit can land, before lag
	// compensation.
	MaxMeleeRange = 5.0
	// MaxDamage clamps damage applied by a single hit.
	MaxDamage = 200
	// MaxKnockback clamps knockback speed applied by a single hit.
	MaxKnockback = 50.0
	// MaxHitstunMs clamps hitstun applied by a single hit.
	MaxHitstunMs = 1000
	// ImpactMargin widens projectile impact checks to absorb
	// interpolation error.
	ImpactMargin = 0.75
	// KnockbackFriction is the constant deceleration, in units per
	// second squared, that sheds knockback momentum during hitstun.
	KnockbackFriction = 40.0

	// PlayerHitpoints is the spawn hitpoint total.
	PlayerHitpoints = 100

	// DefaultZone is where peers land when registration names no zone.
	DefaultZone = "hub"

	// PlayerWidth and PlayerHeight size the collision body.
	PlayerWidth  = 1.0
	PlayerHeight = 2.0

	// SpawnX and SpawnY are the default spawn position.
	SpawnX = 512.0
	SpawnY = 512.0
)
