package game

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/vanguard/pkg/armory"
	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
)

func enqueueHitRequest(t *testing.T, gm *GameManager, attackerID uint32, request *messages.ClientHitRequest) {
	t.Helper()
	payload, err := json.Marshal(request)
	require.NoError(t, err)
	require.NoError(t, gm.actionQueue.Enqueue(&messages.Message{
		PeerID:  attackerID,
		Type:    messages.MessageTypeClientHitRequest,
		Payload: payload,
	}))
}

func enqueueEquipRequest(t *testing.T, gm *GameManager, peerID uint32, request *messages.ClientEquipRequest) {
	t.Helper()
	payload, err := json.Marshal(request)
	require.NoError(t, err)
	require.NoError(t, gm.actionQueue.Enqueue(&messages.Message{
		PeerID:  peerID,
		Type:    messages.MessageTypeClientEquipRequest,
		Payload: payload,
	}))
}

func TestGameManager_hitRateLimit(t *testing.T) {
	tests := []struct {
		name        string
		sinceLastMs int64
		wantApplied bool
	}{
		{name: "immediate second swing is dropped", sinceLastMs: 0, wantApplied: false},
		{name: "swing at 150ms is dropped", sinceLastMs: 150, wantApplied: false},
		{name: "swing at 250ms lands", sinceLastMs: 250, wantApplied: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			gm := newTestGameManager(sender)
			ctx := context.Background()

			attacker := connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})
			target := connectTestPeer(t, gm, 2, "hub", kinematic.Vector{X: 1})

			attacker.LastHitTime = time.Now().UnixMilli() - tt.sinceLastMs
			enqueueHitRequest(t, gm, 1, &messages.ClientHitRequest{TargetID: 2})
			gm.processActions(ctx)

			if tt.wantApplied {
				assert.Equal(t, int16(constants.PlayerHitpoints-5), target.State.Hitpoints, "unarmed damage applied")
				assert.NotEmpty(t, sender.reliableOfType(messages.MessageTypeServerHitResult))
			} else {
				assert.Equal(t, int16(constants.PlayerHitpoints), target.State.Hitpoints)
				assert.Empty(t, sender.reliableOfType(messages.MessageTypeServerHitResult))
				assert.Equal(t, int64(1), gm.metrics.Snapshot()["hits_rate_limited"])
			}
		})
	}
}

func TestGameManager_hitRateLimitDoesNotRearmOnRejection(t *testing.T) {
	sender := &fakeSender{}
	gm := newTestGameManager(sender)
	ctx := context.Background()

	attacker := connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})
	connectTestPeer(t, gm, 2, "hub", kinematic.Vector{X: 1})

	// a rejected swing must not push the cooldown window forward
	armed := time.Now().UnixMilli() - 150
	attacker.LastHitTime = armed
	enqueueHitRequest(t, gm, 1, &messages.ClientHitRequest{TargetID: 2})
	gm.processActions(ctx)

	assert.Equal(t, armed, attacker.LastHitTime)
}

func TestGameManager_meleeRange(t *testing.T) {
	tests := []struct {
		name      string
		distance  float64
		latencyMs int64
		wantHit   bool
	}{
		{name: "inside range", distance: 4.99, wantHit: true},
		{name: "outside range", distance: 5.01, wantHit: false},
		{name: "outside range but covered by latency slack", distance: 5.5, latencyMs: 100, wantHit: true},
		{name: "beyond latency slack", distance: 5.7, latencyMs: 100, wantHit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{latency: tt.latencyMs}
			gm := newTestGameManager(sender)
			ctx := context.Background()

			connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})
			target := connectTestPeer(t, gm, 2, "hub", kinematic.Vector{X: tt.distance})

			enqueueHitRequest(t, gm, 1, &messages.ClientHitRequest{TargetID: 2, Kind: messages.HitKindMelee})
			gm.processActions(ctx)

			if tt.wantHit {
				assert.Less(t, target.State.Hitpoints, int16(constants.PlayerHitpoints))
			} else {
				assert.Equal(t, int16(constants.PlayerHitpoints), target.State.Hitpoints)
				assert.Equal(t, int64(1), gm.metrics.Snapshot()["hits_rejected"])
			}
		})
	}
}

func TestGameManager_damageIsClamped(t *testing.T) {
	catalog, err := armory.NewCatalog(
		[]armory.WeaponStats{
			{ID: armory.WeaponUnarmed, Size: armory.SizeSmall, Damage: 5, Reach: 1.5},
			{ID: "doomblade", Size: armory.SizeLarge, Damage: 10000, Knockback: 9000, HitstunMs: 60000, Reach: 3},
		},
		[]armory.Slot{{ID: "mainhand", MaxSize: armory.SizeLarge}},
	)
	require.NoError(t, err)

	sender := &fakeSender{}
	gm := newTestGameManager(sender)
	gm.catalog = catalog
	ctx := context.Background()

	connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})
	target := connectTestPeer(t, gm, 2, "hub", kinematic.Vector{X: 1})

	enqueueEquipRequest(t, gm, 1, &messages.ClientEquipRequest{Slot: "mainhand", ItemID: "doomblade"})
	enqueueHitRequest(t, gm, 1, &messages.ClientHitRequest{TargetID: 2, WeaponID: "doomblade"})
	gm.processActions(ctx)

	assert.Equal(t, int16(0), target.State.Hitpoints)
	assert.True(t, target.State.Downed)

	results := sender.reliableOfType(messages.MessageTypeServerHitResult)
	require.Len(t, results, 1)
	hitResult := &messages.ServerHitResult{}
	require.NoError(t, json.Unmarshal(results[0].msg.Payload, hitResult))
	assert.Equal(t, int16(constants.MaxDamage), hitResult.Damage)
	assert.Equal(t, int64(constants.MaxHitstunMs), hitResult.HitstunMs)
	assert.InDelta(t, constants.MaxKnockback, hitResult.Knockback.Length(), 1e-9)
}

func TestGameManager_hitRejections(t *testing.T) {
	tests := []struct {
		name       string
		targetZone string
		request    *messages.ClientHitRequest
		wantMetric string
	}{
		{
			name:       "weapon not in the attacker's loadout",
			targetZone: "hub",
			request:    &messages.ClientHitRequest{TargetID: 2, WeaponID: "excalibur"},
			wantMetric: "hits_rejected",
		},
		{
			name:       "target in another zone",
			targetZone: "arena",
			request:    &messages.ClientHitRequest{TargetID: 2},
			wantMetric: "hits_rejected",
		},
		{
			name:       "unknown hit kind",
			targetZone: "hub",
			request:    &messages.ClientHitRequest{TargetID: 2, Kind: "psychic"},
			wantMetric: "hits_rejected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			gm := newTestGameManager(sender)
			ctx := context.Background()

			connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})
			target := connectTestPeer(t, gm, 2, tt.targetZone, kinematic.Vector{X: 1})

			enqueueHitRequest(t, gm, 1, tt.request)
			gm.processActions(ctx)

			assert.Equal(t, int16(constants.PlayerHitpoints), target.State.Hitpoints)
			assert.Equal(t, int64(1), gm.metrics.Snapshot()[tt.wantMetric])
		})
	}
}

func TestGameManager_hitUsesServerHeldLoadout(t *testing.T) {
	sender := &fakeSender{}
	gm := newTestGameManager(sender)
	ctx := context.Background()

	attacker := connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})
	target := connectTestPeer(t, gm, 2, "hub", kinematic.Vector{X: 1})

	// the attacker holds nothing but bare hands, so claiming the
	// warhammer must not credit it with warhammer damage
	enqueueHitRequest(t, gm, 1, &messages.ClientHitRequest{TargetID: 2, WeaponID: "warhammer"})
	gm.processActions(ctx)

	assert.Equal(t, int16(constants.PlayerHitpoints), target.State.Hitpoints)
	assert.Equal(t, int64(1), gm.metrics.Snapshot()["hits_rejected"])
	assert.Equal(t, int64(0), attacker.LastHitTime, "rejected claim must not arm the cooldown")

	// once the server has seen the equip, the same claim lands with the
	// warhammer's catalog stats
	enqueueEquipRequest(t, gm, 1, &messages.ClientEquipRequest{Slot: "mainhand", ItemID: "warhammer"})
	enqueueHitRequest(t, gm, 1, &messages.ClientHitRequest{TargetID: 2, WeaponID: "warhammer"})
	gm.processActions(ctx)

	assert.Equal(t, int16(constants.PlayerHitpoints-35), target.State.Hitpoints)
}

func TestGameManager_hitAgainstAbsentTargetIsDropped(t *testing.T) {
	sender := &fakeSender{}
	gm := newTestGameManager(sender)
	ctx := context.Background()

	connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})

	enqueueHitRequest(t, gm, 1, &messages.ClientHitRequest{TargetID: 99})
	gm.processActions(ctx)

	snapshot := gm.metrics.Snapshot()
	assert.Equal(t, int64(0), snapshot["hits_validated"])
	assert.Equal(t, int64(0), snapshot["hits_rejected"])
}

func TestGameManager_projectileImpactValidation(t *testing.T) {
	tests := []struct {
		name    string
		impact  kinematic.Vector
		wantHit bool
	}{
		{name: "impact on the target body", impact: kinematic.Vector{X: 20, Y: 20}, wantHit: true},
		{name: "impact far from the target", impact: kinematic.Vector{X: 200, Y: 200}, wantHit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			gm := newTestGameManager(sender)
			ctx := context.Background()

			connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})
			target := connectTestPeer(t, gm, 2, "hub", kinematic.Vector{X: 20, Y: 20})

			enqueueEquipRequest(t, gm, 1, &messages.ClientEquipRequest{Slot: "belt", ItemID: "throwing_knife"})
			enqueueHitRequest(t, gm, 1, &messages.ClientHitRequest{
				TargetID: 2,
				WeaponID: "throwing_knife",
				Kind:     messages.HitKindProjectile,
				Impact:   tt.impact,
			})
			gm.processActions(ctx)

			if tt.wantHit {
				assert.Less(t, target.State.Hitpoints, int16(constants.PlayerHitpoints))
			} else {
				assert.Equal(t, int16(constants.PlayerHitpoints), target.State.Hitpoints)
			}
		})
	}
}

func TestGameManager_equipRequests(t *testing.T) {
	tests := []struct {
		name        string
		request     *messages.ClientEquipRequest
		wantApplied bool
	}{
		{
			name:        "large weapon fits the mainhand",
			request:     &messages.ClientEquipRequest{Slot: "mainhand", ItemID: "warhammer"},
			wantApplied: true,
		},
		{
			name:        "large weapon does not fit the offhand",
			request:     &messages.ClientEquipRequest{Slot: "offhand", ItemID: "warhammer"},
			wantApplied: false,
		},
		{
			name:        "small weapon fits the belt",
			request:     &messages.ClientEquipRequest{Slot: "belt", ItemID: "throwing_knife"},
			wantApplied: true,
		},
		{
			name:        "unknown weapon",
			request:     &messages.ClientEquipRequest{Slot: "mainhand", ItemID: "excalibur"},
			wantApplied: false,
		},
		{
			name:        "unknown slot",
			request:     &messages.ClientEquipRequest{Slot: "backpack", ItemID: "shortsword"},
			wantApplied: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			gm := newTestGameManager(sender)
			ctx := context.Background()

			session := connectTestPeer(t, gm, 1, "hub", kinematic.Vector{})

			enqueueEquipRequest(t, gm, 1, tt.request)
			gm.processActions(ctx)

			if tt.wantApplied {
				assert.Equal(t, tt.request.ItemID, session.Loadout[tt.request.Slot])
				results := sender.reliableOfType(messages.MessageTypeServerEquipResult)
				require.Len(t, results, 1)
				assert.Equal(t, int64(1), gm.metrics.Snapshot()["equips_applied"])
			} else {
				assert.NotEqual(t, tt.request.ItemID, session.Loadout[tt.request.Slot])
				assert.Empty(t, sender.reliableOfType(messages.MessageTypeServerEquipResult))
				assert.Equal(t, int64(1), gm.metrics.Snapshot()["equips_rejected"])
			}
		})
	}
}
