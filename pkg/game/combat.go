package game

import (
	"context"
	"encoding/json"
	"time"

	"github.com/solarlune/resolv"

	"github.com/emberforge/vanguard/pkg/armory"
	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
)

// processActions drains the action queue and validates every equip and
// hit request against the server's own state. Client-supplied numbers
// are never trusted.
func (gm *GameManager) processActions(ctx context.Context) {
	pendingActions, err := gm.actionQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read action queue: %v", err)
		return
	}
	for _, item := range pendingActions {
		message, ok := item.(*messages.Message)
		if !ok {
			log.Error("Failed to cast action queue item to messages.Message")
			continue
		}

		switch message.Type {
		case messages.MessageTypeClientEquipRequest:
			gm.handleEquipRequest(ctx, message)
		case messages.MessageTypeClientHitRequest:
			gm.handleHitRequest(ctx, message)
		default:
			log.Error("Unhandled action message type: %s", message.Type)
		}
	}
}

func (gm *GameManager) handleEquipRequest(ctx context.Context, message *messages.Message) {
	session, ok := gm.sessions[message.PeerID]
	if !ok {
		log.Warn("Equip request from peer %d with no session", message.PeerID)
		return
	}

	request := &messages.ClientEquipRequest{}
	if err := json.Unmarshal(message.Payload, request); err != nil {
		log.Error("Failed to unmarshal equip request from peer %d: %v", message.PeerID, err)
		return
	}

	slot, ok := gm.catalog.Slot(request.Slot)
	if !ok {
		gm.metrics.IncEquipsRejected()
		log.Warn("Peer %d tried to equip into unknown slot %s", message.PeerID, request.Slot)
		return
	}
	weapon, ok := gm.catalog.Weapon(request.ItemID)
	if !ok {
		gm.metrics.IncEquipsRejected()
		log.Warn("Peer %d tried to equip unknown weapon %s", message.PeerID, request.ItemID)
		return
	}
	if weapon.Size > slot.MaxSize {
		gm.metrics.IncEquipsRejected()
		log.Debug("Peer %d cannot equip %s weapon %s into %s slot %s",
			message.PeerID, weapon.Size, weapon.ID, slot.MaxSize, slot.ID)
		return
	}

	session.Loadout[slot.ID] = weapon.ID
	gm.metrics.IncEquipsApplied()

	zone, ok := gm.zones.Zone(message.PeerID)
	if !ok {
		return
	}
	gm.sendReliableToZone(ctx, zone, 0, messages.MessageTypeServerEquipResult, &messages.ServerEquipResult{
		PeerID: message.PeerID,
		Slot:   slot.ID,
		ItemID: weapon.ID,
	})
}

func (gm *GameManager) handleHitRequest(ctx context.Context, message *messages.Message) {
	attacker, ok := gm.sessions[message.PeerID]
	if !ok {
		log.Warn("Hit request from peer %d with no session", message.PeerID)
		return
	}

	request := &messages.ClientHitRequest{}
	if err := json.Unmarshal(message.Payload, request); err != nil {
		log.Error("Failed to unmarshal hit request from peer %d: %v", message.PeerID, err)
		return
	}

	target, ok := gm.sessions[request.TargetID]
	if !ok {
		// the target may have just disconnected; nothing to resolve
		log.Debug("Hit request from peer %d against absent target %d", message.PeerID, request.TargetID)
		return
	}

	if !gm.zones.SameZone(message.PeerID, request.TargetID) {
		gm.metrics.IncHitsRejected()
		log.Warn("Peer %d claimed a hit on peer %d in another zone", message.PeerID, request.TargetID)
		return
	}

	// the cooldown arms only when the rate check passes, so a burst of
	// rejected requests cannot push the window forward
	now := time.Now().UnixMilli()
	if now-attacker.LastHitTime < constants.HitCooldownMs {
		gm.metrics.IncHitsRateLimited()
		log.Debug("Peer %d hit request inside cooldown, dropping", message.PeerID)
		return
	}

	weapon, ok := gm.equippedWeapon(attacker, request.WeaponID)
	if !ok {
		gm.metrics.IncHitsRejected()
		log.Warn("Peer %d claimed a hit with unequipped weapon %s", message.PeerID, request.WeaponID)
		return
	}

	switch request.Kind {
	case messages.HitKindMelee, "":
		if !gm.validateMeleeHit(attacker, target) {
			gm.metrics.IncHitsRejected()
			return
		}
	case messages.HitKindProjectile:
		if !gm.validateProjectileImpact(attacker, target, request) {
			gm.metrics.IncHitsRejected()
			return
		}
	default:
		gm.metrics.IncHitsRejected()
		log.Warn("Peer %d sent hit request of unknown kind %s", message.PeerID, request.Kind)
		return
	}

	attacker.LastHitTime = now
	gm.applyHit(ctx, attacker, target, weapon)
}

// equippedWeapon resolves the weapon for a hit from the attacker's
// server-held loadout. The claimed id only selects among weapons the
// server knows are equipped; an empty id resolves to bare hands, which
// are always available.
func (gm *GameManager) equippedWeapon(attacker *types.PeerSession, weaponID string) (armory.WeaponStats, bool) {
	if weaponID == "" {
		weaponID = armory.WeaponUnarmed
	}
	if weaponID != armory.WeaponUnarmed {
		equipped := false
		for _, id := range attacker.Loadout {
			if id == weaponID {
				equipped = true
				break
			}
		}
		if !equipped {
			return armory.WeaponStats{}, false
		}
	}
	return gm.catalog.Weapon(weaponID)
}

// validateMeleeHit checks the claimed hit against the server's own
// positions. The range bound is widened by how far the world can have
// moved during the attacker's latency.
func (gm *GameManager) validateMeleeHit(attacker, target *types.PeerSession) bool {
	distance := attacker.State.Position.DistanceTo(target.State.Position)
	latencySeconds := float64(gm.sender.Latency(attacker.PeerID)) / 1000.0
	allowed := constants.MaxMeleeRange + latencySeconds*constants.MaxEntitySpeed
	if distance > allowed {
		log.Debug("Peer %d melee hit at %.2f exceeds allowed range %.2f", attacker.PeerID, distance, allowed)
		return false
	}
	return true
}

// validateProjectileImpact probes the claimed impact point against the
// target's collision body, with a margin for interpolation error.
func (gm *GameManager) validateProjectileImpact(attacker, target *types.PeerSession, request *messages.ClientHitRequest) bool {
	zone, ok := gm.zones.Zone(target.PeerID)
	if !ok {
		return false
	}
	space := gm.space(zone)

	probe := resolv.NewObject(
		request.Impact.X-constants.ImpactMargin,
		request.Impact.Y-constants.ImpactMargin,
		constants.ImpactMargin*2,
		constants.ImpactMargin*2,
	)
	space.Add(probe)
	defer space.Remove(probe)

	if !probe.SharesCells(target.Body) {
		log.Debug("Peer %d projectile impact misses target %d", attacker.PeerID, target.PeerID)
		return false
	}
	return true
}

// applyHit resolves a validated hit: clamps the weapon's numbers, applies
// damage, knockback, and hitstun, and announces the result to the zone.
func (gm *GameManager) applyHit(ctx context.Context, attacker, target *types.PeerSession, weapon armory.WeaponStats) {
	damage := weapon.Damage
	if damage > constants.MaxDamage {
		damage = constants.MaxDamage
	}
	knockback := weapon.Knockback
	if knockback > constants.MaxKnockback {
		knockback = constants.MaxKnockback
	}
	hitstunMs := weapon.HitstunMs
	if hitstunMs > constants.MaxHitstunMs {
		hitstunMs = constants.MaxHitstunMs
	}

	target.State.Hitpoints -= damage
	if target.State.Hitpoints <= 0 {
		target.State.Hitpoints = 0
		target.State.Downed = true
	}

	direction := target.State.Position.Sub(attacker.State.Position).Normalized()
	target.State.Velocity = direction.Scale(knockback)
	target.State.HitstunTicks = int(hitstunMs * constants.TickRate / 1000)

	gm.metrics.IncHitsValidated()
	log.Debug("Peer %d hit peer %d with %s for %d", attacker.PeerID, target.PeerID, weapon.ID, damage)

	zone, ok := gm.zones.Zone(target.PeerID)
	if !ok {
		return
	}
	gm.sendReliableToZone(ctx, zone, 0, messages.MessageTypeServerHitResult, &messages.ServerHitResult{
		AttackerID:   attacker.PeerID,
		TargetID:     target.PeerID,
		WeaponID:     weapon.ID,
		Damage:       damage,
		Knockback:    direction.Scale(knockback),
		HitstunMs:    hitstunMs,
		TargetDowned: target.State.Downed,
	})
}
