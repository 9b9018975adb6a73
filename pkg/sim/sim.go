// Package sim holds the deterministic movement step shared by the server
// simulation and client-side prediction. Given the same starting state and
// the same input, both must produce the same result.
package sim

import (
	"math"

	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
)

// Stepper advances an entity state by one fixed step.
type Stepper interface {
	// Apply advances the state by dt seconds under the given input.
	Apply(s *types.EntityState, in messages.InputSnapshot, dt float64)
	// ApplyAuthoritative overwrites the state from a server snapshot.
	ApplyAuthoritative(s *types.EntityState, snap messages.EntitySnapshot)
}

// KinematicStepper is the standard movement model: direct velocity from
// the move axes, halved while blocking, frozen during hitstun.
type KinematicStepper struct{}

func NewKinematicStepper() *KinematicStepper {
	return &KinematicStepper{}
}

func (k *KinematicStepper) Apply(s *types.EntityState, in messages.InputSnapshot, dt float64) {
	if s.Downed {
		s.Velocity.X = 0
		s.Velocity.Y = 0
		return
	}

	if s.HitstunTicks > 0 {
		// Staggered entities keep their knockback momentum, shedding it
		// under constant friction, and ignore their own inputs.
		s.HitstunTicks--
		speed := s.Velocity.Length()
		if speed > 0 {
			decel := constants.KnockbackFriction
			if decel*dt > speed {
				decel = speed / dt
			}
			direction := s.Velocity.Scale(1 / speed)
			s.Position = s.Position.Add(direction.Scale(kinematic.Displacement(speed, dt, -decel)))
			s.Velocity = direction.Scale(kinematic.FinalVelocity(speed, dt, -decel))
		}
		return
	}

	moveX, moveY := clampAxis(in.MoveX), clampAxis(in.MoveY)
	length := math.Sqrt(moveX*moveX + moveY*moveY)
	if length > 1 {
		moveX /= length
		moveY /= length
	}

	speed := constants.MoveSpeed
	if in.Actions&messages.ActionBlock != 0 {
		speed *= constants.BlockSpeedFactor
	}

	s.Velocity.X = moveX * speed
	s.Velocity.Y = moveY * speed
	s.Position = s.Position.Add(s.Velocity.Scale(dt))

	if in.AimX != 0 || in.AimY != 0 {
		s.Orientation.Yaw = math.Atan2(in.AimY, in.AimX) * 180 / math.Pi
	}
}

func (k *KinematicStepper) ApplyAuthoritative(s *types.EntityState, snap messages.EntitySnapshot) {
	s.ApplySnapshot(snap)
}

func clampAxis(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
