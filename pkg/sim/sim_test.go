package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
)

func TestKinematicStepper_Apply(t *testing.T) {
	tests := []struct {
		name    string
		state   types.EntityState
		input   messages.InputSnapshot
		wantPos kinematic.Vector
		wantVel kinematic.Vector
	}{
		{
			name:    "walk right",
			input:   messages.InputSnapshot{MoveX: 1},
			wantPos: kinematic.Vector{X: constants.MoveSpeed * constants.SimDeltaTime},
			wantVel: kinematic.Vector{X: constants.MoveSpeed},
		},
		{
			name:    "diagonal movement is normalized",
			input:   messages.InputSnapshot{MoveX: 1, MoveY: 1},
			wantPos: kinematic.Vector{X: constants.MoveSpeed / math.Sqrt2 * constants.SimDeltaTime, Y: constants.MoveSpeed / math.Sqrt2 * constants.SimDeltaTime},
			wantVel: kinematic.Vector{X: constants.MoveSpeed / math.Sqrt2, Y: constants.MoveSpeed / math.Sqrt2},
		},
		{
			name:    "axes are clamped",
			input:   messages.InputSnapshot{MoveX: 50},
			wantPos: kinematic.Vector{X: constants.MoveSpeed * constants.SimDeltaTime},
			wantVel: kinematic.Vector{X: constants.MoveSpeed},
		},
		{
			name:    "blocking halves speed",
			input:   messages.InputSnapshot{MoveX: 1, Actions: messages.ActionBlock},
			wantPos: kinematic.Vector{X: constants.MoveSpeed * constants.BlockSpeedFactor * constants.SimDeltaTime},
			wantVel: kinematic.Vector{X: constants.MoveSpeed * constants.BlockSpeedFactor},
		},
		{
			name:    "downed entities do not move",
			state:   types.EntityState{Downed: true, Velocity: kinematic.Vector{X: 10}},
			input:   messages.InputSnapshot{MoveX: 1},
			wantPos: kinematic.Vector{},
			wantVel: kinematic.Vector{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stepper := NewKinematicStepper()
			state := tt.state
			stepper.Apply(&state, tt.input, constants.SimDeltaTime)

			assert.InDelta(t, tt.wantPos.X, state.Position.X, 1e-9)
			assert.InDelta(t, tt.wantPos.Y, state.Position.Y, 1e-9)
			assert.InDelta(t, tt.wantVel.X, state.Velocity.X, 1e-9)
			assert.InDelta(t, tt.wantVel.Y, state.Velocity.Y, 1e-9)
		})
	}
}

func TestKinematicStepper_hitstunIgnoresInputs(t *testing.T) {
	stepper := NewKinematicStepper()
	state := types.EntityState{
		Velocity:     kinematic.Vector{X: 10},
		HitstunTicks: 2,
	}

	stepper.Apply(&state, messages.InputSnapshot{MoveX: -1}, constants.SimDeltaTime)

	// displacement under constant friction: v*t - 0.5*a*t^2
	wantDisplacement := 10*constants.SimDeltaTime - 0.5*constants.KnockbackFriction*constants.SimDeltaTime*constants.SimDeltaTime

	assert.Equal(t, 1, state.HitstunTicks)
	assert.InDelta(t, wantDisplacement, state.Position.X, 1e-9, "knockback momentum carries the entity")
	assert.InDelta(t, 10-constants.KnockbackFriction*constants.SimDeltaTime, state.Velocity.X, 1e-9, "momentum sheds under friction")

	stepper.Apply(&state, messages.InputSnapshot{MoveX: -1}, constants.SimDeltaTime)
	assert.Equal(t, 0, state.HitstunTicks)

	// with hitstun over, inputs apply again
	stepper.Apply(&state, messages.InputSnapshot{MoveX: -1}, constants.SimDeltaTime)
	assert.InDelta(t, -constants.MoveSpeed, state.Velocity.X, 1e-9)
}

func TestKinematicStepper_aimSetsOrientation(t *testing.T) {
	stepper := NewKinematicStepper()
	state := types.EntityState{Orientation: kinematic.Orientation{Yaw: 45}}

	stepper.Apply(&state, messages.InputSnapshot{AimX: 0, AimY: 1}, constants.SimDeltaTime)
	assert.InDelta(t, 90.0, state.Orientation.Yaw, 1e-9)

	// no aim input leaves the orientation alone
	stepper.Apply(&state, messages.InputSnapshot{}, constants.SimDeltaTime)
	assert.InDelta(t, 90.0, state.Orientation.Yaw, 1e-9)
}

func TestKinematicStepper_isDeterministic(t *testing.T) {
	inputs := []messages.InputSnapshot{
		{Tick: 1, MoveX: 1},
		{Tick: 2, MoveX: 1, MoveY: -0.5},
		{Tick: 3, MoveY: 1, Actions: messages.ActionBlock},
		{Tick: 4, MoveX: -1, AimX: 1},
	}

	run := func() types.EntityState {
		stepper := NewKinematicStepper()
		state := types.EntityState{Hitpoints: constants.PlayerHitpoints}
		for _, in := range inputs {
			stepper.Apply(&state, in, constants.SimDeltaTime)
		}
		return state
	}

	assert.Equal(t, run(), run(), "same inputs must produce bit-identical state")
}
