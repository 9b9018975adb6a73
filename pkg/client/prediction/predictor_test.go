package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
)

const stepX = constants.MoveSpeed * constants.SimDeltaTime

func newTestPredictor() *Predictor {
	return NewPredictor(NewPredictorOptions{
		Initial: types.EntityState{Hitpoints: constants.PlayerHitpoints},
	})
}

func applyInputs(p *Predictor, fromTick, toTick uint32) {
	for tick := fromTick; tick <= toTick; tick++ {
		p.ApplyInput(messages.InputSnapshot{Tick: tick, MoveX: 1})
	}
}

func snapshotAt(ackTick uint32, position kinematic.Vector) messages.EntitySnapshot {
	return messages.EntitySnapshot{
		Tick:      ackTick,
		AckTick:   ackTick,
		Position:  position,
		Hitpoints: constants.PlayerHitpoints,
	}
}

func TestPredictor_applyInputAdvancesState(t *testing.T) {
	p := newTestPredictor()
	applyInputs(p, 1, 3)

	assert.InDelta(t, 3*stepX, p.State().Position.X, 1e-9)
	assert.Equal(t, 3, p.Pending())
}

func TestPredictor_reconcileWithinEpsilonIsANoop(t *testing.T) {
	p := newTestPredictor()
	applyInputs(p, 1, 5)
	stateBefore := p.State()

	// the server agrees with the prediction for tick 3
	correction := p.Reconcile(snapshotAt(3, kinematic.Vector{X: 3 * stepX}))

	assert.False(t, correction.Stale)
	assert.False(t, correction.Resimulated)
	assert.LessOrEqual(t, correction.Magnitude, constants.CorrectionEpsilon)
	assert.Equal(t, stateBefore.Position, p.State().Position)
	assert.Equal(t, kinematic.Vector{}, p.PendingCorrection())
	assert.Equal(t, 2, p.Pending(), "acknowledged inputs are discarded")
}

func TestPredictor_smallErrorBlendsSmoothly(t *testing.T) {
	p := newTestPredictor()
	applyInputs(p, 1, 5)
	stateBefore := p.State()

	// 0.3 of drift: above epsilon, below the rollback threshold
	correction := p.Reconcile(snapshotAt(3, kinematic.Vector{X: 3*stepX + 0.3}))

	require.False(t, correction.Resimulated)
	assert.InDelta(t, 0.3, correction.Magnitude, 1e-9)
	assert.InDelta(t, 0.3, p.PendingCorrection().X, 1e-9)
	assert.Equal(t, stateBefore.Position, p.State().Position, "blend happens in Update, not Reconcile")

	p.Update()
	assert.InDelta(t, stateBefore.Position.X+0.3*constants.CorrectionSmoothing, p.State().Position.X, 1e-9)
	assert.InDelta(t, 0.3*(1-constants.CorrectionSmoothing), p.PendingCorrection().X, 1e-9)
}

func TestPredictor_largeErrorRollsBackAndReplays(t *testing.T) {
	p := newTestPredictor()
	applyInputs(p, 96, 104)

	// the server disagrees by 0.6 at tick 100; inputs 101..104 must be
	// replayed on top of the authoritative position
	recorded, ok := p.recordedAt(100)
	require.True(t, ok)
	serverPosition := recorded.State.Position.Add(kinematic.Vector{X: 0.6})

	correction := p.Reconcile(snapshotAt(100, serverPosition))

	require.True(t, correction.Resimulated)
	assert.InDelta(t, 0.6, correction.Magnitude, 1e-9)
	assert.Equal(t, 4, p.Pending())
	assert.InDelta(t, serverPosition.X+4*stepX, p.State().Position.X, 1e-9)
	assert.Equal(t, kinematic.Vector{}, p.PendingCorrection(), "rollback discards any pending blend")
}

func TestPredictor_staleSnapshotIsIgnored(t *testing.T) {
	p := newTestPredictor()
	applyInputs(p, 1, 5)

	first := p.Reconcile(snapshotAt(4, kinematic.Vector{X: 4 * stepX}))
	require.False(t, first.Stale)

	stateBefore := p.State()
	stale := p.Reconcile(snapshotAt(3, kinematic.Vector{X: 100}))

	assert.True(t, stale.Stale)
	assert.Equal(t, stateBefore, p.State())
}

func TestPredictor_reconcileTakesAuthoritativeHitpoints(t *testing.T) {
	p := newTestPredictor()
	applyInputs(p, 1, 3)

	snap := snapshotAt(2, kinematic.Vector{X: 2 * stepX})
	snap.Hitpoints = 40
	snap.Downed = false
	p.Reconcile(snap)

	assert.Equal(t, int16(40), p.State().Hitpoints)
}

func TestPredictor_reconcileBeyondHistoryResimulates(t *testing.T) {
	p := newTestPredictor()
	applyInputs(p, 10, 12)

	// tick 5 was never predicted (history starts at 10), so the snapshot
	// is taken wholesale
	correction := p.Reconcile(snapshotAt(5, kinematic.Vector{X: 42}))

	assert.True(t, correction.Resimulated)
	assert.InDelta(t, 42+3*stepX, p.State().Position.X, 1e-9)
}
