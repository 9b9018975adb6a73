// Package prediction advances the local entity immediately on input and
// reconciles it against authoritative snapshots, replaying unconfirmed
// inputs when the server disagrees beyond tolerance.
package prediction

import (
	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/sim"
)

// PredictedState is the entity state after applying one input locally.
type PredictedState struct {
	Tick  uint32
	Input messages.InputSnapshot
	State types.EntityState
}

// Correction reports what a reconciliation did.
type Correction struct {
	// Stale is true when the snapshot acknowledged nothing new.
	Stale bool
	// Magnitude is the position error against the prediction.
	Magnitude float64
	// Resimulated is true when the error forced a rollback and replay.
	Resimulated bool
}

type Predictor struct {
	stepper   sim.Stepper
	state     types.EntityState
	predicted []PredictedState

	lastConfirmed     uint32
	pendingCorrection kinematic.Vector

	epsilon      float64
	maxError     float64
	smoothing    float64
	maxPredicted int
}

type NewPredictorOptions struct {
	Stepper sim.Stepper
	Initial types.EntityState
	// Epsilon is the error below which corrections are ignored.
	Epsilon float64
	// MaxError is the error at or above which the predictor rolls back
	// and resimulates instead of blending.
	MaxError float64
	// Smoothing is the per-frame blend fraction for small corrections.
	Smoothing float64
	// MaxPredictedStates caps the predicted-state history.
	MaxPredictedStates int
}

func NewPredictor(opts NewPredictorOptions) *Predictor {
	stepper := opts.Stepper
	if stepper == nil {
		stepper = sim.NewKinematicStepper()
	}
	epsilon := opts.Epsilon
	if epsilon == 0 {
		epsilon = constants.CorrectionEpsilon
	}
	maxError := opts.MaxError
	if maxError == 0 {
		maxError = constants.MaxPredictionError
	}
	smoothing := opts.Smoothing
	if smoothing == 0 {
		smoothing = constants.CorrectionSmoothing
	}
	maxPredicted := opts.MaxPredictedStates
	if maxPredicted == 0 {
		maxPredicted = constants.MaxPredictedStates
	}
	return &Predictor{
		stepper:      stepper,
		state:        opts.Initial,
		epsilon:      epsilon,
		maxError:     maxError,
		smoothing:    smoothing,
		maxPredicted: maxPredicted,
	}
}

// State returns the current predicted state.
func (p *Predictor) State() types.EntityState {
	return p.state
}

// ApplyInput advances the predicted state by one input and records the
// result for later reconciliation.
func (p *Predictor) ApplyInput(in messages.InputSnapshot) types.EntityState {
	p.stepper.Apply(&p.state, in, constants.SimDeltaTime)

	p.predicted = append(p.predicted, PredictedState{
		Tick:  in.Tick,
		Input: in,
		State: p.state,
	})
	if len(p.predicted) > p.maxPredicted {
		p.predicted = p.predicted[len(p.predicted)-p.maxPredicted:]
	}

	return p.state
}

// Reconcile compares an authoritative snapshot against the prediction
// recorded for the input tick it acknowledges. Small errors are folded
// into a pending correction that Update blends out; errors at or above
// the rollback threshold replace the state and replay every input the
// server has not seen yet.
func (p *Predictor) Reconcile(snap messages.EntitySnapshot) Correction {
	if snap.AckTick <= p.lastConfirmed && p.lastConfirmed != 0 {
		return Correction{Stale: true}
	}
	p.lastConfirmed = snap.AckTick

	recorded, ok := p.recordedAt(snap.AckTick)
	p.discardThrough(snap.AckTick)

	// the server's word on health is never predicted
	p.state.Hitpoints = snap.Hitpoints
	p.state.Downed = snap.Downed

	if !ok {
		// history no longer covers the acknowledged tick; take the
		// snapshot wholesale and replay what remains
		return p.resimulate(snap)
	}

	errMagnitude := recorded.State.Position.DistanceTo(snap.Position)
	if errMagnitude <= p.epsilon {
		return Correction{Magnitude: errMagnitude}
	}

	if errMagnitude >= p.maxError {
		correction := p.resimulate(snap)
		correction.Magnitude = errMagnitude
		return correction
	}

	delta := snap.Position.Sub(recorded.State.Position)
	p.pendingCorrection = p.pendingCorrection.Add(delta)
	return Correction{Magnitude: errMagnitude}
}

// resimulate replaces the predicted state with the snapshot and replays
// every unacknowledged input on top of it, updating the recorded states
// along the way.
func (p *Predictor) resimulate(snap messages.EntitySnapshot) Correction {
	replayed := p.state
	p.stepper.ApplyAuthoritative(&replayed, snap)

	for i := range p.predicted {
		p.stepper.Apply(&replayed, p.predicted[i].Input, constants.SimDeltaTime)
		p.predicted[i].State = replayed
	}

	p.state = replayed
	p.pendingCorrection = kinematic.Vector{}
	return Correction{Resimulated: true}
}

// Update blends a fraction of any pending correction into the predicted
// state. Call once per frame.
func (p *Predictor) Update() {
	if p.pendingCorrection.Length() == 0 {
		return
	}
	if p.pendingCorrection.Length() <= p.epsilon {
		p.state.Position = p.state.Position.Add(p.pendingCorrection)
		p.pendingCorrection = kinematic.Vector{}
		return
	}

	step := p.pendingCorrection.Scale(p.smoothing)
	p.state.Position = p.state.Position.Add(step)
	p.pendingCorrection = p.pendingCorrection.Sub(step)
}

// PendingCorrection returns the correction not yet blended in.
func (p *Predictor) PendingCorrection() kinematic.Vector {
	return p.pendingCorrection
}

// Pending returns how many predicted states await acknowledgement.
func (p *Predictor) Pending() int {
	return len(p.predicted)
}

func (p *Predictor) recordedAt(tick uint32) (PredictedState, bool) {
	for i := len(p.predicted) - 1; i >= 0; i-- {
		if p.predicted[i].Tick == tick {
			return p.predicted[i], true
		}
		if p.predicted[i].Tick < tick {
			break
		}
	}
	return PredictedState{}, false
}

func (p *Predictor) discardThrough(tick uint32) {
	kept := p.predicted[:0]
	for _, recorded := range p.predicted {
		if recorded.Tick > tick {
			kept = append(kept, recorded)
		}
	}
	p.predicted = kept
}
