// Package interpolation renders remote entities slightly in the past so
// their motion can be interpolated between received snapshots, and
// extrapolates briefly when snapshots stall.
package interpolation

import (
	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/snapshots"
)

// Sample is an entity pose resolved for a render time.
type Sample struct {
	Position    kinematic.Vector
	Velocity    kinematic.Vector
	Orientation kinematic.Orientation
	Hitpoints   int16
	Downed      bool
	// Extrapolated is true when the pose was projected past the newest
	// snapshot instead of interpolated between two.
	Extrapolated bool
}

type Interpolator struct {
	history            *snapshots.Ring
	delayMs            int64
	maxExtrapolationMs int64
}

type NewInterpolatorOptions struct {
	// DelayMs is how far behind server time entities are rendered.
	DelayMs int64
	// MaxExtrapolationMs bounds projection past the newest snapshot.
	MaxExtrapolationMs int64
	// HistorySize is the snapshot ring capacity.
	HistorySize int
}

func NewInterpolator(opts NewInterpolatorOptions) *Interpolator {
	delayMs := opts.DelayMs
	if delayMs == 0 {
		delayMs = constants.InterpolationDelayMs
	}
	maxExtrapolationMs := opts.MaxExtrapolationMs
	if maxExtrapolationMs == 0 {
		maxExtrapolationMs = constants.MaxExtrapolationMs
	}
	historySize := opts.HistorySize
	if historySize == 0 {
		historySize = constants.SnapshotHistorySize
	}
	return &Interpolator{
		history:            snapshots.NewRing(historySize),
		delayMs:            delayMs,
		maxExtrapolationMs: maxExtrapolationMs,
	}
}

// Observe records a received snapshot. Out-of-order snapshots are
// dropped and reported as false.
func (i *Interpolator) Observe(snap messages.EntitySnapshot) bool {
	return i.history.Push(snap)
}

// Sample resolves the entity pose for the given client estimate of
// server time in milliseconds.
func (i *Interpolator) Sample(serverTimeMs int64) (Sample, bool) {
	renderTime := serverTimeMs - i.delayMs

	from, to, ok := i.history.Bracket(renderTime)
	if ok {
		span := to.Timestamp - from.Timestamp
		t := 0.0
		if span > 0 {
			t = float64(renderTime-from.Timestamp) / float64(span)
		}
		return Sample{
			Position:    kinematic.LerpVector(from.Position, to.Position, t),
			Velocity:    kinematic.LerpVector(from.Velocity, to.Velocity, t),
			Orientation: kinematic.LerpOrientation(from.Orientation, to.Orientation, t),
			Hitpoints:   to.Hitpoints,
			Downed:      to.Downed,
		}, true
	}

	newest, ok := i.history.Latest()
	if !ok {
		return Sample{}, false
	}
	if renderTime <= newest.Timestamp {
		// render time predates the whole history; hold the oldest pose
		// we still have rather than invent motion
		oldest, _ := i.history.Oldest()
		return poseOf(oldest, false), true
	}

	elapsed := renderTime - newest.Timestamp
	if elapsed > i.maxExtrapolationMs {
		elapsed = i.maxExtrapolationMs
	}
	sample := poseOf(newest, true)
	sample.Position = newest.Position.Add(newest.Velocity.Scale(float64(elapsed) / 1000.0))
	return sample, true
}

// Latest returns the newest observed snapshot.
func (i *Interpolator) Latest() (messages.EntitySnapshot, bool) {
	return i.history.Latest()
}

func poseOf(snap messages.EntitySnapshot, extrapolated bool) Sample {
	return Sample{
		Position:     snap.Position,
		Velocity:     snap.Velocity,
		Orientation:  snap.Orientation,
		Hitpoints:    snap.Hitpoints,
		Downed:       snap.Downed,
		Extrapolated: extrapolated,
	}
}
