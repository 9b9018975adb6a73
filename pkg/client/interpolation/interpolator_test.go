package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
)

func newTestInterpolator() *Interpolator {
	return NewInterpolator(NewInterpolatorOptions{})
}

func observe(t *testing.T, i *Interpolator, tick uint32, timestamp int64, position, velocity kinematic.Vector) {
	t.Helper()
	require.True(t, i.Observe(messages.EntitySnapshot{
		Tick:      tick,
		Timestamp: timestamp,
		Position:  position,
		Velocity:  velocity,
	}))
}

func TestInterpolator_sampleBetweenSnapshots(t *testing.T) {
	i := newTestInterpolator()
	observe(t, i, 1, 1000, kinematic.Vector{X: 0}, kinematic.Vector{X: 2})
	observe(t, i, 2, 1100, kinematic.Vector{X: 10}, kinematic.Vector{X: 4})

	// render time 1050 sits halfway between the two snapshots
	sample, ok := i.Sample(1050 + 100)
	require.True(t, ok)
	assert.InDelta(t, 5.0, sample.Position.X, 1e-9)
	assert.InDelta(t, 3.0, sample.Velocity.X, 1e-9)
	assert.False(t, sample.Extrapolated)
}

func TestInterpolator_renderDelay(t *testing.T) {
	i := newTestInterpolator()
	observe(t, i, 1, 1000, kinematic.Vector{X: 0}, kinematic.Vector{})
	observe(t, i, 2, 1100, kinematic.Vector{X: 10}, kinematic.Vector{})

	// server time 1100 renders at 1000, the older snapshot
	sample, ok := i.Sample(1100)
	require.True(t, ok)
	assert.InDelta(t, 0.0, sample.Position.X, 1e-9)
}

func TestInterpolator_extrapolatesPastNewestSnapshot(t *testing.T) {
	i := newTestInterpolator()
	observe(t, i, 1, 1000, kinematic.Vector{X: 10}, kinematic.Vector{X: 10})

	// render time 1100: 100ms past the snapshot at 10 units/s
	sample, ok := i.Sample(1100 + 100)
	require.True(t, ok)
	assert.True(t, sample.Extrapolated)
	assert.InDelta(t, 11.0, sample.Position.X, 1e-9)
}

func TestInterpolator_extrapolationIsCapped(t *testing.T) {
	i := newTestInterpolator()
	observe(t, i, 1, 1000, kinematic.Vector{X: 10}, kinematic.Vector{X: 10})

	// render time 1400: 400ms past the snapshot, held at the 250ms cap
	sample, ok := i.Sample(1400 + 100)
	require.True(t, ok)
	assert.True(t, sample.Extrapolated)
	assert.InDelta(t, 12.5, sample.Position.X, 1e-9)
}

func TestInterpolator_holdsOldestBeforeHistory(t *testing.T) {
	i := newTestInterpolator()
	observe(t, i, 5, 5000, kinematic.Vector{X: 3}, kinematic.Vector{X: 99})
	observe(t, i, 6, 5100, kinematic.Vector{X: 4}, kinematic.Vector{X: 99})

	// render time predates everything held; no motion is invented
	sample, ok := i.Sample(1000)
	require.True(t, ok)
	assert.InDelta(t, 3.0, sample.Position.X, 1e-9)
	assert.False(t, sample.Extrapolated)
}

func TestInterpolator_rejectsOutOfOrderSnapshots(t *testing.T) {
	i := newTestInterpolator()
	observe(t, i, 5, 5000, kinematic.Vector{X: 3}, kinematic.Vector{})

	accepted := i.Observe(messages.EntitySnapshot{Tick: 4, Timestamp: 4900})
	assert.False(t, accepted)

	latest, ok := i.Latest()
	require.True(t, ok)
	assert.Equal(t, uint32(5), latest.Tick)
}

func TestInterpolator_noSnapshots(t *testing.T) {
	i := newTestInterpolator()
	_, ok := i.Sample(1000)
	assert.False(t, ok)
}
