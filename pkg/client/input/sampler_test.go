package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource returns the same control state on every sample.
type fixedSource struct {
	moveX, moveY float64
	actions      uint32
}

func (f *fixedSource) Sample() (moveX, moveY, aimX, aimY float64, actions uint32) {
	return f.moveX, f.moveY, f.moveX, f.moveY, f.actions
}

func sampleN(s *Sampler, n int) {
	now := time.Now()
	for i := 0; i < n; i++ {
		s.Sample(now)
	}
}

func TestSampler_ticksAreMonotonic(t *testing.T) {
	s := NewSampler(NewSamplerOptions{Source: &fixedSource{moveX: 1}})

	for want := uint32(1); want <= 5; want++ {
		snapshot := s.Sample(time.Now())
		assert.Equal(t, want, snapshot.Tick)
	}
}

func TestSampler_batchCarriesRedundantHistory(t *testing.T) {
	s := NewSampler(NewSamplerOptions{Source: &fixedSource{moveX: 1}})

	sampleN(s, 1)
	assert.Len(t, s.Batch(), 1, "nothing to pad the first batch with")

	sampleN(s, 5)
	batch := s.Batch()
	require.Len(t, batch, 4, "newest plus the redundancy window")
	for i, snapshot := range batch {
		assert.Equal(t, uint32(3+i), snapshot.Tick, "oldest first")
	}
}

func TestSampler_ackEvictsHistory(t *testing.T) {
	s := NewSampler(NewSamplerOptions{Source: &fixedSource{moveX: 1}})
	sampleN(s, 5)

	s.Ack(3)
	assert.Equal(t, 2, s.Pending())

	batch := s.Batch()
	require.Len(t, batch, 2)
	assert.Equal(t, uint32(4), batch[0].Tick)
	assert.Equal(t, uint32(5), batch[1].Tick)

	// acks never roll the window back
	s.Ack(1)
	assert.Equal(t, 2, s.Pending())

	s.Ack(5)
	assert.Equal(t, 0, s.Pending())
	assert.Nil(t, s.Batch())
}

func TestSampler_historyIsCapped(t *testing.T) {
	s := NewSampler(NewSamplerOptions{Source: &fixedSource{}, HistorySize: 8})
	sampleN(s, 20)

	assert.Equal(t, 8, s.Pending())
	assert.Equal(t, uint32(20), s.Tick())
}
