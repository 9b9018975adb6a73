// Package input samples the local control state at a fixed cadence and
// keeps the unacknowledged history that pads each outgoing batch, so a
// lost datagram does not lose the input it carried.
package input

import (
	"time"

	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/messages"
)

// ControlSource produces the current control state when sampled. The
// window/UI layer or a bot implements this.
type ControlSource interface {
	Sample() (moveX, moveY, aimX, aimY float64, actions uint32)
}

// Sampler turns a control source into numbered input snapshots and
// maintains the redundancy window.
type Sampler struct {
	source      ControlSource
	redundancy  int
	historySize int

	tick    uint32
	history []messages.InputSnapshot
}

type NewSamplerOptions struct {
	Source ControlSource
	// Redundancy is how many previous unacknowledged snapshots accompany
	// each new one. Defaults to the standard redundancy.
	Redundancy int
	// HistorySize caps the unacknowledged history. Defaults to the
	// standard history size.
	HistorySize int
}

func NewSampler(opts NewSamplerOptions) *Sampler {
	redundancy := opts.Redundancy
	if redundancy == 0 {
		redundancy = constants.InputRedundancy
	}
	historySize := opts.HistorySize
	if historySize == 0 {
		historySize = constants.InputHistorySize
	}
	return &Sampler{
		source:      opts.Source,
		redundancy:  redundancy,
		historySize: historySize,
	}
}

// Sample reads the control source and appends a new snapshot with the
// next input tick.
func (s *Sampler) Sample(now time.Time) messages.InputSnapshot {
	moveX, moveY, aimX, aimY, actions := s.source.Sample()

	s.tick++
	snapshot := messages.InputSnapshot{
		Tick:      s.tick,
		Timestamp: now.UnixMilli(),
		MoveX:     moveX,
		MoveY:     moveY,
		AimX:      aimX,
		AimY:      aimY,
		Actions:   actions,
	}

	s.history = append(s.history, snapshot)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}

	return snapshot
}

// Batch returns the newest snapshot plus up to the redundancy window of
// preceding unacknowledged snapshots, oldest first.
func (s *Sampler) Batch() []messages.InputSnapshot {
	if len(s.history) == 0 {
		return nil
	}
	start := len(s.history) - (s.redundancy + 1)
	if start < 0 {
		start = 0
	}
	batch := make([]messages.InputSnapshot, len(s.history)-start)
	copy(batch, s.history[start:])
	return batch
}

// Ack evicts every snapshot at or below the acknowledged tick.
func (s *Sampler) Ack(tick uint32) {
	kept := s.history[:0]
	for _, snapshot := range s.history {
		if snapshot.Tick > tick {
			kept = append(kept, snapshot)
		}
	}
	s.history = kept
}

// Tick returns the most recently assigned input tick.
func (s *Sampler) Tick() uint32 {
	return s.tick
}

// Pending returns how many unacknowledged snapshots are held.
func (s *Sampler) Pending() int {
	return len(s.history)
}
