package metrics

import (
	"sync/atomic"
)

// Metrics holds counters for the server runtime. All methods are safe for
// concurrent use; counters are updated with atomics so the tick loop never
// takes a lock to record one.
type Metrics struct {
	ticks             int64
	totalTickNs       int64
	inputsApplied     int64
	inputsDuplicate   int64
	inputsReordered   int64
	snapshotsSent     int64
	hitsValidated     int64
	hitsRejected      int64
	hitsRateLimited   int64
	equipsApplied     int64
	equipsRejected    int64
	peersTimedOut     int64
	zoneTransitions   int64
	messagesEnqueued  int64
	messagesDiscarded int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.ticks, 1)
	atomic.AddInt64(&m.totalTickNs, ns)
}

func (m *Metrics) IncInputsApplied()     { atomic.AddInt64(&m.inputsApplied, 1) }
func (m *Metrics) IncInputsDuplicate()   { atomic.AddInt64(&m.inputsDuplicate, 1) }
func (m *Metrics) IncInputsReordered()   { atomic.AddInt64(&m.inputsReordered, 1) }
func (m *Metrics) AddSnapshotsSent(n int64) {
	atomic.AddInt64(&m.snapshotsSent, n)
}
func (m *Metrics) IncHitsValidated()     { atomic.AddInt64(&m.hitsValidated, 1) }
func (m *Metrics) IncHitsRejected()      { atomic.AddInt64(&m.hitsRejected, 1) }
func (m *Metrics) IncHitsRateLimited()   { atomic.AddInt64(&m.hitsRateLimited, 1) }
func (m *Metrics) IncEquipsApplied()     { atomic.AddInt64(&m.equipsApplied, 1) }
func (m *Metrics) IncEquipsRejected()    { atomic.AddInt64(&m.equipsRejected, 1) }
func (m *Metrics) IncPeersTimedOut()     { atomic.AddInt64(&m.peersTimedOut, 1) }
func (m *Metrics) IncZoneTransitions()   { atomic.AddInt64(&m.zoneTransitions, 1) }
func (m *Metrics) IncMessagesEnqueued()  { atomic.AddInt64(&m.messagesEnqueued, 1) }
func (m *Metrics) IncMessagesDiscarded() { atomic.AddInt64(&m.messagesDiscarded, 1) }

// Snapshot returns a read-only copy of the counters for the admin API.
func (m *Metrics) Snapshot() map[string]interface{} {
	ticks := atomic.LoadInt64(&m.ticks)
	total := atomic.LoadInt64(&m.totalTickNs)
	var avgTickMs float64
	if ticks > 0 {
		avgTickMs = float64(total) / float64(ticks) / 1e6
	}
	return map[string]interface{}{
		"ticks":              ticks,
		"avg_tick_ms":        avgTickMs,
		"inputs_applied":     atomic.LoadInt64(&m.inputsApplied),
		"inputs_duplicate":   atomic.LoadInt64(&m.inputsDuplicate),
		"inputs_reordered":   atomic.LoadInt64(&m.inputsReordered),
		"snapshots_sent":     atomic.LoadInt64(&m.snapshotsSent),
		"hits_validated":     atomic.LoadInt64(&m.hitsValidated),
		"hits_rejected":      atomic.LoadInt64(&m.hitsRejected),
		"hits_rate_limited":  atomic.LoadInt64(&m.hitsRateLimited),
		"equips_applied":     atomic.LoadInt64(&m.equipsApplied),
		"equips_rejected":    atomic.LoadInt64(&m.equipsRejected),
		"peers_timed_out":    atomic.LoadInt64(&m.peersTimedOut),
		"zone_transitions":   atomic.LoadInt64(&m.zoneTransitions),
		"messages_enqueued":  atomic.LoadInt64(&m.messagesEnqueued),
		"messages_discarded": atomic.LoadInt64(&m.messagesDiscarded),
	}
}
