package workers

import (
	"context"
	"time"

	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/metrics"
	"github.com/emberforge/vanguard/pkg/network"
)

// PeerDisconnector force-disconnects a peer with a declared reason.
type PeerDisconnector interface {
	DisconnectPeer(ctx context.Context, peerID uint32, reason string)
}

type HeartbeatWorker struct {
	peerManager  *network.PeerManager
	disconnector PeerDisconnector
	metrics      *metrics.Metrics
	interval     time.Duration
	maxMissed    int
}

type NewHeartbeatWorkerOptions struct {
	PeerManager  *network.PeerManager
	Disconnector PeerDisconnector
	Metrics      *metrics.Metrics
	Interval     time.Duration
	MaxMissed    int
}

// NewHeartbeatWorker creates a new HeartbeatWorker.
// The worker sweeps connected peers at the heartbeat interval and
// disconnects any peer whose last heartbeat is older than the allowed
// number of missed intervals.
func NewHeartbeatWorker(opts NewHeartbeatWorkerOptions) *HeartbeatWorker {
	interval := opts.Interval
	if interval == 0 {
		interval = constants.HeartbeatInterval
	}
	maxMissed := opts.MaxMissed
	if maxMissed == 0 {
		maxMissed = constants.HeartbeatMaxMissed
	}
	return &HeartbeatWorker{
		peerManager:  opts.PeerManager,
		disconnector: opts.Disconnector,
		metrics:      opts.Metrics,
		interval:     interval,
		maxMissed:    maxMissed,
	}
}

func (w *HeartbeatWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			w.sweep(ctx, t)
		}
	}
}

func (w *HeartbeatWorker) sweep(ctx context.Context, now time.Time) {
	deadline := now.Add(-time.Duration(w.maxMissed) * w.interval).UnixMilli()
	for _, peerID := range w.peerManager.PeerIDs() {
		last, ok := w.peerManager.LastHeartbeat(peerID)
		if !ok {
			continue
		}
		if last >= deadline {
			continue
		}
		log.Info("Peer %d missed %d heartbeats, disconnecting", peerID, w.maxMissed)
		if w.metrics != nil {
			w.metrics.IncPeersTimedOut()
		}
		w.disconnector.DisconnectPeer(ctx, peerID, messages.DisconnectReasonTimeout)
	}
}
