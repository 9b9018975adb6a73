package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/metrics"
	"github.com/emberforge/vanguard/pkg/network"
)

type disconnectCall struct {
	peerID uint32
	reason string
}

type fakeDisconnector struct {
	calls []disconnectCall
}

func (f *fakeDisconnector) DisconnectPeer(ctx context.Context, peerID uint32, reason string) {
	f.calls = append(f.calls, disconnectCall{peerID: peerID, reason: reason})
}

func TestHeartbeatWorker_sweep(t *testing.T) {
	peerManager := network.NewPeerManager(10)
	stalePeer, _, err := peerManager.ConnectPeer(nil, nil, "account-1", 1, "stale", "hub")
	require.NoError(t, err)
	healthyPeer, _, err := peerManager.ConnectPeer(nil, nil, "account-2", 2, "healthy", "hub")
	require.NoError(t, err)

	disconnector := &fakeDisconnector{}
	serverMetrics := metrics.New()
	worker := NewHeartbeatWorker(NewHeartbeatWorkerOptions{
		PeerManager:  peerManager,
		Disconnector: disconnector,
		Metrics:      serverMetrics,
	})

	now := time.Now()

	// both peers heartbeated on connect; nobody is stale yet
	worker.sweep(context.Background(), now)
	assert.Empty(t, disconnector.calls)

	// the stale peer last heartbeated six intervals ago, one past the limit
	peerManager.Touch(stalePeer, now.Add(-6*worker.interval))
	peerManager.Touch(healthyPeer, now)
	worker.sweep(context.Background(), now)

	require.Len(t, disconnector.calls, 1)
	assert.Equal(t, stalePeer, disconnector.calls[0].peerID)
	assert.Equal(t, messages.DisconnectReasonTimeout, disconnector.calls[0].reason)
	assert.Equal(t, int64(1), serverMetrics.Snapshot()["peers_timed_out"])
}

func TestHeartbeatWorker_exactDeadlineIsNotStale(t *testing.T) {
	peerManager := network.NewPeerManager(10)
	peerID, _, err := peerManager.ConnectPeer(nil, nil, "account-1", 1, "peer", "hub")
	require.NoError(t, err)

	disconnector := &fakeDisconnector{}
	worker := NewHeartbeatWorker(NewHeartbeatWorkerOptions{
		PeerManager:  peerManager,
		Disconnector: disconnector,
	})

	now := time.Now()
	peerManager.Touch(peerID, now.Add(-5*worker.interval))
	worker.sweep(context.Background(), now)

	assert.Empty(t, disconnector.calls, "exactly five missed intervals is still within the limit")
}
