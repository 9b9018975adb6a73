package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/vanguard/pkg/metrics"
	"github.com/emberforge/vanguard/pkg/network"
	"github.com/emberforge/vanguard/pkg/state"
)

type moveCall struct {
	peerID uint32
	zone   string
}

type fakeZoneMover struct {
	calls []moveCall
	err   error
}

func (f *fakeZoneMover) TransitionZone(peerID uint32, zone string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, moveCall{peerID: peerID, zone: zone})
	return nil
}

func newTestServer(t *testing.T, zoneMover ZoneMover) (*httptest.Server, *network.PeerManager, state.StateManager) {
	t.Helper()
	peerManager := network.NewPeerManager(10)
	stateManager := state.NewInMemoryStateManager()
	apiServer := NewAPIServer(NewAPIServerOptions{
		PeerManager:  peerManager,
		StateManager: stateManager,
		ZoneMover:    zoneMover,
		Metrics:      metrics.New(),
	})
	server := httptest.NewServer(apiServer.server.Handler)
	t.Cleanup(server.Close)
	return server, peerManager, stateManager
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAPIServer_status(t *testing.T) {
	server, peerManager, _ := newTestServer(t, &fakeZoneMover{})

	_, _, err := peerManager.ConnectPeer(nil, nil, "account-1", 1, "peer", "hub")
	require.NoError(t, err)

	status := map[string]interface{}{}
	getJSON(t, server.URL+"/status", &status)
	assert.Equal(t, float64(1), status["peers"])
	assert.Contains(t, status, "version")
}

func TestAPIServer_listPeers(t *testing.T) {
	server, peerManager, _ := newTestServer(t, &fakeZoneMover{})

	peerID, _, err := peerManager.ConnectPeer(nil, nil, "account-1", 7, "alice", "hub")
	require.NoError(t, err)
	peerManager.RecordRTT(peerID, 100)

	var peers []map[string]interface{}
	getJSON(t, server.URL+"/peers", &peers)
	require.Len(t, peers, 1)
	assert.Equal(t, float64(peerID), peers[0]["peerID"])
	assert.Equal(t, "alice", peers[0]["displayName"])
	assert.Equal(t, float64(7), peers[0]["characterID"])
	assert.Equal(t, float64(50), peers[0]["latencyMs"])
}

func TestAPIServer_zones(t *testing.T) {
	server, _, stateManager := newTestServer(t, &fakeZoneMover{})

	require.NoError(t, stateManager.Set(context.Background(), &state.WorldView{
		Tick:  42,
		Zones: map[string][]uint32{"hub": {1, 2}},
	}))

	zones := map[string]interface{}{}
	getJSON(t, server.URL+"/zones", &zones)
	assert.Equal(t, float64(42), zones["tick"])
	assert.Contains(t, zones["zones"], "hub")
}

func TestAPIServer_metrics(t *testing.T) {
	server, _, _ := newTestServer(t, &fakeZoneMover{})

	snapshot := map[string]interface{}{}
	getJSON(t, server.URL+"/metrics", &snapshot)
	assert.Contains(t, snapshot, "ticks")
	assert.Contains(t, snapshot, "hits_validated")
}

func TestAPIServer_movePeer(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		moverErr   error
		wantStatus int
		wantCalls  []moveCall
	}{
		{
			name:       "valid move",
			path:       "/peers/7/zone",
			body:       `{"zone": "arena"}`,
			wantStatus: http.StatusAccepted,
			wantCalls:  []moveCall{{peerID: 7, zone: "arena"}},
		},
		{
			name:       "missing zone",
			path:       "/peers/7/zone",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad peer id",
			path:       "/peers/bogus/zone",
			body:       `{"zone": "arena"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "mover rejects",
			path:       "/peers/7/zone",
			body:       `{"zone": "arena"}`,
			moverErr:   fmt.Errorf("peer 7 is not in the simulation"),
			wantStatus: http.StatusConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zoneMover := &fakeZoneMover{err: tt.moverErr}
			server, _, _ := newTestServer(t, zoneMover)

			resp, err := http.Post(server.URL+tt.path, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCalls, zoneMover.calls)
		})
	}
}
