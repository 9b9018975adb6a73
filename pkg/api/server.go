// Package api is the operator-facing HTTP surface: world and peer
// inspection, runtime metrics, and server-driven zone moves.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/metrics"
	"github.com/emberforge/vanguard/pkg/network"
	"github.com/emberforge/vanguard/pkg/state"
	"github.com/emberforge/vanguard/pkg/version"
)

// ZoneMover moves a peer between zones on the next tick.
type ZoneMover interface {
	TransitionZone(peerID uint32, zone string) error
}

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	PeerManager  *network.PeerManager
	StateManager state.StateManager
	ZoneMover    ZoneMover
	Metrics      *metrics.Metrics
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	router := mux.NewRouter()
	router.HandleFunc("/status", handleStatus(opts.PeerManager)).Methods(http.MethodGet)
	router.HandleFunc("/peers", handleListPeers(opts.PeerManager)).Methods(http.MethodGet)
	router.HandleFunc("/zones", handleListZones(opts.StateManager)).Methods(http.MethodGet)
	router.HandleFunc("/metrics", handleMetrics(opts.Metrics)).Methods(http.MethodGet)
	router.HandleFunc("/peers/{peerID}/zone", handleMovePeer(opts.ZoneMover)).Methods(http.MethodPost)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func handleStatus(peerManager *network.PeerManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"version": version.Get(),
			"peers":   peerManager.Count(),
		})
	}
}

func handleListPeers(peerManager *network.PeerManager) http.HandlerFunc {
	type peerInfo struct {
		PeerID      uint32 `json:"peerID"`
		DisplayName string `json:"displayName"`
		CharacterID int32  `json:"characterID"`
		LatencyMs   int64  `json:"latencyMs"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		peers := peerManager.GetPeers()
		out := make([]peerInfo, 0, len(peers))
		for _, peer := range peers {
			out = append(out, peerInfo{
				PeerID:      peer.ID,
				DisplayName: peer.DisplayName,
				CharacterID: peer.CharacterID,
				LatencyMs:   peerManager.Latency(peer.ID),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleListZones(stateManager state.StateManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := stateManager.Get(r.Context())
		if err != nil {
			http.Error(w, "failed to get world view", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tick":  view.Tick,
			"zones": view.Zones,
		})
	}
}

func handleMetrics(m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Snapshot())
	}
}

func handleMovePeer(zoneMover ZoneMover) http.HandlerFunc {
	type moveRequest struct {
		Zone string `json:"zone"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		peerID, err := strconv.ParseUint(mux.Vars(r)["peerID"], 10, 32)
		if err != nil {
			http.Error(w, "invalid peer ID", http.StatusBadRequest)
			return
		}

		request := &moveRequest{}
		if err := json.NewDecoder(r.Body).Decode(request); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if request.Zone == "" {
			http.Error(w, "zone is required", http.StatusBadRequest)
			return
		}

		if err := zoneMover.TransitionZone(uint32(peerID), request.Zone); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response: %v", err)
	}
}
