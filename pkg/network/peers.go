package network

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/emberforge/vanguard/pkg/game/constants"
)

const (
	// PeerIDMaxRetries represents the maximum number of retries when generating a unique ID
	PeerIDMaxRetries = 1024
	// PeerEventChannelSize represents the size of the peer event channel
	PeerEventChannelSize = 1024
)

// PeerConnectionType represents the transport pair a peer connected with
type PeerConnectionType int

const (
	PeerConnectionTypeTCPUDP PeerConnectionType = iota
	PeerConnectionTypeWebSocket
)

// Peer represents a connected peer
type Peer struct {
	ID             uint32
	ConnectionType PeerConnectionType
	TCPConn        net.Conn
	WSConn         *websocket.Conn
	UDPAddress     *net.UDPAddr

	AccountID    string
	CharacterID  int32
	DisplayName  string
	SessionToken string

	// lastHeartbeat is the unix-millisecond time of the last ping, atomic.
	lastHeartbeat int64

	rttMu sync.Mutex
	rtts  []int64
}

// PeerEvent represents an event that happened to a peer
type PeerEvent struct {
	PeerID uint32
	Type   PeerEventType
	Data   interface{}
}

// PeerEventType represents the type of a peer event
type PeerEventType int

const (
	PeerEventTypeConnect PeerEventType = iota
	PeerEventTypeDisconnect
)

type PeerConnectData struct {
	AccountID   string
	CharacterID int32
	DisplayName string
	Zone        string
}

type PeerDisconnectData struct {
	Reason string
}

// PeerManager manages connected peers
type PeerManager struct {
	peers     map[uint32]*Peer
	peersLock sync.RWMutex
	maxPeers  int
	// UDP connection for broadcasting to peers
	udpConn       *net.UDPConn
	peerEventChan chan PeerEvent
}

// NewPeerManager creates a new PeerManager
func NewPeerManager(maxPeers int) *PeerManager {
	return &PeerManager{
		peers:         make(map[uint32]*Peer),
		maxPeers:      maxPeers,
		peerEventChan: make(chan PeerEvent, PeerEventChannelSize),
	}
}

// GetPeerEventChan returns a one-way channel for receiving peer events
func (pm *PeerManager) GetPeerEventChan() <-chan PeerEvent {
	return pm.peerEventChan
}

// SetUDPConn sets the UDP listener connection for all peers
func (pm *PeerManager) SetUDPConn(conn *net.UDPConn) {
	pm.udpConn = conn
}

// GetUDPConn returns the UDP listener connection for all peers
func (pm *PeerManager) GetUDPConn() *net.UDPConn {
	if pm.udpConn == nil {
		panic("UDP connection is not set on PeerManager")
	}
	return pm.udpConn
}

// GetPeers returns a slice with a transport-level copy of all connected peers.
func (pm *PeerManager) GetPeers() []*Peer {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	peers := make([]*Peer, 0, len(pm.peers))
	for _, peer := range pm.peers {
		peers = append(peers, copyPeer(peer))
	}
	return peers
}

// GetPeer returns a transport-level copy of one connected peer
func (pm *PeerManager) GetPeer(peerID uint32) (*Peer, error) {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	peer, ok := pm.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("peer %d is not connected", peerID)
	}
	return copyPeer(peer), nil
}

func copyPeer(peer *Peer) *Peer {
	copy := &Peer{
		ID:             peer.ID,
		ConnectionType: peer.ConnectionType,
		TCPConn:        peer.TCPConn,
		WSConn:         peer.WSConn,
		AccountID:      peer.AccountID,
		CharacterID:    peer.CharacterID,
		DisplayName:    peer.DisplayName,
	}
	if peer.UDPAddress != nil {
		copy.UDPAddress = &net.UDPAddr{
			IP:   peer.UDPAddress.IP,
			Port: peer.UDPAddress.Port,
			Zone: peer.UDPAddress.Zone,
		}
	}
	return copy
}

// ConnectPeer adds a new peer to the manager and returns its ID and session token
func (pm *PeerManager) ConnectPeer(tcpConn net.Conn, wsConn *websocket.Conn, accountID string, characterID int32, displayName string, zone string) (uint32, string, error) {
	pm.peersLock.Lock()
	defer pm.peersLock.Unlock()

	if pm.maxPeers > 0 && len(pm.peers) >= pm.maxPeers {
		return 0, "", fmt.Errorf("server is full (%d peers)", pm.maxPeers)
	}
	for _, peer := range pm.peers {
		if peer.AccountID == accountID && peer.CharacterID == characterID {
			return 0, "", fmt.Errorf("character %d is already connected", characterID)
		}
	}

	peerID, err := pm.generateUniqueID(PeerIDMaxRetries)
	if err != nil {
		return 0, "", fmt.Errorf("failed to generate a unique ID: %v", err)
	}

	connectionType := PeerConnectionTypeTCPUDP
	if wsConn != nil {
		connectionType = PeerConnectionTypeWebSocket
	}
	peer := &Peer{
		ID:             peerID,
		ConnectionType: connectionType,
		TCPConn:        tcpConn,
		WSConn:         wsConn,
		AccountID:      accountID,
		CharacterID:    characterID,
		DisplayName:    displayName,
		SessionToken:   uuid.New().String(),
		lastHeartbeat:  time.Now().UnixMilli(),
	}
	pm.peers[peerID] = peer

	pm.peerEventChan <- PeerEvent{
		PeerID: peerID,
		Type:   PeerEventTypeConnect,
		Data: PeerConnectData{
			AccountID:   accountID,
			CharacterID: characterID,
			DisplayName: displayName,
			Zone:        zone,
		},
	}

	return peerID, peer.SessionToken, nil
}

// GetPeerIDByTCPConn returns the ID of a peer by its TCP connection.
// Returns 0 if the peer is not found
func (pm *PeerManager) GetPeerIDByTCPConn(conn net.Conn) uint32 {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	for _, peer := range pm.peers {
		if peer.TCPConn == conn {
			return peer.ID
		}
	}
	return 0
}

// GetPeerIDByWSConn returns the ID of a peer by its WebSocket connection.
// Returns 0 if the peer is not found
func (pm *PeerManager) GetPeerIDByWSConn(conn *websocket.Conn) uint32 {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	for _, peer := range pm.peers {
		if peer.WSConn == conn {
			return peer.ID
		}
	}
	return 0
}

// DisconnectPeer removes a peer from the manager
func (pm *PeerManager) DisconnectPeer(peerID uint32, reason string) {
	pm.peersLock.Lock()
	defer pm.peersLock.Unlock()

	peer, ok := pm.peers[peerID]
	if !ok {
		return
	}

	pm.peerEventChan <- PeerEvent{
		PeerID: peer.ID,
		Type:   PeerEventTypeDisconnect,
		Data: PeerDisconnectData{
			Reason: reason,
		},
	}

	delete(pm.peers, peerID)
}

// SetUDPAddress sets the UDP address of a peer
func (pm *PeerManager) SetUDPAddress(peerID uint32, addr *net.UDPAddr) {
	pm.peersLock.Lock()
	defer pm.peersLock.Unlock()

	peer, ok := pm.peers[peerID]
	if !ok {
		return
	}
	// Don't update the UDP address if it's already set to the same value
	if peer.UDPAddress != nil && peer.UDPAddress.String() == addr.String() {
		return
	}

	peer.UDPAddress = addr
}

func (pm *PeerManager) Exists(peerID uint32) bool {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	_, ok := pm.peers[peerID]
	return ok
}

func (pm *PeerManager) Count() int {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	return len(pm.peers)
}

// Touch records a heartbeat for a peer
func (pm *PeerManager) Touch(peerID uint32, now time.Time) {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	peer, ok := pm.peers[peerID]
	if !ok {
		return
	}
	atomic.StoreInt64(&peer.lastHeartbeat, now.UnixMilli())
}

// LastHeartbeat returns the unix-millisecond time of a peer's last heartbeat
func (pm *PeerManager) LastHeartbeat(peerID uint32) (int64, bool) {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	peer, ok := pm.peers[peerID]
	if !ok {
		return 0, false
	}
	return atomic.LoadInt64(&peer.lastHeartbeat), true
}

// PeerIDs returns the IDs of all connected peers
func (pm *PeerManager) PeerIDs() []uint32 {
	pm.peersLock.RLock()
	defer pm.peersLock.RUnlock()
	ids := make([]uint32, 0, len(pm.peers))
	for id := range pm.peers {
		ids = append(ids, id)
	}
	return ids
}

// RecordRTT adds a round-trip sample to a peer's latency window
func (pm *PeerManager) RecordRTT(peerID uint32, rttMs int64) {
	if rttMs < 0 {
		return
	}
	pm.peersLock.RLock()
	peer, ok := pm.peers[peerID]
	pm.peersLock.RUnlock()
	if !ok {
		return
	}

	peer.rttMu.Lock()
	defer peer.rttMu.Unlock()
	peer.rtts = append(peer.rtts, rttMs)
	if len(peer.rtts) > constants.LatencyWindowSize {
		peer.rtts = peer.rtts[len(peer.rtts)-constants.LatencyWindowSize:]
	}
}

// Latency returns a peer's estimated one-way latency in milliseconds,
// half of the round trip averaged over the sample window.
func (pm *PeerManager) Latency(peerID uint32) int64 {
	pm.peersLock.RLock()
	peer, ok := pm.peers[peerID]
	pm.peersLock.RUnlock()
	if !ok {
		return 0
	}

	peer.rttMu.Lock()
	defer peer.rttMu.Unlock()
	if len(peer.rtts) == 0 {
		return 0
	}
	var sum int64
	for _, rtt := range peer.rtts {
		sum += rtt
	}
	return sum / int64(len(peer.rtts)) / 2
}

// generateUniqueID generates a unique peer ID with a maximum number of retries
// it reads from the peers, so it needs to be locked before calling
func (pm *PeerManager) generateUniqueID(maxRetries int) (uint32, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		id := rand.Uint32()
		if id == 0 {
			continue
		}
		if _, ok := pm.peers[id]; !ok {
			return id, nil
		}
	}

	return 0, fmt.Errorf("failed to generate a unique ID after %d attempts", maxRetries)
}
