package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"nhooyr.io/websocket"

	authproviders "github.com/emberforge/vanguard/pkg/auth/providers"
	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/metrics"
	"github.com/emberforge/vanguard/pkg/queue"
)

type NetworkManager struct {
	AuthProvider  authproviders.AuthProvider
	PeerManager   *PeerManager
	InputRegistry *InputRegistry
	ActionQueue   queue.Queue
	Metrics       *metrics.Metrics
	TCPServer     *TCPServer
	UDPServer     *UDPServer
	WSServer      *WSServer
}

type NewNetworkManagerOptions struct {
	AuthProvider  authproviders.AuthProvider
	PeerManager   *PeerManager
	InputRegistry *InputRegistry
	ActionQueue   queue.Queue
	Metrics       *metrics.Metrics
	TCPPort       int
	UDPPort       int
	WSPort        int
	WSServerTLS   *TLSConfig
}

func NewNetworkManager(options NewNetworkManagerOptions) *NetworkManager {
	return &NetworkManager{
		AuthProvider:  options.AuthProvider,
		PeerManager:   options.PeerManager,
		InputRegistry: options.InputRegistry,
		ActionQueue:   options.ActionQueue,
		Metrics:       options.Metrics,
		TCPServer: NewTCPServer(NewTCPServerOptions{
			Port: options.TCPPort,
		}),
		UDPServer: NewUDPServer(NewUDPServerOptions{
			Port: options.UDPPort,
		}),
		WSServer: NewWSServer(NewWSServerOptions{
			Port: options.WSPort,
			TLS:  options.WSServerTLS,
		}),
	}
}

func (n *NetworkManager) Start(ctx context.Context) {
	go n.TCPServer.Start(ctx, n.handleControlDisconnect, n.handleControlMessage)
	go n.UDPServer.Start(ctx, n.handleGameMessage, n.PeerManager.SetUDPConn)
	go n.WSServer.Start(ctx, n.handleControlDisconnect, n.handleControlMessage)
}

type ControlDisconnectHandler func(tcpConn net.Conn, wsConn *websocket.Conn)

func (n *NetworkManager) handleControlDisconnect(conn net.Conn, wsConn *websocket.Conn) {
	peerID := n.PeerManager.GetPeerIDByTCPConn(conn)
	if peerID == 0 {
		peerID = n.PeerManager.GetPeerIDByWSConn(wsConn)
	}
	if peerID == 0 {
		log.Debug("Unregistered connection closed")
		return
	}

	n.PeerManager.DisconnectPeer(peerID, "")
	n.InputRegistry.Unregister(peerID)
	log.Info("Peer %d disconnected", peerID)
}

type ControlMessageHandler func(ctx context.Context, tcpConn net.Conn, wsConn *websocket.Conn, message *messages.Message)

func (n *NetworkManager) handleControlMessage(ctx context.Context, tcpConn net.Conn, wsConn *websocket.Conn, message *messages.Message) {
	if message.PeerID == 0 && message.Type != messages.MessageTypeClientRegister {
		log.Warn("Received message of type %s from unregistered connection", message.Type)
		return
	}

	switch message.Type {
	case messages.MessageTypeClientRegister:
		peerID, err := n.handleClientRegister(ctx, tcpConn, wsConn, message)
		if err != nil {
			log.Error("Failed to handle client register: %v", err)
			if err := n.sendRegisterFailure(ctx, tcpConn, wsConn, err.Error()); err != nil {
				log.Error("Failed to send register failure: %v", err)
			}
			return
		}
		log.Info("Peer %d registered", peerID)
	case messages.MessageTypeClientPing:
		// WebSocket peers heartbeat over their single connection.
		if err := n.handleClientPing(ctx, message, nil); err != nil {
			log.Error("Failed to handle client ping: %v", err)
		}
	case messages.MessageTypeClientInput:
		n.enqueueClientInput(message)
	case messages.MessageTypeClientEquipRequest, messages.MessageTypeClientHitRequest:
		if err := n.ActionQueue.Enqueue(message); err != nil {
			n.Metrics.IncMessagesDiscarded()
			log.Error("Failed to enqueue action message: %v", err)
		}
	default:
		log.Warn("Received unexpected message of type %s from peer %d", message.Type, message.PeerID)
	}
}

// handleClientRegister handles a client register message.
func (n *NetworkManager) handleClientRegister(ctx context.Context, tcpConn net.Conn, wsConn *websocket.Conn, message *messages.Message) (uint32, error) {
	clientRegister := &messages.ClientRegister{}
	if err := json.Unmarshal(message.Payload, clientRegister); err != nil {
		return 0, fmt.Errorf("failed to unmarshal client register: %v", err)
	}

	token, err := n.AuthProvider.VerifyToken(ctx, clientRegister.Token)
	if err != nil {
		return 0, fmt.Errorf("failed to verify token: %v", err)
	}

	zone := clientRegister.Zone
	if zone == "" {
		zone = constants.DefaultZone
	}

	peerID, sessionToken, err := n.PeerManager.ConnectPeer(tcpConn, wsConn, token.UID, clientRegister.CharacterID, clientRegister.DisplayName, zone)
	if err != nil {
		return 0, fmt.Errorf("failed to connect peer: %v", err)
	}
	n.InputRegistry.Register(peerID)

	if err := n.sendRegisterSuccess(ctx, peerID, sessionToken, zone); err != nil {
		return peerID, fmt.Errorf("failed to send register success: %v", err)
	}

	return peerID, nil
}

func (n *NetworkManager) sendRegisterSuccess(ctx context.Context, peerID uint32, sessionToken string, zone string) error {
	payload, err := json.Marshal(&messages.ServerRegisterSuccess{
		PeerID:       peerID,
		SessionToken: sessionToken,
		Zone:         zone,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal register success: %v", err)
	}

	msg := &messages.Message{
		PeerID:  0,
		Type:    messages.MessageTypeServerRegisterSuccess,
		Payload: payload,
	}

	return n.SendReliableToPeer(ctx, peerID, msg)
}

func (n *NetworkManager) sendRegisterFailure(ctx context.Context, tcpConn net.Conn, wsConn *websocket.Conn, reason string) error {
	payload, err := json.Marshal(&messages.ServerRegisterFailure{
		Reason: reason,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal register failure: %v", err)
	}

	msg := &messages.Message{
		PeerID:  0,
		Type:    messages.MessageTypeServerRegisterFailure,
		Payload: payload,
	}

	// The peer was never admitted, so write straight to the connection.
	if tcpConn != nil {
		return WriteMessageToTCP(tcpConn, msg)
	}
	if wsConn != nil {
		return WriteMessageToWS(ctx, wsConn, msg)
	}
	return fmt.Errorf("no connection to send register failure on")
}

func (n *NetworkManager) handleGameMessage(ctx context.Context, addr *net.UDPAddr, message *messages.Message) {
	if message.PeerID == 0 {
		log.Warn("Received UDP message from unregistered peer, ignoring")
		return
	}

	if !n.PeerManager.Exists(message.PeerID) {
		log.Warn("Received UDP message from %d, but peer is not connected", message.PeerID)
		return
	}

	switch message.Type {
	case messages.MessageTypeClientPing:
		if err := n.handleClientPing(ctx, message, addr); err != nil {
			log.Error("Failed to handle client ping: %v", err)
		}
	case messages.MessageTypeClientInput:
		n.enqueueClientInput(message)
	default:
		log.Warn("Received unexpected UDP message of type %s from peer %d", message.Type, message.PeerID)
	}
}

// handleClientPing refreshes the peer's heartbeat, folds the echoed
// timestamp into its latency window, and answers with a pong.
func (n *NetworkManager) handleClientPing(ctx context.Context, message *messages.Message, addr *net.UDPAddr) error {
	clientPing := &messages.ClientPing{}
	if len(message.Payload) > 0 {
		if err := json.Unmarshal(message.Payload, clientPing); err != nil {
			return fmt.Errorf("failed to unmarshal client ping: %v", err)
		}
	}

	now := time.Now()
	n.PeerManager.Touch(message.PeerID, now)
	if addr != nil {
		n.PeerManager.SetUDPAddress(message.PeerID, addr)
	}
	if clientPing.EchoTimestamp != 0 {
		n.PeerManager.RecordRTT(message.PeerID, now.UnixMilli()-clientPing.EchoTimestamp)
	}

	payload, err := json.Marshal(&messages.ServerPong{
		ClientTimestamp: clientPing.Timestamp,
		Timestamp:       now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal server pong: %v", err)
	}

	msg := &messages.Message{
		PeerID:  0,
		Type:    messages.MessageTypeServerPong,
		Payload: payload,
	}

	if err := n.SendUnreliableToPeer(ctx, message.PeerID, msg); err != nil {
		return fmt.Errorf("failed to send server pong: %v", err)
	}

	return nil
}

// enqueueClientInput routes an input message to the sending peer's
// dedicated queue.
func (n *NetworkManager) enqueueClientInput(message *messages.Message) {
	q, ok := n.InputRegistry.Get(message.PeerID)
	if !ok {
		log.Warn("Received input from peer %d with no input queue", message.PeerID)
		return
	}
	if err := q.Enqueue(message); err != nil {
		n.Metrics.IncMessagesDiscarded()
		log.Warn("Input queue full for peer %d, dropping message", message.PeerID)
		return
	}
	n.Metrics.IncMessagesEnqueued()
}

// Latency returns the estimated one-way latency to a peer in milliseconds.
func (n *NetworkManager) Latency(peerID uint32) int64 {
	return n.PeerManager.Latency(peerID)
}

// DisconnectPeer force-disconnects a peer with a declared reason, sending
// a best-effort notice before tearing the connection down.
func (n *NetworkManager) DisconnectPeer(ctx context.Context, peerID uint32, reason string) {
	payload, err := json.Marshal(&messages.ServerDisconnect{Reason: reason})
	if err == nil {
		msg := &messages.Message{
			PeerID:  0,
			Type:    messages.MessageTypeServerDisconnect,
			Payload: payload,
		}
		if err := n.SendReliableToPeer(ctx, peerID, msg); err != nil {
			log.Debug("Failed to send disconnect notice to peer %d: %v", peerID, err)
		}
	}

	peer, err := n.PeerManager.GetPeer(peerID)
	if err == nil {
		if peer.TCPConn != nil {
			peer.TCPConn.Close()
		}
		if peer.WSConn != nil {
			peer.WSConn.Close(websocket.StatusNormalClosure, reason)
		}
	}

	n.PeerManager.DisconnectPeer(peerID, reason)
	n.InputRegistry.Unregister(peerID)
}

// SendUnreliableToPeers sends a message to the given peers over their
// unreliable channel.
func (n *NetworkManager) SendUnreliableToPeers(ctx context.Context, peerIDs []uint32, msg *messages.Message) {
	for _, peerID := range peerIDs {
		if err := n.SendUnreliableToPeer(ctx, peerID, msg); err != nil {
			log.Debug("Failed to send unreliable message to peer %d: %v", peerID, err)
		}
	}
}

func (n *NetworkManager) SendUnreliableToPeer(ctx context.Context, peerID uint32, msg *messages.Message) error {
	peer, err := n.PeerManager.GetPeer(peerID)
	if err != nil {
		return fmt.Errorf("failed to get peer %d: %v", peerID, err)
	}

	switch peer.ConnectionType {
	case PeerConnectionTypeTCPUDP:
		if peer.UDPAddress == nil {
			return fmt.Errorf("peer %d does not have a UDP address", peer.ID)
		}
		if err := WriteMessageToUDP(n.PeerManager.GetUDPConn(), peer.UDPAddress, msg); err != nil {
			return fmt.Errorf("failed to write message to UDP connection for peer %d: %v", peer.ID, err)
		}
	case PeerConnectionTypeWebSocket:
		if err := WriteMessageToWS(ctx, peer.WSConn, msg); err != nil {
			return fmt.Errorf("failed to write message to WebSocket connection for peer %d: %v", peer.ID, err)
		}
	default:
		return fmt.Errorf("unknown connection type for peer %d: %v", peer.ID, peer.ConnectionType)
	}

	return nil
}

// SendReliableToPeers sends a message to the given peers over their
// reliable channel.
func (n *NetworkManager) SendReliableToPeers(ctx context.Context, peerIDs []uint32, msg *messages.Message) {
	for _, peerID := range peerIDs {
		if err := n.SendReliableToPeer(ctx, peerID, msg); err != nil {
			log.Error("Failed to send reliable message to peer %d: %v", peerID, err)
		}
	}
}

func (n *NetworkManager) SendReliableToPeer(ctx context.Context, peerID uint32, msg *messages.Message) error {
	peer, err := n.PeerManager.GetPeer(peerID)
	if err != nil {
		return fmt.Errorf("failed to get peer %d: %v", peerID, err)
	}

	switch peer.ConnectionType {
	case PeerConnectionTypeTCPUDP:
		if err := WriteMessageToTCP(peer.TCPConn, msg); err != nil {
			return fmt.Errorf("failed to write message to TCP connection for peer %d: %v", peer.ID, err)
		}
	case PeerConnectionTypeWebSocket:
		if err := WriteMessageToWS(ctx, peer.WSConn, msg); err != nil {
			return fmt.Errorf("failed to write message to WebSocket connection for peer %d: %v", peer.ID, err)
		}
	default:
		return fmt.Errorf("unknown connection type for peer %d: %v", peer.ID, peer.ConnectionType)
	}

	return nil
}
