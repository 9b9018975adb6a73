package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/queue"
)

const (
	DefaultServerHostname = "localhost"
	DefaultServerTCPPort  = 8888
	DefaultServerUDPPort  = 8889
)

// RegisterOptions carries everything needed to join a server.
type RegisterOptions struct {
	Hostname    string
	TCPPort     int
	UDPPort     int
	Token       string
	DisplayName string
	CharacterID int32
	Zone        string
}

// NetworkManager owns the client's connection to the server: the
// reliable and unreliable channels, the register handshake, the
// heartbeat loop, and the latency and server-time estimates.
type NetworkManager struct {
	serverMessageQueue  queue.Queue
	tcpClient           *TCPClient
	tcpClientErrChan    chan error
	udpClient           *UDPClient
	udpClientErrChan    chan error
	registerSuccessChan chan *messages.ServerRegisterSuccess
	registerErrChan     chan error
	pongChan            chan *messages.ServerPong
	cancelClientCtx     context.CancelFunc
	clientWaitGroup     *sync.WaitGroup

	connectionState int32

	peerID       uint32
	sessionToken string
	zone         string
	sessionMutex sync.Mutex

	serverTime        float64
	ping              float64
	recentRTTs        []int64
	lastPongTimestamp int64
	serverTimeMutex   sync.Mutex
}

// NewNetworkManager creates a new network manager. Messages from the
// server that the application must react to are placed on messageQueue.
func NewNetworkManager(messageQueue queue.Queue) *NetworkManager {
	return &NetworkManager{
		serverMessageQueue:  messageQueue,
		tcpClientErrChan:    make(chan error, 1),
		udpClientErrChan:    make(chan error, 1),
		registerSuccessChan: make(chan *messages.ServerRegisterSuccess, 1),
		registerErrChan:     make(chan error, 1),
		pongChan:            make(chan *messages.ServerPong, 1),
		clientWaitGroup:     &sync.WaitGroup{},
	}
}

// ConnectionState returns the current connection lifecycle state.
func (m *NetworkManager) ConnectionState() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&m.connectionState))
}

func (m *NetworkManager) setConnectionState(state ConnectionState) {
	atomic.StoreInt32(&m.connectionState, int32(state))
}

// Connect dials the server and runs the register handshake. On return
// with a nil error the manager is connected and heartbeating; any error
// leaves the manager offline.
func (m *NetworkManager) Connect(ctx context.Context, opts RegisterOptions) error {
	if m.ConnectionState() != ConnectionStateOffline {
		return fmt.Errorf("already %s", m.ConnectionState())
	}
	m.setConnectionState(ConnectionStateConnecting)

	hostname := opts.Hostname
	if hostname == "" {
		hostname = DefaultServerHostname
	}
	tcpPort := opts.TCPPort
	if tcpPort == 0 {
		tcpPort = DefaultServerTCPPort
	}
	udpPort := opts.UDPPort
	if udpPort == 0 {
		udpPort = DefaultServerUDPPort
	}

	m.tcpClient = NewTCPClient(fmt.Sprintf("%s:%d", hostname, tcpPort), m.serverMessageQueue, m.registerSuccessChan, m.registerErrChan)
	udpClient, err := NewUDPClient(fmt.Sprintf("%s:%d", hostname, udpPort), m.serverMessageQueue, m.pongChan)
	if err != nil {
		m.setConnectionState(ConnectionStateOffline)
		return fmt.Errorf("failed to create UDP client: %v", err)
	}
	m.udpClient = udpClient

	if err := m.tcpClient.Connect(); err != nil {
		m.setConnectionState(ConnectionStateOffline)
		return fmt.Errorf("failed to connect: %v", err)
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	m.cancelClientCtx = cancel

	m.clientWaitGroup.Add(1)
	go func() {
		defer m.clientWaitGroup.Done()
		if err := m.tcpClient.HandleMessages(clientCtx); err != nil {
			m.tcpClientErrChan <- err
		}
	}()

	if err := m.register(ctx, opts); err != nil {
		m.teardown()
		return err
	}

	m.clientWaitGroup.Add(1)
	go func() {
		defer m.clientWaitGroup.Done()
		if err := m.udpClient.Connect(clientCtx); err != nil {
			m.udpClientErrChan <- err
		}
	}()

	m.clientWaitGroup.Add(1)
	go func() {
		defer m.clientWaitGroup.Done()
		m.heartbeatLoop(clientCtx)
	}()

	m.setConnectionState(ConnectionStateConnected)
	return nil
}

func (m *NetworkManager) register(ctx context.Context, opts RegisterOptions) error {
	payload, err := json.Marshal(&messages.ClientRegister{
		Token:       opts.Token,
		DisplayName: opts.DisplayName,
		CharacterID: opts.CharacterID,
		Zone:        opts.Zone,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal client register: %v", err)
	}

	if err := m.tcpClient.SendMessage(&messages.Message{
		PeerID:  0,
		Type:    messages.MessageTypeClientRegister,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("failed to send client register: %v", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dialTimeout):
		return fmt.Errorf("timed out waiting for registration")
	case err := <-m.tcpClientErrChan:
		return fmt.Errorf("connection failed during registration: %v", err)
	case err := <-m.registerErrChan:
		return err
	case success := <-m.registerSuccessChan:
		m.sessionMutex.Lock()
		m.peerID = success.PeerID
		m.sessionToken = success.SessionToken
		m.zone = success.Zone
		m.sessionMutex.Unlock()
		log.Info("Registered with server as peer %d in zone %s", success.PeerID, success.Zone)
	}

	return nil
}

// heartbeatLoop pings at the heartbeat interval and folds pongs into the
// latency and server-time estimates. Each ping echoes the server
// timestamp of the previous pong so the server can measure its own
// round trip.
func (m *NetworkManager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(constants.HeartbeatInterval)
	defer ticker.Stop()

	if err := m.sendPing(); err != nil {
		log.Debug("Failed to send ping: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sendPing(); err != nil {
				log.Debug("Failed to send ping: %v", err)
			}
		case pong := <-m.pongChan:
			m.handlePong(pong)
		}
	}
}

func (m *NetworkManager) sendPing() error {
	m.serverTimeMutex.Lock()
	echo := m.lastPongTimestamp
	m.serverTimeMutex.Unlock()

	payload, err := json.Marshal(&messages.ClientPing{
		Timestamp:     time.Now().UnixMilli(),
		EchoTimestamp: echo,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal client ping: %v", err)
	}

	return m.SendUnreliableMessage(&messages.Message{
		PeerID: m.PeerID(),
		Type:   messages.MessageTypeClientPing,
		Payload: payload,
	})
}

func (m *NetworkManager) handlePong(pong *messages.ServerPong) {
	rtt := time.Now().UnixMilli() - pong.ClientTimestamp
	serverTime := pong.Timestamp + rtt/2

	m.serverTimeMutex.Lock()
	defer m.serverTimeMutex.Unlock()

	m.lastPongTimestamp = pong.Timestamp

	// keep track of the last 10 RTTs to calculate an average ping
	m.recentRTTs = append(m.recentRTTs, rtt)
	for len(m.recentRTTs) > constants.LatencyWindowSize {
		m.recentRTTs = m.recentRTTs[1:]
	}

	sampleRTTs := removeOutlierRTTs(m.recentRTTs)
	ping := 0.0
	for _, p := range sampleRTTs {
		ping += float64(p)
	}
	if len(sampleRTTs) > 0 {
		ping /= float64(len(sampleRTTs))
	}

	m.serverTime = float64(serverTime)
	m.ping = ping
	log.Trace("Server time: %d, ping: %.1f", serverTime, ping)
}

// UpdateServerTime advances the local server-time estimate between pongs.
func (m *NetworkManager) UpdateServerTime(deltaTime float64) {
	m.serverTimeMutex.Lock()
	defer m.serverTimeMutex.Unlock()
	m.serverTime += deltaTime * 1000
}

// ServerTime returns the estimated server time in milliseconds and the
// filtered round-trip average.
func (m *NetworkManager) ServerTime() (serverTime float64, ping float64) {
	m.serverTimeMutex.Lock()
	defer m.serverTimeMutex.Unlock()
	return m.serverTime, m.ping
}

// Disconnect stops the network manager and its clients and clears the
// server message queue.
func (m *NetworkManager) Disconnect() error {
	if m.ConnectionState() == ConnectionStateOffline {
		log.Warn("Network manager already offline")
		return nil
	}
	m.teardown()

	if err := m.serverMessageQueue.ClearQueue(); err != nil {
		return fmt.Errorf("failed to clear server message queue: %v", err)
	}

	log.Info("Network manager stopped")
	return nil
}

func (m *NetworkManager) teardown() {
	if m.cancelClientCtx != nil {
		m.cancelClientCtx()
		m.cancelClientCtx = nil
	}
	m.tcpClient.Close()
	m.udpClient.Close()

	log.Debug("Waiting for clients to stop")
	m.clientWaitGroup.Wait()

	m.sessionMutex.Lock()
	m.peerID = 0
	m.sessionToken = ""
	m.zone = ""
	m.sessionMutex.Unlock()

	m.setConnectionState(ConnectionStateOffline)
}

func (m *NetworkManager) ServerMessageQueue() queue.Queue {
	return m.serverMessageQueue
}

func (m *NetworkManager) TCPClientErrChan() <-chan error {
	return m.tcpClientErrChan
}

func (m *NetworkManager) UDPClientErrChan() <-chan error {
	return m.udpClientErrChan
}

func (m *NetworkManager) PeerID() uint32 {
	m.sessionMutex.Lock()
	defer m.sessionMutex.Unlock()
	return m.peerID
}

func (m *NetworkManager) Zone() string {
	m.sessionMutex.Lock()
	defer m.sessionMutex.Unlock()
	return m.zone
}

// SendInputBatch sends a batch of input snapshots over the unreliable
// channel.
func (m *NetworkManager) SendInputBatch(batch []messages.InputSnapshot) error {
	payload, err := json.Marshal(&messages.ClientInput{Snapshots: batch})
	if err != nil {
		return fmt.Errorf("failed to marshal client input: %v", err)
	}

	return m.SendUnreliableMessage(&messages.Message{
		PeerID:  m.PeerID(),
		Type:    messages.MessageTypeClientInput,
		Payload: payload,
	})
}

// SendEquipRequest sends an equip request over the reliable channel.
func (m *NetworkManager) SendEquipRequest(slot, itemID string) error {
	payload, err := json.Marshal(&messages.ClientEquipRequest{Slot: slot, ItemID: itemID})
	if err != nil {
		return fmt.Errorf("failed to marshal equip request: %v", err)
	}

	return m.SendReliableMessage(&messages.Message{
		PeerID:  m.PeerID(),
		Type:    messages.MessageTypeClientEquipRequest,
		Payload: payload,
	})
}

// SendHitRequest reports a detected hit over the reliable channel.
func (m *NetworkManager) SendHitRequest(request *messages.ClientHitRequest) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal hit request: %v", err)
	}

	return m.SendReliableMessage(&messages.Message{
		PeerID:  m.PeerID(),
		Type:    messages.MessageTypeClientHitRequest,
		Payload: payload,
	})
}

func (m *NetworkManager) SendReliableMessage(msg *messages.Message) error {
	return m.tcpClient.SendMessage(msg)
}

func (m *NetworkManager) SendUnreliableMessage(msg *messages.Message) error {
	return m.udpClient.SendMessage(msg)
}

func unmarshalPayload(msg *messages.Message, v interface{}) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v", msg.Type, err)
	}
	return nil
}
