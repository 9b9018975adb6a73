package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/solarlune/resolv"

	"github.com/emberforge/vanguard/pkg/armory"
	"github.com/emberforge/vanguard/pkg/game/constants"
	"github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/metrics"
	"github.com/emberforge/vanguard/pkg/network"
	"github.com/emberforge/vanguard/pkg/queue"
	"github.com/emberforge/vanguard/pkg/sim"
	"github.com/emberforge/vanguard/pkg/snapshots"
	"github.com/emberforge/vanguard/pkg/state"
	"github.com/emberforge/vanguard/pkg/workers"
	"github.com/emberforge/vanguard/pkg/zones"
)

// MessageSender is the outbound side of the network layer as seen by
// the game loop.
type MessageSender interface {
	SendReliableToPeer(ctx context.Context, peerID uint32, msg *messages.Message) error
	SendReliableToPeers(ctx context.Context, peerIDs []uint32, msg *messages.Message)
	SendUnreliableToPeers(ctx context.Context, peerIDs []uint32, msg *messages.Message)
	Latency(peerID uint32) int64
}

type GameManager struct {
	sender              MessageSender
	serverEventQueue    queue.Queue
	actionQueue         queue.Queue
	inputRegistry       *network.InputRegistry
	zones               *zones.Manager
	catalog             *armory.Catalog
	stepper             sim.Stepper
	stateManager        state.StateManager
	saveCharacterChan   chan<- workers.SaveCharacterStateRequest
	outboundMessageChan chan<- workers.OutboundMessage
	metrics             *metrics.Metrics
	tickInterval        time.Duration

	tick      uint32
	timestamp int64
	sessions  map[uint32]*types.PeerSession
	spaces    map[string]*resolv.Space
}

// NewGameManagerOptions contains options for creating a new GameManager.
type NewGameManagerOptions struct {
	Sender            MessageSender
	ServerEventQueue  queue.Queue
	ActionQueue       queue.Queue
	InputRegistry     *network.InputRegistry
	Zones             *zones.Manager
	Catalog           *armory.Catalog
	Stepper           sim.Stepper
	StateManager      state.StateManager
	SaveCharacterChan chan<- workers.SaveCharacterStateRequest
	// OutboundMessageChan, when set, hands reliable zone broadcasts to
	// the outbound message worker instead of sending them inline.
	OutboundMessageChan chan<- workers.OutboundMessage
	Metrics             *metrics.Metrics
	TickInterval        time.Duration
}

func NewGameManager(opts NewGameManagerOptions) *GameManager {
	tickInterval := opts.TickInterval
	if tickInterval == 0 {
		tickInterval = constants.TickInterval
	}
	stepper := opts.Stepper
	if stepper == nil {
		stepper = sim.NewKinematicStepper()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = armory.DefaultCatalog()
	}
	return &GameManager{
		sender:              opts.Sender,
		serverEventQueue:    opts.ServerEventQueue,
		actionQueue:         opts.ActionQueue,
		inputRegistry:       opts.InputRegistry,
		zones:               opts.Zones,
		catalog:             catalog,
		stepper:             stepper,
		stateManager:        opts.StateManager,
		saveCharacterChan:   opts.SaveCharacterChan,
		outboundMessageChan: opts.OutboundMessageChan,
		metrics:             opts.Metrics,
		tickInterval:        tickInterval,
		sessions:            make(map[uint32]*types.PeerSession),
		spaces:              make(map[string]*resolv.Space),
	}
}

// Start starts the game loop.
func (gm *GameManager) Start(ctx context.Context) error {
	ticker := time.NewTicker(gm.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			started := time.Now()
			if err := gm.gameTick(ctx, t); err != nil {
				log.Error("Failed to run game tick: %v", err)
			}
			gm.metrics.AddTick(time.Since(started).Nanoseconds())
		}
	}
}

// TransitionZone asks the game loop to move a peer to another zone.
// The transition happens on the next tick.
func (gm *GameManager) TransitionZone(peerID uint32, zone string) error {
	if zone == "" {
		return fmt.Errorf("zone is required")
	}
	if err := gm.serverEventQueue.Enqueue(&types.ZoneTransitionEvent{
		PeerID: peerID,
		Zone:   zone,
	}); err != nil {
		return fmt.Errorf("failed to enqueue zone transition event: %v", err)
	}
	return nil
}

// gameTick runs one iteration of the game loop.
func (gm *GameManager) gameTick(ctx context.Context, t time.Time) error {
	gm.tick++
	gm.timestamp = t.UnixMilli()
	gm.processServerEvents(ctx)
	gm.processInputs()
	gm.processActions(ctx)
	gm.snapshotEntities(ctx)
	gm.broadcastWorldState(ctx)

	return nil
}

// processServerEvents processes all pending server events in the queue:
// peer connects, disconnects, and zone transitions.
func (gm *GameManager) processServerEvents(ctx context.Context) {
	pendingEvents, err := gm.serverEventQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read server events: %v", err)
		return
	}
	for _, item := range pendingEvents {
		switch event := item.(type) {
		case *types.ConnectPeerEvent:
			gm.connectPeer(ctx, event)
		case *types.DisconnectPeerEvent:
			gm.disconnectPeer(ctx, event)
		case *types.ZoneTransitionEvent:
			gm.transitionPeer(ctx, event)
		default:
			log.Error("Unhandled server event type: %T", event)
		}
	}
}

func (gm *GameManager) connectPeer(ctx context.Context, event *types.ConnectPeerEvent) {
	if _, ok := gm.sessions[event.PeerID]; ok {
		log.Warn("Peer %d is already in the simulation", event.PeerID)
		return
	}

	zone := event.Zone
	if zone == "" {
		zone = constants.DefaultZone
	}

	entityState := event.State
	body := resolv.NewObject(entityState.Position.X, entityState.Position.Y, constants.PlayerWidth, constants.PlayerHeight)
	body.Data = event.PeerID
	gm.space(zone).Add(body)

	inputQueue, ok := gm.inputRegistry.Get(event.PeerID)
	if !ok {
		inputQueue = gm.inputRegistry.Register(event.PeerID)
	}

	session := &types.PeerSession{
		PeerID:      event.PeerID,
		CharacterID: event.CharacterID,
		AccountID:   event.AccountID,
		DisplayName: event.DisplayName,
		State:       &entityState,
		Body:        body,
		History:     snapshots.NewRing(constants.SnapshotHistorySize),
		InputQueue:  inputQueue,
		Loadout: map[string]string{
			"mainhand": armory.WeaponUnarmed,
		},
	}
	gm.sessions[event.PeerID] = session

	if err := gm.zones.Join(event.PeerID, zone); err != nil {
		log.Error("Failed to join peer %d to zone %s: %v", event.PeerID, zone, err)
	}
	log.Debug("Peer %d joined zone %s as %s", event.PeerID, zone, event.DisplayName)

	snapshot := session.State.Snapshot(gm.tick, gm.timestamp, session.LastInputTick)

	// announce the new peer to the rest of the zone
	gm.sendReliableToZone(ctx, zone, event.PeerID, messages.MessageTypeServerPeerJoined, &messages.ServerPeerJoined{
		Peer: messages.PeerInfo{
			PeerID:      event.PeerID,
			DisplayName: event.DisplayName,
			Zone:        zone,
		},
		State: snapshot,
	})

	gm.sendZoneSync(ctx, event.PeerID, zone)
}

func (gm *GameManager) disconnectPeer(ctx context.Context, event *types.DisconnectPeerEvent) {
	session, ok := gm.sessions[event.PeerID]
	if !ok {
		return
	}

	// save before the state is torn down
	gm.saveCharacterChan <- workers.SaveCharacterStateRequest{
		Timestamp:   gm.timestamp,
		CharacterID: session.CharacterID,
		Snapshot:    session.State.Snapshot(gm.tick, gm.timestamp, session.LastInputTick),
	}

	zone, err := gm.zones.Leave(event.PeerID)
	if err != nil {
		log.Error("Failed to remove peer %d from its zone: %v", event.PeerID, err)
	} else {
		gm.space(zone).Remove(session.Body)
	}
	delete(gm.sessions, event.PeerID)

	if zone != "" {
		gm.sendReliableToZone(ctx, zone, 0, messages.MessageTypeServerPeerLeft, &messages.ServerPeerLeft{
			PeerID: event.PeerID,
			Reason: event.Reason,
		})
	}
}

func (gm *GameManager) transitionPeer(ctx context.Context, event *types.ZoneTransitionEvent) {
	session, ok := gm.sessions[event.PeerID]
	if !ok {
		log.Warn("Cannot transition peer %d: not in the simulation", event.PeerID)
		return
	}

	from, err := gm.zones.Transition(event.PeerID, event.Zone)
	if err != nil {
		log.Error("Failed to transition peer %d to zone %s: %v", event.PeerID, event.Zone, err)
		return
	}
	gm.space(from).Remove(session.Body)
	gm.space(event.Zone).Add(session.Body)
	gm.metrics.IncZoneTransitions()
	log.Info("Peer %d moved from zone %s to zone %s", event.PeerID, from, event.Zone)

	snapshot := session.State.Snapshot(gm.tick, gm.timestamp, session.LastInputTick)

	gm.sendReliableToZone(ctx, from, 0, messages.MessageTypeServerPeerLeft, &messages.ServerPeerLeft{
		PeerID: event.PeerID,
	})
	gm.sendReliableToZone(ctx, event.Zone, event.PeerID, messages.MessageTypeServerPeerJoined, &messages.ServerPeerJoined{
		Peer: messages.PeerInfo{
			PeerID:      event.PeerID,
			DisplayName: session.DisplayName,
			Zone:        event.Zone,
		},
		State: snapshot,
	})

	gm.sendZoneSync(ctx, event.PeerID, event.Zone)
}

// sendZoneSync sends a peer everything it needs to enter a zone: the
// scene to load, then the full zone state and roster.
func (gm *GameManager) sendZoneSync(ctx context.Context, peerID uint32, zone string) {
	gm.sendReliableToPeer(ctx, peerID, messages.MessageTypeServerZoneLoad, &messages.ServerZoneLoad{
		Zone:     zone,
		SceneRef: fmt.Sprintf("scenes/%s", zone),
	})

	entities := make(map[uint32]messages.EntitySnapshot)
	roster := make([]messages.PeerInfo, 0)
	for _, memberID := range gm.zones.Members(zone) {
		member, ok := gm.sessions[memberID]
		if !ok {
			continue
		}
		entities[memberID] = member.State.Snapshot(gm.tick, gm.timestamp, member.LastInputTick)
		roster = append(roster, messages.PeerInfo{
			PeerID:      memberID,
			DisplayName: member.DisplayName,
			Zone:        zone,
		})
	}

	gm.sendReliableToPeer(ctx, peerID, messages.MessageTypeServerInitialSync, &messages.ServerInitialSync{
		Tick:      gm.tick,
		Timestamp: gm.timestamp,
		Zone:      zone,
		Entities:  entities,
		Roster:    roster,
	})
}

// processInputs drains each peer's input queue and advances its entity
// through every new input in tick order. Redundant copies of inputs
// already applied are skipped.
func (gm *GameManager) processInputs() {
	for peerID, session := range gm.sessions {
		items, err := session.InputQueue.ReadAllMessages()
		if err != nil {
			log.Error("Failed to read input queue for peer %d: %v", peerID, err)
			continue
		}
		if len(items) == 0 {
			continue
		}

		pending := make([]messages.InputSnapshot, 0, len(items)*(constants.InputRedundancy+1))
		for _, item := range items {
			message, ok := item.(*messages.Message)
			if !ok {
				log.Error("Failed to cast input queue item to messages.Message")
				continue
			}
			clientInput := &messages.ClientInput{}
			if err := json.Unmarshal(message.Payload, clientInput); err != nil {
				log.Error("Failed to unmarshal client input from peer %d: %v", peerID, err)
				continue
			}
			pending = append(pending, clientInput.Snapshots...)
		}

		if !sort.SliceIsSorted(pending, func(i, j int) bool {
			return pending[i].Tick < pending[j].Tick
		}) {
			gm.metrics.IncInputsReordered()
			sort.Slice(pending, func(i, j int) bool {
				return pending[i].Tick < pending[j].Tick
			})
		}

		for _, snapshot := range pending {
			if snapshot.Tick <= session.LastInputTick {
				gm.metrics.IncInputsDuplicate()
				continue
			}
			gm.stepper.Apply(session.State, snapshot, constants.SimDeltaTime)
			session.LastInputTick = snapshot.Tick
			gm.metrics.IncInputsApplied()
		}

		session.Body.Position.X = session.State.Position.X
		session.Body.Position.Y = session.State.Position.Y
		session.Body.Update()
	}
}

// snapshotEntities records this tick's authoritative snapshot for every
// entity and publishes the world view for observers outside the loop.
func (gm *GameManager) snapshotEntities(ctx context.Context) {
	view := &state.WorldView{
		Tick:       gm.tick,
		Timestamp:  gm.timestamp,
		Zones:      gm.zones.Zones(),
		Entities:   make(map[uint32]messages.EntitySnapshot, len(gm.sessions)),
		Characters: make(map[int32]messages.EntitySnapshot, len(gm.sessions)),
	}

	for peerID, session := range gm.sessions {
		snapshot := session.State.Snapshot(gm.tick, gm.timestamp, session.LastInputTick)
		session.History.Push(snapshot)
		view.Entities[peerID] = snapshot
		view.Characters[session.CharacterID] = snapshot
	}

	if err := gm.stateManager.Set(ctx, view); err != nil {
		log.Error("Failed to publish world view: %v", err)
	}
}

// broadcastWorldState sends each zone its own entities and nothing else.
func (gm *GameManager) broadcastWorldState(ctx context.Context) {
	for zone, members := range gm.zones.Zones() {
		entities := make(map[uint32]messages.EntitySnapshot, len(members))
		for _, memberID := range members {
			session, ok := gm.sessions[memberID]
			if !ok {
				continue
			}
			entities[memberID] = session.State.Snapshot(gm.tick, gm.timestamp, session.LastInputTick)
		}

		payload, err := json.Marshal(&messages.ServerWorldState{
			Tick:      gm.tick,
			Timestamp: gm.timestamp,
			Entities:  entities,
		})
		if err != nil {
			log.Error("Failed to marshal world state for zone %s: %v", zone, err)
			continue
		}

		gm.sender.SendUnreliableToPeers(ctx, members, &messages.Message{
			PeerID:  0,
			Type:    messages.MessageTypeServerWorldState,
			Payload: payload,
		})
		gm.metrics.AddSnapshotsSent(int64(len(members)))
	}
}

// sendReliableToZone sends a message to every member of a zone except
// the excluded peer. Pass 0 to send to everyone.
func (gm *GameManager) sendReliableToZone(ctx context.Context, zone string, exclude uint32, messageType messages.MessageType, message interface{}) {
	members := gm.zones.Members(zone)
	targets := make([]uint32, 0, len(members))
	for _, memberID := range members {
		if memberID == exclude {
			continue
		}
		targets = append(targets, memberID)
	}
	if len(targets) == 0 {
		return
	}

	if gm.outboundMessageChan != nil {
		select {
		case gm.outboundMessageChan <- workers.OutboundMessage{
			PeerIDs: targets,
			Type:    messageType,
			Message: message,
		}:
			return
		default:
			// worker backlogged, send inline rather than drop
		}
	}

	payload, err := json.Marshal(message)
	if err != nil {
		log.Error("Failed to marshal message of type %s: %v", messageType, err)
		return
	}

	gm.sender.SendReliableToPeers(ctx, targets, &messages.Message{
		PeerID:  0,
		Type:    messageType,
		Payload: payload,
	})
}

func (gm *GameManager) sendReliableToPeer(ctx context.Context, peerID uint32, messageType messages.MessageType, message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Error("Failed to marshal message of type %s: %v", messageType, err)
		return
	}

	if err := gm.sender.SendReliableToPeer(ctx, peerID, &messages.Message{
		PeerID:  0,
		Type:    messageType,
		Payload: payload,
	}); err != nil {
		log.Error("Failed to send message of type %s to peer %d: %v", messageType, peerID, err)
	}
}

// space returns the collision space for a zone, creating it on first use.
func (gm *GameManager) space(zone string) *resolv.Space {
	if space, ok := gm.spaces[zone]; ok {
		return space
	}
	space := resolv.NewSpace(1024, 1024, 16, 16)
	gm.spaces[zone] = space
	return space
}
