package workers

import (
	"context"

	"github.com/emberforge/vanguard/pkg/game/constants"
	gametypes "github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/network"
	"github.com/emberforge/vanguard/pkg/queue"
	"github.com/emberforge/vanguard/pkg/repositories"
)

type ConnectionEventWorker struct {
	peerEventChan    <-chan network.PeerEvent
	repository       repositories.Repository
	serverEventQueue queue.Queue
}

type NewConnectionEventWorkerOptions struct {
	PeerEventChan    <-chan network.PeerEvent
	Repository       repositories.Repository
	ServerEventQueue queue.Queue
}

// NewConnectionEventWorker creates a new ConnectionEventWorker.
// The worker resolves characters for connecting peers against the
// repository and writes server events to a queue for the game loop
// to process.
func NewConnectionEventWorker(opts NewConnectionEventWorkerOptions) *ConnectionEventWorker {
	return &ConnectionEventWorker{
		peerEventChan:    opts.PeerEventChan,
		repository:       opts.Repository,
		serverEventQueue: opts.ServerEventQueue,
	}
}

func (w *ConnectionEventWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.peerEventChan:
			switch event.Type {
			case network.PeerEventTypeConnect:
				w.handlePeerConnect(ctx, event)
			case network.PeerEventTypeDisconnect:
				w.handlePeerDisconnect(event)
			default:
				log.Error("Unknown peer event type: %v", event.Type)
			}
		}
	}
}

func (w *ConnectionEventWorker) handlePeerConnect(ctx context.Context, event network.PeerEvent) {
	data, ok := event.Data.(network.PeerConnectData)
	if !ok {
		log.Error("Failed to cast peer connect data")
		return
	}

	character, err := w.repository.GetCharacter(ctx, data.AccountID, data.CharacterID)
	if err != nil {
		if !repositories.IsNotFound(err) {
			log.Error("Failed to get character %d for account %s: %v", data.CharacterID, data.AccountID, err)
			return
		}
		character, err = w.repository.CreateCharacter(ctx, data.AccountID, data.CharacterID, data.DisplayName)
		if err != nil {
			log.Error("Failed to create character %d for account %s: %v", data.CharacterID, data.AccountID, err)
			return
		}
		log.Debug("Created character %d for account %s", character.ID, data.AccountID)
	}

	entityState := gametypes.EntityState{
		Hitpoints: constants.PlayerHitpoints,
	}
	if lastKnownState, err := w.repository.LoadCharacterState(ctx, character.ID); err == nil {
		entityState.Position = lastKnownState.Position
		entityState.Hitpoints = lastKnownState.Hitpoints
		if entityState.Hitpoints <= 0 {
			entityState.Hitpoints = constants.PlayerHitpoints
		}
	} else {
		if !repositories.IsNotFound(err) {
			log.Error("Failed to load state for character %d: %v", character.ID, err)
		}
		log.Debug("Adding character %d with default values", character.ID)
		entityState.Position = kinematic.Vector{
			X: constants.SpawnX,
			Y: constants.SpawnY,
		}
	}

	if err := w.serverEventQueue.Enqueue(&gametypes.ConnectPeerEvent{
		PeerID:      event.PeerID,
		CharacterID: character.ID,
		AccountID:   data.AccountID,
		DisplayName: data.DisplayName,
		Zone:        data.Zone,
		State:       entityState,
	}); err != nil {
		log.Error("Failed to enqueue connect peer event: %v", err)
	}
}

func (w *ConnectionEventWorker) handlePeerDisconnect(event network.PeerEvent) {
	reason := ""
	if data, ok := event.Data.(network.PeerDisconnectData); ok {
		reason = data.Reason
	}
	if err := w.serverEventQueue.Enqueue(&gametypes.DisconnectPeerEvent{
		PeerID: event.PeerID,
		Reason: reason,
	}); err != nil {
		log.Error("Failed to enqueue disconnect peer event: %v", err)
	}
}
