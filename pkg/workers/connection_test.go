package workers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/vanguard/pkg/game/constants"
	gametypes "github.com/emberforge/vanguard/pkg/game/types"
	"github.com/emberforge/vanguard/pkg/kinematic"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/network"
	"github.com/emberforge/vanguard/pkg/queue"
	"github.com/emberforge/vanguard/pkg/repositories"
)

// fakeRepository keeps characters and their states in maps.
type fakeRepository struct {
	characters map[int32]*repositories.Character
	states     map[int32]*repositories.CharacterState
	created    []int32
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		characters: make(map[int32]*repositories.Character),
		states:     make(map[int32]*repositories.CharacterState),
	}
}

func (f *fakeRepository) Close(ctx context.Context) error {
	return nil
}

func (f *fakeRepository) GetCharacter(ctx context.Context, accountID string, characterID int32) (*repositories.Character, error) {
	character, ok := f.characters[characterID]
	if !ok {
		return nil, &repositories.ErrNotFound{}
	}
	return character, nil
}

func (f *fakeRepository) CreateCharacter(ctx context.Context, accountID string, characterID int32, name string) (*repositories.Character, error) {
	character := &repositories.Character{ID: characterID, AccountID: accountID, Name: name}
	f.characters[characterID] = character
	f.created = append(f.created, characterID)
	return character, nil
}

func (f *fakeRepository) LoadCharacterState(ctx context.Context, characterID int32) (*repositories.CharacterState, error) {
	state, ok := f.states[characterID]
	if !ok {
		return nil, &repositories.ErrNotFound{}
	}
	return state, nil
}

func (f *fakeRepository) SaveCharacterState(ctx context.Context, timestamp int64, characterID int32, snapshot messages.EntitySnapshot) error {
	f.states[characterID] = &repositories.CharacterState{
		CharacterID: characterID,
		Position:    snapshot.Position,
		Hitpoints:   snapshot.Hitpoints,
		UpdatedAt:   timestamp,
	}
	return nil
}

func connectEvent(peerID uint32, characterID int32) network.PeerEvent {
	return network.PeerEvent{
		PeerID: peerID,
		Type:   network.PeerEventTypeConnect,
		Data: network.PeerConnectData{
			AccountID:   "account-1",
			CharacterID: characterID,
			DisplayName: "alice",
			Zone:        "hub",
		},
	}
}

func readSingleEvent(t *testing.T, serverEventQueue queue.Queue) interface{} {
	t.Helper()
	items, err := serverEventQueue.ReadAllMessages()
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0]
}

func TestConnectionEventWorker_newCharacterSpawnsWithDefaults(t *testing.T) {
	repository := newFakeRepository()
	serverEventQueue := queue.NewInMemoryQueue(10)
	worker := NewConnectionEventWorker(NewConnectionEventWorkerOptions{
		Repository:       repository,
		ServerEventQueue: serverEventQueue,
	})

	worker.handlePeerConnect(context.Background(), connectEvent(1, 7))

	assert.Equal(t, []int32{7}, repository.created, "unknown characters are created on first connect")

	event, ok := readSingleEvent(t, serverEventQueue).(*gametypes.ConnectPeerEvent)
	require.True(t, ok)
	assert.Equal(t, uint32(1), event.PeerID)
	assert.Equal(t, int32(7), event.CharacterID)
	assert.Equal(t, "hub", event.Zone)
	assert.Equal(t, float64(constants.SpawnX), event.State.Position.X)
	assert.Equal(t, int16(constants.PlayerHitpoints), event.State.Hitpoints)
}

func TestConnectionEventWorker_returningCharacterLoadsSavedState(t *testing.T) {
	repository := newFakeRepository()
	repository.characters[7] = &repositories.Character{ID: 7, AccountID: "account-1", Name: "alice"}
	repository.states[7] = &repositories.CharacterState{
		CharacterID: 7,
		Position:    kinematic.Vector{X: 12, Y: 34},
		Hitpoints:   60,
	}
	serverEventQueue := queue.NewInMemoryQueue(10)
	worker := NewConnectionEventWorker(NewConnectionEventWorkerOptions{
		Repository:       repository,
		ServerEventQueue: serverEventQueue,
	})

	worker.handlePeerConnect(context.Background(), connectEvent(1, 7))

	assert.Empty(t, repository.created)
	event, ok := readSingleEvent(t, serverEventQueue).(*gametypes.ConnectPeerEvent)
	require.True(t, ok)
	assert.Equal(t, kinematic.Vector{X: 12, Y: 34}, event.State.Position)
	assert.Equal(t, int16(60), event.State.Hitpoints)
}

func TestConnectionEventWorker_downedCharacterRespawnsWithFullHitpoints(t *testing.T) {
	repository := newFakeRepository()
	repository.characters[7] = &repositories.Character{ID: 7, AccountID: "account-1", Name: "alice"}
	repository.states[7] = &repositories.CharacterState{
		CharacterID: 7,
		Position:    kinematic.Vector{X: 12, Y: 34},
		Hitpoints:   0,
	}
	serverEventQueue := queue.NewInMemoryQueue(10)
	worker := NewConnectionEventWorker(NewConnectionEventWorkerOptions{
		Repository:       repository,
		ServerEventQueue: serverEventQueue,
	})

	worker.handlePeerConnect(context.Background(), connectEvent(1, 7))

	event, ok := readSingleEvent(t, serverEventQueue).(*gametypes.ConnectPeerEvent)
	require.True(t, ok)
	assert.Equal(t, int16(constants.PlayerHitpoints), event.State.Hitpoints)
}

func TestConnectionEventWorker_disconnectCarriesReason(t *testing.T) {
	serverEventQueue := queue.NewInMemoryQueue(10)
	worker := NewConnectionEventWorker(NewConnectionEventWorkerOptions{
		Repository:       newFakeRepository(),
		ServerEventQueue: serverEventQueue,
	})

	worker.handlePeerDisconnect(network.PeerEvent{
		PeerID: 1,
		Type:   network.PeerEventTypeDisconnect,
		Data:   network.PeerDisconnectData{Reason: messages.DisconnectReasonTimeout},
	})

	event, ok := readSingleEvent(t, serverEventQueue).(*gametypes.DisconnectPeerEvent)
	require.True(t, ok)
	assert.Equal(t, uint32(1), event.PeerID)
	assert.Equal(t, messages.DisconnectReasonTimeout, event.Reason)
}
