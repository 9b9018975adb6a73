package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberforge/vanguard/pkg/kinematic"
)

func TestSerializeDeserializeMessage(t *testing.T) {
	tests := []struct {
		name    string
		peerID  uint32
		msgType MessageType
		payload interface{}
	}{
		{
			name:    "client input",
			peerID:  7,
			msgType: MessageTypeClientInput,
			payload: &ClientInput{
				Snapshots: []InputSnapshot{
					{Tick: 1, Timestamp: 100, MoveX: 1, Actions: ActionBlock},
					{Tick: 2, Timestamp: 150, MoveX: 0.5, MoveY: -1},
				},
			},
		},
		{
			name:    "world state",
			peerID:  0,
			msgType: MessageTypeServerWorldState,
			payload: &ServerWorldState{
				Tick:      42,
				Timestamp: 4200,
				Entities: map[uint32]EntitySnapshot{
					7: {
						Tick:      42,
						Position:  kinematic.Vector{X: 1.5, Y: -2.25},
						Velocity:  kinematic.Vector{X: 6},
						AckTick:   40,
						Hitpoints: 85,
					},
				},
			},
		},
		{
			name:    "disconnect",
			peerID:  0,
			msgType: MessageTypeServerDisconnect,
			payload: &ServerDisconnect{Reason: DisconnectReasonTimeout},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.payload)
			require.NoError(t, err)

			msg := &Message{
				PeerID:  tt.peerID,
				Type:    tt.msgType,
				Payload: payload,
			}

			b, err := SerializeMessage(msg)
			require.NoError(t, err)

			got, err := DeserializeMessage(b)
			require.NoError(t, err)

			assert.Equal(t, tt.peerID, got.PeerID)
			assert.Equal(t, tt.msgType, got.Type)
			assert.JSONEq(t, string(payload), string(got.Payload))
		})
	}
}

func TestDeserializeMessage_shortBuffer(t *testing.T) {
	_, err := DeserializeMessage([]byte{0xde, 0xad})
	assert.Error(t, err)
}

func TestSerializeMessage_nil(t *testing.T) {
	_, err := SerializeMessage(nil)
	assert.Error(t, err)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "client-ping", MessageTypeClientPing.String())
	assert.Equal(t, "server-world-state", MessageTypeServerWorldState.String())
	assert.Equal(t, "unknown", MessageType(200).String())
}
