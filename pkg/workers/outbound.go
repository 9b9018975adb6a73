package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/network"
)

// OutboundMessage is a server message addressed to a set of peers,
// typically the membership of one zone.
type OutboundMessage struct {
	PeerIDs []uint32
	Type    messages.MessageType
	Message interface{}
}

type OutboundMessageWorker struct {
	networkManager      *network.NetworkManager
	outboundMessageChan <-chan OutboundMessage
}

type NewOutboundMessageWorkerOptions struct {
	NetworkManager      *network.NetworkManager
	OutboundMessageChan <-chan OutboundMessage
}

// NewOutboundMessageWorker creates a new OutboundMessageWorker.
// The worker fans reliable server events out to their target peers off
// the game loop goroutine, so a slow connection cannot stall the tick.
func NewOutboundMessageWorker(opts NewOutboundMessageWorkerOptions) *OutboundMessageWorker {
	return &OutboundMessageWorker{
		networkManager:      opts.NetworkManager,
		outboundMessageChan: opts.OutboundMessageChan,
	}
}

func (w *OutboundMessageWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.outboundMessageChan:
			if err := w.send(ctx, msg); err != nil {
				log.Error("Failed to send outbound message of type %s: %v", msg.Type, err)
			}
		}
	}
}

func (w *OutboundMessageWorker) send(ctx context.Context, out OutboundMessage) error {
	payload, err := json.Marshal(out.Message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %v", err)
	}

	msg := &messages.Message{
		PeerID:  0,
		Type:    out.Type,
		Payload: payload,
	}

	switch out.Type {
	case messages.MessageTypeServerWorldState:
		w.networkManager.SendUnreliableToPeers(ctx, out.PeerIDs, msg)
	default:
		w.networkManager.SendReliableToPeers(ctx, out.PeerIDs, msg)
	}

	return nil
}
