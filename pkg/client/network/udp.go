package network

import (
	"context"
	"fmt"
	"net"

	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/queue"
)

// UDPClient is the unreliable half of the connection.
type UDPClient struct {
	serverAddr   *net.UDPAddr
	messageQueue queue.Queue
	pongChan     chan<- *messages.ServerPong
	conn         *net.UDPConn
}

// NewUDPClient creates a new UDP client.
func NewUDPClient(serverAddr string, messageQueue queue.Queue, pongChan chan<- *messages.ServerPong) (*UDPClient, error) {
	serverUDPAddr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %v", err)
	}

	return &UDPClient{
		serverAddr:   serverUDPAddr,
		messageQueue: messageQueue,
		pongChan:     pongChan,
	}, nil
}

// Connect opens the UDP socket and receives messages until the context
// is cancelled or the socket is closed.
func (c *UDPClient) Connect(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %v", err)
	}
	defer conn.Close()
	c.conn = conn

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		msg, err := c.receiveMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("Failed to receive message from UDP connection: %v", err)
			continue
		}
		log.Trace("Received message from UDP server of type %s", msg.Type)

		switch msg.Type {
		case messages.MessageTypeServerPong:
			pong := &messages.ServerPong{}
			if err := unmarshalPayload(msg, pong); err != nil {
				log.Error("Failed to unmarshal server pong: %v", err)
				continue
			}
			c.pongChan <- pong
		case messages.MessageTypeServerWorldState:
			if err := c.messageQueue.Enqueue(msg); err != nil {
				log.Error("Failed to enqueue message: %v", err)
			}
		default:
			log.Warn("Received unexpected message type from UDP server: %s", msg.Type)
		}
	}
}

// Close closes the UDP socket.
func (c *UDPClient) Close() error {
	if c.conn == nil {
		log.Warn("UDP connection is already closed")
		return nil
	}
	return c.conn.Close()
}

// SendMessage sends a message to the UDP server.
func (c *UDPClient) SendMessage(msg *messages.Message) error {
	if c.conn == nil {
		return fmt.Errorf("UDP connection is not open")
	}

	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	if _, err := c.conn.WriteToUDP(b, c.serverAddr); err != nil {
		return fmt.Errorf("failed to write message to UDP connection: %v", err)
	}

	return nil
}

// receiveMessage receives a single message from the UDP server.
func (c *UDPClient) receiveMessage() (*messages.Message, error) {
	buf := make([]byte, messages.UDPMessageBufferSize)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read message from UDP connection: %v", err)
	}

	msg, err := messages.DeserializeMessage(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}

	return msg, nil
}
