package network

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
	"github.com/emberforge/vanguard/pkg/queue"
)

const dialTimeout = 5 * time.Second

// TCPClient is the reliable half of the connection.
type TCPClient struct {
	serverAddr          string
	messageQueue        queue.Queue
	registerSuccessChan chan<- *messages.ServerRegisterSuccess
	registerErrChan     chan<- error
	conn                net.Conn
}

// NewTCPClient creates a new TCP client.
func NewTCPClient(serverAddr string, messageQueue queue.Queue, registerSuccessChan chan<- *messages.ServerRegisterSuccess, registerErrChan chan<- error) *TCPClient {
	return &TCPClient{
		serverAddr:          serverAddr,
		messageQueue:        messageQueue,
		registerSuccessChan: registerSuccessChan,
		registerErrChan:     registerErrChan,
	}
}

func (c *TCPClient) Connect() error {
	log.Info("Connecting to TCP server at %s", c.serverAddr)
	conn, err := net.DialTimeout("tcp", c.serverAddr, dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %v", err)
	}
	c.conn = conn
	return nil
}

func (c *TCPClient) HandleMessages(ctx context.Context) error {
	defer c.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := c.readMessage()
		if err != nil {
			if _, ok := err.(*ErrConnectionClosedByServer); ok {
				return err
			} else if _, ok := err.(*ErrConnectionClosedByClient); ok {
				log.Info("TCP connection closed by client")
				return nil
			}
			log.Error("Failed to read from TCP connection: %v", err)
			continue
		}
		if err := c.handleMessage(msg); err != nil {
			log.Error("Failed to handle message: %v", err)
		}
	}
}

func (c *TCPClient) handleMessage(msg *messages.Message) error {
	switch msg.Type {
	case messages.MessageTypeServerRegisterSuccess:
		registerSuccess := &messages.ServerRegisterSuccess{}
		if err := json.Unmarshal(msg.Payload, registerSuccess); err != nil {
			return fmt.Errorf("failed to unmarshal register success message: %v", err)
		}
		c.registerSuccessChan <- registerSuccess
	case messages.MessageTypeServerRegisterFailure:
		registerFailure := &messages.ServerRegisterFailure{}
		if err := json.Unmarshal(msg.Payload, registerFailure); err != nil {
			return fmt.Errorf("failed to unmarshal register failure message: %v", err)
		}
		c.registerErrChan <- fmt.Errorf("registration rejected: %s", registerFailure.Reason)
	case messages.MessageTypeServerInitialSync,
		messages.MessageTypeServerZoneLoad,
		messages.MessageTypeServerPeerJoined,
		messages.MessageTypeServerPeerLeft,
		messages.MessageTypeServerEquipResult,
		messages.MessageTypeServerHitResult,
		messages.MessageTypeServerDisconnect:
		if err := c.messageQueue.Enqueue(msg); err != nil {
			return fmt.Errorf("failed to enqueue message: %v", err)
		}
	default:
		return fmt.Errorf("received unexpected message type from TCP server: %s", msg.Type)
	}

	return nil
}

// Close closes the TCP connection.
func (c *TCPClient) Close() error {
	if c.conn == nil {
		log.Warn("TCP connection is already closed")
		return nil
	}
	return c.conn.Close()
}

// SendMessage sends a length-prefixed message to the TCP server.
func (c *TCPClient) SendMessage(msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	framed := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(framed[:4], uint32(len(b)))
	copy(framed[4:], b)

	if _, err := c.conn.Write(framed); err != nil {
		return fmt.Errorf("failed to write message to TCP connection: %v", err)
	}

	return nil
}

// ErrConnectionClosedByServer is returned when the server closes the connection
type ErrConnectionClosedByServer struct{}

func (e *ErrConnectionClosedByServer) Error() string {
	return "connection closed by server"
}

// ErrConnectionClosedByClient is returned when this client closed the connection
type ErrConnectionClosedByClient struct{}

func (e *ErrConnectionClosedByClient) Error() string {
	return "connection closed by client"
}

// readMessage reads a length-prefixed message from the TCP connection
func (c *TCPClient) readMessage() (*messages.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, classifyReadError(err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > messages.TCPMessageBufferSize {
		return nil, fmt.Errorf("invalid message length: %d", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, classifyReadError(err)
	}

	msg, err := messages.DeserializeMessage(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}

	return msg, nil
}

func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ErrConnectionClosedByServer{}
	}
	if errors.Is(err, net.ErrClosed) {
		return &ErrConnectionClosedByClient{}
	}
	return fmt.Errorf("failed to read message from TCP connection: %v", err)
}
