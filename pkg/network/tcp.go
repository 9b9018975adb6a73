package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/emberforge/vanguard/pkg/log"
	"github.com/emberforge/vanguard/pkg/messages"
)

// TCPServer represents a TCP server.
type TCPServer struct {
	port int
}

type NewTCPServerOptions struct {
	Port int
}

// NewTCPServer creates a new TCP server.
func NewTCPServer(opts NewTCPServerOptions) *TCPServer {
	return &TCPServer{
		port: opts.Port,
	}
}

// Start starts the TCP server.
func (s *TCPServer) Start(ctx context.Context, disconnectHandler ControlDisconnectHandler, messageHandler ControlMessageHandler) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		log.Error("Failed to resolve TCP address: %v", err)
		return
	}

	tcpListener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		log.Error("Failed to listen on TCP address: %v", err)
		return
	}
	defer tcpListener.Close()

	log.Info("TCP server listening on %s", tcpAddr.String())

	go func() {
		<-ctx.Done()
		tcpListener.Close()
	}()

	for {
		conn, err := tcpListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("TCP server closed")
				return
			}
			log.Error("Failed to accept TCP connection: %v", err)
			continue
		}

		go s.handleTCPConnection(ctx, conn, disconnectHandler, messageHandler)
	}
}

// handleTCPConnection handles a TCP connection.
func (s *TCPServer) handleTCPConnection(ctx context.Context, conn net.Conn, disconnectHandler ControlDisconnectHandler, messageHandler ControlMessageHandler) {
	defer func() {
		disconnectHandler(conn, nil)
		conn.Close()
	}()

	for {
		message, err := ReadMessageFromTCP(conn)
		if err != nil {
			if _, ok := err.(*ErrConnectionClosed); ok {
				log.Trace("Connection closed for %s", conn.RemoteAddr().String())
				return
			}
			log.Error("Error reading TCP message from %s: %v", conn.RemoteAddr().String(), err)
			return
		}

		messageHandler(ctx, conn, nil, message)
	}
}

// ErrConnectionClosed is returned when the TCP connection is closed
type ErrConnectionClosed struct{}

func (e *ErrConnectionClosed) Error() string {
	return "connection closed"
}

// WriteMessageToTCP writes a length-prefixed Message to a TCP connection
func WriteMessageToTCP(conn net.Conn, msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}
	if len(b) > messages.TCPMessageBufferSize {
		return fmt.Errorf("message of type %s is too large: %d bytes", msg.Type, len(b))
	}

	framed := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(framed[:4], uint32(len(b)))
	copy(framed[4:], b)

	if _, err := conn.Write(framed); err != nil {
		return fmt.Errorf("failed to write message to TCP connection: %v", err)
	}

	return nil
}

// ReadMessageFromTCP reads a length-prefixed Message from a TCP connection
func ReadMessageFromTCP(conn net.Conn) (*messages.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return nil, &ErrConnectionClosed{}
		}
		return nil, fmt.Errorf("failed to read message header from TCP connection: %v", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > messages.TCPMessageBufferSize {
		return nil, fmt.Errorf("invalid message length: %d", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
			return nil, &ErrConnectionClosed{}
		}
		return nil, fmt.Errorf("failed to read message from TCP connection: %v", err)
	}

	msg, err := messages.DeserializeMessage(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}

	return msg, nil
}
