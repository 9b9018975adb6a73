package network

// ConnectionState is the client's connection lifecycle state.
type ConnectionState int32

const (
	// ConnectionStateOffline means no connection exists or a previous
	// connection has fully torn down.
	ConnectionStateOffline ConnectionState = iota
	// ConnectionStateConnecting means a connection attempt is in flight.
	ConnectionStateConnecting
	// ConnectionStateConnected means the register handshake completed.
	ConnectionStateConnected
	// ConnectionStateHosting means this process is serving the session
	// itself rather than joining a remote one.
	ConnectionStateHosting
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateOffline:
		return "offline"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateHosting:
		return "hosting"
	default:
		return "unknown"
	}
}
