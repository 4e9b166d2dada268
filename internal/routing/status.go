package routing

// ConnectionStatus is the connectivity state the routing service reports
// for the path it manages. Wire values are fixed by the service's
// protocol; anything else maps to StatusUnknown.
type ConnectionStatus int

const (
	StatusConnected    ConnectionStatus = 0
	StatusDisconnected ConnectionStatus = 1
	StatusReconnecting ConnectionStatus = 2
	StatusUnknown      ConnectionStatus = -1
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// statusFromWire maps a wire integer to a ConnectionStatus.
func statusFromWire(code int) ConnectionStatus {
	switch ConnectionStatus(code) {
	case StatusConnected, StatusDisconnected, StatusReconnecting:
		return ConnectionStatus(code)
	default:
		return StatusUnknown
	}
}
