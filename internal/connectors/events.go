package connectors

import "time"

// ConnectionState describes the device link lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnectionStatus is a bus event snapshot of current link status.
type ConnectionStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	Attempt       int
	Timestamp     time.Time
}

// SystemNotice is an operator-facing status line.
type SystemNotice struct {
	Text    string
	IsError bool
	At      time.Time
}
