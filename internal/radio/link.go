package radio

import (
	"context"
	"time"
)

// Handle identifies one open device link. Implementations must be comparable
// (pointer types), since the connection uses equality to drop notifications
// from stale handles.
type Handle interface {
	Target() string
}

// Identity is the local node as reported by the device.
type Identity struct {
	ID          string
	DisplayName string
	ShortName   string
}

// NodeSnapshot is an entry of the device's own node table.
type NodeSnapshot struct {
	ID        string
	LongName  string
	ShortName string
	SNR       *float64
	RSSI      *int
	HopsAway  *int
	LastHeard time.Time
}

type NotificationKind int

const (
	NotificationEstablished NotificationKind = iota + 1
	NotificationLost
	NotificationPacket
)

func (k NotificationKind) String() string {
	switch k {
	case NotificationEstablished:
		return "established"
	case NotificationLost:
		return "lost"
	case NotificationPacket:
		return "packet"
	default:
		return "unknown"
	}
}

// Notification is an unsolicited event from an open link.
type Notification struct {
	Kind   NotificationKind
	Handle Handle
	Packet *Packet
	Err    error
}

// ConfigSection names a device settings group written by WriteConfig.
type ConfigSection string

const (
	ConfigSectionLoRa  ConfigSection = "lora"
	ConfigSectionOwner ConfigSection = "owner"
)

// ConfigValues holds the fields written to a ConfigSection.
type ConfigValues map[string]any

// Link is the radio link service: it owns device I/O and delivers already
// decoded packets. Every method may block.
type Link interface {
	Name() string
	Open(ctx context.Context, portHint string) (Handle, error)
	Close(ctx context.Context, h Handle) error
	Subscribe(h Handle, sink func(Notification)) error
	LocalIdentity(ctx context.Context, h Handle) (Identity, error)
	SendText(ctx context.Context, h Handle, text, destination string, wantAck bool) error
	WriteConfig(ctx context.Context, h Handle, section ConfigSection, values ConfigValues) error
	KnownNodes(ctx context.Context, h Handle) (map[string]NodeSnapshot, error)
	RequestTelemetry(ctx context.Context, h Handle) error
}
