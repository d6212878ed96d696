package radio

import "time"

// PortNum is the Meshtastic application port a packet was addressed to.
type PortNum string

const (
	PortText      PortNum = "TEXT_MESSAGE_APP"
	PortNodeInfo  PortNum = "NODEINFO_APP"
	PortTelemetry PortNum = "TELEMETRY_APP"
	PortPosition  PortNum = "POSITION_APP"
	PortRouting   PortNum = "ROUTING_APP"
	PortAdmin     PortNum = "ADMIN_APP"
)

// Packet is a decoded mesh packet as delivered by the link.
type Packet struct {
	ID       uint32
	From     string
	To       string
	PortNum  PortNum
	Text     string
	Payload  []byte
	ReplyID  uint32
	HopStart uint32
	HopLimit uint32
	RxSNR    *float64
	RxRSSI   *int
	RxTime   time.Time
	Metrics  *DeviceMetrics
	User     *User
}

// DeviceMetrics is the device telemetry variant.
type DeviceMetrics struct {
	BatteryLevel       *uint32
	Voltage            *float64
	ChannelUtilization *float64
	AirUtilTx          *float64
	UptimeSeconds      *uint32
}

// User is the node-info payload.
type User struct {
	ID        string
	LongName  string
	ShortName string
}

// HopCount returns the number of relays the packet traversed.
func (p Packet) HopCount() int {
	if p.HopStart <= p.HopLimit {
		return 0
	}

	return int(p.HopStart - p.HopLimit)
}
