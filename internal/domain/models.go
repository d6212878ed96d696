package domain

import "time"

// NodeRecord is the last known state of a mesh node.
type NodeRecord struct {
	ID          string
	DisplayName string
	FirstSeen   time.Time
	LastSeen    time.Time
	LastSNR     *float64
	LastRSSI    *int
	HopsAway    *int
	LastHeard   time.Time
}

func (r NodeRecord) SignalQuality() SignalQuality {
	if r.LastSNR == nil || r.LastRSSI == nil {
		return SignalUnknown
	}

	return ClassifySignal(*r.LastSNR, *r.LastRSSI)
}

// LinkQuality carries the optional radio metadata observed with a packet.
type LinkQuality struct {
	SNR      *float64
	RSSI     *int
	HopsAway *int
	HeardAt  time.Time
}

func (q LinkQuality) Empty() bool {
	return q.SNR == nil && q.RSSI == nil && q.HopsAway == nil && q.HeardAt.IsZero()
}

// Message is an immutable text message, received or sent locally.
type Message struct {
	Timestamp time.Time
	FromID    string
	ToID      string
	Text      string
	IsReply   bool
	HopCount  int
	Outgoing  bool
}

// DeviceStats describes the locally attached radio.
type DeviceStats struct {
	NodeCount          int
	ChannelUtilization float64
	BatteryLevel       int
	Voltage            float64
}

// ExternallyPowered reports the firmware sentinel for USB/external power.
func (s DeviceStats) ExternallyPowered() bool {
	return s.BatteryLevel > 100
}

// Apply merges the fields present in u. Absent fields keep their value.
func (s DeviceStats) Apply(u StatsUpdate) DeviceStats {
	if u.BatteryLevel != nil {
		s.BatteryLevel = *u.BatteryLevel
	}
	if u.Voltage != nil {
		s.Voltage = *u.Voltage
	}
	if u.ChannelUtilization != nil {
		s.ChannelUtilization = *u.ChannelUtilization
	}

	return s
}

// StatsUpdate is a sparse device metrics report.
type StatsUpdate struct {
	BatteryLevel       *int
	Voltage            *float64
	ChannelUtilization *float64
}

func (u StatsUpdate) Empty() bool {
	return u.BatteryLevel == nil && u.Voltage == nil && u.ChannelUtilization == nil
}

// NodeDiscovered is published the first time a node id is seen.
type NodeDiscovered struct {
	Node NodeRecord
}
