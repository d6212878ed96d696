package radio

import (
	"strings"
	"unicode/utf8"

	"github.com/skobkin/meshmon/internal/domain"
)

// UnknownRecipient is used when a text packet carries no destination.
const UnknownRecipient = "unknown"

type EventKind int

const (
	EventIgnored EventKind = iota
	EventStatsUpdated
	EventNodeNamed
	EventMessageReceived
)

func (k EventKind) String() string {
	switch k {
	case EventStatsUpdated:
		return "stats_updated"
	case EventNodeNamed:
		return "node_named"
	case EventMessageReceived:
		return "message_received"
	default:
		return "ignored"
	}
}

// Event is the meaning of one packet. Only the fields of Kind are set.
type Event struct {
	Kind    EventKind
	NodeID  string
	Name    string
	Stats   domain.StatsUpdate
	Message domain.Message
}

// Classify maps a packet to its semantic event. It has no side effects and
// never fails: anything it does not understand is ignored.
func Classify(p Packet, localID string) Event {
	from := strings.TrimSpace(p.From)
	localID = strings.TrimSpace(localID)

	if p.Metrics != nil && from != "" && from == localID {
		update := statsFromMetrics(*p.Metrics)
		if update.Empty() {
			return Event{Kind: EventIgnored}
		}

		return Event{Kind: EventStatsUpdated, NodeID: from, Stats: update}
	}

	if p.User != nil && from != "" {
		if name := domain.PreferredName(p.User.LongName, p.User.ShortName); name != "" {
			return Event{Kind: EventNodeNamed, NodeID: from, Name: name}
		}
	}

	if text, ok := packetText(p); ok {
		to := strings.TrimSpace(p.To)
		if to == "" {
			to = UnknownRecipient
		}
		fromID := from
		if fromID == "" {
			fromID = UnknownRecipient
		}

		return Event{
			Kind:   EventMessageReceived,
			NodeID: from,
			Message: domain.Message{
				Timestamp: p.RxTime,
				FromID:    fromID,
				ToID:      to,
				Text:      text,
				IsReply:   p.ReplyID != 0,
				HopCount:  p.HopCount(),
			},
		}
	}

	return Event{Kind: EventIgnored}
}

// packetText reads text only from the text port; decoded text on any other
// port is ignored.
func packetText(p Packet) (string, bool) {
	if p.PortNum != PortText {
		return "", false
	}
	text := p.Text
	if text == "" {
		if len(p.Payload) == 0 || !utf8.Valid(p.Payload) {
			return "", false
		}
		text = string(p.Payload)
	}
	if !utf8.ValidString(text) || strings.TrimSpace(text) == "" {
		return "", false
	}

	return text, true
}

// Zero battery and voltage readings come from boards without a sensor and
// are treated as absent.
func statsFromMetrics(m DeviceMetrics) domain.StatsUpdate {
	var update domain.StatsUpdate
	if m.BatteryLevel != nil && *m.BatteryLevel > 0 {
		v := int(*m.BatteryLevel)
		update.BatteryLevel = &v
	}
	if m.Voltage != nil && *m.Voltage > 0 {
		v := *m.Voltage
		update.Voltage = &v
	}
	if m.ChannelUtilization != nil {
		v := *m.ChannelUtilization
		update.ChannelUtilization = &v
	}

	return update
}
