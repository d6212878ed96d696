package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/skobkin/meshmon/internal/connectors"
	"github.com/skobkin/meshmon/internal/domain"
	"github.com/skobkin/meshmon/internal/radio"
)

// listener is the connection callback surface of Manager. Every method runs
// on the queue goroutine.
type listener Manager

func (l *listener) m() *Manager {
	return (*Manager)(l)
}

func (l *listener) ConnectionStateChanged(status connectors.ConnectionStatus) {
	l.m().publish(connectors.TopicConnStatus, status)
}

func (l *listener) Notice(text string, isError bool) {
	m := l.m()
	m.publish(connectors.TopicNotice, connectors.SystemNotice{
		Text:    text,
		IsError: isError,
		At:      m.clock.Now(),
	})
}

// Connected resets the device stats, registers the local node and merges the
// device's own node table.
func (l *listener) Connected(identity radio.Identity, nodes map[string]radio.NodeSnapshot) {
	m := l.m()
	m.setStats(domain.DeviceStats{})

	if rec, isNew := m.registry.Register(identity.ID, identity.DisplayName); isNew {
		m.publish(connectors.TopicNodeDiscovered, domain.NodeDiscovered{Node: rec})
	}

	if len(nodes) > 0 {
		records := make([]domain.NodeRecord, 0, len(nodes))
		for id, n := range nodes {
			if strings.TrimSpace(n.ID) != "" {
				id = n.ID
			}
			records = append(records, domain.NodeRecord{
				ID:          id,
				DisplayName: domain.PreferredName(n.LongName, n.ShortName),
				LastSNR:     n.SNR,
				LastRSSI:    n.RSSI,
				HopsAway:    n.HopsAway,
				LastHeard:   n.LastHeard,
			})
		}
		added := m.registry.Merge(records)
		m.logger.Info("merged device node table", "reported", len(records), "added", added)
		l.Notice(fmt.Sprintf("Loaded %d nodes from device", len(records)), false)
	}

	l.publishStats(domain.DeviceStats{NodeCount: m.registry.Len()})
}

// PacketReceived runs the per-packet pipeline. Registry updates happen before
// the events that depend on them are published.
func (l *listener) PacketReceived(p radio.Packet) {
	m := l.m()
	localID := m.conn.LocalID()
	ev := radio.Classify(p, localID)
	now := m.clock.Now()

	sender := domain.NormalizeNodeID(p.From)
	if sender != "" && sender != localID {
		candidate := ""
		if ev.Kind == radio.EventNodeNamed {
			candidate = ev.Name
		}
		prev, known := m.registry.Get(sender)
		rec, isNew := m.registry.Register(sender, candidate)
		if updated, ok := m.registry.UpdateLink(sender, linkQuality(p, now)); ok {
			rec = updated
		}
		if isNew {
			m.publish(connectors.TopicNodeDiscovered, domain.NodeDiscovered{Node: rec})
			l.publishStats(m.CurrentStats())
		} else if known && prev.DisplayName != rec.DisplayName {
			m.publish(connectors.TopicNodeUpdated, rec)
		}
	}

	switch ev.Kind {
	case radio.EventStatsUpdated:
		l.publishStats(m.CurrentStats().Apply(ev.Stats))
	case radio.EventMessageReceived:
		msg := ev.Message
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		l.appendMessage(msg)
	case radio.EventNodeNamed:
		if sender != "" && sender == localID {
			l.rename(sender, ev.Name)
		}
	case radio.EventIgnored:
	}
}

func (l *listener) appendMessage(msg domain.Message) {
	m := l.m()
	if m.messages.Append(msg) {
		m.logger.Debug("message log full, oldest message evicted", "capacity", m.messages.Cap())
	}
	m.publish(connectors.TopicMessage, msg)
}

// publishStats stores s with a fresh node count and publishes it.
func (l *listener) publishStats(s domain.DeviceStats) {
	m := l.m()
	s.NodeCount = m.registry.Len()
	m.setStats(s)
	m.publish(connectors.TopicStats, s)
}

func (l *listener) rename(id, name string) {
	m := l.m()
	prev, known := m.registry.Get(id)
	rec, isNew := m.registry.Register(id, name)
	switch {
	case isNew:
		m.publish(connectors.TopicNodeDiscovered, domain.NodeDiscovered{Node: rec})
		l.publishStats(m.CurrentStats())
	case known && prev.DisplayName != rec.DisplayName:
		m.publish(connectors.TopicNodeUpdated, rec)
	}
}

// renameLocal applies owner names written to the device. A short name only
// replaces a name that carries no information.
func (m *Manager) renameLocal(localID, longName, shortName string) {
	if domain.NormalizeNodeID(localID) == "" {
		return
	}
	name := strings.TrimSpace(longName)
	if name == "" && m.registry.Lookup(localID) == localID {
		name = strings.TrimSpace(shortName)
	}
	if name == "" {
		return
	}
	(*listener)(m).rename(localID, name)
}

func linkQuality(p radio.Packet, now time.Time) domain.LinkQuality {
	q := domain.LinkQuality{
		SNR:     p.RxSNR,
		RSSI:    p.RxRSSI,
		HeardAt: now,
	}
	if p.HopStart > 0 {
		hops := p.HopCount()
		q.HopsAway = &hops
	}

	return q
}
