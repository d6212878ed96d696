package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/skobkin/meshmon/internal/bus"
	"github.com/skobkin/meshmon/internal/connectors"
	"github.com/skobkin/meshmon/internal/domain"
)

const timeLayout = "15:04:05"

// lockedWriter serializes whole lines from the presenter and the command
// reader, which share stdout.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}

// presenter prints session events as single lines.
type presenter struct {
	out      io.Writer
	nodeName func(id string) string
}

func newPresenter(out io.Writer, nodeName func(id string) string) *presenter {
	return &presenter{out: out, nodeName: nodeName}
}

func (p *presenter) run(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			if line := p.format(raw); line != "" {
				_ = p.println(line)
			}
		}
	}
}

func (p *presenter) println(line string) error {
	_, err := fmt.Fprintln(p.out, line)

	return err
}

func (p *presenter) printStatus(status connectors.ConnectionStatus) error {
	return p.println(formatStatus(status))
}

func (p *presenter) format(raw any) string {
	switch event := raw.(type) {
	case connectors.ConnectionStatus:
		return formatStatus(event)
	case connectors.SystemNotice:
		if event.IsError {
			return "[error] " + event.Text
		}

		return "[notice] " + event.Text
	case domain.Message:
		return p.formatMessage(event)
	case domain.NodeDiscovered:
		return "[node+] " + formatNode(event.Node)
	case domain.NodeRecord:
		return "[node] " + formatNode(event)
	case domain.DeviceStats:
		return "[stats] " + formatStats(event)
	default:
		return ""
	}
}

func formatStatus(status connectors.ConnectionStatus) string {
	var b strings.Builder
	b.WriteString("[conn] ")
	b.WriteString(string(status.State))
	if name := strings.TrimSpace(status.TransportName); name != "" {
		b.WriteString(" " + name)
	}
	if target := strings.TrimSpace(status.Target); target != "" {
		b.WriteString(" " + target)
	}
	if status.Attempt > 0 {
		fmt.Fprintf(&b, " attempt %d", status.Attempt)
	}
	if errText := strings.TrimSpace(status.Err); errText != "" {
		fmt.Fprintf(&b, " (error: %s)", errText)
	}

	return b.String()
}

func (p *presenter) formatMessage(m domain.Message) string {
	tag := "[msg]"
	if m.Outgoing {
		tag = "[sent]"
	}
	to := "all"
	if domain.NormalizeDestination(m.ToID) != domain.BroadcastNodeID {
		to = p.name(m.ToID)
	}
	line := fmt.Sprintf("%s %s %s -> %s: %s", tag, m.Timestamp.Format(timeLayout), p.name(m.FromID), to, m.Text)
	if m.IsReply {
		line += " (reply)"
	}
	if m.HopCount > 0 {
		line += fmt.Sprintf(" [%d hops]", m.HopCount)
	}

	return line
}

func (p *presenter) name(id string) string {
	if p.nodeName != nil {
		if name := strings.TrimSpace(p.nodeName(id)); name != "" {
			return name
		}
	}

	return id
}

func formatNode(n domain.NodeRecord) string {
	name := domain.NodeDisplayName(n)
	if name == n.ID {
		return n.ID
	}

	return fmt.Sprintf("%s (%s)", name, n.ID)
}

func formatStats(s domain.DeviceStats) string {
	battery := fmt.Sprintf("%d%%", s.BatteryLevel)
	if s.ExternallyPowered() {
		battery = "ext"
	}

	return fmt.Sprintf("nodes=%d battery=%s voltage=%.2fV chutil=%.1f%%", s.NodeCount, battery, s.Voltage, s.ChannelUtilization)
}
