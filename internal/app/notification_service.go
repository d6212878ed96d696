package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/skobkin/meshmon/internal/bus"
	"github.com/skobkin/meshmon/internal/config"
	"github.com/skobkin/meshmon/internal/connectors"
	"github.com/skobkin/meshmon/internal/domain"
	"github.com/skobkin/meshmon/internal/notifications"
)

const (
	notificationTitleNodeDiscovered = "New node discovered"
	notificationTitleError          = "Device error"
)

// NotificationService listens to session events and emits desktop notifications.
type NotificationService struct {
	bus      bus.MessageBus
	nodeName func(id string) string
	prefs    func() config.NotificationConfig
	sender   notifications.Sender
	logger   *slog.Logger

	connStatusMu     sync.Mutex
	lastConnState    connectors.ConnectionState
	lastConnStateSet bool
}

func NewNotificationService(
	messageBus bus.MessageBus,
	nodeName func(id string) string,
	prefs func() config.NotificationConfig,
	sender notifications.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:      messageBus,
		nodeName: nodeName,
		prefs:    prefs,
		sender:   sender,
		logger:   logger,
	}
}

// Start subscribes and returns once the subscription is in place, so no
// event published after Start is missed.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	topics := []string{
		connectors.TopicMessage,
		connectors.TopicNodeDiscovered,
		connectors.TopicConnStatus,
		connectors.TopicNotice,
	}
	sub := s.bus.Subscribe(topics...)

	go func() {
		defer s.bus.Unsubscribe(sub, topics...)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				s.handle(raw)
			}
		}
	}()
}

func (s *NotificationService) handle(raw any) {
	switch event := raw.(type) {
	case domain.Message:
		s.handleIncomingMessage(event)
	case domain.NodeDiscovered:
		s.handleNodeDiscovered(event)
	case connectors.ConnectionStatus:
		s.handleConnectionStatus(event)
	case connectors.SystemNotice:
		s.handleNotice(event)
	}
}

func (s *NotificationService) handleIncomingMessage(msg domain.Message) {
	prefs := s.notificationPrefs()
	if msg.Outgoing || !s.shouldNotify(prefs, prefs.Events.IncomingMessage) {
		return
	}

	senderName := s.displayName(msg.FromID)
	body := strings.TrimSpace(msg.Text)
	if body == "" {
		body = "(empty)"
	}

	title := "#Broadcast"
	if domain.NormalizeDestination(msg.ToID) != domain.BroadcastNodeID {
		title = "@" + senderName
	}

	s.send(notifications.Payload{
		Title:   title,
		Content: fmt.Sprintf("%s: %s", senderName, body),
	})
}

func (s *NotificationService) handleNodeDiscovered(event domain.NodeDiscovered) {
	prefs := s.notificationPrefs()
	if !s.shouldNotify(prefs, prefs.Events.NodeDiscovered) {
		return
	}

	s.send(notifications.Payload{
		Title:   notificationTitleNodeDiscovered,
		Content: nodeDiscoveredContent(event),
	})
}

func (s *NotificationService) handleConnectionStatus(status connectors.ConnectionStatus) {
	prefs := s.notificationPrefs()
	if status.State == "" {
		return
	}

	s.connStatusMu.Lock()
	if s.lastConnStateSet && s.lastConnState == status.State {
		s.connStatusMu.Unlock()

		return
	}
	s.lastConnState = status.State
	s.lastConnStateSet = true
	s.connStatusMu.Unlock()

	if status.State != connectors.ConnectionStateConnected &&
		status.State != connectors.ConnectionStateDisconnected {
		return
	}
	if !s.shouldNotify(prefs, prefs.Events.ConnectionStatus) {
		return
	}

	transport := notificationTransportName(status.TransportName)
	if transport == "" {
		transport = "Unknown"
	}
	details := strings.TrimSpace(status.Target)
	if details == "" {
		details = "No connection details"
	}
	if status.State == connectors.ConnectionStateDisconnected {
		if errText := strings.TrimSpace(status.Err); errText != "" {
			details = fmt.Sprintf("%s (error: %s)", details, errText)
		}
	}

	s.send(notifications.Payload{
		Title:   fmt.Sprintf("%s - %s", transport, status.State),
		Content: details,
	})
}

func (s *NotificationService) handleNotice(notice connectors.SystemNotice) {
	prefs := s.notificationPrefs()
	if !notice.IsError || !s.shouldNotify(prefs, prefs.Events.ErrorNotices) {
		return
	}

	s.send(notifications.Payload{
		Title:   notificationTitleError,
		Content: notice.Text,
	})
}

func (s *NotificationService) shouldNotify(prefs config.NotificationConfig, kindEnabled bool) bool {
	return prefs.Enabled && kindEnabled
}

func (s *NotificationService) notificationPrefs() config.NotificationConfig {
	if s.prefs == nil {
		return config.Default().Notifications
	}

	return s.prefs()
}

func (s *NotificationService) displayName(nodeID string) string {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return "unknown"
	}
	if s.nodeName != nil {
		if name := strings.TrimSpace(s.nodeName(nodeID)); name != "" {
			return name
		}
	}

	return nodeID
}

func (s *NotificationService) send(notification notifications.Payload) {
	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(notifications.Payload{
		Title:   title,
		Content: content,
	})
}

func nodeDiscoveredContent(event domain.NodeDiscovered) string {
	nodeID := strings.TrimSpace(event.Node.ID)
	if nodeID == "" {
		nodeID = "unknown"
	}
	name := strings.TrimSpace(event.Node.DisplayName)
	if name == "" || name == nodeID {
		return nodeID
	}

	return fmt.Sprintf("%s (%s)", name, nodeID)
}

func notificationTransportName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ip":
		return "IP"
	case "serial":
		return "Serial"
	default:
		return strings.TrimSpace(name)
	}
}
