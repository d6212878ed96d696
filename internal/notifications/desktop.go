package notifications

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/beeep"
)

var setAppName sync.Once

// DesktopSender shows notifications through the OS notification daemon.
type DesktopSender struct {
	logger *slog.Logger
	notify func(title, message string, icon any) error
}

func NewDesktopSender(appName string, logger *slog.Logger) *DesktopSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications")
	}
	if appName != "" {
		setAppName.Do(func() { beeep.AppName = appName })
	}

	return &DesktopSender{logger: logger, notify: beeep.Notify}
}

// Send never fails the caller: a missing notification daemon is common on
// headless hosts and is only logged.
func (s *DesktopSender) Send(payload Payload) {
	if s == nil || s.notify == nil {
		return
	}
	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	if title == "" && content == "" {
		return
	}
	if err := s.notify(title, content, ""); err != nil {
		s.logger.Debug("desktop notification failed", "title", title, "error", err)
	}
}

// NoopSender drops every notification.
type NoopSender struct{}

func (NoopSender) Send(Payload) {}
