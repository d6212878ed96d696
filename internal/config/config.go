package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

const (
	ConnectorIP       ConnectorType = "ip"
	ConnectorSerial   ConnectorType = "serial"
	DefaultSerialBaud               = 115200
	DefaultIPPort                   = 4403

	DefaultMessageCapacity      = 500
	DefaultMaxReconnectAttempts = 5
	DefaultEventQueueSize       = 256
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
type ConnectionConfig struct {
	Connector  ConnectorType `json:"connector"`
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	SerialPort string        `json:"serial_port"`
	SerialBaud int           `json:"serial_baud"`
}

// SessionConfig holds the device session timings and limits.
type SessionConfig struct {
	MessageCapacity      int      `json:"message_capacity"`
	MaxReconnectAttempts int      `json:"max_reconnect_attempts"`
	ReconnectDelay       Duration `json:"reconnect_delay"`
	SettleDelay          Duration `json:"settle_delay"`
	StabilizeDelay       Duration `json:"stabilize_delay"`
	RebootGrace          Duration `json:"reboot_grace"`
	StaleTimeout         Duration `json:"stale_timeout"`
	KeepaliveInterval    Duration `json:"keepalive_interval"`
	SnapshotInterval     Duration `json:"snapshot_interval"`
	EventQueueSize       int      `json:"event_queue_size"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	Enabled bool                     `json:"enabled"`
	Events  NotificationEventsConfig `json:"events"`
}

// NotificationEventsConfig stores per-event notification toggles.
type NotificationEventsConfig struct {
	IncomingMessage  bool `json:"incoming_message"`
	NodeDiscovered   bool `json:"node_discovered"`
	ConnectionStatus bool `json:"connection_status"`
	ErrorNotices     bool `json:"error_notices"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection    ConnectionConfig   `json:"connection"`
	Logging       LoggingConfig      `json:"logging"`
	Session       SessionConfig      `json:"session"`
	Notifications NotificationConfig `json:"notifications"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:  ConnectorSerial,
			Host:       "",
			Port:       DefaultIPPort,
			SerialPort: "",
			SerialBaud: DefaultSerialBaud,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			LogToFile: false,
		},
		Session: DefaultSession(),
		Notifications: NotificationConfig{
			Enabled: true,
			Events: NotificationEventsConfig{
				IncomingMessage:  true,
				NodeDiscovered:   true,
				ConnectionStatus: true,
				ErrorNotices:     false,
			},
		},
	}
}

func DefaultSession() SessionConfig {
	return SessionConfig{
		MessageCapacity:      DefaultMessageCapacity,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectDelay:       Duration(15 * time.Second),
		SettleDelay:          Duration(2 * time.Second),
		StabilizeDelay:       Duration(3 * time.Second),
		RebootGrace:          Duration(10 * time.Second),
		StaleTimeout:         Duration(5 * time.Minute),
		KeepaliveInterval:    Duration(30 * time.Second),
		SnapshotInterval:     Duration(time.Minute),
		EventQueueSize:       DefaultEventQueueSize,
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorSerial
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Connection.Port <= 0 {
		c.Connection.Port = DefaultIPPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	c.Session.fillMissingDefaults()
}

func (s *SessionConfig) fillMissingDefaults() {
	def := DefaultSession()
	if s.MessageCapacity <= 0 {
		s.MessageCapacity = def.MessageCapacity
	}
	if s.MaxReconnectAttempts <= 0 {
		s.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if s.ReconnectDelay <= 0 {
		s.ReconnectDelay = def.ReconnectDelay
	}
	if s.SettleDelay < 0 {
		s.SettleDelay = def.SettleDelay
	}
	if s.StabilizeDelay < 0 {
		s.StabilizeDelay = def.StabilizeDelay
	}
	if s.RebootGrace <= 0 {
		s.RebootGrace = def.RebootGrace
	}
	if s.StaleTimeout <= 0 {
		s.StaleTimeout = def.StaleTimeout
	}
	if s.KeepaliveInterval <= 0 {
		s.KeepaliveInterval = def.KeepaliveInterval
	}
	if s.SnapshotInterval <= 0 {
		s.SnapshotInterval = def.SnapshotInterval
	}
	if s.EventQueueSize <= 0 {
		s.EventQueueSize = def.EventQueueSize
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorIP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("ip host is required")
		}
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return fmt.Errorf("ip port out of range: %d", c.Connection.Port)
		}
	case ConnectorSerial:
		// An empty serial port means auto-detect.
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}

	if c.Session.KeepaliveInterval > c.Session.StaleTimeout {
		return errors.New("keepalive interval must not exceed stale timeout")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
