package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Connection.Connector != ConnectorSerial {
		t.Fatalf("expected default connector %q, got %q", ConnectorSerial, cfg.Connection.Connector)
	}
	if cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("expected default serial baud %d, got %d", DefaultSerialBaud, cfg.Connection.SerialBaud)
	}
	if cfg.Connection.Port != DefaultIPPort {
		t.Fatalf("expected default ip port %d, got %d", DefaultIPPort, cfg.Connection.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Session.MaxReconnectAttempts != 5 {
		t.Fatalf("expected 5 reconnect attempts, got %d", cfg.Session.MaxReconnectAttempts)
	}
	if cfg.Session.StaleTimeout.Std() != 5*time.Minute {
		t.Fatalf("expected 5m stale timeout, got %s", cfg.Session.StaleTimeout)
	}
	if cfg.Session.MessageCapacity != DefaultMessageCapacity {
		t.Fatalf("expected message capacity %d, got %d", DefaultMessageCapacity, cfg.Session.MessageCapacity)
	}
}

func TestDefaultSessionTimings(t *testing.T) {
	s := DefaultSession()
	tests := []struct {
		name string
		got  Duration
		want time.Duration
	}{
		{name: "reconnect delay", got: s.ReconnectDelay, want: 15 * time.Second},
		{name: "settle delay", got: s.SettleDelay, want: 2 * time.Second},
		{name: "stabilize delay", got: s.StabilizeDelay, want: 3 * time.Second},
		{name: "reboot grace", got: s.RebootGrace, want: 10 * time.Second},
		{name: "keepalive", got: s.KeepaliveInterval, want: 30 * time.Second},
	}
	for _, tt := range tests {
		if tt.got.Std() != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.name, tt.want, tt.got)
		}
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Connection.Connector != ConnectorSerial {
		t.Fatalf("expected defaults, got connector %q", cfg.Connection.Connector)
	}
}

func TestLoadPartialSessionUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "connection": {"connector": "ip", "host": "192.168.0.1"},
  "session": {"reconnect_delay": "30s", "stale_timeout": 120}
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Session.ReconnectDelay.Std() != 30*time.Second {
		t.Fatalf("expected reconnect delay 30s, got %s", cfg.Session.ReconnectDelay)
	}
	if cfg.Session.StaleTimeout.Std() != 2*time.Minute {
		t.Fatalf("expected stale timeout from seconds, got %s", cfg.Session.StaleTimeout)
	}
	if cfg.Session.RebootGrace.Std() != 10*time.Second {
		t.Fatalf("expected default reboot grace, got %s", cfg.Session.RebootGrace)
	}
	if cfg.Connection.Port != DefaultIPPort {
		t.Fatalf("expected default port, got %d", cfg.Connection.Port)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"session": {"settle_delay": "soon"}}`), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "serial auto-detect", mutate: func(c *AppConfig) {}, wantErr: false},
		{name: "ip without host", mutate: func(c *AppConfig) { c.Connection.Connector = ConnectorIP }, wantErr: true},
		{name: "ip with host", mutate: func(c *AppConfig) {
			c.Connection.Connector = ConnectorIP
			c.Connection.Host = "10.0.0.2"
		}, wantErr: false},
		{name: "unknown connector", mutate: func(c *AppConfig) { c.Connection.Connector = "bluetooth" }, wantErr: true},
		{name: "bad log format", mutate: func(c *AppConfig) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "keepalive beyond stale timeout", mutate: func(c *AppConfig) {
			c.Session.KeepaliveInterval = Duration(10 * time.Minute)
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Connection.SerialPort = "/dev/ttyUSB0"
	cfg.Session.RebootGrace = Duration(12 * time.Second)

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded.Connection.SerialPort != "/dev/ttyUSB0" {
		t.Fatalf("expected serial port restored, got %q", loaded.Connection.SerialPort)
	}
	if loaded.Session.RebootGrace.Std() != 12*time.Second {
		t.Fatalf("expected reboot grace restored, got %s", loaded.Session.RebootGrace)
	}
}

func TestDurationMarshalsAsString(t *testing.T) {
	raw, err := json.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatalf("marshal duration: %v", err)
	}
	if string(raw) != `"1m30s"` {
		t.Fatalf("expected \"1m30s\", got %s", raw)
	}
}
