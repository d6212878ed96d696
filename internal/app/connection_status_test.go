package app

import (
	"testing"

	"github.com/skobkin/meshmon/internal/config"
	"github.com/skobkin/meshmon/internal/connectors"
)

func TestTransportNameFromConnector(t *testing.T) {
	tests := []struct {
		name      string
		connector config.ConnectorType
		want      string
	}{
		{name: "ip", connector: config.ConnectorIP, want: "ip"},
		{name: "serial", connector: config.ConnectorSerial, want: "serial"},
		{name: "unknown", connector: "custom", want: "custom"},
		{name: "empty", connector: "", want: "unknown"},
	}

	for _, tc := range tests {
		if got := TransportNameFromConnector(tc.connector); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestConnectionTarget(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ConnectionConfig
		want string
	}{
		{name: "ip", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Host: "192.168.1.10"}, want: "192.168.1.10"},
		{name: "serial", cfg: config.ConnectionConfig{Connector: config.ConnectorSerial, SerialPort: "/dev/ttyACM0", SerialBaud: 115200}, want: "/dev/ttyACM0"},
		{name: "serial auto", cfg: config.ConnectionConfig{Connector: config.ConnectorSerial}, want: ""},
		{name: "unknown", cfg: config.ConnectionConfig{Connector: "custom"}, want: ""},
	}

	for _, tc := range tests {
		if got := ConnectionTarget(tc.cfg); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestDeviceLockKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ConnectionConfig
		want string
	}{
		{name: "ip", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Host: "10.0.0.5"}, want: "ip-10.0.0.5"},
		{name: "serial", cfg: config.ConnectionConfig{Connector: config.ConnectorSerial, SerialPort: "/dev/ttyACM0"}, want: "serial-/dev/ttyACM0"},
		{name: "serial auto", cfg: config.ConnectionConfig{Connector: config.ConnectorSerial}, want: "serial-auto"},
	}

	for _, tc := range tests {
		if got := DeviceLockKey(tc.cfg); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestConnectionStatusFromConfig(t *testing.T) {
	status := ConnectionStatusFromConfig(config.ConnectionConfig{
		Connector:  config.ConnectorSerial,
		SerialBaud: 115200,
	})

	if status.State != connectors.ConnectionStateDisconnected {
		t.Fatalf("expected disconnected state, got %q", status.State)
	}
	if status.TransportName != "serial" {
		t.Fatalf("expected serial transport name, got %q", status.TransportName)
	}
	if status.Target != "auto" {
		t.Fatalf("expected auto target, got %q", status.Target)
	}
}

func TestTransportFactoryForConnection(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.ConnectionConfig
		hint       string
		wantName   string
		wantTarget string
		wantErr    bool
	}{
		{
			name:       "ip",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorIP, Host: "127.0.0.1", Port: 4403},
			wantName:   "ip",
			wantTarget: "127.0.0.1:4403",
		},
		{
			name:       "ip hint replaces host",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorIP, Host: "127.0.0.1", Port: 4403},
			hint:       "10.0.0.5",
			wantName:   "ip",
			wantTarget: "10.0.0.5:4403",
		},
		{
			name:       "serial",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorSerial, SerialPort: "/dev/ttyACM0", SerialBaud: 115200},
			wantName:   "serial",
			wantTarget: "/dev/ttyACM0",
		},
		{
			name:       "serial hint replaces port",
			cfg:        config.ConnectionConfig{Connector: config.ConnectorSerial, SerialBaud: 115200},
			hint:       "/dev/ttyUSB1",
			wantName:   "serial",
			wantTarget: "/dev/ttyUSB1",
		},
		{
			name:    "unknown",
			cfg:     config.ConnectionConfig{Connector: "ble"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tr, err := TransportFactoryForConnection(tc.cfg)(tc.hint)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error, got nil", tc.name)
			}

			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tr.Name() != tc.wantName {
			t.Fatalf("%s: expected transport %q, got %q", tc.name, tc.wantName, tr.Name())
		}
		if tr.Target() != tc.wantTarget {
			t.Fatalf("%s: expected target %q, got %q", tc.name, tc.wantTarget, tr.Target())
		}
	}
}
