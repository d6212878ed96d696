package app

import (
	"fmt"
	"strings"

	"github.com/skobkin/meshmon/internal/config"
	"github.com/skobkin/meshmon/internal/connectors"
	"github.com/skobkin/meshmon/internal/link"
	"github.com/skobkin/meshmon/internal/transport"
)

func TransportNameFromConnector(connector config.ConnectorType) string {
	switch connector {
	case config.ConnectorIP:
		return "ip"
	case config.ConnectorSerial:
		return "serial"
	default:
		if value := strings.TrimSpace(string(connector)); value != "" {
			return value
		}

		return "unknown"
	}
}

// ConnectionTarget is the configured port or host. An empty serial target
// means the port is auto-detected.
func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorIP:
		return strings.TrimSpace(cfg.Host)
	case config.ConnectorSerial:
		return strings.TrimSpace(cfg.SerialPort)
	default:
		return ""
	}
}

// DeviceLockKey names the device for the per-device process lock, e.g.
// "serial-auto" or "ip-10.0.0.5".
func DeviceLockKey(cfg config.ConnectionConfig) string {
	target := ConnectionTarget(cfg)
	if target == "" {
		target = "auto"
	}

	return TransportNameFromConnector(cfg.Connector) + "-" + target
}

func ConnectionStatusFromConfig(cfg config.ConnectionConfig) connectors.ConnectionStatus {
	target := ConnectionTarget(cfg)
	if target == "" && cfg.Connector == config.ConnectorSerial {
		target = "auto"
	}

	return connectors.ConnectionStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: TransportNameFromConnector(cfg.Connector),
		Target:        target,
	}
}

// TransportFactoryForConnection builds transports for the bridge link. A
// non-empty hint replaces the configured serial port or IP host.
func TransportFactoryForConnection(cfg config.ConnectionConfig) link.TransportFactory {
	return func(hint string) (transport.Transport, error) {
		hint = strings.TrimSpace(hint)
		switch cfg.Connector {
		case config.ConnectorIP:
			host := cfg.Host
			if hint != "" {
				host = hint
			}
			port := cfg.Port
			if port <= 0 {
				port = config.DefaultIPPort
			}

			return transport.NewIPTransport(host, port), nil
		case config.ConnectorSerial:
			port := cfg.SerialPort
			if hint != "" {
				port = hint
			}

			return transport.NewSerialTransport(port, cfg.SerialBaud), nil
		default:
			return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
		}
	}
}
