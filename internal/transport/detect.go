package transport

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var ErrNoSerialPort = errors.New("no serial port found")

// PortInfo describes one serial port candidate.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Product string
}

func (p PortInfo) Label() string {
	switch {
	case p.Product != "":
		return fmt.Sprintf("%s - %s", p.Name, p.Product)
	case p.USB:
		return fmt.Sprintf("%s - USB %s:%s", p.Name, p.VID, p.PID)
	default:
		return p.Name
	}
}

// Ports that never host a radio: built-in bluetooth and debug consoles.
var skippedPortMarkers = []string{"bluetooth", "debug"}

type portSource struct {
	detailed func() ([]*enumerator.PortDetails, error)
	plain    func() ([]string, error)
}

var systemPorts = portSource{
	detailed: enumerator.GetDetailedPortsList,
	plain:    serial.GetPortsList,
}

// ListSerialPorts lists usable serial ports, USB devices first.
func ListSerialPorts() ([]PortInfo, error) {
	return systemPorts.list()
}

// DetectSerialPort picks the most likely radio port.
func DetectSerialPort() (string, error) {
	ports, err := ListSerialPorts()
	if err != nil {
		return "", err
	}

	return pickSerialPort(ports)
}

func (s portSource) list() ([]PortInfo, error) {
	var ports []PortInfo

	details, err := s.detailed()
	if err == nil {
		for _, d := range details {
			if d == nil {
				continue
			}
			ports = append(ports, PortInfo{
				Name:    d.Name,
				USB:     d.IsUSB,
				VID:     d.VID,
				PID:     d.PID,
				Product: d.Product,
			})
		}
	} else {
		transportLogger("serial").Debug("detailed port enumeration failed, using plain list", "error", err)
		names, plainErr := s.plain()
		if plainErr != nil {
			return nil, fmt.Errorf("list serial ports: %w", errors.Join(err, plainErr))
		}
		for _, name := range names {
			ports = append(ports, PortInfo{Name: name})
		}
	}

	filtered := ports[:0]
	for _, p := range ports {
		if skipPort(p.Name) {
			continue
		}
		filtered = append(filtered, p)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].USB != filtered[j].USB {
			return filtered[i].USB
		}

		return filtered[i].Name < filtered[j].Name
	})

	return filtered, nil
}

func skipPort(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range skippedPortMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	return false
}

func pickSerialPort(ports []PortInfo) (string, error) {
	if len(ports) == 0 {
		return "", ErrNoSerialPort
	}
	for _, p := range ports {
		if p.USB {
			return p.Name, nil
		}
	}

	return ports[0].Name, nil
}
