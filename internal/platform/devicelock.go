// Package platform holds OS-specific helpers.
package platform

import (
	"errors"
	"strings"
)

// ErrDeviceLocked means another process already monitors the device.
var ErrDeviceLocked = errors.New("device is already in use by another process")

// ErrDeviceLockUnsupported means the platform has no lock backend.
var ErrDeviceLockUnsupported = errors.New("device lock unsupported")

// DeviceLock is a held advisory lock on one device. The OS drops it when the
// process exits, so a crash never leaves a device locked.
type DeviceLock interface {
	Release() error
}

// AcquireDeviceLock takes the per-user lock for device under appID without
// blocking.
func AcquireDeviceLock(appID, device string) (DeviceLock, error) {
	return acquireDeviceLock(
		normalizeLockComponent(appID, "app"),
		normalizeLockComponent(device, "device"),
	)
}

func normalizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return fallback
	}

	return normalized
}
