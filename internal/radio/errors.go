package radio

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("device is not connected")
	ErrQueueClosed  = errors.New("session queue is closed")
	ErrStaleLink    = errors.New("no packets received within stale timeout")
	ErrAlreadyOpen  = errors.New("connection is already open")
)

// ValidationError rejects a command before any device I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
