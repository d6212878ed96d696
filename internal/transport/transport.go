package transport

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("transport is not connected")

// Transport moves length-prefixed frames between us and the device bridge.
type Transport interface {
	Name() string
	// Target is the port or address the transport opens.
	Target() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}
