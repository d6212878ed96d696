// Package radiotest provides an in-memory radio.Link for tests.
package radiotest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/skobkin/meshmon/internal/radio"
)

// Handle is a fake link handle.
type Handle struct {
	Seq    int
	target string
}

func (h *Handle) Target() string {
	return h.target
}

// ConfigWrite records one WriteConfig call.
type ConfigWrite struct {
	Section radio.ConfigSection
	Values  radio.ConfigValues
}

// SentText records one SendText call.
type SentText struct {
	Text        string
	Destination string
	WantAck     bool
}

// Link is a scriptable radio.Link. Errors queued in OpenErrors are consumed
// one per Open call; when the queue is empty FailOpens decides the outcome.
type Link struct {
	mu sync.Mutex

	Identity    radio.Identity
	Nodes       map[string]radio.NodeSnapshot
	OpenErrors  []error
	FailOpens   bool
	IdentityErr error
	WriteErr    error
	SendErr     error

	// OnKnownNodes runs at the start of every KnownNodes call.
	OnKnownNodes func()

	handles    []*Handle
	sinks      map[*Handle]func(radio.Notification)
	opens      int
	closes     int
	subscribes int
	telemetry  int
	writes     []ConfigWrite
	sent       []SentText
}

func NewLink() *Link {
	return &Link{
		Identity: radio.Identity{ID: "!00000001", DisplayName: "Base", ShortName: "BASE"},
		Nodes:    map[string]radio.NodeSnapshot{},
		sinks:    make(map[*Handle]func(radio.Notification)),
	}
}

func (l *Link) Name() string {
	return "fake"
}

func (l *Link) Open(_ context.Context, portHint string) (radio.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opens++
	if len(l.OpenErrors) > 0 {
		err := l.OpenErrors[0]
		l.OpenErrors = l.OpenErrors[1:]
		if err != nil {
			return nil, err
		}
	} else if l.FailOpens {
		return nil, errors.New("device not found")
	}
	target := portHint
	if target == "" {
		target = "/dev/ttyFAKE0"
	}
	h := &Handle{Seq: l.opens, target: target}
	l.handles = append(l.handles, h)

	return h, nil
}

func (l *Link) Close(_ context.Context, h radio.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fh, ok := h.(*Handle)
	if !ok {
		return fmt.Errorf("unexpected handle %T", h)
	}
	l.closes++
	delete(l.sinks, fh)

	return nil
}

func (l *Link) Subscribe(h radio.Handle, sink func(radio.Notification)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fh, ok := h.(*Handle)
	if !ok {
		return fmt.Errorf("unexpected handle %T", h)
	}
	l.subscribes++
	l.sinks[fh] = sink

	return nil
}

func (l *Link) LocalIdentity(context.Context, radio.Handle) (radio.Identity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.IdentityErr != nil {
		return radio.Identity{}, l.IdentityErr
	}

	return l.Identity, nil
}

func (l *Link) SendText(_ context.Context, _ radio.Handle, text, destination string, wantAck bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SendErr != nil {
		return l.SendErr
	}
	l.sent = append(l.sent, SentText{Text: text, Destination: destination, WantAck: wantAck})

	return nil
}

func (l *Link) WriteConfig(_ context.Context, _ radio.Handle, section radio.ConfigSection, values radio.ConfigValues) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.WriteErr != nil {
		return l.WriteErr
	}
	l.writes = append(l.writes, ConfigWrite{Section: section, Values: values})

	return nil
}

func (l *Link) KnownNodes(context.Context, radio.Handle) (map[string]radio.NodeSnapshot, error) {
	l.mu.Lock()
	hook := l.OnKnownNodes
	l.mu.Unlock()
	if hook != nil {
		hook()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]radio.NodeSnapshot, len(l.Nodes))
	for id, node := range l.Nodes {
		out[id] = node
	}

	return out, nil
}

func (l *Link) RequestTelemetry(context.Context, radio.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.telemetry++

	return nil
}

// Emit delivers n to the sink subscribed on the latest handle.
func (l *Link) Emit(n radio.Notification) bool {
	l.mu.Lock()
	if len(l.handles) == 0 {
		l.mu.Unlock()

		return false
	}
	h := l.handles[len(l.handles)-1]
	sink := l.sinks[h]
	l.mu.Unlock()
	if sink == nil {
		return false
	}
	if n.Handle == nil {
		n.Handle = h
	}
	sink(n)

	return true
}

// EmitPacket delivers p on the latest handle.
func (l *Link) EmitPacket(p radio.Packet) bool {
	return l.Emit(radio.Notification{Kind: radio.NotificationPacket, Packet: &p})
}

// EmitLost reports loss of the latest handle.
func (l *Link) EmitLost(err error) bool {
	return l.Emit(radio.Notification{Kind: radio.NotificationLost, Err: err})
}

// LatestHandle returns the most recently opened handle.
func (l *Link) LatestHandle() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}

	return l.handles[len(l.handles)-1]
}

// SetFailOpens switches every later Open to fail or succeed.
func (l *Link) SetFailOpens(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FailOpens = fail
}

func (l *Link) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.opens
}

func (l *Link) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closes
}

func (l *Link) Subscribes() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.subscribes
}

func (l *Link) TelemetryRequests() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.telemetry
}

func (l *Link) Writes() []ConfigWrite {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ConfigWrite, len(l.writes))
	copy(out, l.writes)

	return out
}

func (l *Link) Sent() []SentText {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SentText, len(l.sent))
	copy(out, l.sent)

	return out
}
