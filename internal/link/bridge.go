// Package link implements radio.Link against a decoding bridge: a helper
// process that owns the Meshtastic protocol stack and exchanges already
// decoded packets with us as CBOR envelopes over the device framing.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/skobkin/meshmon/internal/radio"
	"github.com/skobkin/meshmon/internal/transport"
)

var (
	ErrLinkClosed    = errors.New("link closed")
	ErrUnknownHandle = errors.New("handle does not belong to this link")
)

// TransportFactory builds a fresh transport for one Open call.
type TransportFactory func(portHint string) (transport.Transport, error)

type Bridge struct {
	logger  *slog.Logger
	factory TransportFactory
	name    string
	nextID  atomic.Uint32
}

func NewBridge(logger *slog.Logger, name string, factory TransportFactory) *Bridge {
	if logger == nil {
		logger = slog.Default().With("component", "link")
	}

	return &Bridge{logger: logger, factory: factory, name: name}
}

func (b *Bridge) Name() string {
	return b.name
}

func (b *Bridge) Open(ctx context.Context, portHint string) (radio.Handle, error) {
	tr, err := b.factory(portHint)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	if err := tr.Connect(ctx); err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	h := &handle{
		tr:      tr,
		logger:  b.logger.With("target", tr.Target()),
		waiters: make(map[uint32]chan envelope),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.readLoop(readCtx)
	h.logger.Info("bridge link opened", "transport", tr.Name())

	return h, nil
}

func (b *Bridge) Close(ctx context.Context, rh radio.Handle) error {
	h, err := asHandle(rh)
	if err != nil {
		return err
	}

	return h.close(ctx)
}

func (b *Bridge) Subscribe(rh radio.Handle, sink func(radio.Notification)) error {
	h, err := asHandle(rh)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrLinkClosed
	}
	h.sink = sink

	return nil
}

func (b *Bridge) LocalIdentity(ctx context.Context, rh radio.Handle) (radio.Identity, error) {
	resp, err := b.request(ctx, rh, envelope{Kind: kindIdentity})
	if err != nil {
		return radio.Identity{}, err
	}
	if resp.Identity == nil {
		return radio.Identity{}, errors.New("bridge returned no identity")
	}

	return resp.Identity.toRadio(), nil
}

func (b *Bridge) KnownNodes(ctx context.Context, rh radio.Handle) (map[string]radio.NodeSnapshot, error) {
	resp, err := b.request(ctx, rh, envelope{Kind: kindNodes})
	if err != nil {
		return nil, err
	}
	out := make(map[string]radio.NodeSnapshot, len(resp.Nodes))
	for _, n := range resp.Nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			continue
		}
		out[id] = n.toRadio()
	}

	return out, nil
}

func (b *Bridge) SendText(ctx context.Context, rh radio.Handle, text, destination string, wantAck bool) error {
	_, err := b.request(ctx, rh, envelope{Kind: kindSendText, Text: text, To: destination, WantAck: wantAck})

	return err
}

func (b *Bridge) WriteConfig(ctx context.Context, rh radio.Handle, section radio.ConfigSection, values radio.ConfigValues) error {
	_, err := b.request(ctx, rh, envelope{Kind: kindWriteConfig, Section: string(section), Values: values})

	return err
}

func (b *Bridge) RequestTelemetry(ctx context.Context, rh radio.Handle) error {
	_, err := b.request(ctx, rh, envelope{Kind: kindRequestTelemetry})

	return err
}

// request writes req and waits for the envelope that answers it.
func (b *Bridge) request(ctx context.Context, rh radio.Handle, req envelope) (envelope, error) {
	h, err := asHandle(rh)
	if err != nil {
		return envelope{}, err
	}
	req.ID = b.nextRequestID()

	ch, err := h.addWaiter(req.ID)
	if err != nil {
		return envelope{}, err
	}
	defer h.removeWaiter(req.ID)

	raw, err := encodeEnvelope(req)
	if err != nil {
		return envelope{}, err
	}
	if err := h.tr.WriteFrame(ctx, raw); err != nil {
		return envelope{}, fmt.Errorf("%s request: %w", req.Kind, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return envelope{}, ErrLinkClosed
		}
		if resp.Error != "" {
			return envelope{}, fmt.Errorf("%s request: bridge error: %s", req.Kind, resp.Error)
		}

		return resp, nil
	case <-ctx.Done():
		return envelope{}, fmt.Errorf("%s request: %w", req.Kind, ctx.Err())
	}
}

func (b *Bridge) nextRequestID() uint32 {
	for {
		if id := b.nextID.Add(1); id != 0 {
			return id
		}
	}
}

type handle struct {
	tr     transport.Transport
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	sink    func(radio.Notification)
	waiters map[uint32]chan envelope
	closed  bool
}

func asHandle(rh radio.Handle) (*handle, error) {
	h, ok := rh.(*handle)
	if !ok || h == nil {
		return nil, ErrUnknownHandle
	}

	return h, nil
}

func (h *handle) Target() string {
	return h.tr.Target()
}

func (h *handle) addWaiter(id uint32) (<-chan envelope, error) {
	ch := make(chan envelope, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrLinkClosed
	}
	h.waiters[id] = ch

	return ch, nil
}

func (h *handle) removeWaiter(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.waiters, id)
}

// shutdown marks the handle closed and releases every pending request. It
// reports whether this call did the closing.
func (h *handle) shutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	for id, ch := range h.waiters {
		close(ch)
		delete(h.waiters, id)
	}

	return true
}

func (h *handle) close(ctx context.Context) error {
	h.shutdown()
	h.cancel()
	if err := h.tr.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	select {
	case <-h.done:
	case <-ctx.Done():
		return fmt.Errorf("wait for reader: %w", ctx.Err())
	}
	h.logger.Info("bridge link closed")

	return nil
}

func (h *handle) readLoop(ctx context.Context) {
	defer close(h.done)
	for {
		raw, err := h.tr.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if h.shutdown() {
				h.logger.Warn("bridge link read failed", "error", err)
				h.notify(radio.Notification{Kind: radio.NotificationLost, Err: err})
			}

			return
		}

		env, err := decodeEnvelope(raw)
		if err != nil {
			h.logger.Warn("dropping undecodable frame", "len", len(raw), "error", err)

			continue
		}
		h.dispatch(env)
	}
}

func (h *handle) dispatch(env envelope) {
	if env.ReplyTo != 0 {
		h.mu.Lock()
		ch, ok := h.waiters[env.ReplyTo]
		if ok {
			delete(h.waiters, env.ReplyTo)
		}
		h.mu.Unlock()
		if !ok {
			h.logger.Debug("dropping reply without waiter", "reply_to", env.ReplyTo, "kind", env.Kind)

			return
		}
		ch <- env

		return
	}

	switch env.Kind {
	case kindEstablished:
		h.notify(radio.Notification{Kind: radio.NotificationEstablished})
	case kindPacket:
		if env.Packet == nil {
			h.logger.Debug("packet envelope without packet")

			return
		}
		p := env.Packet.toRadio()
		h.notify(radio.Notification{Kind: radio.NotificationPacket, Packet: &p})
	case kindLost:
		reason := env.Error
		if reason == "" {
			reason = "bridge reported device lost"
		}
		h.notify(radio.Notification{Kind: radio.NotificationLost, Err: errors.New(reason)})
	default:
		h.logger.Debug("ignoring unsolicited envelope", "kind", env.Kind)
	}
}

func (h *handle) notify(n radio.Notification) {
	h.mu.Lock()
	sink := h.sink
	h.mu.Unlock()
	if sink == nil {
		h.logger.Debug("notification before subscribe dropped", "kind", n.Kind.String())

		return
	}
	n.Handle = h
	sink(n)
}
