package link

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/meshmon/internal/radio"
	"github.com/skobkin/meshmon/internal/transport"
)

type pipeTransport struct {
	in      chan []byte
	out     chan []byte
	readErr chan error
	closed  chan struct{}
	once    sync.Once
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		in:      make(chan []byte, 8),
		out:     make(chan []byte, 8),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (p *pipeTransport) Name() string                  { return "pipe" }
func (p *pipeTransport) Target() string                { return "pipe0" }
func (p *pipeTransport) Connect(context.Context) error { return nil }

func (p *pipeTransport) Close() error {
	p.once.Do(func() { close(p.closed) })

	return nil
}

func (p *pipeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case raw := <-p.in:
		return raw, nil
	case err := <-p.readErr:
		return nil, err
	case <-p.closed:
		return nil, transport.ErrNotConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) WriteFrame(ctx context.Context, payload []byte) error {
	select {
	case p.out <- payload:
		return nil
	case <-p.closed:
		return transport.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) push(t *testing.T, env envelope) {
	t.Helper()
	raw, err := encodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p.in <- raw
}

// serve answers every request written to p with reply(req).
func (p *pipeTransport) serve(t *testing.T, reply func(req envelope) envelope) {
	t.Helper()
	go func() {
		for {
			select {
			case raw := <-p.out:
				req, err := decodeEnvelope(raw)
				if err != nil {
					t.Errorf("decode request: %v", err)

					return
				}
				resp := reply(req)
				resp.ReplyTo = req.ID
				if resp.Kind == "" {
					resp.Kind = kindResult
				}
				encoded, err := encodeEnvelope(resp)
				if err != nil {
					t.Errorf("encode reply: %v", err)

					return
				}
				p.in <- encoded
			case <-p.closed:
				return
			}
		}
	}()
}

func openBridge(t *testing.T) (*Bridge, *pipeTransport, radio.Handle) {
	t.Helper()
	tr := newPipeTransport()
	b := NewBridge(nil, "bridge", func(string) (transport.Transport, error) { return tr, nil })
	h, err := b.Open(t.Context(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(context.Background(), h) })

	return b, tr, h
}

func TestBridge_LocalIdentityRoundtrip(t *testing.T) {
	b, tr, h := openBridge(t)
	tr.serve(t, func(req envelope) envelope {
		if req.Kind != kindIdentity {
			t.Errorf("expected identity request, got %q", req.Kind)
		}

		return envelope{Identity: &wireIdentity{ID: "!0000beef", ShortName: "BEEF"}}
	})

	id, err := b.LocalIdentity(t.Context(), h)
	if err != nil {
		t.Fatalf("local identity: %v", err)
	}
	if id.ID != "!0000beef" || id.DisplayName != "BEEF" || id.ShortName != "BEEF" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if h.Target() != "pipe0" {
		t.Fatalf("expected target pipe0, got %q", h.Target())
	}
}

func TestBridge_KnownNodesSkipsBlankIDs(t *testing.T) {
	b, tr, h := openBridge(t)
	rssi := int32(-90)
	hops := uint32(2)
	tr.serve(t, func(envelope) envelope {
		return envelope{Nodes: []wireNode{
			{ID: "!00000002", LongName: "Relay", RSSI: &rssi, HopsAway: &hops, LastHeard: 1700000000},
			{ID: "  "},
		}}
	})

	nodes, err := b.KnownNodes(t.Context(), h)
	if err != nil {
		t.Fatalf("known nodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	n := nodes["!00000002"]
	if n.LongName != "Relay" || n.RSSI == nil || *n.RSSI != -90 || n.HopsAway == nil || *n.HopsAway != 2 {
		t.Fatalf("unexpected node: %+v", n)
	}
	if !n.LastHeard.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected last heard: %v", n.LastHeard)
	}
}

func TestBridge_RequestCarriesArguments(t *testing.T) {
	b, tr, h := openBridge(t)
	got := make(chan envelope, 2)
	tr.serve(t, func(req envelope) envelope {
		got <- req

		return envelope{}
	})

	if err := b.SendText(t.Context(), h, "hi", "^all", false); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if err := b.WriteConfig(t.Context(), h, radio.ConfigSectionLoRa, radio.ConfigValues{"channel_num": 3}); err != nil {
		t.Fatalf("write config: %v", err)
	}

	send := <-got
	if send.Kind != kindSendText || send.Text != "hi" || send.To != "^all" || send.WantAck {
		t.Fatalf("unexpected send request: %+v", send)
	}
	write := <-got
	if write.Kind != kindWriteConfig || write.Section != "lora" {
		t.Fatalf("unexpected write request: %+v", write)
	}
	if v, ok := write.Values["channel_num"].(uint64); !ok || v != 3 {
		t.Fatalf("expected channel_num 3, got %#v", write.Values["channel_num"])
	}
	if send.ID == write.ID {
		t.Fatalf("expected distinct request ids, got %d twice", send.ID)
	}
}

func TestBridge_ErrorReply(t *testing.T) {
	b, tr, h := openBridge(t)
	tr.serve(t, func(envelope) envelope { return envelope{Error: "radio busy"} })

	err := b.RequestTelemetry(t.Context(), h)
	if err == nil || !strings.Contains(err.Error(), "radio busy") {
		t.Fatalf("expected bridge error, got %v", err)
	}
}

func TestBridge_PacketNotification(t *testing.T) {
	b, tr, h := openBridge(t)
	got := make(chan radio.Notification, 1)
	if err := b.Subscribe(h, func(n radio.Notification) { got <- n }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	snr := 5.5
	tr.push(t, envelope{Kind: kindPacket, Packet: &wirePacket{
		ID:     7,
		From:   "!00000002",
		To:     "^all",
		Port:   string(radio.PortText),
		Text:   "hello",
		RxSNR:  &snr,
		RxTime: 1700000000,
	}})

	select {
	case n := <-got:
		if n.Kind != radio.NotificationPacket || n.Packet == nil {
			t.Fatalf("expected packet notification, got %+v", n)
		}
		if n.Handle != h {
			t.Fatalf("expected notification from the open handle")
		}
		if n.Packet.Text != "hello" || n.Packet.PortNum != radio.PortText || *n.Packet.RxSNR != 5.5 {
			t.Fatalf("unexpected packet: %+v", n.Packet)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected packet notification")
	}
}

func TestBridge_ReadFailureEmitsLostAndFailsWaiters(t *testing.T) {
	b, tr, h := openBridge(t)
	got := make(chan radio.Notification, 1)
	if err := b.Subscribe(h, func(n radio.Notification) { got <- n }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	errs := make(chan error, 1)
	go func() { errs <- b.RequestTelemetry(t.Context(), h) }()
	<-tr.out
	tr.readErr <- errors.New("usb unplugged")

	select {
	case n := <-got:
		if n.Kind != radio.NotificationLost || n.Err == nil || n.Err.Error() != "usb unplugged" {
			t.Fatalf("expected lost notification, got %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected lost notification")
	}
	select {
	case err := <-errs:
		if !errors.Is(err, ErrLinkClosed) {
			t.Fatalf("expected ErrLinkClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected pending request to fail")
	}
}

func TestBridge_CloseDoesNotEmitLost(t *testing.T) {
	tr := newPipeTransport()
	b := NewBridge(nil, "bridge", func(string) (transport.Transport, error) { return tr, nil })
	h, err := b.Open(t.Context(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got := make(chan radio.Notification, 1)
	if err := b.Subscribe(h, func(n radio.Notification) { got <- n }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Close(t.Context(), h); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case n := <-got:
		t.Fatalf("expected no notification after close, got %+v", n)
	default:
	}
	if err := b.Subscribe(h, func(radio.Notification) {}); !errors.Is(err, ErrLinkClosed) {
		t.Fatalf("expected ErrLinkClosed, got %v", err)
	}
	if _, err := b.LocalIdentity(t.Context(), h); !errors.Is(err, ErrLinkClosed) {
		t.Fatalf("expected ErrLinkClosed, got %v", err)
	}
}

func TestBridge_ForeignHandle(t *testing.T) {
	b := NewBridge(nil, "bridge", func(string) (transport.Transport, error) { return newPipeTransport(), nil })
	if err := b.RequestTelemetry(t.Context(), foreignHandle{}); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
}

type foreignHandle struct{}

func (foreignHandle) Target() string { return "other" }
