package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestIPTransport_FrameRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	echoed := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			echoed <- err

			return
		}
		defer func() { _ = conn.Close() }()
		fr := frameReader{fill: readerFill(conn)}
		payload, err := fr.next()
		if err != nil {
			echoed <- err

			return
		}
		frame, err := appendFrame([]byte("noise"), append([]byte("echo:"), payload...))
		if err != nil {
			echoed <- err

			return
		}
		_, err = conn.Write(frame)
		echoed <- err
	}()

	addr := ln.Addr().(*net.TCPAddr)
	tr := NewIPTransport("127.0.0.1", addr.Port)
	if got, want := tr.Target(), net.JoinHostPort("127.0.0.1", strconv.Itoa(addr.Port)); got != want {
		t.Fatalf("unexpected target %q, want %q", got, want)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = tr.Close() }()

	if err := tr.WriteFrame(ctx, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := tr.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, []byte("echo:ping")) {
		t.Fatalf("unexpected payload %q", got)
	}
	if err := <-echoed; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestIPTransport_NotConnected(t *testing.T) {
	tr := NewIPTransport("127.0.0.1", 0)

	if _, err := tr.ReadFrame(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := tr.WriteFrame(context.Background(), []byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close without connect: %v", err)
	}
}

func TestIPTransport_EmptyHost(t *testing.T) {
	tr := NewIPTransport("", 4403)

	if err := tr.Connect(context.Background()); err == nil {
		t.Fatalf("expected error for empty host")
	}
}
