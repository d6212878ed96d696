package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	defaultIPPort = 4403
	ipDialTimeout = 6 * time.Second
	ipKeepAlive   = 30 * time.Second
)

// IPTransport reaches a bridge that listens on TCP, typically next to a
// network-attached radio.
type IPTransport struct {
	host string
	port int

	connectMu sync.Mutex
	stream    framedStream
}

func NewIPTransport(host string, port int) *IPTransport {
	if port == 0 {
		port = defaultIPPort
	}

	return &IPTransport{
		host:   host,
		port:   port,
		stream: framedStream{kind: "ip"},
	}
}

func (t *IPTransport) Name() string {
	return "ip"
}

func (t *IPTransport) Target() string {
	if t.host == "" {
		return ""
	}

	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

func (t *IPTransport) Connect(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	logger := transportLogger("ip", "target", t.Target())
	if t.stream.attached() {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if t.host == "" {
		logger.Warn("connect failed: host is empty")

		return errors.New("ip host is empty")
	}

	dialer := net.Dialer{Timeout: ipDialTimeout, KeepAlive: ipKeepAlive}
	logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", t.Target())
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial tcp: %w", err)
	}
	t.stream.attach(conn)
	logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *IPTransport) Close() error {
	conn := t.stream.detach()
	if conn == nil {
		return nil
	}
	logger := transportLogger("ip", "target", t.Target())
	if err := conn.Close(); err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

// ReadFrame blocks until a frame arrives, the ctx deadline passes or Close is
// called.
func (t *IPTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	return t.stream.readFrame(func(rw io.ReadWriteCloser, buf []byte) error {
		if conn, ok := rw.(net.Conn); ok {
			_ = conn.SetReadDeadline(deadlineOf(ctx))
		}
		_, err := io.ReadFull(rw, buf)

		return err
	})
}

func (t *IPTransport) WriteFrame(ctx context.Context, payload []byte) error {
	return t.stream.writeFrame(payload, func(rw io.ReadWriteCloser, frame []byte) error {
		if conn, ok := rw.(net.Conn); ok {
			_ = conn.SetWriteDeadline(deadlineOf(ctx))
		}
		if _, err := rw.Write(frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}

		return nil
	})
}

// deadlineOf returns the ctx deadline, or the zero time that clears one.
func deadlineOf(ctx context.Context) time.Time {
	deadline, _ := ctx.Deadline()

	return deadline
}
