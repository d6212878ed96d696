package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// The read timeout bounds how long a read ignores ctx cancellation.
const serialReadTimeout = 300 * time.Millisecond

// SerialTransport talks to the bridge over a serial port. An empty port name
// is resolved with DetectSerialPort on every Connect.
type SerialTransport struct {
	portName string
	baudRate int
	detect   func() (string, error)
	open     func(name string, mode *serial.Mode) (serial.Port, error)

	connectMu sync.Mutex
	resolved  string
	stream    framedStream
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
		detect:   DetectSerialPort,
		open:     serial.Open,
		stream:   framedStream{kind: "serial"},
	}
}

func (t *SerialTransport) Name() string {
	return "serial"
}

// Target is the opened port, the configured one, or "auto".
func (t *SerialTransport) Target() string {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()
	switch {
	case t.resolved != "":
		return t.resolved
	case t.portName != "":
		return t.portName
	default:
		return "auto"
	}
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()
	if t.stream.attached() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	name := t.portName
	if name == "" {
		detected, err := t.detect()
		if err != nil {
			return fmt.Errorf("detect serial port: %w", err)
		}
		name = detected
	}
	logger := transportLogger("serial", "port", name, "baud", t.baudRate)

	port, err := t.open(name, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("open serial port %q: %w", name, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()

		return fmt.Errorf("set serial read timeout: %w", err)
	}
	t.resolved = name
	t.stream.attach(port)
	logger.Info("connected")

	return nil
}

func (t *SerialTransport) Close() error {
	port := t.stream.detach()
	if port == nil {
		return nil
	}
	err := port.Close()
	transportLogger("serial", "port", t.Target()).Info("closed")

	return err
}

func (t *SerialTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	return t.stream.readFrame(func(rw io.ReadWriteCloser, buf []byte) error {
		return readFullContext(ctx, rw, buf)
	})
}

func (t *SerialTransport) WriteFrame(ctx context.Context, payload []byte) error {
	return t.stream.writeFrame(payload, func(rw io.ReadWriteCloser, frame []byte) error {
		if err := writeFull(ctx, rw, frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}

		return nil
	})
}

// readFullContext fills buf from a reader with a read timeout, checking ctx
// between the short reads. A timed out read returns 0 bytes and no error.
func readFullContext(ctx context.Context, r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}

	return nil
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}
