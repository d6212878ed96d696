package transport

import (
	"io"
	"sync"
)

// framedStream is the connected byte stream shared by the serial and IP
// transports. fill and write callbacks carry the per-transport deadline and
// cancellation handling.
type framedStream struct {
	kind string

	mu sync.Mutex
	rw io.ReadWriteCloser

	writeMu sync.Mutex
}

func (s *framedStream) attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rw != nil
}

func (s *framedStream) attach(rw io.ReadWriteCloser) {
	s.mu.Lock()
	s.rw = rw
	s.mu.Unlock()
}

// detach forgets the current stream and returns it for closing.
func (s *framedStream) detach() io.ReadWriteCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	rw := s.rw
	s.rw = nil

	return rw
}

func (s *framedStream) current() (io.ReadWriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rw == nil {
		return nil, ErrNotConnected
	}

	return s.rw, nil
}

func (s *framedStream) readFrame(fill func(rw io.ReadWriteCloser, buf []byte) error) ([]byte, error) {
	rw, err := s.current()
	if err != nil {
		return nil, err
	}

	fr := frameReader{fill: func(buf []byte) error { return fill(rw, buf) }}
	payload, err := fr.next()
	logger := transportLogger(s.kind)
	if fr.skipped > 0 {
		logger.Debug("skipped bytes before frame start", "bytes", fr.skipped)
	}
	if err != nil {
		logger.Debug("read frame failed", "error", err)

		return nil, err
	}
	logger.Debug("read frame", "len", len(payload))

	return payload, nil
}

func (s *framedStream) writeFrame(payload []byte, write func(rw io.ReadWriteCloser, frame []byte) error) error {
	rw, err := s.current()
	if err != nil {
		return err
	}
	frame, err := appendFrame(make([]byte, 0, frameHeaderLen+len(payload)), payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := write(rw, frame); err != nil {
		transportLogger(s.kind).Warn("write frame failed", "payload_len", len(payload), "error", err)

		return err
	}
	transportLogger(s.kind).Debug("write frame", "payload_len", len(payload), "frame_len", len(frame))

	return nil
}
