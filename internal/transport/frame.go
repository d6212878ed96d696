package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Frames are a two byte start marker, a big-endian uint16 payload length and
// the payload.
const (
	frameStart1    = 0x94
	frameStart2    = 0xC3
	frameHeaderLen = 4

	// MaxFramePayload is the largest payload the length field can describe.
	MaxFramePayload = math.MaxUint16
)

var ErrFrameTooLarge = errors.New("frame payload too large")

// appendFrame appends the framed payload to dst.
func appendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return dst, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	dst = append(dst, frameStart1, frameStart2)
	// #nosec G115 -- length is bounded by MaxFramePayload above.
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))

	return append(dst, payload...), nil
}

// frameReader pulls frames out of a byte stream. Bytes before a start marker
// are skipped and counted: the serial console shares the line with device
// log output.
type frameReader struct {
	fill    func(buf []byte) error
	skipped int
	one     [1]byte
}

func (r *frameReader) next() ([]byte, error) {
	if err := r.syncStart(); err != nil {
		return nil, err
	}

	var length [2]byte
	if err := r.fill(length[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	n := int(binary.BigEndian.Uint16(length[:]))
	if n == 0 {
		return nil, errors.New("invalid frame length: 0")
	}

	payload := make([]byte, n)
	if err := r.fill(payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}

func (r *frameReader) syncStart() error {
	matched := false
	for {
		if err := r.fill(r.one[:]); err != nil {
			return fmt.Errorf("read frame start: %w", err)
		}
		switch {
		case matched && r.one[0] == frameStart2:
			return nil
		case r.one[0] == frameStart1:
			if matched {
				r.skipped++
			}
			matched = true
		default:
			if matched {
				r.skipped++
			}
			r.skipped++
			matched = false
		}
	}
}
