// Package protocol implements the framed request/response messages of the
// authentication service: an 8 byte little-endian length followed by a JSON payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPayload is the largest request payload the server accepts.
const MaxPayload = 4096

// headerSize is the width of the length prefix.
const headerSize = 8

var (
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum payload")
	ErrShortFrame    = errors.New("protocol: connection closed mid-frame")
)

// ReadFrame reads one frame from r. A declared length above max is rejected
// before any payload byte is read.
func ReadFrame(r io.Reader, max uint64) ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: reading length: %v", ErrShortFrame, err)
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint64(hdr[:])
	if n > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	payload := make([]byte, n)
	if got, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read %d of %d bytes: %v", ErrShortFrame, got, n, err)
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint64(buf, uint64(len(payload)))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}
