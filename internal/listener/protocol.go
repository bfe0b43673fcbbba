// Package listener is the daemon's local IPC surface: a unix stream
// socket speaking a length-prefixed JSON protocol, per spec.md §4.10
// and §6. Every mutating request is translated into a WAL append (and
// a bus wake) rather than calling the effect executor directly — the
// same dispatch loop that processes internally-generated events is
// the only path that ever folds an event into materialized state.
package listener

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxMessageBytes bounds a single frame, per spec.md §6.
const maxMessageBytes = 200 << 20

// readFrame reads one length-prefixed JSON message from r.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxMessageBytes {
		return nil, fmt.Errorf("frame of %d bytes exceeds %d byte limit", n, maxMessageBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return buf, nil
}

// writeFrame writes one length-prefixed JSON message to w.
func writeFrame(w io.Writer, body []byte) error {
	if len(body) > maxMessageBytes {
		return fmt.Errorf("frame of %d bytes exceeds %d byte limit", len(body), maxMessageBytes)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
