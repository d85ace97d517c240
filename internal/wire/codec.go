package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrPeerClosed is returned when the peer closes the connection, or sends
// fewer bytes than its own declared frame length promised.
var ErrPeerClosed = errors.New("wire: peer closed connection")

// maxPrefixedLen is the largest value the 2-byte big-endian length prefix
// can name.
const maxPrefixedLen = 65535

// Codec implements the length-prefixed framing described in spec §4.B: a
// 2-byte big-endian length followed by exactly that many bytes. It never
// interprets the payload — callers hand it ciphertext (AEAD tag included)
// or handshake messages indifferently.
//
// A Codec is not safe for concurrent Read or concurrent Write; the one
// session that owns it drives its reader task and writer task each from a
// single goroutine, matching the one-reader/one-writer split of spec §4.H.
type Codec struct {
	rw  io.ReadWriter
	br  *bufio.Reader
	hdr [2]byte
}

// NewCodec wraps a TCP connection (or any ReadWriter) with length-prefix
// framing.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{rw: rw, br: bufio.NewReader(rw)}
}

// WriteMessage emits one length-prefixed message. Partial underlying
// writes are retried to completion.
func (c *Codec) WriteMessage(msg []byte) error {
	if len(msg) > maxPrefixedLen {
		return fmt.Errorf("wire: message of %d bytes exceeds %d-byte length prefix", len(msg), maxPrefixedLen)
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(msg)))
	if err := c.writeFull(hdr[:]); err != nil {
		return err
	}
	return c.writeFull(msg)
}

func (c *Codec) writeFull(p []byte) error {
	for len(p) > 0 {
		n, err := c.rw.Write(p)
		if n > 0 {
			p = p[n:]
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPeerClosed, err)
		}
		if n == 0 {
			return ErrPeerClosed
		}
	}
	return nil
}

// ReadMessage reads exactly one length-prefixed message: 2 bytes of length,
// then that many bytes of payload. EOF or a short read at either step maps
// to ErrPeerClosed rather than blocking indefinitely.
func (c *Codec) ReadMessage() ([]byte, error) {
	if _, err := io.ReadFull(c.br, c.hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPeerClosed, err)
	}
	length := binary.BigEndian.Uint16(c.hdr[:])
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(c.br, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPeerClosed, err)
	}
	return buf, nil
}
