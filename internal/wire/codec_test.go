package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type loopback struct {
	buf bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.buf.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.buf.Write(p) }

func TestCodecRoundTrip(t *testing.T) {
	lb := &loopback{}
	c := NewCodec(lb)
	msg := []byte("hello, tunnel")
	if err := c.WriteMessage(msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
}

func TestCodecHeaderIsBigEndian(t *testing.T) {
	lb := &loopback{}
	c := NewCodec(lb)
	if err := c.WriteMessage([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	hdr := lb.buf.Bytes()[:2]
	if hdr[0] != 0x00 || hdr[1] != 0x03 {
		t.Fatalf("header bytes = %v, want [0x00 0x03]", hdr)
	}
}

func TestCodecReadMessage_ShortBodyIsPeerClosed(t *testing.T) {
	lb := &loopback{}
	// Declare a 10-byte body but only supply 3.
	lb.buf.Write([]byte{0x00, 0x0A, 1, 2, 3})
	c := NewCodec(lb)
	_, err := c.ReadMessage()
	if !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("err = %v, want ErrPeerClosed", err)
	}
}

func TestCodecReadMessage_EOFIsPeerClosed(t *testing.T) {
	lb := &loopback{}
	c := NewCodec(lb)
	_, err := c.ReadMessage()
	if !errors.Is(err, ErrPeerClosed) && !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want ErrPeerClosed", err)
	}
}

func TestCodecZeroLengthMessage(t *testing.T) {
	lb := &loopback{}
	c := NewCodec(lb)
	if err := c.WriteMessage(nil); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestCodecRejectsOversizeMessage(t *testing.T) {
	lb := &loopback{}
	c := NewCodec(lb)
	big := make([]byte, maxPrefixedLen+1)
	if err := c.WriteMessage(big); err == nil {
		t.Fatal("expected error for oversize message")
	}
}
