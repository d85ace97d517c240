package session

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"blackwire/internal/logging"
	"blackwire/internal/macpool"
	"blackwire/internal/noiseik"
	"blackwire/internal/wire"
)

// fakeTap is a hand-rolled in-memory stand-in for the real TAP device,
// following the teacher's no-mocking-framework test style.
type fakeTap struct {
	mu      sync.Mutex
	mac     macpool.MAC
	mtu     int
	up      bool
	closed  bool
	toLAN   chan []byte // frames the session wrote, i.e. delivered to the LAN
	fromLAN chan []byte // frames queued for the session to read
}

func newFakeTap() *fakeTap {
	return &fakeTap{
		toLAN:   make(chan []byte, 8),
		fromLAN: make(chan []byte, 8),
	}
}

func (f *fakeTap) Read(buf []byte) (int, error) {
	frame, ok := <-f.fromLAN
	if !ok {
		return 0, io.EOF
	}
	return copy(buf, frame), nil
}

func (f *fakeTap) Write(frame []byte) (int, error) {
	cp := append([]byte(nil), frame...)
	select {
	case f.toLAN <- cp:
	default:
	}
	return len(frame), nil
}

func (f *fakeTap) SetMAC(mac macpool.MAC) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mac = mac
	return nil
}

func (f *fakeTap) SetMTU(mtu int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mtu = mtu
	return nil
}

func (f *fakeTap) Up() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = true
	return nil
}

func (f *fakeTap) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.fromLAN)
	}
	return nil
}

func TestClientSession_ConfiguresTapAfterAssignMac(t *testing.T) {
	clientConn, serverConn := tcpPipe(t)
	defer serverConn.Close()

	serverKP := serverKeypair(t)
	clientKP := serverKeypair(t)

	// Drive the server side of the handshake + AssignMac by hand.
	serverCodec := wire.NewCodec(serverConn)
	serverDone := make(chan error, 1)
	var assignedMAC macpool.MAC
	go func() {
		transport, clientStatic, err := noiseik.ServerHandshake(serverCodec, serverKP)
		if err != nil {
			serverDone <- err
			return
		}
		_ = clientStatic
		mac, err := macpool.NewCandidate()
		if err != nil {
			serverDone <- err
			return
		}
		assignedMAC = mac
		ct, err := transport.Encrypt(wire.EncodeControl(wire.CtrlAssignMac, mac[:]))
		if err != nil {
			serverDone <- err
			return
		}
		serverDone <- serverCodec.WriteMessage(ct)
	}()

	tap := newFakeTap()
	clientCodec := wire.NewCodec(clientConn)
	cs := NewClientSession(clientConn, clientCodec, clientKP, serverKP.Public, tap, logging.Discard)

	runDone := make(chan struct{})
	var gotMAC macpool.MAC
	var runErr error
	go func() {
		gotMAC, runErr = cs.Run()
		close(runDone)
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("server side: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server side timed out")
	}

	clientConn.Close()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("client session did not exit after connection closed")
	}

	if gotMAC != assignedMAC {
		t.Fatalf("ClientSession returned MAC %s, want %s", gotMAC, assignedMAC)
	}
	tap.mu.Lock()
	defer tap.mu.Unlock()
	if tap.mac != assignedMAC {
		t.Fatalf("TAP was configured with MAC %s, want %s", tap.mac, assignedMAC)
	}
	if tap.mtu != tapMTU {
		t.Fatalf("TAP MTU = %d, want %d", tap.mtu, tapMTU)
	}
	if !tap.up {
		t.Fatal("TAP was never brought up")
	}
	if runErr == nil {
		t.Fatal("expected a non-nil error once the connection was closed")
	}
}

func TestClientSession_BadAssignMacPayloadIsRejected(t *testing.T) {
	clientConn, serverConn := tcpPipe(t)
	defer clientConn.Close()
	defer serverConn.Close()

	serverKP := serverKeypair(t)
	clientKP := serverKeypair(t)

	serverCodec := wire.NewCodec(serverConn)
	go func() {
		transport, _, err := noiseik.ServerHandshake(serverCodec, serverKP)
		if err != nil {
			return
		}
		// Wrong payload length: 3 bytes instead of 6.
		ct, err := transport.Encrypt(wire.EncodeControl(wire.CtrlAssignMac, []byte{1, 2, 3}))
		if err != nil {
			return
		}
		serverCodec.WriteMessage(ct)
	}()

	tap := newFakeTap()
	clientCodec := wire.NewCodec(clientConn)
	cs := NewClientSession(clientConn, clientCodec, clientKP, serverKP.Public, tap, logging.Discard)

	_, err := cs.Run()
	if !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("Run() error = %v, want ErrBadHandshake", err)
	}
}
