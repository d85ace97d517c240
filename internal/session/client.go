package session

import (
	"fmt"
	"io"
	"sync"

	"blackwire/internal/logging"
	"blackwire/internal/macpool"
	"blackwire/internal/noiseik"
	"blackwire/internal/wire"
)

// tapMTU is the fixed MTU applied to the client TAP device post-handshake
// (spec §6, "MTU is set to 1,400").
const tapMTU = 1400

// Tap is the local TAP device collaborator the client configures once it
// learns its assigned MAC, then drives for the life of the session (spec
// §1's TapDevice contract; out of scope for this module's own unit tests,
// so ClientSession depends only on this narrow interface).
type Tap interface {
	io.Closer
	Read(buf []byte) (int, error)
	Write(frame []byte) (int, error)
	SetMAC(mac macpool.MAC) error
	SetMTU(mtu int) error
	Up() error
}

// ClientSession drives the client side of one tunnel connection: handshake,
// MAC assignment, TAP configuration, then a duplex relay between the local
// TAP device and the server (spec §4.H, "Client side is symmetric").
type ClientSession struct {
	closer io.Closer
	codec  *wire.Codec
	local  noiseik.Keypair
	server noiseik.StaticKey
	tap    Tap
	log    logging.Logger
}

// NewClientSession wraps an already-dialed connection. closer is the
// underlying net.Conn (or any io.Closer) whose Close unblocks a pending
// codec read on fatal error.
func NewClientSession(closer io.Closer, codec *wire.Codec, local noiseik.Keypair, server noiseik.StaticKey, tap Tap, log logging.Logger) *ClientSession {
	return &ClientSession{closer: closer, codec: codec, local: local, server: server, tap: tap, log: log}
}

// Run performs the handshake, receives the assigned MAC, configures the
// TAP device, then relays frames in both directions until either side
// observes a fatal error. It returns the assigned MAC (zero value if the
// session never reached admission) and the error that ended the session.
func (c *ClientSession) Run() (macpool.MAC, error) {
	transport, err := noiseik.ClientHandshake(c.codec, c.local, c.server)
	if err != nil {
		return macpool.MAC{}, fmt.Errorf("session: handshake: %w", err)
	}

	mac, err := c.receiveAssignedMAC(transport)
	if err != nil {
		return macpool.MAC{}, err
	}

	if err := c.tap.SetMAC(mac); err != nil {
		return mac, fmt.Errorf("session: configure TAP MAC: %w", err)
	}
	if err := c.tap.SetMTU(tapMTU); err != nil {
		return mac, fmt.Errorf("session: configure TAP MTU: %w", err)
	}
	if err := c.tap.Up(); err != nil {
		return mac, fmt.Errorf("session: bring up TAP: %w", err)
	}

	var (
		once     sync.Once
		finalErr error
	)
	closeSession := func(cause error) {
		once.Do(func() {
			finalErr = cause
			c.closer.Close()
			c.tap.Close()
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		closeSession(c.relayTapToServer(transport))
	}()
	go func() {
		defer wg.Done()
		closeSession(c.relayServerToTap(transport))
	}()
	wg.Wait()

	c.log.Printf("session: client session for %s closed: %v", mac, finalErr)
	return mac, finalErr
}

func (c *ClientSession) receiveAssignedMAC(transport *noiseik.Transport) (macpool.MAC, error) {
	ciphertext, err := c.codec.ReadMessage()
	if err != nil {
		return macpool.MAC{}, fmt.Errorf("session: read AssignMac: %w", err)
	}
	plaintext, err := transport.Decrypt(ciphertext)
	if err != nil {
		return macpool.MAC{}, fmt.Errorf("session: decrypt AssignMac: %w", err)
	}
	frame, err := wire.Decode(plaintext)
	if err != nil {
		return macpool.MAC{}, fmt.Errorf("%w: %w", ErrBadHandshake, err)
	}
	if frame.Op != wire.OpControl || frame.Ctrl != wire.CtrlAssignMac || len(frame.Payload) != 6 {
		return macpool.MAC{}, fmt.Errorf("%w: expected Control/AssignMac with 6-byte payload", ErrBadHandshake)
	}
	var mac macpool.MAC
	copy(mac[:], frame.Payload)
	return mac, nil
}

// relayTapToServer reads raw Ethernet frames from the local TAP device,
// encrypts them, and writes them to the server (the client-side mirror of
// the server's upstream task).
func (c *ClientSession) relayTapToServer(transport *noiseik.Transport) error {
	buf := make([]byte, wire.MaxFrameLen)
	for {
		n, err := c.tap.Read(buf)
		if err != nil {
			return fmt.Errorf("session: TAP read: %w", err)
		}
		if n == 0 {
			continue
		}
		ciphertext, err := transport.Encrypt(wire.EncodeEthernet(buf[:n]))
		if err != nil {
			return fmt.Errorf("session: encrypt: %w", err)
		}
		if err := c.codec.WriteMessage(ciphertext); err != nil {
			return fmt.Errorf("session: write: %w", err)
		}
	}
}

// relayServerToTap reads ciphertext from the server, decrypts, and writes
// Ethernet frames to the local TAP device (the client-side mirror of the
// server's downstream task).
func (c *ClientSession) relayServerToTap(transport *noiseik.Transport) error {
	for {
		ciphertext, err := c.codec.ReadMessage()
		if err != nil {
			return fmt.Errorf("session: read: %w", err)
		}
		plaintext, err := transport.Decrypt(ciphertext)
		if err != nil {
			return fmt.Errorf("session: decrypt: %w", err)
		}
		frame, err := wire.Decode(plaintext)
		if err != nil {
			c.log.Printf("session: dropping malformed frame: %v", err)
			continue
		}
		switch frame.Op {
		case wire.OpEthernet:
			if len(frame.Payload) == 0 {
				continue
			}
			if _, err := c.tap.Write(frame.Payload); err != nil {
				return fmt.Errorf("session: TAP write: %w", err)
			}
		case wire.OpControl, wire.OpIP:
			// Control frames post-handshake and reserved IP frames are ignored.
		}
	}
}
