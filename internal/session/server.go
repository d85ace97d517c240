package session

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"blackwire/internal/clienttable"
	"blackwire/internal/logging"
	"blackwire/internal/noiseik"
	"blackwire/internal/wire"
)

// Authorizer decides whether a client's Noise static key is admitted,
// backed by the KeyStore allow-list (spec §4.H step 2).
type Authorizer interface {
	IsAllowed(static noiseik.StaticKey) bool
}

// ServerSession drives one accepted client connection through the state
// machine in spec §4.H: Connected -> Authenticated -> Admitted ->
// Negotiated -> Running -> Closed.
type ServerSession struct {
	conn   net.Conn
	codec  *wire.Codec
	local  noiseik.Keypair
	table  *clienttable.Table
	authz  Authorizer
	tapOut chan<- []byte
	log    logging.Logger

	mu       sync.Mutex
	lastSeen time.Time
}

// NewServerSession wraps an accepted connection. tapOut is the server's
// single TAP write queue (spec §4.I); Run enqueues every decrypted,
// non-empty Ethernet frame into it, dropping a frame when the queue is full.
func NewServerSession(conn net.Conn, local noiseik.Keypair, table *clienttable.Table, authz Authorizer, tapOut chan<- []byte, log logging.Logger) *ServerSession {
	return &ServerSession{
		conn:   conn,
		codec:  wire.NewCodec(conn),
		local:  local,
		table:  table,
		authz:  authz,
		tapOut: tapOut,
		log:    log,
	}
}

// Run executes the full per-client lifecycle and blocks until the session
// reaches Closed. The table entry, if one was inserted, is removed exactly
// once regardless of which side (upstream or downstream) observes the
// fatal error first (spec §5, "table removal happens exactly once").
func (s *ServerSession) Run() error {
	defer s.conn.Close()

	transport, clientStatic, err := noiseik.ServerHandshake(s.codec, s.local)
	if err != nil {
		return fmt.Errorf("session: handshake: %w", err)
	}

	if !s.authz.IsAllowed(clientStatic) {
		s.log.Printf("session: rejecting %s: static key not in allow-list", s.conn.RemoteAddr())
		return ErrUnauthorized
	}

	addr, err := remoteAddrPort(s.conn)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	info, err := s.table.Add(addr)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	assign := wire.EncodeControl(wire.CtrlAssignMac, info.MAC[:])
	ciphertext, err := transport.Encrypt(assign)
	if err != nil {
		s.table.Remove(info.MAC)
		return fmt.Errorf("session: encrypt AssignMac: %w", err)
	}
	if err := s.codec.WriteMessage(ciphertext); err != nil {
		s.table.Remove(info.MAC)
		return fmt.Errorf("session: send AssignMac: %w", err)
	}

	s.touch()

	var (
		once     sync.Once
		finalErr error
	)
	closeSession := func(cause error) {
		once.Do(func() {
			finalErr = cause
			s.conn.Close()
			s.table.Remove(info.MAC)
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		closeSession(runDownstream(s.codec, transport, info.Outbox, info.Done))
	}()
	go func() {
		defer wg.Done()
		closeSession(s.runUpstream(transport))
	}()
	wg.Wait()

	s.log.Printf("session: %s (%s) closed: %v", info.MAC, s.conn.RemoteAddr(), finalErr)
	return finalErr
}

func (s *ServerSession) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen reports the last time this session observed any traffic from
// its peer, for diagnostics and the status view (spec §12).
func (s *ServerSession) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *ServerSession) runUpstream(transport *noiseik.Transport) error {
	for {
		ciphertext, err := s.codec.ReadMessage()
		if err != nil {
			return fmt.Errorf("session: upstream read: %w", err)
		}
		plaintext, err := transport.Decrypt(ciphertext)
		if err != nil {
			return fmt.Errorf("session: upstream decrypt: %w", err)
		}
		s.touch()

		frame, err := wire.Decode(plaintext)
		if err != nil {
			s.log.Printf("session: dropping malformed upstream frame: %v", err)
			continue
		}
		switch frame.Op {
		case wire.OpEthernet:
			if len(frame.Payload) == 0 {
				continue
			}
			select {
			case s.tapOut <- frame.Payload:
			default:
				s.log.Printf("session: dropping ethernet frame, TAP write queue full")
			}
		case wire.OpControl:
			// Pong liveness is already captured by touch() above;
			// Handshake/AssignMac received post-handshake are ignored.
		case wire.OpIP:
			// reserved, currently ignored.
		}
	}
}

// runDownstream drains outbox until either the connection is torn down
// (done closed by Table.Remove) or a write fails. outbox itself is never
// closed by the table, so done is what lets this loop exit.
func runDownstream(codec *wire.Codec, transport *noiseik.Transport, outbox <-chan []byte, done <-chan struct{}) error {
	for {
		select {
		case plaintext := <-outbox:
			ciphertext, err := transport.Encrypt(wire.EncodeEthernet(plaintext))
			if err != nil {
				return fmt.Errorf("session: downstream encrypt: %w", err)
			}
			if err := codec.WriteMessage(ciphertext); err != nil {
				return fmt.Errorf("session: downstream write: %w", err)
			}
		case <-done:
			return ErrChannelClosed
		}
	}
}

func remoteAddrPort(conn net.Conn) (netip.AddrPort, error) {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, errors.New("session: connection has no TCP remote address")
	}
	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return netip.AddrPort{}, errors.New("session: invalid remote IP")
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(addr.Port)), nil
}
