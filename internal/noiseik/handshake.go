// Package noiseik implements the mutually-authenticated Noise_IK handshake
// (spec component C) and the transport-mode AEAD wrapper it yields
// (component D), using the parameter string fixed by spec §4.C:
// Noise_IK_25519_ChaChaPoly_BLAKE2s.
package noiseik

import (
	"crypto/rand"
	"fmt"

	"blackwire/internal/wire"

	noise "github.com/flynn/noise"
)

var suite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// StaticKey is an opaque 32-byte Curve25519 public key (spec §3).
type StaticKey [32]byte

// Bytes returns the key as a plain slice, for APIs (flynn/noise, hex
// encoding) that want []byte rather than [32]byte.
func (k StaticKey) Bytes() []byte { return k[:] }

// Keypair is a local static X25519 keypair.
type Keypair struct {
	Public  StaticKey
	Private StaticKey
}

// GenerateKeypair produces a fresh X25519 static keypair, used by the
// KeyStore on first run (spec §6: "a fresh keypair MAY be generated").
func GenerateKeypair() (Keypair, error) {
	dhKey, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("noiseik: generate keypair: %w", err)
	}
	var kp Keypair
	copy(kp.Public[:], dhKey.Public)
	copy(kp.Private[:], dhKey.Private)
	return kp, nil
}

func newHandshakeState(local Keypair, initiator bool, peerStatic []byte) (*noise.HandshakeState, error) {
	cfg := noise.Config{
		CipherSuite: suite,
		Pattern:     noise.HandshakeIK,
		Initiator:   initiator,
		StaticKeypair: noise.DHKey{
			Private: append([]byte(nil), local.Private[:]...),
			Public:  append([]byte(nil), local.Public[:]...),
		},
	}
	if peerStatic != nil {
		cfg.PeerStatic = peerStatic
	}
	hs, err := noise.NewHandshakeState(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return hs, nil
}

// ClientHandshake runs the initiator side of Noise_IK over codec: it writes
// message 1 (which, per the IK pattern, authenticates the client's own
// static public key to the server) and reads message 2. The full handshake
// is exactly these two wire messages (spec §4.C).
func ClientHandshake(codec *wire.Codec, local Keypair, serverStatic StaticKey) (*Transport, error) {
	hs, err := newHandshakeState(local, true, serverStatic[:])
	if err != nil {
		return nil, err
	}

	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: write message 1: %w", ErrHandshakeFailed, err)
	}
	if err := codec.WriteMessage(msg1); err != nil {
		return nil, fmt.Errorf("%w: send message 1: %w", ErrHandshakeFailed, err)
	}

	msg2, err := codec.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read message 2: %w", ErrHandshakeFailed, err)
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, fmt.Errorf("%w: process message 2: %w", ErrHandshakeFailed, err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, fmt.Errorf("%w: handshake incomplete after message 2", ErrHandshakeFailed)
	}

	// cs1 is the client->server direction, cs2 is server->client.
	return &Transport{send: cs1, recv: cs2}, nil
}

// ServerHandshake runs the responder side of Noise_IK over codec: it reads
// message 1 (learning the client's static public key, which the IK pattern
// carries encrypted and authenticated in that message, via PeerStatic) and
// writes message 2. It returns the transport cipher
// and the client's static key, so the caller can run admission control
// (spec §4.H, step "Authenticated -> Admitted") before trusting the peer.
func ServerHandshake(codec *wire.Codec, local Keypair) (*Transport, StaticKey, error) {
	hs, err := newHandshakeState(local, false, nil)
	if err != nil {
		return nil, StaticKey{}, err
	}

	msg1, err := codec.ReadMessage()
	if err != nil {
		return nil, StaticKey{}, fmt.Errorf("%w: read message 1: %w", ErrHandshakeFailed, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, StaticKey{}, fmt.Errorf("%w: process message 1: %w", ErrHandshakeFailed, err)
	}

	var clientStatic StaticKey
	copy(clientStatic[:], hs.PeerStatic())

	msg2, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, StaticKey{}, fmt.Errorf("%w: write message 2: %w", ErrHandshakeFailed, err)
	}
	if err := codec.WriteMessage(msg2); err != nil {
		return nil, StaticKey{}, fmt.Errorf("%w: send message 2: %w", ErrHandshakeFailed, err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, StaticKey{}, fmt.Errorf("%w: handshake incomplete after message 2", ErrHandshakeFailed)
	}

	// cs1 is client->server (what we receive), cs2 is server->client (what we send).
	return &Transport{send: cs2, recv: cs1}, clientStatic, nil
}
