package noiseik

import "errors"

var (
	// ErrHandshakeFailed wraps any Noise protocol violation, premature EOF,
	// or malformed-length failure observed before transport mode begins.
	ErrHandshakeFailed = errors.New("noiseik: handshake failed")

	// ErrDecryptFailed is returned when the AEAD authentication check on a
	// transport-mode ciphertext fails. It is fatal for the owning session.
	ErrDecryptFailed = errors.New("noiseik: decrypt failed")
)
