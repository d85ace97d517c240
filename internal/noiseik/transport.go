package noiseik

import (
	"fmt"
	"sync"

	noise "github.com/flynn/noise"
)

// Transport is the post-handshake cipher state (spec component D). Its
// send and recv directions are two independent Noise CipherStates with
// Noise-maintained monotonic nonces; the session's downstream goroutine
// uses send (Encrypt) and its upstream goroutine uses recv (Decrypt). The
// whole Transport is nonetheless guarded by a single mutex held only for
// the duration of one Encrypt or Decrypt call — never across I/O (spec §5).
type Transport struct {
	mu   sync.Mutex
	send *noise.CipherState
	recv *noise.CipherState
}

// Encrypt authenticates and encrypts one plaintext frame. Ciphertext size
// is plaintext size + 16 (the ChaCha20-Poly1305 tag).
func (t *Transport) Encrypt(plaintext []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.send.Encrypt(nil, nil, plaintext), nil
}

// Decrypt authenticates and decrypts one ciphertext frame. Authentication
// failure is fatal for the owning session (spec §7: DecryptFailed).
func (t *Transport) Decrypt(ciphertext []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	plaintext, err := t.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	return plaintext, nil
}
