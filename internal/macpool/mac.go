// Package macpool generates locally-administered unicast MAC addresses for
// newly admitted clients (spec component F).
package macpool

import (
	"crypto/rand"
	"fmt"
)

// MAC is a fixed 6-byte Ethernet identifier (spec §3).
type MAC [6]byte

// Broadcast is the all-ones destination used for LAN fan-out.
var Broadcast = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// String renders the MAC in the conventional colon-hex form.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsLocallyAdministeredUnicast reports whether byte 0 has its
// locally-administered bit (bit 1) set and its unicast bit (bit 0) clear,
// i.e. byte0 & 0x03 == 0x02 (spec §3, §8 property 3).
func (m MAC) IsLocallyAdministeredUnicast() bool {
	return m[0]&0x03 == 0x02
}

// MaxGenerationAttempts bounds a caller's collision-retry loop against a
// pathological "always taken" RNG; with a 46-bit effective address space,
// exhausting this many draws without success is effectively impossible for
// any real fleet size (spec §4.F). clienttable.Table.Add is the only
// caller: it holds its own lock across the retry loop, so the collision
// check happens against its own map rather than through a callback here.
const MaxGenerationAttempts = 1 << 16

// NewCandidate draws one MAC from a cryptographically adequate RNG and
// forces the locally-administered+unicast bits. It performs no collision
// check; callers retry against their own storage (clienttable.Table.Add).
func NewCandidate() (MAC, error) {
	var m MAC
	if _, err := rand.Read(m[:]); err != nil {
		return MAC{}, fmt.Errorf("macpool: read random bytes: %w", err)
	}
	m[0] = (m[0] &^ 0x01) | 0x02 // clear unicast bit, set locally-administered bit
	return m, nil
}
