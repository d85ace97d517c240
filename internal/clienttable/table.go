// Package clienttable implements the server-side client table (spec
// component G): it assigns MACs to admitted clients and looks up the session
// whose outbox an inbound LAN frame is routed to (the routing itself is done
// by the LAN demultiplexer).
package clienttable

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"blackwire/internal/macpool"
)

// ErrNotFound is returned by Get for a MAC with no registered client.
var ErrNotFound = errors.New("clienttable: not found")

// outboxCapacity bounds the per-client queue of plaintext Ethernet frames
// awaiting encryption and transmission (spec glossary: Outbox). A bounded
// channel means a stalled client's downstream task applies back-pressure
// to the LAN demultiplexer rather than growing memory without limit; the
// demultiplexer treats a full outbox as a dropped copy (spec §4.I).
const outboxCapacity = 256

// ClientInfo is the record shared by reference between the accept path,
// the LAN demultiplexer, and the session's own I/O tasks (spec §3). Done
// is closed exactly once, by Remove; it never carries a value, so closing
// it races safely with concurrent readers of Outbox (unlike Outbox itself,
// which the demultiplexer still sends into after a client is torn down).
type ClientInfo struct {
	MAC    macpool.MAC
	Addr   netip.AddrPort
	Outbox chan []byte
	Done   chan struct{}
}

// Table maps MAC -> ClientInfo under a single exclusive lock (spec §4.G).
// Every operation holds the lock only for map access (or, for Add, for the
// MAC-generation retry loop plus the insert, which is itself CPU-local and
// performs no I/O).
type Table struct {
	mu      sync.Mutex
	clients map[macpool.MAC]*ClientInfo
}

// New creates an empty client table.
func New() *Table {
	return &Table{clients: make(map[macpool.MAC]*ClientInfo)}
}

// Add allocates a fresh MAC via the MAC allocator, registers a new
// ClientInfo under it, and returns the record. The allocation and the
// insert happen under one lock acquisition so that no other Add or Remove
// can observe or claim the same MAC in between (spec §4.G, §8 property 4).
func (t *Table) Add(addr netip.AddrPort) (*ClientInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var mac macpool.MAC
	found := false
	for attempt := 0; attempt < macpool.MaxGenerationAttempts; attempt++ {
		candidate, err := macpool.NewCandidate()
		if err != nil {
			return nil, fmt.Errorf("clienttable: %w", err)
		}
		if _, taken := t.clients[candidate]; !taken {
			mac = candidate
			found = true
			break
		}
	}
	if !found {
		return nil, errors.New("clienttable: exhausted MAC allocation attempts")
	}

	info := &ClientInfo{
		MAC:    mac,
		Addr:   addr,
		Outbox: make(chan []byte, outboxCapacity),
		Done:   make(chan struct{}),
	}
	t.clients[mac] = info
	return info, nil
}

// Remove deletes the entry for mac and closes its Done channel, signalling
// the LAN demultiplexer to stop enqueueing into its Outbox and the
// session's downstream task to stop waiting on it (spec §5 cancellation
// policy). Outbox itself is never closed here: the demultiplexer may still
// hold a reference to info from an in-flight Snapshot and would panic
// sending on a closed channel. Idempotent.
func (t *Table) Remove(mac macpool.MAC) {
	t.mu.Lock()
	info, ok := t.clients[mac]
	if ok {
		delete(t.clients, mac)
	}
	t.mu.Unlock()
	if ok {
		close(info.Done)
	}
}

// Get looks up a client by MAC.
func (t *Table) Get(mac macpool.MAC) (*ClientInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.clients[mac]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

// Snapshot enumerates all currently registered clients, for broadcast
// fan-out and diagnostics (spec §4.G, §4.I).
func (t *Table) Snapshot() []*ClientInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*ClientInfo, 0, len(t.clients))
	for _, info := range t.clients {
		out = append(out, info)
	}
	return out
}

// Len reports the number of registered clients.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}
