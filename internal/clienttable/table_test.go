package clienttable

import (
	"net/netip"
	"sync"
	"testing"
)

func addr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("10.0.0.1"), port)
}

func TestAdd_AssignsLocallyAdministeredUnicastMAC(t *testing.T) {
	table := New()
	info, err := table.Add(addr(1))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !info.MAC.IsLocallyAdministeredUnicast() {
		t.Fatalf("assigned MAC %s is not locally-administered unicast", info.MAC)
	}
}

func TestAdd_NeverReassignsALiveMAC(t *testing.T) {
	table := New()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		info, err := table.Add(addr(uint16(i + 1)))
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if seen[info.MAC.String()] {
			t.Fatalf("MAC %s assigned twice while still live", info.MAC)
		}
		seen[info.MAC.String()] = true
	}
}

func TestRemove_IsIdempotent(t *testing.T) {
	table := New()
	info, err := table.Add(addr(1))
	if err != nil {
		t.Fatal(err)
	}
	table.Remove(info.MAC)
	table.Remove(info.MAC) // must not panic on double-close or double-delete

	if _, err := table.Get(info.MAC); err != ErrNotFound {
		t.Fatalf("Get after Remove = %v, want ErrNotFound", err)
	}
}

func TestRemove_ClosesDoneChannel(t *testing.T) {
	table := New()
	info, err := table.Add(addr(1))
	if err != nil {
		t.Fatal(err)
	}
	table.Remove(info.MAC)

	select {
	case <-info.Done:
	default:
		t.Fatal("done channel should be closed after Remove")
	}

	// Outbox itself must stay open: a concurrent landemux send holding
	// this *ClientInfo must never panic after Remove runs.
	select {
	case info.Outbox <- []byte("late"):
	default:
		t.Fatal("outbox should still accept sends after Remove")
	}
}

func TestGet_ReturnsRegisteredClient(t *testing.T) {
	table := New()
	info, err := table.Add(addr(1))
	if err != nil {
		t.Fatal(err)
	}
	got, err := table.Get(info.MAC)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != info {
		t.Fatal("Get returned a different record than Add produced")
	}
}

func TestSnapshot_EnumeratesAllClients(t *testing.T) {
	table := New()
	const n = 10
	for i := 0; i < n; i++ {
		if _, err := table.Add(addr(uint16(i + 1))); err != nil {
			t.Fatal(err)
		}
	}
	snap := table.Snapshot()
	if len(snap) != n {
		t.Fatalf("Snapshot returned %d clients, want %d", len(snap), n)
	}
}

func TestAdd_ConcurrentCallsNeverCollide(t *testing.T) {
	table := New()
	const n = 64
	var wg sync.WaitGroup
	results := make(chan *ClientInfo, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := table.Add(addr(uint16(i + 1)))
			if err != nil {
				t.Error(err)
				return
			}
			results <- info
		}(i)
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for info := range results {
		if seen[info.MAC.String()] {
			t.Fatalf("concurrent Add produced a duplicate MAC %s", info.MAC)
		}
		seen[info.MAC.String()] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d unique MACs, want %d", len(seen), n)
	}
}
