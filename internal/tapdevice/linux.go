// Package tapdevice implements the concrete Linux TapDevice collaborator
// (spec §1): open/read/write via github.com/songgao/water, and set_mac/
// set_mtu/up via `ip link` shell-outs, the way the teacher's PAL packages
// wrap platform tools behind a Commander.
package tapdevice

import (
	"fmt"
	"net"
	"sync"

	"github.com/songgao/water"

	"blackwire/internal/macpool"
)

// LinuxTap is the production TapDevice: a songgao/water TAP interface plus
// the `ip link` commands needed to configure it post-handshake.
type LinuxTap struct {
	iface     *water.Interface
	name      string
	commander Commander

	mu  sync.Mutex
	mac macpool.MAC
}

// NewLinuxTap creates (or attaches to, if name already exists) a TAP
// device. If name is empty the kernel assigns one.
func NewLinuxTap(name string, commander Commander) (*LinuxTap, error) {
	cfg := water.Config{DeviceType: water.TAP}
	if name != "" {
		cfg.Name = name
	}
	iface, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("tapdevice: create TAP device: %w", err)
	}

	tap := &LinuxTap{iface: iface, name: iface.Name(), commander: commander}
	if hw, err := tap.currentHardwareAddr(); err == nil {
		copy(tap.mac[:], hw)
	}
	return tap, nil
}

// Name returns the kernel-assigned interface name.
func (t *LinuxTap) Name() string { return t.name }

// Read reads one raw Ethernet frame from the device.
func (t *LinuxTap) Read(buf []byte) (int, error) {
	return t.iface.Read(buf)
}

// Write writes one raw Ethernet frame to the device.
func (t *LinuxTap) Write(frame []byte) (int, error) {
	return t.iface.Write(frame)
}

// SetMAC brings the interface down, assigns mac, and brings it back up;
// `ip link set address` requires the interface to be administratively
// down first.
func (t *LinuxTap) SetMAC(mac macpool.MAC) error {
	hw := net.HardwareAddr(mac[:])
	if err := t.commander.Run("ip", "link", "set", "dev", t.name, "down"); err != nil {
		return fmt.Errorf("tapdevice: bring down %s: %w", t.name, err)
	}
	if err := t.commander.Run("ip", "link", "set", "dev", t.name, "address", hw.String()); err != nil {
		return fmt.Errorf("tapdevice: set address on %s: %w", t.name, err)
	}
	if err := t.commander.Run("ip", "link", "set", "dev", t.name, "up"); err != nil {
		return fmt.Errorf("tapdevice: bring up %s: %w", t.name, err)
	}
	t.mu.Lock()
	t.mac = mac
	t.mu.Unlock()
	return nil
}

// SetMTU sets the interface MTU (spec §6: 1,400 on the client).
func (t *LinuxTap) SetMTU(mtu int) error {
	if err := t.commander.Run("ip", "link", "set", "dev", t.name, "mtu", fmt.Sprintf("%d", mtu)); err != nil {
		return fmt.Errorf("tapdevice: set mtu on %s: %w", t.name, err)
	}
	return nil
}

// Up brings the interface administratively up.
func (t *LinuxTap) Up() error {
	if err := t.commander.Run("ip", "link", "set", "dev", t.name, "up"); err != nil {
		return fmt.Errorf("tapdevice: bring up %s: %w", t.name, err)
	}
	return nil
}

// GetMAC returns the device's current hardware address, used by the LAN
// demultiplexer for self-source suppression (spec §4.I step 2).
func (t *LinuxTap) GetMAC() (macpool.MAC, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mac, nil
}

// Close deletes the interface and releases the underlying file descriptor.
func (t *LinuxTap) Close() error {
	_ = t.commander.Run("ip", "link", "delete", t.name)
	return t.iface.Close()
}

func (t *LinuxTap) currentHardwareAddr() (net.HardwareAddr, error) {
	iface, err := net.InterfaceByName(t.name)
	if err != nil {
		return nil, err
	}
	return iface.HardwareAddr, nil
}
