// Package landemux implements the server-side TAP demultiplexer (spec
// component I): a single task reads Ethernet frames off the server's TAP
// device and routes each to the matching client outbox, plus a companion
// task that drains the shared write queue back onto the TAP.
package landemux

import (
	"errors"
	"fmt"

	"blackwire/internal/clienttable"
	"blackwire/internal/logging"
	"blackwire/internal/macpool"
)

// ErrTapIO is returned by RunReader when a TAP device read fails (spec §7);
// RunWriter logs write failures and skips the frame instead.
var ErrTapIO = errors.New("landemux: TAP device I/O error")

// minEthernetFrame is the smallest frame the demultiplexer will route;
// shorter frames can't carry a destination and source MAC (spec §4.H,
// "frames smaller than 14 bytes at the server-side TAP read are dropped").
const minEthernetFrame = 14

// readBufferSize bounds one TAP read; large enough for any frame the
// tunnel will ever carry (MTU 1,400 plus the 14-byte Ethernet header and
// headroom for jumbo-ish local traffic).
const readBufferSize = 65535

// writeQueueCapacity bounds the TAP write queue that every session's
// upstream task shares (spec §4.I, "a single mpsc-style queue").
const writeQueueCapacity = 1024

// Tap is the server-side TAP device collaborator: a raw Ethernet frame
// source/sink plus its own hardware address (spec §1 TapDevice contract).
type Tap interface {
	Read(buf []byte) (int, error)
	Write(frame []byte) (int, error)
	GetMAC() (macpool.MAC, error)
}

// Stats accumulates demultiplexer counters for diagnostics and the status
// view (spec §12, "broadcast fan-out failure accounting").
type Stats struct {
	BroadcastEnqueued int64
	BroadcastDropped  int64
	UnicastEnqueued   int64
	UnicastUnknown    int64
	SelfSourceDropped int64
	RuntsDropped      int64
}

// Hub owns the server's TAP reader loop and TAP writer loop.
type Hub struct {
	tap    Tap
	table  *clienttable.Table
	log    logging.Logger
	toTap  chan []byte
	stats  Stats
}

// New creates a Hub. WriteQueue returns the channel every session's
// upstream task enqueues decrypted Ethernet frames into.
func New(tap Tap, table *clienttable.Table, log logging.Logger) *Hub {
	return &Hub{
		tap:   tap,
		table: table,
		log:   log,
		toTap: make(chan []byte, writeQueueCapacity),
	}
}

// WriteQueue returns the shared channel sessions enqueue upstream Ethernet
// frames into for delivery onto the physical LAN.
func (h *Hub) WriteQueue() chan<- []byte {
	return h.toTap
}

// Stats returns a snapshot of the demultiplexer's running counters.
func (h *Hub) Stats() Stats {
	return h.stats
}

// RunReader reads frames from the TAP device until it errors, routing each
// to the matching client outbox (spec §4.I steps 1-4). It returns only on
// a fatal TAP read error.
func (h *Hub) RunReader() error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := h.tap.Read(buf)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTapIO, err)
		}
		h.route(buf[:n])
	}
}

func (h *Hub) route(frame []byte) {
	if len(frame) < minEthernetFrame {
		h.stats.RuntsDropped++
		return
	}

	var dst, src macpool.MAC
	copy(dst[:], frame[0:6])
	copy(src[:], frame[6:12])

	tapMAC, err := h.tap.GetMAC()
	if err != nil {
		h.log.Printf("landemux: reading TAP MAC: %v", err)
		return
	}
	if src == tapMAC {
		h.stats.SelfSourceDropped++
		return
	}

	if dst == macpool.Broadcast {
		h.broadcast(frame)
		return
	}

	h.unicast(dst, frame)
}

// send enqueues frame into info.Outbox, dropping it if the buffer is full
// or the client has since been removed. info.Done is checked before the
// send, and again alongside it, so a client torn down mid-broadcast is
// treated as a drop rather than a send on a channel nothing will ever drain.
func send(info *clienttable.ClientInfo, frame []byte) bool {
	select {
	case <-info.Done:
		return false
	default:
	}
	select {
	case info.Outbox <- frame:
		return true
	case <-info.Done:
		return false
	default:
		return false
	}
}

func (h *Hub) broadcast(frame []byte) {
	for _, info := range h.table.Snapshot() {
		cp := append([]byte(nil), frame...)
		if send(info, cp) {
			h.stats.BroadcastEnqueued++
		} else {
			h.stats.BroadcastDropped++
		}
	}
}

func (h *Hub) unicast(dst macpool.MAC, frame []byte) {
	info, err := h.table.Get(dst)
	if err != nil {
		h.stats.UnicastUnknown++
		return
	}
	if send(info, frame) {
		h.stats.UnicastEnqueued++
	} else {
		h.log.Printf("landemux: dropping unicast frame for %s, outbox full or client gone", dst)
	}
}

// RunWriter drains the shared TAP write queue, writing each Ethernet frame
// to the TAP device, until the queue is closed (spec §4.I, "a separate
// task drains the TAP write channel").
func (h *Hub) RunWriter() error {
	for frame := range h.toTap {
		if _, err := h.tap.Write(frame); err != nil {
			h.log.Printf("landemux: TAP write failed, skipping frame: %v", err)
			continue
		}
	}
	return nil
}
