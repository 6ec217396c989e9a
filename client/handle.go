// Package client implements the upward API of §6: a handle applications
// open over a set of chains to snapshot, read, and append to a fuzzy log.
package client

import (
	"github.com/deen17/fuzzylog/config"
	"github.com/deen17/fuzzylog/fuzzylog"
	"github.com/deen17/fuzzylog/log"
)

// Handle is one consumer's view of a coordinator. Non-goal §1 forbids
// fan-out to multiple competing consumers of the same handle; Handle
// itself is not safe for concurrent use by more than one goroutine.
type Handle struct {
	co  *fuzzylog.Coordinator
	log log.Logger

	pendingSnapshots int
}

// Open starts a coordinator for the given chains against transport and
// returns a Handle over it. A zero-valued cfg runs with config.Defaults.
func Open(chains []fuzzylog.ChainID, transport fuzzylog.Transport, cfg config.Config) *Handle {
	co := fuzzylog.NewCoordinator(chains, transport, cfg)
	co.Start()
	return &Handle{co: co, log: log.New("component", "fuzzylog/client")}
}

// Snapshot enqueues a Snapshot(chain) request; non-blocking. chain ==
// fuzzylog.NoChain snapshots every chain the handle was opened on.
func (h *Handle) Snapshot(chain fuzzylog.ChainID) {
	h.pendingSnapshots++
	h.co.ClientRequests() <- fuzzylog.SnapshotRequest{Chain: chain}
}

// Result is one item off the delivery queue: either a delivered entry, or
// (when Payload == nil) an end-of-snapshot marker.
type Result struct {
	Payload   []byte
	Locations []fuzzylog.Location
	buf       *fuzzylog.Buffer
}

// IsMarker reports whether this Result is an end-of-snapshot marker rather
// than a delivered entry.
func (r Result) IsMarker() bool { return r.Payload == nil }

// GetNext blocks until the next delivery, decrementing the handle's own
// outstanding-snapshot count on markers (§6) so callers can loop until
// every snapshot they asked for has completed.
func (h *Handle) GetNext() Result {
	d := <-h.co.Deliveries()
	r := Result{Payload: d.Payload, Locations: d.Locations, buf: d.Buf}
	if r.IsMarker() {
		h.pendingSnapshots--
	}
	return r
}

// PendingSnapshots reports how many Snapshot calls have not yet produced
// their end-of-snapshot marker.
func (h *Handle) PendingSnapshots() int { return h.pendingSnapshots }

// ReturnBuffer hands a Result's backing buffer back to the coordinator's
// cache once the application is done reading its Payload.
func (h *Handle) ReturnBuffer(r Result) {
	if r.buf == nil {
		return
	}
	h.co.ClientRequests() <- fuzzylog.ReturnBufferRequest{Buf: r.buf}
}

// Append sends a single-chain Data packet and blocks for its
// acknowledgement.
func (h *Handle) Append(chain fuzzylog.ChainID, payload []byte, deps []fuzzylog.Location) []fuzzylog.Location {
	pkt := &fuzzylog.Entry{
		Layout:       fuzzylog.LayoutData,
		ID:           fuzzylog.NewAppendID(),
		Locations:    []fuzzylog.Location{{Chain: chain}},
		Dependencies: deps,
		Payload:      payload,
	}
	return h.sendAndAwait(pkt)
}

// Multiappend sends one Multiput packet naming every chain in chains,
// atomically appending the same payload to all of them.
func (h *Handle) Multiappend(chains []fuzzylog.ChainID, payload []byte, deps []fuzzylog.Location) []fuzzylog.Location {
	locs := make([]fuzzylog.Location, len(chains))
	for i, c := range chains {
		locs[i] = fuzzylog.Location{Chain: c}
	}
	pkt := &fuzzylog.Entry{
		Layout:       fuzzylog.LayoutMultiput,
		ID:           fuzzylog.NewAppendID(),
		Locations:    locs,
		Dependencies: deps,
		Payload:      payload,
	}
	return h.sendAndAwait(pkt)
}

// DependentMultiappend sends a Multiput packet whose location list is
// target chains followed by a zero-chain gap and then witness chains
// (SPEC_FULL, supplemental feature #1): the server places the payload on
// every target chain and a sentinel on every witness chain, letting later
// readers of a witness chain discover the dependency without carrying the
// full payload.
func (h *Handle) DependentMultiappend(targets, witnesses []fuzzylog.ChainID, payload []byte, deps []fuzzylog.Location) []fuzzylog.Location {
	locs := make([]fuzzylog.Location, 0, len(targets)+1+len(witnesses))
	for _, c := range targets {
		locs = append(locs, fuzzylog.Location{Chain: c})
	}
	locs = append(locs, fuzzylog.Location{Chain: fuzzylog.NoChain})
	for _, c := range witnesses {
		locs = append(locs, fuzzylog.Location{Chain: c})
	}
	pkt := &fuzzylog.Entry{
		Layout:       fuzzylog.LayoutMultiput,
		ID:           fuzzylog.NewAppendID(),
		Locations:    locs,
		Dependencies: deps,
		Payload:      payload,
	}
	return h.sendAndAwait(pkt)
}

func (h *Handle) sendAndAwait(pkt *fuzzylog.Entry) []fuzzylog.Location {
	h.co.ClientRequests() <- fuzzylog.AppendRequest{Packet: pkt}
	for fw := range h.co.FinishedWrites() {
		if fw.ID == pkt.ID {
			return fw.Locations
		}
		h.log.Debug("discarding finished-write for another append while awaiting ours", "id", fw.ID)
	}
	return nil
}

// Relay forwards one completion from a transport's sink channel into the
// coordinator. Pump is more convenient for a whole channel.
func (h *Handle) Relay(ev fuzzylog.StoreEvent) {
	h.co.StoreEvents() <- ev
}

// Pump relays every event off ch into the coordinator until ch is closed.
// Callers typically run it in its own goroutine, fed by a transport's sink
// channel.
func (h *Handle) Pump(ch <-chan fuzzylog.StoreEvent) {
	for ev := range ch {
		h.Relay(ev)
	}
}

// Shutdown stops the handle's coordinator loop.
func (h *Handle) Shutdown() {
	h.co.ClientRequests() <- fuzzylog.ShutdownRequest{}
}
