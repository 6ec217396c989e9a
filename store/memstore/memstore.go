// Package memstore is an in-memory fake chain-server transport: the
// "idealized transport that echoes appends back as reads once snapshotted"
// the end-to-end scenarios of §8 assume. It exists for tests and the demo
// CLI, never for production use.
package memstore

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/deen17/fuzzylog/fuzzylog"
	"github.com/deen17/fuzzylog/store"
)

// chainLog is one simulated chain server. entries[0] is unused so that
// slice index equals fuzzylog.Index.
type chainLog struct {
	entries []*fuzzylog.Entry
}

// Store is a store.StoreClient backed entirely by in-process maps. Every
// Send is handled on its own goroutine, tracked by an errgroup so tests
// can Close and wait for any in-flight handling to finish cleanly —
// modeling one server-side worker per request the way a real chain server
// would dispatch across connections.
type Store struct {
	mu   sync.Mutex
	logs map[fuzzylog.ChainID]*chainLog

	sink store.Sink
	g    errgroup.Group
}

var _ store.StoreClient = (*Store)(nil)

// New returns a Store that reports completions through sink, normally a
// store.SinkFunc wrapping a coordinator's StoreEvents() channel.
func New(sink store.Sink) *Store {
	return &Store{logs: make(map[fuzzylog.ChainID]*chainLog), sink: sink}
}

// Close waits for every in-flight Send to finish being handled.
func (s *Store) Close() error { return s.g.Wait() }

// Send implements fuzzylog.Transport.
func (s *Store) Send(pkt *fuzzylog.Entry) {
	s.g.Go(func() error {
		s.handle(pkt)
		return nil
	})
}

func (s *Store) handle(pkt *fuzzylog.Entry) {
	switch pkt.Layout {
	case fuzzylog.LayoutRead:
		s.handleRead(pkt)
	case fuzzylog.LayoutData, fuzzylog.LayoutMultiput:
		s.handleAppend(pkt)
	}
}

func (s *Store) log(c fuzzylog.ChainID) *chainLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[c]
	if !ok {
		l = &chainLog{entries: make([]*fuzzylog.Entry, 1)}
		s.logs[c] = l
	}
	return l
}

func (s *Store) handleRead(pkt *fuzzylog.Entry) {
	loc := pkt.Locations[0]
	l := s.log(loc.Chain)

	s.mu.Lock()
	defer s.mu.Unlock()

	if loc.Index == fuzzylog.MaxIndex {
		horizon := fuzzylog.Index(len(l.entries) - 1)
		resp := &fuzzylog.Entry{
			Layout:       fuzzylog.LayoutRead,
			Locations:    []fuzzylog.Location{{Chain: loc.Chain, Index: fuzzylog.MaxIndex}},
			Dependencies: []fuzzylog.Location{{Index: horizon}},
		}
		s.sink.Report(fuzzylog.ReadCompleteEvent{Loc: fuzzylog.Location{Chain: loc.Chain, Index: fuzzylog.MaxIndex}, Entry: resp})
		return
	}

	if int(loc.Index) >= len(l.entries) {
		resp := &fuzzylog.Entry{
			Layout:    fuzzylog.LayoutRead,
			Locations: []fuzzylog.Location{{Chain: loc.Chain, Index: loc.Index}},
		}
		s.sink.Report(fuzzylog.ReadCompleteEvent{Loc: fuzzylog.Location{Chain: loc.Chain, Index: loc.Index}, Entry: resp})
		return
	}

	e := l.entries[loc.Index]
	s.sink.Report(fuzzylog.ReadCompleteEvent{Loc: fuzzylog.Location{Chain: loc.Chain, Index: loc.Index}, Entry: e})
}

// handleAppend assigns every real chain in pkt's location list an index
// atomically, then writes each chain's piece. A plain multi-append (no gap
// in the location list) carries its full payload on every chain, since none
// of its chains is semantically distinguished as the owner. A dependent
// multi-append's gap marks the target/witness split (§6) — only the target
// side (before the gap) carries the payload; witnesses get sentinel pieces
// recording their position, sharing the same final location list as the
// wire contract requires.
func (s *Store) handleAppend(pkt *fuzzylog.Entry) {
	s.mu.Lock()
	finalLocs := make([]fuzzylog.Location, len(pkt.Locations))
	copy(finalLocs, pkt.Locations)
	gap := -1
	for i, loc := range finalLocs {
		if loc.IsGap() {
			gap = i
			continue
		}
		l, ok := s.logs[loc.Chain]
		if !ok {
			l = &chainLog{entries: make([]*fuzzylog.Entry, 1)}
			s.logs[loc.Chain] = l
		}
		idx := fuzzylog.Index(len(l.entries))
		l.entries = append(l.entries, nil) // reserved, filled below
		finalLocs[i].Index = idx
	}
	s.mu.Unlock()

	for i, loc := range finalLocs {
		if loc.IsGap() {
			continue
		}
		layout, payload := pkt.Layout, pkt.Payload
		if gap != -1 && i > gap {
			layout, payload = fuzzylog.LayoutSentinel, nil
		}
		piece := &fuzzylog.Entry{
			Layout:       layout,
			ID:           pkt.ID,
			Locations:    finalLocs,
			Dependencies: pkt.Dependencies,
			Payload:      payload,
		}
		s.mu.Lock()
		s.logs[loc.Chain].entries[loc.Index] = piece
		s.mu.Unlock()
	}

	s.sink.Report(fuzzylog.WriteCompleteEvent{ID: pkt.ID, Locations: finalLocs})
}
