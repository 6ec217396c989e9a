package memstore

import (
	"testing"

	"github.com/deen17/fuzzylog/fuzzylog"
	"github.com/deen17/fuzzylog/store"
)

func newTestStore(t *testing.T) (*Store, chan fuzzylog.StoreEvent) {
	t.Helper()
	sink := make(chan fuzzylog.StoreEvent, 64)
	s := New(store.SinkFunc(sink))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("Close() = %v", err)
		}
	})
	return s, sink
}

func mustReadCompleteEvent(t *testing.T, sink chan fuzzylog.StoreEvent) fuzzylog.ReadCompleteEvent {
	t.Helper()
	ev := <-sink
	rc, ok := ev.(fuzzylog.ReadCompleteEvent)
	if !ok {
		t.Fatalf("event = %#v, want ReadCompleteEvent", ev)
	}
	return rc
}

func mustWriteCompleteEvent(t *testing.T, sink chan fuzzylog.StoreEvent) fuzzylog.WriteCompleteEvent {
	t.Helper()
	ev := <-sink
	wc, ok := ev.(fuzzylog.WriteCompleteEvent)
	if !ok {
		t.Fatalf("event = %#v, want WriteCompleteEvent", ev)
	}
	return wc
}

func TestStoreAppendThenReadRoundTrips(t *testing.T) {
	s, sink := newTestStore(t)
	const chain = fuzzylog.ChainID(1)

	pkt := &fuzzylog.Entry{
		Layout:    fuzzylog.LayoutData,
		ID:        fuzzylog.NewAppendID(),
		Locations: []fuzzylog.Location{{Chain: chain}},
		Payload:   []byte("hello"),
	}
	s.Send(pkt)
	wc := mustWriteCompleteEvent(t, sink)
	if wc.ID != pkt.ID {
		t.Fatalf("WriteCompleteEvent.ID = %v, want %v", wc.ID, pkt.ID)
	}
	if len(wc.Locations) != 1 || wc.Locations[0].Index != 1 {
		t.Fatalf("assigned locations = %v, want [(1,1)]", wc.Locations)
	}

	s.Send(&fuzzylog.Entry{Layout: fuzzylog.LayoutRead, Locations: []fuzzylog.Location{{Chain: chain, Index: 1}}})
	rc := mustReadCompleteEvent(t, sink)
	if string(rc.Entry.Payload) != "hello" {
		t.Fatalf("round-tripped payload = %q, want %q", rc.Entry.Payload, "hello")
	}
}

func TestStoreReadAtIndexReturnsStoredEntry(t *testing.T) {
	s, sink := newTestStore(t)
	const chain = fuzzylog.ChainID(2)

	pkt := &fuzzylog.Entry{
		Layout:    fuzzylog.LayoutData,
		ID:        fuzzylog.NewAppendID(),
		Locations: []fuzzylog.Location{{Chain: chain}},
		Payload:   []byte("payload"),
	}
	s.Send(pkt)
	mustWriteCompleteEvent(t, sink)

	s.Send(&fuzzylog.Entry{Layout: fuzzylog.LayoutRead, Locations: []fuzzylog.Location{{Chain: chain, Index: 1}}})
	rc := mustReadCompleteEvent(t, sink)
	if string(rc.Entry.Payload) != "payload" {
		t.Fatalf("read payload = %q, want %q", rc.Entry.Payload, "payload")
	}
	if rc.Entry.ID != pkt.ID {
		t.Fatalf("read entry id = %v, want %v", rc.Entry.ID, pkt.ID)
	}
}

func TestStoreReadBeyondLastEntryIsOverread(t *testing.T) {
	s, sink := newTestStore(t)
	const chain = fuzzylog.ChainID(3)

	s.Send(&fuzzylog.Entry{Layout: fuzzylog.LayoutRead, Locations: []fuzzylog.Location{{Chain: chain, Index: 1}}})
	rc := mustReadCompleteEvent(t, sink)
	if rc.Entry.Layout != fuzzylog.LayoutRead || len(rc.Entry.Locations) == 0 {
		t.Fatalf("over-read response malformed: %+v", rc.Entry)
	}
	if rc.Entry.Payload != nil {
		t.Fatalf("over-read response carried a payload: %q", rc.Entry.Payload)
	}
}

func TestStoreHorizonProbeReportsCurrentLength(t *testing.T) {
	s, sink := newTestStore(t)
	const chain = fuzzylog.ChainID(4)

	for i := 0; i < 3; i++ {
		s.Send(&fuzzylog.Entry{Layout: fuzzylog.LayoutData, ID: fuzzylog.NewAppendID(), Locations: []fuzzylog.Location{{Chain: chain}}, Payload: []byte("x")})
		mustWriteCompleteEvent(t, sink)
	}

	s.Send(&fuzzylog.Entry{Layout: fuzzylog.LayoutRead, Locations: []fuzzylog.Location{{Chain: chain, Index: fuzzylog.MaxIndex}}})
	rc := mustReadCompleteEvent(t, sink)
	if rc.Entry.Horizon() != 3 {
		t.Fatalf("horizon = %d, want 3", rc.Entry.Horizon())
	}
}

// TestStorePlainMultiappendCarriesPayloadOnEveryChain covers a gapless
// multi-append, where no chain is distinguished as the sole carrier: every
// location gets the full Multiput payload, so a reader of any one of them
// can reassemble without waiting on the others.
func TestStorePlainMultiappendCarriesPayloadOnEveryChain(t *testing.T) {
	s, sink := newTestStore(t)
	chains := []fuzzylog.ChainID{5, 6, 7}
	locs := make([]fuzzylog.Location, len(chains))
	for i, c := range chains {
		locs[i] = fuzzylog.Location{Chain: c}
	}

	pkt := &fuzzylog.Entry{Layout: fuzzylog.LayoutMultiput, ID: fuzzylog.NewAppendID(), Locations: locs, Payload: []byte("shared")}
	s.Send(pkt)
	wc := mustWriteCompleteEvent(t, sink)
	if len(wc.Locations) != 3 {
		t.Fatalf("assigned %d locations, want 3", len(wc.Locations))
	}

	for i, c := range chains {
		s.Send(&fuzzylog.Entry{Layout: fuzzylog.LayoutRead, Locations: []fuzzylog.Location{{Chain: c, Index: wc.Locations[i].Index}}})
		rc := mustReadCompleteEvent(t, sink)
		if rc.Entry.Layout != fuzzylog.LayoutMultiput || string(rc.Entry.Payload) != "shared" {
			t.Fatalf("chain %d piece = %+v, want the Multiput payload", c, rc.Entry)
		}
		if len(rc.Entry.Locations) != 3 {
			t.Fatalf("chain %d piece locations = %v, want all 3 final locations", c, rc.Entry.Locations)
		}
	}
}

// TestStoreDependentMultiappendSentinelsWitnesses covers a multi-append
// whose location list has a NoChain gap: the target side keeps the payload,
// the witness side (after the gap) gets sentinel pieces.
func TestStoreDependentMultiappendSentinelsWitnesses(t *testing.T) {
	s, sink := newTestStore(t)
	targets := []fuzzylog.ChainID{8}
	witnesses := []fuzzylog.ChainID{9, 10}

	locs := []fuzzylog.Location{{Chain: targets[0]}, {Chain: fuzzylog.NoChain}, {Chain: witnesses[0]}, {Chain: witnesses[1]}}
	pkt := &fuzzylog.Entry{Layout: fuzzylog.LayoutMultiput, ID: fuzzylog.NewAppendID(), Locations: locs, Payload: []byte("dependent")}
	s.Send(pkt)
	wc := mustWriteCompleteEvent(t, sink)
	if len(wc.Locations) != 4 {
		t.Fatalf("assigned %d locations, want 4", len(wc.Locations))
	}

	s.Send(&fuzzylog.Entry{Layout: fuzzylog.LayoutRead, Locations: []fuzzylog.Location{{Chain: targets[0], Index: wc.Locations[0].Index}}})
	rc := mustReadCompleteEvent(t, sink)
	if rc.Entry.Layout != fuzzylog.LayoutMultiput || string(rc.Entry.Payload) != "dependent" {
		t.Fatalf("target chain piece = %+v, want the Multiput payload", rc.Entry)
	}

	for i, c := range witnesses {
		s.Send(&fuzzylog.Entry{Layout: fuzzylog.LayoutRead, Locations: []fuzzylog.Location{{Chain: c, Index: wc.Locations[2+i].Index}}})
		rc := mustReadCompleteEvent(t, sink)
		if rc.Entry.Layout != fuzzylog.LayoutSentinel || rc.Entry.Payload != nil {
			t.Fatalf("witness chain %d piece = %+v, want a nil-payload sentinel", c, rc.Entry)
		}
	}
}
