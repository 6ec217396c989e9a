package fuzzylog

import "testing"

// fakeHost is a minimal reassemblyHost for unit testing the reassembler in
// isolation from the coordinator.
type fakeHost struct {
	chains  map[ChainID]*chainState
	fetched []Location
}

func newFakeHost(horizons map[ChainID]Index) *fakeHost {
	h := &fakeHost{chains: make(map[ChainID]*chainState)}
	for c, hz := range horizons {
		cs := newChainState(c, true)
		cs.horizon = hz
		h.chains[c] = cs
	}
	return h
}

func (h *fakeHost) chain(c ChainID) *chainState {
	cs, ok := h.chains[c]
	if !ok {
		cs = newChainState(c, false)
		h.chains[c] = cs
	}
	return cs
}

func (h *fakeHost) fetchMultiPart(c ChainID, idx Index) {
	if idx == IndexUnknown {
		h.chain(c).multiSearch++
		return
	}
	h.fetched = append(h.fetched, Location{Chain: c, Index: idx})
	h.chain(c).outstandingReads++
}

func TestReassemblerDegenerateSingleChain(t *testing.T) {
	host := newFakeHost(map[ChainID]Index{1: 5})
	ra := newReassembler()

	e := &Entry{ID: NewAppendID(), Layout: LayoutMultiput, Locations: []Location{{Chain: 1, Index: 3}}}
	result, got := ra.handlePiece(host, e, Location{Chain: 1, Index: 3})
	if result != ResultFinished || got != e {
		t.Fatalf("handlePiece() = %v, %v, want Finished, e", result, got)
	}
	if len(ra.pending) != 0 {
		t.Fatalf("a degenerate P(U)==1 append must never create a reassembly record")
	}
}

func TestReassemblerKnownIndicesFinishImmediately(t *testing.T) {
	host := newFakeHost(map[ChainID]Index{1: 5, 2: 5})
	ra := newReassembler()

	e := &Entry{
		ID:     NewAppendID(),
		Layout: LayoutMultiput,
		Locations: []Location{
			{Chain: 1, Index: 3},
			{Chain: 2, Index: 3},
		},
	}
	result, got := ra.handlePiece(host, e, Location{Chain: 1, Index: 3})
	if result != ResultFinished || got != e {
		t.Fatalf("handlePiece() = %v, %v, want Finished with all indices pre-known", result, got)
	}
	if len(host.fetched) != 1 || host.fetched[0] != (Location{Chain: 2, Index: 3}) {
		t.Fatalf("fetched = %v, want a fetch for the other chain's known index", host.fetched)
	}
}

func TestReassemblerBlindSearchThenHit(t *testing.T) {
	host := newFakeHost(map[ChainID]Index{1: 5, 2: 5})
	ra := newReassembler()
	id := NewAppendID()

	first := &Entry{
		ID:     id,
		Layout: LayoutMultiput,
		Locations: []Location{
			{Chain: 1, Index: 3},
			{Chain: 2, Index: IndexUnknown},
		},
	}
	result, _ := ra.handlePiece(host, first, Location{Chain: 1, Index: 3})
	if result != ResultPending {
		t.Fatalf("handlePiece() with a blind-search piece outstanding = %v, want Pending", result)
	}
	if host.chain(2).multiSearch != 1 {
		t.Fatalf("multiSearch on chain 2 = %d, want 1", host.chain(2).multiSearch)
	}

	later := &Entry{ID: id, Layout: LayoutSentinel, Locations: first.Locations}
	result, got := ra.handlePiece(host, later, Location{Chain: 2, Index: 9})
	if result != ResultFinished {
		t.Fatalf("handlePiece() on the blind-search hit = %v, want Finished", result)
	}
	if got.Locations[1] != (Location{Chain: 2, Index: 9}) {
		t.Fatalf("blind-search location not patched: %v", got.Locations)
	}
	if host.chain(2).multiSearch != 0 {
		t.Fatalf("multiSearch on chain 2 = %d, want 0 after the hit", host.chain(2).multiSearch)
	}
}

func TestReassemblerEarlySentinel(t *testing.T) {
	host := newFakeHost(map[ChainID]Index{1: 5, 2: 5})
	ra := newReassembler()
	id := NewAppendID()

	sentinel := &Entry{ID: id, Layout: LayoutSentinel}
	result, got := ra.handlePiece(host, sentinel, Location{Chain: 2, Index: 4})
	if result != ResultEarlySentinel || got != nil {
		t.Fatalf("handlePiece() on a lone sentinel = %v, %v, want EarlySentinel, nil", result, got)
	}
	if idx, ok := host.chain(2).earlySentinels[id]; !ok || idx != 4 {
		t.Fatalf("early sentinel not recorded: %v", host.chain(2).earlySentinels)
	}

	first := &Entry{
		ID:     id,
		Layout: LayoutMultiput,
		Locations: []Location{
			{Chain: 1, Index: 3},
			{Chain: 2, Index: IndexUnknown},
		},
	}
	result, got = ra.handlePiece(host, first, Location{Chain: 1, Index: 3})
	if result != ResultFinished {
		t.Fatalf("handlePiece() after an early sentinel resolves = %v, want Finished", result)
	}
	if got.Locations[1] != (Location{Chain: 2, Index: 4}) {
		t.Fatalf("location not patched from early sentinel: %v", got.Locations)
	}
	if _, ok := host.chain(2).earlySentinels[id]; ok {
		t.Fatalf("early sentinel entry was not consumed")
	}
}

func TestReassemblerBeyondHorizon(t *testing.T) {
	host := newFakeHost(map[ChainID]Index{1: 2, 2: 5})
	ra := newReassembler()

	e := &Entry{
		ID:     NewAppendID(),
		Layout: LayoutMultiput,
		Locations: []Location{
			{Chain: 1, Index: 9},
			{Chain: 2, Index: 9},
		},
	}
	result, got := ra.handlePiece(host, e, Location{Chain: 1, Index: 9})
	if result != ResultBeyondHorizon || got != nil {
		t.Fatalf("handlePiece() past the horizon = %v, %v, want BeyondHorizon, nil", result, got)
	}
}
