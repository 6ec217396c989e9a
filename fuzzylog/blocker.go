package fuzzylog

// entryRef wraps an Entry awaiting delivery with an inline reference count
// (§9's alternative to reference-counted shared ownership: "implementations
// may alternatively carry an explicit remaining_blockers counter on each
// entry"). Each membership in a blockerIndex list holds one reference; an
// entry with zero references is uniquely owned by the coordinator and can
// be delivered in place.
type entryRef struct {
	entry *Entry
	refs  int
}

func newEntryRef(e *Entry) *entryRef {
	return &entryRef{entry: e}
}

func (r *entryRef) addRef() {
	r.refs++
}

// dropRef removes one reference and reports whether the entry is now
// uniquely owned (no blocker-list membership still references it).
func (r *entryRef) dropRef() bool {
	r.refs--
	return r.refs <= 0
}

// blockerIndex maps a pending location to the set of entries that cannot be
// delivered until that location is delivered (§4.5). A given (chain,index)
// appears at most once as a key (invariant 4); delivering drains and
// removes the key in one step.
type blockerIndex struct {
	blocked map[Location][]*entryRef
}

func newBlockerIndex() *blockerIndex {
	return &blockerIndex{blocked: make(map[Location][]*entryRef)}
}

func (b *blockerIndex) add(loc Location, r *entryRef) {
	b.blocked[loc] = append(b.blocked[loc], r)
	r.addRef()
}

// drain removes and returns every entry waiting on loc. Called exactly once
// per location, the instant it is delivered.
func (b *blockerIndex) drain(loc Location) []*entryRef {
	list := b.blocked[loc]
	delete(b.blocked, loc)
	return list
}

func (b *blockerIndex) size() int {
	n := 0
	for _, l := range b.blocked {
		n += len(l)
	}
	return n
}

// chainLookup resolves a chain's live state on demand; it is how
// registerBlockers stays decoupled from the coordinator's chain map so it
// can be exercised in isolation by tests.
type chainLookup func(ChainID) *chainState

// registerBlockers implements §4.5 steps 1-2: before attempting delivery of
// r, record every location it must still wait on.
func registerBlockers(bi *blockerIndex, lookup chainLookup, r *entryRef) {
	e := r.entry

	// Step 1: dependencies not yet delivered.
	for _, dep := range e.Dependencies {
		if dep.IsGap() {
			continue
		}
		cs := lookup(dep.Chain)
		if cs.lastDelivered < dep.Index {
			bi.add(dep, r)
		}
	}

	// Step 2: "next-in-chain" block — this entry isn't next up on one of
	// its own chains yet.
	for _, loc := range e.Locations {
		if loc.IsGap() {
			continue
		}
		cs := lookup(loc.Chain)
		if loc.Index > cs.lastDelivered+1 && cs.lastDelivered < loc.Index {
			bi.add(Location{Chain: loc.Chain, Index: loc.Index - 1}, r)
		}
	}
}
