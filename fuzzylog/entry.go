package fuzzylog

// Entry is the decoded form of one packet arriving from a chain server. The
// wire encoding itself is an external collaborator's concern (§1); this is
// the shape the coordinator operates on once decoding has happened.
type Entry struct {
	Layout       Layout
	ID           AppendID
	Locations    []Location
	Dependencies []Location
	Payload      []byte

	// buf is the backing buffer this entry's Payload was decoded into, if
	// any. The application returns it via ReturnBuffer once it has
	// finished with the delivered payload.
	buf *Buffer
}

// Horizon extracts the server's reported horizon from a horizon-probe
// response. Valid only when Layout == LayoutRead and the location's Index
// is MaxIndex; per the wire contract (§6) the horizon is carried as the
// response's first dependency rather than a dedicated field, and that
// encoding is preserved here deliberately (SPEC_FULL, supplemental feature
// #2) rather than papered over with a cleaner accessor.
func (e *Entry) Horizon() Index {
	if len(e.Dependencies) == 0 {
		return 0
	}
	return e.Dependencies[0].Index
}

// LocationOn returns the location of this entry on the given chain, and
// whether one was found. A single entry can name at most one location per
// chain.
func (e *Entry) LocationOn(c ChainID) (Location, bool) {
	for _, l := range e.Locations {
		if l.Chain == c {
			return l, true
		}
	}
	return Location{}, false
}

// IsMultiChain reports whether the entry's location list spans more than
// one real (non-sentinel) chain, i.e. P(U) > 1 in the spec's notation.
func (e *Entry) IsMultiChain() bool {
	return realChainCount(e.Locations) > 1
}

// IsWitnessGap reports whether a given index into Locations is the
// zero-chain padding used to separate target chains from witness chains in
// a dependent multi-append (SPEC_FULL, supplemental feature #1).
func (e *Entry) IsWitnessGap(i int) bool {
	return i >= 0 && i < len(e.Locations) && e.Locations[i].IsGap()
}

func realChainCount(locs []Location) int {
	n := 0
	for _, l := range locs {
		if !l.IsGap() {
			n++
		}
	}
	return n
}

// newReadRequest builds the Entry the coordinator sends downward to ask for
// a single index on a chain (an ordinary fetch, or a horizon probe when
// idx == MaxIndex). Per §6, a read packet is self-delimiting, has layout
// Read, one location, and no payload or dependencies.
func newReadRequest(c ChainID, idx Index) *Entry {
	return &Entry{
		Layout:    LayoutRead,
		Locations: []Location{{Chain: c, Index: idx}},
	}
}
