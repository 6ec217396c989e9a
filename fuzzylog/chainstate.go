package fuzzylog

import "fmt"

// Phase names the coarse per-chain state machine of §4.9. It exists mostly
// for observability and tests; the coordinator itself only ever consults
// the underlying counters.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseSnapshotting
	PhaseFetching
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSnapshotting:
		return "snapshotting"
	case PhaseFetching:
		return "fetching"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// chainState is the per-chain bookkeeping of §3. It is touched only by the
// coordinator goroutine, so it carries no lock of its own (§5).
type chainState struct {
	id          ChainID
	interesting bool // declared up front, vs. discovered via a multi-append

	horizon       Index
	nextFetch     Index
	lastDelivered Index

	outstandingReads     int
	outstandingSnapshots int
	multiSearch          int

	blockedOnSnapshot *entryRef

	earlySentinels map[AppendID]Index

	token *snapshotToken // held while any of the three counters above is nonzero
}

func newChainState(id ChainID, interesting bool) *chainState {
	return &chainState{
		id:             id,
		interesting:    interesting,
		earlySentinels: make(map[AppendID]Index),
	}
}

// isFinished reports whether this chain currently has no outstanding I/O of
// any kind (§4.8's definition of "finished").
func (s *chainState) isFinished() bool {
	return s.outstandingReads == 0 && s.outstandingSnapshots == 0 && s.multiSearch == 0
}

// phase computes the §4.9 state machine position from the live counters.
func (s *chainState) phase() Phase {
	switch {
	case s.outstandingSnapshots > 0:
		return PhaseSnapshotting
	case s.outstandingReads > 0 || s.multiSearch > 0:
		return PhaseFetching
	case s.token != nil:
		return PhaseFinished
	default:
		return PhaseIdle
	}
}

// acquireToken gives this chain a reference to the shared snapshot-round
// token, if it doesn't already hold one. Idempotent.
func (s *chainState) acquireToken(tok *snapshotToken) {
	if s.token != nil {
		return
	}
	s.token = tok
	tok.acquire()
}

// releaseTokenIfFinished drops this chain's reference to the shared token
// once it has no outstanding I/O left, completing the Any→Finished
// transition of §4.9. It reports whether that transition just happened, so
// the coordinator can publish a ChainFinishedEvent exactly once per
// transition rather than on every call.
func (s *chainState) releaseTokenIfFinished() bool {
	if s.token != nil && s.isFinished() {
		s.token.release()
		s.token = nil
		return true
	}
	return false
}

// validate checks the invariants of §3/§8 that must hold between messages.
// It never runs on the hot path; it exists for tests to assert against.
func (s *chainState) validate() error {
	if s.lastDelivered > s.horizon {
		return fmt.Errorf("chain %d: last_delivered %d > horizon %d", s.id, s.lastDelivered, s.horizon)
	}
	if s.nextFetch != 0 && s.nextFetch <= s.lastDelivered {
		return fmt.Errorf("chain %d: next_fetch %d <= last_delivered %d", s.id, s.nextFetch, s.lastDelivered)
	}
	if s.blockedOnSnapshot != nil {
		loc, ok := s.blockedOnSnapshot.entry.LocationOn(s.id)
		if !ok {
			return fmt.Errorf("chain %d: blocked_on_snapshot entry has no location on this chain", s.id)
		}
		if loc.Index != s.horizon+1 {
			return fmt.Errorf("chain %d: blocked_on_snapshot index %d != horizon+1 %d", s.id, loc.Index, s.horizon+1)
		}
	}
	return nil
}
