package fuzzylog

import "sync/atomic"

// snapshotToken is the shared reference collapsing every chain's "still
// doing I/O" bit into a single O(1) check (§4.8, §9). The coordinator
// always holds one baseline reference; every chain with outstanding reads,
// outstanding snapshot probes, or an active blind search holds one more.
// When the count drops back to 1, no chain in the round has any
// outstanding activity left.
type snapshotToken struct {
	refs int32
}

func newSnapshotToken() *snapshotToken {
	return &snapshotToken{refs: 1}
}

func (t *snapshotToken) acquire() {
	atomic.AddInt32(&t.refs, 1)
}

func (t *snapshotToken) release() {
	atomic.AddInt32(&t.refs, -1)
}

// quiescent reports whether only the coordinator's baseline reference
// remains, i.e. every chain that touched this round has finished.
func (t *snapshotToken) quiescent() bool {
	return atomic.LoadInt32(&t.refs) == 1
}
