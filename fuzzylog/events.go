package fuzzylog

// SnapshotRoundFinishedEvent is published once every pending Snapshot
// request's end-of-stream marker has actually been emitted onto the
// delivery channel (§4.8's global completion check). Markers is the count
// just flushed, mirroring pendingSnapshotMarkers at the moment it reset.
type SnapshotRoundFinishedEvent struct {
	Markers int
}

// ChainFinishedEvent is published whenever a chain transitions into §4.9's
// Finished state: its outstanding reads, snapshots, and blind searches have
// all drained to zero and it has released its reference to the shared
// snapshot token.
type ChainFinishedEvent struct {
	Chain ChainID
}
