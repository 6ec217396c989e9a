package fuzzylog

import (
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/deen17/fuzzylog/config"
	"github.com/deen17/fuzzylog/event"
	"github.com/deen17/fuzzylog/log"
)

// Transport is the downward boundary the coordinator drives (§6). It
// accepts a prepared packet — a read request the coordinator built, or an
// append packet the client prepared — for delivery to the chain servers.
// Completions arrive back asynchronously on the coordinator's StoreEvents
// channel; Transport itself never blocks on a reply.
type Transport interface {
	Send(pkt *Entry)
}

// ClientRequest is the family of messages the upward API enqueues (§4.1).
type ClientRequest interface{ isClientRequest() }

// SnapshotRequest asks the coordinator to freeze the horizon of one chain,
// or every interesting chain when Chain == NoChain.
type SnapshotRequest struct{ Chain ChainID }

// AppendRequest forwards a fully-prepared Data or Multiput packet,
// unchanged, to the transport.
type AppendRequest struct{ Packet *Entry }

// ReturnBufferRequest hands a previously-delivered buffer back to the
// cache.
type ReturnBufferRequest struct{ Buf *Buffer }

// ShutdownRequest stops the coordinator's loop.
type ShutdownRequest struct{}

func (SnapshotRequest) isClientRequest()     {}
func (AppendRequest) isClientRequest()       {}
func (ReturnBufferRequest) isClientRequest() {}
func (ShutdownRequest) isClientRequest()     {}

// StoreEvent is the family of messages the transport reports back (§4.1).
type StoreEvent interface{ isStoreEvent() }

// ReadCompleteEvent reports that a previously-issued read for Loc finished,
// decoded as Entry.
type ReadCompleteEvent struct {
	Loc   Location
	Entry *Entry
}

// WriteCompleteEvent reports the server-assigned locations for a
// previously-forwarded append.
type WriteCompleteEvent struct {
	ID        AppendID
	Locations []Location
}

func (ReadCompleteEvent) isStoreEvent()  {}
func (WriteCompleteEvent) isStoreEvent() {}

// Delivery is one item handed to the application (§6). A nil Payload is an
// end-of-snapshot marker.
type Delivery struct {
	Payload   []byte
	Locations []Location
	Buf       *Buffer
}

// FinishedWrite is the append acknowledgement handed to the application.
type FinishedWrite struct {
	ID        AppendID
	Locations []Location
}

// Coordinator is the single-threaded event loop of §4.1: it owns every
// chain's state, the blocker index, the multi-append reassembler, and the
// buffer cache, and is the only goroutine that ever touches them.
type Coordinator struct {
	chains            map[ChainID]*chainState
	interestingChains []ChainID

	blocker *blockerIndex
	reasm   *reassembler
	bufs    *BufferCache

	transport Transport

	clientRequests chan ClientRequest
	storeEvents    chan StoreEvent

	deliveries     chan Delivery
	finishedWrites chan FinishedWrite

	token                  *snapshotToken
	pendingSnapshotMarkers int

	maxPrefetch Index
	readTimeout time.Duration
	issuedAt    map[Location]time.Time

	snapshotFeed event.Feed
	chainFeed    event.Feed
	scope        event.SubscriptionScope

	log log.Logger
}

// NewCoordinator builds a coordinator for a handle opened on the given
// chains, tuned by cfg. A zero-valued config.Config runs with the package
// defaults (config.Defaults).
func NewCoordinator(interesting []ChainID, transport Transport, cfg config.Config) *Coordinator {
	cfg = cfg.WithDefaults()
	log.SetLevelString(cfg.LogLevel)
	co := &Coordinator{
		chains:         make(map[ChainID]*chainState, len(interesting)),
		blocker:        newBlockerIndex(),
		reasm:          newReassembler(),
		bufs:           NewBufferCache(cfg.BufferCacheCap),
		transport:      transport,
		clientRequests: make(chan ClientRequest, 256),
		storeEvents:    make(chan StoreEvent, 256),
		deliveries:     make(chan Delivery, 256),
		finishedWrites: make(chan FinishedWrite, 256),
		token:          newSnapshotToken(),
		maxPrefetch:    Index(cfg.PrefetchWindow),
		readTimeout:    cfg.ReadTimeout,
		issuedAt:       make(map[Location]time.Time),
		log:            log.New("component", "fuzzylog"),
	}
	for _, c := range interesting {
		co.chains[c] = newChainState(c, true)
		co.interestingChains = append(co.interestingChains, c)
	}
	return co
}

// SubscribeSnapshotFinished registers ch to receive a SnapshotRoundFinishedEvent
// each time a batch of pending Snapshot calls finishes draining (§4.8),
// mirroring core/vote's VotePool.SubscribeNewVoteEvent.
func (co *Coordinator) SubscribeSnapshotFinished(ch chan<- SnapshotRoundFinishedEvent) event.Subscription {
	return co.scope.Track(co.snapshotFeed.Subscribe(ch))
}

// SubscribeChainFinished registers ch to receive a ChainFinishedEvent every
// time a chain drains to §4.9's Finished state.
func (co *Coordinator) SubscribeChainFinished(ch chan<- ChainFinishedEvent) event.Subscription {
	return co.scope.Track(co.chainFeed.Subscribe(ch))
}

// ClientRequests returns the channel the upward API enqueues onto.
func (co *Coordinator) ClientRequests() chan<- ClientRequest { return co.clientRequests }

// StoreEvents returns the channel the transport reports completions on.
func (co *Coordinator) StoreEvents() chan<- StoreEvent { return co.storeEvents }

// Deliveries returns the channel the application drains.
func (co *Coordinator) Deliveries() <-chan Delivery { return co.deliveries }

// FinishedWrites returns the channel append acknowledgements arrive on.
func (co *Coordinator) FinishedWrites() <-chan FinishedWrite { return co.finishedWrites }

// Buffers exposes the buffer cache, e.g. so a transport can decode directly
// into a cache buffer before reporting a ReadCompleteEvent.
func (co *Coordinator) Buffers() *BufferCache { return co.bufs }

// Start runs the event loop in its own goroutine (§5: one dedicated
// thread, strictly single-threaded cooperative).
func (co *Coordinator) Start() {
	go co.loop()
}

func (co *Coordinator) loop() {
	var staleTick <-chan time.Time
	if co.readTimeout > 0 {
		staleTicker := time.NewTicker(co.readTimeout / 2)
		defer staleTicker.Stop()
		staleTick = staleTicker.C
	}

	for {
		select {
		case req, ok := <-co.clientRequests:
			if !ok {
				co.log.Error("client request channel closed")
				return
			}
			if co.handleClientRequest(req) {
				return
			}
		case ev, ok := <-co.storeEvents:
			if !ok {
				co.log.Error("store event channel closed")
				return
			}
			co.handleStoreEvent(ev)
		case <-staleTick:
			co.logStaleReads()
		}
	}
}

// logStaleReads implements config.Config.ReadTimeout: it flags, but never
// retries or cancels, any read that has been outstanding longer than the
// configured bound. Retry policy belongs to the store, not the coordinator.
func (co *Coordinator) logStaleReads() {
	if co.readTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-co.readTimeout)
	for loc, at := range co.issuedAt {
		if at.Before(cutoff) {
			readTimeoutMeter.Mark(1)
			co.log.Warn("read stuck past timeout", "chain", loc.Chain, "index", loc.Index, "since", at)
		}
	}
}

func (co *Coordinator) handleClientRequest(req ClientRequest) (shutdown bool) {
	switch m := req.(type) {
	case SnapshotRequest:
		co.handleSnapshot(m.Chain)
	case AppendRequest:
		co.handleAppend(m.Packet)
	case ReturnBufferRequest:
		co.bufs.Put(m.Buf)
	case ShutdownRequest:
		co.scope.Close()
		return true
	}
	return false
}

func (co *Coordinator) handleStoreEvent(ev StoreEvent) {
	switch m := ev.(type) {
	case WriteCompleteEvent:
		co.finishedWrites <- FinishedWrite{ID: m.ID, Locations: m.Locations}
	case ReadCompleteEvent:
		co.handleReadComplete(m.Loc, m.Entry)
	}
}

// chain returns a chain's live state, lazily creating it as uninteresting
// (discovered only through a multi-append reference) if it isn't already
// known (§3 Lifecycle).
func (co *Coordinator) chain(id ChainID) *chainState {
	cs, ok := co.chains[id]
	if !ok {
		cs = newChainState(id, false)
		co.chains[id] = cs
	}
	return cs
}

// handleSnapshot implements §4.1's Snapshot(chain) client message. Every
// snapshot request contributes one end-of-stream marker once the shared
// token next goes quiescent; this keeps the "k calls -> k markers" law
// (§8) true even when several Snapshot calls overlap the same round,
// rather than trying to track each call's chains as a separate round.
func (co *Coordinator) handleSnapshot(chain ChainID) {
	snapshotRequestCounter.Inc(1)
	co.pendingSnapshotMarkers++

	targets := co.interestingChains
	if chain != NoChain {
		targets = []ChainID{chain}
	}
	for _, c := range targets {
		cs := co.chain(c)
		if !cs.interesting {
			continue
		}
		cs.outstandingSnapshots++
		cs.acquireToken(co.token)
		co.issueHorizonProbe(c)
		co.prefetch(c)
	}
}

func (co *Coordinator) handleAppend(pkt *Entry) {
	if pkt.Layout != LayoutData && pkt.Layout != LayoutMultiput {
		co.log.Error("malformed append packet layout", "layout", pkt.Layout)
		return
	}
	if pkt.Layout == LayoutMultiput {
		multiappendCounter.Inc(1)
	} else {
		appendCounter.Inc(1)
	}
	co.transport.Send(pkt)
}

// prefetch implements §4.1's Prefetch(chain): keep a window of in-flight
// reads open ahead of last_delivered. want floors at maxPrefetch
// (config.Config.PrefetchWindow): the chain's horizon is usually still
// stale at this point (the probe issued alongside this call hasn't answered
// yet), so up to maxPrefetch reads go out speculatively, and handleOverread
// absorbs any that land past the real horizon. toIssue is capped at
// maxPrefetch per call even when the known backlog is larger;
// continueFetchIfNeeded closes the rest of the gap as reads complete.
func (co *Coordinator) prefetch(c ChainID) {
	cs := co.chain(c)
	want := cs.horizon - cs.lastDelivered
	if want < co.maxPrefetch {
		want = co.maxPrefetch
	}
	var inFlight Index
	if cs.nextFetch != 0 {
		inFlight = cs.nextFetch - cs.lastDelivered
	}
	if want <= inFlight {
		return
	}
	toIssue := want - inFlight
	if toIssue > co.maxPrefetch {
		toIssue = co.maxPrefetch
	}
	for i := Index(0); i < toIssue; i++ {
		target := cs.nextFetch + 1
		cs.nextFetch = target
		co.issueFetch(c, target)
	}
}

// continueFetchIfNeeded implements §4.8.
func (co *Coordinator) continueFetchIfNeeded(c ChainID) {
	cs := co.chain(c)
	if cs.nextFetch < cs.horizon {
		for cs.nextFetch < cs.horizon {
			target := cs.nextFetch + 1
			cs.nextFetch = target
			co.issueFetch(c, target)
		}
		return
	}
	if cs.multiSearch > 0 && cs.outstandingReads == 0 {
		cs.horizon++
		target := cs.nextFetch + 1
		cs.nextFetch = target
		co.issueFetch(c, target)
	}
}

func (co *Coordinator) issueFetch(c ChainID, idx Index) {
	cs := co.chain(c)
	cs.outstandingReads++
	cs.acquireToken(co.token)
	co.sendRead(c, idx)
}

func (co *Coordinator) issueHorizonProbe(c ChainID) {
	co.sendRead(c, MaxIndex)
}

func (co *Coordinator) sendRead(c ChainID, idx Index) {
	readIssuedMeter.Mark(1)
	co.issuedAt[Location{Chain: c, Index: idx}] = time.Now()
	co.transport.Send(newReadRequest(c, idx))
}

// fetchMultiPart implements the reassemblyHost side of §4.7's FetchMultiPart.
// A known, non-blind index can land arbitrarily far past the chain's current
// nextFetch (the chain may never have been snapshotted on its own); every
// skipped index in between still holds a real entry that must be fetched in
// order, so this backfills from nextFetch+1 up to idx rather than jumping.
func (co *Coordinator) fetchMultiPart(c ChainID, idx Index) {
	cs := co.chain(c)
	if idx == IndexUnknown {
		cs.multiSearch++
		cs.acquireToken(co.token)
		blindSearchGauge.Update(co.totalMultiSearch())
		return
	}
	if idx > cs.horizon {
		cs.horizon = idx
	}
	for cs.nextFetch < idx {
		target := cs.nextFetch + 1
		cs.nextFetch = target
		co.issueFetch(c, target)
	}
}

// handleReadComplete implements §4.4.
func (co *Coordinator) handleReadComplete(loc Location, e *Entry) {
	cs := co.chain(loc.Chain)
	delete(co.issuedAt, loc)

	switch e.Layout {
	case LayoutRead:
		if loc.Index != MaxIndex {
			co.handleOverread(cs, loc.Index)
		} else {
			co.handleHorizonResponse(cs, e)
		}

	case LayoutData:
		cs.outstandingReads--
		co.registerAndDeliver(newEntryRef(e))

	case LayoutMultiput, LayoutSentinel:
		result, assembled := co.reasm.handlePiece(co, e, loc)
		switch result {
		case ResultFinished:
			cs.outstandingReads--
			co.registerAndDeliver(newEntryRef(assembled))
		case ResultBeyondHorizon:
			// handleOverread does the outstanding-read decrement itself.
			co.handleOverread(cs, loc.Index)
		case ResultEarlySentinel, ResultPending:
			// nothing further to do until the missing pieces arrive.
			cs.outstandingReads--
		}
		pendingReassemGauge.Update(int64(co.reasm.size()))
		blindSearchGauge.Update(co.totalMultiSearch())

	default:
		co.log.Crit("unreachable entry layout on read completion", "layout", e.Layout)
	}

	if cs.releaseTokenIfFinished() {
		co.chainFeed.Send(ChainFinishedEvent{Chain: cs.id})
	}
	co.continueFetchIfNeeded(loc.Chain)
	co.checkSnapshotRoundFinished()
}

// handleOverread implements the Read-layout, index<MAX branch of §4.4 and
// the BeyondHorizon branch of §4.7, which the spec calls out as identical
// in effect (§7).
func (co *Coordinator) handleOverread(cs *chainState, at Index) {
	cs.outstandingReads--
	readOverreadMeter.Mark(1)
	if cs.nextFetch > at && cs.nextFetch > cs.lastDelivered {
		cs.nextFetch = at - 1
	}
}

func (co *Coordinator) handleHorizonResponse(cs *chainState, e *Entry) {
	cs.outstandingSnapshots--
	if h := e.Horizon(); h > cs.horizon {
		cs.horizon = h
	}
	if cs.blockedOnSnapshot != nil {
		if loc, ok := cs.blockedOnSnapshot.entry.LocationOn(cs.id); ok && loc.Index <= cs.horizon {
			r := cs.blockedOnSnapshot
			cs.blockedOnSnapshot = nil
			co.tryDeliverCascade(r)
		}
	}
}

func (co *Coordinator) registerAndDeliver(r *entryRef) {
	registerBlockers(co.blocker, co.chain, r)
	blockerIndexGauge.Update(int64(co.blocker.size()))
	co.tryDeliverCascade(r)
}

// tryDeliver implements §4.3's deliverability test and, on success, the
// last_delivered update and (for interesting chains) the application
// delivery. It returns the locations just delivered, or nil if the entry
// is still blocked, a duplicate, or waiting on its chain's horizon.
func (co *Coordinator) tryDeliver(r *entryRef) []Location {
	if r.refs > 0 {
		return nil
	}
	e := r.entry

	for _, dep := range e.Dependencies {
		if dep.IsGap() {
			continue
		}
		if co.chain(dep.Chain).lastDelivered < dep.Index {
			return nil
		}
	}

	var horizonWait *Location
	for i := range e.Locations {
		loc := e.Locations[i]
		if loc.IsGap() {
			continue
		}
		cs := co.chain(loc.Chain)
		switch {
		case cs.lastDelivered >= loc.Index:
			// Duplicate: this location was already delivered. Per §7 the
			// second delivery is suppressed outright, not re-attempted.
			return nil
		case cs.lastDelivered+1 != loc.Index:
			return nil
		case loc.Index > cs.horizon:
			horizonWait = &e.Locations[i]
		}
	}
	if horizonWait != nil {
		co.chain(horizonWait.Chain).blockedOnSnapshot = r
		return nil
	}

	var delivered []Location
	interesting := false
	for _, loc := range e.Locations {
		if loc.IsGap() {
			continue
		}
		cs := co.chain(loc.Chain)
		cs.lastDelivered = loc.Index
		delivered = append(delivered, loc)
		if cs.interesting {
			interesting = true
		}
	}
	if interesting {
		co.deliveries <- Delivery{Payload: e.Payload, Locations: e.Locations, Buf: e.buf}
		deliveredMeter.Mark(1)
	}
	return delivered
}

// tryDeliverCascade implements §4.6: an explicit LIFO work stack, seeded by
// whatever tryDeliver just unblocked, draining the blocker index until
// nothing more becomes uniquely owned.
func (co *Coordinator) tryDeliverCascade(r *entryRef) {
	var stack []Location
	if delivered := co.tryDeliver(r); delivered != nil {
		stack = append(stack, delivered...)
	}
	for len(stack) > 0 {
		loc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, waiter := range co.blocker.drain(loc) {
			if waiter.dropRef() {
				if delivered := co.tryDeliver(waiter); delivered != nil {
					stack = append(stack, delivered...)
				}
			}
		}
	}
	blockerIndexGauge.Update(int64(co.blocker.size()))
}

// checkSnapshotRoundFinished implements §4.8's global completion check.
func (co *Coordinator) checkSnapshotRoundFinished() {
	if co.pendingSnapshotMarkers == 0 || !co.token.quiescent() {
		return
	}
	n := co.pendingSnapshotMarkers
	co.pendingSnapshotMarkers = 0
	for i := 0; i < n; i++ {
		co.deliveries <- Delivery{}
		snapshotFinishedMeter.Mark(1)
	}
	co.snapshotFeed.Send(SnapshotRoundFinishedEvent{Markers: n})
}

// totalMultiSearch sums the blind-search count across every known chain,
// for the fuzzylog/blindsearch/active gauge.
func (co *Coordinator) totalMultiSearch() int64 {
	var n int64
	for _, cs := range co.chains {
		n += int64(cs.multiSearch)
	}
	return n
}

// DebugDump renders the coordinator's internal state for diagnostics.
func (co *Coordinator) DebugDump() string {
	return spew.Sdump(co.chains, co.reasm.pending)
}
