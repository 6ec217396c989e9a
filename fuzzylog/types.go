// Package fuzzylog implements the client-side read/fetch coordinator for a
// partially-ordered shared log: a single-threaded event loop that drives
// per-chain prefetch, reassembles multi-chain appends, and delivers entries
// to the application in per-chain order once every dependency is satisfied.
package fuzzylog

import (
	"fmt"

	"github.com/google/uuid"
)

// ChainID identifies a named append-only chain inside the log. ChainID(0)
// is a sentinel meaning "no chain" and is used inside location lists to
// mark a witness gap in a dependent multi-append.
type ChainID uint64

// NoChain is the sentinel ChainID used to pad location lists.
const NoChain ChainID = 0

// Index gives a position within a chain. IndexUnknown means "not yet
// assigned"; MaxIndex requests the chain's current horizon.
type Index uint64

const (
	// IndexUnknown marks a location whose index has not been assigned yet,
	// e.g. a multi-append piece on a chain the client must blind-search.
	IndexUnknown Index = 0
	// MaxIndex is reserved to request the current horizon of a chain.
	MaxIndex Index = ^Index(0)
)

// Location is a (chain, index) pair.
type Location struct {
	Chain ChainID
	Index Index
}

func (l Location) String() string {
	return fmt.Sprintf("(%d,%d)", l.Chain, l.Index)
}

// IsGap reports whether this location is the zero-chain witness padding
// used by dependent multi-appends rather than a real chain position.
func (l Location) IsGap() bool {
	return l.Chain == NoChain
}

// AppendID is the 128-bit identifier shared by every piece of a
// multi-chain append. The spec calls for an opaque 128-bit value; a UUID
// is exactly that.
type AppendID uuid.UUID

// NewAppendID mints a fresh, globally unique append id.
func NewAppendID() AppendID {
	return AppendID(uuid.New())
}

func (id AppendID) String() string {
	return uuid.UUID(id).String()
}

// Layout identifies which of the four wire shapes an entry was decoded
// from.
type Layout uint8

const (
	// LayoutRead is a response to a horizon probe or an over-read; it
	// carries no payload beyond its location and (for horizon responses)
	// the horizon encoded as its first dependency.
	LayoutRead Layout = iota
	// LayoutData is a single-chain append; its location list has length 1.
	LayoutData
	// LayoutMultiput is the data-bearing piece of a multi-chain append.
	LayoutMultiput
	// LayoutSentinel is a placeholder piece of a multi-chain append on a
	// chain that is not the data carrier.
	LayoutSentinel
)

func (l Layout) String() string {
	switch l {
	case LayoutRead:
		return "read"
	case LayoutData:
		return "data"
	case LayoutMultiput:
		return "multiput"
	case LayoutSentinel:
		return "sentinel"
	default:
		return "unknown"
	}
}
