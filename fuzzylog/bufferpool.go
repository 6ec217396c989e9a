package fuzzylog

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/deen17/fuzzylog/metrics"
)

// DefaultBufferCacheCap is the default number of free buffers the cache
// will hold onto before it starts dropping returns silently (§7).
const DefaultBufferCacheCap = 100

const defaultBufSize = 4096

var (
	bufferHitMeter  = metrics.GetOrRegisterMeter("fuzzylog/buffer/hit", nil)
	bufferMissMeter = metrics.GetOrRegisterMeter("fuzzylog/buffer/miss", nil)
	bufferDropMeter = metrics.GetOrRegisterMeter("fuzzylog/buffer/drop", nil)
)

// Buffer is the unit the cache hands out. Using a pointer to a small
// wrapper (rather than tracking `[]byte` slices directly) gives every
// checked-out buffer a stable, comparable identity for the checked-out set
// below, without resorting to `unsafe`, and gives the application a handle
// it can pass back through ReturnBuffer without reaching into fuzzylog
// internals.
type Buffer struct {
	buf []byte
}

// Bytes exposes the backing slice, e.g. for a transport decoding a payload
// directly into it.
func (b *Buffer) Bytes() []byte { return b.buf }

// BufferCache is the bounded free-list of reusable read-packet buffers
// (§2, 10% share). Get/Put are only ever called from the coordinator
// goroutine, so no locking is required.
type BufferCache struct {
	cap        int
	free       chan *Buffer
	checkedOut mapset.Set[*Buffer]
}

// NewBufferCache creates a cache that retains up to capacity free buffers.
func NewBufferCache(capacity int) *BufferCache {
	if capacity <= 0 {
		capacity = DefaultBufferCacheCap
	}
	return &BufferCache{
		cap:        capacity,
		free:       make(chan *Buffer, capacity),
		checkedOut: mapset.NewThreadUnsafeSet[*Buffer](),
	}
}

// Get returns a buffer from the free list, allocating a new one if the list
// is currently empty.
func (c *BufferCache) Get() *Buffer {
	select {
	case h := <-c.free:
		bufferHitMeter.Mark(1)
		c.checkedOut.Add(h)
		return h
	default:
		bufferMissMeter.Mark(1)
		h := &Buffer{buf: make([]byte, 0, defaultBufSize)}
		c.checkedOut.Add(h)
		return h
	}
}

// Put returns a buffer to the cache. It is idempotent: returning a buffer
// that isn't currently checked out (because it was already returned, or
// never came from this cache) is a no-op rather than corrupting the free
// list with a buffer two callers might still believe they own. Once the
// cache is at capacity, further returns are silently dropped (§7).
func (c *BufferCache) Put(h *Buffer) {
	if h == nil || !c.checkedOut.Contains(h) {
		return
	}
	c.checkedOut.Remove(h)
	h.buf = h.buf[:0]
	select {
	case c.free <- h:
	default:
		bufferDropMeter.Mark(1)
	}
}

// outstanding reports how many buffers are currently checked out, for
// tests.
func (c *BufferCache) outstanding() int {
	return c.checkedOut.Cardinality()
}
