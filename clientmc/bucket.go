package clientmc

import (
	"sync/atomic"
	"weak"

	"github.com/meshkit/clientgw/ids"
	"github.com/meshkit/clientgw/transport"
)

// bucketTable is a fixed-size array of weak references to *transport.Conn
// (§3 BucketTable). weak.Pointer tracks a specific allocation, so every
// slot holds a weak pointer to the concrete connection struct itself
// (strongly kept alive elsewhere by ConnectionManager and the reader
// goroutine), never to a transport.Connection interface value -- a weak
// reference to the interface word would track the interface variable's own
// short-lived allocation instead of the connection it wraps.
//
// Every slot is touched only through atomic.Pointer CAS, so a losing
// installer never corrupts a slot another goroutine is reading.
type bucketTable struct {
	slots []atomic.Pointer[weak.Pointer[transport.Conn]]
}

func newBucketTable(size int) *bucketTable {
	return &bucketTable{slots: make([]atomic.Pointer[weak.Pointer[transport.Conn]], size)}
}

func (b *bucketTable) index(id ids.ActorId) int {
	return int(id.Hash() % uint32(len(b.slots)))
}

// resolve turns a live weak pointer back into the Connection interface, or
// reports false if it has expired (Value returns nil) or gone invalid.
func resolve(wp *weak.Pointer[transport.Conn]) (transport.Connection, bool) {
	if wp == nil {
		return nil, false
	}
	c := wp.Value()
	if c == nil || !c.IsValid() {
		return nil, false
	}
	return c, true
}

// get returns the connection currently installed at actor's bucket, if the
// weak reference still resolves to a live one.
func (b *bucketTable) get(id ids.ActorId) (transport.Connection, bool) {
	return resolve(b.slots[b.index(id)].Load())
}

// observed returns the raw slot value this goroutine should pass back to
// install as its compare-and-swap witness.
func (b *bucketTable) observed(id ids.ActorId) *weak.Pointer[transport.Conn] {
	return b.slots[b.index(id)].Load()
}

// install attempts to publish c into actor's bucket via compare-and-swap
// against witness (the value this goroutine last observed, possibly nil).
// On CAS failure it returns the connection that won the race instead, so
// the caller can adopt it rather than retry blindly.
func (b *bucketTable) install(id ids.ActorId, witness *weak.Pointer[transport.Conn], c *transport.Conn) (adopted transport.Connection, installed bool) {
	slot := &b.slots[b.index(id)]
	fresh := weak.Make(c)

	if slot.CompareAndSwap(witness, &fresh) {
		return c, true
	}

	adopted, _ = resolve(slot.Load())
	return adopted, false
}
