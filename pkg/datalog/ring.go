package datalog

import "sync/atomic"

// Ring is a fixed-capacity single-producer single-consumer byte queue.
//
// One slot is never used so that a full ring is distinguishable from an
// empty one: at most Cap()-1 bytes are held. Write is called by exactly one
// goroutine and Read by exactly one other; neither blocks nor allocates.
// Each side copies its data before publishing its new position, so the
// consumer never sees a position that covers bytes not yet written.
type Ring struct {
	buf  []byte
	wpos atomic.Uint32 // owned by the producer
	rpos atomic.Uint32 // owned by the consumer
}

// NewRing creates a Ring of capacity bytes.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		panic("datalog: ring capacity must be at least 2")
	}
	return &Ring{buf: make([]byte, capacity)}
}

// Cap returns the capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of occupied bytes.
func (r *Ring) Len() int {
	return r.used(r.wpos.Load(), r.rpos.Load())
}

// Free returns the number of bytes that can be written.
func (r *Ring) Free() int {
	return len(r.buf) - 1 - r.Len()
}

func (r *Ring) used(w, rd uint32) int {
	n := int(w) - int(rd)
	if n < 0 {
		n += len(r.buf)
	}
	return n
}

// Write appends all of p, or nothing if fewer than len(p) bytes are free.
func (r *Ring) Write(p []byte) bool {
	w, rd := r.wpos.Load(), r.rpos.Load()
	if len(r.buf)-1-r.used(w, rd) < len(p) {
		return false
	}
	n := copy(r.buf[w:], p)
	copy(r.buf, p[n:])
	r.wpos.Store(uint32((int(w) + len(p)) % len(r.buf)))
	return true
}

// Read moves up to len(p) occupied bytes into p and returns the count.
func (r *Ring) Read(p []byte) int {
	w, rd := r.wpos.Load(), r.rpos.Load()
	n := r.used(w, rd)
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}
	c := copy(p[:n], r.buf[rd:])
	copy(p[c:n], r.buf)
	r.rpos.Store(uint32((int(rd) + n) % len(r.buf)))
	return n
}

// Reset empties the ring. Neither side may be active.
func (r *Ring) Reset() {
	r.wpos.Store(0)
	r.rpos.Store(0)
}
