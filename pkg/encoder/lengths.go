package encoder

import (
	"sync"

	"github.com/robotalks/canlog/pkg/canbus"
)

// Scaling of raw counts to millimetres. Values past Wrap are on the negative
// side of zero and are shifted down by Span.
const (
	FullScale = 485.0
	RawScale  = 32767.0
	Wrap      = 700.0
	Span      = 1455.0
)

// Scale converts a raw encoder count to millimetres.
func Scale(raw int32) float64 {
	v := FullScale / RawScale * float64(raw)
	if v > Wrap {
		v -= Span
	}
	return v
}

// Lengths holds the latest length of every encoder.
type Lengths struct {
	lock   sync.RWMutex
	values [Count]float64
	seen   [Count]bool
}

// HandleFrame updates the lengths from a read response and reports whether
// f was one. Responses from unknown ids are ignored.
func (l *Lengths) HandleFrame(f canbus.Frame) bool {
	r, ok := ParseReadResponse(f)
	if !ok || !ValidID(r.ID) {
		return false
	}
	l.Set(r.ID, Scale(r.Raw))
	return true
}

// Set stores the length of encoder id.
func (l *Lengths) Set(id uint8, v float64) {
	if !ValidID(id) {
		return
	}
	l.lock.Lock()
	l.values[id-FirstID] = v
	l.seen[id-FirstID] = true
	l.lock.Unlock()
}

// Get returns the length of encoder id and whether it has reported yet.
func (l *Lengths) Get(id uint8) (float64, bool) {
	if !ValidID(id) {
		return 0, false
	}
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.values[id-FirstID], l.seen[id-FirstID]
}

// Snapshot returns all lengths ordered by id.
func (l *Lengths) Snapshot() [Count]float64 {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.values
}
