package canbus

import (
	"context"
	"sync"
)

// LoopbackBus is an in-memory bus. Frames sent on one endpoint are delivered
// to every other endpoint opened from the same bus.
type LoopbackBus struct {
	lock      sync.RWMutex
	closed    bool
	endpoints map[*loopEndpoint]struct{}
}

// NewLoopbackBus creates a LoopbackBus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{endpoints: make(map[*loopEndpoint]struct{})}
}

// Open attaches a new endpoint.
func (b *LoopbackBus) Open() Bus {
	ep := &loopEndpoint{
		bus:    b,
		ch:     make(chan Frame, 64),
		doneCh: make(chan struct{}),
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		ep.dead = true
		close(ep.doneCh)
		return ep
	}
	b.endpoints[ep] = struct{}{}
	return ep
}

// Close detaches all endpoints.
func (b *LoopbackBus) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.shutdown()
	}
	b.endpoints = nil
	return nil
}

type loopEndpoint struct {
	bus    *LoopbackBus
	ch     chan Frame
	lock   sync.Mutex
	dead   bool
	doneCh chan struct{}
}

func (e *loopEndpoint) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	e.bus.lock.RLock()
	if e.bus.closed || e.isDead() {
		e.bus.lock.RUnlock()
		return ErrClosed
	}
	peers := make([]*loopEndpoint, 0, len(e.bus.endpoints))
	for ep := range e.bus.endpoints {
		if ep != e {
			peers = append(peers, ep)
		}
	}
	e.bus.lock.RUnlock()

	for _, p := range peers {
		select {
		case p.ch <- frame:
		case <-p.doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *loopEndpoint) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-e.ch:
		return f, nil
	case <-e.doneCh:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (e *loopEndpoint) Close() error {
	e.bus.lock.Lock()
	defer e.bus.lock.Unlock()
	e.shutdown()
	if e.bus.endpoints != nil {
		delete(e.bus.endpoints, e)
	}
	return nil
}

func (e *loopEndpoint) isDead() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.dead
}

// shutdown must be called with bus.lock held.
func (e *loopEndpoint) shutdown() {
	e.lock.Lock()
	defer e.lock.Unlock()
	if !e.dead {
		e.dead = true
		close(e.doneCh)
	}
}
