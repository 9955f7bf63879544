package mqtt

import "sync"

// Gate is a single-shot stop signal. It starts unsignaled; Trigger
// signals it permanently and may be called any number of times from
// any goroutine.
//
// The receive loop polls the gate once per iteration, before it waits
// for the next stream item, and never while waiting. Shutdown latency is
// therefore the time until the broker's next delivery or gap: if the
// broker sends nothing, a triggered gate is not observed at all. The
// wait in progress is never interrupted.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns an unsignaled gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Trigger signals the gate. Triggering an already signaled gate is a
// no-op.
func (g *Gate) Trigger() {
	g.once.Do(func() { close(g.ch) })
}

// Signaled reports whether Trigger has been called. It never blocks.
func (g *Gate) Signaled() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the gate is signaled.
func (g *Gate) Done() <-chan struct{} {
	return g.ch
}
