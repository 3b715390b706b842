// Package tracer implements the passive three-channel completion recorder
// for one scenario's operation chain.
//
// A Tracer owns one execution graph for its lifetime and counts every
// completion call issued against its channel: value, stopped, and error. On
// a value completion it also captures the owned graph's topology at that
// moment. The tracer is a verification oracle, not a protocol enforcer: a
// scheduler that double-fires a channel, or fires more than one channel, is
// recorded faithfully and surfaced through the exactly-once accessors rather
// than rejected.
package tracer

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cpoole/graphwitness/internal/graph"
)

// ErrClosed indicates the tracer's graph resource was already destroyed.
var ErrClosed = errors.New("tracer: tracer already closed")

// record holds the shared completion state. Counters are independently
// monotonic and atomically updated so completion calls are safe from any
// goroutine without extra synchronization.
type record struct {
	value   atomic.Int64
	stopped atomic.Int64
	errored atomic.Int64

	nodes atomic.Int64
	edges atomic.Int64
}

// Tracer owns one execution graph and records which completion channels
// fire against it. Construct with New; not copyable once constructed, since
// channel handles capture the record's identity.
type Tracer struct {
	mu     sync.Mutex
	graph  *graph.Graph
	rec    record
	closed bool
}

// New creates a tracer owning a freshly created, empty execution graph.
func New() *Tracer {
	return &Tracer{graph: graph.New()}
}

// Close destroys the owned graph resource exactly once.
func (t *Tracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	t.closed = true
	return t.graph.Close()
}

// Channel returns the shared completion record. It is intended to be
// consumed by exactly one of the three completion calls per scenario; the
// tracer records violations instead of rejecting them.
func (t *Tracer) Channel() *Channel {
	return &Channel{t: t}
}

// Graph returns a non-owning view of the owned graph so external building
// code can attach operations before the tracer is wired in as the terminal
// consumer. The view is valid only until Close.
func (t *Tracer) Graph() graph.Handle {
	return t.graph.Handle()
}

// Consumer returns the sink adapter that connects this tracer as a graph's
// terminal consumer.
func (t *Tracer) Consumer() Consumer {
	return Consumer{ch: t.Channel()}
}

// ValueCalled reports whether the value channel fired at least once.
func (t *Tracer) ValueCalled() bool { return t.rec.value.Load() > 0 }

// StoppedCalled reports whether the stopped channel fired at least once.
func (t *Tracer) StoppedCalled() bool { return t.rec.stopped.Load() > 0 }

// ErrorCalled reports whether the error channel fired at least once.
func (t *Tracer) ErrorCalled() bool { return t.rec.errored.Load() > 0 }

// ValueCalledOnce reports whether the value channel fired exactly once.
func (t *Tracer) ValueCalledOnce() bool { return t.rec.value.Load() == 1 }

// StoppedCalledOnce reports whether the stopped channel fired exactly once.
func (t *Tracer) StoppedCalledOnce() bool { return t.rec.stopped.Load() == 1 }

// ErrorCalledOnce reports whether the error channel fired exactly once.
func (t *Tracer) ErrorCalledOnce() bool { return t.rec.errored.Load() == 1 }

// NodeCount returns the node count captured by the most recent value
// completion, or zero by convention if none fired yet.
func (t *Tracer) NodeCount() int { return int(t.rec.nodes.Load()) }

// EdgeCount returns the edge count captured by the most recent value
// completion, or zero by convention if none fired yet.
func (t *Tracer) EdgeCount() int { return int(t.rec.edges.Load()) }

// Channel is a non-owning handle to a tracer's completion record. It is
// valid only within the owning tracer's lifetime.
type Channel struct {
	t *Tracer
}

// OnValue records a successful completion. It captures the owned graph's
// node and edge counts at this moment, accepts a nil payload, and never
// fails.
func (c *Channel) OnValue(payload any) {
	_ = payload
	c.t.rec.nodes.Store(int64(c.t.graph.NodeCount()))
	c.t.rec.edges.Store(int64(c.t.graph.EdgeCount()))
	c.t.rec.value.Add(1)
}

// OnStopped records a cancellation before a value was produced. Never fails.
func (c *Channel) OnStopped() {
	c.t.rec.stopped.Add(1)
}

// OnError records a failed completion. The cause is accepted but not
// retained. Never fails.
func (c *Channel) OnError(err error) {
	_ = err
	c.t.rec.errored.Add(1)
}

// Consumer adapts a completion channel to the graph's terminal-sink
// contract. It advertises the graph-native completion capability and
// requires no scratch storage.
type Consumer struct {
	ch *Channel
}

var (
	_ graph.GraphNativeSink = Consumer{}
	_ graph.ScratchProvider = Consumer{}
)

// OnValue forwards a successful launch to the value channel.
func (c Consumer) OnValue(nodes []graph.NodeID) { c.ch.OnValue(nodes) }

// OnStopped forwards a cancelled launch to the stopped channel.
func (c Consumer) OnStopped() { c.ch.OnStopped() }

// OnError forwards a failed launch to the error channel.
func (c Consumer) OnError(err error) { c.ch.OnError(err) }

// GraphNativeCompletion marks the consumer as graph-native so dispatch code
// selects the graph-attached completion path.
func (Consumer) GraphNativeCompletion() {}

// Scratch reports that this sink needs no auxiliary scratch memory.
func (Consumer) Scratch() []byte { return nil }
