// Package graph implements the execution-graph resource the completion
// tracer owns: a topology of named operations (nodes) and dependencies
// (edges), queryable for counts, with a terminal sink receiving exactly one
// of three completion outcomes when the graph is launched.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NodeID identifies a node within its graph.
type NodeID string

// OpFunc is the work a node performs when the graph is launched.
type OpFunc func(ctx context.Context) error

var (
	// ErrClosed indicates the graph resource was already destroyed.
	ErrClosed = errors.New("graph: graph already destroyed")
	// ErrDuplicateNode indicates a node name collision within the graph.
	ErrDuplicateNode = errors.New("graph: node already exists")
	// ErrUnknownDependency indicates a dependency on a node the graph does not contain.
	ErrUnknownDependency = errors.New("graph: unknown dependency")
	// ErrEmptyNodeName indicates a node was added without a name.
	ErrEmptyNodeName = errors.New("graph: node name must not be empty")
	// ErrNilOp indicates a node was added without an operation.
	ErrNilOp = errors.New("graph: node op must not be nil")
	// ErrNilSink indicates a nil terminal sink was attached.
	ErrNilSink = errors.New("graph: sink must not be nil")
	// ErrNoSink indicates a launch was attempted with no terminal sink attached.
	ErrNoSink = errors.New("graph: no terminal sink attached")
)

type node struct {
	id   NodeID
	op   OpFunc
	deps []NodeID
}

// Graph owns one execution-graph resource. It is created empty, populated
// through AddNode, and destroyed exactly once with Close.
//
// Dependencies may only reference nodes already in the graph, so the
// topology is acyclic by construction.
type Graph struct {
	mu     sync.Mutex
	id     string
	nodes  map[NodeID]*node
	order  []NodeID
	edges  int
	sink   Sink
	closed bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		id:    uuid.NewString(),
		nodes: make(map[NodeID]*node),
	}
}

// ID returns the graph's unique identifier.
func (g *Graph) ID() string {
	return g.id
}

// Close destroys the graph resource. Exactly once; a second Close returns
// ErrClosed.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	g.closed = true
	g.nodes = nil
	g.order = nil
	g.sink = nil
	return nil
}

// AddNode registers an operation with edges from each named dependency.
// Duplicate dependencies are collapsed to a single edge.
func (g *Graph) AddNode(name string, op OpFunc, deps ...NodeID) (NodeID, error) {
	if name == "" {
		return "", ErrEmptyNodeName
	}
	if op == nil {
		return "", ErrNilOp
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return "", ErrClosed
	}

	id := NodeID(name)
	if _, exists := g.nodes[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}

	seen := make(map[NodeID]struct{}, len(deps))
	uniq := make([]NodeID, 0, len(deps))
	for _, dep := range deps {
		if _, ok := g.nodes[dep]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownDependency, dep)
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		uniq = append(uniq, dep)
	}

	g.nodes[id] = &node{id: id, op: op, deps: uniq}
	g.order = append(g.order, id)
	g.edges += len(uniq)
	return id, nil
}

// NodeCount returns the number of nodes currently in the graph.
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// EdgeCount returns the number of dependency edges currently in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges
}

// Attach wires sink in as the graph's terminal consumer. The sink receives
// exactly one completion outcome per launch.
func (g *Graph) Attach(sink Sink) error {
	if sink == nil {
		return ErrNilSink
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	g.sink = sink
	return nil
}

// Handle returns a non-owning view of the graph for external builders and
// schedulers. Handles are trivially copyable and valid only until the owner
// is closed.
func (g *Graph) Handle() Handle {
	return Handle{g: g}
}

// Handle is a non-owning reference to a graph.
type Handle struct {
	g *Graph
}

// ID returns the graph's unique identifier.
func (h Handle) ID() string { return h.g.ID() }

// NodeCount returns the number of nodes currently in the graph.
func (h Handle) NodeCount() int { return h.g.NodeCount() }

// EdgeCount returns the number of dependency edges currently in the graph.
func (h Handle) EdgeCount() int { return h.g.EdgeCount() }

// AddNode registers an operation on the underlying graph.
func (h Handle) AddNode(name string, op OpFunc, deps ...NodeID) (NodeID, error) {
	return h.g.AddNode(name, op, deps...)
}

// Attach wires sink in as the underlying graph's terminal consumer.
func (h Handle) Attach(sink Sink) error {
	return h.g.Attach(sink)
}
