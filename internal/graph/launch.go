package graph

import "context"

type nodeResult struct {
	id  NodeID
	err error
}

// Launch executes the graph's nodes in dependency order, running independent
// nodes concurrently, then fires exactly one channel on the attached sink:
//
//   - OnStopped when ctx is cancelled before a value is produced,
//   - OnError with the first node failure otherwise,
//   - OnValue with the executed nodes otherwise.
//
// Cancellation takes precedence over a node failure observed while draining.
// Launch returns after the sink has fired; the returned error covers only
// launch preconditions (closed graph, missing sink), never node outcomes.
func Launch(ctx context.Context, h Handle) error {
	g := h.g

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	sink := g.sink
	if sink == nil {
		g.mu.Unlock()
		return ErrNoSink
	}
	nodes := make(map[NodeID]*node, len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = n
	}
	order := append([]NodeID(nil), g.order...)
	g.mu.Unlock()

	pending := make(map[NodeID]int, len(order))
	dependents := make(map[NodeID][]NodeID, len(order))
	for _, id := range order {
		n := nodes[id]
		pending[id] = len(n.deps)
		for _, dep := range n.deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	results := make(chan nodeResult)
	running := 0
	start := func(id NodeID) {
		running++
		op := nodes[id].op
		go func() {
			results <- nodeResult{id: id, err: op(ctx)}
		}()
	}

	stopped := ctx.Err() != nil
	halted := stopped
	var firstErr error

	if !halted {
		for _, id := range order {
			if pending[id] == 0 {
				start(id)
			}
		}
	}

	executed := make([]NodeID, 0, len(order))
	done := ctx.Done()
	for running > 0 {
		select {
		case <-done:
			stopped = true
			halted = true
			done = nil // keep draining in-flight nodes
		case res := <-results:
			running--
			if res.err != nil {
				if firstErr == nil {
					firstErr = res.err
				}
				halted = true
				continue
			}
			executed = append(executed, res.id)
			if halted {
				continue
			}
			for _, next := range dependents[res.id] {
				pending[next]--
				if pending[next] == 0 {
					start(next)
				}
			}
		}
	}

	switch {
	case stopped:
		sink.OnStopped()
	case firstErr != nil:
		sink.OnError(firstErr)
	default:
		sink.OnValue(executed)
	}
	return nil
}
