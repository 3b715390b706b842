package graph

// Sink receives the completion outcome of a launched graph. Exactly one of
// the three channels is intended to fire per launch; that contract belongs
// to the scheduler driving the sink and is what the harness verifies, so
// implementations must record rather than reject misuse.
type Sink interface {
	// OnValue fires when every node completed successfully. The payload
	// lists the executed nodes and may be empty.
	OnValue(nodes []NodeID)

	// OnStopped fires when the launch was cancelled before producing a value.
	OnStopped()

	// OnError fires when a node operation failed.
	OnError(err error)
}

// GraphNativeSink marks sinks implementing the graph-native completion
// protocol, as opposed to a host-callback protocol. Dispatch code selects
// the graph-attached completion path by asserting a sink to this interface.
type GraphNativeSink interface {
	Sink

	// GraphNativeCompletion is a marker method carrying no behavior.
	GraphNativeCompletion()
}

// ScratchProvider lets a sink advertise auxiliary scratch storage to
// graph-building machinery. A nil slice means no scratch memory is needed.
type ScratchProvider interface {
	Scratch() []byte
}

// IsGraphNative reports whether sink supports graph-attached completion.
func IsGraphNative(sink Sink) bool {
	_, ok := sink.(GraphNativeSink)
	return ok
}

// ScratchFor returns the scratch storage sink advertises, or nil when the
// sink advertises none (or does not implement ScratchProvider at all).
func ScratchFor(sink Sink) []byte {
	if p, ok := sink.(ScratchProvider); ok {
		return p.Scratch()
	}
	return nil
}
