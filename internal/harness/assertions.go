package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/cpoole/graphwitness/internal/flags"
	"github.com/cpoole/graphwitness/internal/store"
	"github.com/cpoole/graphwitness/internal/tracer"
)

// AssertionError describes one assertion failure with enough context to
// diagnose it without re-running the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error formats the failure as a single diagnostic line, appending the
// compact trace when one was captured.
func (e *AssertionError) Error() string {
	msg := fmt.Sprintf("assertion %s failed: expected %s, got %s", e.Type, e.Expected, e.Actual)
	if len(e.Trace) > 0 {
		keys := make([]string, len(e.Trace))
		for i, ev := range e.Trace {
			keys[i] = ev.Key()
		}
		msg += fmt.Sprintf(" (trace: %s)", strings.Join(keys, " -> "))
	}
	return msg
}

// AssertionContext carries the live run state assertions evaluate against.
// Flag and channel assertions read the components directly rather than the
// summary, so they see exactly what a caller of the accessors would see.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Flags    *flags.FlagSet
	Tracer   *tracer.Tracer
	RunToken string
}

// EvaluateAssertions checks every assertion against the run and returns one
// failure message per violated assertion. An empty slice means the run
// passed. Evaluation never stops early; a failing run reports every
// violation at once.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertFlagsAllSetOnce:
			err = assertFlagsAllSetOnce(&a, actx)
		case AssertFlagsAllUnset:
			err = assertFlagsAllUnset(&a, actx)
		case AssertChannelCalled:
			err = assertChannelCalled(&a, actx)
		case AssertChannelOnce:
			err = assertChannelOnce(&a, actx)
		case AssertTopology:
			err = assertTopology(&a, actx)
		case AssertTraceContains:
			err = assertTraceContains(&a, result.Trace)
		case AssertTraceOrder:
			err = assertTraceOrder(&a, result.Trace)
		case AssertSignalCount:
			err = assertSignalCount(&a, actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// expectBool resolves the optional expect field, defaulting to true.
func expectBool(a *Assertion) bool {
	if a.Expect == nil {
		return true
	}
	return *a.Expect
}

func assertFlagsAllSetOnce(a *Assertion, actx *AssertionContext) error {
	got, err := actx.Flags.AllSetOnce()
	if err != nil {
		return fmt.Errorf("assertion %s failed to read counters: %w", a.Type, err)
	}
	if want := expectBool(a); got != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("all_set_once=%t", want),
			Actual:   fmt.Sprintf("all_set_once=%t", got),
		}
	}
	return nil
}

func assertFlagsAllUnset(a *Assertion, actx *AssertionContext) error {
	got, err := actx.Flags.AllUnset()
	if err != nil {
		return fmt.Errorf("assertion %s failed to read counters: %w", a.Type, err)
	}
	if want := expectBool(a); got != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("all_unset=%t", want),
			Actual:   fmt.Sprintf("all_unset=%t", got),
		}
	}
	return nil
}

func assertChannelCalled(a *Assertion, actx *AssertionContext) error {
	got, err := actx.Store.CompletionCount(actx.Ctx, actx.RunToken, a.Channel)
	if err != nil {
		return fmt.Errorf("assertion %s failed to query store: %w", a.Type, err)
	}
	if got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s fired %d time(s)", a.Channel, a.Count),
			Actual:   fmt.Sprintf("%s fired %d time(s)", a.Channel, got),
		}
	}
	return nil
}

func assertChannelOnce(a *Assertion, actx *AssertionContext) error {
	var got bool
	switch a.Channel {
	case ChannelValue:
		got = actx.Tracer.ValueCalledOnce()
	case ChannelStopped:
		got = actx.Tracer.StoppedCalledOnce()
	case ChannelError:
		got = actx.Tracer.ErrorCalledOnce()
	}
	if want := expectBool(a); got != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s called_once=%t", a.Channel, want),
			Actual:   fmt.Sprintf("%s called_once=%t", a.Channel, got),
		}
	}
	return nil
}

func assertTopology(a *Assertion, actx *AssertionContext) error {
	nodes, edges := actx.Tracer.NodeCount(), actx.Tracer.EdgeCount()
	if nodes != a.Nodes || edges != a.Edges {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("nodes=%d edges=%d", a.Nodes, a.Edges),
			Actual:   fmt.Sprintf("nodes=%d edges=%d", nodes, edges),
		}
	}
	return nil
}

func assertTraceContains(a *Assertion, trace []TraceEvent) error {
	for _, ev := range trace {
		if ev.Key() == a.Event {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("trace contains %q", a.Event),
		Actual:   "event not found",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the expected keys appear in the trace in the
// given order. Each expected key is matched at its first position after the
// previous match, so unrelated interleaved events are permitted.
func assertTraceOrder(a *Assertion, trace []TraceEvent) error {
	pos := 0
	for _, want := range a.Events {
		found := false
		for ; pos < len(trace); pos++ {
			if trace[pos].Key() == want {
				found = true
				pos++
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("events in order %v", a.Events),
				Actual:   fmt.Sprintf("%q out of order or missing", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertSignalCount(a *Assertion, actx *AssertionContext) error {
	got, err := actx.Store.SignalCount(actx.Ctx, actx.RunToken, a.Flag)
	if err != nil {
		return fmt.Errorf("assertion %s failed to query store: %w", a.Type, err)
	}
	if got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("flag %d signaled %d time(s)", a.Flag, a.Count),
			Actual:   fmt.Sprintf("flag %d signaled %d time(s)", a.Flag, got),
		}
	}
	return nil
}
