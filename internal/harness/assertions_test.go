package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpoole/graphwitness/internal/devmem"
	"github.com/cpoole/graphwitness/internal/flags"
	"github.com/cpoole/graphwitness/internal/store"
	"github.com/cpoole/graphwitness/internal/tracer"
)

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTopology,
		Expected: "nodes=3 edges=2",
		Actual:   "nodes=1 edges=0",
	}
	assert.Equal(t, "assertion topology failed: expected nodes=3 edges=2, got nodes=1 edges=0", err.Error())
}

func TestAssertionError_FormatWithTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceContains,
		Expected: `trace contains "signal:b"`,
		Actual:   "event not found",
		Trace: []TraceEvent{
			{Type: EventSignal, Node: "a", Flag: 0, Seq: 1},
			{Type: EventCompletion, Channel: "value", Seq: 2},
		},
	}
	assert.Contains(t, err.Error(), "(trace: signal:a -> completion:value)")
}

func TestTraceOrder(t *testing.T) {
	trace := []TraceEvent{
		{Type: EventSignal, Node: "a", Seq: 1},
		{Type: EventSignal, Node: "x", Seq: 2},
		{Type: EventSignal, Node: "b", Seq: 3},
		{Type: EventCompletion, Channel: "value", Seq: 4},
	}

	tests := []struct {
		name   string
		events []string
		ok     bool
	}{
		{"exact order", []string{"signal:a", "signal:b", "completion:value"}, true},
		{"interleaved events allowed", []string{"signal:a", "completion:value"}, true},
		{"reversed order", []string{"signal:b", "signal:a"}, false},
		{"missing event", []string{"signal:a", "signal:z"}, false},
		{"repeated key needs two occurrences", []string{"signal:a", "signal:a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Assertion{Type: AssertTraceOrder, Events: tt.events}
			err := assertTraceOrder(a, trace)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTraceContains(t *testing.T) {
	trace := []TraceEvent{
		{Type: EventSignal, Node: "a", Seq: 1},
		{Type: EventCompletion, Channel: "error", Seq: 2},
	}

	assert.NoError(t, assertTraceContains(&Assertion{Type: AssertTraceContains, Event: "completion:error"}, trace))

	err := assertTraceContains(&Assertion{Type: AssertTraceContains, Event: "completion:value"}, trace)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `trace contains "completion:value"`)
}

func TestEvaluateAssertions_FlagPredicates(t *testing.T) {
	fs, err := flags.New(devmem.NewSim(), 2)
	require.NoError(t, err)
	defer fs.Close()

	fh := fs.Handle()
	fh.Set(0)
	fh.Set(1)

	actx := &AssertionContext{Ctx: context.Background(), Flags: fs}
	result := NewResult()

	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertFlagsAllSetOnce},
		{Type: AssertFlagsAllUnset},
	}, actx)

	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "flags_all_unset")
	assert.Contains(t, failures[0], "expected all_unset=true, got all_unset=false")
}

func TestEvaluateAssertions_ExpectFalse(t *testing.T) {
	fs, err := flags.New(devmem.NewSim(), 1)
	require.NoError(t, err)
	defer fs.Close()

	expectFalse := false
	actx := &AssertionContext{Ctx: context.Background(), Flags: fs}

	failures := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFlagsAllSetOnce, Expect: &expectFalse},
		{Type: AssertFlagsAllUnset},
	}, actx)
	assert.Empty(t, failures)
}

func TestEvaluateAssertions_ChannelOnce(t *testing.T) {
	tr := tracer.New()
	defer tr.Close()

	ch := tr.Channel()
	ch.OnValue(nil)
	ch.OnValue(nil)
	ch.OnStopped()

	actx := &AssertionContext{Ctx: context.Background(), Tracer: tr}
	expectFalse := false

	failures := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertChannelOnce, Channel: ChannelValue, Expect: &expectFalse},
		{Type: AssertChannelOnce, Channel: ChannelStopped},
		{Type: AssertChannelOnce, Channel: ChannelError, Expect: &expectFalse},
	}, actx)
	assert.Empty(t, failures)
}

func TestEvaluateAssertions_StoreCounts(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.WriteSignal(ctx, store.SignalEvent{RunToken: "run-1", Node: "a", FlagIndex: 0, Seq: 1}))
	require.NoError(t, st.WriteSignal(ctx, store.SignalEvent{RunToken: "run-1", Node: "b", FlagIndex: 0, Seq: 2}))
	require.NoError(t, st.WriteCompletion(ctx, store.CompletionEvent{RunToken: "run-1", Channel: "value", Seq: 3}))

	actx := &AssertionContext{Ctx: ctx, Store: st, RunToken: "run-1"}

	failures := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertSignalCount, Flag: 0, Count: 2},
		{Type: AssertChannelCalled, Channel: ChannelValue, Count: 1},
		{Type: AssertChannelCalled, Channel: ChannelStopped, Count: 0},
	}, actx)
	assert.Empty(t, failures)

	failures = EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertSignalCount, Flag: 0, Count: 1},
	}, actx)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "flag 0 signaled 1 time(s)")
	assert.Contains(t, failures[0], "got flag 0 signaled 2 time(s)")
}

func TestEvaluateAssertions_CollectsEveryFailure(t *testing.T) {
	tr := tracer.New()
	defer tr.Close()

	actx := &AssertionContext{Ctx: context.Background(), Tracer: tr}
	failures := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertChannelOnce, Channel: ChannelValue},
		{Type: AssertTopology, Nodes: 1, Edges: 1},
		{Type: AssertTraceContains, Event: "signal:a"},
	}, actx)
	assert.Len(t, failures, 3)
}
