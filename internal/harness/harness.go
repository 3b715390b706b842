// Package harness runs verification scenarios against the completion
// signaling core.
//
// A scenario describes a flag set, a graph of signaling nodes, and the
// launch outcome to provoke. The harness wires the real components together
// (simulated device allocator, flag set, tracer, execution graph), drives
// one launch through the scheduler, then evaluates assertions over the flag
// counters, the tracer's completion record, and the per-run event trace.
//
// # Scenario format
//
// Scenarios are YAML files:
//
//	name: fanout_all_fire
//	description: "Every parallel node signals its flag exactly once"
//	run_token: fixed-token-for-goldens
//	flags: 3
//	nodes:
//	  - name: a
//	    signals: [0]
//	  - name: b
//	    signals: [1]
//	  - name: c
//	    after: [a, b]
//	    signals: [2]
//	assertions:
//	  - type: flags_all_set_once
//	  - type: channel_once
//	    channel: value
//	  - type: topology
//	    nodes: 3
//	    edges: 2
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cpoole/graphwitness/internal/devmem"
	"github.com/cpoole/graphwitness/internal/flags"
	"github.com/cpoole/graphwitness/internal/graph"
	"github.com/cpoole/graphwitness/internal/locus"
	"github.com/cpoole/graphwitness/internal/store"
	"github.com/cpoole/graphwitness/internal/testutil"
	"github.com/cpoole/graphwitness/internal/tracer"
)

// TokenGenerator produces run tokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDTokenGenerator draws a fresh UUID per run.
type UUIDTokenGenerator struct{}

// Generate returns a new UUID string.
func (UUIDTokenGenerator) Generate() string {
	return uuid.NewString()
}

// Run executes a scenario and returns its result. Unpinned run tokens are
// drawn from a fresh UUID per run.
func Run(scenario *Scenario) (*Result, error) {
	return RunWith(scenario, UUIDTokenGenerator{})
}

// RunWith executes a scenario with the given token generator deciding the
// run token when the scenario does not pin one.
//
// Each scenario runs against a fresh in-memory trace store, a fresh
// simulated device arena, and a fresh tracer-owned graph, so runs are fully
// isolated. Errors returned are harness failures (resource acquisition,
// copy-back, leaked allocations); assertion failures are reported through
// the result instead.
func RunWith(scenario *Scenario, gen TokenGenerator) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // quiet inside test runs
	logger.Debug("harness starting", "locus", locus.Probe())

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	token := scenario.RunToken
	if token == "" {
		token = gen.Generate()
	}

	ctx := context.Background()
	rec := newRecorder(st, testutil.NewSeqClock(), token)

	alloc := devmem.NewSim()
	fs, err := flags.New(alloc, scenario.Flags)
	if err != nil {
		return nil, fmt.Errorf("failed to create flag set: %w", err)
	}
	tr := tracer.New()

	if err := buildGraph(scenario, tr.Graph(), fs.Handle(), rec); err != nil {
		return nil, err
	}

	consumer := tr.Consumer()
	// Generic dispatch: only graph-native sinks may terminate a launch.
	if !graph.IsGraphNative(consumer) {
		return nil, errors.New("tracer consumer does not implement graph-native completion")
	}
	if scratch := graph.ScratchFor(consumer); scratch != nil {
		logger.Debug("sink advertised scratch storage", "bytes", len(scratch))
	}
	if err := tr.Graph().Attach(consumer); err != nil {
		return nil, fmt.Errorf("failed to attach consumer: %w", err)
	}

	launchCtx := ctx
	if scenario.Cancel {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		launchCtx = cancelled
	}
	if err := graph.Launch(launchCtx, tr.Graph()); err != nil {
		return nil, fmt.Errorf("failed to launch graph: %w", err)
	}

	// Record the single outcome the launch drove. The launcher fires
	// exactly one channel, so at most one of these holds before refires.
	switch {
	case tr.ValueCalled():
		err = rec.completion(ChannelValue)
	case tr.StoppedCalled():
		err = rec.completion(ChannelStopped)
	case tr.ErrorCalled():
		err = rec.completion(ChannelError)
	}
	if err != nil {
		return nil, err
	}

	if err := refire(scenario, tr.Channel(), rec); err != nil {
		return nil, err
	}

	result := NewResult()
	result.Trace = rec.events()

	summary, err := buildSummary(ctx, scenario, st, fs, tr, token)
	if err != nil {
		return nil, err
	}
	result.Summary = summary

	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		Flags:    fs,
		Tracer:   tr,
		RunToken: token,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	// Teardown releases every owned resource exactly once; a leak is a
	// harness failure, not an assertion failure.
	if err := fs.Close(); err != nil {
		return nil, fmt.Errorf("failed to release flag storage: %w", err)
	}
	if err := tr.Close(); err != nil {
		return nil, fmt.Errorf("failed to destroy tracer graph: %w", err)
	}
	if n := alloc.Live(); n != 0 {
		return nil, fmt.Errorf("%d device allocation(s) leaked after teardown", n)
	}

	logger.Info("scenario completed",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace),
	)
	return result, nil
}

// buildGraph adds one graph node per scenario step. Each node's operation
// fires its flag indices through the writer view and records a signal event.
func buildGraph(scenario *Scenario, h graph.Handle, fh flags.Flags, rec *recorder) error {
	ids := make(map[string]graph.NodeID, len(scenario.Nodes))
	for _, step := range scenario.Nodes {
		step := step
		op := func(ctx context.Context) error {
			for _, idx := range step.Signals {
				fh.Set(idx)
				if err := rec.signal(step.Name, idx); err != nil {
					return err
				}
			}
			if step.Fail {
				return fmt.Errorf("node %s: injected failure", step.Name)
			}
			return nil
		}

		deps := make([]graph.NodeID, 0, len(step.After))
		for _, dep := range step.After {
			deps = append(deps, ids[dep])
		}

		id, err := h.AddNode(step.Name, op, deps...)
		if err != nil {
			return fmt.Errorf("failed to add node %q: %w", step.Name, err)
		}
		ids[step.Name] = id
	}
	return nil
}

// refire issues the scenario's extra completion calls directly against the
// channel, provoking the misuse the exactly-once assertions detect.
func refire(scenario *Scenario, ch *tracer.Channel, rec *recorder) error {
	for _, rf := range scenario.Refire {
		for i := 0; i < rf.Times; i++ {
			switch rf.Channel {
			case ChannelValue:
				ch.OnValue(nil)
			case ChannelStopped:
				ch.OnStopped()
			case ChannelError:
				ch.OnError(errors.New("injected refire failure"))
			}
			if err := rec.completion(rf.Channel); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildSummary(ctx context.Context, scenario *Scenario, st *store.Store, fs *flags.FlagSet, tr *tracer.Tracer, token string) (Summary, error) {
	counts, err := fs.Counters()
	if err != nil {
		// Copy-back failure is fatal, never folded into "not all set".
		return Summary{}, err
	}
	allOnce, err := fs.AllSetOnce()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		RunToken:   token,
		FlagCounts: counts,
		AllSetOnce: allOnce,
		NodeCount:  tr.NodeCount(),
		EdgeCount:  tr.EdgeCount(),
	}
	for channel, dst := range map[string]*int{
		ChannelValue:   &summary.ValueCompletions,
		ChannelStopped: &summary.StoppedCompletions,
		ChannelError:   &summary.ErrorCompletions,
	} {
		n, err := st.CompletionCount(ctx, token, channel)
		if err != nil {
			return Summary{}, err
		}
		*dst = n
	}
	return summary, nil
}

// recorder stamps events with logical sequence numbers and writes them to
// the trace store. Signals arrive from parallel node goroutines, so the
// in-memory trace is mutex-guarded; store writes use a background context
// because a cancelled launch must not lose already-issued events.
type recorder struct {
	mu    sync.Mutex
	store *store.Store
	clock *testutil.SeqClock
	token string
	trace []TraceEvent
}

func newRecorder(st *store.Store, clock *testutil.SeqClock, token string) *recorder {
	return &recorder{store: st, clock: clock, token: token}
}

func (r *recorder) signal(node string, flag int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	r.trace = append(r.trace, TraceEvent{Type: EventSignal, Node: node, Flag: flag, Seq: seq})
	if err := r.store.WriteSignal(context.Background(), store.SignalEvent{
		RunToken:  r.token,
		Node:      node,
		FlagIndex: flag,
		Seq:       seq,
	}); err != nil {
		return fmt.Errorf("failed to record signal: %w", err)
	}
	return nil
}

func (r *recorder) completion(channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.clock.Next()
	r.trace = append(r.trace, TraceEvent{Type: EventCompletion, Channel: channel, Seq: seq})
	if err := r.store.WriteCompletion(context.Background(), store.CompletionEvent{
		RunToken: r.token,
		Channel:  channel,
		Seq:      seq,
	}); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}

func (r *recorder) events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.trace))
	copy(out, r.trace)
	return out
}
