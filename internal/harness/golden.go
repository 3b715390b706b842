package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/cpoole/graphwitness/internal/canon"
)

// TraceSnapshot is the canonical-JSON view of one run's event trace, used
// for golden comparison. Scenarios snapshotted this way must pin their run
// token and use a linear node chain so the trace is byte-deterministic.
type TraceSnapshot struct {
	ScenarioName string
	RunToken     string
	Trace        []TraceEvent
}

// toCanonicalMap lowers the snapshot into the generic shape the canonical
// encoder accepts. Signal events carry node and flag; completion events
// carry channel; both carry type and seq.
func toCanonicalMap(s TraceSnapshot) map[string]any {
	trace := make([]any, 0, len(s.Trace))
	for _, ev := range s.Trace {
		m := map[string]any{
			"type": ev.Type,
			"seq":  ev.Seq,
		}
		switch ev.Type {
		case EventSignal:
			m["node"] = ev.Node
			m["flag"] = ev.Flag
		case EventCompletion:
			m["channel"] = ev.Channel
		}
		trace = append(trace, m)
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
	if s.RunToken != "" {
		out["run_token"] = s.RunToken
	}
	return out
}

// MarshalSnapshot encodes the snapshot as canonical JSON.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	return canon.Marshal(toCanonicalMap(s))
}

// RunWithGolden runs the scenario, asserts it passed, and compares its
// canonical trace against testdata/golden/<name>.golden. Update fixtures
// with `go test -update`.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	if !result.Pass {
		t.Fatalf("scenario %s failed: %v", scenario.Name, result.Errors)
	}

	data, err := MarshalSnapshot(TraceSnapshot{
		ScenarioName: scenario.Name,
		RunToken:     scenario.RunToken,
		Trace:        result.Trace,
	})
	if err != nil {
		t.Fatalf("scenario %s: failed to encode trace: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result
}
