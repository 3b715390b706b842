package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Completion channel names used in scenarios, assertions, and the trace
// store.
const (
	ChannelValue   = "value"
	ChannelStopped = "stopped"
	ChannelError   = "error"
)

// Scenario defines one verification run: a flag set, a graph of signaling
// nodes, the launch outcome to provoke, and assertions over the result.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario verifies.
	Description string `yaml:"description"`

	// RunToken pins the run token for deterministic traces. If empty, a
	// fresh UUID is drawn. Golden scenarios must set it.
	RunToken string `yaml:"run_token,omitempty"`

	// Flags is the number of completion counters (N >= 1).
	Flags int `yaml:"flags"`

	// Nodes describes the execution graph. Dependencies may only name
	// nodes defined earlier in the list, which keeps the graph acyclic.
	Nodes []NodeStep `yaml:"nodes,omitempty"`

	// Cancel launches the graph with an already-cancelled context, driving
	// the stopped completion channel.
	Cancel bool `yaml:"cancel,omitempty"`

	// Refire issues extra completion calls directly against the channel
	// after the launch, to provoke recordable misuse (double fires,
	// multi-channel fires).
	Refire []RefireStep `yaml:"refire,omitempty"`

	// Assertions validate flag counters, completion channels, topology,
	// and the event trace.
	Assertions []Assertion `yaml:"assertions"`
}

// NodeStep describes one graph node.
type NodeStep struct {
	// Name is the node's identifier within the graph.
	Name string `yaml:"name"`

	// After lists dependency node names (edges into this node).
	After []string `yaml:"after,omitempty"`

	// Signals lists the flag indices this node fires, in order.
	Signals []int `yaml:"signals,omitempty"`

	// Fail makes the node's operation return an error, driving the error
	// completion channel.
	Fail bool `yaml:"fail,omitempty"`
}

// RefireStep issues extra completion calls against the tracer's channel.
type RefireStep struct {
	// Channel is one of "value", "stopped", or "error".
	Channel string `yaml:"channel"`

	// Times is how many extra calls to issue (>= 1).
	Times int `yaml:"times"`
}

// Assertion validates one aspect of a run.
type Assertion struct {
	// Type selects the assertion:
	//   - "flags_all_set_once": AllSetOnce matches expect
	//   - "flags_all_unset":    AllUnset matches expect
	//   - "channel_called":     channel fired exactly count times
	//   - "channel_once":       the exactly-once accessor matches expect
	//   - "topology":           captured node/edge counts match
	//   - "trace_contains":     event key appears in the trace
	//   - "trace_order":        event keys appear in order
	//   - "signal_count":       flag was signaled exactly count times (SQL)
	Type string `yaml:"type"`

	// Expect is the expected boolean outcome for flags_all_set_once,
	// flags_all_unset, and channel_once. Defaults to true.
	Expect *bool `yaml:"expect,omitempty"`

	// Channel names a completion channel (channel_called, channel_once).
	Channel string `yaml:"channel,omitempty"`

	// Count is the expected occurrence count (channel_called, signal_count).
	Count int `yaml:"count,omitempty"`

	// Nodes and Edges are the expected topology counts (topology).
	Nodes int `yaml:"nodes,omitempty"`
	Edges int `yaml:"edges,omitempty"`

	// Flag is the counter index to count (signal_count).
	Flag int `yaml:"flag,omitempty"`

	// Event is a trace event key like "signal:a" or "completion:value"
	// (trace_contains).
	Event string `yaml:"event,omitempty"`

	// Events lists trace event keys in expected order (trace_order).
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertFlagsAllSetOnce = "flags_all_set_once"
	AssertFlagsAllUnset   = "flags_all_unset"
	AssertChannelCalled   = "channel_called"
	AssertChannelOnce     = "channel_once"
	AssertTopology        = "topology"
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
	AssertSignalCount     = "signal_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Flags < 1 {
		return fmt.Errorf("flags must be at least 1, got %d", s.Flags)
	}

	defined := make(map[string]struct{}, len(s.Nodes))
	for i, node := range s.Nodes {
		if node.Name == "" {
			return fmt.Errorf("nodes[%d]: name is required", i)
		}
		if _, dup := defined[node.Name]; dup {
			return fmt.Errorf("nodes[%d]: duplicate node name %q", i, node.Name)
		}
		for _, dep := range node.After {
			if _, ok := defined[dep]; !ok {
				return fmt.Errorf("nodes[%d]: dependency %q must be defined earlier", i, dep)
			}
		}
		for _, idx := range node.Signals {
			if idx < 0 || idx >= s.Flags {
				return fmt.Errorf("nodes[%d]: signal index %d out of range [0, %d)", i, idx, s.Flags)
			}
		}
		defined[node.Name] = struct{}{}
	}

	for i, rf := range s.Refire {
		if !validChannel(rf.Channel) {
			return fmt.Errorf("refire[%d]: unknown channel %q", i, rf.Channel)
		}
		if rf.Times < 1 {
			return fmt.Errorf("refire[%d]: times must be at least 1, got %d", i, rf.Times)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, s.Flags); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, flagCount int) error {
	switch a.Type {
	case AssertFlagsAllSetOnce, AssertFlagsAllUnset:
		// Expect is optional and defaults to true.
	case AssertChannelCalled:
		if !validChannel(a.Channel) {
			return fmt.Errorf("assertions[%d]: channel is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertChannelOnce:
		if !validChannel(a.Channel) {
			return fmt.Errorf("assertions[%d]: channel is required for %s", index, a.Type)
		}
	case AssertTopology:
		if a.Nodes < 0 || a.Edges < 0 {
			return fmt.Errorf("assertions[%d]: nodes and edges must be non-negative", index)
		}
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order needs at least two events", index)
		}
	case AssertSignalCount:
		if a.Flag < 0 || a.Flag >= flagCount {
			return fmt.Errorf("assertions[%d]: flag %d out of range [0, %d)", index, a.Flag, flagCount)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validChannel(c string) bool {
	switch c {
	case ChannelValue, ChannelStopped, ChannelError:
		return true
	}
	return false
}
