package harness

// Trace event type constants.
const (
	EventSignal     = "signal"
	EventCompletion = "completion"
)

// TraceEvent is one entry in a run's event trace: either a flag signal
// issued by a graph node or a completion channel firing.
type TraceEvent struct {
	Type    string `json:"type"` // "signal" or "completion"
	Node    string `json:"node,omitempty"`
	Flag    int    `json:"flag"`
	Channel string `json:"channel,omitempty"`
	Seq     int64  `json:"seq"`
}

// Key returns the compact form used by trace assertions:
// "signal:<node>" or "completion:<channel>".
func (e TraceEvent) Key() string {
	if e.Type == EventSignal {
		return EventSignal + ":" + e.Node
	}
	return EventCompletion + ":" + e.Channel
}

// Summary captures the host-visible verdicts of a run for reporting.
type Summary struct {
	RunToken           string  `json:"run_token"`
	FlagCounts         []int64 `json:"flag_counts"`
	AllSetOnce         bool    `json:"all_set_once"`
	ValueCompletions   int     `json:"value_completions"`
	StoppedCompletions int     `json:"stopped_completions"`
	ErrorCompletions   int     `json:"error_completions"`
	NodeCount          int     `json:"node_count"`
	EdgeCount          int     `json:"edge_count"`
}

// Result is the outcome of one scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace contains all signal and completion events in logical order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Summary carries the run's host-visible verdicts.
	Summary Summary `json:"summary"`
}

// NewResult creates a passing result to accumulate into.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
