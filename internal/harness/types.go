package harness

// Modes a scenario runs in.
const (
	ModeTags   = "tags"
	ModeNoTags = "no-tags"
)

// TraceEvent records one executed flow step in one mode.
type TraceEvent struct {
	Mode      string   `json:"mode"`
	Step      string   `json:"step"`
	Strategy  string   `json:"strategy,omitempty"`
	Explain   []string `json:"explain,omitempty"`
	Keys      []string `json:"keys"`
	Values    [][]any  `json:"values,omitempty"`
	Pulled    int      `json:"pulled"`
	Downloads int      `json:"downloads"`
	Deleted   int      `json:"deleted,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the executed steps, mode by mode in scenario order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Remaining holds the keys left in the store after the flow, by mode.
	Remaining map[string][]string `json:"remaining,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Remaining: make(map[string][]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an executed step.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}

// Event returns the trace event of step in mode.
func (r *Result) Event(mode, step string) (TraceEvent, bool) {
	for _, e := range r.Trace {
		if e.Mode == mode && e.Step == step {
			return e, true
		}
	}
	return TraceEvent{}, false
}
