package harness

// Step kinds recorded in the trace.
const (
	KindImport     = "import"
	KindEditSource = "edit_source"
	KindEditDest   = "edit_dest"
	KindUpdate     = "update"
)

// TraceEvent records the observable outcome of one scenario step.
// It carries counts and codes only, never generated identities, so traces
// are stable across identity generators.
type TraceEvent struct {
	Step      int      `json:"step"`
	Kind      string   `json:"kind"`
	Nodes     int      `json:"nodes"`
	Merged    int      `json:"merged,omitempty"`
	Added     int      `json:"added,omitempty"`
	Removed   int      `json:"removed,omitempty"`
	Skipped   int      `json:"skipped,omitempty"`
	Conflicts int      `json:"conflicts,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
