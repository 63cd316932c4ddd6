package harness

import (
	"fmt"
	"strings"
)

// ActionEvent is one finalized action of a run.
type ActionEvent struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Parent  string `json:"parent,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Errors contains one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// Actions holds every finalized action in dispatch order, lifecycle
	// actions included.
	Actions []ActionEvent `json:"actions"`

	// Changed lists the paths notified after start, sorted.
	Changed []string `json:"changed"`

	// Dump is the store dump after stop.
	Dump any `json:"dump,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Actions: []ActionEvent{},
		Changed: []string{},
	}
}

// AddError adds an error message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AssertionError is a failed expectation with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Actions  []ActionEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Actions) > 0 {
		fmt.Fprintf(&buf, "\nActions:\n")
		for _, a := range e.Actions {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", a.Seq, a.Type, a.Payload)
		}
	}
	return buf.String()
}
