package verify

import (
	"fmt"
	"strings"

	"traceverify/internal/compare"
)

// State is a terminal verification state. Every run ends in exactly one.
type State string

const (
	// StateMatched means an attempt produced an observed document
	// satisfying the expectation.
	StateMatched State = "MATCHED"

	// StateExhausted means the retry budget ran out without a match.
	StateExhausted State = "EXHAUSTED"
)

// Attempt outcome labels.
const (
	OutcomeMatched    = "matched"
	OutcomeMismatch   = "mismatch"
	OutcomeProbeError = "probe_error"
)

// Attempt records the outcome of a single probe cycle.
type Attempt struct {
	// Number is the 1-based attempt counter.
	Number int `json:"number"`

	// Outcome is one of the Outcome* labels.
	Outcome string `json:"outcome"`

	// Detail is a human-readable description of a failed attempt:
	// the first mismatch path or the probe error.
	Detail string `json:"detail,omitempty"`
}

// Report is the full record of a verification run. It is the payload
// rendered to the CI log; the process exit code carries the gate signal.
type Report struct {
	// RunID correlates log lines and report output for one invocation.
	RunID string `json:"run_id"`

	// ExpectedFile is the expectation document path, for context in CI logs.
	ExpectedFile string `json:"expected_file"`

	// State is the terminal state of the run.
	State State `json:"state"`

	// Attempts lists every probe cycle performed, in order.
	Attempts []Attempt `json:"attempts"`

	// Mismatches holds the divergences from the last compared attempt.
	// Empty when the run matched or never reached a comparison.
	Mismatches []compare.Mismatch `json:"mismatches,omitempty"`
}

// addAttempt appends an attempt record.
func (r *Report) addAttempt(outcome, detail string) {
	r.Attempts = append(r.Attempts, Attempt{
		Number:  len(r.Attempts) + 1,
		Outcome: outcome,
		Detail:  detail,
	})
}

// Summary renders the report as human-readable text.
func (r *Report) Summary() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Verification %s (run %s, %d attempt(s), expected %s)\n",
		r.State, r.RunID, len(r.Attempts), r.ExpectedFile)
	for _, a := range r.Attempts {
		if a.Detail != "" {
			fmt.Fprintf(&buf, "  [%d] %s: %s\n", a.Number, a.Outcome, a.Detail)
		} else {
			fmt.Fprintf(&buf, "  [%d] %s\n", a.Number, a.Outcome)
		}
	}
	if r.State == StateExhausted && len(r.Mismatches) > 0 {
		fmt.Fprintf(&buf, "Mismatches on final comparison:\n")
		for _, m := range r.Mismatches {
			fmt.Fprintf(&buf, "  %s\n", m)
		}
	}

	return buf.String()
}
