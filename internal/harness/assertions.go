package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s/%s %s keys=%v", i+1, event.Mode, event.Step, event.Strategy, event.Keys)
		if event.Error != "" {
			fmt.Fprintf(&buf, " error=%s", event.Error)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages; empty when all hold.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRemaining:
			err = assertRemaining(result, a)
		case AssertDownloads:
			err = assertDownloads(result, a)
		case AssertConsistent:
			err = assertConsistent(result)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

// assertRemaining checks the keys left in the store after the flow.
func assertRemaining(result *Result, a Assertion) error {
	want := sorted(a.Keys)
	if want == nil {
		want = []string{}
	}
	modes := make([]string, 0, len(result.Remaining))
	for mode := range result.Remaining {
		if a.Mode == "" || a.Mode == mode {
			modes = append(modes, mode)
		}
	}
	slices.Sort(modes)

	for _, mode := range modes {
		got := result.Remaining[mode]
		if !slices.Equal(want, got) {
			return &AssertionError{
				Type:     AssertRemaining,
				Expected: fmt.Sprintf("%s: remaining %v", mode, want),
				Actual:   fmt.Sprintf("remaining %v", got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertDownloads checks the body download count of one step.
func assertDownloads(result *Result, a Assertion) error {
	event, ok := result.Event(a.Mode, a.Step)
	if !ok {
		return &AssertionError{
			Type:     AssertDownloads,
			Expected: fmt.Sprintf("step %s in mode %s", a.Step, a.Mode),
			Actual:   "not found in trace",
			Trace:    result.Trace,
		}
	}
	if event.Downloads != a.Count {
		return &AssertionError{
			Type:     AssertDownloads,
			Expected: fmt.Sprintf("%s/%s: %d downloads", a.Mode, a.Step, a.Count),
			Actual:   fmt.Sprintf("%d downloads", event.Downloads),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertConsistent checks that every step produced the same keys and the
// same error code in all modes.
func assertConsistent(result *Result) error {
	first := make(map[string]TraceEvent)
	for _, event := range result.Trace {
		prev, seen := first[event.Step]
		if !seen {
			first[event.Step] = event
			continue
		}
		if prev.Error != event.Error || !sameSet(prev.Keys, event.Keys) || prev.Deleted != event.Deleted {
			return &AssertionError{
				Type:     AssertConsistent,
				Expected: fmt.Sprintf("step %s: %s keys %v", event.Step, prev.Mode, sorted(prev.Keys)),
				Actual:   fmt.Sprintf("%s keys %v", event.Mode, sorted(event.Keys)),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}
