package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/entq/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string              `json:"scenario_name"`
	Trace        []TraceEvent        `json:"trace"`
	Remaining    map[string][]string `json:"remaining"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"mode":      event.Mode,
			"step":      event.Step,
			"keys":      anySlice(event.Keys),
			"pulled":    event.Pulled,
			"downloads": event.Downloads,
		}
		if event.Strategy != "" {
			eventMap["strategy"] = event.Strategy
		}
		if len(event.Explain) > 0 {
			eventMap["explain"] = anySlice(event.Explain)
		}
		if len(event.Values) > 0 {
			rows := make([]any, len(event.Values))
			for j, row := range event.Values {
				rows[j] = nonNull(row)
			}
			eventMap["values"] = rows
		}
		if event.Deleted != 0 {
			eventMap["deleted"] = event.Deleted
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		traceList[i] = eventMap
	}

	remaining := make(map[string]any, len(s.Remaining))
	for mode, keys := range s.Remaining {
		remaining[mode] = anySlice(keys)
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"remaining":     remaining,
	}
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// nonNull replaces nulls (absent projected fields), which canonical JSON
// cannot carry, with a marker string.
func nonNull(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v == nil {
			v = "<null>"
		}
		out[i] = v
	}
	return out
}

// Snapshot renders the trace and remaining keys of a result as canonical
// JSON, the format of golden files.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Remaining:    result.Remaining,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
