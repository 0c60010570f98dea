package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a query scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE file declaring the entity and named queries.
	// Relative paths are resolved against the scenario file.
	Schema string `yaml:"schema"`

	// Entity names the schema entity; optional when the file declares one.
	Entity string `yaml:"entity,omitempty"`

	// Modes restricts the run to some modes; both when empty.
	Modes []string `yaml:"modes,omitempty"`

	// Setup lists the entities stored before the flow.
	Setup []EntitySeed `yaml:"setup"`

	// Flow contains the queries and deletes, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and the final store content.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// EntitySeed is one stored entity. Key is the locator's string form:
// "name" for blobs, "partition/row" for tables.
type EntitySeed struct {
	Key    string         `yaml:"key"`
	Fields map[string]any `yaml:"fields"`
}

// Delete modes of a flow step.
const (
	DeleteBatch       = "batch"
	DeleteTransaction = "transaction"
)

// FlowStep is one query or delete.
type FlowStep struct {
	// Name identifies the step in the trace and in assertions.
	Name string `yaml:"name"`

	// Query names a query declared in the schema file. Where, Select,
	// Take and Strategy are then taken from it unless set here.
	Query string `yaml:"query,omitempty"`

	Where                string `yaml:"where,omitempty"`
	Select               string `yaml:"select,omitempty"`
	AllowEmptyProjection bool   `yaml:"allow_empty_projection,omitempty"`
	Take                 int    `yaml:"take,omitempty"`
	Strategy             string `yaml:"strategy,omitempty"`

	// Delete turns the step into a batch delete ("batch" or "transaction").
	Delete string `yaml:"delete,omitempty"`

	// Expect checks the step's outcome in every mode.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Keys are the expected result keys, compared as a set.
	Keys []string `yaml:"keys,omitempty"`

	// Values maps a result key to its expected projected values.
	Values map[string][]any `yaml:"values,omitempty"`

	// Count is the expected number of results or deletions.
	Count *int `yaml:"count,omitempty"`

	// Deleted is the expected number of deleted entities.
	Deleted *int `yaml:"deleted,omitempty"`

	// Strategy maps a mode to the expected execution strategy.
	Strategy map[string]string `yaml:"strategy,omitempty"`

	// Error is the expected error code, e.g. CONFIG_MISUSE. It may be
	// restricted to one mode with ErrorMode.
	Error     string `yaml:"error,omitempty"`
	ErrorMode string `yaml:"error_mode,omitempty"`
}

// Assertion validates the trace or the final store content.
type Assertion struct {
	// Type is one of remaining, downloads, consistent.
	Type string `yaml:"type"`

	// Mode restricts remaining and selects the run for downloads.
	Mode string `yaml:"mode,omitempty"`

	// Step names the flow step (used by downloads).
	Step string `yaml:"step,omitempty"`

	// Keys are the expected remaining keys (used by remaining).
	Keys []string `yaml:"keys,omitempty"`

	// Count is the expected download count (used by downloads).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRemaining  = "remaining"
	AssertDownloads  = "downloads"
	AssertConsistent = "consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the schema path BEFORE validation
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// modes returns the modes the scenario runs in.
func (s *Scenario) modes() []string {
	if len(s.Modes) == 0 {
		return []string{ModeTags, ModeNoTags}
	}
	return s.Modes
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}

	for i, mode := range s.Modes {
		if !validMode(mode) {
			return fmt.Errorf("modes[%d]: unknown mode %q (want %s or %s)", i, mode, ModeTags, ModeNoTags)
		}
	}

	for i, seed := range s.Setup {
		if seed.Key == "" {
			return fmt.Errorf("setup[%d]: key is required", i)
		}
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Flow))
	for i, step := range s.Flow {
		if step.Name == "" {
			return fmt.Errorf("flow[%d]: name is required", i)
		}
		if names[step.Name] {
			return fmt.Errorf("flow[%d]: duplicate step name %q", i, step.Name)
		}
		names[step.Name] = true

		switch step.Delete {
		case "", DeleteBatch, DeleteTransaction:
		default:
			return fmt.Errorf("flow[%d]: unknown delete mode %q", i, step.Delete)
		}
		if step.Delete != "" && step.Select != "" {
			return fmt.Errorf("flow[%d]: delete steps cannot select", i)
		}
		if step.Expect != nil && step.Expect.ErrorMode != "" && !validMode(step.Expect.ErrorMode) {
			return fmt.Errorf("flow[%d].expect: unknown error_mode %q", i, step.Expect.ErrorMode)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, names); err != nil {
			return err
		}
	}

	return nil
}

func validMode(mode string) bool {
	return mode == ModeTags || mode == ModeNoTags
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Mode != "" && !validMode(a.Mode) {
		return fmt.Errorf("assertions[%d]: unknown mode %q", index, a.Mode)
	}

	switch a.Type {
	case AssertRemaining:
	case AssertDownloads:
		if a.Mode == "" {
			return fmt.Errorf("assertions[%d]: mode is required for downloads", index)
		}
		if !steps[a.Step] {
			return fmt.Errorf("assertions[%d]: unknown step %q", index, a.Step)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for downloads", index)
		}
	case AssertConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
