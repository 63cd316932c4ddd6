package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gasoline/internal/action"
)

// Scenario is a scripted store run with expectations.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Fixture names a built-in graph (see Fixtures). Required by
	// RunScenario, ignored by Run.
	Fixture string `yaml:"fixture,omitempty"`

	// Load is a dump loaded before the store starts.
	Load any `yaml:"load,omitempty"`

	// Steps run in order after start.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the last step.
	Expect Expect `yaml:"expect"`
}

// Step is either a dispatch or a virtual clock advance.
type Step struct {
	Dispatch *DispatchStep `yaml:"dispatch,omitempty"`
	Advance  time.Duration `yaml:"advance,omitempty"`
}

// DispatchStep dispatches one action.
type DispatchStep struct {
	Type    string   `yaml:"type"`
	Target  []string `yaml:"target,omitempty"`
	Payload any      `yaml:"payload,omitempty"`
	ReplyTo string   `yaml:"reply_to,omitempty"`

	// ExpectError, when set, requires the dispatch to fail with an error
	// containing it.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expect lists the expectations of a scenario. Empty fields are not
// checked.
type Expect struct {
	State   map[string]any `yaml:"state,omitempty"`
	Changed []string       `yaml:"changed,omitempty"`
	Actions []string       `yaml:"actions,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch {
		case step.Dispatch != nil && step.Advance != 0:
			return fmt.Errorf("steps[%d]: dispatch and advance are exclusive", i)
		case step.Dispatch != nil:
			if step.Dispatch.Type == "" {
				return fmt.Errorf("steps[%d]: dispatch type is required", i)
			}
		case step.Advance < 0:
			return fmt.Errorf("steps[%d]: advance must be positive", i)
		case step.Advance == 0:
			return fmt.Errorf("steps[%d]: dispatch or advance is required", i)
		}
	}

	for i, t := range s.Expect.Actions {
		if _, err := action.ParseType(t); err != nil {
			return fmt.Errorf("expect.actions[%d]: %w", i, err)
		}
	}
	return nil
}
