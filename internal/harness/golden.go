package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gasoline/internal/codec"
	"github.com/roach88/gasoline/internal/graph"
)

// goldenRecord is what a golden file pins down for one run.
type goldenRecord struct {
	Scenario string        `json:"scenario"`
	Actions  []ActionEvent `json:"actions"`
	Changed  []string      `json:"changed"`
	Dump     any           `json:"dump"`
}

// RunWithGolden runs scenario against root, requires every expectation to
// hold and compares the run with testdata/golden/<name>.golden.
//
// Update golden files with: go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, root graph.Node) *Result {
	t.Helper()

	result, err := Run(scenario, root)
	require.NoError(t, err, "scenario execution failed")
	require.True(t, result.Pass, "scenario failed: %v", result.Errors)

	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares the canonical JSON form of result with the golden
// file of name.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := GoldenBytes(name, result)
	require.NoError(t, err, "failed to marshal golden record")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// GoldenBytes renders the golden record of result. Dispatch times are
// left out; ids and sequence numbers are deterministic under Run.
func GoldenBytes(name string, result *Result) ([]byte, error) {
	return codec.MarshalCanonical(goldenRecord{
		Scenario: name,
		Actions:  result.Actions,
		Changed:  result.Changed,
		Dump:     result.Dump,
	})
}
