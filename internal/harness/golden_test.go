package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_SingleCircuit(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "single_circuit.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalSnapshot_OmitsEmptyCode(t *testing.T) {
	data, err := MarshalSnapshot(TraceSnapshot{
		ScenarioName: "x",
		Trace:        []TraceEvent{{Seq: 1, Type: EventSuccessful, Round: "scheduler"}},
	})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"code"`)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}
