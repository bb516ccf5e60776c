package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound_Order(t *testing.T) {
	rs := Rounds()
	require.Len(t, rs, 5)
	for i := 1; i < len(rs); i++ {
		assert.Less(t, rs[i-1], rs[i])
	}
	assert.Equal(t, BasicCircuits, rs[0])
	assert.Equal(t, Scheduler, rs[len(rs)-1])
}

func TestRound_Names(t *testing.T) {
	for _, r := range Rounds() {
		parsed, err := ParseRound(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	_, err := ParseRound("final")
	assert.Error(t, err)

	assert.False(t, Round(9).Valid())
	assert.Equal(t, "round(9)", Round(9).String())
}

func TestRound_Text(t *testing.T) {
	data, err := json.Marshal(map[string]Round{"r": RecursionTip})
	require.NoError(t, err)
	assert.JSONEq(t, `{"r":"recursion_tip"}`, string(data))

	var back map[string]Round
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, RecursionTip, back["r"])

	_, err = json.Marshal(Round(9))
	assert.Error(t, err)
	assert.Error(t, json.Unmarshal([]byte(`"final"`), new(Round)))
}

func TestJSONFieldNaming(t *testing.T) {
	retry := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	job := Job{
		ID:          7,
		BatchNumber: 100,
		Round:       LeafAggregation,
		CircuitID:   3,
		Seq:         1,
		Status:      StatusFailed,
		InputURLs:   []string{"proofs/100_0_3_basic_circuits_0.bin"},
		RetryAt:     &retry,
	}
	data, err := json.Marshal(job)
	require.NoError(t, err)

	for _, field := range []string{`"batch_number"`, `"circuit_id"`, `"sequence_number"`, `"input_urls"`, `"retry_at"`, `"protocol_version"`} {
		assert.Contains(t, string(data), field)
	}
	assert.Contains(t, string(data), `"round":"leaf_aggregation"`)
	assert.NotContains(t, string(data), `"BatchNumber"`)
	assert.NotContains(t, string(data), `"output_url"`)
}

func TestJob_Coordinate(t *testing.T) {
	job := Job{BatchNumber: 5, Round: NodeAggregation, CircuitID: 4, Depth: 2, Seq: 3}
	c := job.Coordinate()
	assert.Equal(t, Coordinate{BatchNumber: 5, Round: NodeAggregation, CircuitID: 4, Depth: 2}, c)
	assert.Equal(t, "batch=5 round=node_aggregation circuit=4 depth=2", c.String())
}
