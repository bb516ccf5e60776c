package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// env is a scratch workspace with a config file and database path.
type env struct {
	dir    string
	config string
	db     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:    dir,
		config: filepath.Join(dir, "witnessgen.yaml"),
		db:     filepath.Join(dir, "witnessgen.db"),
	}
	cfg := `blobs:
  backend: file
  path: ` + filepath.Join(dir, "blobs") + `
topology:
  group_sizes:
    leaf_aggregation: 2
logging:
  level: error
`
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o644))
	return e
}

// run executes the root command with the env's config and database.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), args...)
}

func (e *env) runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// writeBatch writes a submission file with one base circuit.
func (e *env) writeBatch(t *testing.T, batch int, witnesses ...string) string {
	t.Helper()
	path := filepath.Join(e.dir, "batch.yaml")
	data := "batch_number: " + strconv.Itoa(batch) + `
protocol_version: 24
sealed_at: 2026-03-01T12:00:00Z
scheduler_input: scheduler
circuits:
  - circuit_id: 1
    witnesses: [`
	for i, w := range witnesses {
		if i > 0 {
			data += ", "
		}
		data += w
	}
	data += "]\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

// decode unmarshals a JSON CLIResponse, with Data decoded into data.
func decode(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

func writeFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0o644)
}
