package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/config"
)

// testWorkspace isolates a command run: a temp database, a temp spool and
// no config from the environment.
type testWorkspace struct {
	dir   string
	db    string
	spool string
}

func newTestWorkspace(t *testing.T) *testWorkspace {
	t.Helper()
	dir := t.TempDir()
	w := &testWorkspace{
		dir:   dir,
		db:    filepath.Join(dir, "test.db"),
		spool: filepath.Join(dir, "spool"),
	}
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvSpoolDir, w.spool)
	return w
}

// run executes the root command with --db set and returns stdout.
func (w *testWorkspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--db", w.db}, args...)...)
}

// runJSON executes with --format json and decodes the envelope.
func (w *testWorkspace) runJSON(t *testing.T, data any, args ...string) (CLIResponse, error) {
	t.Helper()
	out, err := w.run(t, append([]string{"--format", "json"}, args...)...)
	return decodeResponse(t, out, data), err
}

// writeFile writes content under the workspace and returns its path.
func (w *testWorkspace) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(w.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// decodeResponse parses a JSON envelope, decoding Data into data when
// data is non-nil.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

const newsletterYAML = `id: "gmail:1"
source: gmail
sender: news@techweekly.io
subject: Weekly Tech Digest
body: newsletter update?
`

const contractYAML = `id: "gmail:2"
source: gmail
sender: client@acme.com
subject: "Urgent: Contract Review Needed"
body: urgent contract schedule a call
`
