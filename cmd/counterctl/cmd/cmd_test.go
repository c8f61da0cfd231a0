package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCounterctl_SQLiteWorkflow(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	url := "sqlite://" + filepath.Join(dir, "counters.db")

	seedFile := filepath.Join(dir, "counters.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
definitions:
  - sequence_code: INV
    components:
      - type: constant
        constant: INV
      - type: sequence_number
        length: 5
`), 0o600))

	_, err := run(t, "migrate", "up", "--db-url", url)
	require.NoError(t, err)

	out, err := run(t, "migrate", "version", "--db-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "version 2")

	out, err = run(t, "seed", seedFile, "--db-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 1 definitions")

	out, err = run(t, "next", "INV", "-n", "2", "--db-url", url)
	require.NoError(t, err)
	assert.Equal(t, []string{"INV00001", "INV00002"}, strings.Fields(out))

	out, err = run(t, "set", "INV", "99", "--db-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "set to 99")

	out, err = run(t, "show", "INV", "--db-url", url)
	require.NoError(t, err)
	assert.Regexp(t, `current value:\s+99\n`, out)

	out, err = run(t, "show", "--db-url", url)
	require.NoError(t, err)
	assert.Equal(t, "INV\n", out)

	out, err = run(t, "next", "INV", "-n", "1", "--db-url", url)
	require.NoError(t, err)
	assert.Equal(t, "INV00100\n", out)

	for i := 0; i < 2; i++ {
		out, err = run(t, "next", "INV", "-n", "1", "--idempotency-key", "batch-1", "--db-url", url)
		require.NoError(t, err)
		assert.Equal(t, "INV00101\n", out)
	}
}

func TestCounterctl_SeedDryRunRejectsInvalidFile(t *testing.T) {
	seedFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
definitions:
  - sequence_code: BAD
    sequence_type: hex
`), 0o600))

	_, err := run(t, "seed", seedFile, "--dry-run")
	assert.ErrorContains(t, err, "unknown sequence type")
}
