package cmd

import (
	"bytes"
	"os"
	"path/filepath"
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
	t.Cleanup(func() {
		cfgFile = ""
		forceInit = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "desk version")
}

func TestConfigInitThenValidate(t *testing.T) {
	t.Setenv("OPENALGO_API_KEY", "secret-key-1234")
	path := filepath.Join(t.TempDir(), "desk.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, "config", "init", path)
	assert.ErrorContains(t, err, "already exists")

	out, err = run(t, "-c", path, "--env-file", "", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "secret-key")
}

func TestOrdersPendingOnEmptyLedger(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DESK_LEDGER_PATH", filepath.Join(dir, "orders.json"))
	t.Setenv("DESK_SETTINGS_PATH", filepath.Join(dir, "settings.json"))

	out, err := run(t, "--env-file", "", "orders", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "[]")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", mask(""))
	assert.Equal(t, "****cdef", mask("abcdef"))
}
