package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strix.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":17221"
transport:
  backend: afpacket
  options:
    interface: eth0
`), 0o644))

	out, err := runCLI(t, "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "afpacket")
}

func TestValidateCommandMissingFile(t *testing.T) {
	_, err := runCLI(t, "validate", "-c", filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestValidateCommandBadBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strix.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  backend: carrier-pigeon
`), 0o644))

	_, err := runCLI(t, "validate", "-c", path)
	assert.ErrorContains(t, err, "unknown transport backend")
}

func TestStartCommandBadConfig(t *testing.T) {
	_, err := runCLI(t, "start", "-c", filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
