package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runSetup drives the real command tree (rootCmd -> setupCmd) the same way
// main() does, so flag inheritance (--data-dir lives on rootCmd's persistent
// flags) resolves exactly as it does at runtime.
func runSetup(t *testing.T, dataDir string, force bool) error {
	t.Helper()
	args := []string{"setup", "--data-dir", dataDir}
	if force {
		args = append(args, "--force")
	}
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestSetupCreatesMasterKeyFile(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested")
	require.NoError(t, runSetup(t, dataDir, false))

	raw, err := os.ReadFile(filepath.Join(dataDir, "encryption_key"))
	require.NoError(t, err)
	assert.Len(t, raw, 64, "key file must contain exactly 64 hex characters")
}

func TestSetupRefusesToOverwriteWithoutForce(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, runSetup(t, dataDir, false))

	before, err := os.ReadFile(filepath.Join(dataDir, "encryption_key"))
	require.NoError(t, err)

	assert.Error(t, runSetup(t, dataDir, false))

	after, readErr := os.ReadFile(filepath.Join(dataDir, "encryption_key"))
	require.NoError(t, readErr)
	assert.Equal(t, before, after, "key file must not change when setup is refused")
}

func TestSetupForceRegeneratesKey(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, runSetup(t, dataDir, false))
	before, err := os.ReadFile(filepath.Join(dataDir, "encryption_key"))
	require.NoError(t, err)

	require.NoError(t, runSetup(t, dataDir, true))
	after, err := os.ReadFile(filepath.Join(dataDir, "encryption_key"))
	require.NoError(t, err)

	assert.NotEqual(t, before, after, "force must regenerate the key")
}
