package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "log:\n  level: error\n" +
		"database:\n  path: " + filepath.Join(dir, "test.db") + "\n" +
		"telegram:\n  enabled: false\n" +
		"ledger:\n  starting_grant: 300\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAccountCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCmd(t, "account", "create", "alice@example.com", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "email=alice@example.com balance=300")

	out, err = runCmd(t, "account", "grant", "alice@example.com", "200", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "balance=500")

	out, err = runCmd(t, "account", "show", "1", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "id=1 email=alice@example.com balance=500")

	_, err = runCmd(t, "account", "grant", "alice@example.com", "-5", "-c", cfgPath)
	assert.Error(t, err)

	_, err = runCmd(t, "account", "show", "bob@example.com", "-c", cfgPath)
	assert.Error(t, err)
}

func TestAccountCreateWithGrant(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCmd(t, "account", "create", "carol@example.com", "--grant", "42", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "balance=42")
}

func TestMigrateCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCmd(t, "migrate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "dirty=false")
}
