package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfig_Missing(t *testing.T) {
	config, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, config.MCPServers)
}

func TestRegister_PreservesOtherEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{
  "theme": "dark",
  "mcpServers": {"other": {"command": "/usr/bin/other"}}
}`), 0644))

	entry, err := Register(path, Options{BinaryPath: "/opt/cds/mcp-server", DataDir: "/data/cds", LogLevel: "warn"})
	require.NoError(t, err)
	assert.Equal(t, []string{"serve"}, entry.Args)

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Contains(t, config.MCPServers, "other")
	require.Contains(t, config.MCPServers, ServerName)
	assert.Equal(t, "/data/cds", config.MCPServers[ServerName].Env["CDS_DATA_DIR"])
	assert.Equal(t, "warn", config.MCPServers[ServerName].Env["CDS_LOG_LEVEL"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"theme": "dark"`)
}

func TestRegister_RequiresBinary(t *testing.T) {
	_, err := Register(filepath.Join(t.TempDir(), "config.json"), Options{})
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	removed, err := Unregister(path)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = Register(path, Options{BinaryPath: "/opt/cds/mcp-server"})
	require.NoError(t, err)

	removed, err = Unregister(path)
	require.NoError(t, err)
	assert.True(t, removed)

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.NotContains(t, config.MCPServers, ServerName)
}

func TestGetStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	status, err := GetStatus(path, "/default/data")
	require.NoError(t, err)
	assert.False(t, status.Configured)
	assert.Equal(t, "/default/data", status.DataDir)

	binary := filepath.Join(dir, "mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))
	_, err = Register(path, Options{BinaryPath: binary, DataDir: filepath.Join(dir, "data")})
	require.NoError(t, err)

	status, err = GetStatus(path, "/default/data")
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Equal(t, binary, status.Command)
	assert.Equal(t, filepath.Join(dir, "data"), status.DataDir)
	assert.Empty(t, status.Issues)
}

func TestGetStatus_MissingBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := Register(path, Options{BinaryPath: "/nonexistent/mcp-server"})
	require.NoError(t, err)

	status, err := GetStatus(path, "")
	require.NoError(t, err)
	require.Len(t, status.Issues, 1)
	assert.Contains(t, status.Issues[0], "not found")
}
