package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-reasoning-server/internal/setup"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestSetupCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")

	out := execute(t, "setup", "--client-config", path, "--binary", "/opt/cds/mcp-server", "--data-dir", "/srv/cds")
	assert.Contains(t, out, "Registered")

	config, err := setup.LoadClientConfig(path)
	require.NoError(t, err)
	require.Contains(t, config.MCPServers, setup.ServerName)
	assert.Equal(t, "/srv/cds", config.MCPServers[setup.ServerName].Env["CDS_DATA_DIR"])

	out = execute(t, "setup", "status", "--client-config", path)
	assert.Contains(t, out, "Registered: true")
	assert.Contains(t, out, "server binary not found")

	out = execute(t, "setup", "remove", "--client-config", path)
	assert.Contains(t, out, "Removed")
}
