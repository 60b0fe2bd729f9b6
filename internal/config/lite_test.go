package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheSize)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.ReferenceRangesFile)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheSize)
	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("CDS_DATA_DIR", "/tmp/test-cds")
	t.Setenv("CDS_CACHE_SIZE", "500")
	t.Setenv("CDS_CACHE_TTL", "1h")
	t.Setenv("CDS_HTTP_PORT", "9090")
	t.Setenv("CDS_LOG_LEVEL", "debug")
	t.Setenv("CDS_LOG_FORMAT", "text")
	t.Setenv("CDS_REFERENCE_RANGES_FILE", "/etc/cds/ranges.yaml")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-cds", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheSize)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/etc/cds/ranges.yaml", cfg.ReferenceRangesFile)
}

func TestLoadLiteConfig_InvalidValuesIgnored(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("CDS_CACHE_SIZE", "-1")
	t.Setenv("CDS_CACHE_TTL", "soon")
	t.Setenv("CDS_HTTP_PORT", "70000")

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.CacheSize)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestLiteConfig_AuditDBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.cds-server"}

	assert.Equal(t, "/home/user/.cds-server/audit.db", cfg.AuditDBPath())
}

func TestLiteConfig_ExportDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.cds-server"}

	assert.Equal(t, "/home/user/.cds-server/exports", cfg.ExportDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "cds")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"CDS_DATA_DIR",
		"CDS_CACHE_SIZE",
		"CDS_CACHE_TTL",
		"CDS_HTTP_PORT",
		"CDS_LOG_LEVEL",
		"CDS_LOG_FORMAT",
		"CDS_REFERENCE_RANGES_FILE",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
