package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschaume/httptrail/internal/config"
)

func TestEmbeddedConfigLoads(t *testing.T) {
	data, err := getEmbeddedConfig("config")
	require.NoError(t, err)

	cfg, err := config.LoadFromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.AccessLog.Enabled)
	assert.Equal(t, "memory", cfg.Sinks.Store.Backend)
}

func TestGetEmbeddedConfig_ExtensionOptional(t *testing.T) {
	plain, err := getEmbeddedConfig("config")
	require.NoError(t, err)
	suffixed, err := getEmbeddedConfig("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, plain, suffixed)
}

func TestResolveServeConfig_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gw.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1234\n"), 0600))

	data, source, err := resolveServeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, source)
	assert.Contains(t, string(data), "port: 1234")
}

func TestResolveServeConfig_MissingExplicitPath(t *testing.T) {
	_, _, err := resolveServeConfig("/nonexistent/gw.yaml")
	require.Error(t, err)
}
