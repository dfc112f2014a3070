package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen/tuition-engine/config"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "tuition.db", cfg.Store.Path)
	assert.Empty(t, cfg.Gateway.ServerKey)
	assert.Equal(t, 10*time.Second, cfg.Gateway.VerifyTimeout())
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	// A partial file only overrides what it names; the rest stays default.
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9000

[gateway]
server_key = "SB-Mid-server-test"
timeout_seconds = 3
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "tuition.db", cfg.Store.Path, "unnamed section keeps its default")
	assert.Equal(t, "SB-Mid-server-test", cfg.Gateway.ServerKey)
	assert.False(t, cfg.Gateway.Production)
	assert.Equal(t, 3*time.Second, cfg.Gateway.VerifyTimeout())
}

func TestLoad_NamedMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestVerifyTimeout_NonPositiveFallsBack(t *testing.T) {
	gw := config.GatewayConfig{TimeoutSeconds: 0}
	assert.Equal(t, 10*time.Second, gw.VerifyTimeout())

	gw.TimeoutSeconds = -5
	assert.Equal(t, 10*time.Second, gw.VerifyTimeout())
}
