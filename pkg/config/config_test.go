package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayrtc/core/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "gatewayrtc", cfg.Name)
	assert.Equal(t, 60*time.Second, cfg.SessionTimeout)
	assert.True(t, cfg.Transports.HTTP.Enabled)
	assert.False(t, cfg.Transports.AMQP.Enabled)
}

func TestLoadAppliesEnvOverDefaults(t *testing.T) {
	t.Setenv("GATEWAY_SESSION_TIMEOUT", "90s")
	t.Setenv("GATEWAY_WORKERS", "16")
	t.Setenv("GATEWAY_API_SECRET", "from-env")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.SessionTimeout)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, "from-env", cfg.APISecret)
}

func TestOptionsOverrideEnv(t *testing.T) {
	t.Setenv("GATEWAY_API_SECRET", "from-env")

	cfg, err := config.Load(config.WithAPISecret("from-option"))
	require.NoError(t, err)
	assert.Equal(t, "from-option", cfg.APISecret)
}

func TestFullTrickleDefaultsOffAndIsConfigurable(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.FullTrickle)

	t.Setenv("GATEWAY_FULL_TRICKLE", "true")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.FullTrickle)

	cfg, err = config.Load(config.WithFullTrickle(false))
	require.NoError(t, err)
	assert.False(t, cfg.FullTrickle)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("GATEWAY_SESSION_TIMEOUT", "not-a-duration")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsNoTransportsEnabled(t *testing.T) {
	t.Setenv("GATEWAY_HTTP_ENABLED", "false")
	t.Setenv("GATEWAY_WS_ENABLED", "false")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestWithYAMLFileLayersBeforeOptions(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("name: from-yaml\nworkers: 4\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := config.Load(config.WithYAMLFile(f.Name()), config.WithAPISecret("opt-secret"))
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Name)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "opt-secret", cfg.APISecret)
}
