package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1000, cfg.MinLatencyUS)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.Strict)
}

func TestLoadWithoutFileOrEnv(t *testing.T) {
	t.Setenv(EnvMinLatency, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.MinLatencyUS)
}

func TestEnvOverridesThreshold(t *testing.T) {
	cases := map[string]struct {
		env  string
		want int
	}{
		"numeric":     {env: "500", want: 500},
		"zero":        {env: "0", want: 0},
		"padded":      {env: " 42 ", want: 42},
		"non-numeric": {env: "fast", want: 1000},
		"trailing":    {env: "500us", want: 1000},
		"negative":    {env: "-5", want: 1000},
		"empty":       {env: "", want: 1000},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(EnvMinLatency, tc.env)
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.MinLatencyUS)
		})
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collapse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_latency_us: 250\nlog_level: debug\nstrict: true\n"), 0o644))

	t.Setenv(EnvMinLatency, "")
	t.Setenv(EnvLogLevel, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.MinLatencyUS)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Strict)

	t.Setenv(EnvMinLatency, "750")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750, cfg.MinLatencyUS)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Setenv(EnvMinLatency, "")
	t.Setenv(EnvLogLevel, "")
	dir := t.TempDir()

	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("min_latency_us: -1\n"), 0o644))
	_, err := Load(negative)
	assert.Error(t, err)

	level := filepath.Join(dir, "level.yaml")
	require.NoError(t, os.WriteFile(level, []byte("log_level: loud\n"), 0o644))
	_, err = Load(level)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
