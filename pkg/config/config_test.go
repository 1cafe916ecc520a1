package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/corral/pkg/errdefs"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corral.yaml")
	content := `
data_dir: /tmp/corral-test
workers: 8
poll_interval: 100ms
log:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/corral-test", cfg.DataDir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	// Unset fields keep their defaults
	assert.Equal(t, ":9090", cfg.ListenAddr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("/nonexistent/corral.yaml")
	assert.True(t, errdefs.IsValidation(err))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [not an int"), 0600))
	_, err = Load(path)
	assert.True(t, errdefs.IsValidation(err))

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: -1"), 0600))
	_, err = Load(path)
	assert.True(t, errdefs.IsValidation(err))

	path = filepath.Join(t.TempDir(), "duration.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll_interval: soon"), 0600))
	_, err = Load(path)
	assert.True(t, errdefs.IsValidation(err))
}
