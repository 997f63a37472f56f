package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBenchCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "bench"}
	addBenchFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadBenchConfigDefaults(t *testing.T) {
	cfg, err := loadBenchConfig(newBenchCommand(t))
	require.NoError(t, err)
	assert.Equal(t, defaultBenchConfig(), cfg)
}

func TestLoadBenchConfigFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers: 3
requests: 40
keys: 4
latency: 2ms
ttl: 1d
invalidate_every: 10
serialize: true
`), 0o600))

	cmd := newBenchCommand(t, "--config", path, "--keys", "9", "--cleanup-interval", "30s")
	cfg, err := loadBenchConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 40, cfg.Requests)
	assert.Equal(t, 9, cfg.Keys)
	assert.Equal(t, 2*time.Millisecond, time.Duration(cfg.Latency))
	assert.Equal(t, 24*time.Hour, time.Duration(cfg.TTL))
	assert.Equal(t, 30*time.Second, time.Duration(cfg.CleanupInterval))
	assert.Equal(t, 10, cfg.InvalidateEvery)
	assert.True(t, cfg.Serialize)
	assert.False(t, cfg.Debug)
}

func TestLoadBenchConfigErrors(t *testing.T) {
	_, err := loadBenchConfig(newBenchCommand(t, "--workers", "0"))
	assert.True(t, errors.Is(err, errInvalidConfig))

	_, err = loadBenchConfig(newBenchCommand(t, "--ttl", "whenever"))
	assert.Error(t, err)

	_, err = loadBenchConfig(newBenchCommand(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}
