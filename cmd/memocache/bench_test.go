package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/agentuity/go-memocache/env"
	"github.com/agentuity/go-memocache/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBenchCoalescesProducerCalls(t *testing.T) {
	cfg := defaultBenchConfig()
	cfg.Workers = 6
	cfg.Requests = 50
	cfg.Keys = 5
	cfg.Latency = env.Duration(time.Millisecond)

	result, err := runBench(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 300, result.Requests)
	assert.Equal(t, uint64(5), result.Invocations)
	assert.Equal(t, int64(0), result.Errors)
	assert.Equal(t, 5, result.Stats.Size)
	assert.NotEmpty(t, result.RunID)
}

func TestRunBenchSerializedWithInvalidation(t *testing.T) {
	cfg := defaultBenchConfig()
	cfg.Workers = 2
	cfg.Requests = 20
	cfg.Keys = 4
	cfg.Latency = 0
	cfg.InvalidateEvery = 10
	cfg.Serialize = true

	result, err := runBench(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Invalidations)
	assert.Greater(t, result.Invocations, uint64(4))
	assert.Equal(t, int64(0), result.Errors)
}

func TestRunBenchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runBench(ctx, defaultBenchConfig(), logger.NewTestLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBenchRows(t *testing.T) {
	r := benchResult{RunID: "run", Requests: 1200, RSS: 2048}
	rows := r.rows()
	assert.Equal(t, []string{"run id", "run"}, rows[0])
	assert.Equal(t, []string{"requests", "1,200"}, rows[1])
	assert.Equal(t, []string{"rss", "2.0 kB"}, rows[len(rows)-1])
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "dev\n", out.String())
}

func TestBenchCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"bench", "--workers", "2", "--requests", "10", "--keys", "2", "--latency", "0s", "--log-level", "error"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "producer calls")
}

func TestBenchCommandDebugTraces(t *testing.T) {
	t.Setenv(logger.EnvLogLevel, "")
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"bench", "--workers", "1", "--requests", "4", "--keys", "2", "--latency", "0s", "--debug"})
	require.NoError(t, root.Execute())
	assert.Contains(t, errOut.String(), "[memo] miss key=bench:")
	assert.Contains(t, errOut.String(), "[memo] store key=bench:")
}

func TestBenchCommandQuietWithoutDebug(t *testing.T) {
	t.Setenv(logger.EnvLogLevel, "")
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"bench", "--workers", "1", "--requests", "4", "--keys", "2", "--latency", "0s"})
	require.NoError(t, root.Execute())
	assert.NotContains(t, errOut.String(), "[memo]")
}
