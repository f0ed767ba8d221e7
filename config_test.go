package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_INVALID", "not-a-number")

	require.Equal(t, "value", StringEnv("TEST_STRING", "default"))
	require.Equal(t, "default", StringEnv("TEST_MISSING", "default"))
	require.Equal(t, 42, IntEnv("TEST_INT", 1))
	require.Equal(t, 1, IntEnv("TEST_INVALID", 1))
	require.True(t, BoolEnv("TEST_BOOL", false))
	require.False(t, BoolEnv("TEST_INVALID", false))
	require.Equal(t, 90*time.Second, DurationEnv("TEST_DURATION", time.Second))
	require.Equal(t, time.Second, DurationEnv("TEST_INVALID", time.Second))
}

func TestLoadConfig(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "benchmark.env")
	require.Nil(t, os.WriteFile(envFile, []byte("BENCHMARK_SUITE=tpch.yaml\nBENCHMARK_WARMUP=true\n"), 0o644))
	t.Setenv("BENCHMARK_ENV_FILE", envFile)
	t.Setenv("BENCHMARK_WARMUP", "false")
	t.Setenv("BENCHMARK_REPEAT_LEVEL", "query")
	t.Setenv("BENCHMARK_TIME_LIMIT", "1h")
	t.Setenv("BENCHMARK_WORKERS", "w1,w2")
	t.Cleanup(func() { os.Unsetenv("BENCHMARK_SUITE") })

	config, err := LoadConfig()
	require.Nil(t, err)
	require.Equal(t, "tpch.yaml", config.Suite)
	require.False(t, config.Warmup)
	require.Equal(t, RepeatQuery, config.RepeatLevel)
	require.Equal(t, time.Hour, config.TimeLimit)
	require.Equal(t, time.Minute, config.ShutdownTimeout)
	require.Equal(t, []string{"w1", "w2"}, config.WorkersStaticHosts)
	require.Equal(t, DefaultWorkersQuery, config.WorkersQuery)
	require.Equal(t, 3, config.GraphiteAttempts)
	require.Empty(t, config.GraphiteMetrics)
}

func TestParseGraphiteMetrics(t *testing.T) {
	metrics, err := parseGraphiteMetrics("cpu=sumSeries(servers.*.cpu); load = seriesByTag('name=load')")
	require.Nil(t, err)
	require.Equal(t, map[string]string{
		"cpu":  "sumSeries(servers.*.cpu)",
		"load": "seriesByTag('name=load')",
	}, metrics)

	for _, value := range []string{"cpu", "=target", "cpu=", "cpu=a;;broken"} {
		_, err := parseGraphiteMetrics(value)
		require.NotNil(t, err, value)
	}
}

func TestLoadConfigGraphiteMetrics(t *testing.T) {
	t.Setenv("BENCHMARK_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("GRAPHITE_METRICS", "cpu=sumSeries(cpu.*)")
	config, err := LoadConfig()
	require.Nil(t, err)
	require.Equal(t, map[string]string{"cpu": "sumSeries(cpu.*)"}, config.GraphiteMetrics)

	t.Setenv("GRAPHITE_METRICS", "cpu")
	_, err = LoadConfig()
	require.NotNil(t, err)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("BENCHMARK_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("BENCHMARK_REPEAT_LEVEL", "stage")
	_, err := LoadConfig()
	require.NotNil(t, err)
}
