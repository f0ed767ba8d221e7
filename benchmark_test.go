package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUniqueName(t *testing.T) {
	benchmark := testBenchmark("scan", "q1")
	require.Equal(t, "scan", benchmark.UniqueName())

	benchmark.Variables = map[string]string{"scale": "10", "format": "orc"}
	require.Equal(t, "scan_format=orc_scale=10", benchmark.UniqueName())
}

func TestParseRepeatLevel(t *testing.T) {
	level, err := ParseRepeatLevel("query")
	require.Nil(t, err)
	require.Equal(t, RepeatQuery, level)

	level, err = ParseRepeatLevel(" BENCHMARK ")
	require.Nil(t, err)
	require.Equal(t, RepeatBenchmark, level)

	_, err = ParseRepeatLevel("stage")
	require.NotNil(t, err)
}

func TestRunsPerLevel(t *testing.T) {
	benchmarkRuns, queryRuns := RepeatBenchmark.runsPerLevel(4)
	require.Equal(t, 4, benchmarkRuns)
	require.Equal(t, 1, queryRuns)

	benchmarkRuns, queryRuns = RepeatQuery.runsPerLevel(4)
	require.Equal(t, 1, benchmarkRuns)
	require.Equal(t, 4, queryRuns)
}

func TestCheckGroup(t *testing.T) {
	require.ErrorIs(t, checkGroup(nil), ErrEmptyGroup)

	for _, tc := range []struct {
		name    string
		modify  func(b *Benchmark)
		message string
	}{
		{"macros", func(b *Benchmark) { b.BeforeBenchmarkMacros = []string{"drop-caches"} }, "before and after benchmark macros"},
		{"after macros", func(b *Benchmark) { b.AfterBenchmarkMacros = []string{"noop"} }, "before and after benchmark macros"},
		{"prewarm", func(b *Benchmark) { b.PrewarmRuns = 2 }, "runs and prewarm-runs"},
		{"concurrency", func(b *Benchmark) { b.Concurrency = 4 }, "concurrency"},
		{"throughput", func(b *Benchmark) { b.ThroughputTest = true }, "concurrency"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			first, second := testBenchmark("a", "q1"), testBenchmark("b", "q2")
			tc.modify(second)
			err := checkGroup([]*Benchmark{first, second})
			require.ErrorIs(t, err, ErrHeterogeneousGroup)
			require.Contains(t, err.Error(), tc.message)
		})
	}

	first, second := testBenchmark("a", "q1"), testBenchmark("b", "q2", "q3")
	second.Concurrency = 0
	require.Nil(t, checkGroup([]*Benchmark{first, second}))
}
