package main

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

var (
	ErrEmptyGroup         = errors.New("list of benchmarks to execute cannot be empty")
	ErrHeterogeneousGroup = errors.New("benchmarks in a group are not homogeneous")
)

type RepeatLevel string

const (
	RepeatBenchmark RepeatLevel = "BENCHMARK"
	RepeatQuery     RepeatLevel = "QUERY"
)

func ParseRepeatLevel(value string) (RepeatLevel, error) {
	switch level := RepeatLevel(strings.ToUpper(strings.TrimSpace(value))); level {
	case RepeatBenchmark, RepeatQuery:
		return level, nil
	}
	return "", fmt.Errorf("unknown repeat level '%v'", value)
}

// runsPerLevel splits runs into (benchmark runs, query runs) so that exactly one
// of them varies.
func (l RepeatLevel) runsPerLevel(runs int) (int, int) {
	if l == RepeatQuery {
		return 1, runs
	}
	return runs, 1
}

type Query struct {
	Name           string
	SqlTemplate    string
	ResultsFile    string
	MatchOnlyCount bool
}

type Benchmark struct {
	Name                  string
	DataSource            string
	Queries               []Query
	Runs                  int
	PrewarmRuns           int
	Concurrency           int
	ThroughputTest        bool
	BeforeBenchmarkMacros []string
	AfterBenchmarkMacros  []string
	BeforeExecutionMacros []string
	AfterExecutionMacros  []string
	Variables             map[string]string
}

// UniqueName distinguishes benchmarks of one group that differ only by variables.
func (b *Benchmark) UniqueName() string {
	if len(b.Variables) == 0 {
		return b.Name
	}
	keys := slices.Collect(maps.Keys(b.Variables))
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%v=%v", key, b.Variables[key]))
	}
	return fmt.Sprintf("%v_%v", b.Name, strings.Join(parts, "_"))
}

func (b *Benchmark) String() string {
	return fmt.Sprintf(
		"%v (datasource=%v, queries=%v, runs=%v, prewarm=%v, concurrency=%v, throughput=%v)",
		b.UniqueName(), b.DataSource, len(b.Queries), b.Runs, b.PrewarmRuns, b.Concurrency, b.ThroughputTest,
	)
}

func (b *Benchmark) concurrency() int {
	return max(1, b.Concurrency)
}

func checkGroup(benchmarks []*Benchmark) error {
	if len(benchmarks) == 0 {
		return ErrEmptyGroup
	}
	first := benchmarks[0]
	for _, benchmark := range benchmarks[1:] {
		if !slices.Equal(benchmark.BeforeBenchmarkMacros, first.BeforeBenchmarkMacros) ||
			!slices.Equal(benchmark.AfterBenchmarkMacros, first.AfterBenchmarkMacros) {
			return fmt.Errorf("%w: all benchmarks in a group must have the same before and after benchmark macros", ErrHeterogeneousGroup)
		}
		if benchmark.Runs != first.Runs || benchmark.PrewarmRuns != first.PrewarmRuns {
			return fmt.Errorf("%w: all benchmarks in a group must have the same number of runs and prewarm-runs", ErrHeterogeneousGroup)
		}
		if benchmark.concurrency() != first.concurrency() || benchmark.ThroughputTest != first.ThroughputTest {
			return fmt.Errorf("%w: all benchmarks in a group must have the same concurrency and either test throughput or not", ErrHeterogeneousGroup)
		}
	}
	return nil
}
