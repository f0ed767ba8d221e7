package main

import (
	"fmt"
	"slices"
	"strings"
)

type benchmarkExecutions struct {
	benchmark *Benchmark
	results   []*QueryExecutionResult
}

// groupByBenchmark keeps benchmarks in first-seen order and results in execution order.
func groupByBenchmark(results []*QueryExecutionResult) []benchmarkExecutions {
	groups := make([]benchmarkExecutions, 0)
	positions := make(map[*Benchmark]int)
	for _, result := range results {
		position, ok := positions[result.Benchmark()]
		if !ok {
			position = len(groups)
			positions[result.Benchmark()] = position
			groups = append(groups, benchmarkExecutions{benchmark: result.Benchmark()})
		}
		groups[position].results = append(groups[position].results, result)
	}
	return groups
}

// comparisonFailures describes, for every benchmark with at least one result
// comparison failure, the distinct failing queries one per line.
func comparisonFailures(results []*QueryExecutionResult) map[*Benchmark]string {
	failures := make(map[*Benchmark]string)
	for _, group := range groupByBenchmark(results) {
		lines := make([]string, 0)
		for _, result := range group.results {
			if !result.ComparisonFailure() {
				continue
			}
			line := fmt.Sprintf("%v [%v]", result.QueryName(), result.Err)
			if !slices.Contains(lines, line) {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			failures[group.benchmark] = strings.Join(lines, "\n")
		}
	}
	return failures
}
