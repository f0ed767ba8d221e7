package main

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type ExecutionStats struct {
	Total      int
	Errors     int
	QPS        float64
	LatencyMin time.Duration
	LatencyAvg time.Duration
	LatencyMax time.Duration
	LatencyP50 time.Duration
	LatencyP90 time.Duration
	LatencyP95 time.Duration
	LatencyP99 time.Duration
}

func (s ExecutionStats) String() string {
	return fmt.Sprintf(
		"total=%v errors=%v qps=%.2f min=%v avg=%v p50=%v p90=%v p95=%v p99=%v max=%v",
		s.Total, s.Errors, s.QPS, s.LatencyMin, s.LatencyAvg, s.LatencyP50, s.LatencyP90, s.LatencyP95, s.LatencyP99, s.LatencyMax,
	)
}

func ComputeStats(results []*QueryExecutionResult, total time.Duration) ExecutionStats {
	stats := ExecutionStats{Total: len(results)}
	durations := make([]time.Duration, 0, len(results))
	for _, result := range results {
		if !result.Successful() {
			stats.Errors++
			continue
		}
		durations = append(durations, result.Duration())
	}
	if len(durations) == 0 {
		return stats
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	stats.LatencyAvg = sum / time.Duration(len(durations))
	stats.LatencyMin = durations[0]
	stats.LatencyMax = durations[len(durations)-1]
	stats.LatencyP50 = percentile(durations, 50)
	stats.LatencyP90 = percentile(durations, 90)
	stats.LatencyP95 = percentile(durations, 95)
	stats.LatencyP99 = percentile(durations, 99)
	if total > 0 {
		stats.QPS = float64(len(durations)) / total.Seconds()
	}
	return stats
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
