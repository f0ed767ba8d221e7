package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	db, err := sql.Open("sqlite3", ":memory:")
	require.Nil(t, err)
	db.SetMaxOpenConns(1)
	storage := NewStorage(db)
	t.Cleanup(func() { storage.Close() })
	require.Nil(t, storage.InitResultsDb(context.Background(), map[string]any{"hostname": "bench-1", "cpu": 8}))
	return storage
}

func TestStorageDriver(t *testing.T) {
	require.Equal(t, "libsql", storageDriver("libsql://results-org.turso.io?authToken=x"))
	require.Equal(t, "libsql", storageDriver("http://127.0.0.1:8080"))
	require.Equal(t, "sqlite3", storageDriver("results.db"))
	require.Equal(t, "sqlite3", storageDriver(":memory:"))
}

func TestStorageParameters(t *testing.T) {
	storage := newTestStorage(t)
	require.NotEmpty(t, storage.RunID())

	parameters, err := storage.Parameters(context.Background())
	require.Nil(t, err)
	require.Equal(t, "bench-1", parameters["hostname"])
	require.Equal(t, "8", parameters["cpu"])
	require.Contains(t, parameters, "time")
}

func TestStorageReporter(t *testing.T) {
	storage := newTestStorage(t)
	reporter := &StorageReporter{Storage: storage}
	benchmark := testBenchmark("scan", "q1", "q2")

	start := time.Now()
	executions := make([]*QueryExecutionResult, 0)
	for i, query := range benchmark.Queries {
		executions = append(executions, &QueryExecutionResult{
			Execution: &QueryExecution{Benchmark: benchmark, Query: query, Sequence: i},
			Start:     start,
			End:       start.Add(time.Duration(i+1) * time.Second),
		})
	}
	executions = append(executions, &QueryExecutionResult{
		Execution: &QueryExecution{Benchmark: benchmark, Query: benchmark.Queries[0], Sequence: 2},
		Start:     start,
		End:       start,
		Err:       errors.New("syntax error"),
	})
	reporter.ReportBenchmarkFinished(&BenchmarkExecutionResult{
		Benchmark:  benchmark,
		Executions: executions,
		Start:      start,
		End:        start.Add(4 * time.Second),
	})

	durations, err := storage.Measurements(context.Background(), "scan", "duration")
	require.Nil(t, err)
	require.Equal(t, []float64{1, 2}, durations)

	total, err := storage.Measurements(context.Background(), "scan", "total_time")
	require.Nil(t, err)
	require.Equal(t, []float64{4}, total)

	var successful bool
	require.Nil(t, storage.db.QueryRow("SELECT successful FROM benchmarks WHERE name = ?", "scan").Scan(&successful))
	require.False(t, successful)
}

func TestStorageKeepsBenchmarksWithSameName(t *testing.T) {
	storage := newTestStorage(t)
	start := time.Now()
	for i, dataSource := range []string{"trino", "trino", "postgres"} {
		benchmark := testBenchmark("count", "q1")
		benchmark.DataSource = dataSource
		result := &BenchmarkExecutionResult{
			Benchmark: benchmark,
			Start:     start.Add(time.Duration(i) * time.Second),
			End:       start.Add(time.Duration(i+1) * time.Second),
		}
		require.Nil(t, storage.UpdateBenchmarkDb(context.Background(), result))
	}

	var count int
	require.Nil(t, storage.db.QueryRow("SELECT count(*) FROM benchmarks WHERE name = ?", "count").Scan(&count))
	require.Equal(t, 3, count)

	total, err := storage.Measurements(context.Background(), "count", "total_time")
	require.Nil(t, err)
	require.Len(t, total, 3)
}
