package main

import (
	"errors"
	"time"

	"go.uber.org/multierr"
)

type QueryExecution struct {
	Benchmark *Benchmark
	Query     Query
	Sequence  int
	Statement string
}

func (e *QueryExecution) QueryName() string { return e.Query.Name }

type QueryExecutionResult struct {
	Execution *QueryExecution
	Start     time.Time
	End       time.Time
	Rows      int
	Err       error
}

func (r *QueryExecutionResult) Benchmark() *Benchmark   { return r.Execution.Benchmark }
func (r *QueryExecutionResult) QueryName() string       { return r.Execution.QueryName() }
func (r *QueryExecutionResult) Duration() time.Duration { return r.End.Sub(r.Start) }
func (r *QueryExecutionResult) Successful() bool        { return r.Err == nil }
func (r *QueryExecutionResult) ComparisonFailure() bool {
	var comparison *ResultComparisonError
	return errors.As(r.Err, &comparison)
}

func newFailedExecutionResult(execution *QueryExecution, start time.Time, err error) *QueryExecutionResult {
	return &QueryExecutionResult{Execution: execution, Start: start, End: time.Now(), Err: err}
}

type BenchmarkExecutionResult struct {
	Benchmark  *Benchmark
	Executions []*QueryExecutionResult
	Start      time.Time
	End        time.Time
	Err        error
}

func (r *BenchmarkExecutionResult) Successful() bool {
	if r.Err != nil {
		return false
	}
	for _, execution := range r.Executions {
		if !execution.Successful() {
			return false
		}
	}
	return true
}

func (r *BenchmarkExecutionResult) Duration() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// benchmarkResultBuilder accumulates one benchmark outcome during a single
// Execute call.
type benchmarkResultBuilder struct {
	benchmark  *Benchmark
	executions []*QueryExecutionResult
	start      time.Time
	end        time.Time
	err        error
}

func newBenchmarkResultBuilder(benchmark *Benchmark) *benchmarkResultBuilder {
	return &benchmarkResultBuilder{benchmark: benchmark}
}

func (b *benchmarkResultBuilder) startTimer() *benchmarkResultBuilder {
	b.start = time.Now()
	return b
}

func (b *benchmarkResultBuilder) endTimer() *benchmarkResultBuilder {
	b.end = time.Now()
	return b
}

func (b *benchmarkResultBuilder) withExecutions(executions []*QueryExecutionResult) *benchmarkResultBuilder {
	b.executions = executions
	return b
}

func (b *benchmarkResultBuilder) withError(err error) *benchmarkResultBuilder {
	b.err = multierr.Append(b.err, err)
	return b
}

func (b *benchmarkResultBuilder) build() *BenchmarkExecutionResult {
	return &BenchmarkExecutionResult{
		Benchmark:  b.benchmark,
		Executions: append([]*QueryExecutionResult(nil), b.executions...),
		Start:      b.start,
		End:        b.end,
		Err:        b.err,
	}
}

func failedBenchmarkResult(benchmark *Benchmark, err error) *BenchmarkExecutionResult {
	return newBenchmarkResultBuilder(benchmark).withError(err).build()
}
