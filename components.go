package main

import "context"

// Connection is a session against a single data source. It is never shared
// between goroutines.
type Connection interface {
	Query(ctx context.Context, statement string) ([][]string, error)
	Exec(ctx context.Context, statement string) (int64, error)
	Close() error
}

type ConnectionProvider interface {
	Connect(ctx context.Context, dataSource string) (Connection, error)
}

// MacroRunner executes named hooks. conn is nil for benchmark level macros.
type MacroRunner interface {
	RunMacros(ctx context.Context, macros []string, benchmark *Benchmark, conn Connection) error
}

type StatementGenerator interface {
	Generate(query Query, benchmark *Benchmark, sequence int) (string, error)
}

// QueryExecutor runs a rendered statement and, when resultsFile is not empty,
// compares its rows with the expected ones. A mismatch is returned as
// *ResultComparisonError.
type QueryExecutor interface {
	Execute(ctx context.Context, execution *QueryExecution, conn Connection, resultsFile string) (*QueryExecutionResult, error)
}

type StatusReporter interface {
	ReportBenchmarkStarted(benchmark *Benchmark)
	ReportBenchmarkFinished(result *BenchmarkExecutionResult)
	ReportExecutionStarted(execution *QueryExecution)
	ReportExecutionFinished(result *QueryExecutionResult)
	// ReportConcurrencyTestExecutionFinished is called once for every measured
	// throughput stream that reported its start, also when the stream failed.
	ReportConcurrencyTestExecutionFinished(benchmark *Benchmark, results []*QueryExecutionResult)
}

type Profiler interface {
	Workers(ctx context.Context) ([]string, error)
	StartRecording(ctx context.Context, worker string, output string) error
	StopRecording(ctx context.Context, worker string) error
}
