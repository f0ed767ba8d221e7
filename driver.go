package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

type DriverConfig struct {
	// Warmup runs only the prewarm pass, without measurement and lifecycle reports.
	Warmup          bool
	RepeatLevel     RepeatLevel
	QueryResultsDir string
	// ProfileDir enables profiler recording around measured stages when set.
	ProfileDir      string
	ShutdownTimeout time.Duration
}

type DriverDeps struct {
	Connections  ConnectionProvider
	Macros       MacroRunner
	Statements   StatementGenerator
	Executor     QueryExecutor
	Reporter     StatusReporter
	Profiler     Profiler
	Synchronizer *ExecutionSynchronizer
}

// Driver executes groups of homogeneous benchmarks.
type Driver struct {
	config       DriverConfig
	connections  ConnectionProvider
	macros       MacroRunner
	statements   StatementGenerator
	executor     QueryExecutor
	reporter     StatusReporter
	profiler     Profiler
	synchronizer *ExecutionSynchronizer
}

func NewDriver(config DriverConfig, deps DriverDeps) *Driver {
	if config.RepeatLevel == "" {
		config.RepeatLevel = RepeatBenchmark
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = time.Minute
	}
	d := &Driver{
		config:       config,
		connections:  deps.Connections,
		macros:       deps.Macros,
		statements:   deps.Statements,
		executor:     deps.Executor,
		reporter:     deps.Reporter,
		profiler:     deps.Profiler,
		synchronizer: deps.Synchronizer,
	}
	if d.macros == nil {
		d.macros = NoopMacros{}
	}
	if d.statements == nil {
		d.statements = &TemplateStatementGenerator{}
	}
	if d.executor == nil {
		d.executor = &SqlQueryExecutor{}
	}
	if d.reporter == nil {
		d.reporter = Reporters{}
	}
	if d.profiler == nil {
		d.profiler = NoopProfiler{}
	}
	if d.synchronizer == nil {
		d.synchronizer = NewExecutionSynchronizer(0)
	}
	return d
}

// Execute runs one group of benchmarks and returns a result per benchmark in
// the input order. A zero deadline means no time limit. An error is returned
// only when the group itself is invalid.
func (d *Driver) Execute(ctx context.Context, benchmarks []*Benchmark, deadline time.Time) ([]*BenchmarkExecutionResult, error) {
	if err := checkGroup(benchmarks); err != nil {
		return nil, err
	}
	for i, benchmark := range benchmarks {
		Logger.Infof("[%v of %v] processing benchmark: %v", i+1, len(benchmarks), benchmark)
	}

	first := benchmarks[0]
	if err := d.macros.RunMacros(ctx, first.BeforeBenchmarkMacros, first, nil); err != nil {
		Logger.Errorf("before benchmark macros %v failed: %v", first.BeforeBenchmarkMacros, err)
		return failedGroup(benchmarks, fmt.Errorf("before benchmark macros: %w", err)), nil
	}

	var results []*BenchmarkExecutionResult
	if d.config.Warmup {
		results = d.warmupBenchmarks(ctx, benchmarks, deadline)
	} else {
		results = d.executeBenchmarks(ctx, benchmarks, deadline)
	}

	if err := d.macros.RunMacros(ctx, first.AfterBenchmarkMacros, first, nil); err != nil {
		if allSuccessful(results) {
			Logger.Errorf("after benchmark macros %v failed: %v", first.AfterBenchmarkMacros, err)
			results = downgradeGroup(results, fmt.Errorf("after benchmark macros: %w", err))
		} else {
			// the group already failed, keep its own failure visible
			Logger.Errorf("error while running after benchmark macros %v for failed benchmarks: %v", first.AfterBenchmarkMacros, err)
		}
	}

	// finished reports follow the after benchmark macros and carry their downgrade
	for _, result := range results {
		if !result.Start.IsZero() {
			d.reporter.ReportBenchmarkFinished(result)
		}
	}
	return results, nil
}

func (d *Driver) warmupBenchmarks(ctx context.Context, benchmarks []*Benchmark, deadline time.Time) []*BenchmarkExecutionResult {
	builders := newBuilders(benchmarks)
	executions, err := d.executeQueries(ctx, benchmarks, benchmarks[0].PrewarmRuns, true, deadline)
	if err != nil {
		Logger.Errorf("warmup of %v benchmarks failed: %v", len(benchmarks), err)
		return buildAll(builders, err)
	}
	failures := comparisonFailures(executions)
	for _, builder := range builders {
		if failure, ok := failures[builder.benchmark]; ok {
			builder.withError(comparisonFailureError(failure))
		}
	}
	return buildAll(builders, nil)
}

func (d *Driver) executeBenchmarks(ctx context.Context, benchmarks []*Benchmark, deadline time.Time) []*BenchmarkExecutionResult {
	first := benchmarks[0]
	builders := newBuilders(benchmarks)
	executions, err := d.executeQueries(ctx, benchmarks, first.PrewarmRuns, true, deadline)
	if err != nil {
		Logger.Errorf("prewarm of %v benchmarks failed: %v", len(benchmarks), err)
		return buildAll(builders, err)
	}
	failures := comparisonFailures(executions)

	index := make(map[*Benchmark]*benchmarkResultBuilder, len(builders))
	valid := make([]*Benchmark, 0, len(benchmarks))
	for _, builder := range builders {
		benchmark := builder.benchmark
		index[benchmark] = builder
		if err := d.synchronizer.AwaitBeforeReport(ctx, benchmark); err != nil {
			builder.withError(err)
			continue
		}
		d.reporter.ReportBenchmarkStarted(benchmark)
		builder.startTimer()
		if failure, ok := failures[benchmark]; ok {
			Logger.Warnf("skipping measurement of benchmark %v: %v", benchmark.UniqueName(), failure)
			builder.withError(comparisonFailureError(failure)).endTimer()
			continue
		}
		valid = append(valid, benchmark)
	}

	executions, err = d.executeQueries(ctx, valid, first.Runs, false, deadline)
	if err != nil {
		Logger.Errorf("execution of %v benchmarks failed: %v", len(valid), err)
		for _, benchmark := range valid {
			index[benchmark].withError(err).endTimer()
		}
	} else {
		for _, group := range groupByBenchmark(executions) {
			index[group.benchmark].withExecutions(group.results)
		}
		for _, benchmark := range valid {
			index[benchmark].endTimer()
		}
	}

	return buildAll(builders, nil)
}

func (d *Driver) executeQueries(ctx context.Context, benchmarks []*Benchmark, runs int, warmup bool, deadline time.Time) ([]*QueryExecutionResult, error) {
	if len(benchmarks) == 0 || runs <= 0 {
		return nil, nil
	}
	var results []*QueryExecutionResult
	var err error
	if benchmarks[0].ThroughputTest {
		results, err = d.executeThroughput(ctx, benchmarks, runs, warmup, deadline)
	} else {
		results, err = d.executeSequential(ctx, benchmarks, runs, warmup, deadline)
	}
	if err != nil {
		return nil, &ExecutionError{Err: err}
	}
	return results, nil
}

func comparisonFailureError(failure string) error {
	return fmt.Errorf("query result comparison failed for queries: %v", failure)
}

func newBuilders(benchmarks []*Benchmark) []*benchmarkResultBuilder {
	builders := make([]*benchmarkResultBuilder, 0, len(benchmarks))
	for _, benchmark := range benchmarks {
		builders = append(builders, newBenchmarkResultBuilder(benchmark))
	}
	return builders
}

func buildAll(builders []*benchmarkResultBuilder, err error) []*BenchmarkExecutionResult {
	results := make([]*BenchmarkExecutionResult, 0, len(builders))
	for _, builder := range builders {
		if err != nil {
			builder.withError(err)
		}
		results = append(results, builder.build())
	}
	return results
}

func failedGroup(benchmarks []*Benchmark, err error) []*BenchmarkExecutionResult {
	results := make([]*BenchmarkExecutionResult, 0, len(benchmarks))
	for _, benchmark := range benchmarks {
		results = append(results, failedBenchmarkResult(benchmark, err))
	}
	return results
}

func downgradeGroup(results []*BenchmarkExecutionResult, err error) []*BenchmarkExecutionResult {
	downgraded := make([]*BenchmarkExecutionResult, 0, len(results))
	for _, result := range results {
		downgraded = append(downgraded, &BenchmarkExecutionResult{
			Benchmark:  result.Benchmark,
			Executions: result.Executions,
			Start:      result.Start,
			End:        result.End,
			Err:        multierr.Append(result.Err, err),
		})
	}
	return downgraded
}

func allSuccessful(results []*BenchmarkExecutionResult) bool {
	for _, result := range results {
		if !result.Successful() {
			return false
		}
	}
	return true
}
