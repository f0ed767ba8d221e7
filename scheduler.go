package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ExecutionError is a scheduling fault which aborts a whole pass.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("could not execute benchmark: %v", e.Err) }
func (e *ExecutionError) Unwrap() error { return e.Err }

type task func(ctx context.Context) error

// workerPool runs stages of tasks on a bounded number of goroutines. It lives
// for one executeQueries call.
type workerPool struct {
	size    int
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func newWorkerPool(ctx context.Context, size int, timeout time.Duration) *workerPool {
	ctx, cancel := context.WithCancel(ctx)
	return &workerPool{size: max(1, size), timeout: timeout, ctx: ctx, cancel: cancel}
}

// run executes all tasks and waits for them. The first failed task cancels the
// context of the remaining ones.
func (p *workerPool) run(tasks []task) error {
	group, ctx := errgroup.WithContext(p.ctx)
	group.SetLimit(p.size)
	done := make(chan error, 1)
	p.running.Add(1)
	go func() {
		defer p.running.Done()
		for _, t := range tasks {
			group.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return t(ctx)
			})
		}
		done <- group.Wait()
	}()
	select {
	case err := <-done:
		return err
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *workerPool) shutdown() {
	p.cancel()
	stopped := make(chan struct{})
	go func() {
		p.running.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.NewTimer(p.timeout).C:
		Logger.Warnf("worker pool did not stop within %v, abandoning in-flight executions", p.timeout)
	}
}

type streamID struct {
	benchmark *Benchmark
	stream    int
}

func (d *Driver) executeThroughput(ctx context.Context, benchmarks []*Benchmark, runs int, warmup bool, deadline time.Time) ([]*QueryExecutionResult, error) {
	pool := newWorkerPool(ctx, benchmarks[0].concurrency(), d.config.ShutdownTimeout)
	defer pool.shutdown()

	streams := make([]streamID, 0)
	for _, benchmark := range benchmarks {
		for stream := 0; stream < benchmark.concurrency(); stream++ {
			streams = append(streams, streamID{benchmark: benchmark, stream: stream})
		}
	}
	collected := make([][]*QueryExecutionResult, len(streams))
	tasks := make([]task, 0, len(streams))
	for i, id := range streams {
		tasks = append(tasks, func(ctx context.Context) error {
			Logger.Infof("running throughput test %v stream %v: %v queries, %v runs", id.benchmark.UniqueName(), id.stream, len(id.benchmark.Queries), runs)
			results, err := d.executeStream(ctx, id.benchmark, id.stream, runs, warmup, deadline)
			if err != nil {
				return err
			}
			collected[i] = results
			return nil
		})
	}
	if err := pool.run(tasks); err != nil {
		return nil, err
	}

	results := make([]*QueryExecutionResult, 0)
	for _, stream := range collected {
		results = append(results, stream...)
	}
	return results, nil
}

// executeStream runs one throughput stream on its own connection. Once the
// deadline passes the stream stops and keeps what it has already collected.
// A measured stream that reported its start always reports its finish.
func (d *Driver) executeStream(ctx context.Context, benchmark *Benchmark, stream int, runs int, warmup bool, deadline time.Time) (results []*QueryExecutionResult, err error) {
	defer d.synchronizer.enter(benchmark)()

	queries := benchmark.Queries
	concurrency := benchmark.concurrency()
	order := Permutation(len(queries), stream)

	conn, err := d.connections.Connect(ctx, benchmark.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %v for benchmark %v: %w", benchmark.DataSource, benchmark.UniqueName(), err)
	}
	defer closeConnection(conn)

	results = make([]*QueryExecutionResult, 0)
	firstQuery := true
	defer func() {
		if !firstQuery {
			d.reporter.ReportConcurrencyTestExecutionFinished(benchmark, results)
		}
	}()
	for run := 1; run <= runs; run++ {
		for position := range queries {
			index := position
			if warmup {
				// prewarm work is split between streams instead of being repeated by each of them
				if position%concurrency != stream {
					continue
				}
				Logger.Debugf("executing pre-warm query %v in stream %v", position, stream)
			} else {
				index = order[position]
			}
			query := queries[index]
			sequence := position + stream*len(queries) + (run-1)*concurrency*len(queries)
			execution, err := d.newExecution(benchmark, query, sequence)
			if err != nil {
				return nil, err
			}
			if firstQuery && !warmup {
				d.reporter.ReportExecutionStarted(execution)
				firstQuery = false
			}
			result, err := d.executeSingleQuery(ctx, execution, conn, true, deadline, d.resultsFile(query, warmup, run))
			if errors.Is(err, errTimeLimitExceeded) {
				Logger.Warnf("interrupting benchmark %v stream %v due to time limit exceeded", benchmark.UniqueName(), stream)
				return results, nil
			}
			if err != nil {
				return nil, err
			}
			results = append(results, result)
		}
	}
	return results, nil
}

type sequentialUnit struct {
	benchmark *Benchmark
	query     Query
	run       int
}

// executeSequential runs benchmark runs as stages: all (query, query run) units
// of a stage are executed together and the next stage starts only after the
// previous one finished.
func (d *Driver) executeSequential(ctx context.Context, benchmarks []*Benchmark, runs int, warmup bool, deadline time.Time) ([]*QueryExecutionResult, error) {
	pool := newWorkerPool(ctx, benchmarks[0].concurrency(), d.config.ShutdownTimeout)
	defer pool.shutdown()

	benchmarkRuns, queryRuns := d.config.RepeatLevel.runsPerLevel(runs)
	workers := d.activeWorkers(ctx, warmup)

	results := make([]*QueryExecutionResult, 0)
	for benchmarkRun := 1; benchmarkRun <= benchmarkRuns; benchmarkRun++ {
		if timeLimitExceeded(deadline) {
			Logger.Warnf("time limit exceeded, skipping remaining %v runs", benchmarkRuns-benchmarkRun+1)
			break
		}
		units := make([]sequentialUnit, 0)
		for _, benchmark := range benchmarks {
			for _, query := range benchmark.Queries {
				for queryRun := 1; queryRun <= queryRuns; queryRun++ {
					run := benchmarkRun
					if d.config.RepeatLevel == RepeatQuery {
						run = queryRun
					}
					units = append(units, sequentialUnit{benchmark: benchmark, query: query, run: run})
				}
			}
		}

		stage := make([]*QueryExecutionResult, len(units))
		tasks := make([]task, 0, len(units))
		for i, u := range units {
			tasks = append(tasks, func(ctx context.Context) error {
				result, err := d.executeUnit(ctx, u.benchmark, u.query, u.run, warmup)
				stage[i] = result
				return err
			})
		}

		if !warmup {
			d.startProfiling(ctx, workers, d.profileOutput(benchmarks, benchmarkRun))
		}
		err := pool.run(tasks)
		if !warmup {
			d.stopProfiling(ctx, workers)
		}
		if err != nil {
			return nil, err
		}
		results = append(results, stage...)
	}
	return results, nil
}

func (d *Driver) executeUnit(ctx context.Context, benchmark *Benchmark, query Query, run int, warmup bool) (*QueryExecutionResult, error) {
	defer d.synchronizer.enter(benchmark)()

	execution, err := d.newExecution(benchmark, query, run)
	if err != nil {
		return nil, err
	}
	conn, err := d.connections.Connect(ctx, benchmark.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %v for benchmark %v: %w", benchmark.DataSource, benchmark.UniqueName(), err)
	}
	defer closeConnection(conn)
	return d.executeSingleQuery(ctx, execution, conn, warmup, time.Time{}, d.resultsFile(query, warmup, run))
}

// executeSingleQuery runs one execution with its macros. Query failures become
// failed results; macro failures and the time limit are returned as errors.
func (d *Driver) executeSingleQuery(
	ctx context.Context,
	execution *QueryExecution,
	conn Connection,
	skipReport bool,
	deadline time.Time,
	resultsFile string,
) (*QueryExecutionResult, error) {
	benchmark := execution.Benchmark
	if err := d.macros.RunMacros(ctx, benchmark.BeforeExecutionMacros, benchmark, conn); err != nil {
		return nil, fmt.Errorf("before execution macros: %w", err)
	}
	if !skipReport {
		d.reporter.ReportExecutionStarted(execution)
	}

	start := time.Now()
	result, err := d.executor.Execute(ctx, execution, conn, resultsFile)
	if err != nil {
		Logger.Errorf("query execution failed for benchmark %v query %v: %v", benchmark.UniqueName(), execution.QueryName(), err)
		result = newFailedExecutionResult(execution, start, err)
	}
	if timeLimitExceeded(deadline) {
		return nil, fmt.Errorf("benchmark %v query %v: %w", benchmark.UniqueName(), execution.QueryName(), errTimeLimitExceeded)
	}

	if !skipReport {
		d.reporter.ReportExecutionFinished(result)
	}
	if err := d.macros.RunMacros(ctx, benchmark.AfterExecutionMacros, benchmark, conn); err != nil {
		return nil, fmt.Errorf("after execution macros: %w", err)
	}
	return result, nil
}

func (d *Driver) newExecution(benchmark *Benchmark, query Query, sequence int) (*QueryExecution, error) {
	statement, err := d.statements.Generate(query, benchmark, sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to render query %v of benchmark %v: %w", query.Name, benchmark.UniqueName(), err)
	}
	return &QueryExecution{Benchmark: benchmark, Query: query, Sequence: sequence, Statement: statement}, nil
}

// resultsFile returns the expected results to check: only on the first
// prewarm run for selects, always for other statements.
func (d *Driver) resultsFile(query Query, warmup bool, run int) string {
	if query.ResultsFile == "" {
		return ""
	}
	if !(warmup && run == 1) && isSelectQuery(query.SqlTemplate) {
		return ""
	}
	if filepath.IsAbs(query.ResultsFile) {
		return query.ResultsFile
	}
	return filepath.Join(d.config.QueryResultsDir, query.ResultsFile)
}

func (d *Driver) activeWorkers(ctx context.Context, warmup bool) []string {
	if warmup || d.config.ProfileDir == "" {
		return nil
	}
	workers, err := d.profiler.Workers(ctx)
	if err != nil {
		Logger.Warnf("failed to list active workers, profiling disabled: %v", err)
		return nil
	}
	Logger.Infof("active workers %v", strings.Join(workers, ","))
	return workers
}

func (d *Driver) profileOutput(benchmarks []*Benchmark, run int) string {
	names := make([]string, 0)
	for _, benchmark := range benchmarks {
		for _, query := range benchmark.Queries {
			names = append(names, query.Name)
		}
	}
	return filepath.Join(d.config.ProfileDir, fmt.Sprintf("%v-run%v.jfr", strings.Join(names, ","), run))
}

func (d *Driver) startProfiling(ctx context.Context, workers []string, output string) {
	for _, worker := range workers {
		Logger.Infof("starting profile recording for %v [output to %v]", worker, output)
		if err := d.profiler.StartRecording(ctx, worker, output); err != nil {
			Logger.Warnf("failed to start profile recording for %v: %v", worker, err)
		}
	}
}

func (d *Driver) stopProfiling(ctx context.Context, workers []string) {
	var err error
	for _, worker := range workers {
		Logger.Infof("stopping profile recording for %v", worker)
		err = multierr.Append(err, d.profiler.StopRecording(ctx, worker))
	}
	if err != nil {
		Logger.Warnf("failed to stop profile recording: %v", err)
	}
}

func closeConnection(conn Connection) {
	if err := conn.Close(); err != nil {
		Logger.Warnf("failed to close connection: %v", err)
	}
}
