package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type fakeConnection struct {
	provider *fakeConnections
	closed   atomic.Bool
}

func (c *fakeConnection) Query(ctx context.Context, statement string) ([][]string, error) {
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	c.provider.statements = append(c.provider.statements, statement)
	if rows, ok := c.provider.rows[statement]; ok {
		return rows, nil
	}
	return [][]string{{"1"}}, nil
}

func (c *fakeConnection) Exec(ctx context.Context, statement string) (int64, error) {
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	c.provider.statements = append(c.provider.statements, statement)
	return 1, nil
}

func (c *fakeConnection) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.provider.closed.Add(1)
	}
	return nil
}

type fakeConnections struct {
	opened atomic.Int64
	closed atomic.Int64
	err    error

	mu         sync.Mutex
	rows       map[string][][]string
	statements []string
}

func (p *fakeConnections) Connect(ctx context.Context, dataSource string) (Connection, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.opened.Add(1)
	return &fakeConnection{provider: p}, nil
}

type executorCall struct {
	benchmark   string
	query       string
	sequence    int
	resultsFile string
}

// fakeExecutor succeeds unless fail returns an error for the call.
type fakeExecutor struct {
	delay time.Duration
	fail  func(call executorCall) error

	mu    sync.Mutex
	calls []executorCall
}

func (e *fakeExecutor) Execute(ctx context.Context, execution *QueryExecution, conn Connection, resultsFile string) (*QueryExecutionResult, error) {
	call := executorCall{
		benchmark:   execution.Benchmark.UniqueName(),
		query:       execution.QueryName(),
		sequence:    execution.Sequence,
		resultsFile: resultsFile,
	}
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()

	start := time.Now()
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.fail != nil {
		if err := e.fail(call); err != nil {
			return nil, err
		}
	}
	return &QueryExecutionResult{Execution: execution, Start: start, End: time.Now(), Rows: 1}, nil
}

func (e *fakeExecutor) Calls() []executorCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]executorCall(nil), e.calls...)
}

type recordingReporter struct {
	mu       sync.Mutex
	events   []string
	finished []*BenchmarkExecutionResult
}

func (r *recordingReporter) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) ReportBenchmarkStarted(benchmark *Benchmark) {
	r.record("benchmark-started %v", benchmark.UniqueName())
}

func (r *recordingReporter) ReportBenchmarkFinished(result *BenchmarkExecutionResult) {
	r.record("benchmark-finished %v", result.Benchmark.UniqueName())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, result)
}

func (r *recordingReporter) Finished() []*BenchmarkExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*BenchmarkExecutionResult(nil), r.finished...)
}

func (r *recordingReporter) ReportExecutionStarted(execution *QueryExecution) {
	r.record("execution-started %v", execution.Benchmark.UniqueName())
}

func (r *recordingReporter) ReportExecutionFinished(result *QueryExecutionResult) {
	r.record("execution-finished %v", result.Benchmark().UniqueName())
}

func (r *recordingReporter) ReportConcurrencyTestExecutionFinished(benchmark *Benchmark, results []*QueryExecutionResult) {
	r.record("concurrency-finished %v", len(results))
}

func (r *recordingReporter) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingReporter) Count(event string) int {
	count := 0
	for _, recorded := range r.Events() {
		if recorded == event {
			count++
		}
	}
	return count
}

type recordingMacros struct {
	failing map[string]error

	mu    sync.Mutex
	calls []string
}

func (m *recordingMacros) RunMacros(ctx context.Context, macros []string, benchmark *Benchmark, conn Connection) error {
	for _, macro := range macros {
		m.mu.Lock()
		m.calls = append(m.calls, macro)
		m.mu.Unlock()
		if err, ok := m.failing[macro]; ok {
			return &MacroError{Macro: macro, Err: err}
		}
	}
	return nil
}

func (m *recordingMacros) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type profilerCall struct {
	action string
	worker string
	output string
}

type fakeProfiler struct {
	workers []string

	mu    sync.Mutex
	calls []profilerCall
}

func (p *fakeProfiler) Workers(context.Context) ([]string, error) { return p.workers, nil }

func (p *fakeProfiler) StartRecording(ctx context.Context, worker string, output string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, profilerCall{action: "start", worker: worker, output: output})
	return nil
}

func (p *fakeProfiler) StopRecording(ctx context.Context, worker string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, profilerCall{action: "stop", worker: worker})
	return nil
}

func testQueries(names ...string) []Query {
	queries := make([]Query, 0, len(names))
	for _, name := range names {
		queries = append(queries, Query{Name: name, SqlTemplate: "SELECT '" + name + "'"})
	}
	return queries
}

func testBenchmark(name string, queries ...string) *Benchmark {
	return &Benchmark{
		Name:        name,
		DataSource:  "test",
		Queries:     testQueries(queries...),
		Runs:        1,
		PrewarmRuns: 0,
		Concurrency: 1,
	}
}

type testDriver struct {
	*Driver
	connections *fakeConnections
	executor    *fakeExecutor
	reporter    *recordingReporter
	macros      *recordingMacros
	profiler    *fakeProfiler
}

func newTestDriver(config DriverConfig) *testDriver {
	td := &testDriver{
		connections: &fakeConnections{},
		executor:    &fakeExecutor{},
		reporter:    &recordingReporter{},
		macros:      &recordingMacros{failing: map[string]error{}},
		profiler:    &fakeProfiler{},
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = time.Second
	}
	td.Driver = NewDriver(config, DriverDeps{
		Connections: td.connections,
		Macros:      td.macros,
		Executor:    td.executor,
		Reporter:    td.reporter,
		Profiler:    td.profiler,
	})
	return td
}
