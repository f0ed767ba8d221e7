package main

// Reporters fans every event out to all reporters. A panicking reporter is
// logged and skipped.
type Reporters []StatusReporter

func (r Reporters) each(event string, report func(StatusReporter)) {
	for _, reporter := range r {
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					Logger.Errorf("reporter %T failed on %v: %v", reporter, event, recovered)
				}
			}()
			report(reporter)
		}()
	}
}

func (r Reporters) ReportBenchmarkStarted(benchmark *Benchmark) {
	r.each("benchmark started", func(s StatusReporter) { s.ReportBenchmarkStarted(benchmark) })
}

func (r Reporters) ReportBenchmarkFinished(result *BenchmarkExecutionResult) {
	r.each("benchmark finished", func(s StatusReporter) { s.ReportBenchmarkFinished(result) })
}

func (r Reporters) ReportExecutionStarted(execution *QueryExecution) {
	r.each("execution started", func(s StatusReporter) { s.ReportExecutionStarted(execution) })
}

func (r Reporters) ReportExecutionFinished(result *QueryExecutionResult) {
	r.each("execution finished", func(s StatusReporter) { s.ReportExecutionFinished(result) })
}

func (r Reporters) ReportConcurrencyTestExecutionFinished(benchmark *Benchmark, results []*QueryExecutionResult) {
	r.each("concurrency test finished", func(s StatusReporter) { s.ReportConcurrencyTestExecutionFinished(benchmark, results) })
}

type LoggingReporter struct{}

func (LoggingReporter) ReportBenchmarkStarted(benchmark *Benchmark) {
	Logger.Infof("benchmark %v started", benchmark.UniqueName())
}

func (LoggingReporter) ReportBenchmarkFinished(result *BenchmarkExecutionResult) {
	stats := ComputeStats(result.Executions, result.Duration())
	if result.Successful() {
		Logger.Infof("benchmark %v finished in %v: %v", result.Benchmark.UniqueName(), result.Duration(), stats)
		return
	}
	Logger.Errorf("benchmark %v failed after %v: %v (%v)", result.Benchmark.UniqueName(), result.Duration(), result.Err, stats)
}

func (LoggingReporter) ReportExecutionStarted(execution *QueryExecution) {
	Logger.Debugf("execution %v/%v #%v started", execution.Benchmark.UniqueName(), execution.QueryName(), execution.Sequence)
}

func (LoggingReporter) ReportExecutionFinished(result *QueryExecutionResult) {
	if result.Successful() {
		Logger.Infof("execution %v/%v #%v finished in %v", result.Benchmark().UniqueName(), result.QueryName(), result.Execution.Sequence, result.Duration())
		return
	}
	Logger.Warnf("execution %v/%v #%v failed: %v", result.Benchmark().UniqueName(), result.QueryName(), result.Execution.Sequence, result.Err)
}

func (LoggingReporter) ReportConcurrencyTestExecutionFinished(benchmark *Benchmark, results []*QueryExecutionResult) {
	Logger.Infof("concurrency stream of %v finished: %v executions", benchmark.UniqueName(), len(results))
}
