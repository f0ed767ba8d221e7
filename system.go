package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/multierr"
)

const Version = "v1"

type SysInfo struct {
	Arch     string
	Hostname string
	Platform string
	CPUCount int
	CPUFreq  float64
	RAM      float64
}

func HostStat() SysInfo {
	info := SysInfo{Arch: runtime.GOARCH}
	if hostStat, err := host.Info(); err == nil {
		info.Hostname = hostStat.Hostname
		info.Platform = hostStat.Platform
	}
	if cpuStat, err := cpu.Info(); err == nil && len(cpuStat) > 0 {
		totalFreq := 0.0
		for _, cpu := range cpuStat {
			totalFreq += cpu.Mhz
		}
		info.CPUCount = len(cpuStat)
		info.CPUFreq = totalFreq / float64(len(cpuStat)) * 1000
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		info.RAM = float64(vmStat.Total) / 1024 / 1024 / 1024
	}
	return info
}

func (i SysInfo) meta() map[string]any {
	return map[string]any{
		"version":  Version,
		"arch":     i.Arch,
		"hostname": i.Hostname,
		"platform": i.Platform,
		"ram":      i.RAM,
		"cpu":      i.CPUCount,
		"freq":     i.CPUFreq,
	}
}

// System runs a whole suite group by group.
type System struct {
	config      Config
	suite       *Suite
	connections *SqlConnectionProvider
	storage     *Storage
	metrics     *PrometheusReporter
	driver      *Driver
}

func NewSystem(config Config, suite *Suite) (*System, error) {
	s := &System{
		config:      config,
		suite:       suite,
		connections: NewSqlConnectionProvider(suite.DataSources),
	}
	reporters := Reporters{LoggingReporter{}}
	if config.ResultsDb != "" {
		storage, err := OpenStorage(config.ResultsDb)
		if err != nil {
			return nil, err
		}
		s.storage = storage
		reporters = append(reporters, &StorageReporter{Storage: storage})
	}
	if config.GraphiteURL != "" {
		client := NewGraphiteClient(config.GraphiteURL)
		client.Attempts = uint(max(1, config.GraphiteAttempts))
		reporters = append(reporters, &GraphiteReporter{Client: client, Metrics: config.GraphiteMetrics, Storage: s.storage})
	}
	if config.MetricsAddr != "" {
		s.metrics = NewPrometheusReporter()
		reporters = append(reporters, s.metrics)
	}

	var profiler Profiler = NoopProfiler{}
	if config.ProfileDir != "" {
		profiler = &CommandProfiler{
			StartCmd:     config.ProfileStartCmd,
			StopCmd:      config.ProfileStopCmd,
			StaticHosts:  config.WorkersStaticHosts,
			WorkersQuery: config.WorkersQuery,
			DataSource:   config.WorkersDataSource,
			Connections:  s.connections,
		}
	}

	s.driver = NewDriver(
		DriverConfig{
			Warmup:          config.Warmup,
			RepeatLevel:     config.RepeatLevel,
			QueryResultsDir: config.QueryResultsDir,
			ProfileDir:      config.ProfileDir,
			ShutdownTimeout: config.ShutdownTimeout,
		},
		DriverDeps{
			Connections:  s.connections,
			Macros:       NewMacroService(suite.Macros, s.connections),
			Statements:   &TemplateStatementGenerator{},
			Executor:     &SqlQueryExecutor{},
			Reporter:     reporters,
			Profiler:     profiler,
			Synchronizer: NewExecutionSynchronizer(config.Pause),
		},
	)
	return s, nil
}

// Run executes every group of the suite and returns all benchmark results.
// Groups left when the time limit passes are skipped.
func (s *System) Run(ctx context.Context) ([]*BenchmarkExecutionResult, error) {
	Logger.Infof("start benchmark suite %v: %v groups, %v benchmarks", s.config.Suite, len(s.suite.Groups), s.suite.Benchmarks())

	info := HostStat()
	Logger.Infof("host stat: %+v", info)

	if s.storage != nil {
		if err := s.storage.InitResultsDb(ctx, info.meta()); err != nil {
			return nil, fmt.Errorf("unable to initialize benchmark results db: %w", err)
		}
	}
	if s.metrics != nil {
		go func() {
			if err := s.metrics.ServeMetrics(ctx, s.config.MetricsAddr); err != nil {
				Logger.Errorf("metrics server failed: %v", err)
			}
		}()
	}

	deadline := deadlineAfter(s.config.TimeLimit)
	results := make([]*BenchmarkExecutionResult, 0)
	for i, group := range s.suite.Groups {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if timeLimitExceeded(deadline) {
			Logger.Warnf("time limit %v exceeded, skipping %v remaining groups", s.config.TimeLimit, len(s.suite.Groups)-i)
			break
		}
		Logger.Infof("running group %v of %v", i+1, len(s.suite.Groups))
		groupResults, err := s.driver.Execute(ctx, group, deadline)
		if err != nil {
			return results, fmt.Errorf("failed to execute group %v: %w", group[0].Name, err)
		}
		results = append(results, groupResults...)
	}
	return results, nil
}

func (s *System) Close() error {
	err := s.connections.Close()
	if s.storage != nil {
		err = multierr.Append(err, s.storage.Close())
	}
	return err
}

// Failures returns failed results, logging a summary line for each.
func Failures(results []*BenchmarkExecutionResult) []*BenchmarkExecutionResult {
	failed := make([]*BenchmarkExecutionResult, 0)
	for _, result := range results {
		if !result.Successful() {
			Logger.Errorf("benchmark %v failed: %v", result.Benchmark.UniqueName(), result.Err)
			failed = append(failed, result)
		}
	}
	return failed
}

func elapsed(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
