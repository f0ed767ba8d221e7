package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusReporter exposes benchmark progress as prometheus metrics.
type PrometheusReporter struct {
	registry *prometheus.Registry

	benchmarksTotal  *prometheus.CounterVec
	executionsTotal  *prometheus.CounterVec
	executionsActive *prometheus.GaugeVec
	queryDuration    *prometheus.HistogramVec
}

func NewPrometheusReporter() *PrometheusReporter {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &PrometheusReporter{
		registry: registry,
		benchmarksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benchmark_driver_benchmarks_total",
				Help: "Total number of finished benchmarks",
			},
			[]string{"benchmark", "status"},
		),
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benchmark_driver_executions_total",
				Help: "Total number of finished query executions",
			},
			[]string{"benchmark", "query", "status"},
		),
		executionsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "benchmark_driver_executions_active",
				Help: "Number of reported query executions in flight",
			},
			[]string{"benchmark"},
		),
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "benchmark_driver_query_duration_seconds",
				Help:    "Duration of measured query executions",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 18),
			},
			[]string{"benchmark", "query"},
		),
	}
}

func statusLabel(successful bool) string {
	if successful {
		return "success"
	}
	return "failure"
}

func (r *PrometheusReporter) ReportBenchmarkStarted(*Benchmark) {}

func (r *PrometheusReporter) ReportBenchmarkFinished(result *BenchmarkExecutionResult) {
	r.benchmarksTotal.WithLabelValues(result.Benchmark.UniqueName(), statusLabel(result.Successful())).Inc()
}

func (r *PrometheusReporter) ReportExecutionStarted(execution *QueryExecution) {
	r.executionsActive.WithLabelValues(execution.Benchmark.UniqueName()).Inc()
}

func (r *PrometheusReporter) ReportExecutionFinished(result *QueryExecutionResult) {
	benchmark := result.Benchmark().UniqueName()
	r.executionsActive.WithLabelValues(benchmark).Dec()
	r.observe(result)
}

// throughput streams report executions only in bulk
func (r *PrometheusReporter) ReportConcurrencyTestExecutionFinished(benchmark *Benchmark, results []*QueryExecutionResult) {
	for _, result := range results {
		r.observe(result)
	}
	r.executionsActive.WithLabelValues(benchmark.UniqueName()).Dec()
}

func (r *PrometheusReporter) observe(result *QueryExecutionResult) {
	benchmark := result.Benchmark().UniqueName()
	r.executionsTotal.WithLabelValues(benchmark, result.QueryName(), statusLabel(result.Successful())).Inc()
	if result.Successful() {
		r.queryDuration.WithLabelValues(benchmark, result.QueryName()).Observe(result.Duration().Seconds())
	}
}

func (r *PrometheusReporter) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ServeMetrics serves /metrics on addr until ctx is done.
func (r *PrometheusReporter) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	Logger.Infof("serving metrics on %v", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
