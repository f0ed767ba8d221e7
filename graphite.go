package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

type GraphiteEvent struct {
	What string  `json:"what"`
	Tags string  `json:"tags"`
	Data string  `json:"data"`
	When float64 `json:"when"`
}

func NewGraphiteEvent(what string, data string, tags ...string) GraphiteEvent {
	now := time.Now()
	return GraphiteEvent{
		What: what,
		Tags: strings.Join(tags, " "),
		Data: data,
		When: float64(now.UnixMicro()) / 1e6,
	}
}

type GraphiteClient struct {
	URL        string
	Attempts   uint
	RetryDelay time.Duration
	client     *http.Client
}

func NewGraphiteClient(url string) *GraphiteClient {
	return &GraphiteClient{
		URL:        strings.TrimSuffix(url, "/"),
		Attempts:   3,
		RetryDelay: time.Second,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *GraphiteClient) retry(action func() error) error {
	return retry.Do(
		action,
		retry.Attempts(c.Attempts),
		retry.Delay(c.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			Logger.Warnf("graphite request failed (attempt %v): %v", n+1, err)
		}),
	)
}

func (c *GraphiteClient) StoreEvent(ctx context.Context, event GraphiteEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	Logger.Debugf("storing graphite event: %+v", event)
	return c.retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/events/", bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		_, err = c.do(req)
		return err
	})
}

type graphiteRenderItem struct {
	Target     string       `json:"target"`
	Datapoints [][]*float64 `json:"datapoints"`
}

// LoadMetrics fetches the named graphite targets for [from, to]. Missing data
// points are reported as zero.
func (c *GraphiteClient) LoadMetrics(ctx context.Context, metrics map[string]string, from, to time.Time) (map[string][]float64, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("from", fmt.Sprint(from.Unix()))
	query.Set("until", fmt.Sprint(to.Unix()))
	for name, expr := range metrics {
		query.Add("target", fmt.Sprintf("alias(%v,'%v')", expr, name))
	}
	target := c.URL + "/render?" + query.Encode()
	Logger.Debugf("loading graphite metrics: %v", target)

	var items []graphiteRenderItem
	err := c.retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		body, err := c.do(req)
		if err != nil {
			return err
		}
		items = nil
		return json.Unmarshal(body, &items)
	})
	if err != nil {
		return nil, fmt.Errorf("could not load metrics %v: %w", metrics, err)
	}
	results := make(map[string][]float64, len(items))
	for _, item := range items {
		points := make([]float64, len(item.Datapoints))
		for i, point := range item.Datapoints {
			if len(point) > 0 && point[0] != nil {
				points[i] = *point[0]
			}
		}
		results[item.Target] = points
	}
	return results, nil
}

func (c *GraphiteClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code %v: %v", resp.StatusCode, string(body))
	}
	return body, nil
}

// GraphiteReporter marks benchmark boundaries as graphite events. When Metrics
// are set, their averages over every finished benchmark are logged and stored
// as measurements named graphite_<metric>.
type GraphiteReporter struct {
	Client  *GraphiteClient
	Metrics map[string]string
	Storage *Storage
}

func (r *GraphiteReporter) store(event GraphiteEvent) {
	if err := r.Client.StoreEvent(context.Background(), event); err != nil {
		Logger.Errorf("failed to store graphite event %v: %v", event.What, err)
	}
}

func (r *GraphiteReporter) ReportBenchmarkStarted(benchmark *Benchmark) {
	r.store(NewGraphiteEvent(
		fmt.Sprintf("Benchmark %v started", benchmark.UniqueName()),
		"",
		"benchmark", "started", benchmark.DataSource,
	))
}

func (r *GraphiteReporter) ReportBenchmarkFinished(result *BenchmarkExecutionResult) {
	status := "successful"
	if !result.Successful() {
		status = "failed"
	}
	r.store(NewGraphiteEvent(
		fmt.Sprintf("Benchmark %v ended", result.Benchmark.UniqueName()),
		fmt.Sprintf("status: %v, duration: %v", status, result.Duration()),
		"benchmark", "ended", result.Benchmark.DataSource,
	))
	r.loadMetrics(result)
}

func (r *GraphiteReporter) loadMetrics(result *BenchmarkExecutionResult) {
	if len(r.Metrics) == 0 || result.Start.IsZero() {
		return
	}
	ctx := context.Background()
	name := result.Benchmark.UniqueName()
	metrics, err := r.Client.LoadMetrics(ctx, r.Metrics, result.Start, result.End)
	if err != nil {
		Logger.Errorf("failed to load graphite metrics for benchmark %v: %v", name, err)
		return
	}
	averages := make(map[string]float64, len(metrics))
	for metric, points := range metrics {
		averages["graphite_"+metric] = average(points)
	}
	Logger.Infof("graphite metrics of benchmark %v: %v", name, averages)
	if r.Storage == nil {
		return
	}
	if err := r.Storage.AddMeasurements(ctx, name, averages); err != nil {
		Logger.Errorf("failed to store graphite metrics for benchmark %v: %v", name, err)
	}
}

func average(points []float64) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, point := range points {
		sum += point
	}
	return sum / float64(len(points))
}

func (r *GraphiteReporter) ReportExecutionStarted(*QueryExecution) {}

func (r *GraphiteReporter) ReportExecutionFinished(*QueryExecutionResult) {}

func (r *GraphiteReporter) ReportConcurrencyTestExecutionFinished(benchmark *Benchmark, results []*QueryExecutionResult) {
	r.store(NewGraphiteEvent(
		fmt.Sprintf("Benchmark %v concurrency stream ended", benchmark.UniqueName()),
		fmt.Sprintf("executions: %v", len(results)),
		"concurrency", "ended", benchmark.DataSource,
	))
}
