package main

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storage persists benchmark results into a sqlite compatible database: a local
// file through go-sqlite3 or a remote libsql/turso database.
type Storage struct {
	db    *sql.DB
	runID string

	mu sync.Mutex
}

func storageDriver(target string) string {
	for _, prefix := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(target, prefix) {
			return "libsql"
		}
	}
	return "sqlite3"
}

func OpenStorage(target string) (*Storage, error) {
	db, err := sql.Open(storageDriver(target), target)
	if err != nil {
		return nil, fmt.Errorf("failed to open results db %v: %w", target, err)
	}
	return NewStorage(db), nil
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db, runID: uuid.NewString()}
}

func (s *Storage) RunID() string { return s.runID }

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) InitResultsDb(ctx context.Context, meta map[string]any) error {
	_, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS parameters (run TEXT, name TEXT, value, PRIMARY KEY (run, name))")
	if err != nil {
		return err
	}
	parameters := make([]any, 0)
	parameters = append(parameters, s.runID, "time", time.Now().Format("2006-01-02 15:04:05"))
	for key, value := range meta {
		parameters = append(parameters, s.runID, key, fmt.Sprintf("%v", value))
	}
	placeholders := strings.Join(slices.Repeat([]string{"(?, ?, ?)"}, len(parameters)/3), ", ")
	_, err = s.db.ExecContext(
		ctx,
		fmt.Sprintf("INSERT INTO parameters VALUES %v ON CONFLICT DO NOTHING", placeholders),
		parameters...,
	)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS benchmarks (
		run TEXT,
		name TEXT,
		datasource TEXT,
		started TEXT,
		finished TEXT,
		successful BOOL,
		error TEXT,
		PRIMARY KEY (run, name, datasource, started)
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS measurements (
		run TEXT,
		benchmark TEXT,
		name TEXT,
		sequence INTEGER,
		measurement TEXT,
		value REAL
	)`)
	if err != nil {
		return err
	}
	Logger.Infof("initialized database for benchmark results of run %v with meta %v", s.runID, meta)
	return nil
}

func (s *Storage) UpdateBenchmarkDb(ctx context.Context, result *BenchmarkExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}
	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO benchmarks VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.runID,
		result.Benchmark.UniqueName(),
		result.Benchmark.DataSource,
		formatTimestamp(result.Start),
		formatTimestamp(result.End),
		result.Successful(),
		errText,
	)
	if err != nil {
		return err
	}
	for _, execution := range result.Executions {
		if !execution.Successful() {
			continue
		}
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO measurements VALUES (?, ?, ?, ?, ?, ?)",
			s.runID,
			result.Benchmark.UniqueName(),
			execution.QueryName(),
			execution.Execution.Sequence,
			"duration",
			execution.Duration().Seconds(),
		)
		if err != nil {
			return err
		}
	}
	stats := ComputeStats(result.Executions, result.Duration())
	for measurement, value := range map[string]float64{
		"total_time": result.Duration().Seconds(),
		"qps":        stats.QPS,
		"p50":        stats.LatencyP50.Seconds(),
		"p99":        stats.LatencyP99.Seconds(),
	} {
		_, err = tx.ExecContext(ctx, "INSERT INTO measurements VALUES (?, ?, ?, ?, ?, ?)", s.runID, result.Benchmark.UniqueName(), "", 0, measurement, value)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddMeasurements stores benchmark level values which are not tied to a query.
func (s *Storage) AddMeasurements(ctx context.Context, benchmark string, measurements map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for measurement, value := range measurements {
		_, err = tx.ExecContext(ctx, "INSERT INTO measurements VALUES (?, ?, ?, ?, ?, ?)", s.runID, benchmark, "", 0, measurement, value)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) Parameters(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM parameters WHERE run = ?", s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make(map[string]string, 0)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		results[name] = value
	}
	return results, rows.Err()
}

func (s *Storage) Measurements(ctx context.Context, benchmark string, measurement string) ([]float64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT value FROM measurements WHERE run = ? AND benchmark = ? AND measurement = ? ORDER BY sequence",
		s.runID, benchmark, measurement,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]float64, 0)
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		results = append(results, value)
	}
	return results, rows.Err()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// StorageReporter writes every finished benchmark into Storage.
type StorageReporter struct {
	Storage *Storage
}

func (r *StorageReporter) ReportBenchmarkStarted(*Benchmark) {}

func (r *StorageReporter) ReportBenchmarkFinished(result *BenchmarkExecutionResult) {
	if err := r.Storage.UpdateBenchmarkDb(context.Background(), result); err != nil {
		Logger.Errorf("failed to update benchmark results %v: %v", result.Benchmark.UniqueName(), err)
	}
}

func (r *StorageReporter) ReportExecutionStarted(*QueryExecution) {}

func (r *StorageReporter) ReportExecutionFinished(*QueryExecutionResult) {}

func (r *StorageReporter) ReportConcurrencyTestExecutionFinished(*Benchmark, []*QueryExecutionResult) {
}
