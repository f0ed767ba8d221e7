package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type queryEntry struct {
	Name           string `yaml:"name"`
	SQL            string `yaml:"sql"`
	File           string `yaml:"file"`
	Results        string `yaml:"results"`
	MatchOnlyCount bool   `yaml:"match-only-count"`
}

type benchmarkEntry struct {
	Name            string              `yaml:"name"`
	DataSource      string              `yaml:"datasource"`
	Runs            int                 `yaml:"runs"`
	PrewarmRuns     int                 `yaml:"prewarm-runs"`
	Concurrency     *int                `yaml:"concurrency"`
	ThroughputTest  bool                `yaml:"throughput-test"`
	BeforeBenchmark []string            `yaml:"before-benchmark"`
	AfterBenchmark  []string            `yaml:"after-benchmark"`
	BeforeExecution []string            `yaml:"before-execution"`
	AfterExecution  []string            `yaml:"after-execution"`
	Queries         []queryEntry        `yaml:"queries"`
	Variables       []map[string]string `yaml:"variables"`
}

type suiteFile struct {
	DataSources map[string]DataSource `yaml:"datasources"`
	Macros      map[string]Macro      `yaml:"macros"`
	Benchmarks  []benchmarkEntry      `yaml:"benchmarks"`
}

// Suite is a loaded benchmark suite. Every entry of Groups is a homogeneous
// group which can be passed to Driver.Execute as is.
type Suite struct {
	DataSources map[string]DataSource
	Macros      map[string]Macro
	Groups      [][]*Benchmark
}

func (s *Suite) Benchmarks() int {
	total := 0
	for _, group := range s.Groups {
		total += len(group)
	}
	return total
}

func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite %v: %w", path, err)
	}
	suite, err := ParseSuite(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("invalid suite %v: %w", path, err)
	}
	return suite, nil
}

// ParseSuite parses a yaml suite. Query files are resolved relative to dir.
func ParseSuite(data []byte, dir string) (*Suite, error) {
	var file suiteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Benchmarks) == 0 {
		return nil, errors.New("suite has no benchmarks")
	}
	suite := &Suite{DataSources: file.DataSources, Macros: file.Macros}
	var err error
	for i, entry := range file.Benchmarks {
		group, groupErr := buildGroup(entry, file.DataSources, dir)
		if groupErr != nil {
			err = multierr.Append(err, fmt.Errorf("benchmark #%v (%v): %w", i+1, entry.Name, groupErr))
			continue
		}
		suite.Groups = append(suite.Groups, group)
	}
	if err != nil {
		return nil, err
	}
	return suite, nil
}

func buildGroup(entry benchmarkEntry, sources map[string]DataSource, dir string) ([]*Benchmark, error) {
	if entry.Name == "" {
		return nil, errors.New("name is required")
	}
	if _, ok := sources[entry.DataSource]; !ok {
		return nil, fmt.Errorf("unknown datasource '%v'", entry.DataSource)
	}
	if len(entry.Queries) == 0 {
		return nil, errors.New("at least one query is required")
	}
	if entry.Runs < 1 {
		return nil, fmt.Errorf("runs must be positive, got %v", entry.Runs)
	}
	if entry.PrewarmRuns < 0 {
		return nil, fmt.Errorf("prewarm-runs cannot be negative, got %v", entry.PrewarmRuns)
	}
	concurrency := 1
	if entry.Concurrency != nil {
		concurrency = *entry.Concurrency
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %v", concurrency)
	}

	queries := make([]Query, 0, len(entry.Queries))
	for _, item := range entry.Queries {
		query, err := buildQuery(item, dir)
		if err != nil {
			return nil, err
		}
		queries = append(queries, query)
	}

	variables := entry.Variables
	if len(variables) == 0 {
		variables = []map[string]string{nil}
	}
	group := make([]*Benchmark, 0, len(variables))
	for _, vars := range variables {
		group = append(group, &Benchmark{
			Name:                  entry.Name,
			DataSource:            entry.DataSource,
			Queries:               queries,
			Runs:                  entry.Runs,
			PrewarmRuns:           entry.PrewarmRuns,
			Concurrency:           concurrency,
			ThroughputTest:        entry.ThroughputTest,
			BeforeBenchmarkMacros: entry.BeforeBenchmark,
			AfterBenchmarkMacros:  entry.AfterBenchmark,
			BeforeExecutionMacros: entry.BeforeExecution,
			AfterExecutionMacros:  entry.AfterExecution,
			Variables:             vars,
		})
	}
	return group, checkGroup(group)
}

func buildQuery(entry queryEntry, dir string) (Query, error) {
	query := Query{Name: entry.Name, SqlTemplate: entry.SQL, ResultsFile: entry.Results, MatchOnlyCount: entry.MatchOnlyCount}
	if entry.File != "" {
		path := entry.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Query{}, fmt.Errorf("failed to read query %v: %w", entry.Name, err)
		}
		query.SqlTemplate = string(data)
		if query.Name == "" {
			query.Name = filepath.Base(entry.File)
		}
	}
	if query.Name == "" {
		return Query{}, errors.New("query name is required")
	}
	if query.SqlTemplate == "" {
		return Query{}, fmt.Errorf("query %v has neither sql nor file", query.Name)
	}
	return query, nil
}
