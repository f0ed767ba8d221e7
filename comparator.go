package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

const (
	resultsSeparator   = "|"
	ignoreOrderComment = "-- ignore-order"
)

// ResultComparisonError means the query succeeded but returned rows that do
// not match its expected results file.
type ResultComparisonError struct {
	File     string
	Expected string
	Actual   string
	Row      int
}

func (e *ResultComparisonError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("results mismatch with %v: expected %v rows, got %v", e.File, e.Expected, e.Actual)
	}
	return fmt.Sprintf("results mismatch with %v at row %v: expected '%v', got '%v'", e.File, e.Row+1, e.Expected, e.Actual)
}

type expectedResults struct {
	rows        []string
	ignoreOrder bool
}

// loadExpectedResults reads a results file: one row per line with columns
// separated by '|'. Lines starting with "--" are directives or comments.
func loadExpectedResults(path string) (expectedResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return expectedResults{}, fmt.Errorf("failed to read results file %v: %w", path, err)
	}
	var expected expectedResults
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, "--") {
			if strings.TrimSpace(line) == ignoreOrderComment {
				expected.ignoreOrder = true
			}
			continue
		}
		expected.rows = append(expected.rows, line)
	}
	if len(expected.rows) == 1 && expected.rows[0] == "" {
		expected.rows = nil
	}
	return expected, nil
}

func CompareResults(path string, query Query, rows [][]string) error {
	expected, err := loadExpectedResults(path)
	if err != nil {
		return err
	}
	actual := make([]string, 0, len(rows))
	for _, row := range rows {
		actual = append(actual, strings.Join(row, resultsSeparator))
	}
	if len(expected.rows) != len(actual) {
		return &ResultComparisonError{
			File:     path,
			Expected: fmt.Sprint(len(expected.rows)),
			Actual:   fmt.Sprint(len(actual)),
			Row:      -1,
		}
	}
	if query.MatchOnlyCount {
		return nil
	}
	if expected.ignoreOrder {
		slices.Sort(expected.rows)
		slices.Sort(actual)
	}
	for i := range actual {
		if expected.rows[i] != actual[i] {
			return &ResultComparisonError{File: path, Expected: expected.rows[i], Actual: actual[i], Row: i}
		}
	}
	return nil
}
