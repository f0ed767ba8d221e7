package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeResults(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "query.result")
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompareResults(t *testing.T) {
	path := writeResults(t, "-- expected results of q1\n1|a\n2|b\n")
	query := Query{Name: "q1"}

	require.Nil(t, CompareResults(path, query, [][]string{{"1", "a"}, {"2", "b"}}))

	err := CompareResults(path, query, [][]string{{"2", "b"}, {"1", "a"}})
	var mismatch *ResultComparisonError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 0, mismatch.Row)
	require.Equal(t, "1|a", mismatch.Expected)
	require.Equal(t, "2|b", mismatch.Actual)

	err = CompareResults(path, query, [][]string{{"1", "a"}})
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, -1, mismatch.Row)
	require.Contains(t, err.Error(), "expected 2 rows, got 1")
}

func TestCompareResultsIgnoreOrder(t *testing.T) {
	path := writeResults(t, "-- ignore-order\n1|a\n2|b\n")
	require.Nil(t, CompareResults(path, Query{Name: "q1"}, [][]string{{"2", "b"}, {"1", "a"}}))
}

func TestCompareResultsMatchOnlyCount(t *testing.T) {
	path := writeResults(t, "1\n2\n3\n")
	query := Query{Name: "q1", MatchOnlyCount: true}
	require.Nil(t, CompareResults(path, query, [][]string{{"x"}, {"y"}, {"z"}}))
	require.NotNil(t, CompareResults(path, query, [][]string{{"x"}}))
}

func TestCompareResultsEmpty(t *testing.T) {
	path := writeResults(t, "")
	require.Nil(t, CompareResults(path, Query{Name: "q1"}, nil))
	require.NotNil(t, CompareResults(path, Query{Name: "q1"}, [][]string{{"1"}}))
}

func TestCompareResultsMissingFile(t *testing.T) {
	err := CompareResults(filepath.Join(t.TempDir(), "missing"), Query{Name: "q1"}, nil)
	require.NotNil(t, err)
	var mismatch *ResultComparisonError
	require.False(t, errors.As(err, &mismatch))
}
