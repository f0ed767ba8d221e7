package main

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var selectKeywords = []string{"select", "with", "show", "explain", "values", "describe", "table"}

// isSelectQuery checks the leading keyword of the statement.
func isSelectQuery(sql string) bool {
	statement := stripLeadingComments(sql)
	end := strings.IndexFunc(statement, func(r rune) bool { return !unicode.IsLetter(r) })
	if end >= 0 {
		statement = statement[:end]
	}
	return slices.Contains(selectKeywords, strings.ToLower(statement))
}

func stripLeadingComments(sql string) string {
	for {
		sql = strings.TrimSpace(sql)
		switch {
		case strings.HasPrefix(sql, "--"):
			end := strings.IndexByte(sql, '\n')
			if end < 0 {
				return ""
			}
			sql = sql[end+1:]
		case strings.HasPrefix(sql, "/*"):
			end := strings.Index(sql, "*/")
			if end < 0 {
				return ""
			}
			sql = sql[end+2:]
		default:
			return sql
		}
	}
}

// SqlQueryExecutor runs statements over Connection: selects are read fully,
// other statements report the affected rows count as a single row.
type SqlQueryExecutor struct{}

func (e *SqlQueryExecutor) Execute(ctx context.Context, execution *QueryExecution, conn Connection, resultsFile string) (*QueryExecutionResult, error) {
	start := time.Now()
	var rows [][]string
	if isSelectQuery(execution.Statement) {
		var err error
		rows, err = conn.Query(ctx, execution.Statement)
		if err != nil {
			return nil, err
		}
	} else {
		affected, err := conn.Exec(ctx, execution.Statement)
		if err != nil {
			return nil, err
		}
		rows = [][]string{{strconv.FormatInt(affected, 10)}}
	}
	end := time.Now()

	if resultsFile != "" {
		if err := CompareResults(resultsFile, execution.Query, rows); err != nil {
			return nil, err
		}
	}
	return &QueryExecutionResult{Execution: execution, Start: start, End: end, Rows: len(rows)}, nil
}
