package main

import (
	"context"
	"fmt"
	"strings"
)

const DefaultWorkersQuery = "SELECT node_id FROM system.runtime.nodes WHERE coordinator = false"

type NoopProfiler struct{}

func (NoopProfiler) Workers(context.Context) ([]string, error)            { return nil, nil }
func (NoopProfiler) StartRecording(context.Context, string, string) error { return nil }
func (NoopProfiler) StopRecording(context.Context, string) error          { return nil }

// CommandProfiler toggles recordings on workers with shell commands, where
// {worker} and {output} are substituted. Workers are either fixed or listed
// with a query against a data source.
type CommandProfiler struct {
	StartCmd     string
	StopCmd      string
	StaticHosts  []string
	WorkersQuery string
	DataSource   string
	Connections  ConnectionProvider
}

func (p *CommandProfiler) Workers(ctx context.Context) ([]string, error) {
	if len(p.StaticHosts) > 0 || p.DataSource == "" {
		return p.StaticHosts, nil
	}
	query := p.WorkersQuery
	if query == "" {
		query = DefaultWorkersQuery
	}
	conn, err := p.Connections.Connect(ctx, p.DataSource)
	if err != nil {
		return nil, err
	}
	defer closeConnection(conn)
	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	workers := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			workers = append(workers, row[0])
		}
	}
	return workers, nil
}

func (p *CommandProfiler) StartRecording(ctx context.Context, worker string, output string) error {
	return p.run(ctx, p.StartCmd, worker, output)
}

func (p *CommandProfiler) StopRecording(ctx context.Context, worker string) error {
	return p.run(ctx, p.StopCmd, worker, "")
}

func (p *CommandProfiler) run(ctx context.Context, command string, worker string, output string) error {
	if command == "" {
		return nil
	}
	expanded := strings.NewReplacer("{worker}", worker, "{output}", output).Replace(command)
	lines, err := runCmd(ctx, []string{"sh", "-c", expanded}, nil)
	if err != nil {
		return fmt.Errorf("profiler command for %v failed: %w", worker, err)
	}
	Logger.Debugf("profiler command for %v: %v", worker, strings.Join(lines, " "))
	return nil
}
