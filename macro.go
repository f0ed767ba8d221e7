package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type Macro struct {
	Command string `yaml:"command"`
	SQL     string `yaml:"sql"`
	Builtin string `yaml:"builtin"`
}

type MacroError struct {
	Macro string
	Err   error
}

func (e *MacroError) Error() string { return fmt.Sprintf("macro %v failed: %v", e.Macro, e.Err) }
func (e *MacroError) Unwrap() error { return e.Err }

type NoopMacros struct{}

func (NoopMacros) RunMacros(context.Context, []string, *Benchmark, Connection) error { return nil }

// MacroService runs macros defined in the suite. Names without a definition
// resolve to builtins.
type MacroService struct {
	macros      map[string]Macro
	connections ConnectionProvider
}

func NewMacroService(macros map[string]Macro, connections ConnectionProvider) *MacroService {
	return &MacroService{macros: macros, connections: connections}
}

func (s *MacroService) RunMacros(ctx context.Context, names []string, benchmark *Benchmark, conn Connection) error {
	for _, name := range names {
		Logger.Debugf("running macro %v for benchmark %v", name, benchmark.UniqueName())
		if err := s.runMacro(ctx, name, benchmark, conn); err != nil {
			return &MacroError{Macro: name, Err: err}
		}
	}
	return nil
}

func (s *MacroService) runMacro(ctx context.Context, name string, benchmark *Benchmark, conn Connection) error {
	macro, ok := s.macros[name]
	if !ok {
		macro = Macro{Builtin: name}
	}
	switch {
	case macro.Builtin != "":
		return runBuiltin(ctx, macro.Builtin)
	case macro.SQL != "":
		if conn == nil {
			local, err := s.connections.Connect(ctx, benchmark.DataSource)
			if err != nil {
				return err
			}
			defer closeConnection(local)
			conn = local
		}
		_, err := conn.Exec(ctx, macro.SQL)
		return err
	case macro.Command != "":
		_, err := runCmd(ctx, []string{"sh", "-c", macro.Command}, benchmarkEnv(benchmark))
		return err
	}
	return fmt.Errorf("macro %v has nothing to run", name)
}

func benchmarkEnv(benchmark *Benchmark) []string {
	env := []string{
		"BENCHMARK_NAME=" + benchmark.Name,
		"BENCHMARK_UNIQUE_NAME=" + benchmark.UniqueName(),
		"BENCHMARK_DATASOURCE=" + benchmark.DataSource,
	}
	for key, value := range benchmark.Variables {
		env = append(env, fmt.Sprintf("BENCHMARK_VAR_%v=%v", strings.ToUpper(key), value))
	}
	return env
}

func runBuiltin(ctx context.Context, name string) error {
	switch name {
	case "drop-caches":
		Logger.Info("clear caches")
		return clearCaches(ctx)
	case "perf-paranoid":
		return setParanoid(ctx)
	case "noop":
		return nil
	}
	return fmt.Errorf("unknown macro '%v'", name)
}

func clearCaches(ctx context.Context) error {
	switch runtime.GOOS {
	case "linux":
		if err := exec.CommandContext(ctx, "sync").Run(); err != nil {
			return err
		}
		if err := exec.CommandContext(ctx, "sh", "-c", "echo 3 | sudo tee /proc/sys/vm/drop_caches").Run(); err != nil {
			return err
		}
		return nil
	case "darwin":
		if err := exec.CommandContext(ctx, "sync").Run(); err != nil {
			return err
		}
		if err := exec.CommandContext(ctx, "purge").Run(); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("unable to clear caches for platform '%v'", runtime.GOOS)
}

func setParanoid(ctx context.Context) error {
	switch runtime.GOOS {
	case "linux":
		return exec.CommandContext(ctx, "sh", "-c", "echo '1' | sudo tee /proc/sys/kernel/perf_event_paranoid").Run()
	case "darwin":
		return nil
	}
	return fmt.Errorf("unable to set paranoid for platform '%v'", runtime.GOOS)
}

func runCmd(ctx context.Context, args []string, env []string) ([]string, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = append(os.Environ(), env...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("err=%w, out=%v", err, string(output))
	}
	return strings.Split(string(output), "\n"), nil
}
