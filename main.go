package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := LoadConfig()
	if err != nil {
		Logger.Errorf("failed to load config: %v", err)
		return 2
	}
	suite, err := LoadSuite(config.Suite)
	if err != nil {
		Logger.Errorf("failed to load suite: %v", err)
		return 2
	}
	system, err := NewSystem(config, suite)
	if err != nil {
		Logger.Errorf("failed to initialize benchmark driver: %v", err)
		return 2
	}
	defer func() {
		if err := system.Close(); err != nil {
			Logger.Warnf("failed to close benchmark driver: %v", err)
		}
	}()

	start := time.Now()
	results, err := system.Run(ctx)
	if err != nil {
		Logger.Errorf("benchmark suite aborted after %v: %v", elapsed(start), err)
		return 1
	}
	failed := Failures(results)
	if len(failed) > 0 {
		Logger.Errorf("%v of %v benchmarks failed in %v", len(failed), len(results), elapsed(start))
		return 1
	}
	Logger.Infof("%v benchmarks finished in %v", len(results), elapsed(start))
	return 0
}
