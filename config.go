package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Suite              string
	Warmup             bool
	RepeatLevel        RepeatLevel
	QueryResultsDir    string
	TimeLimit          time.Duration
	ShutdownTimeout    time.Duration
	Pause              time.Duration
	ResultsDb          string
	ProfileDir         string
	ProfileStartCmd    string
	ProfileStopCmd     string
	WorkersDataSource  string
	WorkersQuery       string
	WorkersStaticHosts []string
	GraphiteURL        string
	GraphiteAttempts   int
	// GraphiteMetrics maps a measurement name to a graphite target expression.
	GraphiteMetrics map[string]string
	MetricsAddr     string
}

// LoadEnvFile loads variables from path unless they are already set. A
// missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func LoadConfig() (Config, error) {
	if err := LoadEnvFile(StringEnv("BENCHMARK_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}
	level, err := ParseRepeatLevel(StringEnv("BENCHMARK_REPEAT_LEVEL", string(RepeatBenchmark)))
	if err != nil {
		return Config{}, err
	}
	config := Config{
		Suite:             StringEnv("BENCHMARK_SUITE", "suite.yaml"),
		Warmup:            BoolEnv("BENCHMARK_WARMUP", false),
		RepeatLevel:       level,
		QueryResultsDir:   StringEnv("BENCHMARK_QUERY_RESULTS_DIR", ""),
		TimeLimit:         DurationEnv("BENCHMARK_TIME_LIMIT", 0),
		ShutdownTimeout:   DurationEnv("BENCHMARK_SHUTDOWN_TIMEOUT", time.Minute),
		Pause:             DurationEnv("BENCHMARK_PAUSE", 0),
		ResultsDb:         StringEnv("BENCHMARK_RESULTS_DB", ""),
		ProfileDir:        StringEnv("BENCHMARK_PROFILE_DIR", ""),
		ProfileStartCmd:   StringEnv("BENCHMARK_PROFILE_START_CMD", ""),
		ProfileStopCmd:    StringEnv("BENCHMARK_PROFILE_STOP_CMD", ""),
		WorkersDataSource: StringEnv("BENCHMARK_WORKERS_DATASOURCE", ""),
		WorkersQuery:      StringEnv("BENCHMARK_WORKERS_QUERY", DefaultWorkersQuery),
		GraphiteURL:       StringEnv("GRAPHITE_URL", ""),
		GraphiteAttempts:  IntEnv("GRAPHITE_ATTEMPTS", 3),
		MetricsAddr:       StringEnv("METRICS_ADDR", ""),
	}
	if hosts := StringEnv("BENCHMARK_WORKERS", ""); hosts != "" {
		config.WorkersStaticHosts = strings.Split(hosts, ",")
	}
	config.GraphiteMetrics, err = parseGraphiteMetrics(StringEnv("GRAPHITE_METRICS", ""))
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// parseGraphiteMetrics reads "name=target;name=target" pairs. Targets may
// contain '=' themselves, only the first one separates the name.
func parseGraphiteMetrics(value string) (map[string]string, error) {
	metrics := make(map[string]string)
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, target, ok := strings.Cut(entry, "=")
		name, target = strings.TrimSpace(name), strings.TrimSpace(target)
		if !ok || name == "" || target == "" {
			return nil, fmt.Errorf("invalid graphite metric %q, expected name=target", entry)
		}
		metrics[name] = target
	}
	return metrics, nil
}

func StringEnv(key string, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func IntEnv(key string, def int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		Logger.Warnf("invalid value of %v=%v, fallback to %v", key, value, def)
		return def
	}
	return parsed
}

func BoolEnv(key string, def bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		Logger.Warnf("invalid value of %v=%v, fallback to %v", key, value, def)
		return def
	}
	return parsed
}

func DurationEnv(key string, def time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		Logger.Warnf("invalid value of %v=%v, fallback to %v", key, value, def)
		return def
	}
	return parsed
}
