// Package config holds the analyser's run settings. Values are layered:
// defaults, then an optional YAML file, then environment variables, then
// command-line flags the user set explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/freeeve/chessgraph/accuracy/internal/engine"
)

const (
	DefaultOutput = "analysis_results.tsv"
	DefaultDepth  = 18

	// WorkerReserve is the number of CPUs left free by the default worker count.
	WorkerReserve = 4
)

// Environment variables read by ApplyEnv.
const (
	EnvEnginePath = "STOCKFISH_PATH"
	EnvDepth      = "ANALYSE_DEPTH"
	EnvWorkers    = "ANALYSE_WORKERS"
	EnvBook       = "ANALYSE_BOOK"
)

// Config is the full run configuration.
type Config struct {
	InputDir    string `yaml:"input_dir"`
	EnginePath  string `yaml:"engine_path"`
	Output      string `yaml:"output"`
	Depth       int    `yaml:"depth"`
	Workers     int    `yaml:"workers"`
	Book        string `yaml:"book"`
	ECODir      string `yaml:"eco_dir"`
	MatePolicy  string `yaml:"mate_policy"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	EngineHashMB  int `yaml:"engine_hash_mb"`
	EngineThreads int `yaml:"engine_threads"`
	EngineNice    int `yaml:"engine_nice"`
}

// DefaultWorkers is max(1, numCPU-WorkerReserve).
func DefaultWorkers(numCPU int) int {
	return max(1, numCPU-WorkerReserve)
}

// Defaults returns the configuration used when nothing else is set.
func Defaults(numCPU int) Config {
	return Config{
		Output:        DefaultOutput,
		Depth:         DefaultDepth,
		Workers:       DefaultWorkers(numCPU),
		MatePolicy:    engine.MatePolicyReference.String(),
		LogLevel:      "info",
		EngineHashMB:  16,
		EngineThreads: 1,
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables read through getenv. Unparsable
// numbers are reported rather than ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvEnginePath); v != "" {
		cfg.EnginePath = v
	}
	if v := getenv(EnvBook); v != "" {
		cfg.Book = v
	}
	if v := getenv(EnvDepth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDepth, err)
		}
		cfg.Depth = n
	}
	if v := getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Workers = n
	}
	return nil
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.Depth < 1 {
		return fmt.Errorf("depth must be at least 1, got %d", c.Depth)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := engine.ParseMatePolicy(c.MatePolicy); err != nil {
		return err
	}
	if c.EngineHashMB < 1 {
		return fmt.Errorf("engine_hash_mb must be at least 1, got %d", c.EngineHashMB)
	}
	if c.EngineThreads < 1 {
		return fmt.Errorf("engine_threads must be at least 1, got %d", c.EngineThreads)
	}
	return nil
}

// EngineOptions returns the per-session engine settings.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		HashMB:  c.EngineHashMB,
		Threads: c.EngineThreads,
		Nice:    c.EngineNice,
	}
}
