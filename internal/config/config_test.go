package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessgraph/accuracy/internal/engine"
)

func TestDefaultWorkers(t *testing.T) {
	tests := []struct {
		cpus int
		want int
	}{
		{1, 1},
		{4, 1},
		{5, 1},
		{6, 2},
		{16, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultWorkers(tt.cpus), "cpus=%d", tt.cpus)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults(8)
	assert.Equal(t, "analysis_results.tsv", cfg.Output)
	assert.Equal(t, 18, cfg.Depth)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "reference", cfg.MatePolicy)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
depth: 12
book: /data/book.bin
mate_policy: uniform
engine_hash_mb: 64
`), 0o644))

	cfg := Defaults(8)
	require.NoError(t, LoadFile(path, &cfg))
	assert.Equal(t, 12, cfg.Depth)
	assert.Equal(t, "/data/book.bin", cfg.Book)
	assert.Equal(t, "uniform", cfg.MatePolicy)
	assert.Equal(t, 64, cfg.EngineHashMB)
	// untouched keys keep their defaults
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, DefaultOutput, cfg.Output)
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := Defaults(8)
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depth: [1, 2\n"), 0o644))
	assert.Error(t, LoadFile(path, &cfg))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvEnginePath: "/usr/bin/stockfish",
		EnvDepth:      "20",
		EnvWorkers:    "3",
		EnvBook:       "book.bin",
	}
	cfg := Defaults(8)
	require.NoError(t, ApplyEnv(&cfg, func(k string) string { return env[k] }))
	assert.Equal(t, "/usr/bin/stockfish", cfg.EnginePath)
	assert.Equal(t, 20, cfg.Depth)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "book.bin", cfg.Book)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Defaults(8)
	err := ApplyEnv(&cfg, func(k string) string {
		if k == EnvDepth {
			return "deep"
		}
		return ""
	})
	assert.ErrorContains(t, err, EnvDepth)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero depth", func(c *Config) { c.Depth = 0 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"unknown mate policy", func(c *Config) { c.MatePolicy = "flat" }},
		{"zero hash", func(c *Config) { c.EngineHashMB = 0 }},
		{"zero threads", func(c *Config) { c.EngineThreads = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults(8)
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := Defaults(8)
	cfg.EngineNice = 5
	assert.Equal(t, engine.Options{HashMB: 16, Threads: 1, Nice: 5}, cfg.EngineOptions())
}
