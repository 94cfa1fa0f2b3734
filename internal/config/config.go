// Package config holds all forest configuration.
//
// Resolution order (later wins):
//  1. built-in defaults
//  2. <data_dir>/config.yaml if present
//  3. environment variables
//
// Every recognized environment key controls exactly one effect; see the
// Load* functions below.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single source of truth for server configuration.
type Config struct {
	// DataDir is the persistence root. Env: FOREST_DATA_DIR.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Vector index backend: "sqlitevec" (default) or "memory".
	// Env: FOREST_VECTOR_PROVIDER.
	VectorProvider string `yaml:"vector_provider" json:"vector_provider"`

	// Embedding engine configuration.
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`

	// Expansion agent configuration.
	Expansion ExpansionConfig `yaml:"expansion" json:"expansion"`

	// LLMTimeout is the intelligence bridge deadline. Env: LLM_TIMEOUT (ms).
	LLMTimeout time.Duration `yaml:"llm_timeout" json:"llm_timeout"`

	// ReadOnly disables all mutation paths. Env: STAGE1_READ_ONLY.
	ReadOnly bool `yaml:"read_only" json:"read_only"`

	// Debug enables verbose category logging. Env: HTA_EXPANSION_DEBUG
	// also forces it on (historical knob, kept for compatibility).
	Debug bool `yaml:"debug" json:"debug"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	// Provider: "local" (deterministic, default) or "ollama".
	Provider string `yaml:"provider" json:"provider"`

	// Dimensions of produced vectors.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// Ollama settings, used when Provider == "ollama".
	OllamaEndpoint string `yaml:"ollama_endpoint" json:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model" json:"ollama_model"`
}

// ExpansionConfig configures the frontier-depletion agent.
type ExpansionConfig struct {
	// Interval between supervisor ticks. Env: HTA_EXPANSION_INTERVAL_MS.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// MinAvailableTasks is the frontier refill threshold.
	// Env: HTA_EXPANSION_MIN_TASKS.
	MinAvailableTasks int `yaml:"min_available_tasks" json:"min_available_tasks"`
}

// Default returns the built-in defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:        filepath.Join(home, ".forest-data"),
		VectorProvider: "sqlitevec",
		Embedding: EmbeddingConfig{
			Provider:       "local",
			Dimensions:     384,
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
		},
		Expansion: ExpansionConfig{
			Interval:          5 * time.Minute,
			MinAvailableTasks: 3,
		},
		LLMTimeout: 30 * time.Second,
	}
}

// Load resolves configuration from defaults, the optional config file and
// the environment.
func Load() (*Config, error) {
	cfg := Default()

	// FOREST_DATA_DIR must be applied before the file lookup since the
	// file lives under the data dir.
	if dir := os.Getenv("FOREST_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	if err := cfg.loadFile(filepath.Join(cfg.DataDir, "config.yaml")); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if cfg.Expansion.Interval <= 0 {
		cfg.Expansion.Interval = 5 * time.Minute
	}
	if cfg.Expansion.MinAvailableTasks <= 0 {
		cfg.Expansion.MinAvailableTasks = 3
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 30 * time.Second
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = 384
	}
	return cfg, nil
}

// loadFile merges an optional yaml config file. A missing file is not an
// error; a malformed one is.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays recognized environment variables.
func (c *Config) applyEnv() {
	if dir := os.Getenv("FOREST_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if p := os.Getenv("FOREST_VECTOR_PROVIDER"); p != "" {
		c.VectorProvider = p
	}
	if ms, ok := envInt("HTA_EXPANSION_INTERVAL_MS"); ok {
		c.Expansion.Interval = time.Duration(ms) * time.Millisecond
	}
	if n, ok := envInt("HTA_EXPANSION_MIN_TASKS"); ok {
		c.Expansion.MinAvailableTasks = n
	}
	if envBool("HTA_EXPANSION_DEBUG") {
		c.Debug = true
	}
	if ms, ok := envInt("LLM_TIMEOUT"); ok {
		c.LLMTimeout = time.Duration(ms) * time.Millisecond
	}
	if envBool("STAGE1_READ_ONLY") {
		c.ReadOnly = true
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	}
	return false
}
