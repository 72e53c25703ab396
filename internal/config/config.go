// Package config handles Kestrel configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/kestrel/config.yaml, /etc/kestrel/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kestrel", "config.yaml"))
	}

	paths = append(paths, "/etc/kestrel/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Kestrel configuration.
type Config struct {
	Model        ModelConfig      `yaml:"model"`
	Embeddings   EmbeddingsConfig `yaml:"embeddings"`
	Agent        AgentConfig      `yaml:"agent"`
	Memory       MemoryConfig     `yaml:"memory"`
	DataDir      string           `yaml:"data_dir"`
	SystemPrompt string           `yaml:"system_prompt"`
	LogLevel     string           `yaml:"log_level"`
}

// ModelConfig defines the chat model endpoint.
type ModelConfig struct {
	Name      string `yaml:"name"`
	OllamaURL string `yaml:"ollama_url"`
	// TimeoutSec bounds a single chat call (default 120).
	TimeoutSec int `yaml:"timeout_sec"`
	// Retries is how many times a failed chat call is retried (default 2).
	Retries int `yaml:"retries"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"baseurl"` // Ollama URL (defaults to model.ollama_url)
	// TimeoutSec bounds a single embedding call (default 30).
	TimeoutSec int `yaml:"timeout_sec"`
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	// MaxRounds caps model calls per user message (default 8).
	MaxRounds int `yaml:"max_rounds"`
	// MaxParallelTools bounds concurrent tool dispatch (default 4).
	MaxParallelTools int `yaml:"max_parallel_tools"`
	// ToolTimeoutSec is the per-invocation tool deadline (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
}

// MemoryConfig tunes retrieval for the context composer.
type MemoryConfig struct {
	// Collection is the collection composed into user turns (default "facts").
	Collection string `yaml:"collection"`
	// Limit is how many retrieved facts to include (default 3).
	Limit int `yaml:"limit"`
	// MinRelevance is the retrieval cutoff in [0,1] (default 0.65).
	MinRelevance float64 `yaml:"min_relevance"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:       "qwen3:4b",
			OllamaURL:  "http://localhost:11434",
			TimeoutSec: 120,
			Retries:    2,
		},
		Embeddings: EmbeddingsConfig{
			Model:      "nomic-embed-text",
			TimeoutSec: 30,
		},
		Agent: AgentConfig{
			MaxRounds:        8,
			MaxParallelTools: 4,
			ToolTimeoutSec:   30,
		},
		Memory: MemoryConfig{
			Collection:   "facts",
			Limit:        3,
			MinRelevance: 0.65,
		},
		DataDir: "data",
	}
}

// EmbeddingsURL resolves the embedding endpoint, falling back to the
// chat model's Ollama URL when none is set.
func (c *Config) EmbeddingsURL() string {
	if c.Embeddings.BaseURL != "" {
		return c.Embeddings.BaseURL
	}
	return c.Model.OllamaURL
}

// ModelTimeout returns the chat call deadline as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSec) * time.Second
}

// ToolTimeout returns the tool call deadline as a duration.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Agent.ToolTimeoutSec) * time.Second
}

// EmbedTimeout returns the embedding call deadline as a duration.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.Embeddings.TimeoutSec) * time.Second
}
