// Package config holds the engine configuration: LLM providers, search
// providers, research budgets, database, and server settings.
//
// Configuration is loaded from an optional YAML file; every value supports
// ${VAR} environment expansion, and the research budgets additionally read
// the documented environment variables directly so container deployments
// need no file at all.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig      `yaml:"llm" json:"llm"`
	Embedder  EmbedderConfig `yaml:"embedder" json:"embedder"`
	Search    SearchConfig   `yaml:"search" json:"search"`
	Research  ResearchConfig `yaml:"research" json:"research"`
	Database  DatabaseConfig `yaml:"database" json:"database"`
	Server    ServerConfig   `yaml:"server" json:"server"`
	LogLevel  string         `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFormat string         `yaml:"log_format,omitempty" json:"log_format,omitempty"`
}

// Load reads the YAML file at path (when non-empty), expands environment
// references, and applies defaults. A missing path yields a default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Search.SetDefaults()
	c.Research.SetDefaults()
	c.Database.SetDefaults()
	c.Server.SetDefaults()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Research.Validate(); err != nil {
		return err
	}
	return nil
}
